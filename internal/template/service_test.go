package template

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crmhub/internal/common"
	"crmhub/internal/tenant"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	orgA = "6f1c1f0e-8f5a-4c39-9a57-1f3b0d7f0a01"
	orgB = "0b7e3a52-2d4c-4a8e-b1d6-93c2f5e4a702"
)

func setupService(t *testing.T) (*TemplateService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:template_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Use(tenant.NewPlugin(zap.NewNop())))
	require.NoError(t, db.AutoMigrate(&EmailTemplate{}))
	require.NoError(t, tenant.Attach(db, &EmailTemplate{}, tenant.ScopeConfig{ExemptRoles: []string{"SUPER_ADMIN"}}))
	return NewTemplateService(db), db
}

func orgCtx(orgID string) context.Context {
	return tenant.WithContext(context.Background(), tenant.Context{UserID: "u-1", OrgID: orgID, Role: "ADMIN"})
}

func superCtx() context.Context {
	return tenant.WithContext(context.Background(), tenant.Context{UserID: "root", Role: "SUPER_ADMIN"})
}

func create(t *testing.T, s *TemplateService, ctx context.Context, name string) *EmailTemplate {
	t.Helper()
	tmpl, err := s.CreateTemplate(ctx, &CreateTemplateRequest{
		Name:    name,
		Subject: "Hello {{.Name}}",
		Body:    "Dear {{.Name}}, your plan renews on {{.Date}}.",
	})
	require.NoError(t, err)
	return tmpl
}

func bizCode(t *testing.T, err error) int {
	t.Helper()
	var bizErr *common.BusinessError
	require.ErrorAs(t, err, &bizErr)
	return bizErr.Code
}

func TestCreateOwnership(t *testing.T) {
	s, _ := setupService(t)

	own := create(t, s, orgCtx(orgA), "welcome")
	require.NotNil(t, own.OrgID)
	assert.Equal(t, orgA, *own.OrgID)
	assert.Equal(t, "u-1", own.CreatedBy)

	global := create(t, s, superCtx(), "renewal")
	assert.True(t, global.Global())

	_, err := s.CreateTemplate(orgCtx(orgA), &CreateTemplateRequest{Name: "bad", Subject: "{{.Name", Body: "x"})
	assert.Equal(t, common.CodeTemplateRender, bizCode(t, err))
}

func TestListIncludesGlobalTemplates(t *testing.T) {
	s, _ := setupService(t)
	create(t, s, orgCtx(orgA), "a-welcome")
	create(t, s, orgCtx(orgB), "b-welcome")
	create(t, s, superCtx(), "global-renewal")

	list, total, err := s.ListTemplates(orgCtx(orgA), &ListTemplatesRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, "a-welcome", list[0].Name)
	assert.Equal(t, "global-renewal", list[1].Name)

	_, total, err = s.ListTemplates(superCtx(), &ListTemplatesRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = s.ListAll(orgCtx(orgA), &ListTemplatesRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestOtherOrgTemplateIsNotFound(t *testing.T) {
	s, _ := setupService(t)
	b := create(t, s, orgCtx(orgB), "b-welcome")

	_, err := s.GetTemplate(orgCtx(orgA), b.ID)
	assert.Equal(t, common.CodeTemplateNotFound, bizCode(t, err))

	name := "stolen"
	_, err = s.UpdateTemplate(orgCtx(orgA), b.ID, &UpdateTemplateRequest{Name: &name})
	assert.Equal(t, common.CodeTemplateNotFound, bizCode(t, err))

	assert.Equal(t, common.CodeTemplateNotFound, bizCode(t, s.DeleteTemplate(orgCtx(orgA), b.ID)))
}

func TestGlobalTemplateIsReadOnlyForOrgs(t *testing.T) {
	s, _ := setupService(t)
	global := create(t, s, superCtx(), "global-renewal")

	got, err := s.GetTemplate(orgCtx(orgA), global.ID)
	require.NoError(t, err)
	assert.True(t, got.Global())

	name := "mine now"
	_, err = s.UpdateTemplate(orgCtx(orgA), global.ID, &UpdateTemplateRequest{Name: &name})
	assert.Equal(t, common.CodeForbidden, bizCode(t, err))
	assert.Equal(t, common.CodeForbidden, bizCode(t, s.DeleteTemplate(orgCtx(orgA), global.ID)))

	// 空更新同样拒绝，不回显为成功
	_, err = s.UpdateTemplate(orgCtx(orgA), global.ID, &UpdateTemplateRequest{})
	assert.Equal(t, common.CodeForbidden, bizCode(t, err))

	updated, err := s.UpdateTemplate(superCtx(), global.ID, &UpdateTemplateRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	require.NoError(t, s.DeleteTemplate(superCtx(), global.ID))
}

func TestUpdateOwnTemplate(t *testing.T) {
	s, _ := setupService(t)
	own := create(t, s, orgCtx(orgA), "welcome")

	subject := "Welcome aboard, {{.Name}}"
	got, err := s.UpdateTemplate(orgCtx(orgA), own.ID, &UpdateTemplateRequest{Subject: &subject})
	require.NoError(t, err)
	assert.Equal(t, subject, got.Subject)

	broken := "{{if}}"
	_, err = s.UpdateTemplate(orgCtx(orgA), own.ID, &UpdateTemplateRequest{Body: &broken})
	assert.Equal(t, common.CodeTemplateRender, bizCode(t, err))
}

func TestRenderTemplate(t *testing.T) {
	s, db := setupService(t)
	global := create(t, s, superCtx(), "global-renewal")

	out, err := s.RenderTemplate(orgCtx(orgA), global.ID, &RenderTemplateRequest{
		Variables: map[string]any{"Name": "Alice", "Date": "2026-04-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Alice", out.Subject)
	assert.Equal(t, "Dear Alice, your plan renews on 2026-04-01.", out.Body)

	_, err = s.RenderTemplate(orgCtx(orgA), global.ID, &RenderTemplateRequest{Variables: map[string]any{"Name": "Alice"}})
	assert.Equal(t, common.CodeTemplateRender, bizCode(t, err))

	var stored EmailTemplate
	require.NoError(t, db.First(&stored, "id = ?", global.ID).Error)
	assert.Equal(t, 1, stored.UsageCount)
}
