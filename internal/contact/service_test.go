package contact

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

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:contact_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Use(tenant.NewPlugin(zap.NewNop())))
	require.NoError(t, db.AutoMigrate(&Contact{}))
	require.NoError(t, tenant.Attach(db, &Contact{}, tenant.ScopeConfig{ExemptRoles: []string{"SUPER_ADMIN"}}))
	return NewService(db), db
}

func orgCtx(orgID string) context.Context {
	return tenant.WithContext(context.Background(), tenant.Context{UserID: "u-1", OrgID: orgID, Role: "AGENT"})
}

func seed(t *testing.T, s *Service) map[string]*Contact {
	t.Helper()
	out := map[string]*Contact{}
	for _, item := range []struct {
		org, name, company, status string
	}{
		{orgA, "Alice", "Acme", StatusLead},
		{orgA, "Bob", "Acme", StatusCustomer},
		{orgA, "Cathy", "Initech", StatusLead},
		{orgB, "Dan", "Globex", StatusLead},
		{orgB, "Erin", "Acme", StatusChurned},
	} {
		c, err := s.Create(orgCtx(item.org), &CreateContactRequest{Name: item.name, Company: item.company, Status: item.status})
		require.NoError(t, err)
		out[item.name] = c
	}
	return out
}

func bizCode(t *testing.T, err error) int {
	t.Helper()
	var bizErr *common.BusinessError
	require.ErrorAs(t, err, &bizErr)
	return bizErr.Code
}

func TestCreateTagsOrg(t *testing.T) {
	s, _ := setupService(t)

	c, err := s.Create(orgCtx(orgA), &CreateContactRequest{Name: " Alice ", Email: "Alice@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, orgA, c.OrgID)
	assert.Equal(t, "Alice", c.Name)
	assert.Equal(t, "alice@example.com", c.Email)
	assert.Equal(t, StatusLead, c.Status)

	_, err = s.Create(orgCtx(orgA), &CreateContactRequest{Name: "x", Status: "vip"})
	assert.Equal(t, common.CodeInvalidRequest, bizCode(t, err))
}

func TestListIsScopedAndFiltered(t *testing.T) {
	s, _ := setupService(t)
	seed(t, s)

	tests := []struct {
		name  string
		ctx   context.Context
		req   ListContactsRequest
		total int64
	}{
		{"组织A全部", orgCtx(orgA), ListContactsRequest{}, 3},
		{"组织B全部", orgCtx(orgB), ListContactsRequest{}, 2},
		{"关键词匹配公司", orgCtx(orgA), ListContactsRequest{FilterRequest: common.FilterRequest{Keyword: "acme"}}, 2},
		{"状态", orgCtx(orgA), ListContactsRequest{FilterRequest: common.FilterRequest{Status: "LEAD"}}, 2},
		{"其它组织的公司名不可见", orgCtx(orgB), ListContactsRequest{FilterRequest: common.FilterRequest{Keyword: "initech"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := s.List(tt.ctx, &tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.total, total)
			assert.Len(t, list, int(tt.total))
		})
	}

	list, _, err := s.List(orgCtx(orgA), &ListContactsRequest{FilterRequest: common.FilterRequest{SortBy: "name", SortOrder: "asc"}})
	require.NoError(t, err)
	assert.Equal(t, "Alice", list[0].Name)
}

func TestCrossOrgAccessIsNotFound(t *testing.T) {
	s, db := setupService(t)
	contacts := seed(t, s)
	dan := contacts["Dan"]

	_, err := s.Get(orgCtx(orgA), dan.ID)
	assert.Equal(t, common.CodeContactNotFound, bizCode(t, err))

	name := "hijacked"
	_, err = s.Update(orgCtx(orgA), dan.ID, &UpdateContactRequest{Name: &name})
	assert.Equal(t, common.CodeContactNotFound, bizCode(t, err))

	err = s.Delete(orgCtx(orgA), dan.ID)
	assert.Equal(t, common.CodeContactNotFound, bizCode(t, err))

	var stored Contact
	require.NoError(t, db.First(&stored, "id = ?", dan.ID).Error)
	assert.Equal(t, "Dan", stored.Name)
}

func TestUpdateAndDelete(t *testing.T) {
	s, _ := setupService(t)
	alice := seed(t, s)["Alice"]
	ctx := orgCtx(orgA)

	status := "CUSTOMER"
	phone := " 555-0100 "
	got, err := s.Update(ctx, alice.ID, &UpdateContactRequest{Status: &status, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, StatusCustomer, got.Status)
	assert.Equal(t, "555-0100", got.Phone)
	assert.Equal(t, orgA, got.OrgID)

	bad := "gone"
	_, err = s.Update(ctx, alice.ID, &UpdateContactRequest{Status: &bad})
	assert.Equal(t, common.CodeInvalidRequest, bizCode(t, err))

	require.NoError(t, s.Delete(ctx, alice.ID))
	_, err = s.Get(ctx, alice.ID)
	assert.Equal(t, common.CodeContactNotFound, bizCode(t, err))
}

func TestStatsByStatusIsScoped(t *testing.T) {
	s, _ := setupService(t)
	seed(t, s)

	stats, err := s.StatsByStatus(orgCtx(orgA))
	require.NoError(t, err)
	assert.Equal(t, []StatusCount{{Status: StatusCustomer, Total: 1}, {Status: StatusLead, Total: 2}}, stats)

	stats, err = s.StatsByStatus(orgCtx(orgB))
	require.NoError(t, err)
	assert.Equal(t, []StatusCount{{Status: StatusChurned, Total: 1}, {Status: StatusLead, Total: 1}}, stats)
}
