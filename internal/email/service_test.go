package email

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crmhub/internal/common"
	"crmhub/internal/security"
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
	dsn := fmt.Sprintf("file:email_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Use(tenant.NewPlugin(zap.NewNop())))
	require.NoError(t, db.AutoMigrate(&Config{}))
	require.NoError(t, tenant.Attach(db, &Config{}, tenant.ScopeConfig{}))
	cipher, err := security.NewCipher("test-seed")
	require.NoError(t, err)
	return NewService(db, cipher), db
}

func orgCtx(orgID string) context.Context {
	return tenant.WithContext(context.Background(), tenant.Context{UserID: "u-1", OrgID: orgID, Role: "ADMIN"})
}

func request(host string) *UpsertConfigRequest {
	return &UpsertConfigRequest{
		Host: host, Port: 587, Username: "mailer", Password: "s3cret",
		FromAddress: "noreply@example.com", FromName: "CRM",
	}
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	s, db := setupService(t)
	ctx := orgCtx(orgA)

	_, err := s.Get(ctx)
	var bizErr *common.BusinessError
	require.ErrorAs(t, err, &bizErr)
	assert.Equal(t, common.CodeNotFound, bizErr.Code)

	created, err := s.Upsert(ctx, request("smtp.a.test"))
	require.NoError(t, err)
	assert.Equal(t, orgA, created.OrgID)
	assert.True(t, created.UseTLS)
	assert.NotEqual(t, "s3cret", created.Password, "password is stored encrypted")

	noTLS := false
	req := request("smtp2.a.test")
	req.Password = ""
	req.UseTLS = &noTLS
	updated, err := s.Upsert(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "smtp2.a.test", updated.Host)
	assert.Equal(t, created.Password, updated.Password, "empty password keeps the stored one")
	assert.False(t, updated.UseTLS)

	plain, err := s.SMTPPassword(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)

	var count int64
	require.NoError(t, db.Model(&Config{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConfigsAreIsolatedPerOrg(t *testing.T) {
	s, _ := setupService(t)
	_, err := s.Upsert(orgCtx(orgA), request("smtp.a.test"))
	require.NoError(t, err)
	_, err = s.Upsert(orgCtx(orgB), request("smtp.b.test"))
	require.NoError(t, err)

	a, err := s.Get(orgCtx(orgA))
	require.NoError(t, err)
	assert.Equal(t, "smtp.a.test", a.Host)

	b, err := s.Get(orgCtx(orgB))
	require.NoError(t, err)
	assert.Equal(t, "smtp.b.test", b.Host)

	view := NewConfigView(a)
	assert.True(t, view.HasPassword)
}

func TestUpsertRequiresOrg(t *testing.T) {
	s, _ := setupService(t)
	_, err := s.Upsert(context.Background(), request("smtp.test"))
	var bizErr *common.BusinessError
	require.ErrorAs(t, err, &bizErr)
	assert.Equal(t, common.CodeInvalidRequest, bizErr.Code)
}

func TestGetWithoutOrgIsNotFound(t *testing.T) {
	s, _ := setupService(t)
	_, err := s.Upsert(orgCtx(orgA), request("smtp.a.test"))
	require.NoError(t, err)

	superCtx := tenant.WithContext(context.Background(), tenant.Context{UserID: "u-root", Role: "SUPER_ADMIN"})
	_, err = s.Get(superCtx)
	var bizErr *common.BusinessError
	require.ErrorAs(t, err, &bizErr)
	assert.Equal(t, common.CodeNotFound, bizErr.Code)
}

func TestVerifyDialsWithDecryptedPassword(t *testing.T) {
	s, _ := setupService(t)
	ctx := orgCtx(orgA)

	var bizErr *common.BusinessError
	require.ErrorAs(t, s.Verify(ctx), &bizErr)
	assert.Equal(t, common.CodeNotFound, bizErr.Code)

	_, err := s.Upsert(ctx, request("smtp.a.test"))
	require.NoError(t, err)

	var gotHost, gotPassword string
	s.dial = func(cfg *Config, password string) error {
		gotHost, gotPassword = cfg.Host, password
		return nil
	}
	require.NoError(t, s.Verify(ctx))
	assert.Equal(t, "smtp.a.test", gotHost)
	assert.Equal(t, "s3cret", gotPassword)

	s.dial = func(*Config, string) error { return fmt.Errorf("535 authentication failed") }
	err = s.Verify(ctx)
	require.ErrorAs(t, err, &bizErr)
	assert.Equal(t, common.CodeSMTPUnreachable, bizErr.Code)
	assert.Contains(t, bizErr.Message, "535")
}
