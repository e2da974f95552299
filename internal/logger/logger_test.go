package logger

import (
	"context"
	"testing"

	"crmhub/internal/tenant"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRequestAndTenantFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetForTest(zap.New(core))
	t.Cleanup(func() { SetForTest(nil) })

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = tenant.WithContext(ctx, tenant.Context{UserID: "u-1", OrgID: "org-1"})
	WithContext(ctx).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "org-1", fields["org_id"])
		assert.Equal(t, "u-1", fields["user_id"])
	}
}

func TestWithContextWithoutScope(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetForTest(zap.New(core))
	t.Cleanup(func() { SetForTest(nil) })

	WithContext(context.Background()).Info("plain")
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestInitConsole(t *testing.T) {
	t.Cleanup(func() { SetForTest(nil) })
	assert.NoError(t, Init("debug", "console", "stdout"))
	assert.NotNil(t, Get())
}
