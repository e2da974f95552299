package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"crmhub/internal/tenant"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormLogger "gorm.io/gorm/logger"
)

func TestGormZapLoggerTraceIncludesScope(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &GormZapLogger{ZapLogger: zap.New(core), LogLevel: gormLogger.Info, IgnoreRecordNotFoundError: true}

	ctx := tenant.WithContext(context.Background(), tenant.Context{OrgID: "org-1"})
	l.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "org-1", entries[0].ContextMap()["org_id"])
		assert.Equal(t, "SELECT 1", entries[0].ContextMap()["sql"])
	}
}

func TestGormZapLoggerIgnoresNotFound(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &GormZapLogger{ZapLogger: zap.New(core), LogLevel: gormLogger.Warn, IgnoreRecordNotFoundError: true}

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT", 0 }, gormLogger.ErrRecordNotFound)
	assert.Empty(t, logs.All())

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT", 0 }, errors.New("boom"))
	assert.Equal(t, 1, logs.FilterMessage("SQL 执行错误").Len())
}

func TestGormZapLoggerSlowQuery(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &GormZapLogger{ZapLogger: zap.New(core), LogLevel: gormLogger.Warn, SlowThreshold: time.Millisecond}

	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT", 0 }, nil)
	assert.Equal(t, 1, logs.FilterMessage("SQL 慢查询").Len())
}
