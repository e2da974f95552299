package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  sqlite_path: /tmp/crm.db\n")

	cfg, err := Load("test", path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, []string{"SUPER_ADMIN"}, cfg.Tenant.ExemptRoles)
	assert.Equal(t, "/tmp/crm.db", cfg.Database.GetDSN())
	assert.False(t, cfg.Mongo.Enabled())
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("APP_SERVER_PORT", "9100")

	cfg, err := Load("test", path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Contains(t, cfg.Database.GetDSN(), "sslmode=disable")
}

func TestValidate(t *testing.T) {
	_, err := Load("test", writeConfig(t, "database:\n  driver: mysql\n"))
	assert.Error(t, err)

	_, err = Load("test", writeConfig(t, "database:\n  driver: sqlite\n"))
	assert.Error(t, err)
}
