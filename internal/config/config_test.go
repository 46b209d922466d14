package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// unsetEnv clears variables for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "APP_ENV", "PORT", "JOBS_MODE", "LINK_TTL", "ADMIN_EMAIL", "AUTHZ_ADMIN_EMAILS", "AUTO_MIGRATE")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, ":8080", cfg.Addr())
	require.Equal(t, JobsInline, cfg.JobsMode)
	require.Equal(t, 168*time.Hour, cfg.LinkTTL)
	require.True(t, cfg.IsDev())
	require.True(t, cfg.ShouldMigrate())
	require.Empty(t, cfg.AdminEmails)
}

func TestLoadReadsEnvironment(t *testing.T) {
	unsetEnv(t, "AUTO_MIGRATE")
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("JOBS_MODE", "ASYNQ")
	t.Setenv("DEFAULT_TAX_PERCENT", "16")
	t.Setenv("ADMIN_EMAIL", "dueña@taller.co")
	t.Setenv("AUTHZ_ADMIN_EMAILS", "socio@taller.co")
	t.Setenv("AUTHZ_PREMIUM_EMAILS", "a@x.co,b@x.co")
	t.Setenv("LINK_TTL", "2h")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, JobsAsynq, cfg.JobsMode)
	require.Equal(t, 16.0, cfg.DefaultTaxPercent)
	require.Equal(t, 2*time.Hour, cfg.LinkTTL)
	require.Equal(t, []string{"socio@taller.co", "dueña@taller.co"}, cfg.AdminEmails)
	require.Equal(t, []string{"a@x.co", "b@x.co"}, cfg.PremiumEmails)
	require.False(t, cfg.IsDev())
	require.False(t, cfg.ShouldMigrate())
}

func TestLoadRejectsBadValues(t *testing.T) {
	unsetEnv(t, "LINK_TTL", "DEFAULT_TAX_PERCENT")
	t.Setenv("JOBS_MODE", "kafka")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("JOBS_MODE", "inline")
	t.Setenv("DEFAULT_TAX_PERCENT", "120")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("DEFAULT_TAX_PERCENT", "19")
	t.Setenv("LINK_TTL", "soon")
	_, err = Load()
	require.Error(t, err)
}
