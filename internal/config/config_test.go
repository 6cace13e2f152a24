package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CLINIC_TIMEZONE", "UTC")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Contains(t, cfg.Database.DSN, "@tcp(localhost:3306)/clinic")
	assert.Equal(t, 30, cfg.Clinic.DefaultDurationMinutes)
	assert.True(t, cfg.Clinic.StrictTransitions())
	assert.Equal(t, time.UTC, cfg.Clinic.Location)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Origins)
}

func TestLoadConfigPostgresDSN(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USERNAME", "clinic")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "host=localhost user=clinic password= dbname=clinic port=5432 sslmode=disable", cfg.Database.DSN)
}

func TestLoadConfigCollectsErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("STATUS_TRANSITIONS", "anything")
	t.Setenv("CLINIC_TIMEZONE", "Mars/Olympus")

	_, err := LoadConfig()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DB_DRIVER")
	assert.Contains(t, msg, "JWT_SECRET")
	assert.Contains(t, msg, "STATUS_TRANSITIONS")
	assert.Contains(t, msg, "CLINIC_TIMEZONE")
}

func TestGetEnvSlice(t *testing.T) {
	t.Setenv("ORIGIN", " http://a.test , ,http://b.test")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, getEnvSlice("ORIGIN", nil))
}

func TestPermissiveTransitions(t *testing.T) {
	t.Setenv("STATUS_TRANSITIONS", "PERMISSIVE")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Clinic.StrictTransitions())
}
