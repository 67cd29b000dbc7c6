package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("APP_MODE", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("TZ_NAME", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "3306", cfg.Database.Port)
	assert.Equal(t, "Africa/Abidjan", cfg.Location.String())
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "0 2 * * *", cfg.Scheduler.SweepSpec)
	assert.Equal(t, 30, cfg.Scheduler.ReminderDays)
	assert.Equal(t, 10*time.Second, cfg.Mail.Timeout)
}

func TestFromEnv_ProdUsesPrefixedDatabaseSettings(t *testing.T) {
	t.Setenv("APP_MODE", "prod")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("PROD_DB_HOST", "db.internal")
	t.Setenv("PROD_DB_PORT", "")
	t.Setenv("DEV_DB_HOST", "localhost")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "json", cfg.Log.Format)

	dsn := BuildDSN(cfg.Database)
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "TimeZone=UTC")
}

func TestFromEnv_RejectsInvalidValues(t *testing.T) {
	t.Setenv("APP_MODE", "dev")
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("DUES_REMINDER_DAYS", "soon")
	t.Setenv("MAIL_TIMEOUT", "-1s")
	t.Setenv("TZ_NAME", "Mars/Olympus")

	_, err := FromEnv()
	require.Error(t, err)
	for _, key := range []string{"DB_DRIVER", "DUES_REMINDER_DAYS", "MAIL_TIMEOUT", "TZ_NAME"} {
		assert.True(t, strings.Contains(err.Error(), key), key)
	}
}

func TestFromEnv_RejectsUnknownMode(t *testing.T) {
	t.Setenv("APP_MODE", "staging")

	_, err := FromEnv()
	assert.ErrorContains(t, err, "APP_MODE")
}

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("/tmp/asso.db")
	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/asso.db?"))
	assert.Contains(t, dsn, "foreign_keys(1)")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.NotContains(t, dsn, "_time_format", "the driver ignores every parameter after _time_format")
}
