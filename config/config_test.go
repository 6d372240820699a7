package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndJSON(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, `{
		"app": {"AppPort": "9090", "JWTSecret": "from-file", "AllowedOrigins": ["https://a.example"]},
		"database": {"Driver": "postgres", "DBName": "attendance"},
		"attendance": {"BasePoints": 10, "BonusRules": "5:2", "Timezone": "Asia/Tokyo"}
	}`))
	Reset()
	t.Cleanup(Reset)

	cfg := Load()
	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, []string{"https://a.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, "attendance", cfg.DBName)
	assert.Equal(t, 10, cfg.AttendanceBasePoints)
	assert.Equal(t, "5:2", cfg.AttendanceBonusRules)
	assert.Equal(t, 300, cfg.StatsCacheTTLSec)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, `{"app": {"JWTSecret": "from-file"}, "database": {"Driver": "postgres"}}`))
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("ATTENDANCE_BONUS_RULES", "7:2,30:3,100:5")
	t.Setenv("STATS_CACHE_TTL_SEC", "60")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	Reset()
	t.Cleanup(Reset)

	cfg := Get()
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, "7:2,30:3,100:5", cfg.AttendanceBonusRules)
	assert.Equal(t, 60, cfg.StatsCacheTTLSec)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "Local", cfg.AttendanceTimezone)
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite"} {
		d, err := Dialector(AppConfig{DBDriver: driver, DBName: "rewards"})
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	_, err := Dialector(AppConfig{DBDriver: "oracle"})
	assert.Error(t, err)
}
