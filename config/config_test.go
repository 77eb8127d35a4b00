package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"HOST", "PORT", "STATIC_DIR", "AUDIO_DIR", "COVERS_DIR", "TEMPLATES_DIR", "DATA_FILE",
	"UPLOAD_MAX_VALUE_KB", "CATALOG_WATCH", "LOG_LEVEL", "LOG_FILE",
	"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_CATALOG_TTL",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_USE_SSL", "MINIO_REGION",
}

// clearEnv unsets every key Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
	require.Equal(t, "static", cfg.StaticDir)
	require.Equal(t, filepath.Join("static", "audio_files"), cfg.AudioDir)
	require.Equal(t, filepath.Join("static", "assets"), cfg.CoversDir)
	require.Equal(t, "templates", cfg.TemplatesDir)
	require.Equal(t, "music_data.json", cfg.DataFile)
	require.Equal(t, int64(1024<<10), cfg.MaxValueBytes)
	require.False(t, cfg.CatalogWatch)
	require.Equal(t, "info", cfg.LogLevel)
	require.False(t, cfg.RedisEnabled())
	require.False(t, cfg.MinioEnabled())
	require.Equal(t, 30, cfg.RedisCatalogTTL)
	require.Equal(t, "musicbox", cfg.MinioBucket)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("STATIC_DIR", "/srv/public")
	t.Setenv("UPLOAD_MAX_VALUE_KB", "4")
	t.Setenv("CATALOG_WATCH", "true")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_USE_SSL", " 1 ")

	cfg := Load()
	require.Equal(t, "0.0.0.0:9000", cfg.Addr())
	require.Equal(t, filepath.Join("/srv/public", "audio_files"), cfg.AudioDir)
	require.Equal(t, filepath.Join("/srv/public", "assets"), cfg.CoversDir)
	require.Equal(t, int64(4<<10), cfg.MaxValueBytes)
	require.True(t, cfg.CatalogWatch)
	require.True(t, cfg.RedisEnabled())
	require.Equal(t, 3, cfg.RedisDB)
	require.True(t, cfg.MinioEnabled())
	require.True(t, cfg.MinioUseSSL)
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_DB", "one")
	t.Setenv("CATALOG_WATCH", "maybe")

	cfg := Load()
	require.Equal(t, 0, cfg.RedisDB)
	require.False(t, cfg.CatalogWatch)
}
