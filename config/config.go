package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Public route prefixes under which stored files are exposed.
const (
	AudioRoutePrefix = "/static/audio_files/"
	CoverRoutePrefix = "/static/assets/"
)

// Config stores the application configuration.
type Config struct {
	Host         string
	Port         string
	StaticDir    string // Root directory for serving static files
	AudioDir     string // Uploaded audio files: StaticDir/audio_files
	CoversDir    string // Uploaded cover images: StaticDir/assets
	TemplatesDir string // Landing and upload pages
	DataFile     string // JSON document holding the catalog

	MaxValueBytes int64 // Upper bound for the text fields of an upload form; files are streamed to disk
	CatalogWatch  bool  // Reload the catalog when DataFile changes on disk

	LogLevel string
	LogFile  string

	// Redis配置，REDIS_HOST 为空时不启用缓存
	RedisHost       string
	RedisPort       string
	RedisPassword   string
	RedisDB         int
	RedisCatalogTTL int // seconds

	// MinIO配置，MINIO_ENDPOINT 为空时不启用镜像
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// RedisEnabled 是否配置了 Redis
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// MinioEnabled 是否配置了 MinIO
func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != ""
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	staticBase := getEnv("STATIC_DIR", "static")

	return &Config{
		Host:          getEnv("HOST", "0.0.0.0"),
		Port:          getEnv("PORT", "8080"),
		StaticDir:     staticBase,
		AudioDir:      getEnv("AUDIO_DIR", filepath.Join(staticBase, "audio_files")),
		CoversDir:     getEnv("COVERS_DIR", filepath.Join(staticBase, "assets")),
		TemplatesDir:  getEnv("TEMPLATES_DIR", "templates"),
		DataFile:      getEnv("DATA_FILE", "music_data.json"),
		MaxValueBytes: int64(getEnvInt("UPLOAD_MAX_VALUE_KB", 1024)) << 10,
		CatalogWatch:  getEnvBool("CATALOG_WATCH", false),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),

		RedisHost:       getEnv("REDIS_HOST", ""),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:         getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库
		RedisCatalogTTL: getEnvInt("REDIS_CATALOG_TTL", 30),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "musicbox"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
	}
}
