package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values are read from the environment (optionally via a .env file) with defaults.
type Config struct {
	ServerPort string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// 音频输出配置
	SampleRate   int
	ChannelCount int

	// 解码缓冲缓存配置
	// DeviceMemoryGB 是粗粒度的设备内存提示，用来缩放缓存上限；
	// 显式设置 CacheMaxEntries / CacheMaxBytes 时以显式值为准
	DeviceMemoryGB  int
	CacheMaxEntries int
	CacheMaxBytes   int64

	// 解码并发配置
	LoadConcurrency   int
	DecodeConcurrency int

	// 触发重试配置
	TriggerMaxRetries    int
	EnableSilentFallback bool

	// 默认淡出时长（秒）
	DefaultFadeSeconds float64

	// 素材导入目录（fsnotify 监听）
	IngestWatchDir string

	LogLevel string
	LogPath  string
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

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// CacheLimitsForMemory 根据设备内存提示计算缓存上限
// 提示缺失时按 4GB 档处理
func CacheLimitsForMemory(deviceMemoryGB int) (maxEntries int, maxBytes int64) {
	switch {
	case deviceMemoryGB >= 8:
		return 200, 512 << 20
	case deviceMemoryGB >= 4:
		return 100, 256 << 20
	case deviceMemoryGB >= 2:
		return 50, 128 << 20
	case deviceMemoryGB > 0:
		return 25, 64 << 20
	default:
		return 100, 256 << 20
	}
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() 不会覆盖已存在的环境变量
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	deviceMemoryGB := getEnvInt("PAD_DEVICE_MEMORY_GB", 0)
	defaultEntries, defaultBytes := CacheLimitsForMemory(deviceMemoryGB)

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "paddeck"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "paddeck"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		SampleRate:   getEnvInt("AUDIO_SAMPLE_RATE", 48000),
		ChannelCount: getEnvInt("AUDIO_CHANNELS", 2),

		DeviceMemoryGB:  deviceMemoryGB,
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", defaultEntries),
		CacheMaxBytes:   int64(getEnvInt("CACHE_MAX_MB", int(defaultBytes>>20))) << 20,

		LoadConcurrency:   getEnvInt("DECODE_LOAD_CONCURRENCY", 4),
		DecodeConcurrency: getEnvInt("DECODE_CPU_CONCURRENCY", 2),

		TriggerMaxRetries:    getEnvInt("TRIGGER_MAX_RETRIES", 3),
		EnableSilentFallback: getEnvBool("ENABLE_SILENT_FALLBACK", false),

		DefaultFadeSeconds: 3.0,

		IngestWatchDir: getEnv("INGEST_WATCH_DIR", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
