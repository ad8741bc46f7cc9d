package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config 监控服务配置
type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// 监控服务特定配置
	Monitor struct {
		// Redis 缓存配置
		Cache struct {
			SessionKeyPrefix       string // 会话缓存键前缀，如 "drivesafe:session:"
			DetectionSuffix        string // 检测采样缓存键后缀，如 ":detection"
			RiskSuffix             string // 风险状态缓存键后缀，如 ":risk"
			RiskTTL                int    // 风险状态 TTL（秒），默认 30 秒
			EmergencyChannelPrefix string // 紧急通知发布频道前缀，如 "drivesafe:emergency:"
		}

		SampleIntervalMs    int // 采样轮询间隔（毫秒），默认 200（5 次/秒）
		AlertCooldownMs     int // 同类型报警冷却窗口（毫秒），默认 5000
		AlertLogCapacity    int // 报警日志容量，默认 100
		DisplayCountdownSec int // 展示报警自动确认倒计时（秒），默认 10
		SOSCountdownSec     int // SOS 发送倒计时（秒），默认 10
		CriticalStreakLimit int // 连续 critical 采样自动触发 SOS 的阈值，默认 15
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（.env 文件存在时先加载，环境变量优先）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "drivesafe")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Monitor.Cache.SessionKeyPrefix = getEnv("CACHE_SESSION_PREFIX", "drivesafe:session:")
	cfg.Monitor.Cache.DetectionSuffix = ":detection"
	cfg.Monitor.Cache.RiskSuffix = ":risk"
	cfg.Monitor.Cache.RiskTTL = getEnvInt("CACHE_RISK_TTL", 30)
	cfg.Monitor.Cache.EmergencyChannelPrefix = getEnv("EMERGENCY_CHANNEL_PREFIX", "drivesafe:emergency:")

	cfg.Monitor.SampleIntervalMs = getEnvInt("SAMPLE_INTERVAL_MS", 200)
	cfg.Monitor.AlertCooldownMs = getEnvInt("ALERT_COOLDOWN_MS", 5000)
	cfg.Monitor.AlertLogCapacity = getEnvInt("ALERT_LOG_CAPACITY", 100)
	cfg.Monitor.DisplayCountdownSec = getEnvInt("DISPLAY_COUNTDOWN_SEC", 10)
	cfg.Monitor.SOSCountdownSec = getEnvInt("SOS_COUNTDOWN_SEC", 10)
	cfg.Monitor.CriticalStreakLimit = getEnvInt("CRITICAL_STREAK_LIMIT", 15)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
