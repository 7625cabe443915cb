package config

import (
	"fmt"
	"os"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config HouseOps 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	HTTP struct {
		Addr string
	}

	// 推送网关配置（Expo push API）
	Push struct {
		GatewayURL string
	}

	// 报警管线配置
	Alert struct {
		// 库存变更事件流（Redis Streams）
		Stream        string
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int64

		// 同状态报警冷却窗口（分钟）
		CooldownMinutes int

		// 报警 feed 变更通知频道前缀，如 "houseops:feed:"
		FeedChannelPrefix string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "houseops")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Push.GatewayURL = getEnv("PUSH_GATEWAY_URL", "https://exp.host")

	cfg.Alert.Stream = getEnv("ALERT_STREAM", "houseops:stock:changes")
	cfg.Alert.ConsumerGroup = getEnv("ALERT_CONSUMER_GROUP", "houseops-alert")
	cfg.Alert.ConsumerName = getEnv("ALERT_CONSUMER_NAME", "alert-worker-1")
	cfg.Alert.BatchSize = 10
	cfg.Alert.CooldownMinutes = 10
	cfg.Alert.FeedChannelPrefix = getEnv("FEED_CHANNEL_PREFIX", "houseops:feed:")

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
