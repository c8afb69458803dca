package config

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvInfo 服務啟動資訊 from .env
type EnvInfo struct {
	ChatService     string
	ChatServicePort string
	ChatYAMLPath    string
	ChatLogPath     string
}

// EnvConfig 服務啟動資訊
var (
	EnvConfig = initEnv()
	envConfig EnvInfo
	once      sync.Once
	env       string
)

func initEnv() EnvInfo {
	once.Do(func() {
		path, err := GetPath(".env", 5)
		if err != nil {
			log.Printf("Warning: Could not get .env path: %v", err)
		} else if err := godotenv.Load(path); err != nil {
			log.Printf("Warning: Could not load .env file: %v", err)
		}

		env = os.Getenv("ENV")

		envConfig = EnvInfo{
			ChatService:     getEnv("CHAT_SERVICE", "chat_service"),
			ChatServicePort: getEnv("CHAT_SERVICE_PORT", "8083"),
			ChatYAMLPath:    getEnv("CHAT_SERVICE_YAML", "./config"),
			ChatLogPath:     getEnv("CHAT_SERVICE_LOG", "./logs"),
		}
	})

	return envConfig
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// IsProduction check run env
func IsProduction() bool {
	return env == "production"
}

// IsLocal check run env
func IsLocal() bool {
	return env == "local"
}

// LoadConfig 讀取 <configPath>/<serviceName>.yaml, 先把 ${VAR} 換成環境變數再解析
func LoadConfig[T any](serviceName string, configPath string) (T, error) {
	var cfg T

	v := viper.New()
	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", serviceName, err)
	}

	rawConfig, err := os.ReadFile(v.ConfigFileUsed())
	if err != nil {
		return cfg, fmt.Errorf("read raw config %s: %w", v.ConfigFileUsed(), err)
	}

	expanded := os.ExpandEnv(string(rawConfig))
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return cfg, fmt.Errorf("read expanded config: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadChatConfig load chat_service.yaml and fill defaults for unset tuning values
func LoadChatConfig(serviceName, configPath string) (Chat, error) {
	cfg, err := LoadConfig[Chat](serviceName, configPath)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fill zero values
func (c *Chat) ApplyDefaults() {
	if c.Port == "" {
		c.Port = EnvConfig.ChatServicePort
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}

	ws := &c.Websocket
	if ws.PingInterval <= 0 {
		ws.PingInterval = 30 * time.Second
	}
	if ws.PongWait <= ws.PingInterval {
		ws.PongWait = ws.PingInterval * 2
	}
	if ws.WriteWait <= 0 {
		ws.WriteWait = 10 * time.Second
	}
	if ws.SendBuffer <= 0 {
		ws.SendBuffer = 64
	}
	if ws.MaxMalformedFrame <= 0 {
		ws.MaxMalformedFrame = 5
	}
	if ws.FramesPerSecond <= 0 {
		ws.FramesPerSecond = 20
	}
	if ws.FrameBurst <= 0 {
		ws.FrameBurst = 40
	}

	b := &c.Bridge
	if b.QueueSize <= 0 {
		b.QueueSize = 256
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 5
	}
	if b.RetrySpec == "" {
		b.RetrySpec = "@every 1m"
	}
	if b.DedupeTTL <= 0 {
		b.DedupeTTL = 24 * time.Hour
	}

	if c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = 10 * time.Minute
	}
	if c.MinIO.PresignExpiry <= 0 {
		c.MinIO.PresignExpiry = 15 * time.Minute
	}
	if c.SendGrid.Queue == "" {
		c.SendGrid.Queue = "chat.email"
	}
	// ${KAFKA_BROKER} 未設定時會展開成空字串
	brokers := c.Kafka.Brokers[:0]
	for _, b := range c.Kafka.Brokers {
		if strings.TrimSpace(b) != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "case-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "chat_service"
	}
}

// GetRedisSetting 解析 REDIS_SENTINEL*_IP / _PORT, 回傳 master 名稱與哨兵位址
func GetRedisSetting() (string, []string) {
	var sentinelAddrs []string
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		if strings.HasPrefix(key, "REDIS_SENTINEL") && strings.HasSuffix(key, "_IP") {
			if port := os.Getenv(strings.Replace(key, "_IP", "_PORT", 1)); port != "" {
				sentinelAddrs = append(sentinelAddrs, fmt.Sprintf("%s:%s", value, port))
			}
		}
	}

	return getEnv("REDIS_MASTER_NAME", "mymaster"), sentinelAddrs
}

// GetPath use fileName loop maxCount find file path
func GetPath(fileName string, maxCount int) (string, error) {
	path := "./" + fileName

	for i := 0; i < maxCount; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = "../" + path
	}
	return "", errors.New(fileName + " can't find path")
}
