package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port            string        `mapstructure:"port"`
	GRPCHealthPort  string        `mapstructure:"grpc_health_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	JWT       JWTConfig       `mapstructure:"jwt"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`

	MongoDB    DatabaseConfig `mapstructure:"mongo"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	RabbitMQ   DatabaseConfig `mapstructure:"rabbitmq"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	SendGrid   SendGridConfig `mapstructure:"sendgrid"`
}

// JWTConfig jwt verify setting
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// WebsocketConfig realtime gateway tuning
type WebsocketConfig struct {
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	MaxMalformedFrame int           `mapstructure:"max_malformed_frames"`
	FramesPerSecond   float64       `mapstructure:"frames_per_second"`
	FrameBurst        int           `mapstructure:"frame_burst"`
}

// BridgeConfig case event bridge setting
type BridgeConfig struct {
	QueueSize   int           `mapstructure:"queue_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetrySpec   string        `mapstructure:"retry_spec"`
	DedupeTTL   time.Duration `mapstructure:"dedupe_ttl"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	RedisDB  int           `mapstructure:"redis_db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// KafkaConfig case event topic setting
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	GroupID       string   `mapstructure:"group_id"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// MinIOConfig attachment bucket setting
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// SendGridConfig outbound email setting
type SendGridConfig struct {
	APIKey    string `mapstructure:"api_key"`
	FromName  string `mapstructure:"from_name"`
	FromEmail string `mapstructure:"from_email"`
	Queue     string `mapstructure:"queue"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}
