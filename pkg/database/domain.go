package database

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Connection definition connect string + retry policy
type Connection struct {
	ConnectStr string

	RetryCount    int
	RetryInterval time.Duration
}

// MongoDB definition mongo db
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// MinIOConnection definition minio
type MinIOConnection struct {
	Endpoint   string
	User       string
	Password   string
	BucketName string
	UseSSL     bool

	RetryCount    int
	RetryInterval time.Duration
}

// KafkaConnection definition kafka consumer
type KafkaConnection struct {
	Brokers []string
	Topic   string
	GroupID string

	RetryCount    int
	RetryInterval time.Duration
}

// MongoURI build mongodb connect string
func MongoURI(user, password, host string, port int) string {
	if user == "" {
		return fmt.Sprintf("mongodb://%s:%d", host, port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d", user, password, host, port)
}

// PostgresDSN build postgres connect string
func PostgresDSN(user, password, host string, port int, db string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", user, password, host, port, db)
}

// AMQPURI build rabbitmq connect string
func AMQPURI(user, password, host string, port int) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", user, password, host, port)
}

func retryInterval(seconds int) time.Duration {
	if seconds <= 0 {
		return time.Second
	}
	return time.Duration(seconds) * time.Second
}

// NewConnection 將設定中的秒數轉成 Connection
func NewConnection(connectStr string, retryCount, retrySeconds int) Connection {
	if retryCount <= 0 {
		retryCount = 1
	}
	return Connection{
		ConnectStr:    connectStr,
		RetryCount:    retryCount,
		RetryInterval: retryInterval(retrySeconds),
	}
}
