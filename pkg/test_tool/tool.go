package testtool

import (
	"context"
	"fmt"
	"net"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Container 測試容器與對外位址
type Container struct {
	testcontainers.Container
	Host string
	Port string
}

// Addr host:port
func (c *Container) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// StartService 啟動 image 並等待 port 可連線, port 例如 "27017/tcp"
func StartService(ctx context.Context, image string, port nat.Port) (*Container, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{string(port)},
			WaitingFor:   wait.ForListeningPort(port),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", image, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, err
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, err
	}
	return &Container{Container: c, Host: host, Port: mapped.Port()}, nil
}

// StartMongo mongo:7, URI 給 database.NewMongoDB
func StartMongo(ctx context.Context) (*Container, string, error) {
	c, err := StartService(ctx, "mongo:7", "27017/tcp")
	if err != nil {
		return nil, "", err
	}
	return c, "mongodb://" + c.Addr(), nil
}

// StartRedis redis:7, cross-instance relay 與 presence 用
func StartRedis(ctx context.Context) (*Container, error) {
	return StartService(ctx, "redis:7", "6379/tcp")
}
