package database

import (
	"fmt"
	"net"

	"case_chat_service/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer grpc health endpoint for the orchestrator
type HealthServer struct {
	Server   *grpc.Server
	Health   *health.Server
	listener net.Listener
}

// NewHealthServer listen on port and register the standard grpc health service.
// Serving status starts as NOT_SERVING until SetServing is called.
func NewHealthServer(port string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("grpc health listen :%s: %w", port, err)
	}

	s := grpc.NewServer()
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, h)

	return &HealthServer{Server: s, Health: h, listener: lis}, nil
}

// Serve blocks until Stop
func (h *HealthServer) Serve() {
	logger.Log.Info("grpc health server listening", zap.String("addr", h.listener.Addr().String()))
	if err := h.Server.Serve(h.listener); err != nil {
		logger.Log.Errorf("grpc health server stopped", err)
	}
}

// SetServing flip overall status
func (h *HealthServer) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.Health.SetServingStatus("", status)
}

// Stop mark not serving and gracefully stop
func (h *HealthServer) Stop() {
	h.Health.Shutdown()
	h.Server.GracefulStop()
}

// Addr listening address
func (h *HealthServer) Addr() string {
	return h.listener.Addr().String()
}
