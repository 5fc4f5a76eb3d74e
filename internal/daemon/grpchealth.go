package daemon

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes the daemon's liveness over the standard gRPC health
// checking protocol (spec.md §4.7 "health.check"), reusing the stock
// implementation and generated stubs shipped inside google.golang.org/grpc
// rather than a hand-authored service.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

// NewHealthServer builds a gRPC server carrying the standard health service
// and marks serviceName as SERVING. It binds nothing; Serve binds the
// listening address.
func NewHealthServer(serviceName string) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)

	gs := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)

	return &HealthServer{grpcServer: gs, health: hs}
}

// Serve binds addr and blocks serving gRPC health checks until the listener
// is closed via Stop.
func (h *HealthServer) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.listener = ln
	return h.grpcServer.Serve(ln)
}

// SetServing updates the reported status for serviceName.
func (h *HealthServer) SetServing(serviceName string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(serviceName, status)
}

// Stop gracefully stops the gRPC health server.
func (h *HealthServer) Stop() {
	h.grpcServer.GracefulStop()
}
