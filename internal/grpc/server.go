// Package grpcserver поднимает gRPC-сервер сервиса: стандартный grpc.health.v1.Health
// со статусом, который периодически обновляется по результатам проверки зависимостей.
package grpcserver

import (
	"context"
	"sync"
	"time"

	"github.com/Dhoini/checkout-service/internal/interceptors"
	"github.com/Dhoini/checkout-service/internal/middleware"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName - имя сервиса в health-протоколе.
const ServiceName = "checkout.v1.CheckoutService"

// Pinger - зависимость, доступность которой влияет на статус SERVING.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	checks map[string]Pinger
	log    *logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewServer создает gRPC-сервер. validator может быть nil, тогда аутентификация
// не включается. С валидатором без токена доступен только health.
func NewServer(log *logger.Logger, validator middleware.TokenValidator, checks map[string]Pinger) *Server {
	unary := []grpc.UnaryServerInterceptor{interceptors.UnaryLogger(log)}
	var stream []grpc.StreamServerInterceptor
	if validator != nil {
		auth := interceptors.NewAuthInterceptor(log, validator, "/grpc.health.v1.Health/")
		unary = append(unary, auth.Unary())
		stream = append(stream, auth.Stream())
	}

	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{
		grpc:   gs,
		health: hs,
		checks: checks,
		log:    log,
		stop:   make(chan struct{}),
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// GRPC возвращает нижележащий *grpc.Server (для Serve и регистрации сервисов).
func (s *Server) GRPC() *grpc.Server {
	return s.grpc
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Refresh проверяет зависимости и выставляет статус.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check.PingContext(pingCtx)
		cancel()
		if err != nil {
			s.log.Warnw("gRPC health: dependency unavailable", "dependency", name, "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setStatus(st)
	return st
}

// Watch обновляет статус с заданным интервалом до вызова Stop.
func (s *Server) Watch(interval time.Duration) {
	go func() {
		s.Refresh(context.Background())
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Refresh(context.Background())
			}
		}
	}()
}

// Stop переводит сервис в NOT_SERVING и корректно останавливает сервер.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.health.Shutdown()
		s.grpc.GracefulStop()
	})
}
