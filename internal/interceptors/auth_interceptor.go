package interceptors

import (
	"context"
	"strings"

	"github.com/Dhoini/checkout-service/internal/middleware" // Используем тот же пакет для ключа и валидатора
	"github.com/Dhoini/checkout-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type AuthInterceptor struct {
	log       *logger.Logger
	validator middleware.TokenValidator
	public    map[string]bool
}

// NewAuthInterceptor создает интерцептор. publicMethods (полные имена /pkg.Service/Method
// или префиксы /pkg.Service/) доступны без токена.
func NewAuthInterceptor(log *logger.Logger, validator middleware.TokenValidator, publicMethods ...string) *AuthInterceptor {
	public := make(map[string]bool, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = true
	}
	return &AuthInterceptor{
		log:       log,
		validator: validator,
		public:    public,
	}
}

func (i *AuthInterceptor) isPublic(fullMethod string) bool {
	if i.public[fullMethod] {
		return true
	}
	if idx := strings.LastIndex(fullMethod, "/"); idx > 0 {
		return i.public[fullMethod[:idx+1]]
	}
	return false
}

// authenticate проверяет bearer-токен из метаданных и кладет user id в контекст.
func (i *AuthInterceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		i.log.Warnw("gRPC Auth: missing metadata", "method", method)
		return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		i.log.Warnw("gRPC Auth: missing authorization header", "method", method)
		return nil, status.Errorf(codes.Unauthenticated, "missing authorization header")
	}

	// Ожидаем "Bearer <token>"
	authHeader := authHeaders[0]
	if !strings.HasPrefix(authHeader, "Bearer ") {
		i.log.Warnw("gRPC Auth: invalid authorization header format", "method", method)
		return nil, status.Errorf(codes.Unauthenticated, "invalid authorization header format")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	id, err := i.validator.Validate(ctx, tokenString)
	if err != nil {
		i.log.Warnw("gRPC Auth: invalid token", "method", method, "error", err)
		return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}
	if id.UserID == "" {
		i.log.Warnw("gRPC Auth: user id (sub) missing in token", "method", method)
		return nil, status.Errorf(codes.Unauthenticated, "User ID (sub) missing in token")
	}

	i.log.Debugw("User authenticated via gRPC", "userID", id.UserID, "method", method)
	return context.WithValue(ctx, middleware.ContextUserIDKey, id.UserID), nil
}

// Unary возвращает UnaryServerInterceptor для проверки bearer-токена.
func (i *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if i.isPublic(info.FullMethod) {
			return handler(ctx, req)
		}
		newCtx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// Stream возвращает StreamServerInterceptor (reflection и health Watch - стримы).
func (i *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if i.isPublic(info.FullMethod) {
			return handler(srv, ss)
		}
		newCtx, err := i.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: newCtx})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}
