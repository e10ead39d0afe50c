package interceptors

import (
	"context"
	"errors"
	"testing"

	"github.com/Dhoini/checkout-service/internal/middleware"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type stubValidator struct {
	tokens map[string]*middleware.Identity
}

func (v stubValidator) Validate(_ context.Context, token string) (*middleware.Identity, error) {
	id, ok := v.tokens[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return id, nil
}

func newAuth() *AuthInterceptor {
	v := stubValidator{tokens: map[string]*middleware.Identity{
		"good":   {UserID: "user-1", Email: "a@example.com"},
		"no-sub": {Email: "b@example.com"},
	}}
	return NewAuthInterceptor(logger.Nop(), v, "/grpc.health.v1.Health/")
}

func echoUserID(ctx context.Context, _ interface{}) (interface{}, error) {
	id, _ := ctx.Value(middleware.ContextUserIDKey).(string)
	return id, nil
}

func withAuth(value string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", value))
}

func TestAuthInterceptorAcceptsBearerToken(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/checkout.v1.CheckoutService/Get"}
	resp, err := newAuth().Unary()(withAuth("Bearer good"), nil, info, echoUserID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", resp)
}

func TestAuthInterceptorRejects(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/checkout.v1.CheckoutService/Get"}
	cases := map[string]context.Context{
		"no metadata":   context.Background(),
		"no header":     metadata.NewIncomingContext(context.Background(), metadata.MD{}),
		"wrong scheme":  withAuth("Basic abc"),
		"unknown token": withAuth("Bearer bad"),
		"missing sub":   withAuth("Bearer no-sub"),
	}
	for name, ctx := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newAuth().Unary()(ctx, nil, info, echoUserID)
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
		})
	}
}

func TestAuthInterceptorSkipsPublicService(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	resp, err := newAuth().Unary()(context.Background(), nil, info, echoUserID)
	require.NoError(t, err)
	assert.Equal(t, "", resp)
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeStream) Context() context.Context {
	return s.ctx
}

func TestAuthInterceptorStream(t *testing.T) {
	var gotUserID string
	handler := func(_ interface{}, ss grpc.ServerStream) error {
		gotUserID, _ = ss.Context().Value(middleware.ContextUserIDKey).(string)
		return nil
	}
	stream := newAuth().Stream()
	reflectionInfo := &grpc.StreamServerInfo{FullMethod: "/grpc.reflection.v1.ServerReflection/ServerReflectionInfo"}

	err := stream(nil, fakeStream{ctx: context.Background()}, reflectionInfo, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	err = stream(nil, fakeStream{ctx: withAuth("Bearer good")}, reflectionInfo, handler)
	require.NoError(t, err)
	assert.Equal(t, "user-1", gotUserID)

	gotUserID = ""
	watch := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}
	require.NoError(t, stream(nil, fakeStream{ctx: context.Background()}, watch, handler))
	assert.Empty(t, gotUserID)
}

func TestUnaryLoggerPassesThrough(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	interceptor := UnaryLogger(logger.Nop())

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return req, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req", resp)

	_, err = interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Unavailable, "down")
	})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
