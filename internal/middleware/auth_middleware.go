package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Dhoini/checkout-service/internal/identity"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/Dhoini/checkout-service/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKey тип для ключей контекста во избежание коллизий.
type ContextKey string

const (
	// ContextUserIDKey ключ для хранения ID пользователя в контексте gin.
	ContextUserIDKey    ContextKey = "userID"
	ContextUserEmailKey ContextKey = "userEmail"
	ContextTokenKey     ContextKey = "accessToken"
	authHeaderPrefix               = "Bearer "
)

// Identity - аутентифицированный пользователь запроса.
type Identity struct {
	UserID string
	Email  string
}

type TokenValidator interface {
	Validate(ctx context.Context, tokenString string) (*Identity, error)
}

// TokenClaims - claims access-токена Supabase.
type TokenClaims struct {
	UserEmail string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

func NewJWTMiddleware(log *logger.Logger, validator TokenValidator) *JWTMiddleware {
	return &JWTMiddleware{
		log:       log,
		validator: validator,
	}
}

// RequireAuth проверяет bearer-токен и кладет user id, email и сам токен в контекст.
func (m *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.handleAuthError(c, "Missing authorization token")
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, authHeaderPrefix))
		id, err := m.validator.Validate(c.Request.Context(), tokenString)
		if err != nil {
			m.handleAuthError(c, fmt.Sprintf("Token validation failed: %v", err))
			return
		}
		if id.UserID == "" {
			m.handleAuthError(c, "User ID (sub) missing in token")
			return
		}

		c.Set(string(ContextUserIDKey), id.UserID)
		c.Set(string(ContextUserEmailKey), id.Email)
		c.Set(string(ContextTokenKey), tokenString)
		m.log.Debugw("User authenticated via HTTP", "userID", id.UserID)
		c.Next()
	}
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, message string) {
	m.log.Warnw("HTTP Authentication failed", "path", c.Request.URL.Path, "error", message)
	res.JsonResponse(c.Writer, res.ErrorResponse{
		Error:     message,
		ErrorCode: http.StatusUnauthorized,
	}, http.StatusUnauthorized)
	c.Abort()
}

// UserID возвращает id аутентифицированного пользователя из контекста.
func UserID(c *gin.Context) string {
	return c.GetString(string(ContextUserIDKey))
}

// UserEmail возвращает email из токена.
func UserEmail(c *gin.Context) string {
	return c.GetString(string(ContextUserEmailKey))
}

// AccessToken возвращает проверенный bearer-токен.
func AccessToken(c *gin.Context) string {
	return c.GetString(string(ContextTokenKey))
}

// DefaultTokenValidator проверяет HS256 access-токены секретом проекта Supabase.
type DefaultTokenValidator struct {
	Secret []byte
}

func (v *DefaultTokenValidator) Validate(_ context.Context, tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, errors.New("malformed token")
		} else if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, errors.New("invalid token signature")
		} else if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, errors.New("token expired")
		} else {
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return &Identity{UserID: claims.Subject, Email: claims.UserEmail}, nil
	}

	return nil, errors.New("invalid token claims")
}

// IdentityTokenValidator проверяет токен запросом к identity API.
// Используется, когда секрет подписи токенов не настроен.
type IdentityTokenValidator struct {
	Client identity.Client
}

func (v *IdentityTokenValidator) Validate(ctx context.Context, tokenString string) (*Identity, error) {
	user, err := v.Client.GetUser(ctx, tokenString)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			return nil, errors.New("session is invalid or expired")
		}
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	return &Identity{UserID: user.ID, Email: user.Email}, nil
}
