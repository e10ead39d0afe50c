package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Dhoini/checkout-service/pkg/logger"
)

var (
	// ErrUnauthorized токен отсутствует, истек или отозван
	ErrUnauthorized = errors.New("identity: unauthorized")

	// ErrInvalidCredentials неверный email или пароль
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrAdminDisabled не настроен service role key
	ErrAdminDisabled = errors.New("identity: admin API is not configured")
)

// APIError - ответ GoTrue с кодом >= 400.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity: status %d: %s", e.StatusCode, e.Message)
}

// User - пользователь identity-провайдера.
type User struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	Phone        string                 `json:"phone,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// MetadataString возвращает строковое поле user_metadata.
func (u *User) MetadataString(key string) string {
	if u == nil {
		return ""
	}
	s, _ := u.UserMetadata[key].(string)
	return s
}

// Session - результат входа.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user"`
}

// SignUpParams параметры регистрации. Data попадает в user_metadata.
type SignUpParams struct {
	Email    string
	Password string
	Data     map[string]string
}

// SignUpResult - созданный пользователь и, если подтверждение email выключено, сессия.
type SignUpResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session,omitempty"`
}

// Client - обертка над REST API GoTrue (Supabase Auth).
type Client interface {
	SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*User, error)
	// DeleteUser удаляет пользователя через admin API (нужен service role key).
	DeleteUser(ctx context.Context, userID string) error
}

// Config параметры подключения.
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	Timeout        time.Duration
}

type httpClient struct {
	baseURL        string
	anonKey        string
	serviceRoleKey string
	http           *http.Client
	log            *logger.Logger
}

// NewClient создает клиента identity API.
func NewClient(cfg Config, log *logger.Logger) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		baseURL:        strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey:        cfg.AnonKey,
		serviceRoleKey: cfg.ServiceRoleKey,
		http:           &http.Client{Timeout: timeout},
		log:            log,
	}
}

func (c *httpClient) SignUp(ctx context.Context, p SignUpParams) (*SignUpResult, error) {
	body := map[string]interface{}{
		"email":    p.Email,
		"password": p.Password,
	}
	if len(p.Data) > 0 {
		body["data"] = p.Data
	}

	// При выключенном подтверждении email GoTrue отдает сессию, иначе сам объект пользователя
	var raw struct {
		User
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		SessionUser  *User  `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/signup", c.anonKey, "", body, &raw); err != nil {
		return nil, err
	}

	result := &SignUpResult{}
	if raw.AccessToken != "" {
		result.Session = &Session{
			AccessToken:  raw.AccessToken,
			RefreshToken: raw.RefreshToken,
			TokenType:    raw.TokenType,
			ExpiresIn:    raw.ExpiresIn,
			User:         raw.SessionUser,
		}
		result.User = raw.SessionUser
	} else {
		u := raw.User
		result.User = &u
	}

	if result.User != nil {
		c.log.Infow("Identity user signed up", "userID", result.User.ID)
	}
	return result, nil
}

func (c *httpClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}

	var session Session
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", c.anonKey, "", body, &session)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Message)
		}
		return nil, err
	}
	return &session, nil
}

func (c *httpClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", c.anonKey, accessToken, nil, nil)
}

func (c *httpClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}

	var user User
	if err := c.do(ctx, http.MethodGet, "/user", c.anonKey, accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *httpClient) DeleteUser(ctx context.Context, userID string) error {
	if c.serviceRoleKey == "" {
		return ErrAdminDisabled
	}

	err := c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), c.serviceRoleKey, c.serviceRoleKey, nil, nil)
	if err != nil {
		return err
	}
	c.log.Infow("Identity user deleted", "userID", userID)
	return nil
}

// do выполняет запрос. Пустой bearer - авторизация только apikey.
func (c *httpClient) do(ctx context.Context, method, path, apiKey, bearer string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("identity: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("identity: failed to build request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Errorw("Identity request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("identity: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("identity: failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
		c.log.Warnw("Identity API error", "method", method, "path", path, "status", resp.StatusCode, "message", apiErr.Message)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("identity: failed to decode response: %w", err)
	}
	return nil
}

// errorMessage достает текст ошибки из разных форматов ответа GoTrue.
func errorMessage(data []byte) string {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	for _, s := range []string{body.ErrorDescription, body.Msg, body.Message, body.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}
