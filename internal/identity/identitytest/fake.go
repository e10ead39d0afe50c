// Package identitytest содержит in-memory реализацию identity.Client для тестов.
package identitytest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Dhoini/checkout-service/internal/identity"
)

type account struct {
	user     identity.User
	password string
}

// FakeClient - пользователи и токены в памяти. Токен доступа: "token-<user id>".
type FakeClient struct {
	mu       sync.Mutex
	accounts map[string]*account // email -> account
	tokens   map[string]string   // token -> email
	seq      int

	Err     error // Если задано, возвращается всеми методами
	Deleted []string
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
	}
}

// AddUser регистрирует пользователя и возвращает его токен.
func (f *FakeClient) AddUser(id, email, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email] = &account{user: identity.User{ID: id, Email: email, CreatedAt: time.Now().UTC()}, password: password}
	token := "token-" + id
	f.tokens[token] = email
	return token
}

func (f *FakeClient) SignUp(ctx context.Context, p identity.SignUpParams) (*identity.SignUpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if _, exists := f.accounts[p.Email]; exists {
		return nil, &identity.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "User already registered"}
	}

	f.seq++
	meta := make(map[string]interface{}, len(p.Data))
	for k, v := range p.Data {
		meta[k] = v
	}
	acc := &account{
		user: identity.User{
			ID:           fmt.Sprintf("signup-%d", f.seq),
			Email:        p.Email,
			UserMetadata: meta,
			CreatedAt:    time.Now().UTC(),
		},
		password: p.Password,
	}
	f.accounts[p.Email] = acc
	user := acc.user
	return &identity.SignUpResult{User: &user}, nil
}

func (f *FakeClient) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	acc, ok := f.accounts[email]
	if !ok || acc.password != password {
		return nil, fmt.Errorf("%w: Invalid login credentials", identity.ErrInvalidCredentials)
	}

	token := "token-" + acc.user.ID
	f.tokens[token] = email
	user := acc.user
	return &identity.Session{AccessToken: token, TokenType: "bearer", ExpiresIn: 3600, User: &user}, nil
}

func (f *FakeClient) SignOut(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, ok := f.tokens[accessToken]; !ok {
		return identity.ErrUnauthorized
	}
	delete(f.tokens, accessToken)
	return nil
}

func (f *FakeClient) GetUser(ctx context.Context, accessToken string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	email, ok := f.tokens[accessToken]
	if !ok {
		return nil, identity.ErrUnauthorized
	}
	acc, ok := f.accounts[email]
	if !ok {
		return nil, identity.ErrUnauthorized
	}
	user := acc.user
	return &user, nil
}

func (f *FakeClient) DeleteUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for email, acc := range f.accounts {
		if acc.user.ID == userID {
			delete(f.accounts, email)
			f.Deleted = append(f.Deleted, userID)
			return nil
		}
	}
	return &identity.APIError{StatusCode: http.StatusNotFound, Message: "User not found"}
}

var _ identity.Client = (*FakeClient)(nil)
