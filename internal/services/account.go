package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Dhoini/checkout-service/internal/identity"
	"github.com/Dhoini/checkout-service/internal/leads"
	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/internal/repository"
	"github.com/Dhoini/checkout-service/pkg/logger"
)

// Ключи user_metadata, которые копируются в profiles
const (
	metaFullName    = "full_name"
	metaCompanyName = "company_name"
	metaPhoneNumber = "phone_number"
)

type SignUpInput struct {
	Email       string
	Password    string
	FullName    string
	CompanyName string
	PhoneNumber string
	PlanName    string
	PriceID     string
	UserAgent   string
	IPAddress   string
}

// AccountService - регистрация, вход и удаление аккаунта поверх identity-провайдера.
type AccountService struct {
	identity identity.Client
	profiles repository.ProfileRepository
	subs     repository.SubscriptionRepository
	leads    *leads.Forwarder
	log      *logger.Logger
}

// NewAccountService конструктор сервиса. leadForwarder может быть nil.
func NewAccountService(
	identityClient identity.Client,
	profiles repository.ProfileRepository,
	subs repository.SubscriptionRepository,
	leadForwarder *leads.Forwarder,
	log *logger.Logger,
) *AccountService {
	return &AccountService{
		identity: identityClient,
		profiles: profiles,
		subs:     subs,
		leads:    leadForwarder,
		log:      log,
	}
}

// SignUp регистрирует пользователя, создает профиль из метаданных и отправляет лид.
func (s *AccountService) SignUp(ctx context.Context, input SignUpInput) (*identity.SignUpResult, error) {
	if input.Email == "" || input.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	result, err := s.identity.SignUp(ctx, identity.SignUpParams{
		Email:    input.Email,
		Password: input.Password,
		Data: map[string]string{
			metaFullName:    input.FullName,
			metaCompanyName: input.CompanyName,
			metaPhoneNumber: input.PhoneNumber,
		},
	})
	if err != nil {
		return nil, mapIdentityError("sign up", err)
	}

	if result.User != nil && result.User.ID != "" {
		if err := s.createProfile(ctx, result.User, input.Email); err != nil {
			// Пользователь уже создан, профиль досоздастся при оформлении подписки
			s.log.Errorw("Failed to create user profile", "userID", result.User.ID, "error", err)
		}
	}

	s.leads.Forward(ctx, leads.Lead{
		Email:       input.Email,
		FullName:    input.FullName,
		CompanyName: input.CompanyName,
		PhoneNumber: input.PhoneNumber,
		PlanName:    input.PlanName,
		PriceID:     input.PriceID,
		UserAgent:   input.UserAgent,
		IPAddress:   input.IPAddress,
	})

	return result, nil
}

// createProfile копирует метаданные регистрации в profiles.
func (s *AccountService) createProfile(ctx context.Context, user *identity.User, email string) error {
	if user.Email != "" {
		email = user.Email
	}
	profile := &models.Profile{
		ID:          user.ID,
		FullName:    user.MetadataString(metaFullName),
		CompanyName: user.MetadataString(metaCompanyName),
		PhoneNumber: user.MetadataString(metaPhoneNumber),
		Email:       email,
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return err
	}
	s.log.Infow("User profile created", "userID", user.ID)
	return nil
}

func (s *AccountService) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	session, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, mapIdentityError("sign in", err)
	}
	return session, nil
}

func (s *AccountService) SignOut(ctx context.Context, accessToken string) error {
	if err := s.identity.SignOut(ctx, accessToken); err != nil {
		return mapIdentityError("sign out", err)
	}
	return nil
}

// SessionUser - пользователь identity-провайдера и его профиль, если он есть.
type SessionUser struct {
	*identity.User
	Profile *models.Profile `json:"profile,omitempty"`
}

// CurrentUser возвращает пользователя сессии. Ошибка чтения профиля не ломает сессию.
func (s *AccountService) CurrentUser(ctx context.Context, accessToken string) (*SessionUser, error) {
	user, err := s.identity.GetUser(ctx, accessToken)
	if err != nil {
		return nil, mapIdentityError("get user", err)
	}

	profile, err := s.profiles.GetByID(ctx, user.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		profile = nil
	case err != nil:
		s.log.Warnw("Failed to load user profile for session", "userID", user.ID, "error", err)
		profile = nil
	}
	return &SessionUser{User: user, Profile: profile}, nil
}

// DeleteAccount удаляет пользователя в identity-провайдере, затем его профиль и строку подписки.
// Stripe Customer не удаляется: история платежей остается в Stripe.
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}

	if err := s.identity.DeleteUser(ctx, userID); err != nil {
		return mapIdentityError("delete user", err)
	}

	if err := s.profiles.Delete(ctx, userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Errorw("Failed to delete user profile", "userID", userID, "error", err)
		return fmt.Errorf("%w: failed to delete profile: %v", ErrInternalServer, err)
	}
	if err := s.subs.DeleteByUserID(ctx, userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Errorw("Failed to delete user subscription", "userID", userID, "error", err)
		return fmt.Errorf("%w: failed to delete subscription: %v", ErrInternalServer, err)
	}

	s.log.Infow("Account deleted", "userID", userID)
	return nil
}

func mapIdentityError(op string, err error) error {
	var apiErr *identity.APIError
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrUnauthorized):
		return fmt.Errorf("%w: %s: %v", ErrUnauthenticated, op, err)
	case errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrInvalidInput, apiErr.Message)
	default:
		return fmt.Errorf("%w: %s: %v", ErrIdentity, op, err)
	}
}
