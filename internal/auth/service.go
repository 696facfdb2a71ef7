package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"messenger-be/internal/apperr"
	"messenger-be/internal/models"
	"messenger-be/internal/store"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email,max=190"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type ProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=120"`
	Image *string `json:"image" validate:"omitempty,url,max=500"`
}

// Service is the identity provider: it owns credentials and hands out
// (user id, email) pairs through signed tokens.
type Service struct {
	store  store.Gateway
	tokens Tokens
}

func NewService(gw store.Gateway, tokens Tokens) *Service {
	return &Service{store: gw, tokens: tokens}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (models.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return models.User{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hashing failed: %w", err)
	}
	return s.store.CreateUser(ctx, models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
	})
}

// Login checks credentials and returns a session token. Unknown email and
// wrong password fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (string, models.User, error) {
	u, err := s.store.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", models.User{}, apperr.ErrInvalidCreds
		}
		return "", models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", models.User{}, apperr.ErrInvalidCreds
	}
	token, err := s.tokens.Generate(u)
	if err != nil {
		return "", models.User{}, fmt.Errorf("token generation: %w", err)
	}
	return token, u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, req ProfileRequest) (models.User, error) {
	if err := validate.Struct(req); err != nil {
		return models.User{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return s.store.UpdateProfile(ctx, userID, req.Name, req.Image)
}

func (s *Service) Tokens() Tokens {
	return s.tokens
}
