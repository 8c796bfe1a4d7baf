// Package auth issues and verifies sessions for registered accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"laterai/internal/domain"
	"laterai/internal/storage"
)

const minPasswordLen = 8

var (
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthenticated)
	ErrInvalidToken       = fmt.Errorf("invalid token: %w", domain.ErrUnauthenticated)
	ErrInvalidInput       = errors.New("invalid input")
)

// Config holds the signing secret and token lifetimes.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service signs users up and in, and rotates their tokens.
// Access tokens are HS256 JWTs; refresh tokens are opaque and single use.
type Service struct {
	accounts storage.AccountRepository
	tokens   storage.TokenRepository
	cfg      Config
	now      func() time.Time
	log      logrus.FieldLogger
}

func NewService(accounts storage.AccountRepository, tokens storage.TokenRepository, cfg Config, logger logrus.FieldLogger) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.WithField("component", "auth"),
	}, nil
}

// SignUp registers a new account.
func (s *Service) SignUp(ctx context.Context, email, password string) (domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.Account{}, fmt.Errorf("%w: email %q", ErrInvalidInput, email)
	}
	if len(password) < minPasswordLen {
		return domain.Account{}, fmt.Errorf("%w: password too short", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}
	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return domain.Account{}, err
	}
	s.log.WithField("user_id", account.ID).Info("Account signed up")
	return account, nil
}

// SignIn checks the password and issues a new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return domain.Session{}, ErrInvalidCredentials
	}
	s.log.WithField("user_id", account.ID).Info("Account signed in")
	return s.issue(ctx, account.ID)
}

// Refresh consumes refreshToken and issues a new session with a rotated refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	if refreshToken == "" {
		return domain.Session{}, ErrInvalidToken
	}
	userID, err := s.tokens.ConsumeRefreshToken(ctx, refreshToken)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Session{}, ErrInvalidToken
	}
	if err != nil {
		return domain.Session{}, err
	}
	return s.issue(ctx, userID)
}

// SignOut revokes refreshToken. The access token stays valid until it expires.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.tokens.DeleteRefreshToken(ctx, refreshToken)
}

// Verify checks an access token and returns the session it stands for.
// The returned session carries no refresh token.
func (s *Service) Verify(accessToken string) (domain.Session, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(accessToken, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return domain.Session{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return domain.Session{}, ErrInvalidToken
	}
	return domain.Session{
		AccessToken: accessToken,
		ExpiresAt:   claims.ExpiresAt.Time,
		UserID:      claims.Subject,
	}, nil
}

func (s *Service) issue(ctx context.Context, userID string) (domain.Session, error) {
	now := s.now()
	expires := now.Add(s.cfg.AccessTTL)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}).SignedString(s.cfg.Secret)
	if err != nil {
		return domain.Session{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := uuid.NewString()
	if err := s.tokens.SaveRefreshToken(ctx, refresh, userID, s.cfg.RefreshTTL); err != nil {
		return domain.Session{}, err
	}

	return domain.Session{
		AccessToken:  signed,
		RefreshToken: refresh,
		ExpiresAt:    expires.Truncate(time.Second),
		UserID:       userID,
	}, nil
}
