// Package session registers and logs in application users and issues the
// HS256 JWTs that authenticate API calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/pysugar/roleplay-nexus/internal/config"
	"github.com/pysugar/roleplay-nexus/internal/db"
	"github.com/pysugar/roleplay-nexus/internal/db/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingToken       = errors.New("missing token")
)

// Claims is the JWT payload: sub is the user ID.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Service struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(database *gorm.DB, secret string, ttl time.Duration, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}
	s := &Service{db: database, secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return db.CreateUser(ctx, s.db, name, email, string(hash))
}

// Login verifies credentials and returns a signed token with the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := db.FindUserByEmail(ctx, s.db, email)
	if errors.Is(err, db.ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.Issue(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Issue signs a token for user valid for the configured lifetime.
func (s *Service) Issue(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token (with or without the "Bearer " prefix) and returns
// the user ID it was issued for.
func (s *Service) Parse(raw string) (uint, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return 0, ErrMissingToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	return uint(id), nil
}

// Authenticate resolves a raw Authorization value to a stored user.
func (s *Service) Authenticate(ctx context.Context, raw string) (*models.User, error) {
	id, err := s.Parse(raw)
	if err != nil {
		return nil, err
	}
	user, err := db.FindUserByID(ctx, s.db, id)
	if errors.Is(err, db.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: user %d: %w", ErrInvalidToken, id, db.ErrUserNotFound)
	}
	return user, err
}
