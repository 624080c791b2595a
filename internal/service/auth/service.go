package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bookshelf-service/bookshelf/internal/model"
	"github.com/bookshelf-service/bookshelf/internal/repository"
)

type Config struct {
	Secret      string        `envconfig:"SESSION_SECRET" default:"change-me"`
	TTL         time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	RememberTTL time.Duration `envconfig:"SESSION_REMEMBER_TTL" default:"720h"`
}

// Claims carries only the user id; the principal is re-fetched from storage
// on every request so role changes take effect immediately.
type Claims struct {
	UserID int `json:"uid"`
	jwt.RegisteredClaims
}

type Service struct {
	repo repository.Repository
	cfg  Config
	log  *zap.Logger
}

func NewService(repo repository.Repository, cfg Config, log *zap.Logger) *Service {
	return &Service{
		repo: repo,
		cfg:  cfg,
		log:  log.Named("auth"),
	}
}

// Authenticate returns the matched user or an error that does not reveal
// whether the login exists.
func (s *Service) Authenticate(ctx context.Context, login, password string) (model.User, error) {
	return s.repo.AuthenticateUser(ctx, login, password)
}

func (s *Service) Register(ctx context.Context, in model.RegisterInput) error {
	return s.repo.CreateUser(ctx, in)
}

func (s *Service) NewSessionToken(userID int, remember bool) (string, time.Time, error) {
	ttl := s.cfg.TTL
	if remember {
		ttl = s.cfg.RememberTTL
	}
	expires := time.Now().Add(ttl)

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// UserFromToken validates the session token and rehydrates the principal from
// storage, never from the token contents.
func (s *Service) UserFromToken(ctx context.Context, tokenStr string) (model.User, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return model.User{}, errors.New("invalid session token")
	}
	return s.repo.GetUser(ctx, claims.UserID)
}
