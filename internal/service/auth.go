package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

// Auther verifies bearer tokens. It has no side effects.
type Auther interface {
	Inspect(ctx context.Context, token string) (*model.Identity, error)
}

// Claims is the token body issued by the account service. Older tokens carry
// the user id in "sub" only.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) subject() model.UserID {
	if c.UserID != "" {
		return model.UserID(c.UserID)
	}
	return model.UserID(c.Subject)
}

type AuthService struct {
	secret  []byte
	parser  *jwt.Parser
	users   UserStore
	revoker Revoker
}

func NewAuthService(cfg *config.Config, users UserStore, revoker Revoker) *AuthService {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if cfg.Auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Auth.Issuer))
	}

	return &AuthService{
		secret:  []byte(cfg.Auth.Secret),
		parser:  jwt.NewParser(opts...),
		users:   users,
		revoker: revoker,
	}
}

// Inspect returns the identity behind token. Every failure wraps
// model.ErrAuthentication; store and revocation failures reject the token as well.
func (s *AuthService) Inspect(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", model.ErrAuthentication)
	}

	claims := &Claims{}
	if _, err := s.parser.ParseWithClaims(token, claims, s.key); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAuthentication, err)
	}

	userID := claims.subject()
	if userID.IsZero() {
		return nil, fmt.Errorf("%w: token has no subject", model.ErrAuthentication)
	}

	if claims.ID != "" && s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: revocation check: %w", model.ErrAuthentication, err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", model.ErrAuthentication)
		}
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s no longer exists", model.ErrAuthentication, userID)
		}
		return nil, fmt.Errorf("%w: %w", model.ErrAuthentication, err)
	}

	identity := &model.Identity{User: user, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

func (s *AuthService) key(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return s.secret, nil
}
