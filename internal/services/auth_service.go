package services

import (
	"context"
	"errors"
	"time"

	"relay-chat/config"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/repository"
	relay_errors "relay-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthService verifies bearer tokens minted by the identity provider. Token
// issuance beyond IssueAccessToken (used by tooling and tests) lives outside
// this service.
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	issuer    string
}

func NewAuthService(userRepo repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(cfg.JWTSecret),
		issuer:    cfg.JWTIssuer,
	}
}

type AccessClaims struct {
	UserID   string `json:"sub"`
	Username string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (s *AuthService) IssueAccessToken(userID uuid.UUID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:   userID.String(),
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, relay_errors.ErrUnauthorized
	}

	var opts []jwt.ParserOption
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, relay_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		return AccessClaims{}, relay_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, relay_errors.ErrUnauthorized
	}
	return *claims, nil
}

// VerifyConnection resolves a token to the identity a connection or request
// carries for its lifetime. Tokens of unknown users are rejected.
func (s *AuthService) VerifyConnection(ctx context.Context, token string) (user.Identity, error) {
	claims, err := s.ParseAccessToken(token)
	if err != nil {
		return user.Identity{}, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return user.Identity{}, relay_errors.ErrUnauthorized
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, relay_errors.ErrNotFound) {
			return user.Identity{}, relay_errors.ErrUnauthorized
		}
		return user.Identity{}, err
	}
	return u.Identity(), nil
}
