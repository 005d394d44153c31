package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the access token lifetime when none is configured.
const DefaultAccessTokenTTL = 15 * time.Minute

// JWTConfig configures token issuing and validation.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims are the application claims carried by Everkeep access tokens.
type Claims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenInput names the identity a new access token is minted for.
type AccessTokenInput struct {
	UserID    string
	SessionID string
	Email     string
	Role      string
}

// JWTService mints and verifies HS256 access tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService builds a JWTService. The signing secret is mandatory.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	svc := &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		now:    cfg.Clock,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultAccessTokenTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// GenerateAccessToken signs a token for the given identity.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	if input.UserID == "" {
		return "", errors.New("jwt: user id is required")
	}

	issued := s.now()
	claims := &Claims{
		UserID:    input.UserID,
		SessionID: input.SessionID,
		Email:     input.Email,
		Role:      input.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.UserID,
			Issuer:    s.issuer,
			ID:        input.SessionID,
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies signature, lifetime, and issuer, returning
// the embedded claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	if _, err := parser.ParseWithClaims(tokenString, &claims, s.keyFunc); err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("jwt: invalid issuer")
	}
	if claims.UserID == "" {
		return nil, errors.New("jwt: missing user id claim")
	}

	return &claims, nil
}

func (s *JWTService) keyFunc(*jwt.Token) (any, error) {
	return s.secret, nil
}
