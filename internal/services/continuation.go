package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/pkg/crypto"
	"github.com/charlesng35/everkeep/pkg/metrics"
)

const (
	continuationPurpose    = "invitation_continuation"
	defaultContinuationTTL = 15 * time.Minute
)

// ErrInvalidContinuation covers malformed, tampered or expired continuation states.
var ErrInvalidContinuation = errors.New("invitation: invalid continuation state")

type continuationClaims struct {
	Purpose   string `json:"purpose"`
	TokenHash string `json:"th"`
	jwt.RegisteredClaims
}

// ContinuationSigner mints and verifies the short-lived signed state handed to
// a visitor who must sign in (or sign up) before finishing an invitation. The
// state carries only the invitation token hash, never the raw token, so a
// leaked state cannot be redeemed through the public verify endpoint.
type ContinuationSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewContinuationSigner builds a signer from the shared application secret.
func NewContinuationSigner(secret string) (*ContinuationSigner, error) {
	if secret == "" {
		return nil, errors.New("continuation signer: secret is required")
	}
	return &ContinuationSigner{
		secret: []byte(secret),
		ttl:    defaultContinuationTTL,
		now:    time.Now,
	}, nil
}

// WithTTL overrides the state lifetime.
func (c *ContinuationSigner) WithTTL(ttl time.Duration) *ContinuationSigner {
	if ttl > 0 {
		c.ttl = ttl
	}
	return c
}

// WithClock injects a custom clock primarily for testing.
func (c *ContinuationSigner) WithClock(clock func() time.Time) *ContinuationSigner {
	if clock != nil {
		c.now = clock
	}
	return c
}

// Issue signs a continuation state for the given raw invitation token.
func (c *ContinuationSigner) Issue(rawToken string) (string, error) {
	now := c.now()
	claims := continuationClaims{
		Purpose:   continuationPurpose,
		TokenHash: crypto.HashToken(rawToken),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("continuation signer: sign state: %w", err)
	}
	return signed, nil
}

// Parse validates a continuation state and returns the invitation token hash it carries.
func (c *ContinuationSigner) Parse(state string) (string, error) {
	parsed, err := jwt.ParseWithClaims(state, &continuationClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return "", ErrInvalidContinuation
	}

	claims, ok := parsed.Claims.(*continuationClaims)
	if !ok || !parsed.Valid || claims.Purpose != continuationPurpose || claims.TokenHash == "" {
		return "", ErrInvalidContinuation
	}
	return claims.TokenHash, nil
}

// IssueContinuation verifies the raw token is still redeemable and returns a
// signed continuation state for it. The invitation itself is untouched and
// stays pending until the state is completed.
func (s *InvitationService) IssueContinuation(ctx context.Context, signer *ContinuationSigner, token string) (string, error) {
	if signer == nil {
		return "", errors.New("invitation service: continuation signer is required")
	}

	if _, err := s.Verify(ctx, token); err != nil {
		return "", err
	}
	return signer.Issue(token)
}

// CompleteContinuation finishes a deferred acceptance: the state is unpacked
// back to the invitation and the existing-user branch runs for the now
// signed-in account. Email mismatch leaves the invitation pending.
func (s *InvitationService) CompleteContinuation(ctx context.Context, signer *ContinuationSigner, state string, user *models.User) (*models.Executor, error) {
	ctx = ensureContext(ctx)

	if signer == nil {
		return nil, errors.New("invitation service: continuation signer is required")
	}
	if user == nil {
		return nil, errors.New("invitation service: user is required")
	}

	tokenHash, err := signer.Parse(state)
	if err != nil {
		metrics.InvitationRedemptions.WithLabelValues("error").Inc()
		return nil, err
	}

	invitation, err := s.verifyByHash(ctx, tokenHash)
	if err != nil {
		s.countRedemption(err)
		return nil, err
	}

	executor, err := s.activate(ctx, invitation, user, "continuation")
	if err != nil {
		s.countRedemption(err)
		return nil, err
	}

	metrics.InvitationRedemptions.WithLabelValues("accepted").Inc()
	return executor, nil
}
