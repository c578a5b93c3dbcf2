package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
)

// RevocationStore is the subset of RedisRevocationStore the provider needs.
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Provider implements domain.IdentityProvider.
type Provider struct {
	codec   *SessionCodec
	revoked RevocationStore
	params  Argon2Params
}

var _ domain.IdentityProvider = (*Provider)(nil)

// NewProvider wires the codec and revocation store. revoked may be nil, in
// which case sign-out only clears the client cookie.
func NewProvider(codec *SessionCodec, revoked RevocationStore) *Provider {
	return &Provider{codec: codec, revoked: revoked, params: DefaultArgon2Params}
}

// WithArgon2Params overrides hashing cost; tests use cheap params.
func (p *Provider) WithArgon2Params(params Argon2Params) *Provider {
	p.params = params
	return p
}

func (p *Provider) HashPassword(password string) (string, error) {
	return HashPassword(password, p.params)
}

func (p *Provider) VerifyPassword(password, encodedHash string) bool {
	return VerifyPassword(password, encodedHash)
}

func (p *Provider) IssueSession(_ context.Context, userID string) (string, domain.SessionClaims, error) {
	return p.codec.Issue(userID)
}

// VerifySession rejects malformed, expired and revoked tokens with ErrUnauthenticated.
func (p *Provider) VerifySession(ctx context.Context, token string) (domain.SessionClaims, error) {
	claims, err := p.codec.Verify(token)
	if err != nil {
		return domain.SessionClaims{}, fmt.Errorf("op=identity.VerifySession: %w: %v", domain.ErrUnauthenticated, err)
	}
	if p.revoked != nil {
		revoked, err := p.revoked.IsRevoked(ctx, claims.SessionID)
		if err != nil {
			// fail closed
			observability.Logger(ctx).Error("session revocation lookup failed", slog.Any("error", err))
			return domain.SessionClaims{}, fmt.Errorf("op=identity.VerifySession: %w", domain.ErrUnauthenticated)
		}
		if revoked {
			return domain.SessionClaims{}, fmt.Errorf("op=identity.VerifySession: %w: revoked", domain.ErrUnauthenticated)
		}
	}
	return claims, nil
}

// RevokeSession revokes a valid token. Invalid tokens are already unusable.
func (p *Provider) RevokeSession(ctx context.Context, token string) error {
	claims, err := p.codec.Verify(token)
	if err != nil || p.revoked == nil {
		return nil
	}
	return p.revoked.Revoke(ctx, claims.SessionID, claims.ExpiresAt)
}
