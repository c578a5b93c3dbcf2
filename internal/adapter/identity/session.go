package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// DefaultSessionTTL is one week.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	ErrMalformedToken = errors.New("malformed session token")
	ErrBadSignature   = errors.New("invalid session signature")
	ErrExpired        = errors.New("session expired")
)

// SessionCodec issues and verifies HMAC-SHA256 signed tokens of the form
// base64(payload).base64(signature). The payload is sid:uid:iat:exp.
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionCodec(secret string, ttl time.Duration) *SessionCodec {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of newly issued tokens.
func (c *SessionCodec) TTL() time.Duration { return c.ttl }

// Issue signs a fresh session for userID.
func (c *SessionCodec) Issue(userID string) (string, domain.SessionClaims, error) {
	if userID == "" || strings.Contains(userID, ":") {
		return "", domain.SessionClaims{}, fmt.Errorf("op=identity.Issue: %w", domain.ErrInvalidArgument)
	}
	now := c.now().UTC().Truncate(time.Second)
	claims := domain.SessionClaims{
		SessionID: uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	payload := fmt.Sprintf("%s:%s:%d:%d", claims.SessionID, claims.UserID, claims.IssuedAt.Unix(), claims.ExpiresAt.Unix())
	enc := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return enc + "." + c.sign(enc), claims, nil
}

// Verify checks the signature and expiry and returns the claims.
func (c *SessionCodec) Verify(token string) (domain.SessionClaims, error) {
	enc, sig, ok := strings.Cut(token, ".")
	if !ok || enc == "" || sig == "" {
		return domain.SessionClaims{}, ErrMalformedToken
	}
	if !hmac.Equal([]byte(sig), []byte(c.sign(enc))) {
		return domain.SessionClaims{}, ErrBadSignature
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return domain.SessionClaims{}, ErrMalformedToken
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" {
		return domain.SessionClaims{}, ErrMalformedToken
	}
	iat, err1 := strconv.ParseInt(parts[2], 10, 64)
	exp, err2 := strconv.ParseInt(parts[3], 10, 64)
	if err1 != nil || err2 != nil {
		return domain.SessionClaims{}, ErrMalformedToken
	}
	claims := domain.SessionClaims{
		SessionID: parts[0],
		UserID:    parts[1],
		IssuedAt:  time.Unix(iat, 0).UTC(),
		ExpiresAt: time.Unix(exp, 0).UTC(),
	}
	if !c.now().Before(claims.ExpiresAt) {
		return domain.SessionClaims{}, ErrExpired
	}
	return claims, nil
}

func (c *SessionCodec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
