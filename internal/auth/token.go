package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the token_type claim. Refresh tokens prove only
// identity; they are never accepted for request authorization.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the signed token payload. Access tokens carry a snapshot of the
// subject's roles and permissions at issuance; the snapshot bounds staleness
// to the access TTL but authorization always re-reads the graph.
type Claims struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TokenType   string   `json:"token_type"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed session tokens. It is constructed once
// from process configuration; the signing secret is read-only afterwards.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec builds a Codec signing with HS256 under the given secret.
func NewCodec(secret, issuer string, accessTTL, refreshTTL time.Duration, opts ...CodecOption) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token TTLs must be positive")
	}
	c := &Codec{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssueAccessToken signs a short-lived token for the subject with role and
// permission snapshots. Expiry is strictly in the future at issuance.
func (c *Codec) IssueAccessToken(subject string, roles, permissions []string) (string, time.Time, error) {
	return c.issue(subject, tokenTypeAccess, roles, permissions, c.accessTTL)
}

// IssueRefreshToken signs a long-lived token carrying only the subject.
// Deliberately no role snapshot: refresh tokens are only good for obtaining
// new access tokens, which re-resolve the graph.
func (c *Codec) IssueRefreshToken(subject string) (string, time.Time, error) {
	return c.issue(subject, tokenTypeRefresh, nil, nil, c.refreshTTL)
}

func (c *Codec) issue(subject, tokenType string, roles, permissions []string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}

	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Roles:       dedupe(roles),
		Permissions: dedupe(permissions),
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	return signed, exp, nil
}

// Decode verifies an access token. All signature and structure failures
// collapse into ErrInvalidToken; expiry is reported as ErrTokenExpired.
func (c *Codec) Decode(token string) (*Claims, error) {
	return c.decode(token, tokenTypeAccess)
}

// DecodeRefresh verifies a refresh token.
func (c *Codec) DecodeRefresh(token string) (*Claims, error) {
	return c.decode(token, tokenTypeRefresh)
}

func (c *Codec) decode(token, wantType string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	claims.Roles = dedupe(claims.Roles)
	claims.Permissions = dedupe(claims.Permissions)
	return claims, nil
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
