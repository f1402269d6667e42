// Package auth verifies bearer tokens issued by an external OIDC provider
// against its published JWKS, and proxies the password/refresh grants a
// thin client needs against that same provider.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

type authError string

func (e authError) Error() string { return string(e) }

const (
	ErrMissingToken  = authError("missing bearer token")
	ErrInvalidToken  = authError("invalid or expired token")
	ErrWrongAudience = authError("token audience not accepted")
	ErrRevokedToken  = authError("token has been revoked")
)

// AudienceMode controls how strictly a token's aud claim is checked against
// the configured audience. Strict rejects a mismatch outright; Permissive
// only warns, matching the original a2a_server's audience handling — which
// is the behavior we default away from, per its own audience check being
// flagged as an oversight to correct.
type AudienceMode string

const (
	AudienceStrict     AudienceMode = "strict"
	AudiencePermissive AudienceMode = "permissive"
)

// Claims is the subset of a verified token's claims the rest of the server
// cares about.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	Roles     []string
	ExpiresAt time.Time
	ID        string // jti, used for revocation lookups
}

// Verifier validates bearer tokens against a JWKS endpoint, refreshing keys
// on a schedule via jwx's background cache rather than re-fetching per
// request.
type Verifier struct {
	jwksURL      string
	issuer       string
	audience     string
	audienceMode AudienceMode
	cache        *jwk.Cache
	revoked      *RevocationList
}

// NewVerifier registers jwksURL with a refreshing background cache and
// performs an initial fetch so the first request doesn't pay fetch latency
// twice. audience == "" disables audience checking entirely regardless of
// mode.
func NewVerifier(ctx context.Context, jwksURL, issuer, audience string, mode AudienceMode) (*Verifier, error) {
	if mode == "" {
		mode = AudienceStrict
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(5*time.Minute)); err != nil {
		return nil, fmt.Errorf("auth: registering JWKS cache for %s: %w", jwksURL, err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("auth: initial JWKS fetch from %s: %w", jwksURL, err)
	}

	return &Verifier{
		jwksURL:      jwksURL,
		issuer:       issuer,
		audience:     audience,
		audienceMode: mode,
		cache:        cache,
		revoked:      NewRevocationList(),
	}, nil
}

// WithRevocationList swaps in a shared revocation list (e.g. one also fed
// by a logout endpoint) instead of the private one NewVerifier creates.
func (v *Verifier) WithRevocationList(list *RevocationList) *Verifier {
	v.revoked = list
	return v
}

// VerifyRequest extracts and verifies the bearer token from an HTTP
// request's Authorization header.
func (v *Verifier) VerifyRequest(ctx context.Context, req *http.Request) (*Claims, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}

	raw := header
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		raw = rest
	}

	return v.Verify(ctx, raw)
}

// Verify validates a raw JWT: signature (via JWKS kid lookup), issuer,
// expiry, and — per audienceMode — audience.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("auth: fetching JWKS: %w", err)
	}

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("auth: token header missing kid")
		}
		key, ok := keyset.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("auth: no JWKS key for kid %q", kid)
		}
		var pub any
		if err := key.Raw(&pub); err != nil {
			return nil, fmt.Errorf("auth: materializing JWKS key %q: %w", kid, err)
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithIssuer(v.issuer))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := claimsFromMap(mapClaims)

	if err := v.checkAudience(claims); err != nil {
		return nil, err
	}
	if claims.ID != "" && v.revoked.IsRevoked(claims.ID) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

func (v *Verifier) checkAudience(claims *Claims) error {
	if v.audience == "" {
		return nil
	}

	for _, aud := range claims.Audience {
		if aud == v.audience {
			return nil
		}
	}

	if v.audienceMode == AudiencePermissive {
		log.Warn("accepting token with unexpected audience", "expected", v.audience, "got", claims.Audience)
		return nil
	}
	return ErrWrongAudience
}

// Revoke adds a token's jti to the shared revocation list, rejecting it on
// every future Verify even though its signature remains valid.
func (v *Verifier) Revoke(jti string) {
	v.revoked.Add(jti)
}

func claimsFromMap(m jwt.MapClaims) *Claims {
	c := &Claims{}

	if sub, ok := m["sub"].(string); ok {
		c.Subject = sub
	}
	if iss, ok := m["iss"].(string); ok {
		c.Issuer = iss
	}
	if jti, ok := m["jti"].(string); ok {
		c.ID = jti
	}
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}

	switch aud := m["aud"].(type) {
	case string:
		c.Audience = []string{aud}
	case []any:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				c.Audience = append(c.Audience, s)
			}
		}
	}

	// Keycloak-style realm_access.roles, per the original a2a_server.
	if realmAccess, ok := m["realm_access"].(map[string]any); ok {
		if roles, ok := realmAccess["roles"].([]any); ok {
			for _, r := range roles {
				if s, ok := r.(string); ok {
					c.Roles = append(c.Roles, s)
				}
			}
		}
	}

	return c
}
