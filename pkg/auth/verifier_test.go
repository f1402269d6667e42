package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

// testIssuer serves a JWKS derived from a freshly generated RSA key and can
// mint tokens signed with that same key, so Verifier can be exercised
// end-to-end without a real OIDC provider.
type testIssuer struct {
	server *httptest.Server
	key    *rsa.PrivateKey
	kid    string
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubKey, err := jwk.FromRaw(key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pubKey.Set(jwk.KeyIDKey, "test-kid"))
	require.NoError(t, pubKey.Set(jwk.AlgorithmKey, "RS256"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pubKey))

	body, err := json.Marshal(set)
	require.NoError(t, err)

	ti := &testIssuer{key: key, kid: "test-kid"}
	ti.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	return ti
}

func (ti *testIssuer) mint(t *testing.T, issuer string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = ti.kid
	signed, err := tok.SignedString(ti.key)
	require.NoError(t, err)
	return signed
}

func TestVerifierAcceptsValidToken(t *testing.T) {
	issuer := newTestIssuer(t)
	defer issuer.server.Close()

	ctx := context.Background()
	v, err := NewVerifier(ctx, issuer.server.URL, "https://issuer.example", "", AudienceStrict)
	require.NoError(t, err)

	token := issuer.mint(t, "https://issuer.example", jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://issuer.example",
		"exp": time.Now().Add(time.Hour).Unix(),
		"jti": "tok-1",
	})

	claims, err := v.Verify(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "tok-1", claims.ID)
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)
	defer issuer.server.Close()

	ctx := context.Background()
	v, err := NewVerifier(ctx, issuer.server.URL, "https://issuer.example", "", AudienceStrict)
	require.NoError(t, err)

	token := issuer.mint(t, "https://issuer.example", jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://issuer.example",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err = v.Verify(ctx, token)
	require.Error(t, err)
}

func TestVerifierAudienceStrictRejectsMismatch(t *testing.T) {
	issuer := newTestIssuer(t)
	defer issuer.server.Close()

	ctx := context.Background()
	v, err := NewVerifier(ctx, issuer.server.URL, "https://issuer.example", "expected-aud", AudienceStrict)
	require.NoError(t, err)

	token := issuer.mint(t, "https://issuer.example", jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://issuer.example",
		"aud": "other-aud",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err = v.Verify(ctx, token)
	require.ErrorIs(t, err, ErrWrongAudience)
}

func TestVerifierAudiencePermissiveAllowsMismatch(t *testing.T) {
	issuer := newTestIssuer(t)
	defer issuer.server.Close()

	ctx := context.Background()
	v, err := NewVerifier(ctx, issuer.server.URL, "https://issuer.example", "expected-aud", AudiencePermissive)
	require.NoError(t, err)

	token := issuer.mint(t, "https://issuer.example", jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://issuer.example",
		"aud": "other-aud",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err = v.Verify(ctx, token)
	require.NoError(t, err)
}

func TestVerifierRejectsRevokedToken(t *testing.T) {
	issuer := newTestIssuer(t)
	defer issuer.server.Close()

	ctx := context.Background()
	v, err := NewVerifier(ctx, issuer.server.URL, "https://issuer.example", "", AudienceStrict)
	require.NoError(t, err)

	token := issuer.mint(t, "https://issuer.example", jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://issuer.example",
		"exp": time.Now().Add(time.Hour).Unix(),
		"jti": "tok-revoked",
	})

	_, err = v.Verify(ctx, token)
	require.NoError(t, err)

	v.Revoke("tok-revoked")
	_, err = v.Verify(ctx, token)
	require.ErrorIs(t, err, ErrRevokedToken)
}

func TestVerifyRequestRejectsMissingHeader(t *testing.T) {
	issuer := newTestIssuer(t)
	defer issuer.server.Close()

	ctx := context.Background()
	v, err := NewVerifier(ctx, issuer.server.URL, "https://issuer.example", "", AudienceStrict)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = v.VerifyRequest(ctx, req)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestClaimsFromMapExtractsKeycloakRealmRoles(t *testing.T) {
	claims := claimsFromMap(jwt.MapClaims{
		"sub": "user-1",
		"realm_access": map[string]any{
			"roles": []any{"admin", "a2a-operator"},
		},
	})
	require.Equal(t, []string{"admin", "a2a-operator"}, claims.Roles)
}
