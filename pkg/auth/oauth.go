package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// OAuthProxy proxies the resource-owner-password and refresh grants against
// an external OIDC issuer's token endpoint, so a first-party client (CLI,
// worker) can authenticate without a browser redirect. Authorization-code
// flows for browser-based clients are out of scope here — they go directly
// against the issuer.
type OAuthProxy struct {
	cfg *oauth2.Config
}

// NewOAuthProxy builds a proxy for the given issuer's token endpoint.
// scopes defaults to []string{"openid"} when empty.
func NewOAuthProxy(clientID, clientSecret, tokenURL, authURL string, scopes []string) *OAuthProxy {
	if len(scopes) == 0 {
		scopes = []string{"openid"}
	}
	return &OAuthProxy{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
	}
}

// PasswordLogin exchanges a username/password for a token pair via the
// resource-owner-password-credentials grant. Intended for trusted
// first-party clients only — the issuer must have that grant enabled.
func (p *OAuthProxy) PasswordLogin(ctx context.Context, username, password string) (*oauth2.Token, error) {
	tok, err := p.cfg.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("auth: password grant failed: %w", err)
	}
	return tok, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (p *OAuthProxy) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("auth: refresh grant failed: %w", err)
	}
	return tok, nil
}
