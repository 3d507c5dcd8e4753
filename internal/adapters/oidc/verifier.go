// Package oidc resolves job owners from OIDC bearer tokens.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid bearer token")

// Identity is the caller resolved from a bearer token.
type Identity struct {
	Subject string
	Email   string
}

// Owner returns the value stored as the job owner.
func (i Identity) Owner() string {
	return firstNonEmpty(i.Email, i.Subject)
}

// Config holds configuration for the verifier.
type Config struct {
	IssuerURL string
	ClientID  string
	// UserInfoFallback accepts opaque access tokens by asking the issuer's userinfo endpoint.
	UserInfoFallback bool
	HTTPClient       *http.Client // Optional, defaults to a client with a 30s timeout
}

// BearerVerifier verifies ID tokens against the issuer's published keys.
type BearerVerifier struct {
	provider         *gooidc.Provider
	verifier         *gooidc.IDTokenVerifier
	httpClient       *http.Client
	userInfoFallback bool
}

// NewBearerVerifier performs issuer discovery and returns a verifier.
func NewBearerVerifier(ctx context.Context, cfg Config) (*BearerVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &BearerVerifier{
		provider:         op,
		verifier:         op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		httpClient:       httpClient,
		userInfoFallback: cfg.UserInfoFallback,
	}, nil
}

// Verify checks a raw bearer token and returns the caller identity.
func (v *BearerVerifier) Verify(ctx context.Context, rawToken string) (Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Identity{}, ErrInvalidToken
	}

	ctx = gooidc.ClientContext(ctx, v.httpClient)
	idTok, err := v.verifier.Verify(ctx, rawToken)
	if err == nil {
		var claims tokenClaims
		if claimsErr := idTok.Claims(&claims); claimsErr != nil {
			return Identity{}, fmt.Errorf("%w: parse claims: %w", ErrInvalidToken, claimsErr)
		}
		return claims.identity(idTok.Subject), nil
	}

	if !v.userInfoFallback || v.provider == nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	ui, uiErr := v.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: rawToken}))
	if uiErr != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, errors.Join(err, uiErr))
	}
	var claims tokenClaims
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return Identity{}, fmt.Errorf("%w: decode user info: %w", ErrInvalidToken, claimsErr)
	}
	if ui.Email != "" {
		claims.Email = ui.Email
	}
	return claims.identity(ui.Subject), nil
}

// tokenClaims covers standard OIDC claims plus the AD/ADFS shape some issuers emit.
type tokenClaims struct {
	Sub            string `json:"sub"`
	Email          string `json:"email"`
	SamAccountName string `json:"samaccountname"`
	Mail           string `json:"mail"`
}

func (c tokenClaims) identity(subject string) Identity {
	return Identity{
		Subject: firstNonEmpty(c.SamAccountName, subject, c.Sub),
		Email:   firstNonEmpty(c.Email, c.Mail),
	}
}

// Owner verifies rawToken and returns the value stored as the job owner.
func (v *BearerVerifier) Owner(ctx context.Context, rawToken string) (string, error) {
	id, err := v.Verify(ctx, rawToken)
	if err != nil {
		return "", err
	}
	owner := id.Owner()
	if owner == "" {
		return "", fmt.Errorf("%w: token carries no subject", ErrInvalidToken)
	}
	return owner, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
