package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "paper-digest"

type testIssuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ti := &testIssuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                ti.srv.URL,
			"authorization_endpoint":                ti.srv.URL + "/authorize",
			"token_endpoint":                        ti.srv.URL + "/token",
			"jwks_uri":                              ti.srv.URL + "/keys",
			"userinfo_endpoint":                     ti.srv.URL + "/userinfo",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": "test",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer opaque-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"u-77","email":"reader@example.com","email_verified":true}`))
	})
	ti.srv = httptest.NewServer(mux)
	t.Cleanup(ti.srv.Close)
	return ti
}

func (ti *testIssuer) sign(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT", "kid": "test"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, ti.key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func (ti *testIssuer) claims(extra map[string]any) map[string]any {
	now := time.Now()
	c := map[string]any{
		"iss": ti.srv.URL,
		"aud": testClientID,
		"sub": "user-123",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

func TestNewBearerVerifier_Validation(t *testing.T) {
	_, err := NewBearerVerifier(context.Background(), Config{ClientID: "x"})
	require.Error(t, err)

	_, err = NewBearerVerifier(context.Background(), Config{IssuerURL: "https://issuer"})
	require.Error(t, err)
}

func TestNewBearerVerifier_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewBearerVerifier(context.Background(), Config{IssuerURL: srv.URL, ClientID: testClientID})
	require.Error(t, err)
}

func TestBearerVerifier_Verify(t *testing.T) {
	ti := newTestIssuer(t)
	v, err := NewBearerVerifier(context.Background(), Config{
		IssuerURL: ti.srv.URL + "/.well-known/openid-configuration",
		ClientID:  testClientID,
	})
	require.NoError(t, err)

	t.Run("email claim", func(t *testing.T) {
		id, err := v.Verify(context.Background(), ti.sign(t, ti.claims(map[string]any{"email": "a@example.com"})))
		require.NoError(t, err)
		assert.Equal(t, "user-123", id.Subject)
		assert.Equal(t, "a@example.com", id.Owner())
	})

	t.Run("ad style claims", func(t *testing.T) {
		id, err := v.Verify(context.Background(), ti.sign(t, ti.claims(map[string]any{
			"samaccountname": "z001abc",
			"mail":           "ad@example.com",
		})))
		require.NoError(t, err)
		assert.Equal(t, "z001abc", id.Subject)
		assert.Equal(t, "ad@example.com", id.Email)
	})

	t.Run("subject only", func(t *testing.T) {
		id, err := v.Verify(context.Background(), ti.sign(t, ti.claims(nil)))
		require.NoError(t, err)
		assert.Equal(t, "user-123", id.Owner())
	})

	t.Run("wrong audience", func(t *testing.T) {
		_, err := v.Verify(context.Background(), ti.sign(t, ti.claims(map[string]any{"aud": "other"})))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := v.Verify(context.Background(), ti.sign(t, ti.claims(map[string]any{
			"exp": time.Now().Add(-time.Hour).Unix(),
		})))
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "  ")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("opaque without fallback", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "opaque-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestBearerVerifier_UserInfoFallback(t *testing.T) {
	ti := newTestIssuer(t)
	v, err := NewBearerVerifier(context.Background(), Config{
		IssuerURL:        ti.srv.URL,
		ClientID:         testClientID,
		UserInfoFallback: true,
	})
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), "opaque-token")
	require.NoError(t, err)
	assert.Equal(t, "u-77", id.Subject)
	assert.Equal(t, "reader@example.com", id.Owner())

	_, err = v.Verify(context.Background(), "revoked-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerVerifier_Owner(t *testing.T) {
	ti := newTestIssuer(t)
	v, err := NewBearerVerifier(context.Background(), Config{IssuerURL: ti.srv.URL, ClientID: testClientID})
	require.NoError(t, err)

	owner, err := v.Owner(context.Background(), ti.sign(t, ti.claims(map[string]any{"email": "owner@example.com"})))
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", owner)

	_, err = v.Owner(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}
