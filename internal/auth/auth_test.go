package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mike1ife/RAGentFlow/internal/auth"
	"github.com/Mike1ife/RAGentFlow/internal/testutil"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("test-key-123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"), hash)

	valid, err := auth.VerifyAPIKey("test-key-123", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, valid)

	other, err := auth.HashAPIKey("test-key-123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salted")
}

func TestVerifyAPIKey_MalformedHashes(t *testing.T) {
	for _, encoded := range []string{
		"",
		"salt$hash",
		"$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$",
		"$argon2id$v=19$m=65536,t=0,p=4$c2FsdA$aGFzaA",
	} {
		_, err := auth.VerifyAPIKey("key", encoded)
		assert.Error(t, err, encoded)
	}
}

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour, testutil.TestLogger())
	require.NoError(t, err)

	token, expiresAt, err := mgr.IssueToken("operator")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)
	assert.Equal(t, auth.ScopeOperator, claims.Scope)

	other, err := auth.NewJWTManager("", "", time.Hour, testutil.TestLogger())
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	assert.Error(t, err, "ephemeral keys differ")
}

func TestExchange(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour, testutil.TestLogger())
	require.NoError(t, err)
	hash, err := auth.HashAPIKey("s3cret")
	require.NoError(t, err)

	token, _, err := mgr.Exchange("s3cret", hash)
	require.NoError(t, err)
	_, err = mgr.ValidateToken(token)
	require.NoError(t, err)

	_, _, err = mgr.Exchange("guess", hash)
	assert.ErrorIs(t, err, auth.ErrInvalidAPIKey)
	_, _, err = mgr.Exchange("", hash)
	assert.ErrorIs(t, err, auth.ErrInvalidAPIKey)
	_, _, err = mgr.Exchange("s3cret", "")
	assert.ErrorIs(t, err, auth.ErrInvalidAPIKey, "auth disabled")
}

// newTestJWTManagerWithKey creates a JWTManager backed by a real Ed25519 key
// pair written to temp PEM files, and returns the raw private key.
func newTestJWTManagerWithKey(t *testing.T) (*auth.JWTManager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	dir := t.TempDir()

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPath := filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}), 0o600))

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0o600))

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour, testutil.TestLogger())
	require.NoError(t, err)
	return mgr, priv
}

func forgeToken(t *testing.T, privKey ed25519.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(privKey)
	require.NoError(t, err)
	return signed
}

func TestValidateToken_ForgedClaims(t *testing.T) {
	mgr, privKey := newTestJWTManagerWithKey(t)
	now := time.Now().UTC()
	registered := func(iss string, aud ...string) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "operator",
			Issuer:    iss,
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		}
	}

	tests := []struct {
		name   string
		claims auth.Claims
		want   string
	}{
		{"wrong issuer", auth.Claims{RegisteredClaims: registered("someone-else", "ragentflow"), Scope: auth.ScopeOperator}, "invalid issuer"},
		{"empty issuer", auth.Claims{RegisteredClaims: registered("", "ragentflow"), Scope: auth.ScopeOperator}, "invalid issuer"},
		{"wrong audience", auth.Claims{RegisteredClaims: registered("ragentflow", "other"), Scope: auth.ScopeOperator}, "validate token"},
		{"missing scope", auth.Claims{RegisteredClaims: registered("ragentflow", "ragentflow")}, "invalid scope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.ValidateToken(forgeToken(t, privKey, &tt.claims))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	expired := auth.Claims{RegisteredClaims: registered("ragentflow", "ragentflow"), Scope: auth.ScopeOperator}
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	_, err := mgr.ValidateToken(forgeToken(t, privKey, &expired))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestNewJWTManager_MismatchedKeys(t *testing.T) {
	dir := t.TempDir()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pubBytes, err := x509.MarshalPKIXPublicKey(otherPub)
	require.NoError(t, err)
	privPath := filepath.Join(dir, "priv.pem")
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}), 0o600))
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0o600))

	_, err = auth.NewJWTManager(privPath, pubPath, time.Hour, testutil.TestLogger())
	assert.ErrorContains(t, err, "does not match")

	_, err = auth.NewJWTManager(filepath.Join(dir, "nope.pem"), pubPath, time.Hour, testutil.TestLogger())
	assert.ErrorContains(t, err, "read private key")
}
