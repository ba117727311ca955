package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T) (*JWTValidator, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPem := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	path := filepath.Join(t.TempDir(), "jwt_pub.pem")
	require.NoError(t, os.WriteFile(path, pubPem, 0o600))

	jv, err := NewJWTValidatorRS256(path)
	require.NoError(t, err)
	return jv, key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestValidate_ReturnsIdentity(t *testing.T) {
	jv, key := newTestValidator(t)
	token := signToken(t, key, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user1@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	id, err := jv.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", id.ID)
	require.Equal(t, "user1@example.com", id.Email)
}

func TestValidate_UserIDFallback(t *testing.T) {
	jv, key := newTestValidator(t)
	token := signToken(t, key, jwt.MapClaims{
		"user_id": "user-2",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	id, err := jv.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "user-2", id.ID)
	require.Empty(t, id.Email)
}

func TestValidate_Rejections(t *testing.T) {
	jv, key := newTestValidator(t)

	t.Run("empty token", func(t *testing.T) {
		_, err := jv.Validate("")
		require.Error(t, err)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := jv.Validate("not.a.jwt")
		require.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, key, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := jv.Validate(token)
		require.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signToken(t, key, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err := jv.Validate(token)
		require.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		token := signToken(t, otherKey, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err = jv.Validate(token)
		require.Error(t, err)
	})
}
