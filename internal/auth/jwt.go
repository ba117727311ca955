package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated principal attached to a connection. The chat
// core trusts whatever the token middleware resolved; it never checks
// credentials itself.
type Identity struct {
	ID    string
	Email string
}

type JWTValidator struct {
	publicKey *rsa.PublicKey
}

// NewJWTValidatorRS256 loads an RSA public key from the filesystem.
func NewJWTValidatorRS256(pubPath string) (*JWTValidator, error) {
	b, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not RSA public key")
	}
	return &JWTValidator{publicKey: rsaPub}, nil
}

// Validate returns the identity carried by the token. The user id comes from
// "sub" with a "user_id" fallback; "email" is optional on older tokens.
func (j *JWTValidator) Validate(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, errors.New("empty token")
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.publicKey, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims")
	}

	id := Identity{}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		id.ID = sub
	} else if uid, ok := claims["user_id"].(string); ok && uid != "" {
		id.ID = uid
	} else {
		return Identity{}, errors.New("sub claim missing")
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	return id, nil
}
