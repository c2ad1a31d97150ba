// Package auth turns bearer tokens issued by the identity provider into
// principals. It keeps no session state.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Principal is the authenticated caller.
type Principal struct {
	UserID  string
	Email   string
	IsGuest bool
	Name    string
}

// Claims is the token body. The user id may arrive in userid or sub.
type Claims struct {
	UserID  string `json:"userid,omitempty"`
	Email   string `json:"email,omitempty"`
	IsGuest bool   `json:"guest,omitempty"`
	Name    string `json:"name,omitempty"`
	jwt.StandardClaims
}

type Verifier struct {
	key []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: secret required")
	}
	return &Verifier{key: []byte(secret)}, nil
}

// Verify accepts a raw token or an Authorization header value.
func (v *Verifier) Verify(header string) (*Principal, error) {
	raw := strings.TrimSpace(header)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return nil, ErrUnauthorized
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no subject", ErrUnauthorized)
	}
	return &Principal{UserID: id, Email: claims.Email, IsGuest: claims.IsGuest, Name: claims.Name}, nil
}

// Issue signs a token for p. The server only verifies; issuing exists for
// tooling and tests.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:  p.UserID,
		Email:   p.Email,
		IsGuest: p.IsGuest,
		Name:    p.Name,
		StandardClaims: jwt.StandardClaims{
			Subject:  p.UserID,
			IssuedAt: now.Unix(),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}

// DisplayName picks the name shown for p when none was chosen.
func (p *Principal) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Email != "":
		if i := strings.IndexByte(p.Email, '@'); i > 0 {
			return p.Email[:i]
		}
		return p.Email
	case p.IsGuest:
		return "Guest"
	}
	return p.UserID
}
