package auth

import (
	"testing"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	v, err := NewVerifier("s3cret")
	require.NoError(t, err)

	tok, err := v.Issue(Principal{UserID: "u1", Email: "ann@example.com"}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "ann", p.DisplayName())

	p, err = v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
}

func TestVerifyRejects(t *testing.T) {
	v, err := NewVerifier("s3cret")
	require.NoError(t, err)
	other, err := NewVerifier("different")
	require.NoError(t, err)

	forged, err := other.Issue(Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	noExpiry, err := v.Issue(Principal{UserID: "u1"}, 0)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":      "",
		"bearer":     "Bearer ",
		"garbage":    "not.a.token",
		"forged":     forged,
		"no subject": noSubject,
		"alg none":   none,
	} {
		_, err := v.Verify(tok)
		assert.ErrorIs(t, err, ErrUnauthorized, name)
	}

	_, err = v.Verify(noExpiry)
	assert.NoError(t, err)
}

func TestVerifyHonoursExpiry(t *testing.T) {
	v, err := NewVerifier("s3cret")
	require.NoError(t, err)
	claims := &Claims{UserID: "u1", StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(-time.Minute).Unix()}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Verify(tok)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSubjectFallbackAndGuestName(t *testing.T) {
	v, err := NewVerifier("k")
	require.NoError(t, err)
	claims := &Claims{IsGuest: true, StandardClaims: jwt.StandardClaims{Subject: "g-1"}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	p, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "g-1", p.UserID)
	assert.True(t, p.IsGuest)
	assert.Equal(t, "Guest", p.DisplayName())
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("  ")
	assert.Error(t, err)
}
