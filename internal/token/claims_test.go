package token

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func seg(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

func TestParseClaims_Full(t *testing.T) {
	t.Parallel()
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	raw := sign(t, jwt.MapClaims{"userId": 42, "role": "admin", "exp": exp.Unix()})

	c, ok := ParseClaims(raw)
	require.True(t, ok)
	require.NotNil(t, c.ExpiresAt)
	require.True(t, exp.Equal(*c.ExpiresAt))
	require.NotNil(t, c.UserID)
	require.Equal(t, 42, *c.UserID)
	require.NotNil(t, c.Role)
	require.Equal(t, "admin", *c.Role)
}

func TestParseClaims_MissingFieldsAreNil(t *testing.T) {
	t.Parallel()
	c, ok := ParseClaims(sign(t, jwt.MapClaims{"sub": "x"}))
	require.True(t, ok)
	require.Nil(t, c.ExpiresAt)
	require.Nil(t, c.UserID)
	require.Nil(t, c.Role)
}

func TestParseClaims_WrongTypesIgnored(t *testing.T) {
	t.Parallel()
	c, ok := ParseClaims(sign(t, jwt.MapClaims{"userId": "seven", "role": 3, "exp": "soon"}))
	require.True(t, ok)
	require.Nil(t, c.ExpiresAt)
	require.Nil(t, c.UserID)
	require.Nil(t, c.Role)

	c, ok = ParseClaims(sign(t, jwt.MapClaims{"userId": 1.5}))
	require.True(t, ok)
	require.Nil(t, c.UserID)
}

func TestParseClaims_HeaderWithoutAlgStillDecodes(t *testing.T) {
	t.Parallel()
	raw := seg(`{"typ":"JWT"}`) + "." + seg(`{"userId":7,"role":"user"}`) + ".sig"
	c, ok := ParseClaims(raw)
	require.True(t, ok)
	require.Equal(t, 7, *c.UserID)
	require.Equal(t, "user", *c.Role)
}

func TestParseClaims_Malformed(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"",
		"not-a-token",
		"a.b",
		"a.b.c.d",
		seg(`{"alg":"HS256"}`) + ".!!!." + "sig",
		seg(`{"alg":"HS256"}`) + "." + seg(`not json`) + ".sig",
		seg(`{"alg":"HS256"}`) + "." + seg(`"a string"`) + ".sig",
		"garbage." + seg(`{"userId":1}`) + ".sig",
	} {
		c, ok := ParseClaims(raw)
		require.False(t, ok, "input %q", raw)
		require.Nil(t, c.ExpiresAt)
		require.Nil(t, c.UserID)
		require.Nil(t, c.Role)
	}
}
