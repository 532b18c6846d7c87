package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carebridge/carebridge/internal/types"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
)

func Test_hashPassword_verifyPassword(t *testing.T) {
	hash, err := hashPassword("password")
	assert.NoError(t, err, "expected no error hashing password")
	assert.NotEqual(t, "password", hash, "expected hash to differ from plaintext")

	assert.True(t, verifyPassword(hash, "password"), "expected correct password to verify")
	assert.False(t, verifyPassword(hash, "wrong"), "expected wrong password to fail")
}

func Test_createJwtForSession_verifyToken(t *testing.T) {
	app := &CareBridgeApp{signingKey: testSigningKey}

	user := types.User{Id: 7, Role: types.RoleDoctor}
	token, err := app.createJwtForSession(user, time.Hour)
	assert.NoError(t, err, "expected no error creating token")

	userId, role, err := app.verifyToken(token)
	assert.NoError(t, err, "expected token to verify")
	assert.Equal(t, 7, userId, "expected user id claim to round-trip")
	assert.Equal(t, types.RoleDoctor, role, "expected role claim to round-trip")
}

func Test_verifyToken(t *testing.T) {
	app := &CareBridgeApp{signingKey: testSigningKey}

	t.Run("rejects token signed with a different key", func(t *testing.T) {
		other := &CareBridgeApp{signingKey: []byte("other-key")}
		token, err := other.createJwtForSession(types.User{Id: 1, Role: types.RolePatient}, time.Hour)
		assert.NoError(t, err)

		_, _, err = app.verifyToken(token)
		assert.Error(t, err, "expected verification to fail")
	})

	t.Run("rejects unexpected signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			userIdClaim: 1,
			roleClaim:   string(types.RolePatient),
			expClaim:    time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		assert.NoError(t, err)

		_, _, err = app.verifyToken(signed)
		assert.Error(t, err, "expected none algorithm to be rejected")
	})

	t.Run("rejects expired token", func(t *testing.T) {
		token, err := app.createJwtForSession(types.User{Id: 1, Role: types.RolePatient}, -time.Hour)
		assert.NoError(t, err)

		_, _, err = app.verifyToken(token)
		assert.Error(t, err, "expected expired token to be rejected")
	})

	t.Run("rejects invalid role claim", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			userIdClaim: 1,
			roleClaim:   "WIZARD",
			expClaim:    time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString(testSigningKey)
		assert.NoError(t, err)

		_, _, err = app.verifyToken(signed)
		assert.Error(t, err, "expected unknown role to be rejected")
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, _, err := app.verifyToken("not-a-token")
		assert.Error(t, err)
	})
}

func Test_tokenFromRequest(t *testing.T) {
	t.Run("reads the session cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "cookie-token"})

		assert.Equal(t, "cookie-token", tokenFromRequest(req))
	})

	t.Run("falls back to bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer header-token")

		assert.Equal(t, "header-token", tokenFromRequest(req))
	})

	t.Run("cookie takes precedence over header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "cookie-token"})
		req.Header.Set("Authorization", "Bearer header-token")

		assert.Equal(t, "cookie-token", tokenFromRequest(req))
	})

	t.Run("empty when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		assert.Equal(t, "", tokenFromRequest(req))
	})
}

func Test_createJwtCookie(t *testing.T) {
	cookie := createJwtCookie("tok", time.Hour)

	assert.Equal(t, tokenCookieKey, cookie.Name)
	assert.Equal(t, "tok", cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly, "expected cookie to be http-only")
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cookie.Expires, time.Second)
}
