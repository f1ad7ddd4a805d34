package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangormanly/momento/config"
)

func TestJWTMiddlewareRejectsMissingToken(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "momento"}
	e := echo.New()
	e.GET("/protected", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, jwtMiddleware(cfg))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJWTMiddlewareAcceptsValidTokenAndExposesUserID(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "momento"}
	token, err := NewTestToken(cfg, "user-123", time.Hour)
	require.NoError(t, err)

	var gotUserID string
	e := echo.New()
	e.GET("/protected", func(c echo.Context) error {
		gotUserID = requestUserID(c)
		return c.NoContent(http.StatusOK)
	}, jwtMiddleware(cfg))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-123", gotUserID)
}

func TestJWTMiddlewareRejectsTokenSignedWithWrongSecret(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "momento"}
	wrongCfg := config.AuthConfig{JWTSecret: "different-secret", JWTIssuer: "momento"}
	token, err := NewTestToken(wrongCfg, "user-123", time.Hour)
	require.NoError(t, err)

	e := echo.New()
	e.GET("/protected", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, jwtMiddleware(cfg))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestUserIDReturnsEmptyWithoutAuthContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	assert.Equal(t, "", requestUserID(c))
}
