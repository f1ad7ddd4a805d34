package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/common"
	"github.com/briangormanly/momento/config"
)

// requestLoggingMiddleware logs one structured entry per request using
// common.HTTPFields, the field shape for HTTP request log lines.
func requestLoggingMiddleware(log *logrus.Entry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			fields := common.HTTPFields(c.Request().Method, c.Path(), c.Response().Status, time.Since(start))
			log.WithFields(fields).Info("request handled")
			return err
		}
	}
}

// Claims is the bearer-token payload this service trusts from the external
// auth collaborator: just enough to tag ingested entries with the
// submitting user, not a full identity/session model.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// jwtMiddleware validates an HS256 bearer token against cfg's signing
// secret, storing the parsed Claims on the echo.Context for handlers to
// read via requestUserID. The token's issuer claim is not checked.
func jwtMiddleware(cfg config.AuthConfig) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(cfg.JWTSecret),
		TokenLookup:   "header:Authorization:Bearer ",
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return new(Claims) },
	})
}

// requestUserID extracts the submitting user's ID from the request's
// validated JWT claims, or "" if the route carries no auth context (e.g.
// in tests that bypass the middleware).
func requestUserID(c echo.Context) string {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil {
		return ""
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return ""
	}
	return claims.UserID
}

// NewTestToken signs a Claims token for userID with cfg's secret; it
// exists so handler tests and local development can mint a bearer token
// without standing up the external auth collaborator.
func NewTestToken(cfg config.AuthConfig, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.JWTIssuer,
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}
