package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/brightling/convene/internal/identity"
)

// Auth verifies the bearer token issued by the corporate IdP and stores the
// caller's identity on the request context. Tokens must be HMAC-signed and
// carry sub and email claims; when allowedDomain is non-empty the email
// domain must match it.
func Auth(secret, allowedDomain string) echo.MiddlewareFunc {
	key := []byte(secret)
	allowedDomain = strings.ToLower(allowedDomain)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing Authorization header")
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header must be a Bearer token")
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
			}

			sub, _ := claims["sub"].(string)
			email, _ := claims["email"].(string)
			if sub == "" || email == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing sub or email claim")
			}

			at := strings.LastIndex(email, "@")
			if at < 0 || at == len(email)-1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "malformed email claim")
			}
			domain := strings.ToLower(email[at+1:])

			if allowedDomain != "" && domain != allowedDomain {
				return echo.NewHTTPError(http.StatusForbidden, "email domain is not allowed")
			}

			identity.ToContext(c, identity.Identity{
				UserID: sub,
				Email:  email,
				Domain: domain,
			})
			return next(c)
		}
	}
}
