package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// ContextKey represents keys for context values
type ContextKey string

// SubjectContextKey holds the authenticated caller's identity.
const SubjectContextKey ContextKey = "subject"

// RequireAuth accepts either an X-API-Key header matching one of the
// configured keys, or an Authorization Bearer token minted by the token
// service. Configured keys may be plaintext or bcrypt hashes ($2...).
func RequireAuth(tokenService *TokenService, apiKeys []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key := c.Request().Header.Get("X-API-Key"); key != "" {
				if matchAPIKey(key, apiKeys) {
					c.Set(string(SubjectContextKey), "api-key")
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header or X-API-Key required")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			subject, err := tokenService.ValidateAccessToken(tokenParts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(SubjectContextKey), subject)
			return next(c)
		}
	}
}

func matchAPIKey(presented string, configured []string) bool {
	for _, key := range configured {
		if strings.HasPrefix(key, "$2") {
			if bcrypt.CompareHashAndPassword([]byte(key), []byte(presented)) == nil {
				return true
			}
			continue
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(presented)) == 1 {
			return true
		}
	}
	return false
}

// GetSubject extracts the authenticated subject from echo context.
func GetSubject(c echo.Context) string {
	subject, _ := c.Get(string(SubjectContextKey)).(string)
	return subject
}
