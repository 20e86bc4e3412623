package api

import (
	"strings"

	"OBScan/internal/domain/models"
	"OBScan/internal/service/auth"
	xhttp "OBScan/pkg/http"

	"github.com/labstack/echo/v4"
)

const claimsKey = "auth.claims"

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// JWT rejects requests without a valid bearer token and stores the claims
// on the context.
func JWT(parser TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return xhttp.UnauthorizedResponse(c, "missing bearer token")
			}
			claims, err := parser.Parse(strings.TrimSpace(raw))
			if err != nil {
				return xhttp.UnauthorizedResponse(c, "token is invalid or expired")
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// RequireRole lets the request through when the token carries any of roles.
// It must run after JWT.
func RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := claimsFrom(c)
			if !ok {
				return xhttp.UnauthorizedResponse(c, "missing bearer token")
			}
			granted := models.ParseRoles(strings.Join(claims.Roles, ","))
			for _, r := range roles {
				if granted.Has(r) {
					return next(c)
				}
			}
			return xhttp.ForbiddenResponse(c, "insufficient role")
		}
	}
}

func claimsFrom(c echo.Context) (*auth.Claims, bool) {
	claims, ok := c.Get(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}
