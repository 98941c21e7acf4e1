package middlewares

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg"
	t_token "github.com/MYCE-Refactoring/myce-backend-sub000/pkg/token"
)

const (
	// QueryToken token in query name
	QueryToken = "auth"

	// CookieToken token in cookie name
	CookieToken = "auth_token"

	// TokenViewerID viewer id from token, set c.locals name
	TokenViewerID = "ViewerID"
	// TokenViewerName viewer display name from token, set c.locals name
	TokenViewerName = "ViewerName"
	// TokenRole viewer role from token, set c.locals name
	TokenRole = "role"
)

var knownRoles = []string{string(t_token.RoleOwner), string(t_token.RoleOperator)}

// JWTMiddleware validates JWT in the query string or cookie
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Query(QueryToken)

		// websocket clients cannot set headers, fall back to cookie
		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		token, err := jwt.ParseWithClaims(tokenStr, &t_token.Claims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Unexpected signing method")
			}
			return t_token.JWTSecret, nil
		})
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		claims, ok := token.Claims.(*t_token.Claims)
		if !ok || !token.Valid || !pkg.Contains(knownRoles, claims.Role) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token claims",
			})
		}

		c.Locals(TokenViewerID, claims.ViewerID)
		c.Locals(TokenViewerName, claims.Name)
		c.Locals(TokenRole, claims.Role)
		return c.Next()
	}
}
