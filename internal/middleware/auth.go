package middleware

import (
	"strings"

	"github.com/m1z23r/drift/pkg/drift"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/services"
)

const AdminIDKey = "admin_id"

// Auth admits requests carrying a valid admin bearer token. When adminID is
// non-zero the token must also have been issued for that admin.
func Auth(jwtService *services.JWTService, adminID int64) drift.HandlerFunc {
	return func(c *drift.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Unauthorized("missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.Unauthorized("invalid authorization header format")
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			c.Unauthorized("invalid or expired token")
			return
		}

		if adminID != 0 && claims.AdminID != adminID {
			c.Forbidden("token was not issued for this admin")
			return
		}

		c.Set(AdminIDKey, claims.AdminID)

		c.Next()
	}
}

func GetAdminID(c *drift.Context) int64 {
	if id, ok := c.Get(AdminIDKey); ok {
		if aid, ok := id.(int64); ok {
			return aid
		}
	}
	return 0
}
