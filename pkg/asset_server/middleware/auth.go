package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/vfx-pipeline/asset-server/pkg/asset_server/auth"
)

// RoleContextKey is where the resolved role is stored for handlers.
const RoleContextKey = "user_role"

// RequireRole gates a route group behind a minimum role. Credentials come
// either from the X-API-Key header (looked up in the reloadable keystore) or
// from a Bearer JWT whose "role" claim was signed with jwtSecret. An unknown
// credential yields 401, a known one below the required rank 403, so clients
// can tell "log in" apart from "ask for elevation".
func RequireRole(ks *auth.Keystore, jwtSecret, minRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := resolveRole(c, ks, jwtSecret)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if !auth.Allows(role, minRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Set(RoleContextKey, role)
		c.Next()
	}
}

func resolveRole(c *gin.Context, ks *auth.Keystore, jwtSecret string) (string, bool) {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return ks.Lookup(key)
	}

	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	role, ok := claims["role"].(string)
	if !ok || auth.Rank(role) == 0 {
		return "", false
	}
	return role, true
}
