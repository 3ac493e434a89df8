package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"novelrank/pkg/utils"
)

const CtxClaimsKey = "auth_claims"

// AuthMiddleware admits requests carrying a valid admin bearer token.
func AuthMiddleware(tokens TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			utils.Abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		raw := strings.TrimSpace(h[len("Bearer "):])
		claims, err := tokens.Parse(raw)
		if err != nil {
			utils.Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.Role != RoleAdmin {
			utils.Abort(c, http.StatusForbidden, "admin only")
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

func MustGetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}
