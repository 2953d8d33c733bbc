package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/cookingpapa/internal/auth"
	"github.com/suPer8Hu/cookingpapa/internal/common"
)

const (
	StaffIDKey   = "staff_id"
	StaffNameKey = "staff_name"
)

// AuthRequired admits requests carrying a valid staff bearer token.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			common.Abort(c, common.ErrUnauthorized)
			return
		}
		claims, err := auth.ParseJWT(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), secret)
		if err != nil {
			common.Abort(c, common.ErrUnauthorized)
			return
		}
		c.Set(StaffIDKey, claims.Subject)
		c.Set(StaffNameKey, claims.Name)
		c.Next()
	}
}

// StaffFrom returns the authenticated staff id, or "" outside AuthRequired.
func StaffFrom(c *gin.Context) string {
	return c.GetString(StaffIDKey)
}
