package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/cookingpapa/internal/common"
	"go.uber.org/zap"
)

// Recovery turns a panic into a 500 envelope and logs it.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", RequestIDFrom(c)),
					zap.Stack("stack"),
				)
				common.Abort(c, common.ErrInternal)
			}
		}()
		c.Next()
	}
}
