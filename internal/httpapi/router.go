package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/cookingpapa/internal/common"
	"github.com/suPer8Hu/cookingpapa/internal/httpapi/handlers"
	"github.com/suPer8Hu/cookingpapa/internal/httpapi/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	JWTSecret       string
	RateLimitPerMin int
	// CORSOrigins empty allows any origin.
	CORSOrigins []string
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func NewRouter(h *handlers.Handler, cfg RouterConfig, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(middleware.AccessLog(log))

	r.NoRoute(func(c *gin.Context) {
		common.Abort(c, common.ErrRouteNotFound)
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	if h.Limiter == nil {
		h.Limiter = middleware.NewRateLimiter(cfg.RateLimitPerMin)
	}
	// per-IP ceiling in front of the per-user one
	ipLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMin * 10)

	r.GET("/ping", h.Ping)

	pub := r.Group("/")
	pub.Use(middleware.RateLimit(ipLimiter, middleware.ClientIPKey, log))
	pub.POST("/messages", h.SendMessage)
	pub.POST("/messages/async", h.SendMessageAsync)
	pub.GET("/messages/jobs/:job_id", h.GetMessageJob)
	pub.GET("/users/:id/reservations", h.UserReservations)

	// staff (JWT required)
	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(cfg.JWTSecret))
	admin.GET("/reservations", h.ListReservations)
	admin.PATCH("/reservations/:id/status", h.SetReservationStatus)
	admin.GET("/support-requests", h.ListSupportRequests)
	admin.POST("/support-requests/:id/resolve", h.ResolveSupportRequest)
	admin.GET("/users/:id/history", h.UserHistory)
	return r
}
