package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/train-ticket-booking/internal/config"
	"github.com/iliyamo/train-ticket-booking/internal/handler"
	"github.com/iliyamo/train-ticket-booking/internal/middleware"
	"github.com/iliyamo/train-ticket-booking/internal/model"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Health    *handler.HealthHandler
	Auth      *handler.AuthHandler
	Stations  *handler.StationHandler
	Trains    *handler.TrainHandler
	Schedules *handler.ScheduleHandler
	Bookings  *handler.BookingHandler
}

// Deps carries the middleware configuration.  A nil Redis client turns
// the response cache and the rate limiter into pass-throughs.
type Deps struct {
	JWTSecret string
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Redis     *redis.Client
	Log       *zap.Logger
}

// RegisterRoutes mounts every endpoint under /api plus /healthz.
func RegisterRoutes(e *echo.Echo, h Handlers, d Deps) {
	e.GET("/healthz", h.Health.Health)

	auth := middleware.JWTAuth(d.JWTSecret)
	admin := middleware.RequireRole(model.RoleAdmin)
	cache := middleware.NewRedisCache(d.Cache, d.Redis)
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)

	// ---- Auth ----
	a := e.Group("/api/auth")
	a.POST("/register", h.Auth.Register)
	a.POST("/login", h.Auth.Login)
	a.POST("/refresh", h.Auth.Refresh)
	a.POST("/logout", h.Auth.Logout, auth)
	a.GET("/me", h.Auth.Me, auth)

	// ---- Stations ----
	st := e.Group("/api/stations")
	st.GET("", h.Stations.List)
	st.GET("/:id", h.Stations.Get)
	st.POST("", h.Stations.Create, auth, admin)
	st.PUT("/:id", h.Stations.Update, auth, admin)
	st.DELETE("/:id", h.Stations.Delete, auth, admin)

	// ---- Trains ----
	tr := e.Group("/api/trains")
	tr.GET("", h.Trains.List)
	tr.GET("/:id", h.Trains.Get)
	tr.POST("", h.Trains.Create, auth, admin)
	tr.PUT("/:id", h.Trains.Update, auth, admin)
	tr.DELETE("/:id", h.Trains.Delete, auth, admin)

	// ---- Schedules ----
	// listings go through the response cache; writes bump its generation
	sc := e.Group("/api/schedules")
	sc.GET("", h.Schedules.List, cache)
	sc.GET("/search", h.Schedules.Search, cache)
	sc.GET("/:id", h.Schedules.Get, cache)
	sc.POST("", h.Schedules.Create, auth, admin)
	sc.PUT("/:id", h.Schedules.Update, auth, admin)
	sc.DELETE("/:id", h.Schedules.Delete, auth, admin)

	// ---- Bookings ----
	b := e.Group("/api/bookings", auth, middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	b.POST("", h.Bookings.Create, limit)
	b.GET("", h.Bookings.ListMine)
	b.GET("/all", h.Bookings.ListAll, admin)
	b.GET("/:id", h.Bookings.Get)
	b.PUT("/:id/confirm", h.Bookings.Confirm, limit)
	b.PUT("/:id/cancel", h.Bookings.Cancel, limit)
}
