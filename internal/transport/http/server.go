package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campus-server/internal/auth"
	"github.com/vovakirdan/campus-server/internal/config"
	"github.com/vovakirdan/campus-server/internal/core"
	"github.com/vovakirdan/campus-server/internal/metrics"
	"github.com/vovakirdan/campus-server/internal/ratelimit"
	"github.com/vovakirdan/campus-server/internal/service/courses"
	"github.com/vovakirdan/campus-server/internal/service/invites"
	"github.com/vovakirdan/campus-server/internal/store"
)

// Deps are the services the HTTP layer routes to.
type Deps struct {
	Auth    *auth.Service
	Courses *courses.Service
	Invites *invites.Service
	Storage URLSigner
	Chat    *core.Chat
	Limiter ratelimit.Limiter
	Metrics *metrics.Metrics

	// BaseContext outlives every request; cancelling it closes open chat sessions.
	BaseContext context.Context
}

// NewServer builds an HTTP server with all routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler mounts the chat endpoint next to the REST router. The WebSocket
// upgrade hijacks the connection, so it stays outside gin.
func NewHandler(deps Deps, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	base := deps.BaseContext
	if base == nil {
		base = context.Background()
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("GET /ws/channels/{slug}", NewWSHandler(base, deps.Chat, cfg.WSMaxMessageBytes, logger))
	mux.Handle("/", NewRouter(deps, cfg, logger))
	return mux
}

// NewRouter builds the gin engine serving the REST API and operational routes.
func NewRouter(deps Deps, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger, deps.Metrics))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigins))

	router.GET("/health", healthHandler)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	apiHandlers := NewAPIHandlers(deps.Auth, deps.Limiter, logger)
	courseHandlers := NewCourseHandlers(deps.Courses, logger)
	inviteHandlers := NewInviteHandlers(deps.Invites, logger)
	storageHandlers := NewStorageHandlers(deps.Storage, logger)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", apiHandlers.Register)
		authGroup.POST("/login", apiHandlers.Login)
		authGroup.POST("/refresh", apiHandlers.Refresh)
	}

	optional := router.Group("/")
	optional.Use(OptionalAuthMiddleware(deps.Auth, logger))
	{
		optional.GET("/courses", courseHandlers.ListCourses)
		optional.GET("/courses/:slug", courseHandlers.GetCourse)
	}

	user := router.Group("/")
	user.Use(AuthMiddleware(deps.Auth, logger), RequireRole(store.RoleUser))
	{
		user.GET("/me", apiHandlers.Me)
		user.POST("/progress/mark", courseHandlers.MarkProgress)
		user.POST("/invites/redeem", inviteHandlers.Redeem)
		user.GET("/storage/sign", storageHandlers.Sign)
	}

	admin := router.Group("/admin")
	admin.Use(AuthMiddleware(deps.Auth, logger), RequireRole(store.RoleAdmin))
	{
		admin.POST("/courses", courseHandlers.CreateCourse)
		admin.POST("/lessons", courseHandlers.CreateLesson)
		admin.POST("/invites", inviteHandlers.Create)
	}

	return router
}

func healthHandler(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}
