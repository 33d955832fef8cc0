// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"z-novel-pipeline/internal/config"
	"z-novel-pipeline/internal/interfaces/http/handler"
	"z-novel-pipeline/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health  *handler.HealthHandler
	Project *handler.ProjectHandler
	Command *handler.CommandHandler
	Event   *handler.EventHandler
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
}

// New 创建新的路由器
func New(cfg *config.Config, h Handlers) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine: gin.New(),
		cfg:    cfg,
	}

	r.setupMiddleware()
	r.setupRoutes(h)

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name, "/health", "/live", "/ready", r.cfg.Observability.Metrics.Path))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes(h Handlers) {
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	{
		projects := v1.Group("/projects")
		{
			projects.GET("", h.Project.ListProjects)
			projects.POST("", h.Project.CreateProject)
			projects.GET("/:name", h.Project.GetProject)
			projects.POST("/:name/load", h.Project.LoadProject)
			projects.GET("/:name/files/:file", h.Project.GetFile)
		}

		v1.GET("/status", h.Command.Status)

		commands := v1.Group("/commands")
		{
			commands.POST("/start", h.Command.Start)
			commands.POST("/approve", h.Command.Approve)
			commands.POST("/adjust", h.Command.Adjust)
			commands.POST("/pause", h.Command.Pause)
			commands.POST("/resume", h.Command.Resume)
			commands.POST("/continue", h.Command.Continue)
			commands.POST("/milestone", h.Command.Milestone)
			commands.POST("/consistency", h.Command.Consistency)
		}

		v1.GET("/events", h.Event.Stream)
		v1.GET("/ws", h.Event.WebSocket)
	}
}
