// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"z-novel-pipeline/internal/infrastructure/messaging"
)

// ModelProber 探测本地推理服务
type ModelProber interface {
	Ping(ctx context.Context) error
	HasModel(ctx context.Context, name string) (bool, error)
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	prober  ModelProber
	model   string
	redis   *redis.Client
	version string
}

// NewHealthHandler 创建健康检查处理器；redisClient 为空表示未启用事件外发
func NewHealthHandler(prober ModelProber, model string, redisClient *redis.Client, version string) *HealthHandler {
	return &HealthHandler{
		prober:  prober,
		model:   model,
		redis:   redisClient,
		version: version,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Ready 就绪检查接口：推理服务必须可达，模型缺失与 Redis 异常只降级
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{
		"ollama": {Status: "unknown"},
		"model":  {Status: "unknown"},
		"redis":  {Status: "disabled"},
	}
	ready := true

	if h.prober == nil {
		checks["ollama"].Status = "missing"
		checks["ollama"].Error = "ollama probe not configured"
		ready = false
	} else {
		start := time.Now()
		err := h.prober.Ping(ctx)
		checks["ollama"].LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			checks["ollama"].Status = "error"
			checks["ollama"].Error = err.Error()
			checks["model"].Status = "unknown"
			ready = false
		} else {
			checks["ollama"].Status = "ok"
			ok, err := h.prober.HasModel(ctx, h.model)
			switch {
			case err != nil:
				checks["model"].Status = "error"
				checks["model"].Error = err.Error()
			case !ok:
				checks["model"].Status = "degraded"
				checks["model"].Error = "model " + h.model + " is not pulled"
			default:
				checks["model"].Status = "ok"
			}
		}
	}

	if h.redis != nil {
		start := time.Now()
		err := messaging.HealthCheck(ctx, h.redis)
		checks["redis"] = &readinessCheck{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			checks["redis"].Status = "degraded"
			checks["redis"].Error = err.Error()
		}
	}

	resp := readinessResponse{
		Status: "ok",
		Checks: checks,
	}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}
