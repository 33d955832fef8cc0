package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	sseHeartbeat = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventHandler 事件推送处理器，每个连接独立订阅事件总线
type EventHandler struct {
	bus      *bus.Bus
	pipeline Pipeline
}

// NewEventHandler 创建事件推送处理器
func NewEventHandler(b *bus.Bus, p Pipeline) *EventHandler {
	return &EventHandler{bus: b, pipeline: p}
}

// statusFrame 连接建立时下发的状态快照
type statusFrame struct {
	Type   string `json:"type"`
	Status any    `json:"status"`
}

// Stream 通过 SSE 推送事件
// @Summary 事件流
// @Tags Events
// @Produce text/event-stream
// @Success 200 "SSE stream"
// @Router /v1/events [get]
func (h *EventHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	sub := h.bus.Subscribe("sse-" + uuid.NewString())
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("status", h.pipeline.Status())
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
	logger.Debug(ctx, "sse client disconnected", "dropped", sub.Dropped())
}

// WebSocket 双向通道：下行推送事件，上行接收 JSON 命令
// 被拒绝的命令通过 errorOccurred 事件反馈
// @Summary WebSocket 事件与命令
// @Tags Events
// @Router /v1/ws [get]
func (h *EventHandler) WebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", "error", err.Error())
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.RequestIDKey, c.GetString("request_id"))
	sub := h.bus.Subscribe("ws-" + uuid.NewString())
	done := make(chan struct{})

	go h.writePump(conn, sub, done)
	h.readPump(ctx, conn)

	close(done)
	sub.Close()
}

// readPump 读取上行命令直到连接关闭
func (h *EventHandler) readPump(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn(ctx, "websocket read error", "error", err.Error())
			}
			return
		}
		cmd, err := bus.DecodeCommand(message)
		if err != nil {
			logger.Warn(ctx, "ignoring malformed websocket command", "error", err.Error())
			continue
		}
		// 拒绝原因已作为事件发布
		_ = h.pipeline.Dispatch(ctx, cmd)
	}
}

// writePump 下发状态快照与事件，并定期发送 ping
func (h *EventHandler) writePump(conn *websocket.Conn, sub *bus.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	if err := h.writeJSON(conn, statusFrame{Type: "status", Status: h.pipeline.Status()}); err != nil {
		return
	}

	for {
		select {
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if err := h.writeJSON(conn, e); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *EventHandler) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
