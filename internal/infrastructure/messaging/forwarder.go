package messaging

import (
	"context"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/pkg/logger"
	"z-novel-pipeline/pkg/metrics"
)

// Forwarder 将总线事件逐条写入 Redis Stream
// 写入失败只记录，不重试，也不阻塞总线
type Forwarder struct {
	producer       *Producer
	stream         Stream
	forwardContent bool
}

// NewForwarder 创建事件外发器；forwardContent 为 false 时跳过逐 token 的内容快照
func NewForwarder(producer *Producer, stream Stream, forwardContent bool) *Forwarder {
	if stream == "" {
		stream = StreamEvents
	}
	return &Forwarder{
		producer:       producer,
		stream:         stream,
		forwardContent: forwardContent,
	}
}

// Run 消费订阅直到 ctx 取消或订阅关闭
func (f *Forwarder) Run(ctx context.Context, sub *bus.Subscription) error {
	defer sub.Close()
	logger.Info(ctx, "event forwarder started", "stream", string(f.stream))

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "event forwarder stopped", "dropped", sub.Dropped())
			return nil
		case e, ok := <-sub.C():
			if !ok {
				return nil
			}
			f.forward(ctx, e)
		}
	}
}

// forward 写入单个事件，返回是否已写入
func (f *Forwarder) forward(ctx context.Context, e bus.Event) bool {
	if e.Type == bus.EventPhaseContentUpdated && !f.forwardContent {
		return false
	}

	if _, err := f.producer.PublishEvent(ctx, f.stream, e); err != nil {
		metrics.RedisStreamPublished.WithLabelValues(string(f.stream), "failed").Inc()
		logger.Warn(ctx, "failed to forward event", "type", string(e.Type), "seq", e.Seq, "error", err.Error())
		return false
	}
	metrics.RedisStreamPublished.WithLabelValues(string(f.stream), "success").Inc()
	return true
}
