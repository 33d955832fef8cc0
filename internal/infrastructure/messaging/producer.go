package messaging

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-pipeline/internal/bus"
	apperrors "z-novel-pipeline/pkg/errors"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", apperrors.Wrap(err, apperrors.CodeMessagingError, "failed to marshal message")
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", apperrors.Wrap(err, apperrors.CodeMessagingError, "failed to publish message")
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishEvent 发布流水线事件
func (p *Producer) PublishEvent(ctx context.Context, stream Stream, e bus.Event) (string, error) {
	msg, err := EventMessage(e)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeMessagingError, "failed to encode event")
	}
	return p.Publish(ctx, stream, msg)
}

// PublishCommand 向命令流投递一条命令
func (p *Producer) PublishCommand(ctx context.Context, stream Stream, cmd bus.Command) (string, error) {
	msg, err := NewMessage(uuid.NewString(), TypeCommand, cmd.Name, cmd)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeMessagingError, "failed to encode command")
	}
	msg.SetMetadata("kind", string(cmd.Kind))
	return p.Publish(ctx, stream, msg)
}
