// Package generation 提供带重试的流式生成客户端
package generation

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	llmctx "z-novel-pipeline/internal/domain/service"
	"z-novel-pipeline/internal/workflow/port"
	apperrors "z-novel-pipeline/pkg/errors"
	"z-novel-pipeline/pkg/logger"
	"z-novel-pipeline/pkg/metrics"
	"z-novel-pipeline/pkg/tracer"
)

// Request 单次生成请求，构造后不再修改
type Request struct {
	Step        string
	Messages    []*schema.Message
	Temperature *float32
	Model       string
}

// Reporter 接收面向用户的日志通知
type Reporter interface {
	Log(ctx context.Context, message string)
}

// ReporterFunc 函数形式的 Reporter
type ReporterFunc func(ctx context.Context, message string)

// Log 实现 Reporter
func (f ReporterFunc) Log(ctx context.Context, message string) { f(ctx, message) }

// Client 对 ChatModel.Stream 做有界重试
type Client struct {
	factory  port.ChatModelFactory
	provider string
	policy   RetryPolicy
	reporter Reporter
	sleep    Sleeper
}

// Option 客户端选项
type Option func(*Client)

// WithReporter 设置通知接收者
func WithReporter(r Reporter) Option {
	return func(c *Client) { c.reporter = r }
}

// WithSleeper 替换重试等待实现
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithProvider 指定提供商，默认使用工厂的默认提供商
func WithProvider(name string) Option {
	return func(c *Client) { c.provider = name }
}

// NewClient 创建生成客户端
func NewClient(factory port.ChatModelFactory, policy RetryPolicy, opts ...Option) *Client {
	c := &Client{
		factory: factory,
		policy:  policy,
		sleep:   ContextSleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.provider == "" {
		c.provider = factory.DefaultProvider()
	}
	return c
}

// Policy 返回当前重试策略
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

// Generate 建立流式连接，连接失败按策略重试
// 全部失败时返回 CodeGenerationFailed，包装最后一次错误
func (c *Client) Generate(ctx context.Context, req Request) (TokenStream, error) {
	if len(req.Messages) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("generation request has no messages")
	}

	ctx = llmctx.WithProvider(llmctx.WithStep(ctx, req.Step), c.provider)
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      req.Step,
		Type:      c.provider,
		Component: components.ComponentOfChatModel,
	})

	chatModel, err := c.factory.Get(ctx, c.provider)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMProviderError, "resolve chat model")
	}

	var opts []model.Option
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}

	attempts := c.policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, span := tracer.Start(ctx, "generation.attempt", trace.WithAttributes(
			attribute.String("llm.step", req.Step),
			attribute.Int("llm.attempt", attempt),
		))
		reader, err := chatModel.Stream(attemptCtx, req.Messages, opts...)
		tracer.End(span, err)
		if err == nil {
			step := req.Step
			return newEinoTokenStream(reader, func(tokens int, err error) {
				metrics.LLMTokensStreamed.WithLabelValues(step).Add(float64(tokens))
				if err != nil {
					logger.Warn(ctx, "generation stream ended with error", "step", step, "tokens", tokens, "error", err.Error())
				}
			}), nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(ctx.Err(), apperrors.CodeGenerationFailed, "generation cancelled")
		}

		metrics.LLMRetries.WithLabelValues(req.Step).Inc()
		c.report(ctx, fmt.Sprintf("LLM connection attempt %d/%d failed: %v", attempt, attempts, err))

		if attempt < attempts {
			if err := c.sleep(ctx, c.policy.Delay(attempt)); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeGenerationFailed, "generation cancelled")
			}
		}
	}

	msg := fmt.Sprintf("Failed to connect to LLM after %d attempts: %v", attempts, lastErr)
	c.report(ctx, msg)
	return nil, apperrors.Wrap(lastErr, apperrors.CodeGenerationFailed, fmt.Sprintf("failed to connect to LLM after %d attempts", attempts))
}

func (c *Client) report(ctx context.Context, msg string) {
	logger.Warn(ctx, msg)
	if c.reporter != nil {
		c.reporter.Log(ctx, msg)
	}
}
