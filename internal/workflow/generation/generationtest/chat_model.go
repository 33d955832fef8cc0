// Package generationtest 提供可编程的 ChatModel 测试替身
package generationtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrUnavailable 模拟推理服务不可用
var ErrUnavailable = errors.New("connection refused")

// Responder 根据输入消息决定回复
type Responder func(msgs []*schema.Message) (string, error)

// ChatModel 将回复按词切成流式片段
type ChatModel struct {
	mu        sync.Mutex
	respond   Responder
	failFirst int
	calls     []string
	temps     []*float32
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// New 创建测试模型
func New(respond Responder) *ChatModel {
	return &ChatModel{respond: respond}
}

// Echo 固定回复
func Echo(text string) *ChatModel {
	return New(func([]*schema.Message) (string, error) { return text, nil })
}

// FailFirst 前 n 次 Stream 调用返回 ErrUnavailable
func (m *ChatModel) FailFirst(n int) *ChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFirst = n
	return m
}

// SetResponder 替换回复逻辑
func (m *ChatModel) SetResponder(r Responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respond = r
}

// Calls 返回每次调用的最后一条用户消息
func (m *ChatModel) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Temperatures 返回每次调用携带的温度，未设置时为 nil
func (m *ChatModel) Temperatures() []*float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*float32(nil), m.temps...)
}

// Generate 实现 BaseChatModel
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	text, err := m.next(input, opts)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream 实现 BaseChatModel，末尾附带一个空内容的用量包
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := m.next(input, opts)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitAfter(text, " ")
	msgs := make([]*schema.Message, 0, len(parts)+1)
	for _, p := range parts {
		if p != "" {
			msgs = append(msgs, schema.AssistantMessage(p, nil))
		}
	}
	msgs = append(msgs, &schema.Message{
		Role: schema.Assistant,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{CompletionTokens: len(parts)},
		},
	})
	return schema.StreamReaderFromArray(msgs), nil
}

func (m *ChatModel) next(input []*schema.Message, opts []model.Option) (string, error) {
	common := model.GetCommonOptions(&model.Options{}, opts...)
	m.mu.Lock()
	m.calls = append(m.calls, LastUserContent(input))
	m.temps = append(m.temps, common.Temperature)
	if m.failFirst > 0 {
		m.failFirst--
		m.mu.Unlock()
		return "", ErrUnavailable
	}
	respond := m.respond
	m.mu.Unlock()

	if respond == nil {
		return "", errors.New("no responder configured")
	}
	return respond(input)
}

// LastUserContent 返回最后一条用户消息内容
func LastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] != nil && msgs[i].Role == schema.User {
			return msgs[i].Content
		}
	}
	return ""
}
