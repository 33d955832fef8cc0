// Package port 定义工作流层对基础设施的最小依赖
package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// ChatModelFactory 定义工作流层对 LLM ChatModel 的最小依赖（port）。
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
	DefaultProvider() string
}

// StaticFactory 总是返回同一个 ChatModel，用于单模型部署与测试
type StaticFactory struct {
	Model    model.BaseChatModel
	Provider string
}

// Get 实现 ChatModelFactory
func (f StaticFactory) Get(context.Context, string) (model.BaseChatModel, error) {
	return f.Model, nil
}

// DefaultProvider 实现 ChatModelFactory
func (f StaticFactory) DefaultProvider() string {
	if f.Provider == "" {
		return "static"
	}
	return f.Provider
}
