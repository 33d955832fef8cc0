// Package prompt 管理内嵌的提示词模板
package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// PromptID 提示词标识
type PromptID string

const (
	PromptSynopsis           PromptID = "synopsis"
	PromptSynopsisRefine     PromptID = "synopsis_refine"
	PromptOutline            PromptID = "outline"
	PromptCharacters         PromptID = "characters"
	PromptWorld              PromptID = "world"
	PromptTimeline           PromptID = "timeline"
	PromptArtifactRevise     PromptID = "artifact_revise"
	PromptResearch           PromptID = "research"
	PromptSectionDraft       PromptID = "section_draft"
	PromptSectionRevise      PromptID = "section_revise"
	PromptSectionPolishFlow  PromptID = "section_polish_flow"
	PromptSectionPolishStyle PromptID = "section_polish_style"
	PromptSummary            PromptID = "summary"
	PromptContextDigest      PromptID = "context_digest"
	PromptConsistency        PromptID = "consistency"
)

const defaultSystem = "templates/novelist.system.txt"

// Registry 缓存已解析的聊天模板
type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

// NewRegistry 创建模板注册表
func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

// ChatTemplate 返回模板，首次访问时从内嵌文件加载
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return nil, err
	}
	system, err := readEmbeddedText(systemPath)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

// Render 渲染模板为消息列表
func (r *Registry) Render(ctx context.Context, id PromptID, vars map[string]any) ([]*schema.Message, error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt %s: %w", id, err)
	}
	return msgs, nil
}

func resolvePromptFiles(id PromptID) (systemFile string, userFile string, err error) {
	user := "templates/" + string(id) + ".user.txt"
	switch id {
	case PromptCharacters, PromptWorld, PromptConsistency:
		return "templates/" + string(id) + ".system.txt", user, nil
	case PromptSynopsis, PromptSynopsisRefine, PromptOutline, PromptTimeline, PromptArtifactRevise,
		PromptResearch, PromptSectionDraft, PromptSectionRevise, PromptSectionPolishFlow,
		PromptSectionPolishStyle, PromptSummary, PromptContextDigest:
		return defaultSystem, user, nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
