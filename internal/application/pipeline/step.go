package pipeline

import (
	"context"
	"strings"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/internal/domain/entity"
	"z-novel-pipeline/internal/workflow/generation"
	"z-novel-pipeline/internal/workflow/prompt"
	apperrors "z-novel-pipeline/pkg/errors"
)

// step 一次生成调用
type step struct {
	// name 用于指标与链路，如 synopsis.generate
	name string
	// label 出现在进度日志中，如 "Synopsis generation"
	label string
	// phase 非空时每个 token 都发布 phaseContentUpdated
	phase  entity.ContentType
	prompt prompt.PromptID
	vars   map[string]any

	// analytic 为 true 时使用较低的分析温度
	analytic bool
}

// generate 渲染提示词、建立流并聚合全文
func (o *Orchestrator) generate(ctx context.Context, p *entity.Project, s step) (string, error) {
	msgs, err := o.prompts.Render(ctx, s.prompt, s.vars)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternalError, "render prompt")
	}

	req := generation.Request{
		Step:     s.name,
		Messages: msgs,
		Model:    p.Config.Model,
	}
	if s.analytic && o.settings.AnalysisTemperature > 0 {
		t := o.settings.AnalysisTemperature
		req.Temperature = &t
	}
	ts, err := o.gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}

	var onUpdate func(string)
	if s.phase != "" {
		phase := string(s.phase)
		onUpdate = func(acc string) {
			o.publish(bus.PhaseContentUpdated(phase, acc))
		}
	}
	res, err := o.agg.Consume(ctx, s.label, ts, onUpdate)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeGenerationFailed, s.label+" failed")
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", apperrors.ErrGenerationFailed.WithDetail(s.label + " produced no text")
	}
	return text, nil
}
