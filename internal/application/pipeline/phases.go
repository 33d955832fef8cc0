package pipeline

import (
	"context"
	"fmt"
	"strings"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/internal/domain/entity"
	"z-novel-pipeline/internal/domain/repository"
	"z-novel-pipeline/internal/workflow/prompt"
	apperrors "z-novel-pipeline/pkg/errors"
	"z-novel-pipeline/pkg/utils"
)

// autoRefineGuidance 自动精修梗概时使用的修订要求
const autoRefineGuidance = "Sharpen the central conflict and give the ending a clear emotional payoff."

// Start 解析原始配置并开始生成梗概
func (o *Orchestrator) Start(ctx context.Context, raw string) error {
	cfg, err := ParseStartConfig(raw)
	if err != nil {
		return o.reject(ctx, bus.CommandStart, err)
	}
	return o.StartWith(ctx, cfg)
}

// StartWith 以结构化参数开始生成梗概，只能在 Idle 且已打开项目时调用
func (o *Orchestrator) StartWith(ctx context.Context, cfg StartConfig) error {
	if err := cfg.Validate(); err != nil {
		return o.reject(ctx, bus.CommandStart, err)
	}
	if cfg.SoftTarget == 0 {
		cfg.SoftTarget = o.settings.SoftTarget
	}
	return o.accept(ctx, bus.CommandStart, canStart, entity.StateGeneratingSynopsis, job{
		name: "start",
		run: func(ctx context.Context, p *entity.Project) (entity.PhaseState, error) {
			return o.runStart(ctx, p, cfg)
		},
	})
}

// canStart 只允许在尚未开始写正文的项目上重新开始，已有正文或规划齐全时应使用 Continue
func canStart(state entity.PhaseState, p *entity.Project) error {
	if state != entity.StateIdle {
		return invalidState(state)
	}
	if len(p.Story) > 0 || p.PlanningComplete() {
		return apperrors.ErrInvalidState.WithDetail("project is already planned or has story text; use continue to resume writing")
	}
	return nil
}

func (o *Orchestrator) runStart(ctx context.Context, p *entity.Project, cfg StartConfig) (entity.PhaseState, error) {
	o.Log(ctx, fmt.Sprintf("Parsed config - Idea: %s, Tone: %s, Soft Target: %d",
		utils.TruncateRunes(cfg.Idea, 50), utils.TruncateRunes(cfg.Tone, 50), cfg.SoftTarget))

	pc := entity.NewProjectConfig(o.settings.SectionsPerChapter, o.settings.TotalChapters)
	pc.Idea = cfg.Idea
	pc.Tone = cfg.Tone
	pc.SoftTarget = cfg.SoftTarget
	pc.Model = p.Config.Model
	if pc.Model == "" {
		pc.Model = o.settings.Model
	}
	if err := o.saveConfig(ctx, p, pc); err != nil {
		return entity.StateIdle, err
	}
	o.Log(ctx, "Wrote configuration to config.txt")

	entry := fmt.Sprintf("Novel started: %s. Initial tone: %s.\n", cfg.Idea, cfg.Tone)
	if err := o.repo.Append(ctx, p.Name, repository.FileContext, entry); err != nil {
		return entity.StateIdle, err
	}
	o.Log(ctx, "Updated context.txt with novel start information")

	o.Log(ctx, "Starting synopsis generation...")
	synopsis, err := o.generate(ctx, p, step{
		name:   "synopsis.generate",
		label:  "Synopsis generation",
		phase:  entity.ContentSynopsis,
		prompt: prompt.PromptSynopsis,
		vars: map[string]any{
			"idea":        cfg.Idea,
			"tone":        cfg.Tone,
			"soft_target": cfg.SoftTarget,
		},
	})
	if err != nil {
		return entity.StateIdle, err
	}

	existing, err := o.repo.Read(ctx, p.Name, repository.FileSynopsis)
	if err != nil {
		return entity.StateIdle, err
	}
	if strings.TrimSpace(existing) == "" {
		if err := o.repo.Write(ctx, p.Name, repository.FileSynopsis, synopsis); err != nil {
			return entity.StateIdle, err
		}
		p.Synopsis = synopsis
	} else {
		o.Log(ctx, "synopsis.txt already written, keeping the original synopsis")
		p.Synopsis = existing
	}

	o.setState(entity.StateRefiningSynopsis)
	o.Log(ctx, "Starting synopsis refinement...")
	if err := o.refineSynopsis(ctx, p, autoRefineGuidance, "Synopsis refinement"); err != nil {
		return entity.StateIdle, err
	}
	return entity.StateAwaitingSynopsisApproval, nil
}

func (o *Orchestrator) refineSynopsis(ctx context.Context, p *entity.Project, feedback, label string) error {
	current := p.ApprovedSynopsis()
	if strings.TrimSpace(current) == "" {
		return apperrors.ErrInvalidState.WithDetail("no synopsis available for refinement")
	}
	refined, err := o.generate(ctx, p, step{
		name:   "synopsis.refine",
		label:  label,
		phase:  entity.ContentSynopsis,
		prompt: prompt.PromptSynopsisRefine,
		vars: map[string]any{
			"idea":     p.Config.Idea,
			"tone":     p.Config.Tone,
			"synopsis": current,
			"feedback": feedback,
		},
	})
	if err != nil {
		return err
	}
	if err := o.repo.Write(ctx, p.Name, repository.FileRefinedSynopsis, refined); err != nil {
		return err
	}
	p.RefinedSynopsis = refined
	return o.markReady(ctx, p, entity.ContentSynopsis)
}

// Approve 审批当前产物并进入下一阶段
// content 非空时视为用户编辑后的版本，先覆盖产物再继续
func (o *Orchestrator) Approve(ctx context.Context, ct entity.ContentType, content string) error {
	if ct == entity.ContentSection {
		return o.approveSection(ctx, content)
	}
	next, ok := ct.Next()
	if !ok {
		return o.reject(ctx, bus.CommandApprove, apperrors.ErrInvalidParam.WithDetail("unknown phase "+string(ct)))
	}
	prior := ct.Awaiting()
	return o.accept(ctx, bus.CommandApprove, requireState(prior), next.Generating(), job{
		name: string(next) + ".generate",
		run: func(ctx context.Context, p *entity.Project) (entity.PhaseState, error) {
			if err := o.commitApproval(ctx, p, ct, content); err != nil {
				return prior, err
			}
			if next == entity.ContentSection {
				if err := o.draftSection(ctx, p); err != nil {
					return prior, err
				}
				return entity.StateAwaitingSectionApproval, nil
			}
			if err := o.generateArtifact(ctx, p, next); err != nil {
				return prior, err
			}
			return next.Awaiting(), nil
		},
	})
}

// commitApproval 保存用户编辑并记录审批
func (o *Orchestrator) commitApproval(ctx context.Context, p *entity.Project, ct entity.ContentType, content string) error {
	if content = strings.TrimSpace(content); content != "" && content != strings.TrimSpace(artifactText(p, ct)) {
		file := artifactFile(ct)
		if err := o.repo.Write(ctx, p.Name, file, content); err != nil {
			return err
		}
		setArtifact(p, ct, content)
		o.Log(ctx, fmt.Sprintf("Saved edited %s to %s", ct, file))
	}
	p.MarkStage(ct, entity.StageApproved, o.now())
	if err := o.repo.SaveStages(ctx, p.Name, p.Stages); err != nil {
		return err
	}
	o.Log(ctx, fmt.Sprintf("%s approved", titleOf(ct)))
	return nil
}

// Adjust 按反馈修订当前产物，可无限次循环
func (o *Orchestrator) Adjust(ctx context.Context, ct entity.ContentType, feedback string) error {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return o.reject(ctx, bus.CommandAdjust, apperrors.ErrInvalidParam.WithDetail("feedback is required"))
	}
	if _, err := entity.ParseContentType(string(ct)); err != nil {
		return o.reject(ctx, bus.CommandAdjust, apperrors.ErrInvalidParam.WithDetail(err.Error()))
	}
	awaiting := ct.Awaiting()
	return o.accept(ctx, bus.CommandAdjust, requireState(awaiting), ct.Refining(), job{
		name: string(ct) + ".refine",
		run: func(ctx context.Context, p *entity.Project) (entity.PhaseState, error) {
			var err error
			switch ct {
			case entity.ContentSynopsis:
				o.Log(ctx, "Starting synopsis refinement with user feedback...")
				err = o.refineSynopsis(ctx, p, feedback, "Feedback refinement")
			case entity.ContentSection:
				err = o.reviseSection(ctx, p, feedback)
			default:
				err = o.reviseArtifact(ctx, p, ct, feedback)
			}
			return awaiting, err
		},
	})
}

// generateArtifact 生成大纲、人物、世界观或时间线
func (o *Orchestrator) generateArtifact(ctx context.Context, p *entity.Project, ct entity.ContentType) error {
	s := step{
		name:  string(ct) + ".generate",
		label: titleOf(ct) + " generation",
		phase: ct,
	}
	synopsis := p.ApprovedSynopsis()
	switch ct {
	case entity.ContentOutline:
		s.prompt = prompt.PromptOutline
		s.vars = map[string]any{
			"idea":                 p.Config.Idea,
			"tone":                 p.Config.Tone,
			"synopsis":             synopsis,
			"total_chapters":       p.Config.TotalChapters,
			"sections_per_chapter": p.Config.SectionsPerChapter,
		}
	case entity.ContentCharacters:
		s.prompt = prompt.PromptCharacters
		s.vars = map[string]any{
			"synopsis": synopsis,
			"outline":  p.Outline,
		}
	case entity.ContentWorld:
		s.prompt = prompt.PromptWorld
		s.vars = map[string]any{
			"synopsis":   synopsis,
			"outline":    p.Outline,
			"characters": p.CharactersText,
		}
	case entity.ContentTimeline:
		s.prompt = prompt.PromptTimeline
		s.vars = map[string]any{
			"synopsis":       synopsis,
			"outline":        p.Outline,
			"characters":     p.CharactersText,
			"world":          p.WorldText,
			"total_chapters": p.Config.TotalChapters,
		}
	default:
		return apperrors.ErrInvalidParam.WithDetail("not a planning artifact: " + string(ct))
	}

	if strings.TrimSpace(synopsis) == "" {
		return apperrors.ErrInvalidState.WithDetail(fmt.Sprintf("no synopsis available for %s generation", ct))
	}

	o.Log(ctx, fmt.Sprintf("Starting %s generation...", ct))
	text, err := o.generate(ctx, p, s)
	if err != nil {
		return err
	}
	return o.storeArtifact(ctx, p, ct, text)
}

// reviseArtifact 按反馈修订规划产物
func (o *Orchestrator) reviseArtifact(ctx context.Context, p *entity.Project, ct entity.ContentType, feedback string) error {
	current := artifactText(p, ct)
	if strings.TrimSpace(current) == "" {
		return apperrors.ErrInvalidState.WithDetail(fmt.Sprintf("no %s available for refinement", ct))
	}
	o.Log(ctx, fmt.Sprintf("Starting %s refinement with user feedback...", ct))
	text, err := o.generate(ctx, p, step{
		name:   string(ct) + ".refine",
		label:  titleOf(ct) + " refinement",
		phase:  ct,
		prompt: prompt.PromptArtifactRevise,
		vars: map[string]any{
			"kind":     string(ct),
			"synopsis": p.ApprovedSynopsis(),
			"current":  current,
			"feedback": feedback,
		},
	})
	if err != nil {
		return err
	}
	return o.storeArtifact(ctx, p, ct, text)
}

func (o *Orchestrator) storeArtifact(ctx context.Context, p *entity.Project, ct entity.ContentType, text string) error {
	if err := o.repo.Write(ctx, p.Name, artifactFile(ct), text); err != nil {
		return err
	}
	setArtifact(p, ct, text)
	return o.markReady(ctx, p, ct)
}

// markReady 记录产物待审批并发布 phaseCompleted
func (o *Orchestrator) markReady(ctx context.Context, p *entity.Project, ct entity.ContentType) error {
	p.MarkStage(ct, entity.StageReadyForApproval, o.now())
	if err := o.repo.SaveStages(ctx, p.Name, p.Stages); err != nil {
		return err
	}
	o.publish(bus.PhaseCompleted(string(ct)))
	return nil
}

func (o *Orchestrator) saveConfig(ctx context.Context, p *entity.Project, cfg entity.ProjectConfig) error {
	if err := o.repo.SaveConfig(ctx, p.Name, cfg); err != nil {
		return err
	}
	p.Config = cfg
	o.syncConfig(cfg)
	return nil
}

// artifactFile 审批编辑写回的文件，梗概写入精修版本
func artifactFile(ct entity.ContentType) repository.File {
	if ct == entity.ContentSynopsis {
		return repository.FileRefinedSynopsis
	}
	f, _ := repository.ArtifactFile(ct)
	return f
}

func artifactText(p *entity.Project, ct entity.ContentType) string {
	switch ct {
	case entity.ContentSynopsis:
		return p.ApprovedSynopsis()
	case entity.ContentOutline:
		return p.Outline
	case entity.ContentCharacters:
		return p.CharactersText
	case entity.ContentWorld:
		return p.WorldText
	case entity.ContentTimeline:
		return p.TimelineText
	case entity.ContentSection:
		return p.Buffer
	}
	return ""
}

func setArtifact(p *entity.Project, ct entity.ContentType, text string) {
	switch ct {
	case entity.ContentSynopsis:
		p.RefinedSynopsis = text
	case entity.ContentOutline:
		p.Outline = text
	case entity.ContentCharacters:
		p.CharactersText = text
		p.Characters = entity.ParseCharacters(text)
	case entity.ContentWorld:
		p.WorldText = text
		p.World = entity.ParseWorld(text)
	case entity.ContentTimeline:
		p.TimelineText = text
		p.Timeline = entity.ParseTimeline(text)
	case entity.ContentSection:
		p.Buffer = text
	}
}

func titleOf(ct entity.ContentType) string {
	s := string(ct)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
