package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/internal/domain/entity"
	"z-novel-pipeline/internal/domain/repository"
	"z-novel-pipeline/internal/workflow/prompt"
	apperrors "z-novel-pipeline/pkg/errors"
	"z-novel-pipeline/pkg/metrics"
	"z-novel-pipeline/pkg/utils"
)

// recentContextEntries 写作提示中携带的最近上下文条数
const recentContextEntries = 3

var researchHeader = regexp.MustCompile(`(?m)^=== Chapter (\d+) Research ===[ \t]*$`)

func researchBlock(chapter int, notes string) string {
	return fmt.Sprintf("=== Chapter %d Research ===\n%s\n\n", chapter, strings.TrimSpace(notes))
}

// chapterResearch 从 research_notes 中取出指定章节的笔记
func chapterResearch(all string, chapter int) string {
	locs := researchHeader.FindAllStringSubmatchIndex(all, -1)
	for i, loc := range locs {
		n, _ := strconv.Atoi(all[loc[2]:loc[3]])
		if n != chapter {
			continue
		}
		end := len(all)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		return strings.TrimSpace(all[loc[1]:end])
	}
	return ""
}

// ensureResearch 章节开始时生成调研笔记，已存在时复用
func (o *Orchestrator) ensureResearch(ctx context.Context, p *entity.Project) (string, error) {
	ch := p.Config.CurrentChapter
	if notes := chapterResearch(p.ResearchNotes, ch); notes != "" {
		return notes, nil
	}

	o.Log(ctx, fmt.Sprintf("Generating research notes for Chapter %d...", ch))
	notes, err := o.generate(ctx, p, step{
		name:   "section.research",
		label:  fmt.Sprintf("Chapter %d Research", ch),
		prompt: prompt.PromptResearch,
		vars: map[string]any{
			"chapter":  ch,
			"outline":  p.Outline,
			"timeline": p.TimelineText,
			"world":    p.WorldText,
		},
		analytic: true,
	})
	if err != nil {
		return "", err
	}
	block := researchBlock(ch, notes)
	if err := o.repo.Append(ctx, p.Name, repository.FileResearchNotes, block); err != nil {
		return "", err
	}
	p.ResearchNotes += block
	return notes, nil
}

// draftSection 写作当前小节：调研、初稿、两遍润色，结果进入缓冲区等待审批
func (o *Orchestrator) draftSection(ctx context.Context, p *entity.Project) error {
	o.setState(entity.StateGeneratingSection)
	ch, sec := p.Config.CurrentChapter, p.Config.CurrentSection

	research, err := o.ensureResearch(ctx, p)
	if err != nil {
		return err
	}

	o.drafts = 0
	o.Log(ctx, fmt.Sprintf("Generating draft for Chapter %d, Section %d...", ch, sec))
	draft, err := o.generate(ctx, p, step{
		name:   "section.draft",
		label:  fmt.Sprintf("Chapter %d Section %d draft", ch, sec),
		phase:  entity.ContentSection,
		prompt: prompt.PromptSectionDraft,
		vars: map[string]any{
			"idea":                 p.Config.Idea,
			"tone":                 p.Config.Tone,
			"chapter":              ch,
			"section":              sec,
			"sections_per_chapter": p.Config.SectionsPerChapter,
			"total_chapters":       p.Config.TotalChapters,
			"outline":              p.Outline,
			"characters":           p.CharactersText,
			"world":                p.WorldText,
			"timeline":             p.TimelineText,
			"research":             research,
			"recent_context":       recentContext(p),
			"previous_summary":     previousSummary(p),
		},
	})
	if err != nil {
		return err
	}
	if err := o.saveDraft(ctx, p, draft); err != nil {
		return err
	}
	return o.polishSection(ctx, p, draft)
}

// reviseSection 以缓冲区为基础按反馈重写，再走两遍润色
func (o *Orchestrator) reviseSection(ctx context.Context, p *entity.Project, feedback string) error {
	if strings.TrimSpace(p.Buffer) == "" {
		return apperrors.ErrInvalidState.WithDetail("no section content in buffer for refinement")
	}
	ch, sec := p.Config.CurrentChapter, p.Config.CurrentSection

	o.Log(ctx, "Starting section refinement with user feedback...")
	revised, err := o.generate(ctx, p, step{
		name:   "section.revise",
		label:  "Section refinement",
		phase:  entity.ContentSection,
		prompt: prompt.PromptSectionRevise,
		vars: map[string]any{
			"chapter":    ch,
			"section":    sec,
			"draft":      p.Buffer,
			"feedback":   feedback,
			"outline":    p.Outline,
			"characters": p.CharactersText,
		},
	})
	if err != nil {
		return err
	}
	if err := o.saveDraft(ctx, p, revised); err != nil {
		return err
	}
	return o.polishSection(ctx, p, revised)
}

// polishSection 两遍润色：先调整行文衔接，再处理措辞与风格
func (o *Orchestrator) polishSection(ctx context.Context, p *entity.Project, text string) error {
	ch, sec := p.Config.CurrentChapter, p.Config.CurrentSection
	passes := []struct {
		name   string
		id     prompt.PromptID
		suffix string
	}{
		{"section.polish_flow", prompt.PromptSectionPolishFlow, "polish"},
		{"section.polish_style", prompt.PromptSectionPolishStyle, "style"},
	}

	for i, pass := range passes {
		o.Log(ctx, fmt.Sprintf("Polishing Chapter %d, Section %d (pass %d)...", ch, sec, i+1))
		polished, err := o.generate(ctx, p, step{
			name:   pass.name,
			label:  fmt.Sprintf("Chapter %d Section %d %s", ch, sec, pass.suffix),
			phase:  entity.ContentSection,
			prompt: pass.id,
			vars: map[string]any{
				"text": text,
				"tone": p.Config.Tone,
			},
		})
		if err != nil {
			return err
		}
		if err := o.saveDraft(ctx, p, polished); err != nil {
			return err
		}
		text = polished
	}

	if err := o.repo.Write(ctx, p.Name, repository.FileBuffer, text); err != nil {
		return err
	}
	p.Buffer = text
	return o.markReady(ctx, p, entity.ContentSection)
}

func (o *Orchestrator) saveDraft(ctx context.Context, p *entity.Project, text string) error {
	o.drafts++
	return o.repo.SaveDraft(ctx, p.Name, p.Config.CurrentChapter, p.Config.CurrentSection, o.drafts, text)
}

func recentContext(p *entity.Project) string {
	entries := p.Context
	if len(entries) > recentContextEntries {
		entries = entries[len(entries)-recentContextEntries:]
	}
	if len(entries) == 0 {
		return "This is the opening of the novel."
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Line())
	}
	return strings.TrimSpace(b.String())
}

func previousSummary(p *entity.Project) string {
	if len(p.Summaries) == 0 {
		return "None yet."
	}
	return p.Summaries[len(p.Summaries)-1].Summary
}

// approveSection 接受当前缓冲区的小节
func (o *Orchestrator) approveSection(ctx context.Context, content string) error {
	check := func(state entity.PhaseState, p *entity.Project) error {
		if state != entity.StateAwaitingSectionApproval {
			return invalidState(state)
		}
		if strings.TrimSpace(content) == "" && strings.TrimSpace(p.Buffer) == "" {
			return apperrors.ErrInvalidState.WithDetail("no section content in buffer for approval")
		}
		return nil
	}
	return o.accept(ctx, bus.CommandApprove, check, entity.StateGeneratingSection, job{
		name: "section.approve",
		run: func(ctx context.Context, p *entity.Project) (entity.PhaseState, error) {
			return o.runApproveSection(ctx, p, content)
		},
	})
}

// runApproveSection 先完成摘要与上下文两个生成步骤，全部成功后才落盘
func (o *Orchestrator) runApproveSection(ctx context.Context, p *entity.Project, content string) (entity.PhaseState, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		text = strings.TrimSpace(p.Buffer)
	}
	ch, sec := p.Config.CurrentChapter, p.Config.CurrentSection

	o.Log(ctx, fmt.Sprintf("Generating summary for Section %d...", sec))
	summary, err := o.generate(ctx, p, step{
		name:     "section.summary",
		label:    fmt.Sprintf("Section %d summary", sec),
		prompt:   prompt.PromptSummary,
		vars:     map[string]any{"chapter": ch, "section": sec, "text": text},
		analytic: true,
	})
	if err != nil {
		return entity.StateAwaitingSectionApproval, err
	}

	o.Log(ctx, fmt.Sprintf("Extracting context (key events/mood) for Section %d...", sec))
	digest, err := o.generate(ctx, p, step{
		name:     "section.context",
		label:    fmt.Sprintf("Section %d context", sec),
		prompt:   prompt.PromptContextDigest,
		vars:     map[string]any{"chapter": ch, "section": sec, "text": text},
		analytic: true,
	})
	if err != nil {
		return entity.StateAwaitingSectionApproval, err
	}

	if err := o.repo.Append(ctx, p.Name, repository.FileStory, entity.SectionChunk(ch, sec, text)); err != nil {
		return entity.StateAwaitingSectionApproval, err
	}
	p.AppendSection(ch, text)
	o.Log(ctx, fmt.Sprintf("Section %d of Chapter %d appended to story.txt", sec, ch))

	s := entity.SectionSummary{Chapter: ch, Section: sec, Summary: summary}
	if err := o.repo.Append(ctx, p.Name, repository.FileSummaries, s.Block()); err != nil {
		return entity.StateIdle, err
	}
	p.Summaries = append(p.Summaries, s)

	c := entity.ContextEntry{Chapter: ch, Section: sec, Digest: digest}
	if err := o.repo.Append(ctx, p.Name, repository.FileContext, c.Line()); err != nil {
		return entity.StateIdle, err
	}
	p.Context = append(p.Context, c)

	cfg := p.Config
	chapterDone := cfg.AdvanceSection()
	words := p.WordCount()
	cfg.UpdateProgress(words)
	if err := o.saveConfig(ctx, p, cfg); err != nil {
		return entity.StateIdle, err
	}
	p.Buffer = ""
	p.MarkStage(entity.ContentSection, entity.StageApproved, o.now())
	if err := o.repo.SaveStages(ctx, p.Name, p.Stages); err != nil {
		return entity.StateIdle, err
	}

	metrics.SectionsApproved.Inc()
	metrics.StoryWords.WithLabelValues(p.Name).Set(float64(words))
	o.Log(ctx, fmt.Sprintf("Section %d of Chapter %d approved and processed (%d words)", sec, ch, utils.CountWords(text)))
	o.Log(ctx, fmt.Sprintf("Progress: %d%% (%d / %d words)", int(cfg.Progress), words, cfg.SoftTarget))
	if chapterDone {
		o.Log(ctx, fmt.Sprintf("Chapter %d complete! Moving to Chapter %d", ch, cfg.CurrentChapter))
	}

	if cfg.MilestoneReached(o.settings.MilestonePercent) {
		o.Log(ctx, fmt.Sprintf("Milestone reached: %d%% complete. Waiting for extend or wrap-up decision...", int(cfg.Progress)))
		o.publish(bus.MilestoneDecisionRequested(cfg.Progress, cfg.CurrentChapter, cfg.TotalChapters))
		return entity.StateAwaitingMilestoneDecision, nil
	}
	return o.proceed(ctx, p)
}

// proceed 已提交审批后的下一步：写完则一致性检查，否则写下一小节
// 写作失败回到 Idle，可用 Continue 续写
func (o *Orchestrator) proceed(ctx context.Context, p *entity.Project) (entity.PhaseState, error) {
	if p.Config.Finished() {
		o.Log(ctx, "=== NOVEL COMPLETE ===")
		o.Log(ctx, fmt.Sprintf("Completed %d chapters with %d total words", p.Config.CurrentChapter-1, p.Config.WordCount))
		o.Log(ctx, fmt.Sprintf("Final Progress: %d%%", int(p.Config.Progress)))
		return o.checkConsistency(ctx, p)
	}
	if err := o.draftSection(ctx, p); err != nil {
		return entity.StateIdle, err
	}
	return entity.StateAwaitingSectionApproval, nil
}

// DecideMilestone 处理进度里程碑：extend 增加章节，wrapUp 在两章内收尾
func (o *Orchestrator) DecideMilestone(ctx context.Context, choice bus.MilestoneChoice) error {
	if choice != bus.MilestoneExtend && choice != bus.MilestoneWrapUp {
		return o.reject(ctx, bus.CommandDecideMilestone, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown milestone choice %q", choice)))
	}
	return o.accept(ctx, bus.CommandDecideMilestone, requireState(entity.StateAwaitingMilestoneDecision), entity.StateGeneratingSection, job{
		name: "milestone",
		run: func(ctx context.Context, p *entity.Project) (entity.PhaseState, error) {
			cfg := p.Config
			before := cfg.TotalChapters
			if choice == bus.MilestoneExtend {
				cfg.Extend(o.settings.ExtensionChapters)
			} else {
				cfg.WrapUp(o.settings.WrapUpChapters)
			}
			if err := o.saveConfig(ctx, p, cfg); err != nil {
				return entity.StateAwaitingMilestoneDecision, err
			}
			if choice == bus.MilestoneExtend {
				o.Log(ctx, fmt.Sprintf("Novel extended: Total chapters increased from %d to %d", before, cfg.TotalChapters))
			} else {
				o.Log(ctx, fmt.Sprintf("Novel wrapping up: Total chapters set to %d for conclusion", cfg.TotalChapters))
			}
			return o.proceed(ctx, p)
		},
	})
}

// Continue 从 Idle 续写：规划完成的项目按持久化的章节位置继续
func (o *Orchestrator) Continue(ctx context.Context) error {
	check := func(state entity.PhaseState, p *entity.Project) error {
		if state != entity.StateIdle {
			return invalidState(state)
		}
		if !p.PlanningComplete() {
			return apperrors.ErrInvalidState.WithDetail("outline and timeline must exist before writing sections")
		}
		return nil
	}
	return o.accept(ctx, bus.CommandContinue, check, entity.StateGeneratingSection, job{
		name: "continue",
		run: func(ctx context.Context, p *entity.Project) (entity.PhaseState, error) {
			o.Log(ctx, fmt.Sprintf("Continuing at Chapter %d, Section %d of %d chapters",
				p.Config.CurrentChapter, p.Config.CurrentSection, p.Config.TotalChapters))
			return o.proceed(ctx, p)
		},
	})
}
