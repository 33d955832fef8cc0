// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// StageStatus 阶段产物的审批状态
type StageStatus string

const (
	StageReadyForApproval StageStatus = "ready_for_approval"
	StageApproved         StageStatus = "approved"
)

// StageRecord 阶段跟踪记录
type StageRecord struct {
	Status    StageStatus `json:"status"`
	UpdatedAt time.Time   `json:"timestamp"`
}

// ProjectConfig 项目运行参数与进度
type ProjectConfig struct {
	Idea               string  `json:"idea"`
	Tone               string  `json:"tone"`
	SoftTarget         int     `json:"soft_target"`
	TotalChapters      int     `json:"total_chapters"`
	CurrentChapter     int     `json:"current_chapter"`
	CurrentSection     int     `json:"current_section"`
	SectionsPerChapter int     `json:"sections_per_chapter"`
	WordCount          int     `json:"word_count"`
	Progress           float64 `json:"progress"`
	Model              string  `json:"model,omitempty"`
	MilestoneHandled   bool    `json:"milestone_handled"`
}

// NewProjectConfig 创建初始配置，章节与小节从 1 开始
func NewProjectConfig(sectionsPerChapter, totalChapters int) ProjectConfig {
	if sectionsPerChapter < 1 {
		sectionsPerChapter = 1
	}
	if totalChapters < 1 {
		totalChapters = 1
	}
	return ProjectConfig{
		CurrentChapter:     1,
		CurrentSection:     1,
		SectionsPerChapter: sectionsPerChapter,
		TotalChapters:      totalChapters,
	}
}

// Normalize 修正从文件读入的越界值
func (c *ProjectConfig) Normalize() {
	if c.CurrentChapter < 1 {
		c.CurrentChapter = 1
	}
	if c.CurrentSection < 1 {
		c.CurrentSection = 1
	}
	if c.SectionsPerChapter < 1 {
		c.SectionsPerChapter = 1
	}
	if c.TotalChapters < 1 {
		c.TotalChapters = 1
	}
}

// AdvanceSection 推进到下一小节，章节写满时进入下一章并返回 true
func (c *ProjectConfig) AdvanceSection() bool {
	if c.CurrentSection >= c.SectionsPerChapter {
		c.CurrentChapter++
		c.CurrentSection = 1
		return true
	}
	c.CurrentSection++
	return false
}

// UpdateProgress 根据字数重新计算进度百分比，上限 100
func (c *ProjectConfig) UpdateProgress(words int) {
	c.WordCount = words
	if c.SoftTarget <= 0 {
		c.Progress = 0
		return
	}
	p := float64(words) / float64(c.SoftTarget) * 100
	if p > 100 {
		p = 100
	}
	c.Progress = p
}

// MilestoneReached 进度首次落入 (threshold, 100) 区间
func (c *ProjectConfig) MilestoneReached(threshold float64) bool {
	return !c.MilestoneHandled && c.Progress > threshold && c.Progress < 100
}

// Extend 扩展章节总数
func (c *ProjectConfig) Extend(chapters int) {
	if chapters > 0 {
		c.TotalChapters += chapters
	}
	c.MilestoneHandled = true
}

// WrapUp 将结尾定在当前章节之后 chapters 章，章节总数不会减少
func (c *ProjectConfig) WrapUp(chapters int) {
	if target := c.CurrentChapter + chapters; target > c.TotalChapters {
		c.TotalChapters = target
	}
	c.MilestoneHandled = true
}

// Finished 所有计划章节都已写完
func (c *ProjectConfig) Finished() bool {
	return c.CurrentChapter > c.TotalChapters
}

// Project 小说项目，目录名即项目名
type Project struct {
	Name string `json:"name"`
	Dir  string `json:"-"`

	Synopsis        string `json:"synopsis"`
	RefinedSynopsis string `json:"refined_synopsis"`
	Outline         string `json:"outline"`

	CharactersText string      `json:"characters_text"`
	Characters     []Character `json:"characters,omitempty"`

	WorldText string            `json:"world_text"`
	World     map[string]string `json:"world,omitempty"`

	TimelineText string          `json:"timeline_text"`
	Timeline     []TimelineEvent `json:"timeline,omitempty"`

	Story         []Chapter        `json:"story"`
	Summaries     []SectionSummary `json:"summaries"`
	Context       []ContextEntry   `json:"context"`
	ResearchNotes string           `json:"research_notes,omitempty"`
	Buffer        string           `json:"buffer,omitempty"`

	Config ProjectConfig               `json:"config"`
	Stages map[ContentType]StageRecord `json:"stages,omitempty"`
}

// ApprovedSynopsis 优先返回精修后的梗概
func (p *Project) ApprovedSynopsis() string {
	if strings.TrimSpace(p.RefinedSynopsis) != "" {
		return p.RefinedSynopsis
	}
	return p.Synopsis
}

// AppendSection 将审批通过的小节追加到指定章节
func (p *Project) AppendSection(chapter int, text string) {
	for i := range p.Story {
		if p.Story[i].Number == chapter {
			p.Story[i].Sections = append(p.Story[i].Sections, text)
			return
		}
	}
	p.Story = append(p.Story, Chapter{Number: chapter, Sections: []string{text}})
}

// WordCount 统计已审批正文的词数
func (p *Project) WordCount() int {
	n := 0
	for _, ch := range p.Story {
		for _, s := range ch.Sections {
			n += len(strings.Fields(s))
		}
	}
	return n
}

// StoryText 渲染完整正文
func (p *Project) StoryText() string {
	return RenderStory(p.Story)
}

// PlanningComplete 规划阶段的产物是否齐全，可直接续写正文
func (p *Project) PlanningComplete() bool {
	return strings.TrimSpace(p.Outline) != "" && strings.TrimSpace(p.TimelineText) != ""
}

// MarkStage 更新阶段跟踪
func (p *Project) MarkStage(ct ContentType, status StageStatus, at time.Time) {
	if p.Stages == nil {
		p.Stages = make(map[ContentType]StageRecord)
	}
	p.Stages[ct] = StageRecord{Status: status, UpdatedAt: at}
}

// PendingApproval 返回最近一个处于待审批的阶段
func (p *Project) PendingApproval() (ContentType, bool) {
	var (
		found  ContentType
		latest time.Time
		ok     bool
	)
	for _, ct := range ContentTypes {
		rec, exists := p.Stages[ct]
		if !exists || rec.Status != StageReadyForApproval {
			continue
		}
		if !ok || !rec.UpdatedAt.Before(latest) {
			found, latest, ok = ct, rec.UpdatedAt, true
		}
	}
	return found, ok
}
