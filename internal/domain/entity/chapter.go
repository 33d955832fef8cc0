package entity

import (
	"fmt"
	"strings"
)

// Chapter 已审批的章节，由若干小节组成
type Chapter struct {
	Number   int      `json:"number"`
	Sections []string `json:"sections"`
}

// SectionSummary 单个小节的摘要
type SectionSummary struct {
	Chapter int    `json:"chapter"`
	Section int    `json:"section"`
	Summary string `json:"summary"`
}

// ContextEntry 滚动上下文中的一条记录
type ContextEntry struct {
	Chapter int    `json:"chapter"`
	Section int    `json:"section"`
	Digest  string `json:"digest"`
}

// Line 渲染为 context 文件中的一行
func (e ContextEntry) Line() string {
	return fmt.Sprintf("Chapter %d, Section %d: %s\n", e.Chapter, e.Section, oneLine(e.Digest))
}

// Block 渲染为 summaries 文件中的一段
func (s SectionSummary) Block() string {
	return fmt.Sprintf("Chapter %d, Section %d:\n%s\n\n", s.Chapter, s.Section, strings.TrimSpace(s.Summary))
}

// Character 人物设定
type Character struct {
	Name        string   `json:"name"`
	Role        string   `json:"role,omitempty"`
	Description string   `json:"description,omitempty"`
	Traits      []string `json:"traits,omitempty"`
}

// TimelineEvent 时间线事件
type TimelineEvent struct {
	Chapter int    `json:"chapter,omitempty"`
	Event   string `json:"event"`
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
