package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceSectionBookkeeping(t *testing.T) {
	cfg := NewProjectConfig(3, 25)

	var rolled []bool
	for i := 0; i < 7; i++ {
		rolled = append(rolled, cfg.AdvanceSection())
	}

	// 7 次审批 = 2 章写满 + 第 3 章第 1 节
	assert.Equal(t, []bool{false, false, true, false, false, true, false}, rolled)
	assert.Equal(t, 3, cfg.CurrentChapter)
	assert.Equal(t, 2, cfg.CurrentSection)
}

func TestTotalChaptersNeverDecreases(t *testing.T) {
	cfg := NewProjectConfig(3, 25)
	cfg.CurrentChapter = 21

	cfg.WrapUp(2)
	assert.Equal(t, 25, cfg.TotalChapters, "wrap-up must not shrink the plan")
	assert.True(t, cfg.MilestoneHandled)

	cfg.CurrentChapter = 24
	cfg.WrapUp(2)
	assert.Equal(t, 26, cfg.TotalChapters)

	cfg.Extend(5)
	assert.Equal(t, 31, cfg.TotalChapters)
}

func TestProgressAndMilestone(t *testing.T) {
	cfg := NewProjectConfig(3, 25)
	cfg.SoftTarget = 1000

	cfg.UpdateProgress(800)
	assert.InDelta(t, 80.0, cfg.Progress, 1e-9)
	assert.False(t, cfg.MilestoneReached(80), "threshold is exclusive")

	cfg.UpdateProgress(850)
	assert.True(t, cfg.MilestoneReached(80))

	cfg.Extend(5)
	assert.False(t, cfg.MilestoneReached(80), "milestone fires once")

	cfg.UpdateProgress(5000)
	assert.InDelta(t, 100.0, cfg.Progress, 1e-9)
}

func TestProgressWithoutTarget(t *testing.T) {
	cfg := NewProjectConfig(3, 25)
	cfg.UpdateProgress(1234)
	assert.Zero(t, cfg.Progress)
	assert.Equal(t, 1234, cfg.WordCount)
}

func TestStoryRenderAndParse(t *testing.T) {
	p := &Project{}
	p.AppendSection(1, "The dragon woke.")
	p.AppendSection(1, "It was hungry.\n\nVery hungry.")
	p.AppendSection(1, "It flew.")
	p.AppendSection(2, "Dawn broke.")

	text := p.StoryText()
	assert.Equal(t, 1, strings.Count(text, "=== CHAPTER 1 ==="))
	assert.Equal(t, 1, strings.Count(text, "=== CHAPTER 2 ==="))

	parsed := ParseStory(text)
	require.Len(t, parsed, 2)
	assert.Equal(t, 1, parsed[0].Number)
	assert.Equal(t, []string{"The dragon woke.", "It was hungry.\n\nVery hungry.", "It flew."}, parsed[0].Sections)
	assert.Equal(t, []string{"Dawn broke."}, parsed[1].Sections)
	assert.Equal(t, 12, p.WordCount())
}

func TestParseStoryWithoutMarkers(t *testing.T) {
	parsed := ParseStory("  legacy text  ")
	require.Len(t, parsed, 1)
	assert.Equal(t, []string{"legacy text"}, parsed[0].Sections)
	assert.Nil(t, ParseStory(" \n "))
}

func TestPendingApprovalPicksLatest(t *testing.T) {
	p := &Project{}
	now := time.Now()
	p.MarkStage(ContentSynopsis, StageApproved, now.Add(-2*time.Hour))
	p.MarkStage(ContentOutline, StageReadyForApproval, now.Add(-time.Hour))
	p.MarkStage(ContentCharacters, StageReadyForApproval, now)

	ct, ok := p.PendingApproval()
	require.True(t, ok)
	assert.Equal(t, ContentCharacters, ct)

	p.MarkStage(ContentCharacters, StageApproved, now)
	p.MarkStage(ContentOutline, StageApproved, now)
	_, ok = p.PendingApproval()
	assert.False(t, ok)
}

func TestContentTypeStates(t *testing.T) {
	next, ok := ContentWorld.Next()
	require.True(t, ok)
	assert.Equal(t, ContentTimeline, next)
	_, ok = ContentSection.Next()
	assert.False(t, ok)

	ct, ok := StateAwaitingOutlineApproval.AwaitingContent()
	require.True(t, ok)
	assert.Equal(t, ContentOutline, ct)

	assert.True(t, StateRefiningSection.Busy())
	assert.True(t, StateConsistencyCheck.Busy())
	assert.True(t, StateAwaitingMilestoneDecision.Settled())

	_, err := ParseContentType("epilogue")
	assert.Error(t, err)
}
