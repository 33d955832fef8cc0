package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/internal/domain/entity"
	"z-novel-pipeline/internal/domain/repository"
	"z-novel-pipeline/internal/infrastructure/persistence/filestore"
	"z-novel-pipeline/internal/workflow/generation"
	"z-novel-pipeline/internal/workflow/generation/generationtest"
	"z-novel-pipeline/internal/workflow/port"
	"z-novel-pipeline/internal/workflow/prompt"
	apperrors "z-novel-pipeline/pkg/errors"
)

const sectionText = "The dragon woke beneath the frozen hill."

func scripted(msgs []*schema.Message) (string, error) {
	user := generationtest.LastUserContent(msgs)
	switch {
	case strings.HasPrefix(user, "List the key events"):
		return "Events: [the egg hatches], Mood: wonder", nil
	case strings.HasPrefix(user, "Check the story excerpt"):
		return "No issues found.", nil
	case strings.HasPrefix(user, "Summarize chapter"):
		return "Mira finds the egg and hides it.", nil
	case strings.HasPrefix(user, "Create the main cast"):
		return `[{"name": "Mira", "role": "hero"}]`, nil
	case strings.HasPrefix(user, "Describe the world"):
		return `{"setting": "a frozen valley"}`, nil
	case strings.HasPrefix(user, "Build a timeline"):
		return "Chapter 1: The egg hatches\nChapter 2: The first flight", nil
	default:
		return sectionText, nil
	}
}

type harness struct {
	t     *testing.T
	store *filestore.Store
	model *generationtest.ChatModel
	orch  *Orchestrator
	bus   *bus.Bus

	mu     sync.Mutex
	events []bus.Event
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := filestore.New(t.TempDir(), 64, filestore.WithLocks(filestore.NewLockRegistry()))
	require.NoError(t, err)

	h := &harness{
		t:     t,
		store: store,
		model: generationtest.New(scripted),
		bus:   bus.New(1 << 16),
	}
	h.orch = h.newOrchestrator(settings)
	go func() { _ = h.orch.Run(ctx) }()

	sub := h.bus.Subscribe("test")
	go func() {
		for e := range sub.C() {
			h.mu.Lock()
			h.events = append(h.events, e)
			h.mu.Unlock()
		}
	}()
	t.Cleanup(sub.Close)
	return h
}

func (h *harness) newOrchestrator(settings Settings) *Orchestrator {
	var o *Orchestrator
	client := generation.NewClient(port.StaticFactory{Model: h.model}, generation.DefaultRetryPolicy(),
		generation.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		generation.WithReporter(generation.ReporterFunc(func(ctx context.Context, msg string) { o.Log(ctx, msg) })),
	)
	o = New(h.store, client, prompt.NewRegistry(), h.bus, settings)
	return o
}

func testSettings() Settings {
	s := DefaultSettings()
	s.SoftTarget = 1000000
	s.PausePollInterval = 5 * time.Millisecond
	return s
}

func (h *harness) waitFor(state entity.PhaseState) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		st := h.orch.Status()
		return st.State == state && !st.Running
	}, 5*time.Second, 2*time.Millisecond, "waiting for %s, have %s", state, h.orch.State())
}

func (h *harness) eventsOf(typ bus.EventType) []bus.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []bus.Event
	for _, e := range h.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// awaitEvents 等待收集到至少 n 个指定类型的事件
func (h *harness) awaitEvents(typ bus.EventType, n int) []bus.Event {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return len(h.eventsOf(typ)) >= n
	}, 5*time.Second, 2*time.Millisecond, "waiting for %d %s events", n, typ)
	return h.eventsOf(typ)
}

func (h *harness) read(file repository.File) string {
	h.t.Helper()
	s, err := h.store.Read(context.Background(), "dragon", file)
	require.NoError(h.t, err)
	return s
}

// toFirstSection 创建项目并逐项审批规划产物，返回时第一节等待审批
func (h *harness) toFirstSection() {
	h.t.Helper()
	ctx := context.Background()
	require.NoError(h.t, h.orch.CreateProject(ctx, "dragon"))
	require.NoError(h.t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim, Soft Target: 1000000"))
	h.waitFor(entity.StateAwaitingSynopsisApproval)

	for _, ct := range []entity.ContentType{
		entity.ContentSynopsis, entity.ContentOutline, entity.ContentCharacters, entity.ContentWorld,
	} {
		require.NoError(h.t, h.orch.Approve(ctx, ct, ""))
		next, _ := ct.Next()
		h.waitFor(next.Awaiting())
	}
	require.NoError(h.t, h.orch.Approve(ctx, entity.ContentTimeline, ""))
	h.waitFor(entity.StateAwaitingSectionApproval)
}

func TestStartGeneratesAndRefinesSynopsis(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()

	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	require.NoError(t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim, Tone: wait, Soft Target: 1000"))
	h.waitFor(entity.StateAwaitingSynopsisApproval)

	assert.Equal(t, sectionText, h.read(repository.FileSynopsis))
	assert.Equal(t, sectionText, h.read(repository.FileRefinedSynopsis))

	cfg, err := filestore.DecodeConfig(h.read(repository.FileConfig), entity.ProjectConfig{})
	require.NoError(t, err)
	assert.Equal(t, "A dragon, Tone: grim", cfg.Idea)
	assert.Equal(t, "wait", cfg.Tone)
	assert.Equal(t, 1000, cfg.SoftTarget)
	assert.Equal(t, 1, cfg.CurrentChapter)
	assert.Equal(t, 1, cfg.CurrentSection)
	assert.Equal(t, 3, cfg.SectionsPerChapter)
	assert.Equal(t, 25, cfg.TotalChapters)

	assert.Contains(t, h.read(repository.FileContext), "Novel started: A dragon, Tone: grim. Initial tone: wait.")
	assert.Contains(t, h.read(repository.FileLog), "Synopsis generation complete")

	updates := h.awaitEvents(bus.EventPhaseContentUpdated, 1)
	assert.Equal(t, "synopsis", updates[0].Phase)
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))

	err := h.orch.Start(ctx, "A dragon, grim")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidConfig, apperrors.CodeOf(err))
	assert.Equal(t, entity.StateIdle, h.orch.State())
	assert.Empty(t, h.model.Calls())
}

func TestStartKeepsExistingSynopsis(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	require.NoError(t, h.store.Write(ctx, "dragon", repository.FileSynopsis, "An older synopsis about a wyvern."))

	require.NoError(t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim"))
	h.waitFor(entity.StateAwaitingSynopsisApproval)

	assert.Equal(t, "An older synopsis about a wyvern.", h.read(repository.FileSynopsis))
	assert.Equal(t, "An older synopsis about a wyvern.", h.orch.project.Synopsis)

	calls := h.model.Calls()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[len(calls)-1], "An older synopsis about a wyvern.")
}

func TestStartRejectedOnceWritingBegan(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	h.toFirstSection()

	cfg := h.orch.project.Config
	cfg.SoftTarget = 8
	require.NoError(t, h.orch.saveConfig(ctx, h.orch.project, cfg))
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateAwaitingMilestoneDecision)
	require.NoError(t, h.orch.DecideMilestone(ctx, bus.MilestoneExtend))
	h.waitFor(entity.StateAwaitingSectionApproval)

	h.model.SetResponder(func(msgs []*schema.Message) (string, error) {
		if strings.HasPrefix(generationtest.LastUserContent(msgs), "Write section") {
			return "", generationtest.ErrUnavailable
		}
		return scripted(msgs)
	})
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateIdle)

	err := h.orch.Start(ctx, "Idea: A knight, Tone: bright, Soft Target: 1000")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(err))
	assert.Equal(t, entity.StateIdle, h.orch.State())

	st := h.orch.Status()
	assert.Equal(t, 30, st.TotalChapters)
	assert.Equal(t, 1, st.CurrentChapter)
	assert.Equal(t, 3, st.CurrentSection)

	saved, err := filestore.DecodeConfig(h.read(repository.FileConfig), entity.ProjectConfig{})
	require.NoError(t, err)
	assert.Equal(t, 30, saved.TotalChapters)
	assert.Equal(t, "A dragon", saved.Idea)

	story := h.read(repository.FileStory)
	assert.Equal(t, 1, strings.Count(story, "=== CHAPTER"))
	chapters := entity.ParseStory(story)
	require.Len(t, chapters, 1)
	assert.Len(t, chapters[0].Sections, 2)
}

func TestAnalysisStepsUseLowTemperature(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	h.toFirstSection()
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateAwaitingSectionApproval)

	calls := h.model.Calls()
	temps := h.model.Temperatures()
	require.Len(t, temps, len(calls))
	analysed := 0
	for i, call := range calls {
		switch {
		case strings.HasPrefix(call, "Prepare research notes"), strings.HasPrefix(call, "Summarize chapter"):
			require.NotNil(t, temps[i], call)
			assert.InDelta(t, 0.2, *temps[i], 1e-6)
			analysed++
		case strings.HasPrefix(call, "Write section"), strings.HasPrefix(call, "Write a synopsis"):
			assert.Nil(t, temps[i], call)
		}
	}
	assert.Equal(t, 2, analysed)
}

func TestStartRequiresProject(t *testing.T) {
	h := newHarness(t, testSettings())
	err := h.orch.Start(context.Background(), "Idea: A dragon, Tone: grim")
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(err))
}

func TestApproveIsNotRepeatable(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	require.NoError(t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim"))
	h.waitFor(entity.StateAwaitingSynopsisApproval)

	require.NoError(t, h.orch.Approve(ctx, entity.ContentSynopsis, ""))
	h.waitFor(entity.StateAwaitingOutlineApproval)
	calls := len(h.model.Calls())
	outline := h.read(repository.FileOutline)

	err := h.orch.Approve(ctx, entity.ContentSynopsis, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(err))
	assert.Equal(t, entity.StateAwaitingOutlineApproval, h.orch.State())
	assert.Len(t, h.model.Calls(), calls)
	assert.Equal(t, outline, h.read(repository.FileOutline))
	h.awaitEvents(bus.EventErrorOccurred, 1)
}

func TestAdjustLoopsBackToApproval(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	require.NoError(t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim"))
	h.waitFor(entity.StateAwaitingSynopsisApproval)
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSynopsis, ""))
	h.waitFor(entity.StateAwaitingOutlineApproval)

	for i := 0; i < 2; i++ {
		require.NoError(t, h.orch.Adjust(ctx, entity.ContentOutline, "more dragons"))
		h.waitFor(entity.StateAwaitingOutlineApproval)
	}
	calls := h.model.Calls()
	assert.Contains(t, calls[len(calls)-1], "more dragons")

	err := h.orch.Adjust(ctx, entity.ContentOutline, "  ")
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.CodeOf(err))
}

func TestApproveWithEditedContent(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	require.NoError(t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim"))
	h.waitFor(entity.StateAwaitingSynopsisApproval)

	require.NoError(t, h.orch.Approve(ctx, entity.ContentSynopsis, "A dragon learns to sing."))
	h.waitFor(entity.StateAwaitingOutlineApproval)
	assert.Equal(t, "A dragon learns to sing.", h.read(repository.FileRefinedSynopsis))
	assert.Equal(t, sectionText, h.read(repository.FileSynopsis))
}

func TestGenerationFailureReturnsToPriorApproval(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	require.NoError(t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim"))
	h.waitFor(entity.StateAwaitingSynopsisApproval)

	h.model.SetResponder(func([]*schema.Message) (string, error) {
		return "", generationtest.ErrUnavailable
	})
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSynopsis, ""))
	h.waitFor(entity.StateAwaitingSynopsisApproval)

	assert.Empty(t, h.read(repository.FileOutline))
	errs := h.awaitEvents(bus.EventErrorOccurred, 1)
	assert.Contains(t, errs[len(errs)-1].Text, "3 attempts")
	assert.Contains(t, h.read(repository.FileLog), "LLM connection attempt 3/3 failed")

	h.model.SetResponder(scripted)
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSynopsis, ""))
	h.waitFor(entity.StateAwaitingOutlineApproval)
	assert.Equal(t, sectionText, h.read(repository.FileOutline))
}

func TestDemoRunReachesSecondChapter(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	h.toFirstSection()

	assert.Contains(t, h.read(repository.FileResearchNotes), "=== Chapter 1 Research ===")
	for v := 1; v <= 3; v++ {
		name := fmt.Sprintf("chapter1_section1_v%d.txt", v)
		draft, err := h.store.ReadFile(ctx, filepath.Join(h.store.Root(), "dragon", "drafts", name))
		require.NoError(t, err)
		assert.Equal(t, sectionText, draft)
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
		h.waitFor(entity.StateAwaitingSectionApproval)
	}

	st := h.orch.Status()
	assert.Equal(t, 2, st.CurrentChapter)
	assert.Equal(t, 1, st.CurrentSection)

	story := h.read(repository.FileStory)
	assert.Equal(t, 1, strings.Count(story, "=== CHAPTER"))
	chapters := entity.ParseStory(story)
	require.Len(t, chapters, 1)
	assert.Equal(t, []string{sectionText, sectionText, sectionText}, chapters[0].Sections)

	assert.Len(t, entity.ParseSummaries(h.read(repository.FileSummaries)), 3)
	assert.Len(t, entity.ParseContext(h.read(repository.FileContext)), 3)

	cfg, err := filestore.DecodeConfig(h.read(repository.FileConfig), entity.ProjectConfig{})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.CurrentChapter)
	assert.Equal(t, 1, cfg.CurrentSection)
	assert.Equal(t, 21, cfg.WordCount)
	assert.Contains(t, h.read(repository.FileResearchNotes), "=== Chapter 2 Research ===")
}

func TestSectionApprovalFailurePersistsNothing(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	h.toFirstSection()

	h.model.SetResponder(func(msgs []*schema.Message) (string, error) {
		if strings.HasPrefix(generationtest.LastUserContent(msgs), "List the key events") {
			return "", errors.New("model crashed")
		}
		return scripted(msgs)
	})
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateAwaitingSectionApproval)

	assert.Empty(t, h.read(repository.FileStory))
	assert.Empty(t, h.read(repository.FileSummaries))
	st := h.orch.Status()
	assert.Equal(t, 1, st.CurrentChapter)
	assert.Equal(t, 1, st.CurrentSection)
}

func TestMilestoneWrapUp(t *testing.T) {
	settings := testSettings()
	settings.TotalChapters = 1
	h := newHarness(t, settings)
	ctx := context.Background()
	h.toFirstSection()

	// 7 词 / 8 ≈ 87%
	cfg := h.orch.project.Config
	cfg.SoftTarget = 8
	require.NoError(t, h.orch.saveConfig(ctx, h.orch.project, cfg))

	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateAwaitingMilestoneDecision)

	reqs := h.awaitEvents(bus.EventMilestoneDecisionRequested, 1)
	require.Len(t, reqs, 1)
	assert.InDelta(t, 87.5, reqs[0].Progress, 0.01)
	assert.Equal(t, 1, reqs[0].TotalChapters)

	require.Error(t, h.orch.DecideMilestone(ctx, "later"))
	require.NoError(t, h.orch.DecideMilestone(ctx, bus.MilestoneWrapUp))
	h.waitFor(entity.StateAwaitingSectionApproval)
	assert.Equal(t, 3, h.orch.Status().TotalChapters)

	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateAwaitingSectionApproval)
	assert.Len(t, h.eventsOf(bus.EventMilestoneDecisionRequested), 1)
}

func TestMilestoneExtend(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	h.toFirstSection()

	cfg := h.orch.project.Config
	cfg.SoftTarget = 8
	require.NoError(t, h.orch.saveConfig(ctx, h.orch.project, cfg))

	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateAwaitingMilestoneDecision)
	require.NoError(t, h.orch.DecideMilestone(ctx, bus.MilestoneExtend))
	h.waitFor(entity.StateAwaitingSectionApproval)
	assert.Equal(t, 30, h.orch.Status().TotalChapters)
}

func TestCompletionRunsConsistencyCheck(t *testing.T) {
	settings := testSettings()
	settings.TotalChapters = 1
	settings.SectionsPerChapter = 1
	h := newHarness(t, settings)
	ctx := context.Background()
	h.toFirstSection()

	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateComplete)

	calls := h.model.Calls()
	assert.True(t, strings.HasPrefix(calls[len(calls)-1], "Check the story excerpt"))
	assert.Contains(t, h.read(repository.FileLog), "No consistency issues detected")
}

func TestConsistencyIssuesAwaitDecision(t *testing.T) {
	settings := testSettings()
	settings.TotalChapters = 1
	settings.SectionsPerChapter = 1
	h := newHarness(t, settings)
	ctx := context.Background()
	h.toFirstSection()

	h.model.SetResponder(func(msgs []*schema.Message) (string, error) {
		if strings.HasPrefix(generationtest.LastUserContent(msgs), "Check the story excerpt") {
			return "Issues: [Mira has blue eyes in chapter 1 and green eyes later]", nil
		}
		return scripted(msgs)
	})
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateAwaitingConsistencyDecision)

	found := h.awaitEvents(bus.EventConsistencyIssuesFound, 1)
	require.Len(t, found, 1)
	assert.Contains(t, found[0].Text, "green eyes")

	require.NoError(t, h.orch.ResolveConsistency(ctx, true))
	assert.Equal(t, entity.StateComplete, h.orch.State())
	assert.Error(t, h.orch.ResolveConsistency(ctx, false))
}

func TestPauseOnlyWhileGenerating(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))

	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(h.orch.Pause(ctx)))
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(h.orch.Resume(ctx)))
}

func TestPauseHoldsStepUntilResume(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))

	// 暂停开关在启动前打开，生成步骤在第一个 token 前阻塞
	h.orch.Gate().Pause()
	require.NoError(t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim"))

	time.Sleep(50 * time.Millisecond)
	st := h.orch.Status()
	assert.Equal(t, entity.StateGeneratingSynopsis, st.State)
	assert.True(t, st.Paused)
	assert.Empty(t, h.eventsOf(bus.EventPhaseContentUpdated))

	require.NoError(t, h.orch.Pause(ctx))
	require.NoError(t, h.orch.Resume(ctx))
	h.waitFor(entity.StateAwaitingSynopsisApproval)
	assert.Equal(t, sectionText, h.read(repository.FileSynopsis))
}

func TestPauseAfterLastTokenDoesNotStallNextStep(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))

	// 暂停在最后一个 token 之后才到达，步骤照常结束
	late := job{name: "synopsis", run: func(ctx context.Context, p *entity.Project) (entity.PhaseState, error) {
		h.orch.Gate().Pause()
		return entity.StateIdle, nil
	}}
	ok := func(entity.PhaseState, *entity.Project) error { return nil }
	require.NoError(t, h.orch.accept(ctx, bus.CommandStart, ok, entity.StateGeneratingSynopsis, late))
	h.waitFor(entity.StateIdle)
	assert.False(t, h.orch.Status().Paused)

	// 下一个生成步骤不会卡在第一个 token
	require.NoError(t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim"))
	h.waitFor(entity.StateAwaitingSynopsisApproval)
	assert.Equal(t, sectionText, h.read(repository.FileSynopsis))
}

func TestResumeClearsPauseInSettledState(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	require.NoError(t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim"))
	h.waitFor(entity.StateAwaitingSynopsisApproval)

	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(h.orch.Resume(ctx)))

	h.orch.Gate().Pause()
	assert.True(t, h.orch.Status().Paused)
	require.NoError(t, h.orch.Resume(ctx))
	assert.False(t, h.orch.Status().Paused)
	assert.Equal(t, entity.StateAwaitingSynopsisApproval, h.orch.State())
}

func TestLoadRestoresApprovalGate(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	require.NoError(t, h.orch.Start(ctx, "Idea: A dragon, Tone: grim"))
	h.waitFor(entity.StateAwaitingSynopsisApproval)
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSynopsis, ""))
	h.waitFor(entity.StateAwaitingOutlineApproval)

	edited := "Chapter 1: The egg is found\nChapter 2: The egg hatches"
	require.NoError(t, h.store.Write(ctx, "dragon", repository.FileOutline, edited))

	other := h.newOrchestrator(testSettings())
	require.NoError(t, other.LoadProject(ctx, "dragon"))
	assert.Equal(t, entity.StateAwaitingOutlineApproval, other.State())
	assert.Equal(t, "dragon", other.Status().Project)

	// 加载后重新推送待审批内容，内容来自刚加载的项目
	require.Eventually(t, func() bool {
		for _, e := range h.eventsOf(bus.EventPhaseContentUpdated) {
			if e.Phase == string(entity.ContentOutline) && e.Text == edited {
				return true
			}
		}
		return false
	}, 5*time.Second, 2*time.Millisecond)

	err := other.LoadProject(ctx, "missing")
	assert.Equal(t, apperrors.CodeProjectNotFound, apperrors.CodeOf(err))
	assert.Equal(t, "dragon", other.Status().Project)
}

func TestLoadResumesPendingSection(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	h.toFirstSection()
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateAwaitingSectionApproval)

	ctx2, cancel := context.WithCancel(context.Background())
	defer cancel()
	other := h.newOrchestrator(testSettings())
	go func() { _ = other.Run(ctx2) }()
	require.NoError(t, other.LoadProject(ctx, "dragon"))
	assert.Equal(t, entity.StateAwaitingSectionApproval, other.State())

	// 重新审批缓冲区里的第二节后继续
	require.NoError(t, other.Approve(ctx, entity.ContentSection, ""))
	require.Eventually(t, func() bool {
		st := other.Status()
		return st.State == entity.StateAwaitingSectionApproval && !st.Running && st.CurrentSection == 3
	}, 5*time.Second, 2*time.Millisecond)
}

func TestContinueAfterDraftFailure(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	h.toFirstSection()

	h.model.SetResponder(func(msgs []*schema.Message) (string, error) {
		if strings.HasPrefix(generationtest.LastUserContent(msgs), "Write section") {
			return "", generationtest.ErrUnavailable
		}
		return scripted(msgs)
	})
	require.NoError(t, h.orch.Approve(ctx, entity.ContentSection, ""))
	h.waitFor(entity.StateIdle)

	require.Len(t, entity.ParseStory(h.read(repository.FileStory)), 1)
	assert.Equal(t, 2, h.orch.Status().CurrentSection)

	h.model.SetResponder(scripted)
	require.NoError(t, h.orch.Continue(ctx))
	h.waitFor(entity.StateAwaitingSectionApproval)
	assert.Equal(t, 2, h.orch.Status().CurrentSection)
	assert.Contains(t, h.read(repository.FileLog), "Continuing at Chapter 1, Section 2")
}

func TestContinueRequiresPlanning(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	err := h.orch.Continue(ctx)
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.CodeOf(err))
}

func TestCreateProjectConflicts(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	err := h.orch.CreateProject(ctx, "dragon")
	assert.Equal(t, apperrors.CodeProjectExists, apperrors.CodeOf(err))
}

func TestDispatch(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()

	require.NoError(t, h.orch.Dispatch(ctx, bus.Command{Kind: bus.CommandCreateProject, Name: "dragon"}))
	require.NoError(t, h.orch.Dispatch(ctx, bus.Command{Kind: bus.CommandStart, Idea: "A dragon", Tone: "grim"}))
	h.waitFor(entity.StateAwaitingSynopsisApproval)

	require.NoError(t, h.orch.Dispatch(ctx, bus.Command{Kind: bus.CommandApprove}))
	h.waitFor(entity.StateAwaitingOutlineApproval)

	err := h.orch.Dispatch(ctx, bus.Command{Kind: "dance"})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.CodeOf(err))

	err = h.orch.Dispatch(ctx, bus.Command{Kind: bus.CommandAdjust, Phase: "poem", Feedback: "x"})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.CodeOf(err))
}

func TestBackupNow(t *testing.T) {
	h := newHarness(t, testSettings())
	ctx := context.Background()
	var got []string
	h.orch.backup = func(_ context.Context, project string) ([]string, error) {
		got = append(got, project)
		return []string{"/x/backups/story_1.txt", "/x/backups/log_1.txt"}, nil
	}

	h.orch.BackupNow(ctx)
	assert.Empty(t, got)

	require.NoError(t, h.orch.CreateProject(ctx, "dragon"))
	h.orch.BackupNow(ctx)
	assert.Equal(t, []string{"dragon"}, got)
	assert.Contains(t, h.read(repository.FileLog), "Backup completed: story_1.txt, log_1.txt")
}
