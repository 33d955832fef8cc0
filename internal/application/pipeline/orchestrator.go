// Package pipeline 编排小说生成流水线
//
// Orchestrator 持有唯一的工作协程：命令在互斥锁下同步校验并切换到进行中状态，
// 随后作为任务进入队列，由工作协程顺序执行。只有工作协程修改当前项目。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/internal/config"
	"z-novel-pipeline/internal/domain/entity"
	"z-novel-pipeline/internal/domain/repository"
	"z-novel-pipeline/internal/workflow/generation"
	"z-novel-pipeline/internal/workflow/prompt"
	"z-novel-pipeline/internal/workflow/stream"
	apperrors "z-novel-pipeline/pkg/errors"
	"z-novel-pipeline/pkg/logger"
	"z-novel-pipeline/pkg/metrics"
	"z-novel-pipeline/pkg/tracer"
)

// Generator 流式生成，由 generation.Client 实现
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.TokenStream, error)
}

// Settings 流水线参数
type Settings struct {
	SectionsPerChapter int
	TotalChapters      int
	SoftTarget         int
	MilestonePercent   float64
	ExtensionChapters  int
	WrapUpChapters     int
	CheckpointEvery    int
	PausePollInterval  time.Duration
	CommandQueue       int
	BackupInterval     time.Duration
	Model              string

	// AnalysisTemperature 分析类步骤的采样温度，创作类步骤沿用模型默认值
	AnalysisTemperature float32
}

// DefaultSettings 默认参数
func DefaultSettings() Settings {
	return Settings{
		SectionsPerChapter: 3,
		TotalChapters:      25,
		SoftTarget:         250000,
		MilestonePercent:   80,
		ExtensionChapters:  5,
		WrapUpChapters:     2,
		CheckpointEvery:    stream.DefaultCheckpointEvery,
		PausePollInterval:  stream.DefaultPollInterval,
		CommandQueue:       16,
		BackupInterval:     time.Hour,

		AnalysisTemperature: 0.2,
	}
}

// SettingsFromConfig 由配置构造参数，零值字段保留默认值
func SettingsFromConfig(cfg config.PipelineConfig, model string) Settings {
	s := DefaultSettings()
	if cfg.SectionsPerChapter > 0 {
		s.SectionsPerChapter = cfg.SectionsPerChapter
	}
	if cfg.TotalChapters > 0 {
		s.TotalChapters = cfg.TotalChapters
	}
	if cfg.SoftTarget > 0 {
		s.SoftTarget = cfg.SoftTarget
	}
	if cfg.MilestonePercent > 0 {
		s.MilestonePercent = cfg.MilestonePercent
	}
	if cfg.ExtensionChapters > 0 {
		s.ExtensionChapters = cfg.ExtensionChapters
	}
	if cfg.WrapUpChapters > 0 {
		s.WrapUpChapters = cfg.WrapUpChapters
	}
	if cfg.CheckpointEvery > 0 {
		s.CheckpointEvery = cfg.CheckpointEvery
	}
	if cfg.PausePollInterval > 0 {
		s.PausePollInterval = cfg.PausePollInterval
	}
	if cfg.CommandQueue > 0 {
		s.CommandQueue = cfg.CommandQueue
	}
	if cfg.BackupInterval > 0 {
		s.BackupInterval = cfg.BackupInterval
	}
	if cfg.AnalysisTemperature > 0 {
		s.AnalysisTemperature = float32(cfg.AnalysisTemperature)
	}
	s.Model = model
	return s
}

// Status 流水线状态快照
type Status struct {
	Project            string            `json:"project,omitempty"`
	State              entity.PhaseState `json:"state"`
	Paused             bool              `json:"paused"`
	Running            bool              `json:"running"`
	CurrentChapter     int               `json:"current_chapter,omitempty"`
	CurrentSection     int               `json:"current_section,omitempty"`
	TotalChapters      int               `json:"total_chapters,omitempty"`
	SectionsPerChapter int               `json:"sections_per_chapter,omitempty"`
	WordCount          int               `json:"word_count"`
	Progress           float64           `json:"progress"`
}

// job 工作协程执行的任务，返回任务结束后的状态
type job struct {
	name string
	run  func(ctx context.Context, p *entity.Project) (entity.PhaseState, error)
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithBackup 设置定期备份函数
func WithBackup(fn BackupFunc) Option {
	return func(o *Orchestrator) { o.backup = fn }
}

// Orchestrator 流水线编排器
type Orchestrator struct {
	repo     repository.ProjectRepository
	gen      Generator
	prompts  *prompt.Registry
	bus      *bus.Bus
	gate     *stream.Gate
	agg      *stream.Aggregator
	settings Settings
	now      func() time.Time
	backup   BackupFunc

	jobs    chan job
	started atomic.Bool

	mu      sync.Mutex
	state   entity.PhaseState
	project *entity.Project
	cfg     entity.ProjectConfig
	running bool

	// 以下字段只由工作协程访问
	drafts int
}

// New 创建编排器
func New(repo repository.ProjectRepository, gen Generator, prompts *prompt.Registry, b *bus.Bus, settings Settings, opts ...Option) *Orchestrator {
	if prompts == nil {
		prompts = prompt.NewRegistry()
	}
	if settings.CommandQueue <= 0 {
		settings.CommandQueue = DefaultSettings().CommandQueue
	}
	o := &Orchestrator{
		repo:     repo,
		gen:      gen,
		prompts:  prompts,
		bus:      b,
		gate:     stream.NewGate(settings.PausePollInterval),
		settings: settings,
		now:      time.Now,
		jobs:     make(chan job, settings.CommandQueue),
		state:    entity.StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.agg = stream.NewAggregator(o.gate, settings.CheckpointEvery, o)
	return o
}

// Gate 返回暂停开关
func (o *Orchestrator) Gate() *stream.Gate {
	return o.gate
}

// Run 启动工作协程主循环，直到 ctx 取消
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return apperrors.ErrConflict.WithDetail("orchestrator worker already running")
	}
	logger.Info(ctx, "pipeline worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "pipeline worker stopped")
			return nil
		case j := <-o.jobs:
			o.execute(ctx, j)
		}
	}
}

func (o *Orchestrator) execute(ctx context.Context, j job) {
	o.mu.Lock()
	p := o.project
	o.mu.Unlock()

	ctx = logger.WithContext(ctx, logger.RunIDKey, uuid.NewString())
	ctx = logger.WithContext(ctx, logger.PhaseKey, j.name)
	if p != nil {
		ctx = logger.WithContext(ctx, logger.ProjectKey, p.Name)
	}
	ctx, span := tracer.Start(ctx, "pipeline."+j.name, trace.WithAttributes(attribute.String("pipeline.job", j.name)))

	start := time.Now()
	next, err := o.safeRun(ctx, j, p)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.PhaseDuration.WithLabelValues(j.name, status).Observe(time.Since(start).Seconds())
	tracer.End(span, err)

	if err != nil {
		o.fail(ctx, err)
	}

	// 暂停落在最后一个 token 之后时步骤已结束，清除暂停以免卡住下一个步骤
	if o.gate.Resume() {
		o.Log(ctx, "Pause cleared: step finished before the pause took effect")
	}
	o.transition(next, false)
}

func (o *Orchestrator) safeRun(ctx context.Context, j job, p *entity.Project) (next entity.PhaseState, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = entity.StateIdle
			err = apperrors.ErrInternalError.WithDetail(fmt.Sprintf("%s panicked: %v", j.name, r))
		}
	}()
	if p == nil {
		return entity.StateIdle, apperrors.ErrInvalidState.WithDetail("no active project")
	}
	return j.run(ctx, p)
}

// Status 返回状态快照，可在任意协程调用
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		State:              o.state,
		Paused:             o.gate.Paused(),
		Running:            o.running,
		CurrentChapter:     o.cfg.CurrentChapter,
		CurrentSection:     o.cfg.CurrentSection,
		TotalChapters:      o.cfg.TotalChapters,
		SectionsPerChapter: o.cfg.SectionsPerChapter,
		WordCount:          o.cfg.WordCount,
		Progress:           o.cfg.Progress,
	}
	if o.project != nil {
		st.Project = o.project.Name
	}
	return st
}

// State 当前状态
func (o *Orchestrator) State() entity.PhaseState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Log 写入 slog、项目 log.txt，并发布 logMessage 事件
func (o *Orchestrator) Log(ctx context.Context, message string) {
	logger.Info(ctx, message)
	name := o.projectName()
	if name != "" && o.repo != nil {
		if err := o.repo.AppendLog(ctx, name, message); err != nil {
			logger.Warn(ctx, "failed to append project log", "error", err.Error())
		}
	}
	o.publish(bus.LogMessage(message))
}

// fail 报告终止性错误，工作协程继续运行
func (o *Orchestrator) fail(ctx context.Context, err error) {
	logger.Error(ctx, "pipeline step failed", err)
	name := o.projectName()
	if name != "" && o.repo != nil {
		_ = o.repo.AppendLog(ctx, name, "Error: "+err.Error())
	}
	o.publish(bus.ErrorOccurred(err.Error()))
}

// reject 拒绝命令，不修改任何状态
func (o *Orchestrator) reject(ctx context.Context, kind bus.CommandKind, err error) error {
	metrics.CommandsRejected.WithLabelValues(string(kind)).Inc()
	logger.Warn(ctx, "command rejected", "command", string(kind), "error", err.Error())
	o.publish(bus.ErrorOccurred(err.Error()))
	return err
}

func (o *Orchestrator) publish(e bus.Event) {
	if o.bus == nil {
		return
	}
	if e.Project == "" {
		e.Project = o.projectName()
	}
	o.bus.Publish(e)
}

func (o *Orchestrator) projectName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.project == nil {
		return ""
	}
	return o.project.Name
}

// setState 切换状态并发布 stateChanged
func (o *Orchestrator) setState(s entity.PhaseState) {
	o.transition(s, true)
}

func (o *Orchestrator) transition(s entity.PhaseState, running bool) {
	o.mu.Lock()
	changed := o.state != s
	o.state = s
	o.running = running
	o.mu.Unlock()
	if changed {
		metrics.StateTransitions.WithLabelValues(string(s)).Inc()
		o.publish(bus.StateChanged(string(s)))
	}
}

// syncConfig 刷新供 Status 读取的配置副本
func (o *Orchestrator) syncConfig(cfg entity.ProjectConfig) {
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
}

// accept 在锁内校验状态并切换到进行中状态，然后把任务放入队列
func (o *Orchestrator) accept(ctx context.Context, kind bus.CommandKind, check func(state entity.PhaseState, p *entity.Project) error, next entity.PhaseState, j job) error {
	o.mu.Lock()
	if o.project == nil {
		o.mu.Unlock()
		return o.reject(ctx, kind, apperrors.ErrInvalidState.WithDetail("no active project"))
	}
	if o.running {
		o.mu.Unlock()
		return o.reject(ctx, kind, apperrors.ErrInvalidState.WithDetail("another step is still running"))
	}
	if err := check(o.state, o.project); err != nil {
		o.mu.Unlock()
		return o.reject(ctx, kind, err)
	}
	select {
	case o.jobs <- j:
	default:
		o.mu.Unlock()
		return o.reject(ctx, kind, apperrors.ErrServiceUnavailable.WithDetail("command queue is full"))
	}
	prev := o.state
	o.state = next
	o.running = true
	o.mu.Unlock()

	if prev != next {
		metrics.StateTransitions.WithLabelValues(string(next)).Inc()
		o.publish(bus.StateChanged(string(next)))
	}
	return nil
}

func requireState(want ...entity.PhaseState) func(entity.PhaseState, *entity.Project) error {
	return func(state entity.PhaseState, _ *entity.Project) error {
		for _, w := range want {
			if state == w {
				return nil
			}
		}
		return invalidState(state)
	}
}

func invalidState(state entity.PhaseState) error {
	return apperrors.ErrInvalidState.WithDetail(fmt.Sprintf("command not allowed in state %s", state))
}

// Dispatch 按命令类型分发
func (o *Orchestrator) Dispatch(ctx context.Context, cmd bus.Command) error {
	switch cmd.Kind {
	case bus.CommandStart:
		if cmd.Config != "" {
			return o.Start(ctx, cmd.Config)
		}
		return o.StartWith(ctx, StartConfig{Idea: cmd.Idea, Tone: cmd.Tone, SoftTarget: cmd.SoftTarget})
	case bus.CommandApprove, bus.CommandAdjust:
		ct, err := o.commandTarget(cmd)
		if err != nil {
			return o.reject(ctx, cmd.Kind, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		}
		if cmd.Kind == bus.CommandApprove {
			return o.Approve(ctx, ct, cmd.Content)
		}
		return o.Adjust(ctx, ct, cmd.Feedback)
	case bus.CommandPause:
		return o.Pause(ctx)
	case bus.CommandResume:
		return o.Resume(ctx)
	case bus.CommandContinue:
		return o.Continue(ctx)
	case bus.CommandCreateProject:
		return o.CreateProject(ctx, cmd.Name)
	case bus.CommandLoadProject:
		return o.LoadProject(ctx, cmd.Name)
	case bus.CommandDecideMilestone:
		return o.DecideMilestone(ctx, cmd.Choice)
	case bus.CommandResolveConsistency:
		return o.ResolveConsistency(ctx, cmd.AutoFix)
	default:
		return o.reject(ctx, cmd.Kind, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown command %q", cmd.Kind)))
	}
}

// commandTarget 解析 approve/adjust 的目标产物，未指定时取当前待审批产物
func (o *Orchestrator) commandTarget(cmd bus.Command) (entity.ContentType, error) {
	if cmd.Phase != "" {
		return entity.ParseContentType(cmd.Phase)
	}
	if ct, ok := o.State().AwaitingContent(); ok {
		return ct, nil
	}
	return "", errors.New("phase is required")
}

// Pause 暂停当前流式步骤，不改变阶段状态
func (o *Orchestrator) Pause(ctx context.Context) error {
	state := o.State()
	if !state.Busy() {
		return o.reject(ctx, bus.CommandPause, invalidState(state))
	}
	if o.gate.Pause() {
		o.Log(ctx, "Generation paused")
	}
	return nil
}

// Resume 恢复暂停的流式步骤；闸门仍处于暂停时在任何状态下都可恢复
func (o *Orchestrator) Resume(ctx context.Context) error {
	state := o.State()
	if !state.Busy() && !o.gate.Paused() {
		return o.reject(ctx, bus.CommandResume, invalidState(state))
	}
	if o.gate.Resume() {
		o.Log(ctx, "Generation resumed")
	}
	return nil
}
