package pipeline

import (
	"context"
	"fmt"
	"strings"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/internal/domain/entity"
	apperrors "z-novel-pipeline/pkg/errors"
)

// CreateProject 创建项目骨架并设为当前项目
func (o *Orchestrator) CreateProject(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return o.reject(ctx, bus.CommandCreateProject, apperrors.ErrInvalidParam.WithDetail("project name is required"))
	}
	if err := o.reserve(ctx, bus.CommandCreateProject); err != nil {
		return err
	}

	p, err := o.repo.Create(ctx, name)
	if err != nil {
		o.release(nil, entity.StateIdle)
		return o.reject(ctx, bus.CommandCreateProject, err)
	}
	if p.Config.Model == "" {
		p.Config.Model = o.settings.Model
	}
	o.release(p, entity.StateIdle)
	o.Log(ctx, fmt.Sprintf("Project '%s' created", p.Name))
	return nil
}

// LoadProject 加载项目并按阶段跟踪恢复待审批状态
func (o *Orchestrator) LoadProject(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return o.reject(ctx, bus.CommandLoadProject, apperrors.ErrInvalidParam.WithDetail("project name is required"))
	}
	if err := o.reserve(ctx, bus.CommandLoadProject); err != nil {
		return err
	}

	p, err := o.repo.Load(ctx, name)
	if err != nil {
		o.release(nil, entity.StateIdle)
		return o.reject(ctx, bus.CommandLoadProject, err)
	}
	if p.Config.Model == "" {
		p.Config.Model = o.settings.Model
	}

	state := RestoreState(p)
	if state == entity.StateAwaitingSectionApproval {
		// 已有 v1..v3 三个版本
		o.drafts = 3
	}
	// release 之后项目可能被下一个步骤修改，事件内容在交出前取好
	loaded := fmt.Sprintf("Project '%s' loaded (Chapter %d, Section %d, %s)",
		p.Name, p.Config.CurrentChapter, p.Config.CurrentSection, state)
	var pending *bus.Event
	if ct, ok := state.AwaitingContent(); ok {
		ev := bus.PhaseContentUpdated(string(ct), artifactText(p, ct))
		pending = &ev
	}
	o.release(p, state)
	o.Log(ctx, loaded)
	if pending != nil {
		o.publish(*pending)
	}
	return nil
}

// RestoreState 根据阶段跟踪推断加载后的状态，没有可恢复的待审批内容时为 Idle
func RestoreState(p *entity.Project) entity.PhaseState {
	ct, ok := p.PendingApproval()
	if !ok || strings.TrimSpace(artifactText(p, ct)) == "" {
		return entity.StateIdle
	}
	return ct.Awaiting()
}

// reserve 在没有步骤运行时占用编排器，用于切换项目
func (o *Orchestrator) reserve(ctx context.Context, kind bus.CommandKind) error {
	o.mu.Lock()
	if o.running || !o.state.Settled() {
		state := o.state
		o.mu.Unlock()
		return o.reject(ctx, kind, apperrors.ErrInvalidState.WithDetail(fmt.Sprintf("cannot switch projects in state %s", state)))
	}
	o.running = true
	o.mu.Unlock()
	return nil
}

// release 结束占用；p 非空时替换当前项目
func (o *Orchestrator) release(p *entity.Project, state entity.PhaseState) {
	o.mu.Lock()
	prev := o.state
	if p != nil {
		o.project = p
		o.cfg = p.Config
		o.state = state
		o.gate.Resume()
	}
	o.running = false
	next := o.state
	o.mu.Unlock()
	if next != prev {
		o.publish(bus.StateChanged(string(next)))
	}
}
