package bus

import (
	"encoding/json"
	"fmt"
)

// CommandKind 命令类型
type CommandKind string

const (
	CommandStart              CommandKind = "start"
	CommandApprove            CommandKind = "approve"
	CommandAdjust             CommandKind = "adjust"
	CommandPause              CommandKind = "pause"
	CommandResume             CommandKind = "resume"
	CommandCreateProject      CommandKind = "createProject"
	CommandLoadProject        CommandKind = "loadProject"
	CommandContinue           CommandKind = "continue"
	CommandDecideMilestone    CommandKind = "decideMilestone"
	CommandResolveConsistency CommandKind = "resolveConsistency"
)

// MilestoneChoice 里程碑决策
type MilestoneChoice string

const (
	MilestoneExtend MilestoneChoice = "extend"
	MilestoneWrapUp MilestoneChoice = "wrapUp"
)

// Command UI 发出的命令
type Command struct {
	Kind CommandKind `json:"kind"`

	// start：Config 为 "Idea: ..., Tone: ..., Soft Target: N" 原文；
	// 也可以直接给出 Idea/Tone/SoftTarget
	Config     string `json:"config,omitempty"`
	Idea       string `json:"idea,omitempty"`
	Tone       string `json:"tone,omitempty"`
	SoftTarget int    `json:"soft_target,omitempty"`

	// approve/adjust：Phase 为产物类型，缺省时取当前待审批产物
	Phase    string `json:"phase,omitempty"`
	Content  string `json:"content,omitempty"`
	Feedback string `json:"feedback,omitempty"`

	// createProject/loadProject
	Name string `json:"name,omitempty"`

	// decideMilestone
	Choice MilestoneChoice `json:"choice,omitempty"`

	// resolveConsistency
	AutoFix bool `json:"auto_fix,omitempty"`
}

// DecodeCommand 解析 JSON 命令
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if cmd.Kind == "" {
		return Command{}, fmt.Errorf("decode command: missing kind")
	}
	return cmd, nil
}
