package dto

import (
	"z-novel-pipeline/internal/bus"
)

// StartRequest 开始新小说；Config 为原始配置串，也可以分字段给出
type StartRequest struct {
	Config     string `json:"config"`
	Idea       string `json:"idea"`
	Tone       string `json:"tone"`
	SoftTarget int    `json:"soft_target" binding:"gte=0"`
}

// ToCommand 转换为命令
func (r *StartRequest) ToCommand() bus.Command {
	return bus.Command{
		Kind:       bus.CommandStart,
		Config:     r.Config,
		Idea:       r.Idea,
		Tone:       r.Tone,
		SoftTarget: r.SoftTarget,
	}
}

// ApproveRequest 审批请求，Content 非空时以其替换待审批内容
type ApproveRequest struct {
	Phase   string `json:"phase"`
	Content string `json:"content"`
}

// AdjustRequest 反馈修改请求
type AdjustRequest struct {
	Phase    string `json:"phase"`
	Feedback string `json:"feedback" binding:"required"`
}

// MilestoneRequest 里程碑决策
type MilestoneRequest struct {
	Choice string `json:"choice" binding:"required,oneof=extend wrapUp"`
}

// ConsistencyRequest 一致性问题处理
type ConsistencyRequest struct {
	AutoFix bool `json:"auto_fix"`
}
