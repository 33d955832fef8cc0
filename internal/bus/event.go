// Package bus 定义 UI 与流水线之间的命令和事件，并提供非阻塞的事件分发
package bus

import (
	"time"
)

// EventType 事件类型
type EventType string

const (
	EventPhaseContentUpdated        EventType = "phaseContentUpdated"
	EventLogMessage                 EventType = "logMessage"
	EventErrorOccurred              EventType = "errorOccurred"
	EventMilestoneDecisionRequested EventType = "milestoneDecisionRequested"
	EventConsistencyIssuesFound     EventType = "consistencyIssuesFound"
	EventPhaseCompleted             EventType = "phaseCompleted"
	EventStateChanged               EventType = "stateChanged"
)

// Event 推送给订阅者的事件
type Event struct {
	ID            string    `json:"id"`
	Seq           uint64    `json:"seq"`
	Type          EventType `json:"type"`
	Project       string    `json:"project,omitempty"`
	Phase         string    `json:"phase,omitempty"`
	State         string    `json:"state,omitempty"`
	Text          string    `json:"text,omitempty"`
	Progress      float64   `json:"progress,omitempty"`
	Chapter       int       `json:"chapter,omitempty"`
	TotalChapters int       `json:"total_chapters,omitempty"`
	Time          time.Time `json:"time"`
}

// PhaseContentUpdated 阶段内容的全文快照
func PhaseContentUpdated(phase, text string) Event {
	return Event{Type: EventPhaseContentUpdated, Phase: phase, Text: text}
}

// LogMessage 日志通知
func LogMessage(text string) Event {
	return Event{Type: EventLogMessage, Text: text}
}

// ErrorOccurred 错误通知
func ErrorOccurred(text string) Event {
	return Event{Type: EventErrorOccurred, Text: text}
}

// MilestoneDecisionRequested 请求用户决定扩展或收尾
func MilestoneDecisionRequested(progress float64, chapter, total int) Event {
	return Event{Type: EventMilestoneDecisionRequested, Progress: progress, Chapter: chapter, TotalChapters: total}
}

// ConsistencyIssuesFound 一致性检查发现问题
func ConsistencyIssuesFound(text string) Event {
	return Event{Type: EventConsistencyIssuesFound, Text: text}
}

// PhaseCompleted 阶段完成
func PhaseCompleted(phase string) Event {
	return Event{Type: EventPhaseCompleted, Phase: phase}
}

// StateChanged 状态切换
func StateChanged(state string) Event {
	return Event{Type: EventStateChanged, State: state}
}
