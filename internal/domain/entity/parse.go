package entity

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"z-novel-pipeline/pkg/utils"
)

// ParseCharacters 解析人物设定，支持数组或 {"characters": [...]} 两种形态
func ParseCharacters(text string) []Character {
	raw := utils.ExtractJSON(text)
	if raw == "" {
		return nil
	}

	var list []Character
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list
	}
	var wrapped struct {
		Characters []Character `json:"characters"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil {
		return wrapped.Characters
	}
	return nil
}

// ParseWorld 解析世界观设定为键值，非字符串值保留 JSON 文本
func ParseWorld(text string) map[string]string {
	raw := utils.ExtractJSON(text)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out
}

var (
	timelineLine   = regexp.MustCompile(`^(?i:chapter)\s+(\d+)\s*[:\-.)]\s*(.+)$`)
	listBullet     = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)
	summaryHeader  = regexp.MustCompile(`(?m)^Chapter (\d+), Section (\d+):[ \t]*$`)
	contextLineFmt = regexp.MustCompile(`^Chapter (\d+), Section (\d+): (.*)$`)
)

// ParseTimeline 按行解析时间线，"Chapter N: ..." 形式的行记录章节号
func ParseTimeline(text string) []TimelineEvent {
	var events []TimelineEvent
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listBullet.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" {
			continue
		}
		if m := timelineLine.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			events = append(events, TimelineEvent{Chapter: n, Event: strings.TrimSpace(m[2])})
			continue
		}
		events = append(events, TimelineEvent{Event: line})
	}
	return events
}

// ParseSummaries 解析 summaries 文件
func ParseSummaries(text string) []SectionSummary {
	locs := summaryHeader.FindAllStringSubmatchIndex(text, -1)
	out := make([]SectionSummary, 0, len(locs))
	for i, loc := range locs {
		ch, _ := strconv.Atoi(text[loc[2]:loc[3]])
		sec, _ := strconv.Atoi(text[loc[4]:loc[5]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, SectionSummary{
			Chapter: ch,
			Section: sec,
			Summary: strings.TrimSpace(text[loc[1]:end]),
		})
	}
	return out
}

// ParseContext 解析 context 文件，无法识别的行忽略
func ParseContext(text string) []ContextEntry {
	var out []ContextEntry
	for _, line := range strings.Split(text, "\n") {
		m := contextLineFmt.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		ch, _ := strconv.Atoi(m[1])
		sec, _ := strconv.Atoi(m[2])
		out = append(out, ContextEntry{Chapter: ch, Section: sec, Digest: m[3]})
	}
	return out
}
