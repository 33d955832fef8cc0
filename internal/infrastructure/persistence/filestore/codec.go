package filestore

import (
	"fmt"
	"strconv"
	"strings"

	"z-novel-pipeline/internal/domain/entity"
)

// config 文件的键，每行一个 "Key: value"
const (
	keyIdea               = "Idea"
	keyTone               = "Tone"
	keySoftTarget         = "SoftTarget"
	keyTotalChapters      = "TotalChapters"
	keyCurrentChapter     = "CurrentChapter"
	keyCurrentSection     = "CurrentSection"
	keySectionsPerChapter = "SectionsPerChapter"
	keyWordCount          = "WordCount"
	keyProgress           = "Progress"
	keyModel              = "LLMModel"
	keyMilestoneHandled   = "MilestoneHandled"
)

var valueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

// EncodeConfig 编码项目配置
func EncodeConfig(c entity.ProjectConfig) string {
	var b strings.Builder
	line := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(valueEscaper.Replace(v))
		b.WriteByte('\n')
	}
	line(keyIdea, c.Idea)
	line(keyTone, c.Tone)
	line(keySoftTarget, strconv.Itoa(c.SoftTarget))
	line(keyTotalChapters, strconv.Itoa(c.TotalChapters))
	line(keyCurrentChapter, strconv.Itoa(c.CurrentChapter))
	line(keyCurrentSection, strconv.Itoa(c.CurrentSection))
	line(keySectionsPerChapter, strconv.Itoa(c.SectionsPerChapter))
	line(keyWordCount, strconv.Itoa(c.WordCount))
	line(keyProgress, strconv.FormatFloat(c.Progress, 'f', 2, 64))
	line(keyModel, c.Model)
	line(keyMilestoneHandled, strconv.FormatBool(c.MilestoneHandled))
	return b.String()
}

// DecodeConfig 解码项目配置，未知键忽略，缺失键保留 base 中的值
func DecodeConfig(text string, base entity.ProjectConfig) (entity.ProjectConfig, error) {
	c := base
	for i, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(raw, "\r")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		key, val, ok := strings.Cut(raw, ":")
		if !ok {
			return c, fmt.Errorf("config line %d: missing ':'", i+1)
		}
		key = strings.TrimSpace(key)
		val = unescapeValue(strings.TrimPrefix(val, " "))

		var err error
		switch key {
		case keyIdea:
			c.Idea = val
		case keyTone:
			c.Tone = val
		case keySoftTarget:
			c.SoftTarget, err = atoi(val)
		case keyTotalChapters:
			c.TotalChapters, err = atoi(val)
		case keyCurrentChapter:
			c.CurrentChapter, err = atoi(val)
		case keyCurrentSection:
			c.CurrentSection, err = atoi(val)
		case keySectionsPerChapter:
			c.SectionsPerChapter, err = atoi(val)
		case keyWordCount:
			c.WordCount, err = atoi(val)
		case keyProgress:
			if strings.TrimSpace(val) != "" {
				c.Progress, err = strconv.ParseFloat(strings.TrimSpace(val), 64)
			}
		case keyModel:
			c.Model = strings.TrimSpace(val)
		case keyMilestoneHandled:
			if strings.TrimSpace(val) != "" {
				c.MilestoneHandled, err = strconv.ParseBool(strings.TrimSpace(val))
			}
		}
		if err != nil {
			return c, fmt.Errorf("config line %d (%s): %w", i+1, key, err)
		}
	}
	c.Normalize()
	return c, nil
}

func atoi(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func unescapeValue(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
