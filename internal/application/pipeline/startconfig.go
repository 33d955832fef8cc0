package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	apperrors "z-novel-pipeline/pkg/errors"
)

const (
	ideaMarker = "Idea: "
	toneMarker = ", Tone: "
)

var softTargetPattern = regexp.MustCompile(`, Soft Target: (\d+)$`)

// StartConfig 启动参数
type StartConfig struct {
	Idea       string `json:"idea"`
	Tone       string `json:"tone"`
	SoftTarget int    `json:"soft_target"`
}

// ParseStartConfig 解析 "Idea: <idea>, Tone: <tone>, Soft Target: <n>"
//
// 先从末尾锚定 Soft Target，再以最后一个 ", Tone: " 切分创意与基调，
// 创意里可以包含逗号甚至 "Tone:" 字样。缺少 Soft Target 时 SoftTarget 为 0，
// 由调用方填入默认值；缺少 Idea 或 Tone 标记返回 CodeInvalidConfig。
func ParseStartConfig(raw string) (StartConfig, error) {
	var cfg StartConfig

	s := strings.TrimRight(raw, "\r\n")
	if loc := softTargetPattern.FindStringSubmatchIndex(s); loc != nil {
		n, err := strconv.Atoi(s[loc[2]:loc[3]])
		if err != nil {
			return StartConfig{}, apperrors.ErrInvalidConfig.WithDetail(raw)
		}
		cfg.SoftTarget = n
		s = s[:loc[0]]
	}

	ideaAt := strings.Index(s, ideaMarker)
	toneAt := strings.LastIndex(s, toneMarker)
	if ideaAt == -1 || toneAt == -1 || toneAt < ideaAt {
		return StartConfig{}, apperrors.ErrInvalidConfig.WithDetail(raw)
	}

	cfg.Idea = strings.TrimSpace(s[ideaAt+len(ideaMarker) : toneAt])
	cfg.Tone = strings.TrimSpace(s[toneAt+len(toneMarker):])
	return cfg, nil
}

// Validate 校验直接给出的启动参数
func (c StartConfig) Validate() error {
	if strings.TrimSpace(c.Idea) == "" {
		return apperrors.ErrInvalidConfig.WithDetail("idea is required")
	}
	if c.SoftTarget < 0 {
		return apperrors.ErrInvalidConfig.WithDetail("soft target must not be negative")
	}
	return nil
}

// String 还原为原始配置格式
func (c StartConfig) String() string {
	return ideaMarker + c.Idea + toneMarker + c.Tone + ", Soft Target: " + strconv.Itoa(c.SoftTarget)
}
