package entity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	chapterMarker = regexp.MustCompile(`(?m)^=== CHAPTER (\d+) ===[ \t]*$`)
	sectionMarker = regexp.MustCompile(`(?m)^--- Section \d+ ---[ \t]*$`)
)

// ChapterMarker 章节标记行
func ChapterMarker(chapter int) string {
	return fmt.Sprintf("=== CHAPTER %d ===", chapter)
}

// SectionChunk 返回追加到 story 文件的文本块
// 每章第一节前写章节标记，其余小节前写小节分隔行
func SectionChunk(chapter, section int, text string) string {
	text = strings.TrimSpace(text)
	if section <= 1 {
		return "\n\n" + ChapterMarker(chapter) + "\n\n" + text
	}
	return fmt.Sprintf("\n\n--- Section %d ---\n\n%s", section, text)
}

// RenderStory 将章节渲染为与逐节追加等价的文本
func RenderStory(chapters []Chapter) string {
	var b strings.Builder
	for _, ch := range chapters {
		for i, s := range ch.Sections {
			b.WriteString(SectionChunk(ch.Number, i+1, s))
		}
	}
	return b.String()
}

// ParseStory 解析 story 文件
// 没有章节标记的非空文本视为第 1 章的唯一小节
func ParseStory(text string) []Chapter {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	locs := chapterMarker.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []Chapter{{Number: 1, Sections: []string{strings.TrimSpace(text)}}}
	}

	chapters := make([]Chapter, 0, len(locs))
	for i, loc := range locs {
		num, _ := strconv.Atoi(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := text[loc[1]:end]

		var sections []string
		for _, part := range sectionMarker.Split(body, -1) {
			if s := strings.TrimSpace(part); s != "" {
				sections = append(sections, s)
			}
		}
		chapters = append(chapters, Chapter{Number: num, Sections: sections})
	}
	return chapters
}
