package repository

import (
	"context"

	"z-novel-pipeline/internal/domain/entity"
)

// File 项目目录下的持久化文件
type File string

const (
	FileStory           File = "story.txt"
	FileLog             File = "log.txt"
	FileConfig          File = "config.txt"
	FileContext         File = "context.txt"
	FileSynopsis        File = "synopsis.txt"
	FileRefinedSynopsis File = "refined_synopsis.txt"
	FileOutline         File = "outline.txt"
	FileCharacters      File = "characters.txt"
	FileWorld           File = "world.txt"
	FileTimeline        File = "timeline.txt"
	FileSummaries       File = "summaries.txt"
	FileBuffer          File = "buffer_backup.txt"
	FileResearchNotes   File = "research_notes.txt"
	FileProgress        File = "progress.json"
)

// SkeletonFiles 新建项目时创建的文件
var SkeletonFiles = []File{
	FileStory, FileLog, FileConfig, FileContext, FileSynopsis, FileRefinedSynopsis,
	FileOutline, FileCharacters, FileWorld, FileTimeline, FileSummaries,
	FileBuffer, FileResearchNotes, FileProgress,
}

// ArtifactFile 返回产物对应的文件
func ArtifactFile(ct entity.ContentType) (File, bool) {
	switch ct {
	case entity.ContentSynopsis:
		return FileSynopsis, true
	case entity.ContentOutline:
		return FileOutline, true
	case entity.ContentCharacters:
		return FileCharacters, true
	case entity.ContentWorld:
		return FileWorld, true
	case entity.ContentTimeline:
		return FileTimeline, true
	case entity.ContentSection:
		return FileBuffer, true
	default:
		return "", false
	}
}

// ProjectRepository 项目仓储接口
type ProjectRepository interface {
	// Create 创建项目目录与全部文件，已存在时返回 ErrProjectExists
	Create(ctx context.Context, name string) (*entity.Project, error)

	// Load 读取项目全部文件为内存快照
	Load(ctx context.Context, name string) (*entity.Project, error)

	// List 列出全部项目名
	List(ctx context.Context) ([]string, error)

	// Read 读取项目文件
	Read(ctx context.Context, project string, file File) (string, error)

	// Write 原子替换项目文件
	Write(ctx context.Context, project string, file File, content string) error

	// Append 追加到项目文件
	Append(ctx context.Context, project string, file File, content string) error

	// SaveConfig 整体重写 config 文件
	SaveConfig(ctx context.Context, project string, cfg entity.ProjectConfig) error

	// SaveStages 整体重写阶段跟踪文件
	SaveStages(ctx context.Context, project string, stages map[entity.ContentType]entity.StageRecord) error

	// SaveDraft 保存小节草稿版本
	SaveDraft(ctx context.Context, project string, chapter, section, version int, text string) error

	// AppendLog 追加一行带时间戳的日志
	AppendLog(ctx context.Context, project string, message string) error
}
