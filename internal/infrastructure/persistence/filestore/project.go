package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"z-novel-pipeline/internal/domain/entity"
	"z-novel-pipeline/internal/domain/repository"
	apperrors "z-novel-pipeline/pkg/errors"
	"z-novel-pipeline/pkg/logger"
)

const (
	draftsDir  = "drafts"
	backupsDir = "backups"

	// LogTimeFormat 项目日志时间戳格式
	LogTimeFormat = time.RFC3339
)

var _ repository.ProjectRepository = (*Store)(nil)

// ValidateName 校验项目名，项目名直接作为目录名使用
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return apperrors.ErrInvalidParam.WithDetail("project name is empty")
	case trimmed != name:
		return apperrors.ErrInvalidParam.WithDetail("project name has surrounding whitespace")
	case name == "." || name == "..":
		return apperrors.ErrInvalidParam.WithDetail("project name is reserved")
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return apperrors.ErrInvalidParam.WithDetail("project name contains a path separator")
	}
	return nil
}

func (s *Store) projectDir(name string) string {
	return filepath.Join(s.root, name)
}

func (s *Store) path(project string, file repository.File) string {
	return filepath.Join(s.root, project, string(file))
}

// Create 创建项目目录与全部文件
func (s *Store) Create(ctx context.Context, name string) (*entity.Project, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	dir := s.projectDir(name)

	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, apperrors.ErrProjectExists.WithDetail(name)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "create project dir")
	}
	for _, sub := range []string{draftsDir, backupsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "create "+sub+" dir")
		}
	}

	cfg := s.newConfig()
	for _, f := range repository.SkeletonFiles {
		var content string
		switch f {
		case repository.FileConfig:
			content = EncodeConfig(cfg)
		case repository.FileProgress:
			content = "{}\n"
		case repository.FileLog:
			continue
		}
		if err := s.WriteFile(ctx, s.path(name, f), content); err != nil {
			return nil, err
		}
	}
	if err := s.AppendLog(ctx, name, fmt.Sprintf("Project '%s' initialized", name)); err != nil {
		return nil, err
	}

	logger.Info(ctx, "project created", "project", name, "dir", dir)
	return &entity.Project{Name: name, Dir: dir, Config: cfg}, nil
}

func (s *Store) newConfig() entity.ProjectConfig {
	cfg := entity.NewProjectConfig(s.defaults.SectionsPerChapter, s.defaults.TotalChapters)
	cfg.SoftTarget = s.defaults.SoftTarget
	cfg.Model = s.defaults.Model
	return cfg
}

// Load 读取项目全部文件
func (s *Store) Load(ctx context.Context, name string) (*entity.Project, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	dir := s.projectDir(name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, apperrors.ErrProjectNotFound.WithDetail(name)
	}

	// 加载总是读磁盘，两次运行之间允许手工编辑项目文件
	files := make(map[repository.File]string, len(repository.SkeletonFiles))
	for _, f := range repository.SkeletonFiles {
		content, err := s.readFresh(ctx, s.path(name, f))
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeFileNotFound {
				continue
			}
			return nil, err
		}
		files[f] = content
	}

	cfg, err := DecodeConfig(files[repository.FileConfig], s.newConfig())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidConfig, "decode project config")
	}

	stages, err := decodeStages(files[repository.FileProgress])
	if err != nil {
		logger.Warn(ctx, "ignoring unreadable stage tracking", "project", name, "error", err.Error())
	}

	p := &entity.Project{
		Name:            name,
		Dir:             dir,
		Synopsis:        files[repository.FileSynopsis],
		RefinedSynopsis: files[repository.FileRefinedSynopsis],
		Outline:         files[repository.FileOutline],
		CharactersText:  files[repository.FileCharacters],
		Characters:      entity.ParseCharacters(files[repository.FileCharacters]),
		WorldText:       files[repository.FileWorld],
		World:           entity.ParseWorld(files[repository.FileWorld]),
		TimelineText:    files[repository.FileTimeline],
		Timeline:        entity.ParseTimeline(files[repository.FileTimeline]),
		Story:           entity.ParseStory(files[repository.FileStory]),
		Summaries:       entity.ParseSummaries(files[repository.FileSummaries]),
		Context:         entity.ParseContext(files[repository.FileContext]),
		ResearchNotes:   files[repository.FileResearchNotes],
		Buffer:          files[repository.FileBuffer],
		Config:          cfg,
		Stages:          stages,
	}
	return p, nil
}

// List 列出全部项目名，按名称排序
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "list projects")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read 读取项目文件
func (s *Store) Read(ctx context.Context, project string, file repository.File) (string, error) {
	if err := ValidateName(project); err != nil {
		return "", err
	}
	return s.ReadFile(ctx, s.path(project, file))
}

// Write 原子替换项目文件
func (s *Store) Write(ctx context.Context, project string, file repository.File, content string) error {
	return s.WriteFile(ctx, s.path(project, file), content)
}

// Append 追加到项目文件
func (s *Store) Append(ctx context.Context, project string, file repository.File, content string) error {
	return s.AppendFile(ctx, s.path(project, file), content)
}

// SaveConfig 重写 config 文件
func (s *Store) SaveConfig(ctx context.Context, project string, cfg entity.ProjectConfig) error {
	return s.Write(ctx, project, repository.FileConfig, EncodeConfig(cfg))
}

// SaveStages 重写阶段跟踪文件
func (s *Store) SaveStages(ctx context.Context, project string, stages map[entity.ContentType]entity.StageRecord) error {
	if stages == nil {
		stages = map[entity.ContentType]entity.StageRecord{}
	}
	data, err := json.MarshalIndent(stages, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageError, "encode stage tracking")
	}
	return s.Write(ctx, project, repository.FileProgress, string(data)+"\n")
}

// SaveDraft 保存小节草稿
func (s *Store) SaveDraft(ctx context.Context, project string, chapter, section, version int, text string) error {
	name := fmt.Sprintf("chapter%d_section%d_v%d.txt", chapter, section, version)
	dir := filepath.Join(s.projectDir(project), draftsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageError, "create drafts dir")
	}
	return s.WriteFile(ctx, filepath.Join(dir, name), text)
}

// AppendLog 追加一行 "<RFC3339 时间戳> | <消息>"
func (s *Store) AppendLog(ctx context.Context, project string, message string) error {
	line := fmt.Sprintf("%s | %s\n", s.now().Format(LogTimeFormat), strings.TrimRight(message, "\n"))
	return s.Append(ctx, project, repository.FileLog, line)
}

func decodeStages(text string) (map[entity.ContentType]entity.StageRecord, error) {
	stages := map[entity.ContentType]entity.StageRecord{}
	if strings.TrimSpace(text) == "" {
		return stages, nil
	}
	if err := json.Unmarshal([]byte(text), &stages); err != nil {
		return map[entity.ContentType]entity.StageRecord{}, err
	}
	return stages, nil
}
