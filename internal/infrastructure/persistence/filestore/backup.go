package filestore

import (
	"context"
	"fmt"
	"path/filepath"

	"z-novel-pipeline/internal/domain/repository"
	apperrors "z-novel-pipeline/pkg/errors"
	"z-novel-pipeline/pkg/metrics"
)

const backupTimeFormat = "20060102_150405"

// Uploader 将本地备份文件上传到远端
type Uploader interface {
	Upload(ctx context.Context, key string, path string) error
}

// Backup 将 story 与 log 复制到 backups 目录，返回生成的文件路径
// uploader 非空时同时上传，上传失败不影响本地备份
func (s *Store) Backup(ctx context.Context, project string, uploader Uploader) ([]string, error) {
	ts := s.now().Format(backupTimeFormat)
	sources := []struct {
		file   repository.File
		prefix string
	}{
		{repository.FileStory, "story"},
		{repository.FileLog, "log"},
	}

	paths := make([]string, 0, len(sources))
	for _, src := range sources {
		content, err := s.Read(ctx, project, src.file)
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeFileNotFound {
				continue
			}
			metrics.BackupsTotal.WithLabelValues("local", "error").Inc()
			return paths, err
		}
		dst := filepath.Join(s.projectDir(project), backupsDir, fmt.Sprintf("%s_%s.txt", src.prefix, ts))
		if err := s.WriteFile(ctx, dst, content); err != nil {
			metrics.BackupsTotal.WithLabelValues("local", "error").Inc()
			return paths, err
		}
		paths = append(paths, dst)
	}
	metrics.BackupsTotal.WithLabelValues("local", "ok").Inc()

	if uploader != nil {
		for _, p := range paths {
			key := project + "/" + filepath.Base(p)
			if err := uploader.Upload(ctx, key, p); err != nil {
				metrics.BackupsTotal.WithLabelValues("remote", "error").Inc()
				return paths, apperrors.Wrap(err, apperrors.CodeStorageError, "upload backup "+key)
			}
		}
		metrics.BackupsTotal.WithLabelValues("remote", "ok").Inc()
	}
	return paths, nil
}
