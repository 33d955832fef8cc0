package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"z-novel-pipeline/pkg/logger"
)

// BackupFunc 备份指定项目，返回生成的文件路径
type BackupFunc func(ctx context.Context, project string) ([]string, error)

// RunBackups 按 BackupInterval 定期备份当前项目，直到 ctx 取消
func (o *Orchestrator) RunBackups(ctx context.Context) error {
	if o.backup == nil || o.settings.BackupInterval <= 0 {
		return nil
	}
	logger.Info(ctx, "backup loop started", "interval", o.settings.BackupInterval.String())

	t := time.NewTicker(o.settings.BackupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			o.BackupNow(ctx)
		}
	}
}

// BackupNow 立即备份当前项目，没有打开项目时跳过
func (o *Orchestrator) BackupNow(ctx context.Context) {
	name := o.projectName()
	if name == "" || o.backup == nil {
		return
	}
	paths, err := o.backup(ctx, name)
	if err != nil {
		logger.Error(ctx, "backup failed", err, "project", name)
		o.Log(ctx, "Backup error: "+err.Error())
		return
	}
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		files = append(files, filepath.Base(p))
	}
	o.Log(ctx, fmt.Sprintf("Backup completed: %s", strings.Join(files, ", ")))
}
