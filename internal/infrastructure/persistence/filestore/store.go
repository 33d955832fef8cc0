// Package filestore 提供基于项目目录的文件持久化实现
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "z-novel-pipeline/pkg/errors"
)

var tracer = otel.Tracer("filestore")

// Store 文件存储，同一路径的读写由路径锁串行化
type Store struct {
	root     string
	locks    *LockRegistry
	cache    *lru.Cache[string, cachedFile]
	defaults Defaults
	now      func() time.Time
}

// cachedFile 缓存条目，命中时以修改时间和大小校验磁盘上的文件未被外部改动
type cachedFile struct {
	content string
	modTime time.Time
	size    int64
}

func (c cachedFile) matches(info fs.FileInfo) bool {
	return info.ModTime().Equal(c.modTime) && info.Size() == c.size
}

// Defaults 新项目的默认配置
type Defaults struct {
	SectionsPerChapter int
	TotalChapters      int
	SoftTarget         int
	Model              string
}

// Option 存储选项
type Option func(*Store)

// WithLocks 使用指定锁表，默认使用进程级锁表
func WithLocks(r *LockRegistry) Option {
	return func(s *Store) { s.locks = r }
}

// WithDefaults 设置新项目默认配置
func WithDefaults(d Defaults) Option {
	return func(s *Store) { s.defaults = d }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New 创建文件存储，cacheSize 为读缓存条目数，<= 0 时关闭缓存
func New(root string, cacheSize int, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "create projects dir")
	}

	s := &Store{
		root:  root,
		locks: DefaultLocks,
		defaults: Defaults{
			SectionsPerChapter: 3,
			TotalChapters:      25,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cacheSize > 0 {
		c, err := lru.New[string, cachedFile](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create read cache: %w", err)
		}
		s.cache = c
	}
	return s, nil
}

// Root 返回项目根目录
func (s *Store) Root() string {
	return s.root
}

// ReadFile 读取文件内容，不存在时返回 ErrFileNotFound
// 缓存命中时仍会 stat 文件，外部手工修改过的文件会重新读取
func (s *Store) ReadFile(ctx context.Context, path string) (string, error) {
	ctx, span := tracer.Start(ctx, "filestore.Read", trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	if s.cache != nil {
		if v, ok := s.cache.Get(path); ok {
			if info, err := os.Stat(path); err == nil && v.matches(info) {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return v.content, nil
			}
			s.cache.Remove(path)
		}
	}
	return s.readFresh(ctx, path)
}

// readFresh 绕过缓存从磁盘读取，并刷新缓存
func (s *Store) readFresh(ctx context.Context, path string) (string, error) {
	span := trace.SpanFromContext(ctx)

	l := s.locks.For(path)
	l.Lock()
	defer l.Unlock()

	info, err := os.Stat(path)
	if err == nil {
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			content := string(data)
			if s.cache != nil {
				s.cache.Add(path, cachedFile{content: content, modTime: info.ModTime(), size: info.Size()})
			}
			return content, nil
		}
	}
	if errors.Is(err, fs.ErrNotExist) {
		return "", apperrors.ErrFileNotFound.WithDetail(path)
	}
	span.RecordError(err)
	return "", apperrors.Wrap(err, apperrors.CodeStorageError, "read "+path)
}

// WriteFile 原子替换文件内容
func (s *Store) WriteFile(ctx context.Context, path string, content string) error {
	_, span := tracer.Start(ctx, "filestore.Write", trace.WithAttributes(
		attribute.String("file.path", path),
		attribute.Int("file.bytes", len(content)),
	))
	defer span.End()

	l := s.locks.For(path)
	l.Lock()
	defer l.Unlock()

	if err := writeAtomic(path, []byte(content)); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStorageError, "write "+path)
	}
	s.invalidate(path)
	return nil
}

// AppendFile 追加内容，文件不存在时创建
func (s *Store) AppendFile(ctx context.Context, path string, content string) error {
	_, span := tracer.Start(ctx, "filestore.Append", trace.WithAttributes(
		attribute.String("file.path", path),
		attribute.Int("file.bytes", len(content)),
	))
	defer span.End()

	l := s.locks.For(path)
	l.Lock()
	defer l.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStorageError, "append "+path)
	}
	_, werr := f.WriteString(content)
	cerr := f.Close()
	s.invalidate(path)
	if err := errors.Join(werr, cerr); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStorageError, "append "+path)
	}
	return nil
}

func (s *Store) invalidate(path string) {
	if s.cache != nil {
		s.cache.Remove(path)
	}
}

// writeAtomic 写入同目录临时文件后重命名
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
