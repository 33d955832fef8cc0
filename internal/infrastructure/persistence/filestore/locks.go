package filestore

import "sync"

// LockRegistry 按文件路径分配互斥锁
// 表项按需创建且从不回收，同一路径在进程内始终对应同一把锁
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry 创建锁表
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// DefaultLocks 进程级共享锁表
var DefaultLocks = NewLockRegistry()

// For 返回路径对应的锁
func (r *LockRegistry) For(path string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[path]
	if !ok {
		l = &sync.Mutex{}
		r.locks[path] = l
	}
	return l
}

// Len 返回已分配的锁数量
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
