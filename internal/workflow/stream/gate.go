// Package stream 聚合流式输出并提供暂停控制
package stream

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultPollInterval 暂停时的轮询间隔
const DefaultPollInterval = 100 * time.Millisecond

// Gate 暂停开关，由 UI 侧翻转，工作协程在每个 token 前检查
type Gate struct {
	paused   atomic.Bool
	interval time.Duration
}

// NewGate 创建暂停开关
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Gate{interval: interval}
}

// Pause 置为暂停，已处于暂停时返回 false
func (g *Gate) Pause() bool {
	return g.paused.CompareAndSwap(false, true)
}

// Resume 解除暂停，未暂停时返回 false
func (g *Gate) Resume() bool {
	return g.paused.CompareAndSwap(true, false)
}

// Paused 当前是否暂停
func (g *Gate) Paused() bool {
	return g.paused.Load()
}

// Wait 暂停期间按轮询间隔阻塞，ctx 取消时返回其错误
func (g *Gate) Wait(ctx context.Context) error {
	if !g.paused.Load() {
		return nil
	}
	t := time.NewTicker(g.interval)
	defer t.Stop()
	for g.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
