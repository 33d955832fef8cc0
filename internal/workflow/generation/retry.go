package generation

import (
	"context"
	"math"
	"time"
)

// RetryPolicy 生成调用的重试策略，对所有步骤统一生效
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy 3 次尝试，间隔 1s、2s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
}

// Delay 第 attempt 次（从 1 开始）失败后的等待时间
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1)))
}

// TotalWait 全部尝试失败时累计等待时间
func (p RetryPolicy) TotalWait() time.Duration {
	var total time.Duration
	for i := 1; i < p.attempts(); i++ {
		total += p.Delay(i)
	}
	return total
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Sleeper 可被取消的等待，测试中替换为记录型实现
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep 默认等待实现
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
