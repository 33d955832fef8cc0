package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"z-novel-pipeline/internal/workflow/generation"
	"z-novel-pipeline/pkg/utils"
)

// DefaultCheckpointEvery 每收到多少个 token 发一次进度日志
const DefaultCheckpointEvery = 100

// Notifier 接收进度日志
type Notifier interface {
	Log(ctx context.Context, message string)
}

// Result 一次聚合的结果
type Result struct {
	Text   string
	Tokens int
}

// Words 结果词数
func (r Result) Words() int {
	return utils.CountWords(r.Text)
}

// Aggregator 把 token 流累积为全文快照
type Aggregator struct {
	gate            *Gate
	checkpointEvery int
	notifier        Notifier
}

// NewAggregator 创建聚合器，checkpointEvery <= 0 时使用默认值
func NewAggregator(gate *Gate, checkpointEvery int, notifier Notifier) *Aggregator {
	if checkpointEvery <= 0 {
		checkpointEvery = DefaultCheckpointEvery
	}
	return &Aggregator{gate: gate, checkpointEvery: checkpointEvery, notifier: notifier}
}

// Gate 返回暂停开关
func (a *Aggregator) Gate() *Gate {
	return a.gate
}

// Consume 读完整个流，每个 token 之后用累计全文调用 onUpdate
// 流中途出错时返回已累积的部分与错误，调用方应按步骤失败处理
func (a *Aggregator) Consume(ctx context.Context, label string, s generation.TokenStream, onUpdate func(accumulated string)) (Result, error) {
	defer s.Close()

	var (
		b      strings.Builder
		tokens int
	)
	for {
		if a.gate != nil {
			if err := a.gate.Wait(ctx); err != nil {
				return Result{Text: b.String(), Tokens: tokens}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return Result{Text: b.String(), Tokens: tokens}, err
		}

		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{Text: b.String(), Tokens: tokens}, fmt.Errorf("%s stream interrupted after %d tokens: %w", label, tokens, err)
		}

		b.WriteString(tok)
		tokens++
		if onUpdate != nil {
			onUpdate(b.String())
		}
		if tokens%a.checkpointEvery == 0 {
			a.log(ctx, fmt.Sprintf("[%s] %d tokens received...", label, tokens))
		}
	}

	res := Result{Text: b.String(), Tokens: tokens}
	a.log(ctx, fmt.Sprintf("%s complete: %d words (%d tokens)", label, res.Words(), tokens))
	return res, nil
}

func (a *Aggregator) log(ctx context.Context, msg string) {
	if a.notifier != nil {
		a.notifier.Log(ctx, msg)
	}
}
