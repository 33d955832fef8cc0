package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-pipeline/internal/workflow/generation"
)

type logSink struct {
	mu   sync.Mutex
	msgs []string
}

func (l *logSink) Log(_ context.Context, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *logSink) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs...)
}

func tokens(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("t%d ", i)
	}
	return out
}

func TestConsumeEmitsGrowingPrefixes(t *testing.T) {
	toks := tokens(7)
	agg := NewAggregator(NewGate(time.Millisecond), 100, nil)

	var snapshots []string
	res, err := agg.Consume(context.Background(), "Synopsis", generation.NewSliceStream(toks, nil), func(s string) {
		snapshots = append(snapshots, s)
	})
	require.NoError(t, err)

	require.Len(t, snapshots, len(toks))
	for i := 1; i < len(snapshots); i++ {
		assert.True(t, strings.HasPrefix(snapshots[i], snapshots[i-1]))
		assert.Greater(t, len(snapshots[i]), len(snapshots[i-1]))
	}
	assert.Equal(t, strings.Join(toks, ""), res.Text)
	assert.Equal(t, snapshots[len(snapshots)-1], res.Text)
	assert.Equal(t, 7, res.Tokens)
}

func TestConsumeCheckpoints(t *testing.T) {
	sink := &logSink{}
	agg := NewAggregator(nil, 100, sink)

	_, err := agg.Consume(context.Background(), "Outline", generation.NewSliceStream(tokens(250), nil), nil)
	require.NoError(t, err)

	msgs := sink.all()
	require.Len(t, msgs, 3)
	assert.Equal(t, "[Outline] 100 tokens received...", msgs[0])
	assert.Equal(t, "[Outline] 200 tokens received...", msgs[1])
	assert.Equal(t, "Outline complete: 250 words (250 tokens)", msgs[2])
}

func TestConsumeMidStreamError(t *testing.T) {
	boom := errors.New("reset by peer")
	agg := NewAggregator(nil, 0, nil)

	res, err := agg.Consume(context.Background(), "Draft", generation.NewSliceStream([]string{"a", "b"}, boom), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "ab", res.Text)
}

func TestPauseHaltsAndResumeContinues(t *testing.T) {
	gate := NewGate(5 * time.Millisecond)
	agg := NewAggregator(gate, 100, nil)
	toks := tokens(5)

	var updates atomic.Int32
	paused := make(chan struct{})
	done := make(chan Result, 1)

	go func() {
		res, err := agg.Consume(context.Background(), "Section", generation.NewSliceStream(toks, nil), func(string) {
			if updates.Add(1) == 2 {
				gate.Pause()
				close(paused)
			}
		})
		assert.NoError(t, err)
		done <- res
	}()

	<-paused
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, updates.Load(), "no tokens consumed while paused")
	assert.True(t, gate.Paused())

	require.True(t, gate.Resume())
	select {
	case res := <-done:
		assert.Equal(t, strings.Join(toks, ""), res.Text, "no loss or duplication")
		assert.EqualValues(t, 5, updates.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not finish after resume")
	}
}

func TestGateWaitHonoursCancel(t *testing.T) {
	gate := NewGate(5 * time.Millisecond)
	require.True(t, gate.Pause())
	assert.False(t, gate.Pause())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, gate.Wait(ctx), context.DeadlineExceeded)

	require.True(t, gate.Resume())
	assert.False(t, gate.Resume())
	assert.NoError(t, gate.Wait(context.Background()))
}
