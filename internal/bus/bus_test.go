package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutInOrder(t *testing.T) {
	b := New(8)
	a := b.Subscribe("a")
	c := b.Subscribe("c")
	defer a.Close()
	defer c.Close()

	b.Publish(LogMessage("one"))
	b.Publish(PhaseContentUpdated("synopsis", "text"))

	for _, s := range []*Subscription{a, c} {
		first := <-s.C()
		second := <-s.C()
		assert.Equal(t, EventLogMessage, first.Type)
		assert.Equal(t, "one", first.Text)
		assert.Equal(t, EventPhaseContentUpdated, second.Type)
		assert.Less(t, first.Seq, second.Seq)
		assert.NotEmpty(t, first.ID)
		assert.False(t, first.Time.IsZero())
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := New(2)
	slow := b.Subscribe("slow")
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(LogMessage("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.EqualValues(t, 8, slow.Dropped())
	assert.Len(t, slow.C(), 2)
}

func TestCloseUnsubscribes(t *testing.T) {
	b := New(1)
	s := b.Subscribe("ui")
	require.Equal(t, 1, b.Subscribers())

	s.Close()
	s.Close()
	assert.Equal(t, 0, b.Subscribers())
	_, ok := <-s.C()
	assert.False(t, ok)

	b.Publish(ErrorOccurred("after close"))
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"kind":"adjust","content":"outline","feedback":"more dragons"}`))
	require.NoError(t, err)
	assert.Equal(t, CommandAdjust, cmd.Kind)
	assert.Equal(t, "outline", cmd.Content)
	assert.Equal(t, "more dragons", cmd.Feedback)

	_, err = DecodeCommand([]byte(`{"content":"outline"}`))
	assert.Error(t, err)
	_, err = DecodeCommand([]byte(`not json`))
	assert.Error(t, err)
}
