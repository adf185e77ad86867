package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformtesting "solarlab-server-go/internal/platform/testing"
)

func TestStream_FanOutToAllSubscribers(t *testing.T) {
	s := NewStream(4, platformtesting.SetupTestLogger(t))
	defer s.Close()

	a, cancelA := s.Subscribe()
	b, cancelB := s.Subscribe()
	defer cancelA()
	defer cancelB()

	for seq := int64(1); seq <= 3; seq++ {
		s.Publish(&ProcessedResult{Sequence: seq})
	}

	for seq := int64(1); seq <= 3; seq++ {
		assert.Equal(t, seq, (<-a).Sequence)
		assert.Equal(t, seq, (<-b).Sequence)
	}
	assert.Equal(t, int64(3), s.Published())
	assert.Equal(t, int64(0), s.Dropped())
}

func TestStream_SubscribeSeesOnlySubsequentResults(t *testing.T) {
	s := NewStream(4, platformtesting.SetupTestLogger(t))
	defer s.Close()

	s.Publish(&ProcessedResult{Sequence: 1})

	ch, cancel := s.Subscribe()
	defer cancel()

	s.Publish(&ProcessedResult{Sequence: 2})
	assert.Equal(t, int64(2), (<-ch).Sequence)
	select {
	case r := <-ch:
		t.Fatalf("unexpected extra result %d", r.Sequence)
	default:
	}
}

func TestStream_SlowSubscriberDropsAlone(t *testing.T) {
	s := NewStream(1, platformtesting.SetupTestLogger(t))
	defer s.Close()

	slow, cancelSlow := s.Subscribe()
	defer cancelSlow()

	s.Publish(&ProcessedResult{Sequence: 1})
	s.Publish(&ProcessedResult{Sequence: 2}) // slow buffer full, dropped

	assert.Equal(t, int64(1), s.Dropped())
	assert.Equal(t, int64(1), (<-slow).Sequence)
}

func TestStream_CancelRemovesSubscriber(t *testing.T) {
	s := NewStream(4, platformtesting.SetupTestLogger(t))
	defer s.Close()

	ch, cancel := s.Subscribe()
	require.Equal(t, 1, s.SubscriberCount())

	cancel()
	cancel() // idempotent
	assert.Equal(t, 0, s.SubscriberCount())

	_, open := <-ch
	assert.False(t, open, "canceled subscriber channel must be closed")
}

func TestStream_CloseTerminatesSubscribers(t *testing.T) {
	s := NewStream(4, platformtesting.SetupTestLogger(t))

	ch, _ := s.Subscribe()
	s.Close()
	s.Close() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Publishing and subscribing after Close are inert.
	s.Publish(&ProcessedResult{Sequence: 9})
	late, cancel := s.Subscribe()
	defer cancel()
	_, open = <-late
	assert.False(t, open)
}

func TestRawImage_ReferenceCounting(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	raw := NewRawImage(payload, 7, 2)

	assert.Equal(t, payload, raw.Data())
	assert.Equal(t, 4, raw.Len())
	assert.Equal(t, int64(7), raw.Sequence())

	raw.Retain()
	raw.Release()
	raw.Release()
	assert.NotNil(t, raw.Data(), "data must survive while references remain")

	raw.Release()
	assert.Nil(t, raw.Data(), "final release recycles the buffer")
}

func TestRawImage_LeakKeepsBytesValid(t *testing.T) {
	raw := NewRawImage([]byte("frame"), 1, 1)
	data := raw.Data()
	raw.Leak()
	raw.Release()

	assert.Equal(t, []byte("frame"), data, "leaked buffer must not be recycled")
}
