package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	failures int
	calls    int
	topics   []string
}

func (h *countingHandler) Handle(_ context.Context, msg *Message) error {
	h.calls++
	h.topics = append(h.topics, msg.Topic)
	if h.calls <= h.failures {
		return errors.New("store unavailable")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConsumer(h Handler) *Consumer {
	return &Consumer{
		handler:    h,
		logger:     discardLogger(),
		minBackoff: time.Millisecond,
		maxBackoff: 4 * time.Millisecond,
	}
}

func TestProcess(t *testing.T) {
	t.Run("retries until the handler succeeds", func(t *testing.T) {
		h := &countingHandler{failures: 3}
		ok := newTestConsumer(h).process(context.Background(), &Message{Topic: "t"})

		assert.True(t, ok)
		assert.Equal(t, 4, h.calls)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		h := &countingHandler{failures: 1 << 30}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		ok := newTestConsumer(h).process(ctx, &Message{Topic: "t"})
		assert.False(t, ok)
		assert.Positive(t, h.calls)
	})
}

func TestRouter(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches by topic", func(t *testing.T) {
		ingest := &countingHandler{}
		r := NewRouter(discardLogger(), nil)
		r.Register("activitylog.ingest", ingest)

		require.NoError(t, r.Handle(ctx, &Message{Topic: "activitylog.ingest"}))
		assert.Equal(t, 1, ingest.calls)
		assert.Equal(t, []string{"activitylog.ingest"}, r.Topics())
	})

	t.Run("unknown topic is skipped", func(t *testing.T) {
		r := NewRouter(discardLogger(), nil)
		assert.NoError(t, r.Handle(ctx, &Message{Topic: "other"}))
	})

	t.Run("unknown topic uses the fallback", func(t *testing.T) {
		fallback := &countingHandler{}
		r := NewRouter(discardLogger(), fallback)
		require.NoError(t, r.Handle(ctx, &Message{Topic: "other"}))
		assert.Equal(t, []string{"other"}, fallback.topics)
	})
}
