package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogue/internal/activitylog/models"
	"catalogue/internal/activitylog/store/memory"
	"catalogue/pkg/platform/circuit"
)

// unreachableClient fails every command without retrying.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisOutageFallsBackToInnerStore(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	require.NoError(t, inner.Insert(ctx, &models.EventRecord{
		ID:            "evt-1",
		EventType:     models.EventApplicationSubmitted,
		LogCategory:   models.CategoryDataRequest,
		AudienceTypes: []models.AudienceType{models.AudienceApplicant},
		Timestamp:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		VersionID:     "v1",
	}))

	breaker := circuit.New("test-cache", circuit.WithFailureThreshold(2))
	c := New(inner, unreachableClient(t),
		WithBreaker(breaker),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	q := models.Query{
		VersionIDs:   []string{"v1"},
		LogCategory:  models.CategoryDataRequest,
		AudienceType: models.AudienceApplicant,
	}

	events, err := c.Search(ctx, q)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, breaker.IsOpen(), "read and write failures open the breaker")

	events, err = c.Search(ctx, q)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	require.NoError(t, c.Insert(ctx, &models.EventRecord{
		ID:            "evt-2",
		EventType:     models.EventApplicationWithdrawn,
		LogCategory:   models.CategoryDataRequest,
		AudienceTypes: []models.AudienceType{models.AudienceApplicant},
		Timestamp:     time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		VersionID:     "v1",
	}))
	events, err = c.Search(ctx, q)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
