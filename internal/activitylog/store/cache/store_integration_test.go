//go:build integration

package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"catalogue/internal/activitylog/models"
	"catalogue/internal/activitylog/store/cache"
	"catalogue/internal/activitylog/store/memory"
	"catalogue/internal/activitylog/store/storetest"
	"catalogue/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	storetest.Suite
	redis *containers.RedisContainer
	inner *memory.InMemoryStore
	cache *cache.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.inner = memory.New()
	s.cache = cache.New(s.inner, s.redis.Client, cache.WithTTL(time.Minute))
	s.Store = s.cache
	s.Suite.SetupTest()
}

func (s *RedisCacheSuite) TestSecondSearchIsServedFromCache() {
	ctx := context.Background()
	q := models.Query{
		VersionIDs:   []string{"v1"},
		LogCategory:  models.CategoryDataRequest,
		AudienceType: models.AudienceApplicant,
	}
	e := s.NewEvent("v1", models.EventApplicationSubmitted)
	s.Require().NoError(s.cache.Insert(ctx, e))

	first, err := s.cache.Search(ctx, q)
	s.Require().NoError(err)
	s.Require().Len(first, 1)

	// Bypass the cache so only a cached read can still return the entry.
	s.Require().NoError(s.inner.Delete(ctx, e.ID))

	second, err := s.cache.Search(ctx, q)
	s.Require().NoError(err)
	s.Require().Len(second, 1)
	s.Equal(e.ID, second[0].ID)
}

func (s *RedisCacheSuite) TestWriteInvalidatesEveryQueryTouchingTheVersion() {
	ctx := context.Background()
	narrow := models.Query{VersionIDs: []string{"v1"}, LogCategory: models.CategoryDataRequest, AudienceType: models.AudienceCustodian}
	wide := models.Query{VersionIDs: []string{"v2", "v1"}, LogCategory: models.CategoryDataRequest, AudienceType: models.AudienceCustodian}

	for _, q := range []models.Query{narrow, wide} {
		got, err := s.cache.Search(ctx, q)
		s.Require().NoError(err)
		s.Empty(got)
	}

	s.Require().NoError(s.cache.Insert(ctx, s.NewEvent("v1", models.EventApplicationSubmitted)))

	for _, q := range []models.Query{narrow, wide} {
		got, err := s.cache.Search(ctx, q)
		s.Require().NoError(err)
		s.Len(got, 1)
	}
}

// pausingStore holds the first Search after it has read the inner store,
// until release is closed.
type pausingStore struct {
	*memory.InMemoryStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) Search(ctx context.Context, q models.Query) ([]*models.EventRecord, error) {
	events, err := p.InMemoryStore.Search(ctx, q)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return events, err
}

func (s *RedisCacheSuite) TestSlowSearchDoesNotCacheOverConcurrentWrite() {
	ctx := context.Background()
	inner := &pausingStore{
		InMemoryStore: memory.New(),
		read:          make(chan struct{}),
		release:       make(chan struct{}),
	}
	c := cache.New(inner, s.redis.Client, cache.WithTTL(time.Minute))
	q := models.Query{
		VersionIDs:   []string{"v1"},
		LogCategory:  models.CategoryDataRequest,
		AudienceType: models.AudienceCustodian,
	}

	type result struct {
		events []*models.EventRecord
		err    error
	}
	done := make(chan result, 1)
	go func() {
		events, err := c.Search(ctx, q)
		done <- result{events, err}
	}()

	<-inner.read
	s.Require().NoError(c.Insert(ctx, s.NewEvent("v1", models.EventApplicationSubmitted)))
	close(inner.release)

	slow := <-done
	s.Require().NoError(slow.err)
	s.Empty(slow.events, "the paused search read before the insert")

	events, err := c.Search(ctx, q)
	s.Require().NoError(err)
	s.Len(events, 1)

	again, err := c.Search(ctx, q)
	s.Require().NoError(err)
	s.Len(again, 1, "the fresh result is cached")
}
