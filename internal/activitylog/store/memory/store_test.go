package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"catalogue/internal/activitylog/models"
	"catalogue/internal/activitylog/store/storetest"
)

type InMemoryStoreSuite struct {
	storetest.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = New()
	s.Store = s.store
	s.Suite.SetupTest()
}

func (s *InMemoryStoreSuite) TestSearchKeepsInsertionOrder() {
	ctx := context.Background()
	later := s.NewEvent("v1", models.EventApplicationSubmitted)
	earlier := s.NewEvent("v1", models.EventApplicationWithdrawn)
	earlier.Timestamp = later.Timestamp.Add(-time.Hour)
	s.Require().NoError(s.store.Insert(ctx, later))
	s.Require().NoError(s.store.Insert(ctx, earlier))

	got, err := s.store.Search(ctx, models.Query{
		VersionIDs:   []string{"v1"},
		LogCategory:  models.CategoryDataRequest,
		AudienceType: models.AudienceApplicant,
	})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(later.ID, got[0].ID)
	s.Equal(earlier.ID, got[1].ID)
}

func (s *InMemoryStoreSuite) TestReturnedRecordsAreCopies() {
	ctx := context.Background()
	e := s.NewEvent("v1", models.EventDatasetVersionSubmitted)
	s.Require().NoError(s.store.Insert(ctx, e))
	e.AudienceTypes[0] = models.AudienceApplicant

	found, err := s.store.FindByID(ctx, e.ID)
	s.Require().NoError(err)
	found.AudienceTypes[0] = models.AudienceApplicant

	again, err := s.store.FindByID(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(models.AudienceCustodian, again.AudienceTypes[0])
}
