// Package storetest holds the behaviour every event store must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"catalogue/internal/activitylog/models"
	"catalogue/pkg/platform/sentinel"
)

// Store is the event store under test.
type Store interface {
	Search(ctx context.Context, q models.Query) ([]*models.EventRecord, error)
	Insert(ctx context.Context, e *models.EventRecord) error
	FindByID(ctx context.Context, id string) (*models.EventRecord, error)
	Delete(ctx context.Context, id string) error
}

// Suite is embedded by backend-specific suites, which set Store (and reset
// backend state) in their SetupTest before calling Suite.SetupTest.
type Suite struct {
	suite.Suite
	Store Store
	ctx   context.Context
	seq   int
	base  time.Time
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.seq = 0
	s.base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
}

// NewEvent returns a valid record; ids are unique within a test.
func (s *Suite) NewEvent(versionID string, eventType models.EventType, audiences ...models.AudienceType) *models.EventRecord {
	s.seq++
	category, _ := eventType.Category()
	if len(audiences) == 0 {
		audiences = eventType.DefaultAudiences()
	}
	return &models.EventRecord{
		ID:            fmt.Sprintf("evt-%03d", s.seq),
		EventType:     eventType,
		LogCategory:   category,
		AudienceTypes: audiences,
		Timestamp:     s.base.Add(time.Duration(s.seq) * time.Minute),
		ActorID:       "u1",
		VersionID:     versionID,
		VersionLabel:  "1",
		PlainText:     "Application version 1 submitted by Ada",
		HTML:          "Application version <b>1</b> submitted by <b>Ada</b>",
	}
}

func (s *Suite) insert(events ...*models.EventRecord) {
	for _, e := range events {
		s.Require().NoError(s.Store.Insert(s.ctx, e))
	}
}

func ids(events []*models.EventRecord) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func (s *Suite) TestSearchFiltersByVersionCategoryAndAudience() {
	applicantOnly := s.NewEvent("v1", models.EventApplicationSubmitted, models.AudienceApplicant)
	custodianOnly := s.NewEvent("v1", models.EventManualEvent)
	otherVersion := s.NewEvent("v2", models.EventApplicationSubmitted, models.AudienceApplicant)
	dataset := s.NewEvent("v1", models.EventDatasetVersionSubmitted, models.AudienceApplicant)
	s.insert(applicantOnly, custodianOnly, otherVersion, dataset)

	got, err := s.Store.Search(s.ctx, models.Query{
		VersionIDs:   []string{"v1"},
		LogCategory:  models.CategoryDataRequest,
		AudienceType: models.AudienceApplicant,
	})
	s.Require().NoError(err)
	s.Equal([]string{applicantOnly.ID}, ids(got))

	got, err = s.Store.Search(s.ctx, models.Query{
		VersionIDs:   []string{"v1", "v2"},
		LogCategory:  models.CategoryDataRequest,
		AudienceType: models.AudienceApplicant,
	})
	s.Require().NoError(err)
	s.ElementsMatch([]string{applicantOnly.ID, otherVersion.ID}, ids(got))
}

func (s *Suite) TestSearchWithoutMatchesIsEmpty() {
	got, err := s.Store.Search(s.ctx, models.Query{
		VersionIDs:   []string{"missing"},
		LogCategory:  models.CategoryDataset,
		AudienceType: models.AudienceAdmin,
	})
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *Suite) TestRoundTripKeepsEveryField() {
	e := s.NewEvent("v1", models.EventUpdatesSubmitted)
	e.DetailedText = `Organisation: "Acme" changed to "Acme Ltd"`
	e.DetailedHTML = "<ul><li>Organisation</li></ul>"
	e.AdminComment = "looks good"
	e.FieldDiffs = []models.FieldDiff{{Section: "Safe people", Question: "Organisation", Previous: "Acme", Updated: "Acme Ltd"}}
	s.insert(e)

	found, err := s.Store.FindByID(s.ctx, e.ID)
	s.Require().NoError(err)
	s.True(e.Timestamp.Equal(found.Timestamp))
	found.Timestamp = e.Timestamp
	s.Equal(e, found)
}

func (s *Suite) TestInsertDuplicateIsConflict() {
	e := s.NewEvent("v1", models.EventApplicationSubmitted)
	s.insert(e)
	s.ErrorIs(s.Store.Insert(s.ctx, e), sentinel.ErrConflict)
}

func (s *Suite) TestFindUnknownIsNotFound() {
	_, err := s.Store.FindByID(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestDeleteRemovesFromSearch() {
	e := s.NewEvent("v1", models.EventManualEvent)
	s.insert(e)
	q := models.Query{
		VersionIDs:   []string{"v1"},
		LogCategory:  models.CategoryDataRequest,
		AudienceType: models.AudienceCustodian,
	}

	got, err := s.Store.Search(s.ctx, q)
	s.Require().NoError(err)
	s.Len(got, 1)

	s.Require().NoError(s.Store.Delete(s.ctx, e.ID))
	got, err = s.Store.Search(s.ctx, q)
	s.Require().NoError(err)
	s.Empty(got)

	s.ErrorIs(s.Store.Delete(s.ctx, e.ID), sentinel.ErrNotFound)
}

func (s *Suite) TestInsertIsVisibleToLaterSearch() {
	q := models.Query{
		VersionIDs:   []string{"v1"},
		LogCategory:  models.CategoryDataRequest,
		AudienceType: models.AudienceCustodian,
	}
	s.insert(s.NewEvent("v1", models.EventApplicationSubmitted))
	got, err := s.Store.Search(s.ctx, q)
	s.Require().NoError(err)
	s.Len(got, 1)

	s.insert(s.NewEvent("v1", models.EventApplicationWithdrawn))
	got, err = s.Store.Search(s.ctx, q)
	s.Require().NoError(err)
	s.Len(got, 2)
}

func (s *Suite) TestConcurrentInserts() {
	const writers = 20
	events := make([]*models.EventRecord, writers)
	for i := range events {
		events[i] = s.NewEvent("v-concurrent", models.EventApplicationSubmitted)
	}

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for _, e := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Store.Insert(s.ctx, e)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	got, err := s.Store.Search(s.ctx, models.Query{
		VersionIDs:   []string{"v-concurrent"},
		LogCategory:  models.CategoryDataRequest,
		AudienceType: models.AudienceApplicant,
	})
	s.Require().NoError(err)
	s.Len(got, writers)
}
