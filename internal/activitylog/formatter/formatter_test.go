package formatter

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogue/internal/activitylog/models"
	dErrors "catalogue/pkg/domain-errors"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestFormatter() *Formatter {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func event(id, versionID string, ts time.Time) *models.EventRecord {
	return &models.EventRecord{
		ID:            id,
		EventType:     models.EventApplicationSubmitted,
		LogCategory:   models.CategoryDataRequest,
		AudienceTypes: []models.AudienceType{models.AudienceCustodian},
		Timestamp:     ts,
		VersionID:     versionID,
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestFormatTimeline_MajorAndMinorVersions(t *testing.T) {
	f := newTestFormatter()
	versions := []models.VersionRecord{{
		ID:                 "v1",
		MajorVersionNumber: 1,
		DateSubmitted:      ptr(fixedNow.AddDate(0, 0, -10)),
		ApplicationType:    "Initial",
		ApplicationStatus:  "submitted",
		AmendmentIterations: []models.MinorVersionRecord{
			{ID: "v1-a1", DateSubmitted: ptr(fixedNow.AddDate(0, 0, -1))},
		},
	}}
	events := []*models.EventRecord{
		event("e1", "v1", fixedNow.AddDate(0, 0, -10)),
		event("e2", "v1-a1", fixedNow.AddDate(0, 0, -1)),
	}

	timelines, err := f.FormatTimeline(events, versions)
	require.NoError(t, err)
	require.Len(t, timelines, 2)

	minor := timelines[0]
	assert.Equal(t, "Version 1.1", minor.Version)
	assert.Equal(t, 1.1, minor.VersionNumber)
	assert.Equal(t, "v1-a1", minor.VersionID)
	assert.Equal(t, UpdateApplicationType, minor.Meta.ApplicationType)
	assert.Equal(t, "submitted", minor.Meta.ApplicationStatus)
	require.NotNil(t, minor.Meta.DaysSinceSubmission)
	assert.Equal(t, "1 day", *minor.Meta.DaysSinceSubmission)
	require.Len(t, minor.Events, 1)
	assert.Equal(t, "e2", minor.Events[0].ID)

	major := timelines[1]
	assert.Equal(t, "Version 1", major.Version)
	assert.Equal(t, 1.0, major.VersionNumber)
	assert.Equal(t, "Initial", major.Meta.ApplicationType)
	require.NotNil(t, major.Meta.DateSubmitted)
	assert.Equal(t, "5 March 2024", *major.Meta.DateSubmitted)
	assert.Equal(t, "10 days", *major.Meta.DaysSinceSubmission)
	require.Len(t, major.Events, 1)
	assert.Equal(t, "e1", major.Events[0].ID)
}

func TestFormatTimeline_MissingDateSubmittedOmitsKeys(t *testing.T) {
	f := newTestFormatter()
	versions := []models.VersionRecord{{ID: "v1", MajorVersionNumber: 1, ApplicationStatus: "inProgress"}}
	events := []*models.EventRecord{event("e1", "v1", fixedNow)}

	timelines, err := f.FormatTimeline(events, versions)
	require.NoError(t, err)
	require.Len(t, timelines, 1)
	assert.Nil(t, timelines[0].Meta.DateSubmitted)
	assert.Nil(t, timelines[0].Meta.DaysSinceSubmission)

	raw, err := json.Marshal(timelines[0])
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	meta, ok := decoded["meta"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, meta, "dateSubmitted")
	assert.NotContains(t, meta, "daysSinceSubmission")
	assert.Contains(t, meta, "applicationStatus")
}

func TestFormatTimeline_DropsVersionsWithoutEvents(t *testing.T) {
	f := newTestFormatter()
	versions := []models.VersionRecord{
		{
			ID:                 "v1",
			MajorVersionNumber: 1,
			AmendmentIterations: []models.MinorVersionRecord{
				{ID: "v1-a1"},
				{ID: "v1-a2"},
			},
		},
		{ID: "v2", MajorVersionNumber: 2},
	}
	// Only the second amendment of v1 has events; the major has none.
	events := []*models.EventRecord{event("e1", "v1-a2", fixedNow)}

	timelines, err := f.FormatTimeline(events, versions)
	require.NoError(t, err)
	require.Len(t, timelines, 1)
	assert.Equal(t, "Version 1.2", timelines[0].Version)
	assert.Equal(t, 1.2, timelines[0].VersionNumber)
}

func TestFormatTimeline_NoEventsYieldsEmptyList(t *testing.T) {
	f := newTestFormatter()
	timelines, err := f.FormatTimeline(nil, []models.VersionRecord{{ID: "v1", MajorVersionNumber: 1}})
	require.NoError(t, err)
	assert.NotNil(t, timelines)
	assert.Empty(t, timelines)
}

func TestFormatTimeline_OrdersVersionsAndEvents(t *testing.T) {
	f := newTestFormatter()
	var versions []models.VersionRecord
	var events []*models.EventRecord
	for major := 1; major <= 3; major++ {
		v := models.VersionRecord{ID: fmt.Sprintf("v%d", major), MajorVersionNumber: major}
		events = append(events,
			event(fmt.Sprintf("e%d-old", major), v.ID, fixedNow.Add(-2*time.Hour)),
			event(fmt.Sprintf("e%d-new", major), v.ID, fixedNow.Add(-1*time.Hour)),
		)
		for i := 0; i < 2; i++ {
			minorID := fmt.Sprintf("v%d-a%d", major, i+1)
			v.AmendmentIterations = append(v.AmendmentIterations, models.MinorVersionRecord{ID: minorID})
			events = append(events, event("e-"+minorID, minorID, fixedNow))
		}
		versions = append(versions, v)
	}

	timelines, err := f.FormatTimeline(events, versions)
	require.NoError(t, err)
	require.Len(t, timelines, 9)

	for i := 1; i < len(timelines); i++ {
		assert.Greater(t, timelines[i-1].VersionNumber, timelines[i].VersionNumber,
			"entry %d (%s) must sort after entry %d (%s)", i, timelines[i].Version, i-1, timelines[i-1].Version)
	}
	assert.Equal(t, "Version 3.2", timelines[0].Version)
	assert.Equal(t, "Version 1", timelines[8].Version)

	for _, tl := range timelines {
		for i := 1; i < len(tl.Events); i++ {
			assert.False(t, tl.Events[i].Timestamp.After(tl.Events[i-1].Timestamp))
		}
	}
	assert.Equal(t, "e1-new", timelines[8].Events[0].ID)
	assert.Equal(t, "e1-old", timelines[8].Events[1].ID)
}

func TestFormatTimeline_EqualTimestampsKeepStoreOrder(t *testing.T) {
	f := newTestFormatter()
	events := []*models.EventRecord{
		event("first", "v1", fixedNow),
		event("second", "v1", fixedNow),
		event("third", "v1", fixedNow),
	}
	timelines, err := f.FormatTimeline(events, []models.VersionRecord{{ID: "v1", MajorVersionNumber: 1}})
	require.NoError(t, err)
	require.Len(t, timelines, 1)
	ids := []string{timelines[0].Events[0].ID, timelines[0].Events[1].ID, timelines[0].Events[2].ID}
	assert.Equal(t, []string{"first", "second", "third"}, ids)
}

func TestFormatTimeline_TenOrMoreAmendmentsStayOrdered(t *testing.T) {
	f := newTestFormatter()
	v := models.VersionRecord{ID: "v3", MajorVersionNumber: 3}
	var events []*models.EventRecord
	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("v3-a%d", i)
		v.AmendmentIterations = append(v.AmendmentIterations, models.MinorVersionRecord{ID: id})
		events = append(events, event("e-"+id, id, fixedNow))
	}

	timelines, err := f.FormatTimeline(events, []models.VersionRecord{v})
	require.NoError(t, err)
	require.Len(t, timelines, 12)
	assert.Equal(t, "Version 3.12", timelines[0].Version)
	assert.Equal(t, 3.12, timelines[0].VersionNumber)
	assert.Equal(t, "Version 3.10", timelines[2].Version)
	assert.Equal(t, "Version 3.9", timelines[3].Version)
	assert.Equal(t, 3.09, timelines[3].VersionNumber)
	assert.Equal(t, "Version 3.1", timelines[11].Version)
	for i := 1; i < len(timelines); i++ {
		assert.Greater(t, timelines[i-1].VersionNumber, timelines[i].VersionNumber)
	}
}

func TestFormatTimeline_IsDeterministic(t *testing.T) {
	f := newTestFormatter()
	versions := []models.VersionRecord{{
		ID:                  "v1",
		MajorVersionNumber:  1,
		DateSubmitted:       ptr(fixedNow.AddDate(0, 0, -3)),
		AmendmentIterations: []models.MinorVersionRecord{{ID: "v1-a1", DateSubmitted: ptr(fixedNow)}},
	}}
	events := []*models.EventRecord{
		event("e1", "v1", fixedNow.Add(-time.Hour)),
		event("e2", "v1", fixedNow.Add(-time.Minute)),
		event("e3", "v1-a1", fixedNow),
	}

	first, err := f.FormatTimeline(events, versions)
	require.NoError(t, err)
	second, err := f.FormatTimeline(events, versions)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, "0 days", *first[0].Meta.DaysSinceSubmission)
}

func TestFormatTimeline_RejectsVersionsWithoutID(t *testing.T) {
	f := newTestFormatter()

	t.Run("major version", func(t *testing.T) {
		_, err := f.FormatTimeline(nil, []models.VersionRecord{{MajorVersionNumber: 1}})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("amendment iteration", func(t *testing.T) {
		_, err := f.FormatTimeline(nil, []models.VersionRecord{{
			ID:                  "v1",
			MajorVersionNumber:  1,
			AmendmentIterations: []models.MinorVersionRecord{{}},
		}})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestDaysSince(t *testing.T) {
	tests := []struct {
		name      string
		submitted time.Time
		expected  string
	}{
		{name: "same instant", submitted: fixedNow, expected: "0 days"},
		{name: "partial day truncates", submitted: fixedNow.Add(-23 * time.Hour), expected: "0 days"},
		{name: "exactly one day is singular", submitted: fixedNow.Add(-24 * time.Hour), expected: "1 day"},
		{name: "several days", submitted: fixedNow.Add(-(5*24 + 3) * time.Hour), expected: "5 days"},
		{name: "submitted in the future clamps to zero", submitted: fixedNow.Add(48 * time.Hour), expected: "0 days"},
		{name: "less than a day ahead", submitted: fixedNow.Add(time.Hour), expected: "0 days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DaysSince(fixedNow, tt.submitted))
		})
	}
}
