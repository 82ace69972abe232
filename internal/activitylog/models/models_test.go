package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "catalogue/pkg/domain-errors"
)

func validRecord() *EventRecord {
	return &EventRecord{
		ID:            "evt-1",
		EventType:     EventApplicationSubmitted,
		LogCategory:   CategoryDataRequest,
		AudienceTypes: []AudienceType{AudienceApplicant, AudienceCustodian},
		Timestamp:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		VersionID:     "v1",
	}
}

func TestEventRecordValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *EventRecord)
		code   dErrors.Code
	}{
		{"missing id", func(e *EventRecord) { e.ID = "" }, dErrors.CodeValidation},
		{"unknown category", func(e *EventRecord) { e.LogCategory = "billing" }, dErrors.CodeValidation},
		{"unknown event type", func(e *EventRecord) { e.EventType = "invoice_paid" }, dErrors.CodeUnsupportedEventType},
		{"type outside category", func(e *EventRecord) { e.LogCategory = CategoryDataset }, dErrors.CodeValidation},
		{"missing version", func(e *EventRecord) { e.VersionID = "" }, dErrors.CodeValidation},
		{"zero timestamp", func(e *EventRecord) { e.Timestamp = time.Time{} }, dErrors.CodeValidation},
		{"no audiences", func(e *EventRecord) { e.AudienceTypes = nil }, dErrors.CodeValidation},
		{"unknown audience", func(e *EventRecord) { e.AudienceTypes = []AudienceType{"public"} }, dErrors.CodeValidation},
	}

	require.NoError(t, validRecord().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validRecord()
			tt.mutate(e)
			err := e.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tt.code), "expected %s, got %v", tt.code, err)
		})
	}
}

func TestQueryMatches(t *testing.T) {
	q := Query{
		VersionIDs:   []string{"v1", "v2"},
		LogCategory:  CategoryDataRequest,
		AudienceType: AudienceApplicant,
	}

	assert.True(t, q.Matches(validRecord()))

	other := validRecord()
	other.VersionID = "v9"
	assert.False(t, q.Matches(other), "version outside the query")

	hidden := validRecord()
	hidden.AudienceTypes = []AudienceType{AudienceCustodian}
	assert.False(t, q.Matches(hidden), "audience cannot see the event")

	dataset := validRecord()
	dataset.EventType = EventDatasetVersionSubmitted
	dataset.LogCategory = CategoryDataset
	assert.False(t, q.Matches(dataset), "different category")
}

func TestEventTypeLookup(t *testing.T) {
	for et := range eventSpecs {
		cat, ok := et.Category()
		require.True(t, ok, et)
		assert.True(t, cat.IsValid(), et)
		assert.NotEmpty(t, et.DefaultAudiences(), et)
	}

	_, ok := EventType("invoice_paid").Category()
	assert.False(t, ok)
	assert.Nil(t, EventType("invoice_paid").DefaultAudiences())

	aud := EventManualEvent.DefaultAudiences()
	aud[0] = AudienceApplicant
	assert.Equal(t, []AudienceType{AudienceCustodian}, EventManualEvent.DefaultAudiences(), "lookup returns a copy")
}

func TestVersionRecordIDs(t *testing.T) {
	v := VersionRecord{
		ID: "v3",
		AmendmentIterations: []MinorVersionRecord{
			{ID: "v3-a"},
			{ID: "v3-b"},
		},
	}
	assert.Equal(t, []string{"v3", "v3-a", "v3-b"}, v.IDs())
}
