package models

import "time"

// VersionRecord is a major revision of a submission, supplied by the caller
// on every aggregation call.
type VersionRecord struct {
	ID                  string               `json:"id"`
	MajorVersionNumber  int                  `json:"majorVersionNumber"`
	DateSubmitted       *time.Time           `json:"dateSubmitted,omitempty"`
	ApplicationType     string               `json:"applicationType"`
	ApplicationStatus   string               `json:"applicationStatus"`
	AmendmentIterations []MinorVersionRecord `json:"amendmentIterations,omitempty"`
}

// MinorVersionRecord is an amendment iteration nested under a major version.
type MinorVersionRecord struct {
	ID            string     `json:"id"`
	DateSubmitted *time.Time `json:"dateSubmitted,omitempty"`
}

// IDs returns the major id followed by every amendment id.
func (v VersionRecord) IDs() []string {
	ids := make([]string, 0, 1+len(v.AmendmentIterations))
	ids = append(ids, v.ID)
	for _, m := range v.AmendmentIterations {
		ids = append(ids, m.ID)
	}
	return ids
}

// TimelineMeta describes the version a timeline entry belongs to.
// DateSubmitted and DaysSinceSubmission are absent when the version was
// never submitted.
type TimelineMeta struct {
	DateSubmitted       *string `json:"dateSubmitted,omitempty"`
	DaysSinceSubmission *string `json:"daysSinceSubmission,omitempty"`
	ApplicationType     string  `json:"applicationType"`
	ApplicationStatus   string  `json:"applicationStatus"`
}

// VersionTimeline groups the events of one major or minor version.
type VersionTimeline struct {
	VersionID     string         `json:"versionId"`
	Version       string         `json:"version"`
	VersionNumber float64        `json:"versionNumber"`
	Meta          TimelineMeta   `json:"meta"`
	Events        []*EventRecord `json:"events"`
}

// Actor identifies the user who triggered an event.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LogContext carries everything a template needs to render an entry.
type LogContext struct {
	Actor        Actor       `json:"actor"`
	VersionID    string      `json:"versionId"`
	VersionLabel string      `json:"versionLabel"`
	EntityTitle  string      `json:"entityTitle,omitempty"`
	AdminComment string      `json:"adminComment,omitempty"`
	FieldDiffs   []FieldDiff `json:"fieldDiffs,omitempty"`
	Description  string      `json:"description,omitempty"`
	// Timestamp overrides the recording time, e.g. for replayed events.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// PartyDuration attributes a stretch of elapsed time to one party.
type PartyDuration struct {
	Party    AudienceType  `json:"party"`
	Duration time.Duration `json:"duration"`
}
