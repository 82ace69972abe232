package models

import (
	"slices"
	"time"

	dErrors "catalogue/pkg/domain-errors"
)

// LogCategory identifies the entity family an event belongs to.
type LogCategory string

const (
	CategoryDataset     LogCategory = "dataset"
	CategoryDataRequest LogCategory = "data_request"
)

// IsValid reports whether c is a known category.
func (c LogCategory) IsValid() bool {
	return c == CategoryDataset || c == CategoryDataRequest
}

// AudienceType controls which viewers may see an event.
type AudienceType string

const (
	AudienceApplicant AudienceType = "applicant"
	AudienceCustodian AudienceType = "custodian"
	AudienceAdmin     AudienceType = "admin"
)

// IsValid reports whether a is a known audience type.
func (a AudienceType) IsValid() bool {
	switch a {
	case AudienceApplicant, AudienceCustodian, AudienceAdmin:
		return true
	}
	return false
}

// FieldDiff records one changed answer in an updates-submitted event.
type FieldDiff struct {
	Section  string `json:"section,omitempty" bson:"section,omitempty"`
	Question string `json:"question" bson:"question"`
	Previous string `json:"previous" bson:"previous"`
	Updated  string `json:"updated" bson:"updated"`
}

// EventRecord is an immutable, timestamped business occurrence attached to
// exactly one version. Text and HTML renderings are computed once at write
// time and never regenerated.
type EventRecord struct {
	ID            string         `json:"id"`
	EventType     EventType      `json:"eventType"`
	LogCategory   LogCategory    `json:"logCategory"`
	AudienceTypes []AudienceType `json:"audienceTypes"`
	Timestamp     time.Time      `json:"timestamp"`
	ActorID       string         `json:"actorId"`
	VersionID     string         `json:"versionId"`
	VersionLabel  string         `json:"versionLabel"`
	PlainText     string         `json:"plainText"`
	HTML          string         `json:"html"`
	DetailedText  string         `json:"detailedText,omitempty"`
	DetailedHTML  string         `json:"detailedHtml,omitempty"`
	AdminComment  string         `json:"adminComment,omitempty"`
	FieldDiffs    []FieldDiff    `json:"fieldDiffs,omitempty"`
}

// Validate enforces the record invariants: the event type belongs to the
// category, the version and timestamp are set, and at least one audience
// may see the event.
func (e *EventRecord) Validate() error {
	if e.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "event id is required")
	}
	if !e.LogCategory.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown log category %q", e.LogCategory)
	}
	cat, ok := e.EventType.Category()
	if !ok {
		return dErrors.Newf(dErrors.CodeUnsupportedEventType, "unsupported event type %q", e.EventType)
	}
	if cat != e.LogCategory {
		return dErrors.Newf(dErrors.CodeValidation, "event type %q does not belong to category %q", e.EventType, e.LogCategory)
	}
	if e.VersionID == "" {
		return dErrors.New(dErrors.CodeValidation, "version id is required")
	}
	if e.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "timestamp is required")
	}
	if len(e.AudienceTypes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one audience type is required")
	}
	for _, a := range e.AudienceTypes {
		if !a.IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "unknown audience type %q", a)
		}
	}
	return nil
}

// VisibleTo reports whether the audience may see this event.
func (e *EventRecord) VisibleTo(audience AudienceType) bool {
	return slices.Contains(e.AudienceTypes, audience)
}

// Query is the single lookup the service issues against an event store.
type Query struct {
	VersionIDs   []string
	LogCategory  LogCategory
	AudienceType AudienceType
}

// Matches reports whether e satisfies q. Stores without a native query
// language filter with it.
func (q Query) Matches(e *EventRecord) bool {
	return e.LogCategory == q.LogCategory &&
		e.VisibleTo(q.AudienceType) &&
		slices.Contains(q.VersionIDs, e.VersionID)
}
