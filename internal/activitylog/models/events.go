package models

// EventType is the closed set of business events that produce log entries.
type EventType string

const (
	// Dataset events
	EventDatasetVersionSubmitted  EventType = "dataset_version_submitted"
	EventDatasetVersionApproved   EventType = "dataset_version_approved"
	EventDatasetVersionRejected   EventType = "dataset_version_rejected"
	EventDatasetVersionArchived   EventType = "dataset_version_archived"
	EventDatasetVersionUnarchived EventType = "dataset_version_unarchived"
	EventDatasetUpdatesSubmitted  EventType = "dataset_updates_submitted"

	// Data access request events
	EventApplicationSubmitted              EventType = "application_submitted"
	EventApplicationApproved               EventType = "application_approved"
	EventApplicationApprovedWithConditions EventType = "application_approved_with_conditions"
	EventApplicationRejected               EventType = "application_rejected"
	EventApplicationWithdrawn              EventType = "application_withdrawn"
	EventUpdatesRequested                  EventType = "updates_requested"
	EventUpdatesSubmitted                  EventType = "updates_submitted"
	EventAmendmentSubmitted                EventType = "amendment_submitted"
	EventManualEvent                       EventType = "manual_event"
)

type eventSpec struct {
	category  LogCategory
	audiences []AudienceType
}

var (
	custodianAdmin        = []AudienceType{AudienceCustodian, AudienceAdmin}
	applicantCustodian    = []AudienceType{AudienceApplicant, AudienceCustodian}
	applicantCustodianAll = []AudienceType{AudienceApplicant, AudienceCustodian, AudienceAdmin}
)

// eventSpecs maps each event type to its category and default audiences.
// Dataset events are reviewed by custodians and the admin team; application
// events are shared between applicant and custodian. Manual events are
// custodian-only notes.
var eventSpecs = map[EventType]eventSpec{
	EventDatasetVersionSubmitted:  {CategoryDataset, custodianAdmin},
	EventDatasetVersionApproved:   {CategoryDataset, custodianAdmin},
	EventDatasetVersionRejected:   {CategoryDataset, custodianAdmin},
	EventDatasetVersionArchived:   {CategoryDataset, custodianAdmin},
	EventDatasetVersionUnarchived: {CategoryDataset, custodianAdmin},
	EventDatasetUpdatesSubmitted:  {CategoryDataset, custodianAdmin},

	EventApplicationSubmitted:              {CategoryDataRequest, applicantCustodianAll},
	EventApplicationApproved:               {CategoryDataRequest, applicantCustodianAll},
	EventApplicationApprovedWithConditions: {CategoryDataRequest, applicantCustodianAll},
	EventApplicationRejected:               {CategoryDataRequest, applicantCustodianAll},
	EventApplicationWithdrawn:              {CategoryDataRequest, applicantCustodian},
	EventUpdatesRequested:                  {CategoryDataRequest, applicantCustodian},
	EventUpdatesSubmitted:                  {CategoryDataRequest, applicantCustodian},
	EventAmendmentSubmitted:                {CategoryDataRequest, applicantCustodian},
	EventManualEvent:                       {CategoryDataRequest, []AudienceType{AudienceCustodian}},
}

// Category returns the log category for this event type.
// ok is false for unknown types.
func (e EventType) Category() (LogCategory, bool) {
	def, ok := eventSpecs[e]
	return def.category, ok
}

// DefaultAudiences returns a copy of the audiences that see this event type.
func (e EventType) DefaultAudiences() []AudienceType {
	def, ok := eventSpecs[e]
	if !ok {
		return nil
	}
	return append([]AudienceType(nil), def.audiences...)
}

// IsKnown reports whether e is in the closed event set.
func (e EventType) IsKnown() bool {
	_, ok := eventSpecs[e]
	return ok
}
