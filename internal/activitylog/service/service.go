package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks EventLogStore,EventPublisher

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"catalogue/internal/activitylog/formatter"
	"catalogue/internal/activitylog/metrics"
	"catalogue/internal/activitylog/models"
	dErrors "catalogue/pkg/domain-errors"
	"catalogue/pkg/platform/sentinel"
	strutil "catalogue/pkg/platform/strings"
	"catalogue/pkg/requestcontext"
)

// DefaultStoreTimeout bounds a single event store call.
const DefaultStoreTimeout = 5 * time.Second

// EventLogStore persists activity-log entries.
type EventLogStore interface {
	Search(ctx context.Context, q models.Query) ([]*models.EventRecord, error)
	Insert(ctx context.Context, e *models.EventRecord) error
	FindByID(ctx context.Context, id string) (*models.EventRecord, error)
	Delete(ctx context.Context, id string) error
}

// EventPublisher announces recorded entries to the notification layer.
type EventPublisher interface {
	Publish(ctx context.Context, e *models.EventRecord) error
}

// Service aggregates activity logs into version timelines and records new
// entries. It keeps no state between calls.
type Service struct {
	store        EventLogStore
	publisher    EventPublisher
	formatter    *formatter.Formatter
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	clock        func() time.Time
	newID        func() string
	storeTimeout time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock sets the clock used for entry timestamps and timeline ages.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides uuid-based entry ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithStoreTimeout bounds each store call. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

// New constructs a Service. A store is required.
func New(store EventLogStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("event log store is required")
	}
	s := &Service{
		store:        store,
		clock:        time.Now,
		newID:        uuid.NewString,
		storeTimeout: DefaultStoreTimeout,
		tracer:       otel.Tracer("catalogue/activitylog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.formatter = formatter.New(formatter.WithClock(s.clock))
	return s, nil
}

// SearchRequest selects the events shown on a timeline.
type SearchRequest struct {
	VersionIDs   []string
	LogCategory  models.LogCategory
	AudienceType models.AudienceType
	Versions     []models.VersionRecord
}

// SearchLogs returns the formatted timeline for the requested versions as
// seen by one audience. An empty store result yields an empty timeline.
func (s *Service) SearchLogs(ctx context.Context, req SearchRequest) ([]models.VersionTimeline, error) {
	ctx, span := s.tracer.Start(ctx, "activitylog.SearchLogs", trace.WithAttributes(
		attribute.String("log_category", string(req.LogCategory)),
		attribute.String("audience_type", string(req.AudienceType)),
	))
	defer span.End()

	if !req.LogCategory.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown log category %q", req.LogCategory)
	}
	if !req.AudienceType.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown audience type %q", req.AudienceType)
	}

	versionIDs := strutil.DedupeAndTrim(req.VersionIDs)
	if len(versionIDs) == 0 {
		var derived []string
		for _, v := range req.Versions {
			derived = append(derived, v.IDs()...)
		}
		versionIDs = strutil.DedupeAndTrim(derived)
	}
	if len(versionIDs) == 0 {
		return s.formatter.FormatTimeline(nil, req.Versions)
	}
	span.SetAttributes(attribute.Int("version_ids", len(versionIDs)))

	start := time.Now()
	if s.metrics != nil {
		defer func() { s.metrics.ObserveSearch(time.Since(start)) }()
	}
	events, err := s.search(ctx, models.Query{
		VersionIDs:   versionIDs,
		LogCategory:  req.LogCategory,
		AudienceType: req.AudienceType,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		return nil, err
	}

	return s.formatter.FormatTimeline(events, req.Versions)
}

func (s *Service) search(ctx context.Context, q models.Query) ([]*models.EventRecord, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	events, err := s.store.Search(ctx, q)
	if err != nil {
		s.storeFailure(ctx, "search", err)
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "activity log store unavailable")
	}
	return events, nil
}

// BuildLogEntry renders a new entry for eventType. It does not touch the
// store.
func (s *Service) BuildLogEntry(eventType models.EventType, lc models.LogContext) (*models.EventRecord, error) {
	tmpl, ok := templates[eventType]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnsupportedEventType, "unsupported event type %q", eventType)
	}
	if strings.TrimSpace(lc.Actor.ID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor id is required")
	}
	if strings.TrimSpace(lc.VersionID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "version id is required")
	}
	if eventType == models.EventManualEvent && strings.TrimSpace(lc.Description) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "description is required for manual events")
	}

	category, _ := eventType.Category()
	timestamp := lc.Timestamp
	if timestamp.IsZero() {
		timestamp = s.clock()
	}
	r := tmpl(lc)

	record := &models.EventRecord{
		ID:            s.newID(),
		EventType:     eventType,
		LogCategory:   category,
		AudienceTypes: eventType.DefaultAudiences(),
		Timestamp:     timestamp.UTC(),
		ActorID:       lc.Actor.ID,
		VersionID:     lc.VersionID,
		VersionLabel:  lc.VersionLabel,
		PlainText:     r.plainText,
		HTML:          r.html,
		DetailedText:  r.detailedText,
		DetailedHTML:  r.detailedHTML,
		AdminComment:  lc.AdminComment,
		FieldDiffs:    append([]models.FieldDiff(nil), lc.FieldDiffs...),
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// RecordEvent builds an entry, persists it and announces it. A failed
// announcement is logged and does not fail the call.
func (s *Service) RecordEvent(ctx context.Context, eventType models.EventType, lc models.LogContext) (*models.EventRecord, error) {
	ctx, span := s.tracer.Start(ctx, "activitylog.RecordEvent", trace.WithAttributes(
		attribute.String("event_type", string(eventType)),
	))
	defer span.End()

	record, err := s.BuildLogEntry(eventType, lc)
	if err != nil {
		return nil, err
	}

	if err := s.insert(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncEventsRecorded(string(eventType))
	}
	s.logger.InfoContext(ctx, "activity log entry recorded",
		"event", string(eventType),
		"event_id", record.ID,
		"version_id", record.VersionID,
		"request_id", requestcontext.RequestID(ctx),
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, record); err != nil {
			if s.metrics != nil {
				s.metrics.PublishFailures.Inc()
			}
			s.logger.WarnContext(ctx, "failed to publish activity log entry",
				"event_id", record.ID,
				"error", err,
			)
		}
	}
	return record, nil
}

func (s *Service) insert(ctx context.Context, record *models.EventRecord) error {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	if err := s.store.Insert(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "activity log entry already exists")
		}
		s.storeFailure(ctx, "insert", err)
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "activity log store unavailable")
	}
	return nil
}

// ManualEventRequest is a free-text note a custodian adds to a timeline.
type ManualEventRequest struct {
	VersionID    string
	VersionLabel string
	Description  string
	Timestamp    time.Time
	Actor        models.Actor
}

// CreateManualEvent records a custodian note against a version.
func (s *Service) CreateManualEvent(ctx context.Context, req ManualEventRequest) (*models.EventRecord, error) {
	return s.RecordEvent(ctx, models.EventManualEvent, models.LogContext{
		Actor:        req.Actor,
		VersionID:    req.VersionID,
		VersionLabel: req.VersionLabel,
		Description:  strings.TrimSpace(req.Description),
		Timestamp:    req.Timestamp,
	})
}

// DeleteManualEvent removes a manual note. System-generated entries are
// immutable and cannot be deleted.
func (s *Service) DeleteManualEvent(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return dErrors.New(dErrors.CodeValidation, "event id is required")
	}

	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "activity log entry not found")
		}
		s.storeFailure(ctx, "find", err)
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "activity log store unavailable")
	}
	if record.EventType != models.EventManualEvent {
		return dErrors.New(dErrors.CodeForbidden, "only manual events can be deleted")
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "activity log entry not found")
		}
		s.storeFailure(ctx, "delete", err)
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "activity log store unavailable")
	}
	if s.metrics != nil {
		s.metrics.EventsDeleted.Inc()
	}
	s.logger.InfoContext(ctx, "manual activity log entry deleted",
		"event_id", id,
		"user_id", requestcontext.UserID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// CalculateTimeWithParty reports the share of elapsed time held by party.
func (s *Service) CalculateTimeWithParty(durations []models.PartyDuration, party models.AudienceType) string {
	return CalculateTimeWithParty(durations, party)
}

func (s *Service) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) storeFailure(ctx context.Context, operation string, err error) {
	if s.metrics != nil {
		s.metrics.IncStoreFailure(operation)
	}
	s.logger.ErrorContext(ctx, "activity log store call failed",
		"operation", operation,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
