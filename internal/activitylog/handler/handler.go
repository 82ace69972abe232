package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"catalogue/internal/activitylog/models"
	"catalogue/internal/activitylog/service"
	dErrors "catalogue/pkg/domain-errors"
	"catalogue/pkg/platform/httputil"
	"catalogue/pkg/platform/middleware/auth"
	"catalogue/pkg/requestcontext"
)

// Roles carried in the identity provider's access tokens.
const (
	RoleApplicant        = "applicant"
	RoleResearcher       = "researcher"
	RoleCustodian        = "custodian"
	RoleCustodianManager = "custodian_manager"
	RoleAdmin            = "admin"
)

var roleAudiences = map[string]models.AudienceType{
	RoleApplicant:        models.AudienceApplicant,
	RoleResearcher:       models.AudienceApplicant,
	RoleCustodian:        models.AudienceCustodian,
	RoleCustodianManager: models.AudienceCustodian,
	RoleAdmin:            models.AudienceAdmin,
}

// AudienceForRole maps a token role onto the audience whose events the
// caller may see.
func AudienceForRole(role string) (models.AudienceType, bool) {
	a, ok := roleAudiences[role]
	return a, ok
}

// Service defines the activity-log operations exposed over HTTP.
type Service interface {
	SearchLogs(ctx context.Context, req service.SearchRequest) ([]models.VersionTimeline, error)
	CreateManualEvent(ctx context.Context, req service.ManualEventRequest) (*models.EventRecord, error)
	DeleteManualEvent(ctx context.Context, id string) error
}

// Handler serves the activity-log endpoints.
type Handler struct {
	logger       *slog.Logger
	logs         Service
	jwtValidator auth.JWTValidator
}

// New creates a new activity-log Handler.
func New(logs Service, jwtValidator auth.JWTValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		logs:         logs,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the activity-log routes. Every route requires a bearer
// token; writes are limited to custodians and admins.
func (h *Handler) Register(r chi.Router) {
	r.Route("/activity-logs", func(r chi.Router) {
		r.Use(auth.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/search", h.handleSearch)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.logger, RoleCustodian, RoleCustodianManager, RoleAdmin))
			r.Post("/", h.handleCreateManualEvent)
			r.Delete("/{id}", h.handleDeleteManualEvent)
		})
	})
}

type searchRequest struct {
	VersionIDs  []string               `json:"versionIds"`
	LogCategory models.LogCategory     `json:"logCategory"`
	Versions    []models.VersionRecord `json:"versions"`
}

type searchResponse struct {
	Logs []models.VersionTimeline `json:"logs"`
}

type manualEventRequest struct {
	VersionID    string `json:"versionId"`
	VersionLabel string `json:"versionLabel"`
	Description  string `json:"description"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	role := requestcontext.Role(ctx)
	audience, ok := AudienceForRole(role)
	if !ok {
		h.logger.WarnContext(ctx, "search rejected - role has no audience",
			"request_id", requestID,
			"role", role,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role may not view activity logs"))
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid search request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	logs, err := h.logs.SearchLogs(ctx, service.SearchRequest{
		VersionIDs:   req.VersionIDs,
		LogCategory:  req.LogCategory,
		AudienceType: audience,
		Versions:     req.Versions,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to search activity logs", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, searchResponse{Logs: logs})
}

func (h *Handler) handleCreateManualEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID := requestcontext.UserID(ctx)
	if userID == "" {
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req manualEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid manual event request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.logs.CreateManualEvent(ctx, service.ManualEventRequest{
		VersionID:    req.VersionID,
		VersionLabel: req.VersionLabel,
		Description:  req.Description,
		Timestamp:    requestcontext.Now(ctx),
		Actor: models.Actor{
			ID:   userID,
			Name: requestcontext.UserName(ctx),
		},
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create manual event", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleDeleteManualEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.logs.DeleteManualEvent(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(ctx, w, "failed to delete manual event", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError logs caller mistakes at warn and everything else at
// error before mapping the code to a status.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeUnsupportedEventType, dErrors.CodeBadRequest,
		dErrors.CodeNotFound, dErrors.CodeForbidden, dErrors.CodeConflict:
		h.logger.WarnContext(ctx, msg, attrs...)
	default:
		h.logger.ErrorContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
