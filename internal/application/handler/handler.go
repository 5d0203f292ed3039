// Package handler exposes the application service over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"creditengine/internal/application/models"
	"creditengine/internal/application/service"
	id "creditengine/pkg/domain"
	dErrors "creditengine/pkg/domain-errors"
	"creditengine/pkg/platform/httputil"
	"creditengine/pkg/requestcontext"
)

// Service defines the application operations the handler needs.
type Service interface {
	Create(ctx context.Context, userID id.UserID, features models.ApplicantFeatures) (*models.Application, error)
	Get(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Application, error)
	Submit(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error)
	Cancel(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error)
	Resubmit(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error)
	Delete(ctx context.Context, userID id.UserID, appID id.ApplicationID) error
	Evaluate(ctx context.Context, userID id.UserID, appID id.ApplicationID, req service.EvaluateRequest) (*service.EvaluationResult, error)
	GetDecision(ctx context.Context, userID id.UserID, appID id.ApplicationID) (models.DecisionDetails, error)
}

// Handler wires application endpoints to the application service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts application endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleDelete)
			r.Post("/submit", h.HandleSubmit)
			r.Post("/cancel", h.HandleCancel)
			r.Post("/resubmit", h.HandleResubmit)
			r.Post("/evaluate", h.HandleEvaluate)
			r.Get("/decision", h.HandleGetDecision)
		})
	})
}

// HandleCreate handles POST /applications.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateApplicationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	app, err := h.service.Create(ctx, userID, req.ApplicantFeatures)
	if err != nil {
		h.fail(ctx, w, "create application failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// HandleList handles GET /applications.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	apps, err := h.service.ListByUser(ctx, userID)
	if err != nil {
		h.fail(ctx, w, "list applications failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(apps))
}

// HandleGet handles GET /applications/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.handleApplication(w, r, http.StatusOK, "get application failed", h.service.Get)
}

// HandleSubmit handles POST /applications/{id}/submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleApplication(w, r, http.StatusOK, "submit application failed", h.service.Submit)
}

// HandleCancel handles POST /applications/{id}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.handleApplication(w, r, http.StatusOK, "cancel application failed", h.service.Cancel)
}

// HandleResubmit handles POST /applications/{id}/resubmit.
func (h *Handler) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	h.handleApplication(w, r, http.StatusCreated, "resubmit application failed", h.service.Resubmit)
}

// HandleDelete handles DELETE /applications/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, appID, ok := h.requireApplication(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, userID, appID); err != nil {
		h.fail(ctx, w, "delete application failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEvaluate handles POST /applications/{id}/evaluate.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	userID, appID, ok := h.requireApplication(w, r)
	if !ok {
		return
	}

	req, err := parseEvaluateForm(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid evaluation upload",
			"request_id", requestcontext.RequestID(ctx),
			"application_id", appID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Evaluate(ctx, userID, appID, req)
	if err != nil {
		h.fail(ctx, w, "evaluation failed", err)
		return
	}

	h.logger.InfoContext(ctx, "evaluation completed",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", appID,
		"documents", len(req.Documents),
		"status", result.Application.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, toEvaluationResponse(result))
}

// HandleGetDecision handles GET /applications/{id}/decision.
func (h *Handler) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, appID, ok := h.requireApplication(w, r)
	if !ok {
		return
	}
	details, err := h.service.GetDecision(ctx, userID, appID)
	if err != nil {
		h.fail(ctx, w, "get decision failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(details.Decision, details.Fairness))
}

type applicationOp func(ctx context.Context, userID id.UserID, appID id.ApplicationID) (*models.Application, error)

func (h *Handler) handleApplication(w http.ResponseWriter, r *http.Request, status int, failure string, op applicationOp) {
	ctx := r.Context()
	userID, appID, ok := h.requireApplication(w, r)
	if !ok {
		return
	}
	app, err := op(ctx, userID, appID)
	if err != nil {
		h.fail(ctx, w, failure, err)
		return
	}
	httputil.WriteJSON(w, status, toApplicationResponse(app))
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}

func (h *Handler) requireApplication(w http.ResponseWriter, r *http.Request) (id.UserID, id.ApplicationID, bool) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return id.UserID{}, id.ApplicationID{}, false
	}
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.UserID{}, id.ApplicationID{}, false
	}
	return userID, appID, true
}

// fail logs at error level only for unexpected failures.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
