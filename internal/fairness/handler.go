package fairness

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	dErrors "creditengine/pkg/domain-errors"
	"creditengine/pkg/platform/httputil"
	"creditengine/pkg/requestcontext"
)

// Attribute names end up as metric labels and cache keys.
var attributePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Source yields fairness metrics per protected attribute. Implemented by Recorder.
type Source interface {
	ProtectedAttribute() string
	FetchFor(ctx context.Context, attribute string) Input
}

// Handler serves the current model-level fairness metrics.
type Handler struct {
	source Source
	logger *slog.Logger
}

func NewHandler(source Source, logger *slog.Logger) *Handler {
	return &Handler{source: source, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/fairness", h.HandleGet)
}

type MetricsResponse struct {
	ProtectedAttribute string `json:"protected_attribute"`
	Metrics
}

// HandleGet handles GET /fairness?protected_attribute=. The attribute
// defaults to the configured one.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	attribute := r.URL.Query().Get("protected_attribute")
	if attribute == "" {
		attribute = h.source.ProtectedAttribute()
	}
	if !attributePattern.MatchString(attribute) {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "invalid protected_attribute %q", attribute))
		return
	}

	input := h.source.FetchFor(ctx, attribute)
	if !input.Available() {
		h.logger.WarnContext(ctx, "fairness metrics requested while unavailable",
			"request_id", requestcontext.RequestID(ctx),
			"protected_attribute", attribute,
			"reason", input.Reason(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeCollaboratorUnavailable, input.Reason()))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MetricsResponse{
		ProtectedAttribute: attribute,
		Metrics:            input.Metrics(),
	})
}
