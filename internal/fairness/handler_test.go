package fairness

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditengine/internal/collaborator"
	"creditengine/internal/collaborator/ml"
)

func newFairnessRouter(p Provider) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(NewRecorder(p, WithLogger(logger)), logger).Register(r)
	return r
}

func TestHandleGet(t *testing.T) {
	var seen string
	ok := providerFunc(func(_ context.Context, attr string) (ml.FairnessMetrics, error) {
		seen = attr
		return sampleMetrics, nil
	})
	down := providerFunc(func(context.Context, string) (ml.FairnessMetrics, error) {
		return ml.FairnessMetrics{}, collaborator.NewError(collaborator.ErrorProviderOutage, "ml", "503", nil)
	})

	tests := []struct {
		name          string
		provider      Provider
		query         string
		wantStatus    int
		wantAttribute string
		wantError     string
	}{
		{name: "defaults to configured attribute", provider: ok, wantStatus: http.StatusOK, wantAttribute: "gender"},
		{name: "explicit attribute", provider: ok, query: "?protected_attribute=age_band", wantStatus: http.StatusOK, wantAttribute: "age_band"},
		{name: "malformed attribute", provider: ok, query: "?protected_attribute=Age%20Band", wantStatus: http.StatusBadRequest, wantError: "validation_error"},
		{name: "model unavailable", provider: down, wantStatus: http.StatusServiceUnavailable, wantError: "collaborator_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			rec := httptest.NewRecorder()
			newFairnessRouter(tt.provider).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fairness"+tt.query, nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
				return
			}
			assert.Equal(t, tt.wantAttribute, seen)
			assert.Equal(t, tt.wantAttribute, body["protected_attribute"])
			assert.Equal(t, 87.5, body["fairness_score"])
			assert.Equal(t, 0.92, body["disparate_impact"])
		})
	}
}
