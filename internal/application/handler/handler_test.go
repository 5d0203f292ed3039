package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"creditengine/internal/application/handler/mocks"
	"creditengine/internal/application/models"
	"creditengine/internal/application/service"
	"creditengine/internal/decision"
	"creditengine/internal/fairness"
	"creditengine/internal/identity"
	"creditengine/internal/scoring"
	id "creditengine/pkg/domain"
	dErrors "creditengine/pkg/domain-errors"
	"creditengine/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type HandlerSuite struct {
	suite.Suite
	userID id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.userID = id.UserID(uuid.New())
}

// newRouter mounts the handler behind a stand-in for the auth middleware.
func (s *HandlerSuite) newRouter(t *testing.T, authenticated bool) (*mocks.MockService, chi.Router) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockService(ctrl)
	h := New(mockService, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithRequestID(req.Context(), "req-1")
			if authenticated {
				ctx = requestcontext.WithUserID(ctx, s.userID)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/api", h.Register)
	return mockService, r
}

func do(router http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func sampleApplication(userID id.UserID, status models.Status) *models.Application {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return &models.Application{
		ID:        id.NewApplicationID(),
		UserID:    userID,
		Number:    "APP-3F9A1C0B",
		Version:   1,
		Status:    status,
		Features:  models.ApplicantFeatures{Gender: "F", DaysBirth: -12000, IncomeTotal: 1, CreditAmount: 1, RegionRatingClient: 1},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

const createBody = `{
	"gender": "f",
	"days_birth": -12000,
	"income_total": 180000,
	"credit_amount": 450000,
	"annuity": 24000,
	"goods_price": 400000,
	"days_employed": -2500,
	"own_realty": true,
	"region_rating_client": 2,
	"ext_source_2": 0.62
}`

func (s *HandlerSuite) TestCreate() {
	s.T().Run("201 with normalized features", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		app := sampleApplication(s.userID, models.StatusDraft)
		mockService.EXPECT().Create(gomock.Any(), s.userID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.UserID, f models.ApplicantFeatures) (*models.Application, error) {
				assert.Equal(t, "F", f.Gender)
				assert.True(t, f.OwnRealty)
				return app, nil
			})

		rec, body := do(router, httptest.NewRequest(http.MethodPost, "/api/applications", strings.NewReader(createBody)))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, app.ID.String(), body["id"])
		assert.Equal(t, "DRAFT", body["status"])
	})

	s.T().Run("400 on invalid features", func(t *testing.T) {
		_, router := s.newRouter(t, true)
		body := strings.Replace(createBody, `"region_rating_client": 2`, `"region_rating_client": 7`, 1)

		rec, resp := do(router, httptest.NewRequest(http.MethodPost, "/api/applications", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(dErrors.CodeValidation), resp["error"])
	})

	s.T().Run("400 on unknown field", func(t *testing.T) {
		_, router := s.newRouter(t, true)
		rec, resp := do(router, httptest.NewRequest(http.MethodPost, "/api/applications", strings.NewReader(`{"salary": 1}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(dErrors.CodeBadRequest), resp["error"])
	})

	s.T().Run("401 without a user", func(t *testing.T) {
		_, router := s.newRouter(t, false)
		rec, resp := do(router, httptest.NewRequest(http.MethodPost, "/api/applications", strings.NewReader(createBody)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, string(dErrors.CodeUnauthorized), resp["error"])
	})
}

func (s *HandlerSuite) TestApplicationOperations() {
	s.T().Run("get returns the application", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		app := sampleApplication(s.userID, models.StatusPending)
		mockService.EXPECT().Get(gomock.Any(), s.userID, app.ID).Return(app, nil)

		rec, body := do(router, httptest.NewRequest(http.MethodGet, "/api/applications/"+app.ID.String(), nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "APP-3F9A1C0B", body["number"])
	})

	s.T().Run("malformed id is a 400", func(t *testing.T) {
		_, router := s.newRouter(t, true)
		rec, _ := do(router, httptest.NewRequest(http.MethodGet, "/api/applications/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	s.T().Run("not found maps to 404", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		appID := id.NewApplicationID()
		mockService.EXPECT().Get(gomock.Any(), s.userID, appID).Return(nil, dErrors.New(dErrors.CodeNotFound, "application not found"))

		rec, body := do(router, httptest.NewRequest(http.MethodGet, "/api/applications/"+appID.String(), nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application not found", body["error_description"])
	})

	s.T().Run("submit", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		app := sampleApplication(s.userID, models.StatusPending)
		mockService.EXPECT().Submit(gomock.Any(), s.userID, app.ID).Return(app, nil)

		rec, body := do(router, httptest.NewRequest(http.MethodPost, "/api/applications/"+app.ID.String()+"/submit", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "PENDING", body["status"])
	})

	s.T().Run("cancel in terminal state is a 409", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		appID := id.NewApplicationID()
		mockService.EXPECT().Cancel(gomock.Any(), s.userID, appID).
			Return(nil, dErrors.New(dErrors.CodeInvalidState, "application cannot move from APPROVED to CANCELLED"))

		rec, body := do(router, httptest.NewRequest(http.MethodPost, "/api/applications/"+appID.String()+"/cancel", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, string(dErrors.CodeInvalidState), body["error"])
	})

	s.T().Run("resubmit returns 201 with the new version", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		prev := id.NewApplicationID()
		next := sampleApplication(s.userID, models.StatusPending)
		next.Version = 2
		next.PreviousVersionID = &prev
		mockService.EXPECT().Resubmit(gomock.Any(), s.userID, prev).Return(next, nil)

		rec, body := do(router, httptest.NewRequest(http.MethodPost, "/api/applications/"+prev.String()+"/resubmit", nil))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, prev.String(), body["previous_version_id"])
		assert.InDelta(t, 2, body["version"], 0)
	})

	s.T().Run("delete returns 204", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		appID := id.NewApplicationID()
		mockService.EXPECT().Delete(gomock.Any(), s.userID, appID).Return(nil)

		rec, _ := do(router, httptest.NewRequest(http.MethodDelete, "/api/applications/"+appID.String(), nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	s.T().Run("list", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		apps := []*models.Application{
			sampleApplication(s.userID, models.StatusDraft),
			sampleApplication(s.userID, models.StatusApproved),
		}
		mockService.EXPECT().ListByUser(gomock.Any(), s.userID).Return(apps, nil)

		rec, body := do(router, httptest.NewRequest(http.MethodGet, "/api/applications", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["applications"], 2)
	})

	s.T().Run("internal errors hide their description", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		mockService.EXPECT().ListByUser(gomock.Any(), s.userID).
			Return(nil, dErrors.Wrap(assert.AnError, dErrors.CodeInternal, "failed to list applications"))

		rec, body := do(router, httptest.NewRequest(http.MethodGet, "/api/applications", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, string(dErrors.CodeInternal), body["error"])
		assert.NotContains(t, body, "error_description")
	})
}

type upload struct {
	field   string
	content string
}

func multipartRequest(t *testing.T, target, claimedID string, files ...upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if claimedID != "" {
		require.NoError(t, mw.WriteField("claimed_id", claimedID))
	}
	for i, f := range files {
		part, err := mw.CreateFormFile(f.field, f.field+"-"+string(rune('a'+i))+".pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func fullUpload() []upload {
	return []upload{
		{"identity_document", "id-card"},
		{"income", "payslip-1"},
		{"income", "payslip-2"},
		{"tax", "tax-return"},
		{"bank", "statement"},
	}
}

func (s *HandlerSuite) TestEvaluate() {
	s.T().Run("200 with decision", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		app := sampleApplication(s.userID, models.StatusApproved)
		score := 751
		app.CreditScore = &score
		p := 0.15
		d := decision.Decision{
			ID:             id.NewDecisionID(),
			ApplicationID:  app.ID,
			Outcome:        decision.OutcomeApproved,
			CreditScore:    751,
			Confidence:     0.91,
			RiskLevel:      decision.RiskLow,
			Reason:         decision.ReasonModelLowRisk,
			Source:         decision.SourceModel,
			MLProbability:  &p,
			CategoryScores: map[scoring.Category]float64{scoring.CategoryIdentity: 95},
		}

		mockService.EXPECT().Evaluate(gomock.Any(), s.userID, app.ID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.UserID, _ id.ApplicationID, req service.EvaluateRequest) (*service.EvaluationResult, error) {
				assert.Equal(t, "AB123456", req.ClaimedID)
				assert.Equal(t, []byte("id-card"), req.IdentityImage)
				counts := map[scoring.Category]int{}
				for _, doc := range req.Documents {
					counts[doc.Category]++
				}
				assert.Equal(t, map[scoring.Category]int{
					scoring.CategoryIdentity: 1,
					scoring.CategoryIncome:   2,
					scoring.CategoryTax:      1,
					scoring.CategoryBank:     1,
				}, counts)
				return &service.EvaluationResult{
					Application: app,
					Decision:    d,
					Fairness:    &fairness.Record{DecisionID: d.ID, ProtectedAttribute: "gender", Metrics: fairness.Metrics{FairnessScore: 87.5}},
					Identity:    identity.Result{Matched: true, Confidence: 0.93},
				}, nil
			})

		rec, body := do(router, multipartRequest(t, "/api/applications/"+app.ID.String()+"/evaluate", "AB123456", fullUpload()...))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		dec := body["decision"].(map[string]any)
		assert.Equal(t, "APPROVED", dec["outcome"])
		assert.InDelta(t, 751, dec["credit_score"], 0)
		assert.Equal(t, "LOW", dec["risk_level"])
		fair := dec["fairness"].(map[string]any)
		assert.Equal(t, "gender", fair["protected_attribute"])
		assert.InDelta(t, 87.5, fair["fairness_score"], 1e-9)
		assert.Equal(t, true, body["identity"].(map[string]any)["matched"])
	})

	s.T().Run("missing claimed id is a 400", func(t *testing.T) {
		_, router := s.newRouter(t, true)
		appID := id.NewApplicationID()
		rec, body := do(router, multipartRequest(t, "/api/applications/"+appID.String()+"/evaluate", "", fullUpload()...))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(dErrors.CodeValidation), body["error"])
	})

	s.T().Run("missing identity document is a 400", func(t *testing.T) {
		_, router := s.newRouter(t, true)
		appID := id.NewApplicationID()
		rec, _ := do(router, multipartRequest(t, "/api/applications/"+appID.String()+"/evaluate", "AB123456", upload{"tax", "x"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	s.T().Run("non-multipart body is a 400", func(t *testing.T) {
		_, router := s.newRouter(t, true)
		appID := id.NewApplicationID()
		req := httptest.NewRequest(http.MethodPost, "/api/applications/"+appID.String()+"/evaluate", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec, body := do(router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(dErrors.CodeBadRequest), body["error"])
	})

	for _, tc := range []struct {
		name   string
		err    error
		status int
	}{
		{"identity mismatch", dErrors.New(dErrors.CodeIdentityMismatch, "mismatch"), http.StatusUnprocessableEntity},
		{"insufficient coverage", dErrors.New(dErrors.CodeInsufficientDocumentCoverage, "missing TAX"), http.StatusUnprocessableEntity},
		{"duplicate decision", dErrors.New(dErrors.CodeDuplicateDecision, "already decided"), http.StatusConflict},
		{"cancelled in flight", dErrors.New(dErrors.CodeApplicationCancelled, "cancelled"), http.StatusConflict},
		{"infrastructure failure", dErrors.Wrap(assert.AnError, dErrors.CodeInternal, "failed"), http.StatusInternalServerError},
	} {
		s.T().Run(tc.name, func(t *testing.T) {
			mockService, router := s.newRouter(t, true)
			appID := id.NewApplicationID()
			mockService.EXPECT().Evaluate(gomock.Any(), s.userID, appID, gomock.Any()).Return(nil, tc.err)

			rec, body := do(router, multipartRequest(t, "/api/applications/"+appID.String()+"/evaluate", "AB123456", fullUpload()...))
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, string(dErrors.CodeOf(tc.err)), body["error"])
		})
	}
}

func (s *HandlerSuite) TestGetDecision() {
	s.T().Run("returns decision without fairness while pending backfill", func(t *testing.T) {
		mockService, router := s.newRouter(t, true)
		appID := id.NewApplicationID()
		d := decision.Decision{
			ID:                  id.NewDecisionID(),
			ApplicationID:       appID,
			Outcome:             decision.OutcomeRejected,
			CreditScore:         568,
			Confidence:          0.6,
			RiskLevel:           decision.RiskHigh,
			Source:              decision.SourceCompositeFallback,
			WeightedTotal:       48.75,
			FairnessUnavailable: true,
		}
		mockService.EXPECT().GetDecision(gomock.Any(), s.userID, appID).Return(models.DecisionDetails{Decision: d}, nil)

		rec, body := do(router, httptest.NewRequest(http.MethodGet, "/api/applications/"+appID.String()+"/decision", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "composite_fallback", body["source"])
		assert.Equal(t, true, body["fairness_unavailable"])
		assert.NotContains(t, body, "fairness")
		assert.NotContains(t, body, "ml_probability")
		assert.Equal(t, map[string]any{}, body["attribution"])
	})
}
