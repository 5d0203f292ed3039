package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditengine/internal/collaborator"
)

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze/document", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "TAX_DECLARATION", r.FormValue("document_type"))
		_, _ = w.Write([]byte(`{"document_type":"TAX_DECLARATION","score":72.5}`))
	}))
	defer srv.Close()

	score, err := New(collaborator.NewClient("analysis", srv.URL)).
		Analyze(context.Background(), []byte("%PDF"), DocumentTypeTaxDeclaration)
	require.NoError(t, err)
	assert.InDelta(t, 72.5, score, 1e-9)
}

func TestAnalyze_ErrorPayload(t *testing.T) {
	// The service reports internal failures as a 200 with a neutral score and an error field.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"document_type":"PAY_SLIP","score":50.0,"error":"unreadable pdf"}`))
	}))
	defer srv.Close()

	_, err := New(collaborator.NewClient("analysis", srv.URL)).
		Analyze(context.Background(), []byte("%PDF"), DocumentTypePaySlip)
	require.Error(t, err)
	assert.Equal(t, collaborator.ErrorBadData, collaborator.CategoryOf(err))
}

func TestAnalyze_MissingScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New(collaborator.NewClient("analysis", srv.URL)).
		Analyze(context.Background(), []byte("%PDF"), DocumentTypeBankStatement)
	require.Error(t, err)
	assert.Equal(t, collaborator.ErrorContractMismatch, collaborator.CategoryOf(err))
}
