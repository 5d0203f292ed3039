package scoring

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"creditengine/internal/collaborator"
	"creditengine/internal/collaborator/analysis"
	"creditengine/internal/scoring/metrics"
	id "creditengine/pkg/domain"
	"creditengine/pkg/requestcontext"
)

const defaultConcurrency = 4

// Analyzer scores a single document. Implemented by the analysis client.
type Analyzer interface {
	Analyze(ctx context.Context, content []byte, docType analysis.DocumentType) (float64, error)
}

// documentTypes maps categories to the analyzer's document type names.
var documentTypes = map[Category]analysis.DocumentType{
	CategoryIdentity: analysis.DocumentTypeCIN,
	CategoryIncome:   analysis.DocumentTypePaySlip,
	CategoryTax:      analysis.DocumentTypeTaxDeclaration,
	CategoryBank:     analysis.DocumentTypeBankStatement,
}

// Scorer turns documents into DocumentScores. It never fails a document:
// analyzer errors degrade to FallbackScore.
type Scorer struct {
	analyzer    Analyzer
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Scorer)

func WithConcurrency(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scorer) {
		s.metrics = m
	}
}

func NewScorer(analyzer Analyzer, opts ...Option) *Scorer {
	s := &Scorer{
		analyzer:    analyzer,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreDocument scores one document. Out-of-range scores are clamped to [0,100].
func (s *Scorer) ScoreDocument(ctx context.Context, appID id.ApplicationID, doc Document) DocumentScore {
	start := time.Now()
	result := DocumentScore{
		ID:               id.NewDocumentID(),
		ApplicationID:    appID,
		Category:         doc.Category,
		SourceDocumentID: doc.ID,
		ComputedAt:       requestcontext.Now(ctx),
	}

	raw, err := s.analyzer.Analyze(ctx, doc.Content, documentTypes[doc.Category])
	if err != nil {
		reason := string(collaborator.CategoryOf(err))
		s.logger.WarnContext(ctx, "document analysis failed, using fallback score",
			"application_id", appID,
			"document_id", doc.ID,
			"category", doc.Category,
			"reason", reason,
			"error", err,
		)
		s.metrics.IncrementFallback(string(doc.Category), reason)
		result.RawScore = FallbackScore
		result.Fallback = true
		return result
	}

	if math.IsNaN(raw) {
		s.logger.WarnContext(ctx, "document analysis returned NaN, using fallback score",
			"application_id", appID,
			"document_id", doc.ID,
		)
		s.metrics.IncrementFallback(string(doc.Category), string(collaborator.ErrorBadData))
		result.RawScore = FallbackScore
		result.Fallback = true
		return result
	}
	if raw < 0 || raw > 100 {
		s.logger.WarnContext(ctx, "document score out of range, clamping",
			"application_id", appID,
			"document_id", doc.ID,
			"raw_score", raw,
		)
	}
	result.RawScore = clamp(raw, 0, 100)
	s.metrics.ObserveScore(string(doc.Category), result.RawScore, time.Since(start))
	return result
}

// ScoreAll scores documents concurrently, bounded by the configured limit, and
// returns scores in input order. It only errors when ctx is cancelled; callers
// must then discard the partial result.
func (s *Scorer) ScoreAll(ctx context.Context, appID id.ApplicationID, docs []Document) ([]DocumentScore, error) {
	scores := make([]DocumentScore, len(docs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			scores[i] = s.ScoreDocument(ctx, appID, doc)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}
