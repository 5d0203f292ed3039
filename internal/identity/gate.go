// Package identity checks that the identifier claimed on an application
// matches the one read from the applicant's identity document.
package identity

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"

	"creditengine/internal/collaborator"
	"creditengine/internal/collaborator/ocr"
	"creditengine/internal/identity/metrics"
	dErrors "creditengine/pkg/domain-errors"
	"creditengine/pkg/requestcontext"
)

const (
	defaultTimeout         = 10 * time.Second
	lowConfidenceThreshold = 0.5
)

// OCR extracts identifiers from identity document images.
type OCR interface {
	ExtractIdentity(ctx context.Context, image []byte) (ocr.Extraction, error)
	IsAvailable(ctx context.Context) bool
}

// Result is one verification attempt. It is returned alongside an
// identity_mismatch error too, so the failed attempt can be recorded.
type Result struct {
	ClaimedIDNumber      string
	ExtractedIDNumber    string
	Confidence           float64
	Matched              bool
	ManualReviewRequired bool
	LowConfidence        bool
	VerifiedAt           time.Time
}

type Gate struct {
	ocr     OCR
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Gate)

func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func NewGate(ocr OCR, opts ...Option) *Gate {
	g := &Gate{
		ocr:     ocr,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Normalize uppercases an identifier and drops all whitespace.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// Verify compares claimedID against the identifier read from image.
//
// An unreachable OCR, an unreadable image or an empty extraction does not
// block the application: the result is marked matched with zero confidence
// and ManualReviewRequired. Only a readable identifier that differs from the
// claim fails, with identity_mismatch.
func (g *Gate) Verify(ctx context.Context, claimedID string, image []byte) (Result, error) {
	claimed := Normalize(claimedID)
	if claimed == "" {
		return Result{}, dErrors.New(dErrors.CodeValidation, "claimed identity number is required")
	}
	result := Result{
		ClaimedIDNumber: claimed,
		VerifiedAt:      requestcontext.Now(ctx),
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if !g.ocr.IsAvailable(ctx) {
		return g.manualReview(ctx, result, "ocr service unavailable", nil), nil
	}

	start := time.Now()
	extraction, err := g.ocr.ExtractIdentity(ctx, image)
	if err != nil {
		return g.manualReview(ctx, result, "ocr extraction failed", err), nil
	}
	g.metrics.ObserveExtraction(extraction.Confidence, time.Since(start))

	extracted := Normalize(extraction.IDNumber)
	if extracted == "" {
		return g.manualReview(ctx, result, "ocr returned an empty identifier", nil), nil
	}

	result.ExtractedIDNumber = extracted
	result.Confidence = clampUnit(extraction.Confidence)
	result.Matched = extracted == claimed

	if !result.Matched {
		g.logger.WarnContext(ctx, "identity mismatch",
			"confidence", result.Confidence,
			"request_id", requestcontext.RequestID(ctx),
		)
		g.metrics.IncrementResult("mismatch")
		return result, dErrors.New(dErrors.CodeIdentityMismatch, "claimed identity number does not match the identity document")
	}

	if result.Confidence < lowConfidenceThreshold {
		result.LowConfidence = true
		g.logger.WarnContext(ctx, "low confidence identity match",
			"confidence", result.Confidence,
			"threshold", lowConfidenceThreshold,
			"request_id", requestcontext.RequestID(ctx),
		)
		g.metrics.IncrementResult("low_confidence")
		return result, nil
	}

	g.metrics.IncrementResult("matched")
	return result, nil
}

func (g *Gate) manualReview(ctx context.Context, result Result, reason string, err error) Result {
	attrs := []any{
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	}
	if err != nil {
		attrs = append(attrs, "category", collaborator.CategoryOf(err), "error", err)
	}
	g.logger.WarnContext(ctx, "identity verification degraded, manual review required", attrs...)
	g.metrics.IncrementResult("manual_review")

	result.Matched = true
	result.Confidence = 0
	result.ManualReviewRequired = true
	return result
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
