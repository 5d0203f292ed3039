package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"creditengine/internal/application/models"
	"creditengine/internal/decision"
	"creditengine/internal/fairness"
	"creditengine/internal/platform/postgres"
	"creditengine/internal/scoring"
	id "creditengine/pkg/domain"
	"creditengine/pkg/platform/sentinel"
	"creditengine/pkg/platform/tx"
)

const (
	applicationColumns = `id, user_id, number, version, previous_version_id, status, features,
		decision_id, credit_score, created_at, updated_at, submitted_at, processed_at`
	decisionColumns = `id, application_id, outcome, credit_score, confidence, risk_level, reason, source,
		ml_probability, weighted_total, category_scores, attribution, fairness_unavailable,
		processing_time_ms, created_at`
)

// PostgresStore persists applications in PostgreSQL. Every method joins the
// transaction carried by ctx, if any.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return tx.Run(ctx, s.db, nil, fn)
}

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	features, err := json.Marshal(app.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(app.ID),
		uuid.UUID(app.UserID),
		app.Number,
		app.Version,
		nullableAppID(app.PreviousVersionID),
		string(app.Status),
		features,
		nullableDecisionID(app.DecisionID),
		nullableInt(app.CreditScore),
		app.CreatedAt,
		app.UpdatedAt,
		nullableTime(app.SubmittedAt),
		nullableTime(app.ProcessedAt),
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, uuid.UUID(appID))
	app, err := scanApplication(row)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Application, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE user_id = $1 ORDER BY created_at DESC`,
		uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

// Execute locks the row, applies fn and writes the result back.
func (s *PostgresStore) Execute(ctx context.Context, appID id.ApplicationID, fn func(*models.Application) error) (*models.Application, error) {
	var updated *models.Application
	err := tx.Run(ctx, s.db, nil, func(ctx context.Context) error {
		app, err := s.findForUpdate(ctx, appID)
		if err != nil {
			return err
		}
		if err := fn(app); err != nil {
			return err
		}
		if err := s.update(ctx, app); err != nil {
			return err
		}
		updated = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AttachDecision locks the application, applies fn, then inserts the decision
// and its fairness record. UNIQUE(application_id) on decisions backs up the
// row lock: a second decision for one application fails with ErrConflict.
func (s *PostgresStore) AttachDecision(ctx context.Context, appID id.ApplicationID, d decision.Decision, rec *fairness.Record, fn func(*models.Application) error) (*models.Application, error) {
	var updated *models.Application
	err := tx.Run(ctx, s.db, nil, func(ctx context.Context) error {
		app, err := s.findForUpdate(ctx, appID)
		if err != nil {
			return err
		}
		if err := fn(app); err != nil {
			return err
		}
		if err := s.insertDecision(ctx, d); err != nil {
			return err
		}
		if rec != nil {
			if err := s.insertFairnessRecord(ctx, *rec); err != nil {
				return err
			}
		}
		if err := s.update(ctx, app); err != nil {
			return err
		}
		updated = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) findForUpdate(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, uuid.UUID(appID))
	return scanApplication(row)
}

func (s *PostgresStore) update(ctx context.Context, app *models.Application) error {
	query := `
		UPDATE applications SET
			status = $2,
			decision_id = $3,
			credit_score = $4,
			updated_at = $5,
			submitted_at = $6,
			processed_at = $7
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(app.ID),
		string(app.Status),
		nullableDecisionID(app.DecisionID),
		nullableInt(app.CreditScore),
		app.UpdatedAt,
		nullableTime(app.SubmittedAt),
		nullableTime(app.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) insertDecision(ctx context.Context, d decision.Decision) error {
	categoryScores, err := json.Marshal(nonNilScores(d.CategoryScores))
	if err != nil {
		return fmt.Errorf("marshal category scores: %w", err)
	}
	attribution, err := json.Marshal(nonNilAttribution(d.Attribution))
	if err != nil {
		return fmt.Errorf("marshal attribution: %w", err)
	}
	var mlProbability sql.NullFloat64
	if d.MLProbability != nil {
		mlProbability = sql.NullFloat64{Float64: *d.MLProbability, Valid: true}
	}
	query := `
		INSERT INTO decisions (` + decisionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		uuid.UUID(d.ApplicationID),
		string(d.Outcome),
		d.CreditScore,
		d.Confidence,
		string(d.RiskLevel),
		string(d.Reason),
		string(d.Source),
		mlProbability,
		d.WeightedTotal,
		categoryScores,
		attribution,
		d.FairnessUnavailable,
		d.ProcessingTime.Milliseconds(),
		d.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) insertFairnessRecord(ctx context.Context, rec fairness.Record) error {
	query := `
		INSERT INTO fairness_records (decision_id, protected_attribute, demographic_parity, equal_opportunity,
			disparate_impact, average_odds_difference, fairness_score, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (decision_id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(rec.DecisionID),
		rec.ProtectedAttribute,
		rec.DemographicParity,
		rec.EqualOpportunity,
		rec.DisparateImpact,
		rec.AverageOddsDifference,
		rec.FairnessScore,
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fairness record: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveVerification(ctx context.Context, v models.IdentityVerification) error {
	query := `
		INSERT INTO identity_verifications (id, application_id, claimed_id_number, extracted_id_number,
			confidence, matched, manual_review_required, low_confidence, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(v.ID),
		uuid.UUID(v.ApplicationID),
		v.ClaimedIDNumber,
		v.ExtractedIDNumber,
		v.Confidence,
		v.Matched,
		v.ManualReviewRequired,
		v.LowConfidence,
		v.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("insert identity verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVerifications(ctx context.Context, appID id.ApplicationID) ([]models.IdentityVerification, error) {
	query := `
		SELECT id, application_id, claimed_id_number, extracted_id_number, confidence, matched,
			manual_review_required, low_confidence, verified_at
		FROM identity_verifications
		WHERE application_id = $1
		ORDER BY verified_at
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list identity verifications: %w", err)
	}
	defer rows.Close()

	var out []models.IdentityVerification
	for rows.Next() {
		var v models.IdentityVerification
		var vid, aid uuid.UUID
		if err := rows.Scan(&vid, &aid, &v.ClaimedIDNumber, &v.ExtractedIDNumber, &v.Confidence,
			&v.Matched, &v.ManualReviewRequired, &v.LowConfidence, &v.VerifiedAt); err != nil {
			return nil, fmt.Errorf("scan identity verification: %w", err)
		}
		v.ID = id.VerificationID(vid)
		v.ApplicationID = id.ApplicationID(aid)
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveDocumentScores inserts all scores in one round trip using unnest.
func (s *PostgresStore) SaveDocumentScores(ctx context.Context, scores []scoring.DocumentScore) error {
	if len(scores) == 0 {
		return nil
	}
	var (
		ids        = make([]string, len(scores))
		appIDs     = make([]string, len(scores))
		categories = make([]string, len(scores))
		raw        = make([]float64, len(scores))
		sources    = make([]string, len(scores))
		fallbacks  = make([]bool, len(scores))
		computedAt = make([]string, len(scores))
	)
	for i, sc := range scores {
		ids[i] = sc.ID.String()
		appIDs[i] = sc.ApplicationID.String()
		categories[i] = string(sc.Category)
		raw[i] = sc.RawScore
		sources[i] = sc.SourceDocumentID.String()
		fallbacks[i] = sc.Fallback
		computedAt[i] = sc.ComputedAt.UTC().Format(time.RFC3339Nano)
	}
	query := `
		INSERT INTO document_scores (id, application_id, category, raw_score, source_document_id, fallback, computed_at)
		SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::text[], $4::float8[], $5::uuid[], $6::bool[], $7::timestamptz[])
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		pq.Array(ids),
		pq.Array(appIDs),
		pq.Array(categories),
		pq.Array(raw),
		pq.Array(sources),
		pq.Array(fallbacks),
		pq.Array(computedAt),
	)
	if err != nil {
		return fmt.Errorf("insert document scores: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDocumentScores(ctx context.Context, appID id.ApplicationID) ([]scoring.DocumentScore, error) {
	query := `
		SELECT id, application_id, category, raw_score, source_document_id, fallback, computed_at
		FROM document_scores
		WHERE application_id = $1
		ORDER BY computed_at, category
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list document scores: %w", err)
	}
	defer rows.Close()

	var out []scoring.DocumentScore
	for rows.Next() {
		var sc scoring.DocumentScore
		var sid, aid, src uuid.UUID
		var category string
		if err := rows.Scan(&sid, &aid, &category, &sc.RawScore, &src, &sc.Fallback, &sc.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan document score: %w", err)
		}
		sc.ID = id.DocumentID(sid)
		sc.ApplicationID = id.ApplicationID(aid)
		sc.SourceDocumentID = id.DocumentID(src)
		sc.Category = scoring.Category(category)
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindDecision(ctx context.Context, appID id.ApplicationID) (models.DecisionDetails, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE application_id = $1`, uuid.UUID(appID))
	d, err := scanDecision(row)
	if err != nil {
		return models.DecisionDetails{}, err
	}
	details := models.DecisionDetails{Decision: d}

	var rec fairness.Record
	var did uuid.UUID
	err = s.execer(ctx).QueryRowContext(ctx, `
		SELECT decision_id, protected_attribute, demographic_parity, equal_opportunity, disparate_impact,
			average_odds_difference, fairness_score, recorded_at
		FROM fairness_records WHERE decision_id = $1`, uuid.UUID(d.ID)).
		Scan(&did, &rec.ProtectedAttribute, &rec.DemographicParity, &rec.EqualOpportunity,
			&rec.DisparateImpact, &rec.AverageOddsDifference, &rec.FairnessScore, &rec.RecordedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return models.DecisionDetails{}, fmt.Errorf("find fairness record: %w", err)
	default:
		rec.DecisionID = id.DecisionID(did)
		details.Fairness = &rec
	}
	return details, nil
}

// Delete removes the application; child rows go with it via ON DELETE CASCADE.
func (s *PostgresStore) Delete(ctx context.Context, appID id.ApplicationID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, uuid.UUID(appID))
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListFairnessPending(ctx context.Context, limit int) ([]decision.Decision, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE fairness_unavailable ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions pending fairness: %w", err)
	}
	defer rows.Close()

	var out []decision.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveFairnessRecord(ctx context.Context, rec fairness.Record) error {
	return tx.Run(ctx, s.db, nil, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx,
			`UPDATE decisions SET fairness_unavailable = FALSE WHERE id = $1`, uuid.UUID(rec.DecisionID))
		if err != nil {
			return fmt.Errorf("clear fairness flag: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return sentinel.ErrNotFound
		}
		return s.insertFairnessRecord(ctx, rec)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app                    models.Application
		appID, userID          uuid.UUID
		previousID, decisionID uuid.NullUUID
		status                 string
		features               []byte
		creditScore            sql.NullInt64
		submittedAt            sql.NullTime
		processedAt            sql.NullTime
	)
	err := row.Scan(&appID, &userID, &app.Number, &app.Version, &previousID, &status, &features,
		&decisionID, &creditScore, &app.CreatedAt, &app.UpdatedAt, &submittedAt, &processedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}
	if err := json.Unmarshal(features, &app.Features); err != nil {
		return nil, fmt.Errorf("unmarshal features: %w", err)
	}
	app.ID = id.ApplicationID(appID)
	app.UserID = id.UserID(userID)
	app.Status = models.Status(status)
	if previousID.Valid {
		v := id.ApplicationID(previousID.UUID)
		app.PreviousVersionID = &v
	}
	if decisionID.Valid {
		v := id.DecisionID(decisionID.UUID)
		app.DecisionID = &v
	}
	if creditScore.Valid {
		v := int(creditScore.Int64)
		app.CreditScore = &v
	}
	if submittedAt.Valid {
		app.SubmittedAt = &submittedAt.Time
	}
	if processedAt.Valid {
		app.ProcessedAt = &processedAt.Time
	}
	return &app, nil
}

func scanDecision(row rowScanner) (decision.Decision, error) {
	var (
		d                    decision.Decision
		did, aid             uuid.UUID
		outcome, risk        string
		reason, source       string
		mlProbability        sql.NullFloat64
		categoryScores, attr []byte
		processingMs         int64
	)
	err := row.Scan(&did, &aid, &outcome, &d.CreditScore, &d.Confidence, &risk, &reason, &source,
		&mlProbability, &d.WeightedTotal, &categoryScores, &attr, &d.FairnessUnavailable,
		&processingMs, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decision.Decision{}, sentinel.ErrNotFound
		}
		return decision.Decision{}, fmt.Errorf("scan decision: %w", err)
	}
	if err := json.Unmarshal(categoryScores, &d.CategoryScores); err != nil {
		return decision.Decision{}, fmt.Errorf("unmarshal category scores: %w", err)
	}
	if err := json.Unmarshal(attr, &d.Attribution); err != nil {
		return decision.Decision{}, fmt.Errorf("unmarshal attribution: %w", err)
	}
	d.ID = id.DecisionID(did)
	d.ApplicationID = id.ApplicationID(aid)
	d.Outcome = decision.Outcome(outcome)
	d.RiskLevel = decision.RiskLevel(risk)
	d.Reason = decision.Reason(reason)
	d.Source = decision.Source(source)
	if mlProbability.Valid {
		p := mlProbability.Float64
		d.MLProbability = &p
	}
	d.ProcessingTime = time.Duration(processingMs) * time.Millisecond
	return d, nil
}

func nullableAppID(v *id.ApplicationID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func nullableDecisionID(v *id.DecisionID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nonNilScores(m map[scoring.Category]float64) map[scoring.Category]float64 {
	if m == nil {
		return map[scoring.Category]float64{}
	}
	return m
}

func nonNilAttribution(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
