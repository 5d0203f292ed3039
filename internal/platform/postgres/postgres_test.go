package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditengine/internal/platform/config"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "decisions_application_id_key"}

	assert.True(t, IsUniqueViolation(pgErr, ""))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "decisions_application_id_key"))
	assert.False(t, IsUniqueViolation(pgErr, "applications_number_version_key"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestOpen_NoURLMeansNoDatabase(t *testing.T) {
	db, err := Open(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestSchema_DeclaresDecisionUniqueness(t *testing.T) {
	assert.Contains(t, schema, "decisions_application_id_key UNIQUE (application_id)")
	assert.Contains(t, schema, "ON DELETE CASCADE")
}
