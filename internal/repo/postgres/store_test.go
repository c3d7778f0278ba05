package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	serialization := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
	deadlock := &pgconn.PgError{Code: "40P01"}
	unique := &pgconn.PgError{Code: "23505"}

	assert.True(t, isRetryable(serialization))
	assert.True(t, isRetryable(deadlock))
	assert.False(t, isRetryable(unique))
	assert.False(t, isRetryable(errors.New("boom")))
	assert.False(t, isRetryable(nil))

	assert.True(t, isUniqueViolation(unique))
	assert.False(t, isUniqueViolation(serialization))
}

func TestDecodeListFallsBackToEmpty(t *testing.T) {
	assert.Equal(t, []string{"a"}, decodeList([]byte(`["a"]`), "x", 1))
	assert.Equal(t, []string{}, decodeList([]byte(`{`), "x", 1))
	assert.Equal(t, []string{}, decodeList(nil, "x", 1))
}
