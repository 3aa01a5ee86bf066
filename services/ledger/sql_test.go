package ledger

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestSerializationConflict(t *testing.T) {
	serial := &pq.Error{Code: "40001", Message: "could not serialize access due to concurrent update"}

	// The loser of two serializable transactions must observe the same
	// conflict a lost compare-and-set produces, never a raw driver error.
	assert.ErrorIs(t, serializationConflict(serial), ErrStateConflict)
	assert.ErrorIs(t, serializationConflict(fmt.Errorf("tx failed: %w", serial)), ErrStateConflict)

	// Everything else passes through untouched
	assert.NoError(t, serializationConflict(nil))
	assert.ErrorIs(t, serializationConflict(sql.ErrNoRows), sql.ErrNoRows)
	assert.ErrorIs(t, serializationConflict(ErrInsufficientFunds), ErrInsufficientFunds)
}
