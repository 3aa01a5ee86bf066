package db

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsSerializationFailure(t *testing.T) {
	serial := &pq.Error{Code: SerialFailure, Message: "could not serialize access due to concurrent update"}

	assert.True(t, IsSerializationFailure(serial))
	assert.True(t, IsSerializationFailure(fmt.Errorf("tx failed: %w", serial)))

	assert.False(t, IsSerializationFailure(nil))
	assert.False(t, IsSerializationFailure(sql.ErrNoRows))
	assert.False(t, IsSerializationFailure(&pq.Error{Code: DuplicateEntry}))
	assert.False(t, IsSerializationFailure(errors.New("could not serialize access")))
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: DuplicateEntry}

	assert.True(t, IsUniqueViolation(dup))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert failed: %w", dup)))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: SerialFailure}))
}
