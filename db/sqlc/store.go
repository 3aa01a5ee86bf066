package db

import (
	"context"
	"database/sql"
	"fmt"
)

type Store struct {
	*Queries
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		DB:      db,
		Queries: New(db),
	}
}

// ExecTx runs fq inside a serializable database transaction. Every
// balance mutation paired with a status transition goes through here so
// the pair commits or rolls back as one unit.
func (s *Store) ExecTx(ctx context.Context, fq func(q *Queries) error) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}

	q := New(tx)
	if err := fq(q); err != nil {
		if txErr := tx.Rollback(); txErr != nil {
			return fmt.Errorf("encountered rollback error: %v (original error: %v)", txErr, err)
		}
		return err
	}

	return tx.Commit()
}
