package repository

import (
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrLaneBusy means another episode already holds the lane's in-flight status.
	ErrLaneBusy = errors.New("lane already has work in flight")
	// ErrDuplicateTaskID means the external task identifier is already recorded.
	ErrDuplicateTaskID = errors.New("duplicate external task id")
)

// conn returns tx when the caller is inside a transaction, the pool otherwise.
func conn(db *sqlx.DB, tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return db
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
