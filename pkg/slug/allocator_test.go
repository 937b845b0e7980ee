package slug

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockAllocator(t *testing.T) (*Allocator, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDb.Close() })
	return NewAllocator(sqlx.NewDb(mockDb, "postgres")), mock
}

func found() *sqlmock.Rows { return sqlmock.NewRows([]string{"?column?"}).AddRow(1) }
func free() *sqlmock.Rows  { return sqlmock.NewRows([]string{"?column?"}) }

const scopedProbe = `SELECT 1 FROM "episodes" WHERE "slug" = $1 AND "show_id" = $2 LIMIT 1`

func TestEnsureUniqueFreeCandidate(t *testing.T) {
	a, mock := newMockAllocator(t)
	mock.ExpectQuery(regexp.QuoteMeta(scopedProbe)).WithArgs("hello-world", int64(2)).WillReturnRows(free())

	got, err := a.EnsureUnique(context.Background(), "hello-world", "episodes", "slug", []Condition{{Column: "show_id", Value: int64(2)}}, 0)

	require.NoError(t, err)
	assert.Equal(t, "hello-world", got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureUniqueProbesSuffixes(t *testing.T) {
	a, mock := newMockAllocator(t)
	mock.ExpectQuery(regexp.QuoteMeta(scopedProbe)).WithArgs("hello-world", int64(1)).WillReturnRows(found())
	mock.ExpectQuery(regexp.QuoteMeta(scopedProbe)).WithArgs("hello-world-2", int64(1)).WillReturnRows(free())

	got, err := a.EnsureUnique(context.Background(), "hello-world", "episodes", "slug", []Condition{{Column: "show_id", Value: int64(1)}}, 0)

	require.NoError(t, err)
	assert.Equal(t, "hello-world-2", got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureUniqueContinuesPastTwo(t *testing.T) {
	a, mock := newMockAllocator(t)
	probe := regexp.QuoteMeta(`SELECT 1 FROM "shows" WHERE "slug" = $1 LIMIT 1`)
	mock.ExpectQuery(probe).WithArgs("news").WillReturnRows(found())
	mock.ExpectQuery(probe).WithArgs("news-2").WillReturnRows(found())
	mock.ExpectQuery(probe).WithArgs("news-3").WillReturnRows(free())

	got, err := a.EnsureUnique(context.Background(), "news", "shows", "slug", nil, 0)

	require.NoError(t, err)
	assert.Equal(t, "news-3", got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureUniqueExcludesSelf(t *testing.T) {
	a, mock := newMockAllocator(t)
	probe := regexp.QuoteMeta(`SELECT 1 FROM "episodes" WHERE "slug" = $1 AND "show_id" = $2 AND id <> $3 LIMIT 1`)
	mock.ExpectQuery(probe).WithArgs("pilot", int64(3), int64(42)).WillReturnRows(free())

	got, err := a.EnsureUnique(context.Background(), "pilot", "episodes", "slug", []Condition{{Column: "show_id", Value: int64(3)}}, 42)

	require.NoError(t, err)
	assert.Equal(t, "pilot", got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureUniqueRejectsUnsafeIdentifiers(t *testing.T) {
	a, mock := newMockAllocator(t)

	_, err := a.EnsureUnique(context.Background(), "x", "episodes; DROP TABLE shows", "slug", nil, 0)
	assert.Error(t, err)

	_, err = a.EnsureUnique(context.Background(), "x", "episodes", "slug", []Condition{{Column: "show id", Value: 1}}, 0)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureUniqueExhausted(t *testing.T) {
	a, mock := newMockAllocator(t)
	a.WithMaxProbes(2)
	probe := regexp.QuoteMeta(`SELECT 1 FROM "shows" WHERE "slug" = $1 LIMIT 1`)
	mock.ExpectQuery(probe).WithArgs("busy").WillReturnRows(found())
	mock.ExpectQuery(probe).WithArgs("busy-2").WillReturnRows(found())

	_, err := a.EnsureUnique(context.Background(), "busy", "shows", "slug", nil, 0)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestEnsureUniqueStoreError(t *testing.T) {
	a, mock := newMockAllocator(t)
	mock.ExpectQuery(`SELECT 1 FROM "shows"`).WillReturnError(errors.New("connection reset"))

	_, err := a.EnsureUnique(context.Background(), "news", "shows", "slug", nil, 0)
	assert.EqualError(t, err, "connection reset")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(errors.Join(errors.New("insert"), &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}
