package slug

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const defaultMaxProbes = 1000

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ErrExhausted is returned when no free slug was found within the probe limit.
var ErrExhausted = errors.New("slug: no free value within probe limit")

// Condition is an exact-match equality that scopes uniqueness, e.g. show_id = 4.
type Condition struct {
	Column string
	Value  any
}

// Allocator probes the store for a free slug. It takes no locks: two callers
// may receive the same value, so the unique constraint decides and callers
// retry on IsUniqueViolation.
type Allocator struct {
	db        sqlx.QueryerContext
	maxProbes int
}

func NewAllocator(db sqlx.QueryerContext) *Allocator {
	return &Allocator{db: db, maxProbes: defaultMaxProbes}
}

// WithMaxProbes overrides the probe limit.
func (a *Allocator) WithMaxProbes(n int) *Allocator {
	a.maxProbes = n
	return a
}

// EnsureUnique returns candidate if no row in table has column = candidate
// under the scope conditions, otherwise the first free of candidate-2,
// candidate-3, ... excludeID (when non-zero) is ignored so a row being
// renamed does not collide with itself.
func (a *Allocator) EnsureUnique(ctx context.Context, candidate, table, column string, scope []Condition, excludeID int64) (string, error) {
	query, args, err := buildProbe(table, column, scope, excludeID)
	if err != nil {
		return "", err
	}

	value := candidate
	for n := 2; n <= a.maxProbes+1; n++ {
		taken, err := a.taken(ctx, query, value, args)
		if err != nil {
			return "", err
		}
		if !taken {
			return value, nil
		}
		value = fmt.Sprintf("%s-%d", candidate, n)
	}
	return "", fmt.Errorf("%w: %s", ErrExhausted, candidate)
}

func (a *Allocator) taken(ctx context.Context, query, value string, args []any) (bool, error) {
	var one int
	err := a.db.QueryRowxContext(ctx, query, append([]any{value}, args...)...).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return true, nil
}

// buildProbe renders "SELECT 1 FROM t WHERE col = $1 AND s1 = $2 ... LIMIT 1".
// The slug value is always $1; scope values follow in order.
func buildProbe(table, column string, scope []Condition, excludeID int64) (string, []any, error) {
	for _, name := range append([]string{table, column}, columns(scope)...) {
		if !identifier.MatchString(name) {
			return "", nil, fmt.Errorf("slug: invalid identifier %q", name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT 1 FROM %s WHERE %s = $1", pq.QuoteIdentifier(table), pq.QuoteIdentifier(column))

	args := make([]any, 0, len(scope)+1)
	for _, c := range scope {
		args = append(args, c.Value)
		fmt.Fprintf(&b, " AND %s = $%d", pq.QuoteIdentifier(c.Column), len(args)+1)
	}
	if excludeID != 0 {
		args = append(args, excludeID)
		fmt.Fprintf(&b, " AND id <> $%d", len(args)+1)
	}
	b.WriteString(" LIMIT 1")
	return b.String(), args, nil
}

func columns(scope []Condition) []string {
	out := make([]string, len(scope))
	for i, c := range scope {
		out[i] = c.Column
	}
	return out
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
