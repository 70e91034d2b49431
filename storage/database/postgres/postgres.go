// Package pgrepos implements the repositories on PostgreSQL with sqlx.
package pgrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sala/core"
)

const uniqueViolation = "23505"

type base struct {
	db core.DB
}

// withTx runs `fn` in a transaction, rolled back if `fn` fails.
func (b base) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (b base) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	err := b.db.GetContext(ctx, &n, b.db.Rebind(query), args...)
	return n, err
}

func (b base) affected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// trapNoRows maps "no rows" errors to `notFound`.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// validID reports whether `id` can be compared to a uuid column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

func newID() string {
	return uuid.NewString()
}

// where joins SQL conditions with AND. Conditions use "?" placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// search adds a case-insensitive match of `term` on one of `cols`.
func (w *where) search(term string, cols ...string) {
	if term == "" {
		return
	}
	val := "%" + term + "%"
	ors := make([]string, 0, len(cols))
	for _, col := range cols {
		ors = append(ors, col+" ILIKE ?")
		w.args = append(w.args, val)
	}
	w.conds = append(w.conds, "("+strings.Join(ors, " OR ")+")")
}

// in adds `col = ANY(ids)`. Invalid IDs never match.
func (w *where) in(col string, ids []string) {
	w.add(col+" = ANY(?::uuid[])", pq.Array(validIDs(ids)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func nullDate(t time.Time) null.Time {
	return null.NewTime(core.TruncateDay(t), !t.IsZero())
}

func timeOf(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func stringsOf(a pq.StringArray) []string {
	if a == nil {
		return []string{}
	}
	return []string(a)
}
