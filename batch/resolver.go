package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// txQueue runs round-trips on one batch transaction. The connection carries
// one statement at a time, so callers queue here instead of racing for it.
// Once the transaction is finished every queued call returns errHalted.
type txQueue struct {
	mu     sync.Mutex
	tx     *sql.Tx
	halted bool
}

func (q *txQueue) queryRow(ctx context.Context, dest any, query string, args ...any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.halted {
		return errHalted
	}
	return q.tx.QueryRowContext(ctx, query, args...).Scan(dest)
}

func (q *txQueue) exec(ctx context.Context, query string, args ...any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.halted {
		return errHalted
	}
	_, err := q.tx.ExecContext(ctx, query, args...)
	return err
}

func (q *txQueue) commit() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.halted = true
	return q.tx.Commit()
}

func (q *txQueue) rollback() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.halted = true
	return q.tx.Rollback()
}

// Resolution is the result of an existence check.
type Resolution struct {
	RecordID int64
	Found    bool
}

// Resolver looks up the existing child record for (parent, item) inside the
// batch transaction.
type Resolver struct {
	q     *txQueue
	query string
}

func newResolver(q *txQueue, t Table) *Resolver {
	return &Resolver{
		q: q,
		query: fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2",
			t.IDColumn, t.Name, t.ItemColumn, t.ParentColumn),
	}
}

// Resolve returns the existing record id, or Found=false when there is none.
// It does not check that the ids themselves exist.
func (r *Resolver) Resolve(ctx context.Context, parentID, itemID int64) (Resolution, error) {
	var id int64
	err := r.q.queryRow(ctx, &id, r.query, itemID, parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return Resolution{}, nil
	}
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{RecordID: id, Found: true}, nil
}
