package batch

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Conn is one connection checked out of the pool. Close returns it.
type Conn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// Pool hands out exclusive connections. Implementations must be safe for
// concurrent use by unrelated batches.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// DBPool adapts *sql.DB to Pool.
type DBPool struct {
	DB *sql.DB
}

// Acquire checks out a dedicated connection, waiting while the pool is
// exhausted until ctx is done.
func (p DBPool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.DB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var errHalted = errors.New("batch halted")

// Options tunes a Coordinator.
type Options struct {
	// MaxInFlight bounds how many items are dispatched at once.
	MaxInFlight int
	// MaxItems rejects larger batches as input errors. Zero means no limit.
	MaxItems int
	Metrics  *Metrics
}

// Result acknowledges a committed batch.
type Result struct {
	Kind     string
	ParentID int64
	Items    int
	Inserted int
	Updated  int
}

// Coordinator runs each batch as one transaction on one pooled connection.
type Coordinator struct {
	pool Pool
	log  logrus.FieldLogger
	opts Options
}

// NewCoordinator creates a Coordinator. MaxInFlight defaults to 16.
func NewCoordinator(pool Pool, log logrus.FieldLogger, opts Options) *Coordinator {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 16
	}
	return &Coordinator{pool: pool, log: log, opts: opts}
}

// Submit reconciles every item of req against t: each item is inserted if
// no record exists for (item, parent) and overwritten otherwise. Either all
// writes commit or none do; the returned error is always an *Error.
func (c *Coordinator) Submit(ctx context.Context, t Table, req Request) (res Result, err error) {
	start := time.Now()
	defer func() {
		c.opts.Metrics.observe(t.Kind, len(req.Items), time.Since(start), err)
	}()

	if err := req.Validate(c.opts.MaxItems); err != nil {
		return Result{}, err
	}

	log := c.log.WithFields(logrus.Fields{
		"kind":      t.Kind,
		"parent_id": req.ParentID,
		"items":     len(req.Items),
	})

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		log.WithError(err).Error("Error getting database connection")
		return Result{}, &Error{Kind: KindConnection, Reason: "database connection error", Err: err}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.WithError(cerr).Warn("Error releasing database connection")
		}
	}()

	// Once a connection is held, the batch runs to commit or rollback
	// regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		log.WithError(err).Error("Error starting transaction")
		return Result{}, &Error{Kind: KindTxStart, Reason: "transaction error", Err: err}
	}
	log.Debug("Batch transaction opened")

	q := &txQueue{tx: tx}
	run := &batchRun{
		table:    t,
		req:      req,
		q:        q,
		resolver: newResolver(q, t),
		log:      log,
	}
	return run.execute(ctx, c.opts.MaxInFlight)
}

// batchRun is the state of one open batch transaction.
type batchRun struct {
	table    Table
	req      Request
	q        *txQueue
	resolver *Resolver
	log      logrus.FieldLogger

	inserted atomic.Int32
	updated  atomic.Int32

	// Written by the deciding item goroutine, read after all items returned.
	commitErr error
}

func (r *batchRun) execute(ctx context.Context, maxInFlight int) (Result, error) {
	tracker := NewTracker(len(r.req.Items), r.commit, r.rollback)

	var g errgroup.Group
	g.SetLimit(maxInFlight)
	for _, it := range r.req.Items {
		if tracker.Failed() {
			break
		}
		it := it
		g.Go(func() error {
			r.runItem(ctx, tracker, it)
			return nil
		})
	}
	_ = g.Wait()

	if o := tracker.Outcome(); o.Failed {
		return Result{}, o.Err
	}
	if r.commitErr != nil {
		return Result{}, r.commitErr
	}
	res := Result{
		Kind:     r.table.Kind,
		ParentID: r.req.ParentID,
		Items:    len(r.req.Items),
		Inserted: int(r.inserted.Load()),
		Updated:  int(r.updated.Load()),
	}
	r.log.WithFields(logrus.Fields{
		"inserted": res.Inserted,
		"updated":  res.Updated,
	}).Info("Batch committed")
	return res, nil
}

func (r *batchRun) runItem(ctx context.Context, tracker *Tracker, it Item) {
	if tracker.Failed() {
		return
	}
	if err := CheckItem(r.table, it); err != nil {
		r.fail(tracker, err)
		return
	}
	resolution, err := r.resolver.Resolve(ctx, r.req.ParentID, it.ID)
	if err != nil {
		r.fail(tracker, storageError(it.ID, "error checking existing record", err))
		return
	}
	op := Plan(r.table, resolution, r.req.ParentID, it)
	query, args := op.Statement(r.table)
	if err := r.q.exec(ctx, query, args...); err != nil {
		r.fail(tracker, storageError(it.ID, "error saving record", err))
		return
	}
	if op.Kind == OpUpdate {
		r.updated.Add(1)
	} else {
		r.inserted.Add(1)
	}
	tracker.RecordSuccess()
}

func (r *batchRun) fail(tracker *Tracker, err error) {
	if errors.Is(err, errHalted) {
		return
	}
	if tracker.RecordFailure(err) {
		r.log.WithError(err).Warn("Batch item failed")
	}
}

// rollback runs once, on the first failure.
func (r *batchRun) rollback(cause error) {
	if err := r.q.rollback(); err != nil {
		r.log.WithError(err).Error("Error rolling back batch transaction")
		return
	}
	var be *Error
	if errors.As(cause, &be) && be.Kind == KindInput {
		r.log.Info("Batch rolled back on invalid input")
		return
	}
	r.log.Warn("Batch rolled back")
}

// commit runs once, after the last item succeeded.
func (r *batchRun) commit() {
	err := r.q.commit()
	if err == nil {
		return
	}
	r.log.WithError(err).Error("Error committing batch transaction")
	if rbErr := r.q.rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		r.log.WithError(rbErr).Error("Error rolling back after failed commit")
	}
	r.commitErr = &Error{Kind: KindCommit, Reason: "error finalizing submission", Err: err}
}
