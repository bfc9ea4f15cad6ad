package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/geotree/pkg/geo"
)

// Outcome is the fate of one record in a batch.
type Outcome int

const (
	Resolved Outcome = iota
	Queued
	Failed
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Queued:
		return "queued"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ErrSkip is returned by a handler to drop a record on purpose: a filtered
// language, an alias for a feature this import never created.
var ErrSkip = errors.New("record skipped")

// PendingRecord is one raw source row plus where it came from.
type PendingRecord struct {
	Kind   string
	Source string
	Line   int
	Key    string
	Fields []string
	// Passes counts handler invocations for this record.
	Passes int
}

// HandlerFunc resolves one record. allowDelay is false on the deferred
// pass; a handler that would otherwise wait for a parent may use it to pick
// a fallback.
type HandlerFunc func(ctx context.Context, rec *PendingRecord, allowDelay bool) error

// RetryQueue holds records whose parent was missing, grouped by kind and in
// arrival order.
type RetryQueue struct {
	byKind map[string][]*PendingRecord
	n      int
	total  int
}

// NewRetryQueue returns an empty queue.
func NewRetryQueue() *RetryQueue {
	return &RetryQueue{byKind: make(map[string][]*PendingRecord)}
}

// Enqueue defers rec under its kind.
func (q *RetryQueue) Enqueue(rec *PendingRecord) {
	q.byKind[rec.Kind] = append(q.byKind[rec.Kind], rec)
	q.n++
	q.total++
}

// Drain removes and returns every record queued under kind.
func (q *RetryQueue) Drain(kind string) []*PendingRecord {
	recs := q.byKind[kind]
	delete(q.byKind, kind)
	q.n -= len(recs)
	return recs
}

// Len is the number of records currently waiting.
func (q *RetryQueue) Len() int { return q.n }

// Total is the number of records ever enqueued.
func (q *RetryQueue) Total() int { return q.total }

// Summary counts outcomes. A record counts once in Processed however many
// passes it took.
type Summary struct {
	Processed int     `json:"processed" yaml:"processed"`
	Resolved  int     `json:"resolved" yaml:"resolved"`
	Failed    int     `json:"failed" yaml:"failed"`
	Skipped   int     `json:"skipped" yaml:"skipped"`
	Pending   int     `json:"pending" yaml:"pending"`
	Retried   int     `json:"retried" yaml:"retried"`
	Errors    []error `json:"-" yaml:"-"`
}

// Check reports an error when some record is unaccounted for.
func (s Summary) Check() error {
	if got := s.Resolved + s.Failed + s.Skipped + s.Pending; got != s.Processed {
		return fmt.Errorf("summary mismatch: processed %d, accounted %d (resolved %d, failed %d, skipped %d, pending %d)",
			s.Processed, got, s.Resolved, s.Failed, s.Skipped, s.Pending)
	}
	return nil
}

const maxKeptErrors = 100

// Batch runs records through handlers and owns the retry queue. Per-record
// errors are logged and counted; anything else is returned as fatal.
type Batch struct {
	logger *slog.Logger
	queue  *RetryQueue
	sum    Summary

	// OnOutcome, when set, observes every final or queued outcome.
	OnOutcome func(kind string, o Outcome)
}

// NewBatch returns a batch logging to logger.
func NewBatch(logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{logger: logger, queue: NewRetryQueue()}
}

// Process runs fn on rec with delay permitted. A ParentNotFoundError queues
// the record for Flush. The returned error is non-nil only for failures
// that must stop the run.
func (b *Batch) Process(ctx context.Context, rec *PendingRecord, fn HandlerFunc) (Outcome, error) {
	b.sum.Processed++
	return b.run(ctx, rec, fn, true)
}

// Flush replays every record queued under kind exactly once, in arrival
// order, without permitting delay. A parent still missing is terminal.
func (b *Batch) Flush(ctx context.Context, kind string, fn HandlerFunc) error {
	recs := b.queue.Drain(kind)
	if len(recs) == 0 {
		return nil
	}
	b.logger.Info("replaying deferred records", "kind", kind, "count", len(recs))
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			b.requeue(recs[i:])
			return err
		}
		b.sum.Retried++
		if _, err := b.run(ctx, rec, fn, false); err != nil {
			b.requeue(recs[i+1:])
			return err
		}
	}
	return nil
}

// Pending is the number of records still waiting for Flush.
func (b *Batch) Pending() int { return b.queue.Len() }

// Summary returns a snapshot of the counters.
func (b *Batch) Summary() Summary {
	s := b.sum
	s.Pending = b.queue.Len()
	s.Errors = append([]error(nil), b.sum.Errors...)
	return s
}

func (b *Batch) run(ctx context.Context, rec *PendingRecord, fn HandlerFunc, allowDelay bool) (Outcome, error) {
	rec.Passes++
	err := fn(ctx, rec, allowDelay)

	var pnf *geo.ParentNotFoundError
	switch {
	case err == nil:
		b.sum.Resolved++
		b.observe(rec, Resolved, nil)
		return Resolved, nil

	case errors.Is(err, ErrSkip):
		b.sum.Skipped++
		b.observe(rec, Skipped, err)
		return Skipped, nil

	case errors.As(err, &pnf) && allowDelay:
		b.queue.Enqueue(rec)
		b.observe(rec, Queued, err)
		return Queued, nil

	case errors.As(err, &pnf):
		err = &geo.UnresolvedParentError{Source: rec.Source, Line: rec.Line, Key: rec.Key, Err: err}
		b.fail(rec, err)
		return Failed, nil

	case geo.IsRecordLevel(err):
		b.fail(rec, err)
		return Failed, nil
	}

	b.fail(rec, err)
	return Failed, fmt.Errorf("%s:%d %s: %w", rec.Source, rec.Line, rec.Key, err)
}

func (b *Batch) fail(rec *PendingRecord, err error) {
	b.sum.Failed++
	if len(b.sum.Errors) < maxKeptErrors {
		b.sum.Errors = append(b.sum.Errors, err)
	}
	b.observe(rec, Failed, err)
}

// requeue puts back records a Flush did not reach so they stay counted
// as pending.
func (b *Batch) requeue(recs []*PendingRecord) {
	for _, rec := range recs {
		b.queue.byKind[rec.Kind] = append(b.queue.byKind[rec.Kind], rec)
		b.queue.n++
	}
}

func (b *Batch) observe(rec *PendingRecord, o Outcome, err error) {
	attrs := []any{"kind", rec.Kind, "source", rec.Source, "line", rec.Line, "key", rec.Key, "outcome", o.String()}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	switch o {
	case Failed:
		b.logger.Warn("record failed", attrs...)
	case Queued:
		b.logger.Debug("record deferred", attrs...)
	default:
		b.logger.Debug("record done", attrs...)
	}
	if b.OnOutcome != nil {
		b.OnOutcome(rec.Kind, o)
	}
}
