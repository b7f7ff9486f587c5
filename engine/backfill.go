/*
backfill.go - Backfill orchestration

PURPOSE:
  Drives the event store reader over a historical window in fixed-size pages
  and runs every event through the shared pipeline. Re-running the same
  window is the primary recovery mechanism for partial failures: every write
  downstream is idempotent, so the final state never changes and the second
  run's "created" counters come back zero.

FAILURE MODEL:
  - One event failing never aborts its page; it is counted and logged.
  - Page reads and transient event failures are retried with exponential
    backoff up to a bounded attempt count; exhaustion fails the page.
  - Cancellation is page-granular: the context is checked between pages and
    everything already written stays committed.

COUNTERS:
  All statistics accumulate in one explicit Result value threaded through the
  run and returned at the end - there is no shared mutable state.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result accumulates the observable outcome of one backfill run.
type Result struct {
	EventsRead     int `json:"events_read"`
	Relevant       int `json:"events_relevant"`
	OrdersCreated  int `json:"orders_created"`
	OrdersUpdated  int `json:"orders_updated"`
	ItemsCreated   int `json:"items_created"`
	EntriesCreated int `json:"entries_created"`
	EntriesSkipped int `json:"entries_skipped"`
	Snapshots      int `json:"snapshots_written"`
	Errors         int `json:"errors"`
}

func (r *Result) absorb(out EventOutcome) {
	if out.Relevant {
		r.Relevant++
	}
	if out.Projection.OrderCreated {
		r.OrdersCreated++
	}
	if out.Projection.OrderUpdated {
		r.OrdersUpdated++
	}
	if out.Projection.ItemCreated {
		r.ItemsCreated++
	}
	r.EntriesCreated += out.Ledger.Created
	r.EntriesSkipped += out.Ledger.Skipped
	if out.Snapshot == SnapshotInserted {
		r.Snapshots++
	}
}

// BackfillRequest describes one orchestrator run.
type BackfillRequest struct {
	Tenant      string
	Provider    string
	WindowStart time.Time
	WindowEnd   time.Time
	PageSize    int
	Order       ReadOrder
	DryRun      bool
}

func (req *BackfillRequest) normalize() {
	if req.PageSize <= 0 {
		req.PageSize = 100
	}
	if req.Order == "" {
		req.Order = NewestFirst
	}
	if req.WindowEnd.IsZero() {
		req.WindowEnd = time.Now().UTC()
	}
}

// Orchestrator runs backfills for one tenant stream at a time.
type Orchestrator struct {
	Events     EventStore
	Runs       RunStore
	Pipeline   *Pipeline
	Logger     *zap.Logger
	MaxRetries uint
}

func NewOrchestrator(store Store, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		Events:     store,
		Runs:       store,
		Pipeline:   NewPipeline(store, logger),
		Logger:     logger,
		MaxRetries: 3,
	}
}

// Run executes the backfill and returns the accumulated result. The result
// is valid even on error: prior pages stay committed and the window can be
// re-run safely.
func (o *Orchestrator) Run(ctx context.Context, req BackfillRequest) (Result, error) {
	req.normalize()
	o.Pipeline.DryRun = req.DryRun

	run := BackfillRun{
		ID:          uuid.NewString(),
		Tenant:      req.Tenant,
		Provider:    req.Provider,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		PageSize:    req.PageSize,
		DryRun:      req.DryRun,
		Status:      RunRunning,
		StartedAt:   time.Now().UTC(),
	}
	o.recordStart(ctx, run)

	result, runErr := o.pages(ctx, req)

	run.Result = result
	run.CompletedAt = time.Now().UTC()
	run.Status = RunCompleted
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	}
	o.recordFinish(ctx, run)

	o.Logger.Info("backfill finished",
		zap.String("run", run.ID),
		zap.String("tenant", req.Tenant),
		zap.String("status", string(run.Status)),
		zap.Int("events_read", result.EventsRead),
		zap.Int("orders_created", result.OrdersCreated),
		zap.Int("entries_created", result.EntriesCreated),
		zap.Int("entries_skipped", result.EntriesSkipped),
		zap.Int("errors", result.Errors))
	return result, runErr
}

func (o *Orchestrator) pages(ctx context.Context, req BackfillRequest) (Result, error) {
	var result Result
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := o.readPage(ctx, req, offset)
		if err != nil {
			return result, fmt.Errorf("page at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			return result, nil
		}

		for _, e := range page {
			if e.ReceivedAt.After(req.WindowEnd) {
				continue
			}
			result.EventsRead++

			out, err := o.processWithRetry(ctx, e)
			if err != nil {
				result.Errors++
				o.Logger.Error("event failed",
					zap.String("event", e.ProviderEventID),
					zap.String("kind", string(e.Kind)),
					zap.Error(err))
				continue
			}
			result.absorb(out)
		}

		if len(page) < req.PageSize {
			return result, nil
		}
		offset += len(page)
	}
}

// readPage fetches one page with bounded exponential backoff. Read failures
// are assumed transient (timeouts, lock contention) until retries exhaust.
func (o *Orchestrator) readPage(ctx context.Context, req BackfillRequest, offset int) ([]RawEvent, error) {
	return backoff.RetryWithData(func() ([]RawEvent, error) {
		return o.Events.ReadPage(ctx, req.Tenant, req.Provider, req.WindowStart, req.Order, req.PageSize, offset)
	}, o.policy(ctx))
}

// processWithRetry runs one event, retrying only transient store failures.
// Unresolvable orders and other permanent faults fail immediately and are
// counted by the caller.
func (o *Orchestrator) processWithRetry(ctx context.Context, e RawEvent) (EventOutcome, error) {
	return backoff.RetryWithData(func() (EventOutcome, error) {
		out, err := o.Pipeline.ProcessEvent(ctx, e)
		if err != nil && !IsRetryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}, o.policy(ctx))
}

func (o *Orchestrator) policy(ctx context.Context) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 100 * time.Millisecond
	expo.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(o.MaxRetries)), ctx)
}

// Run records are observability, not financial state: a failure to persist
// one is logged and swallowed, and dry runs write nothing at all.
func (o *Orchestrator) recordStart(ctx context.Context, run BackfillRun) {
	if o.Runs == nil || run.DryRun {
		return
	}
	if err := o.Runs.InsertRun(ctx, run); err != nil {
		o.Logger.Warn("failed to record backfill start", zap.Error(err))
	}
}

func (o *Orchestrator) recordFinish(ctx context.Context, run BackfillRun) {
	if o.Runs == nil || run.DryRun {
		return
	}
	if err := o.Runs.FinishRun(ctx, run); err != nil {
		o.Logger.Warn("failed to record backfill finish", zap.Error(err))
	}
}
