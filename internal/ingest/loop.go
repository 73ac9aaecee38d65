// Package ingest implements the Atomic Ingestion Loop (§4.D): one
// transaction per event, wrapping the Event Dispatcher and the monotonic
// cursor advance, with a post-commit URI-digest enqueue step.
package ingest

import (
	"context"
	"fmt"

	"github.com/R3E-Network/agentindexer/internal/event"
	"github.com/R3E-Network/agentindexer/internal/store"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

// Loop processes events from a single source strictly in the order it
// receives them (§5: "Atomic Ingestion Loop processes events for a single
// source strictly in caller-provided order").
type Loop struct {
	store      store.Store
	dispatcher *event.Dispatcher
	uri        event.URIEnqueuer
	log        *logger.Logger
}

func NewLoop(s store.Store, d *event.Dispatcher, uri event.URIEnqueuer, log *logger.Logger) *Loop {
	return &Loop{store: s, dispatcher: d, uri: uri, log: log}
}

// Process ingests a single (Event, Context) pair in one transaction. An
// error from Begin, from a handler (store errors included), from the cursor
// upsert or from Commit is returned wrapped, after rolling back any open
// transaction. Out-of-order events are reported through Outcome.Warning,
// which is logged, with a nil error; writes to immutable metadata rows are
// skipped by the store without an error.
func (l *Loop) Process(ctx context.Context, ev event.Event, evctx event.Context) error {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ingest: begin: %w", err)
	}

	outcome, err := l.dispatcher.Dispatch(ctx, tx, ev, evctx)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("ingest: dispatch %s: %w", ev.Kind, err)
	}
	if outcome.Warning != "" {
		l.log.WithField("kind", ev.Kind).WithField("slot", evctx.Slot).Warn(outcome.Warning)
	}

	source := string(evctx.Source)
	if source == "" {
		source = string(event.SourcePoller)
	}
	// A no-op when the stored slot already covers this event; the data
	// writes above still commit, which is what makes replay idempotent
	// rather than a wasted transaction (§4.D, §9 Open Question).
	if err := tx.UpsertCursorMonotonic(ctx, store.Cursor{
		LastSlot:      evctx.Slot,
		LastSignature: evctx.TxSignature,
		Source:        source,
	}); err != nil {
		tx.Rollback()
		return fmt.Errorf("ingest: cursor upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ingest: commit: %w", err)
	}

	if outcome.EnqueueURI && l.uri != nil {
		l.uri.Enqueue(outcome.EnqueueAsset, outcome.EnqueueValue)
	}
	return nil
}

// ProcessAll drains a channel of (Event, Context) pairs sequentially until
// the channel closes or ctx is cancelled, matching the "drop the engine"
// cancellation contract (§5): in-flight transactions still commit or roll
// back before Process returns.
func (l *Loop) ProcessAll(ctx context.Context, events <-chan Item) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-events:
			if !ok {
				return nil
			}
			if err := l.Process(ctx, item.Event, item.Context); err != nil {
				return err
			}
		}
	}
}

// Item pairs a decoded event with its transaction context, the unit a
// chainsource hands to the loop.
type Item struct {
	Event   event.Event
	Context event.Context
}
