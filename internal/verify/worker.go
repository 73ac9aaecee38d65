// Package verify implements the Verification Worker (§4.E): a periodic task
// that transitions PENDING rows to FINALIZED or ORPHANED by probing chain
// account existence at a safety-depth cutoff behind the current head.
package verify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/agentindexer/internal/store"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

// Config configures one verification tick.
type Config struct {
	Interval     time.Duration
	SafetyDepth  uint64
	PageSize     int
	Retry        RetryPolicy
	OrphanMaxAge time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:     60 * time.Second,
		SafetyDepth:  600,
		PageSize:     200,
		Retry:        DefaultRetryPolicy(),
		OrphanMaxAge: 30 * time.Minute,
	}
}

// Stats are the per-kind counters exposed by Stats() (teacher idiom:
// neoindexer.Service.statistics()).
type Stats struct {
	Finalized map[store.PendingKind]uint64
	Orphaned  map[store.PendingKind]uint64
	Ticks     uint64
}

// Worker runs the periodic verification tick. Scheduling uses
// cron.ConstantDelaySchedule for its fixed-delay, jitter-free cadence rather
// than a bare time.Ticker.
type Worker struct {
	store store.Store
	rpc   RPC
	cfg   Config
	log   *logger.Logger

	schedule cron.Schedule
	running  int32 // non-reentrancy guard; 0 = idle, 1 = tick in flight
	stopCh   chan struct{}
	doneCh   chan struct{}

	finalized map[store.PendingKind]*uint64
	orphaned  map[store.PendingKind]*uint64
	ticks     uint64
}

var verifiableKinds = []store.PendingKind{
	store.PendingAgent,
	store.PendingRegistry,
	store.PendingMetadata,
	store.PendingURIMetadata,
	store.PendingValidation,
	store.PendingFeedback,
	store.PendingFeedbackResponse,
}

func NewWorker(s store.Store, rpc RPC, cfg Config, log *logger.Logger) *Worker {
	w := &Worker{
		store:     s,
		rpc:       rpc,
		cfg:       cfg,
		log:       log,
		schedule:  cron.ConstantDelaySchedule{Delay: cfg.Interval},
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		finalized: map[store.PendingKind]*uint64{},
		orphaned:  map[store.PendingKind]*uint64{},
	}
	for _, k := range verifiableKinds {
		w.finalized[k] = new(uint64)
		w.orphaned[k] = new(uint64)
	}
	return w
}

// Run blocks, ticking at cfg.Interval until Stop is called or ctx is
// cancelled. The reentrancy guard skips a tick that would start while the
// previous one is still running, rather than queueing it (§4.E, §5).
func (w *Worker) Run(ctx context.Context) {
	defer close(w.doneCh)
	next := w.schedule.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-timer.C:
			w.tryTick(ctx)
			next = w.schedule.Next(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}

// Stop signals Run to return at the next tick boundary (§5: "stop the
// Verification Worker at its next tick boundary").
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) tryTick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		w.log.Debug("verify: tick skipped, previous tick still running")
		return
	}
	defer atomic.StoreInt32(&w.running, 0)

	if err := w.tick(ctx); err != nil {
		w.log.WithField("err", err).Error("verify: tick failed")
	}
	atomic.AddUint64(&w.ticks, 1)
}

func (w *Worker) tick(ctx context.Context) error {
	head, err := w.rpc.GetSlot(ctx)
	if err != nil {
		return err
	}
	if head < w.cfg.SafetyDepth {
		// New network; no slot is old enough to be behind the safety window.
		return nil
	}
	cutoff := head - w.cfg.SafetyDepth
	now := time.Now().UTC()

	for _, kind := range verifiableKinds {
		if err := w.verifyKind(ctx, kind, cutoff, now); err != nil {
			w.log.WithField("kind", kind).WithField("err", err).Error("verify: kind failed")
		}
	}

	if n, err := w.store.PurgeOrphansOlderThan(ctx, w.cfg.OrphanMaxAge); err != nil {
		w.log.WithField("err", err).Error("verify: purge orphans failed")
	} else if n > 0 {
		w.log.WithField("count", n).Debug("verify: purged stale orphan responses")
	}
	return nil
}

func (w *Worker) verifyKind(ctx context.Context, kind store.PendingKind, cutoff uint64, now time.Time) error {
	afterKey := ""
	for {
		rows, err := w.store.PagePending(ctx, kind, cutoff, w.cfg.PageSize, afterKey)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		var finalizedIDs, orphanedIDs []string
		for _, row := range rows {
			finalized, err := w.classify(ctx, kind, row)
			if err != nil {
				w.log.WithField("kind", kind).WithField("id", row.ID).WithField("err", err).Error("verify: classify failed")
				continue
			}
			if finalized {
				finalizedIDs = append(finalizedIDs, row.ID)
			} else {
				orphanedIDs = append(orphanedIDs, row.ID)
			}
			afterKey = row.ID
		}

		if len(finalizedIDs) > 0 {
			if err := w.store.SetStatus(ctx, kind, finalizedIDs, store.StatusFinalized, now, cutoff); err != nil {
				return err
			}
			atomic.AddUint64(w.finalized[kind], uint64(len(finalizedIDs)))
		}
		if len(orphanedIDs) > 0 {
			if err := w.store.SetStatus(ctx, kind, orphanedIDs, store.StatusOrphaned, now, cutoff); err != nil {
				return err
			}
			atomic.AddUint64(w.orphaned[kind], uint64(len(orphanedIDs)))
		}

		if len(rows) < w.cfg.PageSize {
			return nil
		}
	}
}

// classify returns true if row should transition to FINALIZED, false for
// ORPHANED, per the per-kind rules in §4.E.
func (w *Worker) classify(ctx context.Context, kind store.PendingKind, row store.PendingRow) (bool, error) {
	switch kind {
	case store.PendingURIMetadata:
		return true, nil // finalized directly, no on-chain check
	case store.PendingFeedback:
		status, exists, err := w.store.GetAgentStatus(ctx, row.ParentAgentID)
		if err != nil {
			return false, err
		}
		if exists && status == store.StatusOrphaned {
			return false, nil
		}
		return true, nil
	case store.PendingFeedbackResponse:
		agentStatus, agentExists, err := w.store.GetAgentStatus(ctx, row.ParentAgentID)
		if err != nil {
			return false, err
		}
		if !agentExists {
			return false, nil
		}
		fbStatus, fbExists, err := w.store.GetFeedbackStatus(ctx, row.ParentFeedbackID)
		if err != nil {
			return false, err
		}
		if !fbExists || agentStatus == store.StatusOrphaned || fbStatus == store.StatusOrphaned {
			return false, nil
		}
		return true, nil
	default: // Agent, Registry, Metadata, Validation: probe the chain.
		return getAccountWithRetry(ctx, w.rpc, row.PDA, w.cfg.Retry, w.log), nil
	}
}

// Stats returns a snapshot of per-kind finalized/orphaned counters and the
// total number of ticks run.
func (w *Worker) Stats() Stats {
	out := Stats{
		Finalized: make(map[store.PendingKind]uint64, len(w.finalized)),
		Orphaned:  make(map[store.PendingKind]uint64, len(w.orphaned)),
		Ticks:     atomic.LoadUint64(&w.ticks),
	}
	for k, v := range w.finalized {
		out.Finalized[k] = atomic.LoadUint64(v)
	}
	for k, v := range w.orphaned {
		out.Orphaned[k] = atomic.LoadUint64(v)
	}
	return out
}
