// Package uriqueue implements the URI Digest Queue (§4.B): a bounded,
// fire-and-forget worker pool that fetches agent URI documents and stores
// curated/derived fields back onto the agent's metadata rows.
package uriqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/agentindexer/internal/store"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

// Mode selects how much of a fetched URI document is persisted.
type Mode string

const (
	ModeOff    Mode = "off"
	ModeNormal Mode = "normal"
	ModeFull   Mode = "full"
)

// maxExtraFieldsFull bounds how many non-standard fields a `full`-mode fetch
// persists (§4.B).
const maxExtraFieldsFull = 50

// Config enumerates every queue option named in §4.B.
type Config struct {
	Concurrency      int
	QueueCapacity    int
	Mode             Mode
	MaxValueBytes    int
	MaxFetchBytes    int64
	FetchTimeout     time.Duration
	PurgeBeforeStore bool
}

// DefaultConfig mirrors the defaults enumerated in §4.B.
func DefaultConfig() Config {
	return Config{
		Concurrency:      5,
		QueueCapacity:    100,
		Mode:             ModeNormal,
		MaxValueBytes:    4096,
		MaxFetchBytes:    256 * 1024,
		FetchTimeout:     10 * time.Second,
		PurgeBeforeStore: true,
	}
}

type job struct {
	assetID string
	uri     string
}

// Queue is a bounded worker pool owned and stopped by the engine (§9: "never
// leak background tasks past stop()"). Grounded on the teacher's
// EventListener handlerSem pattern, generalized from a semaphore gate to a
// dedicated job channel with a fixed number of consumers.
type Queue struct {
	cfg     Config
	store   store.Store
	fetcher Fetcher
	log     *logger.Logger

	jobs    chan job
	wg      sync.WaitGroup
	stopCh  chan struct{}
	dropped uint64
}

// New constructs a Queue. If fetcher is nil, a rate-limited HTTP fetcher is
// used (see fetcher.go).
func New(cfg Config, s store.Store, fetcher Fetcher, log *logger.Logger) *Queue {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(cfg.MaxFetchBytes, cfg.FetchTimeout)
	}
	return &Queue{
		cfg:     cfg,
		store:   s,
		fetcher: fetcher,
		log:     log,
		jobs:    make(chan job, cfg.QueueCapacity),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the worker pool. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	if q.cfg.Mode == ModeOff {
		return
	}
	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop closes the stop channel and waits up to grace for the workers to
// return, then returns without waiting further. Workers do not drain the
// queue: each returns once it observes the closed stop channel, and jobs
// still queued at that point are abandoned.
func (q *Queue) Stop(grace time.Duration) {
	close(q.stopCh)
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		q.log.Warn("uriqueue: grace period elapsed, abandoning in-flight jobs")
	}
}

// Enqueue is non-blocking. A full queue drops the job, increments the
// dropped counter, and logs once every 10 drops (§4.B).
func (q *Queue) Enqueue(assetID, uri string) {
	if q.cfg.Mode == ModeOff {
		return
	}
	select {
	case q.jobs <- job{assetID: assetID, uri: uri}:
	default:
		n := atomic.AddUint64(&q.dropped, 1)
		if n%10 == 0 {
			q.log.WithField("dropped_total", n).Warn("uriqueue: queue full, dropping jobs")
		}
	}
}

// Dropped returns the total number of jobs dropped for a full queue.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }

// Stats is a snapshot of queue depth and cumulative drops, polled by the
// metrics collector.
type Stats struct {
	Depth   int
	Dropped uint64
}

func (q *Queue) Stats() Stats {
	return Stats{Depth: len(q.jobs), Dropped: atomic.LoadUint64(&q.dropped)}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			q.digestAndStore(ctx, j.assetID, j.uri)
		}
	}
}
