// Package engine wires the Store Gateway, Event Dispatcher, Atomic
// Ingestion Loop, URI Digest Queue, Verification Worker, and chain sources
// into one running process, grounded on the teacher's
// services/indexer.Service orchestrator.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/agentindexer/internal/chainsource"
	"github.com/R3E-Network/agentindexer/internal/config"
	"github.com/R3E-Network/agentindexer/internal/event"
	"github.com/R3E-Network/agentindexer/internal/ingest"
	"github.com/R3E-Network/agentindexer/internal/store"
	"github.com/R3E-Network/agentindexer/internal/store/postgres"
	"github.com/R3E-Network/agentindexer/internal/store/sqlite"
	"github.com/R3E-Network/agentindexer/internal/uriqueue"
	"github.com/R3E-Network/agentindexer/internal/verify"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

// Service is the main engine orchestrator: one Store, one Dispatcher, one
// Loop, one URI Queue, one Verification Worker, and whichever chainsource
// producers the configured SourceMode calls for.
type Service struct {
	cfg    *config.Config
	store  store.Store
	queue  *uriqueue.Queue
	loop   *ingest.Loop
	verify *verify.Worker
	poller *chainsource.Poller
	ws     *chainsource.WebSocketSource
	log    *logger.Logger

	items chan ingest.Item

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Decoder composes the chain RPC client needed to decode slots/frames into
// events; the engine treats it as an external collaborator per spec.md §1's
// scoping of raw-transaction fetch and decoding.
type Decoder interface {
	chainsource.Decoder
	chainsource.FrameDecoder
}

// RPC composes the chain RPC surfaces the poller and verifier need.
type RPC interface {
	chainsource.SlotFetcher
	verify.RPC
}

// New constructs a Service from a validated Config, an RPC collaborator,
// and a Decoder collaborator. Both are thin interfaces; rpcclient.Client and
// chainsource.NoopDecoder satisfy them, and cmd/indexer passes those in.
func New(cfg *config.Config, rpc RPC, decoder Decoder, log *logger.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	queue := uriqueue.New(cfg.URIQueue, s, nil, log)
	dispatcher := event.NewDispatcher(log, queue)
	loop := ingest.NewLoop(s, dispatcher, queue, log)
	verifyWorker := verify.NewWorker(s, rpc, cfg.Verify, log)

	items := make(chan ingest.Item, 256)

	svc := &Service{
		cfg:    cfg,
		store:  s,
		queue:  queue,
		loop:   loop,
		verify: verifyWorker,
		log:    log,
		items:  items,
	}

	if cfg.SourceMode == config.SourcePoller || cfg.SourceMode == config.SourceBoth {
		svc.poller = chainsource.NewPoller(chainsource.PollerConfig{Interval: cfg.Poller.Interval}, rpc, decoder, items, cfg.StartSlot, log)
	}
	if cfg.SourceMode == config.SourceWebsocket || cfg.SourceMode == config.SourceBoth {
		svc.ws = chainsource.NewWebSocketSource(chainsource.DefaultWebSocketConfig(cfg.WSURL), decoder, items, log)
	}

	return svc, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		return postgres.Open(cfg.GetPostgresDSN())
	default:
		return sqlite.Open(cfg.SQLitePath)
	}
}

// Start launches every component's background goroutine and returns once
// they are running. Call Stop to shut down cleanly.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("engine: already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.queue.Start(runCtx)

	if s.poller != nil {
		s.wg.Add(1)
		go func() { defer s.wg.Done(); s.poller.Run(runCtx) }()
	}
	if s.ws != nil {
		s.wg.Add(1)
		go func() { defer s.wg.Done(); s.ws.Run(runCtx) }()
	}

	s.wg.Add(1)
	go func() { defer s.wg.Done(); s.verify.Run(runCtx) }()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.loop.ProcessAll(runCtx, s.items); err != nil {
			s.log.WithField("err", err).Error("engine: ingestion loop stopped")
		}
	}()

	s.running = true
	s.log.WithField("backend", s.cfg.Backend).WithField("source_mode", s.cfg.SourceMode).Info("engine: started")
	return nil
}

// Stop signals every component to stop and waits for them to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	if s.poller != nil {
		s.poller.Stop()
	}
	if s.ws != nil {
		s.ws.Stop()
	}
	s.verify.Stop()
	s.cancel()
	s.wg.Wait()

	s.queue.Stop(s.cfg.URIQueue.FetchTimeout)
	if err := s.store.Close(); err != nil {
		s.log.WithField("err", err).Error("engine: close store")
	}

	s.running = false
	s.log.Info("engine: stopped")
}

// Store exposes the underlying Store Gateway, e.g. for wiring a read-only
// HTTP layer outside this repository's scope.
func (s *Service) Store() store.Store { return s.store }

// Queue exposes the URI Digest Queue, for metrics registration.
func (s *Service) Queue() *uriqueue.Queue { return s.queue }

// Verifier exposes the Verification Worker, for metrics registration.
func (s *Service) Verifier() *verify.Worker { return s.verify }
