// Package chainsource adapts chain-facing producers (an RPC poller, a
// WebSocket subscription feed) into the (event.Event, event.Context) pairs
// the Atomic Ingestion Loop consumes. Neither adapter decodes raw
// transactions itself; that stays behind the Decoder boundary so this
// package carries no RPC client implementation of its own.
package chainsource

import (
	"context"
	"time"

	"github.com/R3E-Network/agentindexer/internal/event"
	"github.com/R3E-Network/agentindexer/internal/ingest"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

// SlotFetcher is the minimal chain RPC surface the poller needs: the
// current slot. Decoding a slot's events is left to Decoder.
type SlotFetcher interface {
	GetSlot(ctx context.Context) (uint64, error)
}

// Decoder turns one newly observed slot into the events it contained, in
// on-chain order. tx_index is always populated by a poller-fed decoder,
// since the poller walks committed blocks.
type Decoder interface {
	DecodeSlot(ctx context.Context, slot uint64) ([]ingest.Item, error)
}

// PollerConfig configures Poller's sync cadence.
type PollerConfig struct {
	Interval time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Interval: 2 * time.Second}
}

// Poller walks the chain slot by slot on a fixed interval, grounded on the
// teacher's Syncer.syncLoop/syncBlocksForNetwork ticker pattern.
type Poller struct {
	cfg     PollerConfig
	rpc     SlotFetcher
	decoder Decoder
	out     chan<- ingest.Item
	log     *logger.Logger

	lastSlot uint64
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewPoller(cfg PollerConfig, rpc SlotFetcher, decoder Decoder, out chan<- ingest.Item, startSlot uint64, log *logger.Logger) *Poller {
	return &Poller{
		cfg:      cfg,
		rpc:      rpc,
		decoder:  decoder,
		out:      out,
		log:      log,
		lastSlot: startSlot,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run blocks, polling until ctx is cancelled or Stop is called.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Poller) pollOnce(ctx context.Context) {
	head, err := p.rpc.GetSlot(ctx)
	if err != nil {
		p.log.WithField("err", err).Error("chainsource: get_slot failed")
		return
	}
	for slot := p.lastSlot + 1; slot <= head; slot++ {
		items, err := p.decoder.DecodeSlot(ctx, slot)
		if err != nil {
			p.log.WithField("slot", slot).WithField("err", err).Error("chainsource: decode slot failed")
			return // retry this slot next tick rather than skip it
		}
		for _, item := range items {
			item.Context.Source = event.SourcePoller
			select {
			case p.out <- item:
			case <-ctx.Done():
				return
			}
		}
		p.lastSlot = slot
	}
}
