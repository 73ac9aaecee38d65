package chainsource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/R3E-Network/agentindexer/internal/event"
	"github.com/R3E-Network/agentindexer/internal/ingest"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

type stubSlotFetcher struct {
	mu   sync.Mutex
	slot uint64
}

func (s *stubSlotFetcher) GetSlot(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot, nil
}

func (s *stubSlotFetcher) advance(to uint64) {
	s.mu.Lock()
	s.slot = to
	s.mu.Unlock()
}

type stubDecoder struct {
	mu      sync.Mutex
	decoded []uint64
}

func (d *stubDecoder) DecodeSlot(ctx context.Context, slot uint64) ([]ingest.Item, error) {
	d.mu.Lock()
	d.decoded = append(d.decoded, slot)
	d.mu.Unlock()
	return []ingest.Item{{
		Event:   event.Event{Kind: event.KindAtomEnabled, Payload: event.AtomEnabledPayload{}},
		Context: event.Context{Slot: slot},
	}}, nil
}

func TestPollerWalksSlotsInOrder(t *testing.T) {
	rpc := &stubSlotFetcher{slot: 3}
	decoder := &stubDecoder{}
	out := make(chan ingest.Item, 16)

	p := NewPoller(PollerConfig{Interval: time.Millisecond}, rpc, decoder, out, 0, logger.NewDefault("test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for len(decoder.decoded) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for slots to decode, got %v", decoder.decoded)
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done

	decoder.mu.Lock()
	defer decoder.mu.Unlock()
	if len(decoder.decoded) < 3 || decoder.decoded[0] != 1 || decoder.decoded[1] != 2 || decoder.decoded[2] != 3 {
		t.Fatalf("expected slots [1 2 3] decoded in order, got %v", decoder.decoded)
	}

	for i := 0; i < 3; i++ {
		item := <-out
		if item.Context.Source != event.SourcePoller {
			t.Fatalf("expected poller source tag, got %v", item.Context.Source)
		}
	}
}

func TestPollerStopIsClean(t *testing.T) {
	rpc := &stubSlotFetcher{slot: 0}
	decoder := &stubDecoder{}
	out := make(chan ingest.Item, 4)
	p := NewPoller(PollerConfig{Interval: time.Millisecond}, rpc, decoder, out, 0, logger.NewDefault("test"))

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	p.Stop()
	<-done
}
