package uriqueue

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/agentindexer/internal/store"
	"github.com/R3E-Network/agentindexer/internal/store/sqlite"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

type stubFetcher struct {
	result FetchResult
	err    error
}

func (s *stubFetcher) Fetch(ctx context.Context, uri string) (FetchResult, error) {
	return s.result, s.err
}

func seedAgent(t *testing.T, s *sqlite.Store, assetID, uri string) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = tx.UpsertAgent(ctx, store.AgentCreate{Asset: assetID, Owner: "o", URI: uri, CreatedSlot: 1, CreatedTxSignature: "s"}, store.AgentUpdate{URI: uri})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestDigestAndStoreWritesStandardFields(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	seedAgent(t, s, "asset1", "ipfs://doc1")

	fetcher := &stubFetcher{result: FetchResult{Status: "ok", Bytes: 10, Fields: map[string]string{"name": "Agent One", "description": "desc"}}}
	q := New(Config{Concurrency: 1, QueueCapacity: 10, Mode: ModeNormal, MaxValueBytes: 4096, PurgeBeforeStore: true}, s, fetcher, logger.NewDefault("test"))

	q.digestAndStore(context.Background(), "asset1", "ipfs://doc1")

	empty, exists, err := func() (bool, bool, error) {
		tx, err := s.Begin(context.Background())
		if err != nil {
			return false, false, err
		}
		defer tx.Rollback()
		return tx.GetAgentNFTNameEmpty(context.Background(), "asset1")
	}()
	if err != nil || !exists || empty {
		t.Fatalf("expected nft_name filled from _uri:name: empty=%v exists=%v err=%v", empty, exists, err)
	}
}

func TestDigestAndStoreAbortsOnRace(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	seedAgent(t, s, "asset1", "ipfs://newer")

	fetcher := &stubFetcher{result: FetchResult{Status: "ok", Fields: map[string]string{"name": "ShouldNotApply"}}}
	q := New(Config{Concurrency: 1, QueueCapacity: 10, Mode: ModeNormal, MaxValueBytes: 4096}, s, fetcher, logger.NewDefault("test"))

	// Job carries a stale URI; the agent has since moved on to "ipfs://newer".
	q.digestAndStore(context.Background(), "asset1", "ipfs://stale")

	empty, exists, err := func() (bool, bool, error) {
		tx, err := s.Begin(context.Background())
		if err != nil {
			return false, false, err
		}
		defer tx.Rollback()
		return tx.GetAgentNFTNameEmpty(context.Background(), "asset1")
	}()
	if err != nil || !exists || !empty {
		t.Fatalf("race protection failed to abort: empty=%v exists=%v err=%v", empty, exists, err)
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	fetcher := &stubFetcher{result: FetchResult{Status: "ok"}}
	q := New(Config{Concurrency: 0, QueueCapacity: 1, Mode: ModeNormal, MaxValueBytes: 4096}, s, fetcher, logger.NewDefault("test"))

	q.Enqueue("a1", "u1")
	q.Enqueue("a2", "u2") // queue capacity 1, no workers draining: this drops
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 drop, got %d", q.Dropped())
	}
}

func TestQueueStartStop(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	seedAgent(t, s, "asset1", "ipfs://doc1")

	fetcher := &stubFetcher{result: FetchResult{Status: "ok", Fields: map[string]string{"name": "x"}}}
	q := New(DefaultConfig(), s, fetcher, logger.NewDefault("test"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Start(ctx)
	q.Enqueue("asset1", "ipfs://doc1")
	time.Sleep(50 * time.Millisecond)
	q.Stop(time.Second)
}
