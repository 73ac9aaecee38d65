package verify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/R3E-Network/agentindexer/internal/store"
	"github.com/R3E-Network/agentindexer/internal/store/sqlite"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

type stubRPC struct {
	mu       sync.Mutex
	slot     uint64
	present  map[string]bool // pda -> exists; missing key treated as absent
	calls    map[string]int
}

func newStubRPC(slot uint64) *stubRPC {
	return &stubRPC{slot: slot, present: map[string]bool{}, calls: map[string]int{}}
}

func (s *stubRPC) GetSlot(ctx context.Context) (uint64, error) {
	return s.slot, nil
}

func (s *stubRPC) GetAccountInfo(ctx context.Context, pda string) (Account, error) {
	s.mu.Lock()
	s.calls[pda]++
	s.mu.Unlock()
	return Account{Exists: s.present[pda]}, nil
}

func testLogger() *logger.Logger {
	return logger.NewDefault("verify-test")
}

func seedPendingAgent(t *testing.T, s store.Store, asset string, slot uint64) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	create := store.AgentCreate{Asset: asset, Owner: "owner1", Collection: "col1", RegistryID: "reg1", CreatedSlot: slot, CreatedTxSignature: "sig"}
	update := store.AgentUpdate{Collection: "col1", RegistryID: "reg1"}
	if _, _, err := tx.UpsertAgent(ctx, create, update); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

// TestAgentFinalizesWhenAccountPresentAtCutoff covers scenario 5's finalize
// path: an agent created at slot 100 is still present on-chain once the
// cutoff passes it, so the worker promotes it to FINALIZED.
func TestAgentFinalizesWhenAccountPresentAtCutoff(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	seedPendingAgent(t, s, "asset1", 100)

	rpc := newStubRPC(700)
	rpc.present["asset1"] = true

	cfg := DefaultConfig()
	cfg.SafetyDepth = 600
	w := NewWorker(s, rpc, cfg, testLogger())

	ctx := context.Background()
	if err := w.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	status, exists, err := s.GetAgentStatus(ctx, "asset1")
	if err != nil {
		t.Fatal(err)
	}
	if !exists || status != store.StatusFinalized {
		t.Fatalf("expected FINALIZED, got exists=%v status=%v", exists, status)
	}
	stats := w.Stats()
	if stats.Finalized[store.PendingAgent] != 1 {
		t.Fatalf("expected 1 finalized agent, got %d", stats.Finalized[store.PendingAgent])
	}
}

// TestAgentOrphansAfterRetriesExhausted covers scenario 5's orphan path: the
// account is absent on every retry attempt, so the worker marks ORPHANED
// after exhausting the retry policy.
func TestAgentOrphansAfterRetriesExhausted(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	seedPendingAgent(t, s, "asset2", 100)

	rpc := newStubRPC(700) // asset2 left absent in rpc.present

	cfg := DefaultConfig()
	cfg.SafetyDepth = 600
	cfg.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	w := NewWorker(s, rpc, cfg, testLogger())

	ctx := context.Background()
	if err := w.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	status, exists, err := s.GetAgentStatus(ctx, "asset2")
	if err != nil {
		t.Fatal(err)
	}
	if !exists || status != store.StatusOrphaned {
		t.Fatalf("expected ORPHANED, got exists=%v status=%v", exists, status)
	}
	if rpc.calls["asset2"] != 3 {
		t.Fatalf("expected 3 retry attempts, got %d", rpc.calls["asset2"])
	}
}

// TestFeedbackInheritsParentAgentOrphanedStatus covers the cascaded
// classification rule: a Feedback row has no PDA of its own, so it orphans
// iff its parent Agent is ORPHANED.
func TestFeedbackInheritsParentAgentOrphanedStatus(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	seedPendingAgent(t, s, "asset3", 50)
	if err := s.SetStatus(ctx, store.PendingAgent, []string{"asset3"}, store.StatusOrphaned, time.Now(), 50); err != nil {
		t.Fatal(err)
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	fb := store.Feedback{AgentID: "asset3", Client: "client1", FeedbackIndex: 0, CreatedSlot: 100}
	if _, _, err := tx.UpsertFeedback(ctx, fb); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	rpc := newStubRPC(700)
	cfg := DefaultConfig()
	cfg.SafetyDepth = 600
	w := NewWorker(s, rpc, cfg, testLogger())

	if err := w.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	stats := w.Stats()
	if stats.Orphaned[store.PendingFeedback] != 1 {
		t.Fatalf("expected feedback to orphan alongside its parent agent, got orphaned=%d finalized=%d",
			stats.Orphaned[store.PendingFeedback], stats.Finalized[store.PendingFeedback])
	}
}

func TestStopEndsRun(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rpc := newStubRPC(10)
	cfg := DefaultConfig()
	cfg.Interval = time.Millisecond
	cfg.SafetyDepth = 1000 // head < safety depth, tick is a no-op
	w := NewWorker(s, rpc, cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	w.Stop()
	<-done
}
