package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/agentindexer/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAgentIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	create := store.AgentCreate{Asset: "asset1", Owner: "owner1", URI: "ipfs://a", Collection: "col1", RegistryID: "reg1", CreatedSlot: 10, CreatedTxSignature: "sig1"}
	update := store.AgentUpdate{Collection: "col1", RegistryID: "reg1", URI: "ipfs://a"}

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id, created, err := tx.UpsertAgent(ctx, create, update)
	if err != nil || !created || id != "asset1" {
		t.Fatalf("first upsert: id=%s created=%v err=%v", id, created, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	// Re-applying the identical event must be a no-op create (created=false).
	tx2, _ := s.Begin(ctx)
	id2, created2, err := tx2.UpsertAgent(ctx, create, update)
	if err != nil || created2 || id2 != "asset1" {
		t.Fatalf("replay upsert: id=%s created=%v err=%v", id2, created2, err)
	}
	tx2.Commit()
}

func TestMetadataImmutabilityMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	if err := tx.UpsertMetadata(ctx, "agent1", "k1", []byte("v1"), store.MetadataFormatRaw, true, 1, "sig1"); err != nil {
		t.Fatal(err)
	}
	tx.Commit()

	tx2, _ := s.Begin(ctx)
	if err := tx2.UpsertMetadata(ctx, "agent1", "k1", []byte("v2"), store.MetadataFormatRaw, false, 2, "sig2"); err != nil {
		t.Fatal(err)
	}
	tx2.Commit()

	var value []byte
	if err := s.db.QueryRow(`SELECT value FROM agent_metadata WHERE agent_id = 'agent1' AND key = 'k1'`).Scan(&value); err != nil {
		t.Fatal(err)
	}
	if string(value) != "v1" {
		t.Fatalf("immutable metadata overwritten: got %q, want v1", value)
	}
}

func TestOrphanResponseReconciliationOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	for i, responder := range []string{"r1", "r2", "r3"} {
		o := store.OrphanResponse{AgentID: "a1", Client: "c1", FeedbackIndex: 5, Responder: responder, TxSignature: "sig" + responder, Slot: uint64(100 + i)}
		if err := tx.UpsertOrphanResponse(ctx, o); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	tx.Commit()

	tx2, _ := s.Begin(ctx)
	found, err := tx2.FindOrphanResponses(ctx, "a1", "c1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 3 {
		t.Fatalf("want 3 orphans, got %d", len(found))
	}
	if found[0].Responder != "r1" || found[2].Responder != "r3" {
		t.Fatalf("orphans not in insertion order: %+v", found)
	}
	tx2.Commit()
}

func TestCursorMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	if err := tx.UpsertCursorMonotonic(ctx, store.Cursor{LastSlot: 100, LastSignature: "sigA", Source: "poller"}); err != nil {
		t.Fatal(err)
	}
	tx.Commit()

	// A lower slot must not move the cursor backward.
	tx2, _ := s.Begin(ctx)
	if err := tx2.UpsertCursorMonotonic(ctx, store.Cursor{LastSlot: 50, LastSignature: "sigB", Source: "poller"}); err != nil {
		t.Fatal(err)
	}
	tx2.Commit()

	c, err := s.ReadCursor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.LastSlot != 100 || c.LastSignature != "sigA" {
		t.Fatalf("cursor moved backward: %+v", c)
	}
}

func TestAgentPatchWalletReset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	tx.UpsertAgent(ctx, store.AgentCreate{Asset: "a1", Owner: "o1", CreatedSlot: 1, CreatedTxSignature: "s1"}, store.AgentUpdate{})
	wallet := "wallet1"
	if _, err := tx.UpdateAgentFields(ctx, "a1", store.AgentPatch{Wallet: &wallet}); err != nil {
		t.Fatal(err)
	}
	tx.Commit()

	tx2, _ := s.Begin(ctx)
	n, err := tx2.UpdateAgentFields(ctx, "a1", store.AgentPatch{WalletReset: true})
	if err != nil || n != 1 {
		t.Fatalf("wallet reset: n=%d err=%v", n, err)
	}
	tx2.Commit()

	var wallet2 *string
	if err := s.db.QueryRow(`SELECT wallet FROM agents WHERE asset = 'a1'`).Scan(&wallet2); err != nil {
		t.Fatal(err)
	}
	if wallet2 != nil {
		t.Fatalf("wallet not reset to absent: %v", *wallet2)
	}
}

func TestFeedbackResponseNaturalKeyIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	fb := store.Feedback{AgentID: "a1", Client: "c1", FeedbackIndex: 1, Value: "10", CreatedSlot: 5}
	id, created, err := tx.UpsertFeedback(ctx, fb)
	if err != nil || !created {
		t.Fatalf("create feedback: %v %v", created, err)
	}
	resp := store.FeedbackResponse{FeedbackID: id, Responder: "resp1", TxSignature: "sig1", Slot: 6}
	respID, err := tx.UpsertFeedbackResponse(ctx, resp)
	if err != nil {
		t.Fatal(err)
	}
	respID2, err := tx.UpsertFeedbackResponse(ctx, resp)
	if err != nil {
		t.Fatal(err)
	}
	if respID != respID2 {
		t.Fatalf("duplicate response created a new row: %s vs %s", respID, respID2)
	}
	tx.Commit()
}
