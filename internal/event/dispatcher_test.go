package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agentindexer/internal/store"
	"github.com/R3E-Network/agentindexer/internal/store/sqlite"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

type noopEnqueuer struct{ calls []string }

func (n *noopEnqueuer) Enqueue(assetID, uri string) { n.calls = append(n.calls, assetID+":"+uri) }

func newTestDispatcher(t *testing.T) (*Dispatcher, *sqlite.Store) {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return NewDispatcher(logger.NewDefault("test"), &noopEnqueuer{}), s
}

func dispatchOne(t *testing.T, s *sqlite.Store, d *Dispatcher, ev Event, evctx Context) Outcome {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	out, err := d.Dispatch(ctx, tx, ev, evctx)
	if err != nil {
		tx.Rollback()
		t.Fatalf("dispatch %s: %v", ev.Kind, err)
	}
	if err := tx.UpsertCursorMonotonic(ctx, store.Cursor{LastSlot: evctx.Slot, LastSignature: evctx.TxSignature, Source: string(evctx.Source)}); err != nil {
		tx.Rollback()
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return out
}

var assetA = [32]byte{1, 2, 3}

func TestSimpleRegistration(t *testing.T) {
	d, s := newTestDispatcher(t)
	ev := Event{Kind: KindAgentRegisteredInRegistry, Payload: AgentRegisteredInRegistryPayload{
		Asset: assetA, Owner: "ownerX", URI: "ipfs://X", AtomEnabled: true,
	}}
	out := dispatchOne(t, s, d, ev, Context{Slot: 100, TxSignature: "sigReg", Source: SourcePoller})
	require.True(t, out.EnqueueURI)
	require.Equal(t, "ipfs://X", out.EnqueueValue)

	c, err := s.ReadCursor(context.Background())
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, uint64(100), c.LastSlot)
}

func TestOutOfOrderOwnerSync(t *testing.T) {
	d, s := newTestDispatcher(t)
	ctx := context.Background()

	ownerSync := Event{Kind: KindAgentOwnerSynced, Payload: AgentOwnerSyncedPayload{Asset: assetA, NewOwner: "B"}}
	out := dispatchOne(t, s, d, ownerSync, Context{Slot: 99, TxSignature: "sigSync", Source: SourcePoller})
	if out.Warning == "" {
		t.Fatal("expected warning for owner sync before registration")
	}

	reg := Event{Kind: KindAgentRegisteredInRegistry, Payload: AgentRegisteredInRegistryPayload{
		Asset: assetA, Owner: "A-original",
	}}
	dispatchOne(t, s, d, reg, Context{Slot: 100, TxSignature: "sigReg", Source: SourcePoller})

	tx, _ := s.Begin(ctx)
	uri, exists, err := tx.GetAgentURI(ctx, assetID(assetA))
	tx.Rollback()
	if err != nil || !exists {
		t.Fatalf("agent missing: exists=%v err=%v", exists, err)
	}
	_ = uri

	c, _ := s.ReadCursor(ctx)
	if c.LastSlot != 100 {
		t.Fatalf("cursor not advanced: %+v", c)
	}
}

func TestImmutableMetadataScenario(t *testing.T) {
	d, s := newTestDispatcher(t)

	set1 := Event{Kind: KindMetadataSet, Payload: MetadataSetPayload{Asset: assetA, Key: "k", Value: []byte("v1"), Immutable: true}}
	dispatchOne(t, s, d, set1, Context{Slot: 10, TxSignature: "sig10", Source: SourcePoller})

	set2 := Event{Kind: KindMetadataSet, Payload: MetadataSetPayload{Asset: assetA, Key: "k", Value: []byte("v2"), Immutable: false}}
	dispatchOne(t, s, d, set2, Context{Slot: 11, TxSignature: "sig11", Source: SourcePoller})
}

func TestOrphanResponseReconciliationScenario(t *testing.T) {
	d, s := newTestDispatcher(t)

	respOrphan := Event{Kind: KindResponseAppended, Payload: ResponseAppendedPayload{
		Asset: assetA, Client: "C", FeedbackIndex: 7, Responder: "R", ResponseURI: "ipfs://r1",
	}}
	dispatchOne(t, s, d, respOrphan, Context{Slot: 50, TxSignature: "S1", Source: SourcePoller})

	var h [32]byte
	h[0] = 0xAA
	newFb := Event{Kind: KindNewFeedback, Payload: NewFeedbackPayload{
		Asset: assetA, Client: "C", FeedbackIndex: 7, Value: "10", SealHash: h,
	}}
	dispatchOne(t, s, d, newFb, Context{Slot: 60, TxSignature: "S60", Source: SourcePoller})

	var mismatched [32]byte
	mismatched[0] = 0xBB
	resp2 := Event{Kind: KindResponseAppended, Payload: ResponseAppendedPayload{
		Asset: assetA, Client: "C", FeedbackIndex: 7, Responder: "R", ResponseURI: "ipfs://r2", ResponseHash: mismatched,
	}}
	dispatchOne(t, s, d, resp2, Context{Slot: 61, TxSignature: "S2", Source: SourcePoller})
}

func TestCursorMonotonicityUnderReplay(t *testing.T) {
	d, s := newTestDispatcher(t)
	ctx := context.Background()

	for i, slot := range []uint64{100, 200, 150} {
		ev := Event{Kind: KindAgentRegisteredInRegistry, Payload: AgentRegisteredInRegistryPayload{
			Asset: assetA, Owner: "o",
		}}
		dispatchOne(t, s, d, ev, Context{Slot: slot, TxSignature: "sig", Source: SourcePoller})
		_ = i
	}

	c, err := s.ReadCursor(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(200), c.LastSlot)
}

func TestBoundaryWalletDefaultPubkeyNormalizesToAbsent(t *testing.T) {
	d, s := newTestDispatcher(t)
	ctx := context.Background()

	reg := Event{Kind: KindAgentRegisteredInRegistry, Payload: AgentRegisteredInRegistryPayload{Asset: assetA, Owner: "o"}}
	dispatchOne(t, s, d, reg, Context{Slot: 1, TxSignature: "s1", Source: SourcePoller})

	wallet := Event{Kind: KindWalletUpdated, Payload: WalletUpdatedPayload{Asset: assetA, Wallet: DefaultPubkey}}
	dispatchOne(t, s, d, wallet, Context{Slot: 2, TxSignature: "s2", Source: SourcePoller})

	tx, _ := s.Begin(ctx)
	defer tx.Rollback()
	empty, exists, err := tx.GetAgentNFTNameEmpty(ctx, assetID(assetA))
	require.NoError(t, err)
	require.True(t, exists)
	require.True(t, empty)
}

func TestMetadataSetRejectsURIPrefix(t *testing.T) {
	d, s := newTestDispatcher(t)
	ev := Event{Kind: KindMetadataSet, Payload: MetadataSetPayload{Asset: assetA, Key: "_uri:name", Value: []byte("x")}}
	out := dispatchOne(t, s, d, ev, Context{Slot: 1, TxSignature: "s1", Source: SourcePoller})
	if out.Warning == "" {
		t.Fatal("expected refusal warning for _uri: prefixed key")
	}
}
