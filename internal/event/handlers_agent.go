package event

import (
	"context"
	"time"

	"github.com/R3E-Network/agentindexer/internal/store"
)

func (d *Dispatcher) handleAgentRegistered(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(AgentRegisteredInRegistryPayload)
	asset := assetID(p.Asset)

	create := store.AgentCreate{
		Asset:              asset,
		Owner:              p.Owner,
		URI:                p.URI,
		Collection:         p.Collection,
		RegistryID:         p.RegistryID,
		AtomEnabled:        p.AtomEnabled,
		CreatedSlot:        evctx.Slot,
		CreatedTxSignature: evctx.TxSignature,
		TxIndex:            evctx.TxIndex,
	}
	update := store.AgentUpdate{
		Collection:  p.Collection,
		RegistryID:  p.RegistryID,
		AtomEnabled: p.AtomEnabled,
		URI:         p.URI,
	}
	if _, _, err := tx.UpsertAgent(ctx, create, update); err != nil {
		return Outcome{}, err
	}

	out := Outcome{}
	if p.URI != "" {
		out.EnqueueURI = true
		out.EnqueueAsset = asset
		out.EnqueueValue = p.URI
	}
	return out, nil
}

func (d *Dispatcher) handleAgentOwnerSynced(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(AgentOwnerSyncedPayload)
	asset := assetID(p.Asset)

	n, err := tx.UpdateAgentFields(ctx, asset, store.AgentPatch{Owner: &p.NewOwner, UpdatedAt: time.Now()})
	if err != nil {
		return Outcome{}, err
	}
	if n == 0 {
		d.log.WithField("asset", asset).Warn("event: owner sync before registration, dropped")
		return Outcome{Warning: "owner sync arrived before registration"}, nil
	}
	return Outcome{}, nil
}

func (d *Dispatcher) handleAtomEnabled(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(AtomEnabledPayload)
	asset := assetID(p.Asset)
	enabled := true

	n, err := tx.UpdateAgentFields(ctx, asset, store.AgentPatch{AtomEnabled: &enabled, UpdatedAt: time.Now()})
	if err != nil {
		return Outcome{}, err
	}
	if n == 0 {
		d.log.WithField("asset", asset).Warn("event: atom enable before registration, dropped")
		return Outcome{Warning: "atom enable arrived before registration"}, nil
	}
	return Outcome{}, nil
}

func (d *Dispatcher) handleUriUpdated(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(UriUpdatedPayload)
	asset := assetID(p.Asset)

	n, err := tx.UpdateAgentFields(ctx, asset, store.AgentPatch{URI: &p.URI, UpdatedAt: time.Now()})
	if err != nil {
		return Outcome{}, err
	}
	if n == 0 {
		d.log.WithField("asset", asset).Warn("event: uri update before registration, dropped")
		return Outcome{Warning: "uri update arrived before registration"}, nil
	}
	out := Outcome{}
	if p.URI != "" {
		out.EnqueueURI = true
		out.EnqueueAsset = asset
		out.EnqueueValue = p.URI
	}
	return out, nil
}

func (d *Dispatcher) handleWalletUpdated(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(WalletUpdatedPayload)
	asset := assetID(p.Asset)

	patch := store.AgentPatch{UpdatedAt: time.Now()}
	if isDefaultPubkey(p.Wallet) {
		patch.WalletReset = true
	} else {
		wallet := assetID(p.Wallet)
		patch.Wallet = &wallet
	}

	n, err := tx.UpdateAgentFields(ctx, asset, patch)
	if err != nil {
		return Outcome{}, err
	}
	if n == 0 {
		d.log.WithField("asset", asset).Warn("event: wallet update before registration, dropped")
		return Outcome{Warning: "wallet update arrived before registration"}, nil
	}
	return Outcome{}, nil
}
