package event

import (
	"context"

	"github.com/R3E-Network/agentindexer/internal/store"
)

func (d *Dispatcher) handleMetadataSet(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(MetadataSetPayload)
	asset := assetID(p.Asset)

	if hasURIPrefix(p.Key) {
		d.log.WithField("asset", asset).WithField("key", p.Key).Warn("event: refused user write to reserved _uri: key")
		return Outcome{Warning: "refused write to reserved key"}, nil
	}

	value := stripNUL(p.Value)
	if err := tx.UpsertMetadata(ctx, asset, p.Key, value, store.MetadataFormatRaw, p.Immutable, evctx.Slot, evctx.TxSignature); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}

func (d *Dispatcher) handleMetadataDeleted(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(MetadataDeletedPayload)
	asset := assetID(p.Asset)

	if err := tx.DeleteMetadata(ctx, asset, p.Key); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}
