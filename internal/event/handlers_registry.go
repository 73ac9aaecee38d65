package event

import (
	"context"

	"github.com/R3E-Network/agentindexer/internal/store"
)

func (d *Dispatcher) handleRegistryCreated(ctx context.Context, tx store.Tx, ev Event, evctx Context, kind store.RegistryType) (Outcome, error) {
	var registryID, collection, authority string
	switch kind {
	case store.RegistryTypeBase:
		p := ev.Payload.(BaseRegistryCreatedPayload)
		registryID, collection, authority = p.RegistryID, p.Collection, p.Authority
	case store.RegistryTypeUser:
		p := ev.Payload.(UserRegistryCreatedPayload)
		registryID, collection, authority = p.RegistryID, p.Collection, p.Authority
	}

	reg := store.Registry{
		RegistryID:   registryID,
		Collection:   collection,
		RegistryType: kind,
		Authority:    authority,
		Status:       store.StatusPending,
		Slot:         evctx.Slot,
		TxSignature:  evctx.TxSignature,
	}
	if err := tx.UpsertRegistry(ctx, reg); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}
