package event

import (
	"context"

	"github.com/R3E-Network/agentindexer/internal/store"
)

func (d *Dispatcher) handleValidationRequested(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(ValidationRequestedPayload)
	asset := assetID(p.Asset)
	requestHash := NormalizeHash(p.RequestHash)

	patch := store.ValidationPatch{
		RequestURI:         &p.RequestURI,
		RequestHash:        requestHash,
		RequestTxSignature: &evctx.TxSignature,
		Slot:               evctx.Slot,
	}
	requester := p.Validator
	defaults := store.Validation{
		AgentID:            asset,
		Validator:          p.Validator,
		Nonce:              p.Nonce,
		Requester:          requester,
		RequestTxSignature: evctx.TxSignature,
		RequestURI:         p.RequestURI,
		RequestHash:        requestHash,
		Slot:               evctx.Slot,
	}
	if err := tx.UpsertValidation(ctx, asset, p.Validator, p.Nonce, patch, defaults); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}

func (d *Dispatcher) handleValidationResponded(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(ValidationRespondedPayload)
	asset := assetID(p.Asset)
	responseHash := NormalizeHash(p.ResponseHash)
	response := p.Response

	patch := store.ValidationPatch{
		Response:     &response,
		ResponseURI:  &p.ResponseURI,
		ResponseHash: responseHash,
		Slot:         evctx.Slot,
	}
	// On create (response arrived before request), the validator itself is
	// the best-guess requester and the response tx stands in for the
	// request tx signature until a ValidationRequested backfills it.
	defaults := store.Validation{
		AgentID:            asset,
		Validator:          p.Validator,
		Nonce:              p.Nonce,
		Requester:          p.Validator,
		RequestTxSignature: evctx.TxSignature,
		Response:           &response,
		ResponseURI:        &p.ResponseURI,
		ResponseHash:       responseHash,
		Slot:               evctx.Slot,
	}
	if err := tx.UpsertValidation(ctx, asset, p.Validator, p.Nonce, patch, defaults); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}
