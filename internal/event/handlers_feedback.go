package event

import (
	"context"

	"github.com/R3E-Network/agentindexer/internal/store"
)

func (d *Dispatcher) handleNewFeedback(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(NewFeedbackPayload)
	asset := assetID(p.Asset)
	hash := NormalizeHash(p.SealHash)
	digest := NormalizeHash(p.RunningDigest)

	fb := store.Feedback{
		AgentID:       asset,
		Client:        p.Client,
		FeedbackIndex: p.FeedbackIndex,
		Value:         p.Value,
		ValueDecimals: p.ValueDecimals,
		Score:         p.Score,
		Tag1:          p.Tag1,
		Tag2:          p.Tag2,
		Endpoint:      p.Endpoint,
		FeedbackURI:   p.FeedbackURI,
		FeedbackHash:  hash,
		RunningDigest: digest,
		CreatedSlot:   evctx.Slot,
		TxIndex:       evctx.TxIndex,
	}
	id, _, err := tx.UpsertFeedback(ctx, fb)
	if err != nil {
		return Outcome{}, err
	}

	orphans, err := tx.FindOrphanResponses(ctx, asset, p.Client, p.FeedbackIndex)
	if err != nil {
		return Outcome{}, err
	}
	for _, o := range orphans {
		resp := store.FeedbackResponse{
			FeedbackID:    id,
			Responder:     o.Responder,
			TxSignature:   o.TxSignature,
			ResponseURI:   o.ResponseURI,
			ResponseHash:  o.ResponseHash,
			RunningDigest: o.RunningDigest,
			Slot:          o.Slot,
			Status:        store.StatusPending,
		}
		if _, err := tx.UpsertFeedbackResponse(ctx, resp); err != nil {
			return Outcome{}, err
		}
		if err := tx.DeleteOrphanResponse(ctx, o.ID); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{}, nil
}

func (d *Dispatcher) handleFeedbackRevoked(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(FeedbackRevokedPayload)
	asset := assetID(p.Asset)
	sealHash := NormalizeHash(p.SealHash)

	ref, err := tx.FindFeedbackByNaturalKey(ctx, asset, p.Client, p.FeedbackIndex)
	if err != nil {
		return Outcome{}, err
	}
	newStatus := store.StatusOrphaned
	if ref != nil && sealHash.Equal(Hash(ref.FeedbackHash)) {
		newStatus = store.StatusPending
	}
	// Missing feedback is acceptable; rows_affected == 0 is not an error (§7).
	if _, err := tx.MarkFeedbackRevoked(ctx, asset, p.Client, p.FeedbackIndex, evctx.TxSignature, evctx.Slot, newStatus); err != nil {
		return Outcome{}, err
	}

	rev := store.Revocation{
		AgentID:            asset,
		Client:             p.Client,
		FeedbackIndex:      p.FeedbackIndex,
		SealHash:           sealHash,
		RevokedTxSignature: evctx.TxSignature,
		RevokedSlot:        evctx.Slot,
	}
	if err := tx.UpsertRevocation(ctx, rev); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}

func (d *Dispatcher) handleResponseAppended(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	p := ev.Payload.(ResponseAppendedPayload)
	asset := assetID(p.Asset)
	responseHash := NormalizeHash(p.ResponseHash)
	digest := NormalizeHash(p.RunningDigest)

	ref, err := tx.FindFeedbackByNaturalKey(ctx, asset, p.Client, p.FeedbackIndex)
	if err != nil {
		return Outcome{}, err
	}
	if ref == nil {
		orphan := store.OrphanResponse{
			AgentID:       asset,
			Client:        p.Client,
			FeedbackIndex: p.FeedbackIndex,
			Responder:     p.Responder,
			TxSignature:   evctx.TxSignature,
			ResponseURI:   p.ResponseURI,
			ResponseHash:  responseHash,
			RunningDigest: digest,
			Slot:          evctx.Slot,
		}
		if err := tx.UpsertOrphanResponse(ctx, orphan); err != nil {
			return Outcome{}, err
		}
		return Outcome{}, nil
	}

	status := store.StatusOrphaned
	if responseHash.Equal(Hash(ref.FeedbackHash)) {
		status = store.StatusPending
	}
	resp := store.FeedbackResponse{
		FeedbackID:    ref.ID,
		Responder:     p.Responder,
		TxSignature:   evctx.TxSignature,
		ResponseURI:   p.ResponseURI,
		ResponseHash:  responseHash,
		RunningDigest: digest,
		Slot:          evctx.Slot,
		Status:        status,
	}
	if _, err := tx.UpsertFeedbackResponse(ctx, resp); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}
