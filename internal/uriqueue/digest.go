package uriqueue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/R3E-Network/agentindexer/internal/store"
)

// digestAndStore implements §4.B's six-step contract. Every error path logs
// and returns; the queue never fails the ingestion loop (§7).
func (q *Queue) digestAndStore(ctx context.Context, assetID, uri string) {
	// Fetch before opening the transaction so none is held open across the
	// HTTP request.
	result, fetchErr := q.fetcher.Fetch(ctx, uri)

	tx, err := q.store.Begin(ctx)
	if err != nil {
		q.log.WithField("asset", assetID).WithField("err", err).Error("uriqueue: begin failed")
		return
	}
	defer tx.Rollback()

	// Step 1: race protection. A newer update may have overtaken this job
	// while it sat in the queue.
	currentURI, exists, err := tx.GetAgentURI(ctx, assetID)
	if err != nil {
		q.log.WithField("asset", assetID).WithField("err", err).Error("uriqueue: read agent uri failed")
		return
	}
	if !exists || currentURI != uri {
		q.log.WithField("asset", assetID).Debug("uriqueue: stale job, agent uri has moved on")
		return
	}

	if q.cfg.PurgeBeforeStore {
		if err := tx.PurgeURIMetadata(ctx, assetID); err != nil {
			q.log.WithField("asset", assetID).WithField("err", err).Error("uriqueue: purge failed")
			return
		}
	}

	if fetchErr != nil {
		q.writeStatusRow(ctx, tx, assetID, fmt.Sprintf(`{"status":"error","detail":%q}`, fetchErr.Error()))
		tx.Commit()
		return
	}

	q.storeFields(ctx, tx, assetID, result)

	statusValue := fmt.Sprintf(`{"status":"ok","bytes":%d,"hash":%q,"field_count":%d,"truncated_keys":%q}`,
		result.Bytes, hex.EncodeToString(result.Hash[:]), len(result.Fields), result.TruncatedKeys)
	q.writeStatusRow(ctx, tx, assetID, statusValue)

	if name, ok := result.Fields["name"]; ok && name != "" {
		empty, agentExists, err := tx.GetAgentNFTNameEmpty(ctx, assetID)
		if err == nil && agentExists && empty {
			if err := tx.SetAgentNFTNameIfEmpty(ctx, assetID, name); err != nil {
				q.log.WithField("asset", assetID).WithField("err", err).Warn("uriqueue: set nft_name failed")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		q.log.WithField("asset", assetID).WithField("err", err).Error("uriqueue: commit failed")
	}
}

func (q *Queue) writeStatusRow(ctx context.Context, tx store.Tx, assetID, value string) {
	if err := tx.UpsertMetadata(ctx, assetID, "_uri:_status", []byte(value), store.MetadataFormatRaw, false, 0, ""); err != nil {
		q.log.WithField("asset", assetID).WithField("err", err).Error("uriqueue: write status row failed")
	}
}

func (q *Queue) storeFields(ctx context.Context, tx store.Tx, assetID string, result FetchResult) {
	count := 0
	for key, value := range result.Fields {
		standard := isStandardField(key)
		if !standard && q.cfg.Mode != ModeFull {
			continue
		}
		if !standard {
			count++
			if count > maxExtraFieldsFull {
				continue
			}
		}

		raw := []byte(value)
		uriKey := "_uri:" + key

		if len(raw) > q.cfg.MaxValueBytes {
			sum := sha256.Sum256(raw)
			meta := fmt.Sprintf(`{"status":"oversize","bytes":%d,"sha256":%q}`, len(raw), hex.EncodeToString(sum[:]))
			if err := tx.UpsertMetadata(ctx, assetID, uriKey+"_meta", []byte(meta), store.MetadataFormatRaw, false, 0, ""); err != nil {
				q.log.WithField("asset", assetID).WithField("key", uriKey).WithField("err", err).Error("uriqueue: oversize meta write failed")
			}
			continue
		}

		format := store.MetadataFormatRaw
		if !standard && len(raw) > zstdThresholdBytes {
			compressed, err := compressZstd(raw)
			if err != nil {
				q.log.WithField("asset", assetID).WithField("key", uriKey).WithField("err", err).Error("uriqueue: zstd compress failed")
			} else {
				raw = compressed
				format = store.MetadataFormatZstd
			}
		}

		if err := tx.UpsertMetadata(ctx, assetID, uriKey, raw, format, false, 0, ""); err != nil {
			q.log.WithField("asset", assetID).WithField("key", uriKey).WithField("err", err).Error("uriqueue: field write failed")
		}
	}
}

func compressZstd(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}
