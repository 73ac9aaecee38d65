// Package postgres implements the Store Gateway (§4.A) against a pooled
// PostgreSQL database. It is the "Remote" backend: multiple indexer
// processes may share one database, so every write goes through
// BEGIN/COMMIT/ROLLBACK on a *sql.Tx pulled from the pool.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/agentindexer/internal/store"
)

// Store is the pooled PostgreSQL-backed implementation of store.Store.
type Store struct {
	db *sqlx.DB

	// seenCollections records collections that upsert_registry has already
	// observed. UpsertRegistry issues the same INSERT ... ON CONFLICT DO
	// NOTHING whether or not the collection is cached, so a cache hit saves
	// no round trip; a hit only skips the cache write.
	seenCollections *lru.Cache[string, struct{}]
}

// Open connects to dsn and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	db.SetMaxOpenConns(10)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	cache, err := lru.New[string, struct{}](1000)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: new lru: %w", err)
	}
	return &Store{db: db, seenCollections: cache}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &pgTx{tx: tx, seenCollections: s.seenCollections}, nil
}

func (s *Store) ReadCursor(ctx context.Context) (*store.Cursor, error) {
	var c store.Cursor
	err := s.db.QueryRowxContext(ctx, `SELECT last_slot, last_signature, source FROM indexer_cursor WHERE id = 'main'`).
		Scan(&c.LastSlot, &c.LastSignature, &c.Source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) PagePending(ctx context.Context, kind store.PendingKind, cutoffSlot uint64, pageSize int, afterKey string) ([]store.PendingRow, error) {
	query, args := pagePendingQuery(kind, cutoffSlot, pageSize, afterKey)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: page pending %s: %w", kind, err)
	}
	defer rows.Close()
	return scanPendingRows(kind, rows)
}

func (s *Store) SetStatus(ctx context.Context, kind store.PendingKind, ids []string, status store.Status, verifiedAt time.Time, verifiedSlot uint64) error {
	if len(ids) == 0 {
		return nil
	}
	table, idCol, hasVerified := pendingTable(kind)
	for _, id := range ids {
		var err error
		if hasVerified {
			_, err = s.db.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET status = $1, verified_at = $2, verified_slot = $3 WHERE %s = $4`, table, idCol),
				string(status), verifiedAt.UTC(), verifiedSlot, id)
		} else {
			_, err = s.db.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET status = $1 WHERE %s = $2`, table, idCol),
				string(status), id)
		}
		if err != nil {
			return fmt.Errorf("postgres: set status %s/%s: %w", kind, id, err)
		}
	}
	return nil
}

func (s *Store) PurgeOrphansOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM orphan_responses WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge orphans: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) GetAgentStatus(ctx context.Context, agentID string) (store.Status, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM agents WHERE asset = $1`, agentID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return store.Status(status), true, nil
}

func (s *Store) GetFeedbackStatus(ctx context.Context, feedbackID string) (store.Status, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM feedback WHERE id = $1`, feedbackID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return store.Status(status), true, nil
}

// --- Tx ----------------------------------------------------------------

type pgTx struct {
	tx              *sqlx.Tx
	seenCollections *lru.Cache[string, struct{}]
}

func (t *pgTx) Commit() error   { return t.tx.Commit() }
func (t *pgTx) Rollback() error { return t.tx.Rollback() }

func (t *pgTx) UpsertAgent(ctx context.Context, create store.AgentCreate, update store.AgentUpdate) (string, bool, error) {
	var exists int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE asset = $1`, create.Asset).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		now := time.Now().UTC()
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO agents (asset, owner, uri, collection, registry_id, atom_enabled, status, created_slot, created_tx_signature, tx_index, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			create.Asset, create.Owner, create.URI, create.Collection, create.RegistryID, create.AtomEnabled,
			string(store.StatusPending), create.CreatedSlot, create.CreatedTxSignature, create.TxIndex, now)
		if err != nil {
			return "", false, fmt.Errorf("postgres: insert agent: %w", err)
		}
		return create.Asset, true, nil
	case err != nil:
		return "", false, fmt.Errorf("postgres: check agent: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE agents SET collection = $1, registry_id = $2, atom_enabled = $3, uri = $4 WHERE asset = $5`,
		update.Collection, update.RegistryID, update.AtomEnabled, update.URI, create.Asset)
	if err != nil {
		return "", false, fmt.Errorf("postgres: update agent on conflict: %w", err)
	}
	return create.Asset, false, nil
}

func (t *pgTx) UpdateAgentFields(ctx context.Context, asset string, patch store.AgentPatch) (int, error) {
	sets := []string{}
	args := []any{}
	n := 1
	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, val)
		n++
	}
	if patch.Owner != nil {
		add("owner", *patch.Owner)
	}
	if patch.URI != nil {
		add("uri", *patch.URI)
	}
	if patch.WalletReset {
		sets = append(sets, "wallet = NULL")
	} else if patch.Wallet != nil {
		add("wallet", *patch.Wallet)
	}
	if patch.AtomEnabled != nil {
		add("atom_enabled", *patch.AtomEnabled)
	}
	if patch.NFTName != nil {
		add("nft_name", *patch.NFTName)
	}
	if !patch.UpdatedAt.IsZero() {
		add("updated_at", patch.UpdatedAt.UTC())
	}
	if len(sets) == 0 {
		return 0, nil
	}
	args = append(args, asset)
	query := fmt.Sprintf("UPDATE agents SET %s WHERE asset = $%d", joinComma(sets), n)
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: update agent fields: %w", err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

func (t *pgTx) UpsertMetadata(ctx context.Context, agentID, key string, value []byte, format store.MetadataFormat, immutableNew bool, slot uint64, txSignature string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO agent_metadata (agent_id, key, value, format, immutable, slot, tx_signature, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (agent_id, key) DO UPDATE SET
			value = excluded.value,
			format = excluded.format,
			immutable = (agent_metadata.immutable OR excluded.immutable),
			slot = excluded.slot,
			tx_signature = excluded.tx_signature
		WHERE agent_metadata.immutable = false`,
		agentID, key, value, byte(format), immutableNew, slot, txSignature, string(store.StatusPending))
	if err != nil {
		return fmt.Errorf("postgres: upsert metadata: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteMetadata(ctx context.Context, agentID, key string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM agent_metadata WHERE agent_id = $1 AND key = $2`, agentID, key)
	return err
}

func (t *pgTx) PurgeURIMetadata(ctx context.Context, agentID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM agent_metadata WHERE agent_id = $1 AND key LIKE '_uri:%'`, agentID)
	return err
}

func (t *pgTx) UpsertRegistry(ctx context.Context, reg store.Registry) error {
	if _, ok := t.seenCollections.Get(reg.Collection); ok {
		// Collection already known to have a registry row. The INSERT is
		// still issued, and ON CONFLICT DO NOTHING leaves an existing row
		// unchanged; the cache write is skipped to keep LRU churn to
		// genuinely new entries.
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO registries (registry_id, collection, registry_type, authority, status, slot, tx_signature)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (registry_id) DO NOTHING`,
			reg.RegistryID, reg.Collection, string(reg.RegistryType), reg.Authority, string(store.StatusPending), reg.Slot, reg.TxSignature)
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO registries (registry_id, collection, registry_type, authority, status, slot, tx_signature)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (registry_id) DO NOTHING`,
		reg.RegistryID, reg.Collection, string(reg.RegistryType), reg.Authority, string(store.StatusPending), reg.Slot, reg.TxSignature)
	if err != nil {
		return err
	}
	t.seenCollections.Add(reg.Collection, struct{}{})
	return nil
}

func (t *pgTx) UpsertFeedback(ctx context.Context, fb store.Feedback) (string, bool, error) {
	var existingID string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM feedback WHERE agent_id = $1 AND client = $2 AND feedback_index = $3`,
		fb.AgentID, fb.Client, fb.FeedbackIndex).Scan(&existingID)
	switch {
	case err == nil:
		return existingID, false, nil
	case err != sql.ErrNoRows:
		return "", false, fmt.Errorf("postgres: check feedback: %w", err)
	}

	id := uuid.NewString()
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO feedback (id, agent_id, client, feedback_index, value, value_decimals, score, tag1, tag2, endpoint, feedback_uri, feedback_hash, running_digest, status, created_slot, tx_index)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		id, fb.AgentID, fb.Client, fb.FeedbackIndex, fb.Value, fb.ValueDecimals, fb.Score, fb.Tag1, fb.Tag2, fb.Endpoint, fb.FeedbackURI,
		nilIfEmpty(fb.FeedbackHash), nilIfEmpty(fb.RunningDigest), string(store.StatusPending), fb.CreatedSlot, fb.TxIndex)
	if err != nil {
		return "", false, fmt.Errorf("postgres: insert feedback: %w", err)
	}
	return id, true, nil
}

func (t *pgTx) MarkFeedbackRevoked(ctx context.Context, agentID, client string, feedbackIndex uint64, revokedTxSignature string, revokedSlot uint64, newStatus store.Status) (int, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE feedback SET revoked = true, revoked_tx_signature = $1, revoked_slot = $2, status = $3
		WHERE agent_id = $4 AND client = $5 AND feedback_index = $6`,
		revokedTxSignature, revokedSlot, string(newStatus), agentID, client, feedbackIndex)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark feedback revoked: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (t *pgTx) UpsertRevocation(ctx context.Context, rev store.Revocation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO revocations (agent_id, client, feedback_index, seal_hash, revoked_tx_signature, revoked_slot)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (agent_id, client, feedback_index) DO UPDATE SET
			seal_hash = excluded.seal_hash, revoked_tx_signature = excluded.revoked_tx_signature, revoked_slot = excluded.revoked_slot`,
		rev.AgentID, rev.Client, rev.FeedbackIndex, nilIfEmpty(rev.SealHash), rev.RevokedTxSignature, rev.RevokedSlot)
	return err
}

func (t *pgTx) FindFeedbackByNaturalKey(ctx context.Context, agentID, client string, feedbackIndex uint64) (*store.FeedbackRef, error) {
	var ref store.FeedbackRef
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, feedback_hash FROM feedback WHERE agent_id = $1 AND client = $2 AND feedback_index = $3`,
		agentID, client, feedbackIndex).Scan(&ref.ID, &ref.FeedbackHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find feedback: %w", err)
	}
	return &ref, nil
}

func (t *pgTx) UpsertFeedbackResponse(ctx context.Context, resp store.FeedbackResponse) (string, error) {
	var existingID string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM feedback_responses WHERE feedback_id = $1 AND responder = $2 AND tx_signature = $3`,
		resp.FeedbackID, resp.Responder, resp.TxSignature).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("postgres: check feedback response: %w", err)
	}

	id := uuid.NewString()
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO feedback_responses (id, feedback_id, responder, tx_signature, response_uri, response_hash, running_digest, slot, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		id, resp.FeedbackID, resp.Responder, resp.TxSignature, resp.ResponseURI, nilIfEmpty(resp.ResponseHash), nilIfEmpty(resp.RunningDigest), resp.Slot, string(resp.Status))
	if err != nil {
		return "", fmt.Errorf("postgres: insert feedback response: %w", err)
	}
	return id, nil
}

func (t *pgTx) UpsertOrphanResponse(ctx context.Context, orphan store.OrphanResponse) error {
	id := orphan.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orphan_responses (id, agent_id, client, feedback_index, responder, tx_signature, response_uri, response_hash, running_digest, slot, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (agent_id, client, feedback_index, responder, tx_signature) DO NOTHING`,
		id, orphan.AgentID, orphan.Client, orphan.FeedbackIndex, orphan.Responder, orphan.TxSignature,
		orphan.ResponseURI, nilIfEmpty(orphan.ResponseHash), nilIfEmpty(orphan.RunningDigest), orphan.Slot, time.Now().UTC())
	return err
}

func (t *pgTx) FindOrphanResponses(ctx context.Context, agentID, client string, feedbackIndex uint64) ([]store.OrphanResponse, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, agent_id, client, feedback_index, responder, tx_signature, response_uri, response_hash, running_digest, slot, created_at
		FROM orphan_responses WHERE agent_id = $1 AND client = $2 AND feedback_index = $3
		ORDER BY created_at ASC`,
		agentID, client, feedbackIndex)
	if err != nil {
		return nil, fmt.Errorf("postgres: find orphan responses: %w", err)
	}
	defer rows.Close()

	var out []store.OrphanResponse
	for rows.Next() {
		var o store.OrphanResponse
		if err := rows.Scan(&o.ID, &o.AgentID, &o.Client, &o.FeedbackIndex, &o.Responder, &o.TxSignature,
			&o.ResponseURI, &o.ResponseHash, &o.RunningDigest, &o.Slot, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *pgTx) DeleteOrphanResponse(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM orphan_responses WHERE id = $1`, id)
	return err
}

func (t *pgTx) UpsertValidation(ctx context.Context, agentID, validator string, nonce uint64, patch store.ValidationPatch, defaults store.Validation) error {
	var exists int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM validations WHERE agent_id = $1 AND validator = $2 AND nonce = $3`,
		agentID, validator, nonce).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		v := defaults
		applyValidationPatch(&v, patch)
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO validations (agent_id, validator, nonce, requester, request_tx_signature, request_uri, request_hash, response, response_uri, response_hash, status, slot)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			agentID, validator, nonce, v.Requester, v.RequestTxSignature, v.RequestURI, nilIfEmpty(v.RequestHash),
			v.Response, v.ResponseURI, nilIfEmpty(v.ResponseHash), string(store.StatusPending), v.Slot)
		if err != nil {
			return fmt.Errorf("postgres: insert validation: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("postgres: check validation: %w", err)
	}

	sets := []string{}
	args := []any{}
	n := 1
	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, val)
		n++
	}
	if patch.Requester != nil {
		add("requester", *patch.Requester)
	}
	if patch.RequestTxSignature != nil {
		add("request_tx_signature", *patch.RequestTxSignature)
	}
	if patch.RequestURI != nil {
		add("request_uri", *patch.RequestURI)
	}
	if patch.RequestHash != nil {
		add("request_hash", nilIfEmpty(patch.RequestHash))
	}
	if patch.Response != nil {
		add("response", *patch.Response)
	}
	if patch.ResponseURI != nil {
		add("response_uri", *patch.ResponseURI)
	}
	if patch.ResponseHash != nil {
		add("response_hash", nilIfEmpty(patch.ResponseHash))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, agentID, validator, nonce)
	query := fmt.Sprintf("UPDATE validations SET %s WHERE agent_id = $%d AND validator = $%d AND nonce = $%d", joinComma(sets), n, n+1, n+2)
	_, err = t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update validation: %w", err)
	}
	return nil
}

func (t *pgTx) UpsertCursorMonotonic(ctx context.Context, cursor store.Cursor) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO indexer_cursor (id, last_slot, last_signature, source)
		VALUES ('main', $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			last_slot = excluded.last_slot,
			last_signature = excluded.last_signature,
			source = excluded.source
		WHERE excluded.last_slot > indexer_cursor.last_slot`,
		cursor.LastSlot, cursor.LastSignature, cursor.Source)
	if err != nil {
		return fmt.Errorf("postgres: upsert cursor: %w", err)
	}
	return nil
}

func (t *pgTx) GetAgentURI(ctx context.Context, agentID string) (string, bool, error) {
	var uri string
	err := t.tx.QueryRowContext(ctx, `SELECT uri FROM agents WHERE asset = $1`, agentID).Scan(&uri)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return uri, true, nil
}

func (t *pgTx) GetAgentNFTNameEmpty(ctx context.Context, agentID string) (bool, bool, error) {
	var name string
	err := t.tx.QueryRowContext(ctx, `SELECT nft_name FROM agents WHERE asset = $1`, agentID).Scan(&name)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return name == "", true, nil
}

func (t *pgTx) SetAgentNFTNameIfEmpty(ctx context.Context, agentID, name string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE agents SET nft_name = $1 WHERE asset = $2 AND nft_name = ''`, name, agentID)
	return err
}

// --- helpers -------------------------------------------------------------

func applyValidationPatch(v *store.Validation, patch store.ValidationPatch) {
	if patch.Requester != nil {
		v.Requester = *patch.Requester
	}
	if patch.RequestTxSignature != nil {
		v.RequestTxSignature = *patch.RequestTxSignature
	}
	if patch.RequestURI != nil {
		v.RequestURI = *patch.RequestURI
	}
	if patch.RequestHash != nil {
		v.RequestHash = patch.RequestHash
	}
	if patch.Response != nil {
		v.Response = patch.Response
	}
	if patch.ResponseURI != nil {
		v.ResponseURI = patch.ResponseURI
	}
	if patch.ResponseHash != nil {
		v.ResponseHash = patch.ResponseHash
	}
	if patch.Slot != 0 {
		v.Slot = patch.Slot
	}
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
