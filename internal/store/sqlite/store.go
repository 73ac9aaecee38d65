// Package sqlite implements the Store Gateway (§4.A) against an embedded,
// single-node SQLite database reached through database/sql. It is the
// "Local" backend described in spec.md §4.A: native multi-statement
// transactions, no connection-pool contention to manage.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/R3E-Network/agentindexer/internal/store"
)

// Store is the embedded SQLite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and applies
// the schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single connection avoids SQLITE_BUSY on concurrent writers; the
	// embedded backend is meant for single-process deployments anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *Store) ReadCursor(ctx context.Context) (*store.Cursor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT last_slot, last_signature, source FROM indexer_cursor WHERE id = 'main'`)
	var c store.Cursor
	if err := row.Scan(&c.LastSlot, &c.LastSignature, &c.Source); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) PagePending(ctx context.Context, kind store.PendingKind, cutoffSlot uint64, pageSize int, afterKey string) ([]store.PendingRow, error) {
	query, args := pagePendingQuery(kind, cutoffSlot, pageSize, afterKey)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: page pending %s: %w", kind, err)
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
				fmt.Sprintf(`UPDATE %s SET status = ?, verified_at = ?, verified_slot = ? WHERE %s = ?`, table, idCol),
				string(status), verifiedAt.UTC(), verifiedSlot, id)
		} else {
			_, err = s.db.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET status = ? WHERE %s = ?`, table, idCol),
				string(status), id)
		}
		if err != nil {
			return fmt.Errorf("sqlite: set status %s/%s: %w", kind, id, err)
		}
	}
	return nil
}

func (s *Store) PurgeOrphansOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM orphan_responses WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge orphans: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) GetAgentStatus(ctx context.Context, agentID string) (store.Status, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM agents WHERE asset = ?`, agentID).Scan(&status)
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
	err := s.db.QueryRowContext(ctx, `SELECT status FROM feedback WHERE id = ?`, feedbackID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return store.Status(status), true, nil
}

// --- Tx ----------------------------------------------------------------

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

func (t *sqliteTx) UpsertAgent(ctx context.Context, create store.AgentCreate, update store.AgentUpdate) (string, bool, error) {
	var exists int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE asset = ?`, create.Asset).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		now := time.Now().UTC()
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO agents (asset, owner, uri, collection, registry_id, atom_enabled, status, created_slot, created_tx_signature, tx_index, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			create.Asset, create.Owner, create.URI, create.Collection, create.RegistryID, create.AtomEnabled,
			string(store.StatusPending), create.CreatedSlot, create.CreatedTxSignature, create.TxIndex, now)
		if err != nil {
			return "", false, fmt.Errorf("sqlite: insert agent: %w", err)
		}
		return create.Asset, true, nil
	case err != nil:
		return "", false, fmt.Errorf("sqlite: check agent: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE agents SET collection = ?, registry_id = ?, atom_enabled = ?, uri = ? WHERE asset = ?`,
		update.Collection, update.RegistryID, update.AtomEnabled, update.URI, create.Asset)
	if err != nil {
		return "", false, fmt.Errorf("sqlite: update agent on conflict: %w", err)
	}
	return create.Asset, false, nil
}

func (t *sqliteTx) UpdateAgentFields(ctx context.Context, asset string, patch store.AgentPatch) (int, error) {
	sets := []string{}
	args := []any{}
	if patch.Owner != nil {
		sets = append(sets, "owner = ?")
		args = append(args, *patch.Owner)
	}
	if patch.URI != nil {
		sets = append(sets, "uri = ?")
		args = append(args, *patch.URI)
	}
	if patch.WalletReset {
		sets = append(sets, "wallet = NULL")
	} else if patch.Wallet != nil {
		sets = append(sets, "wallet = ?")
		args = append(args, *patch.Wallet)
	}
	if patch.AtomEnabled != nil {
		sets = append(sets, "atom_enabled = ?")
		args = append(args, *patch.AtomEnabled)
	}
	if patch.NFTName != nil {
		sets = append(sets, "nft_name = ?")
		args = append(args, *patch.NFTName)
	}
	if !patch.UpdatedAt.IsZero() {
		sets = append(sets, "updated_at = ?")
		args = append(args, patch.UpdatedAt.UTC())
	}
	if len(sets) == 0 {
		return 0, nil
	}
	args = append(args, asset)
	query := "UPDATE agents SET " + joinComma(sets) + " WHERE asset = ?"
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: update agent fields: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (t *sqliteTx) UpsertMetadata(ctx context.Context, agentID, key string, value []byte, format store.MetadataFormat, immutableNew bool, slot uint64, txSignature string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO agent_metadata (agent_id, key, value, format, immutable, slot, tx_signature, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, key) DO UPDATE SET
			value = excluded.value,
			format = excluded.format,
			immutable = (agent_metadata.immutable OR excluded.immutable),
			slot = excluded.slot,
			tx_signature = excluded.tx_signature
		WHERE agent_metadata.immutable = 0`,
		agentID, key, value, byte(format), immutableNew, slot, txSignature, string(store.StatusPending))
	if err != nil {
		return fmt.Errorf("sqlite: upsert metadata: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteMetadata(ctx context.Context, agentID, key string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM agent_metadata WHERE agent_id = ? AND key = ?`, agentID, key)
	return err
}

func (t *sqliteTx) PurgeURIMetadata(ctx context.Context, agentID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM agent_metadata WHERE agent_id = ? AND key LIKE '_uri:%'`, agentID)
	return err
}

func (t *sqliteTx) UpsertRegistry(ctx context.Context, reg store.Registry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO registries (registry_id, collection, registry_type, authority, status, slot, tx_signature)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(registry_id) DO NOTHING`,
		reg.RegistryID, reg.Collection, string(reg.RegistryType), reg.Authority, string(store.StatusPending), reg.Slot, reg.TxSignature)
	return err
}

func (t *sqliteTx) UpsertFeedback(ctx context.Context, fb store.Feedback) (string, bool, error) {
	var existingID string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM feedback WHERE agent_id = ? AND client = ? AND feedback_index = ?`,
		fb.AgentID, fb.Client, fb.FeedbackIndex).Scan(&existingID)
	switch {
	case err == nil:
		return existingID, false, nil
	case err != sql.ErrNoRows:
		return "", false, fmt.Errorf("sqlite: check feedback: %w", err)
	}

	id := uuid.NewString()
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO feedback (id, agent_id, client, feedback_index, value, value_decimals, score, tag1, tag2, endpoint, feedback_uri, feedback_hash, running_digest, status, created_slot, tx_index)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, fb.AgentID, fb.Client, fb.FeedbackIndex, fb.Value, fb.ValueDecimals, fb.Score, fb.Tag1, fb.Tag2, fb.Endpoint, fb.FeedbackURI,
		nilIfEmpty(fb.FeedbackHash), nilIfEmpty(fb.RunningDigest), string(store.StatusPending), fb.CreatedSlot, fb.TxIndex)
	if err != nil {
		return "", false, fmt.Errorf("sqlite: insert feedback: %w", err)
	}
	return id, true, nil
}

func (t *sqliteTx) MarkFeedbackRevoked(ctx context.Context, agentID, client string, feedbackIndex uint64, revokedTxSignature string, revokedSlot uint64, newStatus store.Status) (int, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE feedback SET revoked = 1, revoked_tx_signature = ?, revoked_slot = ?, status = ?
		WHERE agent_id = ? AND client = ? AND feedback_index = ?`,
		revokedTxSignature, revokedSlot, string(newStatus), agentID, client, feedbackIndex)
	if err != nil {
		return 0, fmt.Errorf("sqlite: mark feedback revoked: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (t *sqliteTx) UpsertRevocation(ctx context.Context, rev store.Revocation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO revocations (agent_id, client, feedback_index, seal_hash, revoked_tx_signature, revoked_slot)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(agent_id, client, feedback_index) DO UPDATE SET
			seal_hash = excluded.seal_hash, revoked_tx_signature = excluded.revoked_tx_signature, revoked_slot = excluded.revoked_slot`,
		rev.AgentID, rev.Client, rev.FeedbackIndex, nilIfEmpty(rev.SealHash), rev.RevokedTxSignature, rev.RevokedSlot)
	return err
}

func (t *sqliteTx) FindFeedbackByNaturalKey(ctx context.Context, agentID, client string, feedbackIndex uint64) (*store.FeedbackRef, error) {
	var ref store.FeedbackRef
	var hash []byte
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, feedback_hash FROM feedback WHERE agent_id = ? AND client = ? AND feedback_index = ?`,
		agentID, client, feedbackIndex).Scan(&ref.ID, &hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find feedback: %w", err)
	}
	ref.FeedbackHash = hash
	return &ref, nil
}

func (t *sqliteTx) UpsertFeedbackResponse(ctx context.Context, resp store.FeedbackResponse) (string, error) {
	var existingID string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM feedback_responses WHERE feedback_id = ? AND responder = ? AND tx_signature = ?`,
		resp.FeedbackID, resp.Responder, resp.TxSignature).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("sqlite: check feedback response: %w", err)
	}

	id := uuid.NewString()
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO feedback_responses (id, feedback_id, responder, tx_signature, response_uri, response_hash, running_digest, slot, status)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		id, resp.FeedbackID, resp.Responder, resp.TxSignature, resp.ResponseURI, nilIfEmpty(resp.ResponseHash), nilIfEmpty(resp.RunningDigest), resp.Slot, string(resp.Status))
	if err != nil {
		return "", fmt.Errorf("sqlite: insert feedback response: %w", err)
	}
	return id, nil
}

func (t *sqliteTx) UpsertOrphanResponse(ctx context.Context, orphan store.OrphanResponse) error {
	id := orphan.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orphan_responses (id, agent_id, client, feedback_index, responder, tx_signature, response_uri, response_hash, running_digest, slot, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(agent_id, client, feedback_index, responder, tx_signature) DO NOTHING`,
		id, orphan.AgentID, orphan.Client, orphan.FeedbackIndex, orphan.Responder, orphan.TxSignature,
		orphan.ResponseURI, nilIfEmpty(orphan.ResponseHash), nilIfEmpty(orphan.RunningDigest), orphan.Slot, time.Now().UTC())
	return err
}

func (t *sqliteTx) FindOrphanResponses(ctx context.Context, agentID, client string, feedbackIndex uint64) ([]store.OrphanResponse, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, agent_id, client, feedback_index, responder, tx_signature, response_uri, response_hash, running_digest, slot, created_at
		FROM orphan_responses WHERE agent_id = ? AND client = ? AND feedback_index = ?
		ORDER BY created_at ASC`,
		agentID, client, feedbackIndex)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find orphan responses: %w", err)
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

func (t *sqliteTx) DeleteOrphanResponse(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM orphan_responses WHERE id = ?`, id)
	return err
}

func (t *sqliteTx) UpsertValidation(ctx context.Context, agentID, validator string, nonce uint64, patch store.ValidationPatch, defaults store.Validation) error {
	var exists int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM validations WHERE agent_id = ? AND validator = ? AND nonce = ?`,
		agentID, validator, nonce).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		v := defaults
		applyValidationPatch(&v, patch)
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO validations (agent_id, validator, nonce, requester, request_tx_signature, request_uri, request_hash, response, response_uri, response_hash, status, slot)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			agentID, validator, nonce, v.Requester, v.RequestTxSignature, v.RequestURI, nilIfEmpty(v.RequestHash),
			v.Response, v.ResponseURI, nilIfEmpty(v.ResponseHash), string(store.StatusPending), v.Slot)
		if err != nil {
			return fmt.Errorf("sqlite: insert validation: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("sqlite: check validation: %w", err)
	}

	sets := []string{}
	args := []any{}
	if patch.Requester != nil {
		sets = append(sets, "requester = ?")
		args = append(args, *patch.Requester)
	}
	if patch.RequestTxSignature != nil {
		sets = append(sets, "request_tx_signature = ?")
		args = append(args, *patch.RequestTxSignature)
	}
	if patch.RequestURI != nil {
		sets = append(sets, "request_uri = ?")
		args = append(args, *patch.RequestURI)
	}
	if patch.RequestHash != nil {
		sets = append(sets, "request_hash = ?")
		args = append(args, nilIfEmpty(patch.RequestHash))
	}
	if patch.Response != nil {
		sets = append(sets, "response = ?")
		args = append(args, *patch.Response)
	}
	if patch.ResponseURI != nil {
		sets = append(sets, "response_uri = ?")
		args = append(args, *patch.ResponseURI)
	}
	if patch.ResponseHash != nil {
		sets = append(sets, "response_hash = ?")
		args = append(args, nilIfEmpty(patch.ResponseHash))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, agentID, validator, nonce)
	query := "UPDATE validations SET " + joinComma(sets) + " WHERE agent_id = ? AND validator = ? AND nonce = ?"
	_, err = t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: update validation: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpsertCursorMonotonic(ctx context.Context, cursor store.Cursor) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO indexer_cursor (id, last_slot, last_signature, source)
		VALUES ('main', ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_slot = excluded.last_slot,
			last_signature = excluded.last_signature,
			source = excluded.source
		WHERE excluded.last_slot > indexer_cursor.last_slot`,
		cursor.LastSlot, cursor.LastSignature, cursor.Source)
	if err != nil {
		return fmt.Errorf("sqlite: upsert cursor: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetAgentURI(ctx context.Context, agentID string) (string, bool, error) {
	var uri string
	err := t.tx.QueryRowContext(ctx, `SELECT uri FROM agents WHERE asset = ?`, agentID).Scan(&uri)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return uri, true, nil
}

func (t *sqliteTx) GetAgentNFTNameEmpty(ctx context.Context, agentID string) (bool, bool, error) {
	var name string
	err := t.tx.QueryRowContext(ctx, `SELECT nft_name FROM agents WHERE asset = ?`, agentID).Scan(&name)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return name == "", true, nil
}

func (t *sqliteTx) SetAgentNFTNameIfEmpty(ctx context.Context, agentID, name string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE agents SET nft_name = ? WHERE asset = ? AND nft_name = ''`, name, agentID)
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
