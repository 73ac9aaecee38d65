package postgres

import (
	"database/sql"
	"fmt"

	"github.com/R3E-Network/agentindexer/internal/store"
)

// pendingTable maps a PendingKind to the table/id-column/verified-column
// shape set_status needs. Feedback and FeedbackResponse rows carry verified_at
// and verified_slot implicitly through their parent, so they skip those
// columns (§4.E cascaded verification).
func pendingTable(kind store.PendingKind) (table, idCol string, hasVerified bool) {
	switch kind {
	case store.PendingAgent:
		return "agents", "asset", true
	case store.PendingRegistry:
		return "registries", "registry_id", false
	case store.PendingMetadata, store.PendingURIMetadata:
		return "agent_metadata", "id", false
	case store.PendingValidation:
		return "validations", "id", false
	case store.PendingFeedback:
		return "feedback", "id", false
	case store.PendingFeedbackResponse:
		return "feedback_responses", "id", false
	}
	return "", "", false
}

func pagePendingQuery(kind store.PendingKind, cutoffSlot uint64, pageSize int, afterKey string) (string, []any) {
	switch kind {
	case store.PendingAgent:
		return `SELECT asset, created_slot, asset FROM agents
			WHERE status = 'PENDING' AND created_slot <= $1 AND asset > $2
			ORDER BY asset ASC LIMIT $3`, []any{cutoffSlot, afterKey, pageSize}
	case store.PendingRegistry:
		return `SELECT registry_id, slot, registry_id FROM registries
			WHERE status = 'PENDING' AND slot <= $1 AND registry_id > $2
			ORDER BY registry_id ASC LIMIT $3`, []any{cutoffSlot, afterKey, pageSize}
	case store.PendingMetadata:
		return `SELECT id, slot, agent_id FROM agent_metadata
			WHERE status = 'PENDING' AND key NOT LIKE '_uri:%' AND slot <= $1 AND id > $2
			ORDER BY id ASC LIMIT $3`, []any{cutoffSlot, asID(afterKey), pageSize}
	case store.PendingURIMetadata:
		return `SELECT id, slot, agent_id FROM agent_metadata
			WHERE status = 'PENDING' AND key LIKE '_uri:%' AND slot <= $1 AND id > $2
			ORDER BY id ASC LIMIT $3`, []any{cutoffSlot, asID(afterKey), pageSize}
	case store.PendingValidation:
		return `SELECT id, slot, agent_id FROM validations
			WHERE status = 'PENDING' AND slot <= $1 AND id > $2
			ORDER BY id ASC LIMIT $3`, []any{cutoffSlot, asID(afterKey), pageSize}
	case store.PendingFeedback:
		return `SELECT id, created_slot, agent_id FROM feedback
			WHERE status = 'PENDING' AND created_slot <= $1 AND id > $2
			ORDER BY id ASC LIMIT $3`, []any{cutoffSlot, afterKey, pageSize}
	case store.PendingFeedbackResponse:
		return `SELECT fr.id, fr.slot, f.agent_id, fr.feedback_id FROM feedback_responses fr
			JOIN feedback f ON f.id = fr.feedback_id
			WHERE fr.status = 'PENDING' AND fr.slot <= $1 AND fr.id > $2
			ORDER BY fr.id ASC LIMIT $3`, []any{cutoffSlot, afterKey, pageSize}
	}
	return "", nil
}

func asID(key string) int64 {
	if key == "" {
		return 0
	}
	var n int64
	fmt.Sscanf(key, "%d", &n)
	return n
}

func scanPendingRows(kind store.PendingKind, rows *sql.Rows) ([]store.PendingRow, error) {
	var out []store.PendingRow
	for rows.Next() {
		var row store.PendingRow
		switch kind {
		case store.PendingFeedbackResponse:
			var id string
			var slot uint64
			var parentAgent, parentFeedback string
			if err := rows.Scan(&id, &slot, &parentAgent, &parentFeedback); err != nil {
				return nil, err
			}
			row = store.PendingRow{ID: id, CreatedSlot: slot, ParentAgentID: parentAgent, ParentFeedbackID: parentFeedback}
		case store.PendingFeedback:
			var id string
			var slot uint64
			var parentAgent string
			if err := rows.Scan(&id, &slot, &parentAgent); err != nil {
				return nil, err
			}
			row = store.PendingRow{ID: id, CreatedSlot: slot, ParentAgentID: parentAgent}
		case store.PendingMetadata, store.PendingURIMetadata, store.PendingValidation:
			var rowID int64
			var slot uint64
			var pda string
			if err := rows.Scan(&rowID, &slot, &pda); err != nil {
				return nil, err
			}
			row = store.PendingRow{ID: fmt.Sprintf("%d", rowID), CreatedSlot: slot, PDA: pda}
		default:
			var id string
			var slot uint64
			var pda string
			if err := rows.Scan(&id, &slot, &pda); err != nil {
				return nil, err
			}
			row = store.PendingRow{ID: id, CreatedSlot: slot, PDA: pda}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
