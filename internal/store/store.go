package store

import (
	"context"
	"errors"
	"time"
)

// ErrInvariantViolation names a write that would break a store invariant.
// Neither backend returns it: a write to an immutable metadata row is
// skipped by the upsert's WHERE clause without an error.
var ErrInvariantViolation = errors.New("store: invariant violation")

// ErrNotFound names a lookup that finds nothing. Neither backend returns
// it: point lookups report absence through a nil result or an exists=false
// value, and update_agent_fields through its rows-affected count (§4.A).
var ErrNotFound = errors.New("store: not found")

// PendingKind selects which verifiable entity page_pending/set_status
// operate over (§4.E).
type PendingKind string

const (
	PendingAgent            PendingKind = "agent"
	PendingRegistry         PendingKind = "registry"
	PendingMetadata         PendingKind = "metadata"
	PendingURIMetadata      PendingKind = "uri_metadata"
	PendingValidation       PendingKind = "validation"
	PendingFeedback         PendingKind = "feedback"
	PendingFeedbackResponse PendingKind = "feedback_response"
)

// PendingRow is the minimal projection page_pending needs to hand back to
// the verifier: an opaque ID plus the fields needed to decide a transition.
type PendingRow struct {
	ID          string
	CreatedSlot uint64
	// PDA is the on-chain address to probe for Agent/Registry/Metadata/
	// Validation rows; empty for Feedback/FeedbackResponse, which are
	// verified by their parent's status instead (§4.E).
	PDA string
	// ParentAgentID links Feedback/FeedbackResponse rows to their Agent for
	// the cascaded verification rule.
	ParentAgentID string
	// ParentFeedbackID links FeedbackResponse rows to their Feedback for the
	// cascaded verification rule.
	ParentFeedbackID string
}

// Store is the abstract persistence surface the ingestion engine compiles
// against (§4.A). Both backends (sqlite, postgres) implement it identically;
// handlers are written once against this interface.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// ReadCursor and verifier paging are read-only and do not require an
	// open transaction.
	ReadCursor(ctx context.Context) (*Cursor, error)
	PagePending(ctx context.Context, kind PendingKind, cutoffSlot uint64, pageSize int, afterKey string) ([]PendingRow, error)
	SetStatus(ctx context.Context, kind PendingKind, ids []string, status Status, verifiedAt time.Time, verifiedSlot uint64) error
	PurgeOrphansOlderThan(ctx context.Context, maxAge time.Duration) (int, error)

	// GetAgentStatus and GetFeedbackStatus support the Verification Worker's
	// cascaded classification of Feedback/FeedbackResponse rows, which have
	// no on-chain PDA of their own (§4.E).
	GetAgentStatus(ctx context.Context, agentID string) (Status, bool, error)
	GetFeedbackStatus(ctx context.Context, feedbackID string) (Status, bool, error)

	Close() error
}

// Tx is one transaction's worth of mutation methods. A Tx must be committed
// or rolled back exactly once.
type Tx interface {
	Commit() error
	Rollback() error

	UpsertAgent(ctx context.Context, create AgentCreate, update AgentUpdate) (agentID string, created bool, err error)
	UpdateAgentFields(ctx context.Context, asset string, patch AgentPatch) (rowsAffected int, err error)

	UpsertMetadata(ctx context.Context, agentID, key string, value []byte, format MetadataFormat, immutableNew bool, slot uint64, txSignature string) error
	DeleteMetadata(ctx context.Context, agentID, key string) error
	// PurgeURIMetadata deletes every row matching key LIKE '_uri:%' for the
	// given agent (§4.B purge_before_store).
	PurgeURIMetadata(ctx context.Context, agentID string) error

	UpsertRegistry(ctx context.Context, reg Registry) error

	UpsertFeedback(ctx context.Context, fb Feedback) (id string, created bool, err error)
	MarkFeedbackRevoked(ctx context.Context, agentID, client string, feedbackIndex uint64, revokedTxSignature string, revokedSlot uint64, newStatus Status) (rowsAffected int, err error)
	UpsertRevocation(ctx context.Context, rev Revocation) error
	FindFeedbackByNaturalKey(ctx context.Context, agentID, client string, feedbackIndex uint64) (*FeedbackRef, error)

	UpsertFeedbackResponse(ctx context.Context, resp FeedbackResponse) (id string, err error)
	UpsertOrphanResponse(ctx context.Context, orphan OrphanResponse) error
	FindOrphanResponses(ctx context.Context, agentID, client string, feedbackIndex uint64) ([]OrphanResponse, error)
	DeleteOrphanResponse(ctx context.Context, id string) error

	UpsertValidation(ctx context.Context, agentID, validator string, nonce uint64, patch ValidationPatch, createDefaults Validation) error

	UpsertCursorMonotonic(ctx context.Context, cursor Cursor) error

	// GetAgentURI and GetAgentNFTNameEmpty support the URI digest
	// race-protection and name-fill steps (§4.B); the queue runs its HTTP
	// fetch before it opens the transaction that calls them.
	GetAgentURI(ctx context.Context, agentID string) (uri string, exists bool, err error)
	GetAgentNFTNameEmpty(ctx context.Context, agentID string) (empty bool, exists bool, err error)
	SetAgentNFTNameIfEmpty(ctx context.Context, agentID, name string) error
}
