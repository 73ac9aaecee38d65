// Package event defines the decoded on-chain event model the dispatcher
// translates into store mutations, and the dispatcher itself.
package event

import "time"

// Kind discriminates the 14 event shapes the dispatcher understands. It is
// a tagged variant, not an open string, so a "total match" in the dispatcher
// is a compile-time-checkable switch (Design Notes §9).
type Kind string

const (
	KindAgentRegisteredInRegistry Kind = "AgentRegisteredInRegistry"
	KindAgentOwnerSynced          Kind = "AgentOwnerSynced"
	KindAtomEnabled               Kind = "AtomEnabled"
	KindUriUpdated                Kind = "UriUpdated"
	KindWalletUpdated             Kind = "WalletUpdated"
	KindMetadataSet               Kind = "MetadataSet"
	KindMetadataDeleted           Kind = "MetadataDeleted"
	KindBaseRegistryCreated       Kind = "BaseRegistryCreated"
	KindUserRegistryCreated       Kind = "UserRegistryCreated"
	KindNewFeedback               Kind = "NewFeedback"
	KindFeedbackRevoked           Kind = "FeedbackRevoked"
	KindResponseAppended          Kind = "ResponseAppended"
	KindValidationRequested       Kind = "ValidationRequested"
	KindValidationResponded       Kind = "ValidationResponded"
)

// Source identifies where an event entered the engine.
type Source string

const (
	SourcePoller    Source = "poller"
	SourceWebsocket Source = "websocket"
	SourceBackfill  Source = "backfill"
)

// Context carries the transaction-level facts that accompany every event,
// independent of its kind.
type Context struct {
	TxSignature string
	Slot        uint64
	BlockTime   time.Time
	// TxIndex is the transaction's position within its block. nil sorts
	// after any present value — the WebSocket source frequently cannot
	// supply it (§9 Open Question: same-block ordering).
	TxIndex *uint32
	Source  Source
}

// Event is a decoded program event plus a discriminant. Payload holds one of
// the *Payload structs below, selected by Kind.
type Event struct {
	Kind    Kind
	Payload any
}

// --- Payloads, one per Kind -------------------------------------------------

type AgentRegisteredInRegistryPayload struct {
	Asset        [32]byte
	Owner        string
	URI          string
	Wallet       [32]byte
	Collection   string
	RegistryID   string
	AtomEnabled  bool
}

type AgentOwnerSyncedPayload struct {
	Asset    [32]byte
	NewOwner string
}

type AtomEnabledPayload struct {
	Asset [32]byte
}

type UriUpdatedPayload struct {
	Asset [32]byte
	URI   string
}

type WalletUpdatedPayload struct {
	Asset  [32]byte
	Wallet [32]byte
}

type MetadataSetPayload struct {
	Asset     [32]byte
	Key       string
	Value     []byte
	Immutable bool
}

type MetadataDeletedPayload struct {
	Asset [32]byte
	Key   string
}

type BaseRegistryCreatedPayload struct {
	RegistryID string
	Collection string
	Authority  string
}

type UserRegistryCreatedPayload struct {
	RegistryID string
	Collection string
	Authority  string
}

type NewFeedbackPayload struct {
	Asset          [32]byte
	Client         string
	FeedbackIndex  uint64
	Value          string // signed 128-bit decimal, as string
	ValueDecimals  int32
	Score          int32
	Tag1           string
	Tag2           string
	Endpoint       string
	FeedbackURI    string
	SealHash       [32]byte
	RunningDigest  [32]byte
}

type FeedbackRevokedPayload struct {
	Asset         [32]byte
	Client        string
	FeedbackIndex uint64
	SealHash      [32]byte
}

type ResponseAppendedPayload struct {
	Asset         [32]byte
	Client        string
	FeedbackIndex uint64
	Responder     string
	ResponseURI   string
	ResponseHash  [32]byte
	RunningDigest [32]byte
}

type ValidationRequestedPayload struct {
	Asset     [32]byte
	Validator string
	Nonce     uint64
	RequestURI string
	RequestHash [32]byte
}

type ValidationRespondedPayload struct {
	Asset        [32]byte
	Validator    string
	Nonce        uint64
	Response     int32
	ResponseURI  string
	ResponseHash [32]byte
}
