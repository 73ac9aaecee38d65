// Package store defines the Store Gateway contract (§4.A): the abstract
// persistence surface the ingestion engine compiles against, independent of
// whether the backing database is the embedded sqlite store or the pooled
// postgres store.
package store

import "time"

// Status is the verification lifecycle shared by every verifiable row.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFinalized Status = "FINALIZED"
	StatusOrphaned  Status = "ORPHANED"
)

// RegistryType distinguishes the two registry kinds.
type RegistryType string

const (
	RegistryTypeBase RegistryType = "Base"
	RegistryTypeUser RegistryType = "User"
)

// Agent mirrors §3's Agent entity.
type Agent struct {
	Asset              string // base58
	Owner              string
	URI                string
	Wallet             *string // nil denotes absent/reset
	Collection         string
	RegistryID         string
	AtomEnabled        bool
	NFTName            string
	Status             Status
	CreatedSlot        uint64
	CreatedTxSignature string
	TxIndex            *uint32
	VerifiedAt         *time.Time
	VerifiedSlot       *uint64
	UpdatedAt          time.Time
}

// AgentCreate carries the fields set only on first insert.
type AgentCreate struct {
	Asset              string
	Owner              string
	URI                string
	Collection         string
	RegistryID         string
	AtomEnabled        bool
	CreatedSlot        uint64
	CreatedTxSignature string
	TxIndex            *uint32
}

// AgentUpdate carries the fields refreshed on every upsert, hit or miss
// (§4.A: "update side must include keys that should be refreshed even on
// hit").
type AgentUpdate struct {
	Collection  string
	RegistryID  string
	AtomEnabled bool
	URI         string
}

// AgentPatch is a sparse update applied by update_agent_fields. Nil fields
// are left untouched.
type AgentPatch struct {
	Owner       *string
	URI         *string
	Wallet      *string // non-nil sets the wallet to *Wallet; a reset is signalled by WalletReset
	WalletReset bool    // true means "set wallet to absent", distinct from "don't touch"
	AtomEnabled *bool
	NFTName     *string
	UpdatedAt   time.Time
}

// Registry mirrors §3's Registry entity.
type Registry struct {
	RegistryID   string
	Collection   string
	RegistryType RegistryType
	Authority    string
	Status       Status
	Slot         uint64
	TxSignature  string
}

// MetadataFormat is the 1-byte value-column tag (§6).
type MetadataFormat byte

const (
	MetadataFormatRaw  MetadataFormat = 0x00
	MetadataFormatZstd MetadataFormat = 0x01
)

// AgentMetadata mirrors §3's AgentMetadata entity, identified by
// (agent_id, key).
type AgentMetadata struct {
	AgentID     string
	Key         string
	Value       []byte
	Format      MetadataFormat
	Immutable   bool
	Slot        uint64
	TxSignature string
	Status      Status
}

// Feedback mirrors §3's Feedback entity.
type Feedback struct {
	ID                  string
	AgentID             string
	Client              string
	FeedbackIndex       uint64
	Value               string
	ValueDecimals       int32
	Score               int32
	Tag1                string
	Tag2                string
	Endpoint            string
	FeedbackURI         string
	FeedbackHash        []byte // nil = absent
	RunningDigest       []byte
	Revoked             bool
	RevokedTxSignature  string
	RevokedSlot         *uint64
	Status              Status
	CreatedSlot         uint64
	TxIndex             *uint32
}

// FeedbackRef is the minimal projection returned by
// find_feedback_by_natural_key.
type FeedbackRef struct {
	ID           string
	FeedbackHash []byte
}

// FeedbackResponse mirrors §3's FeedbackResponse entity.
type FeedbackResponse struct {
	ID            string
	FeedbackID    string
	Responder     string
	TxSignature   string
	ResponseURI   string
	ResponseHash  []byte
	RunningDigest []byte
	Slot          uint64
	Status        Status
}

// OrphanResponse mirrors §3's OrphanResponse entity.
type OrphanResponse struct {
	ID            string
	AgentID       string
	Client        string
	FeedbackIndex uint64
	Responder     string
	TxSignature   string
	ResponseURI   string
	ResponseHash  []byte
	RunningDigest []byte
	Slot          uint64
	CreatedAt     time.Time
}

// Revocation mirrors §3's Revocation entity.
type Revocation struct {
	AgentID            string
	Client             string
	FeedbackIndex      uint64
	SealHash           []byte
	RevokedTxSignature string
	RevokedSlot        uint64
}

// Validation mirrors §3's Validation entity. Requester/RequestTxSignature
// are request-side bookkeeping fields; ValidationResponded may create the
// row before a ValidationRequested is ever seen, in which case they are
// filled with best-guess placeholders (§4.C).
type Validation struct {
	AgentID            string
	Validator          string
	Nonce              uint64
	Requester          string
	RequestTxSignature string
	RequestURI         string
	RequestHash        []byte
	Response           *int32
	ResponseURI        *string
	ResponseHash       []byte
	Status             Status
	Slot               uint64
}

// ValidationPatch applies independently to request-side and response-side
// fields (§4.A).
type ValidationPatch struct {
	Requester          *string
	RequestTxSignature *string
	RequestURI         *string
	RequestHash        []byte
	Response           *int32
	ResponseURI        *string
	ResponseHash       []byte
	Slot               uint64
}

// Cursor mirrors §3's IndexerCursor singleton row.
type Cursor struct {
	LastSlot      uint64
	LastSignature string
	Source        string
}
