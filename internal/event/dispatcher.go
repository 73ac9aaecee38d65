package event

import (
	"context"

	"github.com/R3E-Network/agentindexer/internal/store"
	"github.com/R3E-Network/agentindexer/pkg/base58id"
	"github.com/R3E-Network/agentindexer/pkg/logger"
)

// DefaultPubkey is the all-zero "no wallet" sentinel a WalletUpdated event
// uses to signal a reset rather than a real wallet key.
var DefaultPubkey [32]byte

// URIEnqueuer is the post-commit collaborator the dispatcher hands a job to
// when a handler determines a fresh URI needs digesting. It is invoked only
// after the owning Atomic Ingestion Loop has committed (§4.C).
type URIEnqueuer interface {
	Enqueue(assetID, uri string)
}

// Dispatcher routes a decoded Event to its handler. One handler per Kind, a
// total switch rather than a registry, per the "tagged variant + total
// match" design (§9).
type Dispatcher struct {
	log *logger.Logger
	uri URIEnqueuer
}

func NewDispatcher(log *logger.Logger, uri URIEnqueuer) *Dispatcher {
	return &Dispatcher{log: log, uri: uri}
}

// Outcome reports what a handler decided, for the Atomic Ingestion Loop's
// post-commit URI-enqueue step. Warning carries a non-fatal note, such as
// an out-of-order event; an unknown kind yields a zero Outcome.
type Outcome struct {
	EnqueueURI   bool
	EnqueueAsset string
	EnqueueValue string
	Warning      string
}

// Dispatch applies ev inside tx and returns the outcome. Unknown kinds are a
// bug-class error (§7 kind 4): logged, skipped, no error returned, so the
// ingestion loop still advances the cursor past the poison pill.
func (d *Dispatcher) Dispatch(ctx context.Context, tx store.Tx, ev Event, evctx Context) (Outcome, error) {
	switch ev.Kind {
	case KindAgentRegisteredInRegistry:
		return d.handleAgentRegistered(ctx, tx, ev, evctx)
	case KindAgentOwnerSynced:
		return d.handleAgentOwnerSynced(ctx, tx, ev, evctx)
	case KindAtomEnabled:
		return d.handleAtomEnabled(ctx, tx, ev, evctx)
	case KindUriUpdated:
		return d.handleUriUpdated(ctx, tx, ev, evctx)
	case KindWalletUpdated:
		return d.handleWalletUpdated(ctx, tx, ev, evctx)
	case KindMetadataSet:
		return d.handleMetadataSet(ctx, tx, ev, evctx)
	case KindMetadataDeleted:
		return d.handleMetadataDeleted(ctx, tx, ev, evctx)
	case KindBaseRegistryCreated:
		return d.handleRegistryCreated(ctx, tx, ev, evctx, store.RegistryTypeBase)
	case KindUserRegistryCreated:
		return d.handleRegistryCreated(ctx, tx, ev, evctx, store.RegistryTypeUser)
	case KindNewFeedback:
		return d.handleNewFeedback(ctx, tx, ev, evctx)
	case KindFeedbackRevoked:
		return d.handleFeedbackRevoked(ctx, tx, ev, evctx)
	case KindResponseAppended:
		return d.handleResponseAppended(ctx, tx, ev, evctx)
	case KindValidationRequested:
		return d.handleValidationRequested(ctx, tx, ev, evctx)
	case KindValidationResponded:
		return d.handleValidationResponded(ctx, tx, ev, evctx)
	default:
		d.log.Errorf("event: unknown kind %q, skipping", ev.Kind)
		return Outcome{}, nil
	}
}

func assetID(raw [32]byte) string { return base58id.Encode(raw) }

func stripNUL(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c != 0 {
			out = append(out, c)
		}
	}
	return out
}

func isDefaultPubkey(k [32]byte) bool { return k == DefaultPubkey }

func hasURIPrefix(key string) bool {
	return len(key) >= 5 && key[:5] == "_uri:"
}
