package verify

import (
	"context"
	"time"

	"github.com/R3E-Network/agentindexer/pkg/logger"
)

// Account is the minimal on-chain account projection the verifier needs:
// whether it exists.
type Account struct {
	Exists bool
}

// RPC is the chain RPC collaborator (§6): "the engine treats timeouts and
// connection errors as unknown this attempt for retry purposes."
type RPC interface {
	GetSlot(ctx context.Context) (uint64, error)
	GetAccountInfo(ctx context.Context, pda string) (Account, error)
}

// RetryPolicy configures get_account_info's bounded exponential backoff
// (§4.E: "up to N attempts, default 3, with exponential backoff").
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond}
}

// getAccountWithRetry calls rpc.GetAccountInfo up to policy.MaxAttempts
// times. A final error or a final "not found" both resolve to "absent this
// cycle" — the caller treats both identically per §4.E.
func getAccountWithRetry(ctx context.Context, rpc RPC, pda string, policy RetryPolicy, log *logger.Logger) (present bool) {
	delay := policy.BaseDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		acct, err := rpc.GetAccountInfo(ctx, pda)
		if err == nil && acct.Exists {
			return true
		}
		if err != nil {
			log.WithField("pda", pda).WithField("attempt", attempt).WithField("err", err).Debug("verify: get_account_info attempt failed")
		}
		if attempt < policy.MaxAttempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return false
}
