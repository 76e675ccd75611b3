package chain

import (
	"context"
	"errors"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxFunc submits one transaction attempt given fresh opts (a new nonce is
// assigned by Identity.TransactOpts on every call).
type TxFunc func(ctx context.Context) (*types.Transaction, error)

// SubmitTransaction runs fn under the chain's transaction retry
// descriptor: on underpriced/nonce_conflict it reseeds the nonce and
// retries; reverts are classified and returned immediately, never
// retried (spec.md §4.1, §7).
func (c *Identity) SubmitTransaction(ctx context.Context, fn func(ctx context.Context) (*types.Transaction, error)) (*types.Transaction, error) {
	var tx *types.Transaction
	err := WithRetry(ctx, c.TxRetry, func() error {
		var err error
		tx, err = fn(ctx)
		if err == nil {
			return nil
		}
		kind := classifyTxError(err)
		txErr := &TransactionError{Kind: kind, Last: err}
		if !kind.Retryable() {
			// Reverts are never retried: wrap as a permanent backoff
			// error so backoff.Retry returns immediately.
			return backoff.Permanent(txErr)
		}
		if kind == TxNonceConflict || kind == TxUnderpriced {
			c.signer.resetNonce()
		}
		return txErr
	})
	if err != nil {
		var txErr *TransactionError
		if errors.As(err, &txErr) {
			return nil, txErr
		}
		return nil, err
	}
	return tx, nil
}

func classifyTxError(err error) TxErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "revert") || strings.Contains(msg, "execution reverted"):
		return TxReverted
	case strings.Contains(msg, "underpriced") || strings.Contains(msg, "replacement transaction"):
		return TxUnderpriced
	case strings.Contains(msg, "nonce too low") || strings.Contains(msg, "nonce too high"):
		return TxNonceConflict
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return TxTimeout
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "auth"):
		return TxAuth
	default:
		return TxTimeout
	}
}

// IsAlreadyFulfilled reports whether a revert reason matches the Adapter's
// "already fulfilled" benign revert (spec.md §4.4 step 5 / scenario S6).
func IsAlreadyFulfilled(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already fulfilled")
}

// IsRetryableTxError reports whether err looks like a transient submission
// failure (nonce conflict, underpriced, timeout) that a later attempt might
// succeed at, as opposed to a revert that must never be resubmitted
// (spec.md §4.4 step 5, §7).
func IsRetryableTxError(err error) bool {
	return err != nil && classifyTxError(err).Retryable()
}
