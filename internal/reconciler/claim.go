package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/settle/internal/calculator"
	"github.com/mmynk/settle/internal/chain"
	"github.com/mmynk/settle/internal/ledger"
)

// ClaimResult describes a successful claim.
type ClaimResult struct {
	GroupID     string
	Amount      string
	Destination string
	TxHash      string
	ExplorerURL string
}

// Claim transfers the group's whole collected amount to destination and
// zeroes the aggregate. Payments keep their paid flags, so a later
// RecomputeCollected brings the claimed sum back.
//
// caller, when not empty, must be the group's creator.
func (r *Reconciler) Claim(ctx context.Context, groupID, caller, destination string) (*ClaimResult, error) {
	if err := chain.ValidateAddress(destination); err != nil {
		return nil, err
	}

	group, ok := r.ledger.GetGroup(ctx, groupID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrGroupNotFound, groupID)
	}
	if caller != "" && !group.OwnedBy(caller) {
		return nil, ErrNotOwner
	}

	amount, err := calculator.ParseAmount(group.AmountCollected)
	if err != nil || !amount.IsPositive() {
		r.metrics.Claim(string(OutcomeRejected))
		return nil, ErrNoFundsToClaim
	}

	token := r.token(group)
	slog.Info("Claiming collected funds",
		"group_id", groupID,
		"amount", group.AmountCollected,
		"to", destination,
	)

	txHash, err := r.executor.Transfer(ctx, destination, group.AmountCollected, token)
	if err != nil {
		r.metrics.Claim(string(OutcomeRejected))
		return nil, &TransferError{Stage: StageClaim, Outcome: OutcomeRejected, Reason: chain.Reason(err), Err: err}
	}

	receipt, err := r.executor.WaitForConfirmation(ctx, txHash, r.cfg.ConfirmationTimeout)
	if err != nil {
		r.metrics.Claim(string(OutcomeSubmitted))
		return nil, &TransferError{
			Stage:   StageClaim,
			Outcome: OutcomeSubmitted,
			Reason:  chain.Reason(chain.ErrConfirmationTimeout),
			TxHash:  txHash,
			Err:     err,
		}
	}
	if receipt.Status != chain.StatusSuccess {
		r.metrics.Claim(string(OutcomeFailed))
		return nil, &TransferError{
			Stage:   StageClaim,
			Outcome: OutcomeFailed,
			Reason:  chain.Reason(chain.ErrReverted),
			TxHash:  txHash,
			Err:     chain.ErrReverted,
		}
	}

	if err := r.ledger.ResetCollected(ctx, groupID); err != nil {
		return nil, fmt.Errorf("claim %s confirmed but collected amount not reset: %w", txHash, err)
	}
	r.metrics.Claim(string(OutcomeConfirmed))
	slog.Info("Funds claimed", "group_id", groupID, "amount", group.AmountCollected, "tx_hash", txHash)

	return &ClaimResult{
		GroupID:     groupID,
		Amount:      group.AmountCollected,
		Destination: destination,
		TxHash:      txHash,
		ExplorerURL: chain.ExplorerURL(r.cfg.ExplorerBaseURL, txHash),
	}, nil
}
