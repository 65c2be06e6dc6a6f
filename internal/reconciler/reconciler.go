// Package reconciler drives a payment from a shared link to a paid ledger
// entry: locate or fabricate the records, preview, submit the transfer, record
// the outcome, recompute the group's collected amount and notify observers.
// It also implements claiming a group's collected funds.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/settle/internal/calculator"
	"github.com/mmynk/settle/internal/chain"
	"github.com/mmynk/settle/internal/ledger"
	"github.com/mmynk/settle/internal/link"
	"github.com/mmynk/settle/internal/metrics"
	"github.com/mmynk/settle/internal/models"
	"github.com/mmynk/settle/internal/notify"
)

// Config holds reconciler settings.
type Config struct {
	// ConfirmationTimeout bounds the wait for a transfer to be mined.
	ConfirmationTimeout time.Duration
	// ExplorerBaseURL is the block explorer, e.g. https://sepolia.basescan.org.
	ExplorerBaseURL string
	// TokenDecimals of the settlement token.
	TokenDecimals int32
}

// Reconciler is stateless; attempts carry the per-payment state.
type Reconciler struct {
	ledger    *ledger.Store
	executor  chain.Executor
	publisher notify.Publisher
	metrics   *metrics.Metrics
	cfg       Config
	now       func() time.Time
}

// New creates a Reconciler. m may be nil.
func New(l *ledger.Store, executor chain.Executor, publisher notify.Publisher, m *metrics.Metrics, cfg Config) *Reconciler {
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = chain.DefaultConfirmationTimeout
	}
	return &Reconciler{
		ledger:    l,
		executor:  executor,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Locate loads the payment a link points at. If it is unknown, placeholder
// records are fabricated from the link so the payer can still pay. payer may
// be empty; it becomes the creator of a fabricated group.
func (r *Reconciler) Locate(ctx context.Context, l link.Link, payer string) (*Attempt, error) {
	a := &Attempt{
		PaymentID: l.PaymentID,
		Amount:    l.Amount,
		GroupName: l.GroupName,
	}

	if p, g, ok := r.ledger.GetPayment(ctx, l.PaymentID); ok {
		a.Payment, a.Group = p, g
		if err := a.transition(StateLocated); err != nil {
			return nil, err
		}
		slog.Info("Payment located", "payment_id", a.PaymentID, "group_id", g.ID, "paid", p.Paid)
		return a, nil
	}

	if l.Amount == "" {
		return nil, fmt.Errorf("%w: payment %s", ledger.ErrPaymentNotFound, l.PaymentID)
	}

	p, g, made, err := r.ledger.Fabricate(ctx, ledger.Placeholder{
		PaymentID: l.PaymentID,
		Amount:    l.Amount,
		GroupName: l.GroupName,
		Creator:   payer,
	})
	if err != nil {
		return nil, err
	}
	if made.Payment {
		r.metrics.Fabricated("payment")
	}
	if made.Group {
		r.metrics.Fabricated("group")
	}

	a.Payment, a.Group = p, g
	if err := a.transition(StateFabricated); err != nil {
		return nil, err
	}
	return a, nil
}

// Preview describes the transfer a submit would make.
type Preview struct {
	Destination string
	Amount      string
	Token       chain.Token
	Network     string
	// Fee and Sufficient are filled when the executor can estimate them.
	Fee        string
	Sufficient *bool
	// Warning explains why the preview is incomplete. It never blocks a submit.
	Warning string
}

// Preview resolves destination, amount and token and asks the executor to
// prepare the transfer. Executor failures are reported in the Warning.
func (r *Reconciler) Preview(ctx context.Context, a *Attempt, payer string) (*Preview, error) {
	if err := a.transition(StatePreviewed); err != nil {
		return nil, err
	}

	// Creator-side writes may have landed since Locate.
	if a.Group == nil {
		if p, g, ok := r.ledger.GetPayment(ctx, a.PaymentID); ok {
			a.Payment, a.Group = p, g
		}
	}

	pv := &Preview{Amount: a.EffectiveAmount()}
	if a.Group == nil {
		pv.Token = r.defaultToken()
		pv.Network = r.ledger.ChainInfo().Network
		pv.Warning = "Destination will be assigned when the payment is submitted."
		return pv, nil
	}

	pv.Destination = a.Group.WalletAddress
	pv.Token = r.token(a.Group)
	pv.Network = a.Group.Network

	if err := r.executor.Preview(ctx, pv.Destination, pv.Amount, pv.Token); err != nil {
		slog.Warn("Transfer preview failed", "payment_id", a.PaymentID, "error", err)
		pv.Warning = "Failed to preview token transfer: " + err.Error()
		return pv, nil
	}

	if est, ok := r.executor.(chain.FeeEstimator); ok {
		if fee, err := est.EstimateFee(ctx, pv.Destination, pv.Amount, pv.Token); err == nil {
			pv.Fee = fee
		} else {
			slog.Warn("Fee estimation failed", "payment_id", a.PaymentID, "error", err)
		}
		if payer != "" {
			if ok, err := est.CheckAllowance(ctx, payer, pv.Amount, pv.Token); err == nil {
				pv.Sufficient = &ok
				if !ok {
					pv.Warning = chain.Reason(chain.ErrInsufficientBalance)
				}
			} else {
				slog.Warn("Allowance check failed", "payment_id", a.PaymentID, "error", err)
			}
		}
	}
	return pv, nil
}

// Result is the outcome of a submit.
type Result struct {
	Outcome     Outcome
	PaymentID   string
	GroupID     string
	Amount      string
	TxHash      string
	ExplorerURL string
	Reason      string
}

// Submit sends amount from payer to the payment's group and records the
// outcome. An empty amount means the attempt's effective amount. The amount
// sent is authoritative; the stored payment amount is not corrected.
// The group's AmountCollected is recomputed from stored amounts, so after a
// payment with a different amount it can differ from what was actually sent.
//
// Validation failures return an error and no Result. Executor failures
// return both a Result describing the outcome and a *TransferError. The
// payment is marked paid only after the transfer confirmed.
func (r *Reconciler) Submit(ctx context.Context, a *Attempt, payer, amount string) (*Result, error) {
	if err := chain.ValidateAddress(payer); err != nil {
		return nil, err
	}
	if amount == "" {
		amount = a.EffectiveAmount()
	}
	if !calculator.IsPositive(amount) {
		return nil, fmt.Errorf("%w: amount %q", ledger.ErrValidation, amount)
	}
	if a.Payment != nil && a.Payment.Paid {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAlreadyPaid, a.PaymentID)
	}
	if err := a.transition(StateSubmitting); err != nil {
		return nil, err
	}

	payment, group, err := r.ledger.EnsureGroup(ctx, ledger.Placeholder{
		PaymentID: a.PaymentID,
		Amount:    amount,
		GroupName: a.GroupName,
		Creator:   payer,
	})
	if err != nil {
		return r.reject(a, amount, StageSubmit, err)
	}
	a.Payment, a.Group = payment, group
	if payment.Paid {
		return r.reject(a, amount, StageSubmit, fmt.Errorf("%w: %s", ledger.ErrAlreadyPaid, a.PaymentID))
	}
	if err := chain.ValidateAddress(group.WalletAddress); err != nil {
		return r.reject(a, amount, StageSubmit, err)
	}

	token := r.token(group)
	slog.Info("Submitting payment",
		"payment_id", a.PaymentID,
		"group_id", group.ID,
		"to", group.WalletAddress,
		"amount", amount,
		"token", token.Symbol,
	)

	sentAt := r.now()
	txHash, err := r.executor.Transfer(ctx, group.WalletAddress, amount, token)
	if err != nil {
		return r.reject(a, amount, StageSubmit, err)
	}
	a.TxHash = txHash
	a.ExplorerURL = chain.ExplorerURL(r.cfg.ExplorerBaseURL, txHash)

	if err := r.ledger.RecordSubmitted(ctx, a.PaymentID, a.TxHash, a.ExplorerURL); err != nil {
		slog.Warn("Failed to record submitted transaction", "payment_id", a.PaymentID, "tx_hash", txHash, "error", err)
	}

	receipt, err := r.executor.WaitForConfirmation(ctx, txHash, r.cfg.ConfirmationTimeout)
	if err != nil {
		return r.finish(a, amount, StateSubmitted, OutcomeSubmitted, &TransferError{
			Stage:   StageConfirm,
			Outcome: OutcomeSubmitted,
			Reason:  chain.Reason(chain.ErrConfirmationTimeout),
			TxHash:  txHash,
			Err:     err,
		})
	}
	if receipt.Status != chain.StatusSuccess {
		return r.finish(a, amount, StateFailed, OutcomeFailed, &TransferError{
			Stage:   StageConfirm,
			Outcome: OutcomeFailed,
			Reason:  chain.Reason(chain.ErrReverted),
			TxHash:  txHash,
			Err:     chain.ErrReverted,
		})
	}
	r.metrics.Confirmed(r.now().Sub(sentAt))

	groupID, err := r.ledger.MarkPaid(ctx, a.PaymentID, ledger.Receipt{
		PaidBy:      payer,
		TxHash:      txHash,
		ExplorerURL: a.ExplorerURL,
		PaidAt:      r.now(),
	})
	switch {
	case errors.Is(err, ledger.ErrAlreadyPaid):
		slog.Warn("Payment was marked paid concurrently", "payment_id", a.PaymentID, "tx_hash", txHash)
		groupID = group.ID
	case err != nil:
		if err := a.transition(StateConfirmed); err != nil {
			return nil, err
		}
		r.metrics.Payment(string(OutcomeConfirmed))
		return r.result(a, amount, OutcomeConfirmed, ""), fmt.Errorf("transfer %s confirmed but not recorded: %w", txHash, err)
	}

	if groupID != "" {
		if _, err := r.ledger.RecomputeCollected(ctx, groupID); err != nil {
			slog.Warn("Failed to recompute collected amount", "group_id", groupID, "error", err)
		}
	}
	if err := r.ledger.MarkNeedsRefresh(ctx); err != nil {
		slog.Warn("Failed to set refresh marker", "error", err)
	}
	if r.publisher != nil {
		r.publisher.Publish(ctx, notify.Event{PaymentID: a.PaymentID, GroupID: groupID, Amount: amount})
	}

	if err := a.transition(StateConfirmed); err != nil {
		return nil, err
	}
	r.metrics.Payment(string(OutcomeConfirmed))
	slog.Info("Payment confirmed", "payment_id", a.PaymentID, "group_id", groupID, "tx_hash", txHash)

	res := r.result(a, amount, OutcomeConfirmed, "")
	res.GroupID = groupID
	return res, nil
}

// reject ends an attempt that never reached the chain.
func (r *Reconciler) reject(a *Attempt, amount string, stage Stage, err error) (*Result, error) {
	reason := chain.Reason(err)
	if errors.Is(err, ledger.ErrAlreadyPaid) {
		reason = "This payment has already been made."
	}
	return r.finish(a, amount, StateFailed, OutcomeRejected, &TransferError{
		Stage:   stage,
		Outcome: OutcomeRejected,
		Reason:  reason,
		Err:     err,
	})
}

func (r *Reconciler) finish(a *Attempt, amount string, state State, outcome Outcome, terr *TransferError) (*Result, error) {
	if err := a.transition(state); err != nil {
		return nil, err
	}
	r.metrics.Payment(string(outcome))
	slog.Error("Payment not confirmed",
		"payment_id", a.PaymentID,
		"outcome", outcome,
		"tx_hash", terr.TxHash,
		"error", terr.Err,
	)
	return r.result(a, amount, outcome, terr.Reason), terr
}

func (r *Reconciler) result(a *Attempt, amount string, outcome Outcome, reason string) *Result {
	res := &Result{
		Outcome:     outcome,
		PaymentID:   a.PaymentID,
		Amount:      amount,
		TxHash:      a.TxHash,
		ExplorerURL: a.ExplorerURL,
		Reason:      reason,
	}
	if a.Group != nil {
		res.GroupID = a.Group.ID
	}
	return res
}

func (r *Reconciler) token(g *models.Group) chain.Token {
	return chain.Token{
		Address:  g.TokenAddress,
		Symbol:   g.TokenSymbol,
		Decimals: r.cfg.TokenDecimals,
	}
}

func (r *Reconciler) defaultToken() chain.Token {
	info := r.ledger.ChainInfo()
	return chain.Token{
		Address:  info.TokenAddress,
		Symbol:   info.TokenSymbol,
		Decimals: r.cfg.TokenDecimals,
	}
}
