// Package simulated provides in-process chain collaborators for development
// and tests. Transfers never leave the process; confirmation is delayed by a
// configurable amount to exercise the timeout path.
package simulated

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/settle/internal/calculator"
	"github.com/mmynk/settle/internal/chain"
)

var (
	_ chain.Executor     = (*Executor)(nil)
	_ chain.FeeEstimator = (*Executor)(nil)
)

// DefaultFee is quoted by EstimateFee.
const DefaultFee = "0.0001"

// Transfer is a transfer recorded by the executor.
type Transfer struct {
	TxHash string
	To     string
	Amount string
	Token  chain.Token
	SentAt time.Time
}

// Executor records transfers in memory.
type Executor struct {
	mu        sync.Mutex
	transfers map[string]Transfer
	order     []string
	block     uint64

	// ConfirmDelay is how long a transfer takes to be mined.
	ConfirmDelay time.Duration
	// FailWith makes Transfer fail with the given error.
	FailWith error
	// Revert makes every mined transfer report a reverted status.
	Revert bool
	// Balance caps the amount CheckAllowance approves. Empty means unlimited.
	Balance string
}

// NewExecutor creates an executor that confirms after delay.
func NewExecutor(delay time.Duration) *Executor {
	return &Executor{
		transfers:    make(map[string]Transfer),
		ConfirmDelay: delay,
	}
}

// Preview checks the transfer can be built.
func (e *Executor) Preview(ctx context.Context, to, amount string, token chain.Token) error {
	if err := chain.ValidateAddress(to); err != nil {
		return err
	}
	if _, err := calculator.ToTokenUnits(amount, token.Decimals); err != nil {
		return err
	}
	return ctx.Err()
}

// Transfer records the transfer and returns a random transaction hash.
func (e *Executor) Transfer(ctx context.Context, to, amount string, token chain.Token) (string, error) {
	if err := e.Preview(ctx, to, amount, token); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.FailWith != nil {
		return "", e.FailWith
	}

	hash, err := newTxHash()
	if err != nil {
		return "", err
	}
	e.transfers[hash] = Transfer{
		TxHash: hash,
		To:     to,
		Amount: amount,
		Token:  token,
		SentAt: time.Now(),
	}
	e.order = append(e.order, hash)
	return hash, nil
}

// WaitForConfirmation waits out ConfirmDelay, or timeout if that is shorter.
func (e *Executor) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*chain.Receipt, error) {
	e.mu.Lock()
	tx, ok := e.transfers[txHash]
	delay := e.ConfirmDelay
	revert := e.Revert
	e.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", txHash)
	}

	remaining := time.Until(tx.SentAt.Add(delay))
	if remaining > timeout {
		select {
		case <-time.After(timeout):
			return nil, chain.ErrConfirmationTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if remaining > 0 {
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	e.block++
	block := e.block
	e.mu.Unlock()

	status := chain.StatusSuccess
	if revert {
		status = chain.StatusReverted
	}
	return &chain.Receipt{TxHash: txHash, Status: status, BlockNumber: block}, nil
}

// EstimateFee quotes DefaultFee.
func (e *Executor) EstimateFee(ctx context.Context, to, amount string, token chain.Token) (string, error) {
	if err := e.Preview(ctx, to, amount, token); err != nil {
		return "", err
	}
	return DefaultFee, nil
}

// CheckAllowance compares amount against Balance.
func (e *Executor) CheckAllowance(_ context.Context, _ string, amount string, _ chain.Token) (bool, error) {
	e.mu.Lock()
	balance := e.Balance
	e.mu.Unlock()
	if balance == "" {
		return true, nil
	}

	want, err := calculator.ParseAmount(amount)
	if err != nil {
		return false, err
	}
	have, err := decimal.NewFromString(balance)
	if err != nil {
		return false, fmt.Errorf("invalid simulated balance %q: %w", balance, err)
	}
	return have.GreaterThanOrEqual(want), nil
}

// Transfers returns recorded transfers in the order they were sent.
func (e *Executor) Transfers() []Transfer {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Transfer, 0, len(e.order))
	for _, hash := range e.order {
		out = append(out, e.transfers[hash])
	}
	return out
}

func newTxHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate transaction hash: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}
