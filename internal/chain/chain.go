// Package chain defines the on-chain collaborators the ledger talks to: a
// transfer executor and a wallet-connection provider. Neither is implemented
// against a real network here; see the simulated package for a development
// implementation.
package chain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmynk/settle/internal/models"
)

// DefaultConfirmationTimeout bounds WaitForConfirmation.
const DefaultConfirmationTimeout = 60 * time.Second

var (
	ErrInvalidAddress      = errors.New("invalid address")
	ErrConfirmationTimeout = errors.New("transaction confirmation timeout")
	ErrUserRejected        = errors.New("user rejected")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrGasAllowance        = errors.New("gas required exceeds allowance")
	ErrReverted            = errors.New("execution reverted")
	ErrNotConnected        = errors.New("wallet not connected")
)

// Token identifies the asset being moved.
type Token struct {
	Address  string
	Symbol   string
	Decimals int32
}

// TxStatus is the on-chain outcome of a mined transaction.
type TxStatus int

const (
	StatusReverted TxStatus = iota
	StatusSuccess
)

// Receipt is returned once a transaction is mined.
type Receipt struct {
	TxHash      string
	Status      TxStatus
	BlockNumber uint64
}

// Executor submits token transfers and waits for them to be mined.
type Executor interface {
	// Preview prepares a transfer without sending it so the wallet can show it
	// to the user. Best effort.
	Preview(ctx context.Context, to, amount string, token Token) error

	// Transfer sends amount of token to the given address and returns the
	// transaction hash as soon as the transaction was accepted for broadcast.
	Transfer(ctx context.Context, to, amount string, token Token) (txHash string, err error)

	// WaitForConfirmation blocks until txHash is mined or timeout elapses.
	// It returns ErrConfirmationTimeout when the timeout is hit.
	WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error)
}

// FeeEstimator is implemented by executors that can quote network fees and
// check token allowances ahead of a transfer.
type FeeEstimator interface {
	EstimateFee(ctx context.Context, to, amount string, token Token) (fee string, err error)
	CheckAllowance(ctx context.Context, owner, amount string, token Token) (sufficient bool, err error)
}

// WalletProvider exposes the connected wallet.
type WalletProvider interface {
	Connect(ctx context.Context) (address string, err error)
	Disconnect(ctx context.Context) error
	CurrentAccount(ctx context.Context) (address string, ok bool)
	IsConnected(ctx context.Context) bool
	ChainInfo(ctx context.Context) models.ChainInfo
	// SignMessage signs message with the connected account, personal_sign
	// style. See SignMessage.
	SignMessage(ctx context.Context, message string) ([]byte, error)
}

// Reason turns an executor error into a message fit for an end user.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfirmationTimeout):
		return "Transaction submitted but not confirmed yet. Check the explorer link for its status."
	case errors.Is(err, ErrInsufficientFunds), strings.Contains(err.Error(), "insufficient funds"):
		return "Insufficient ETH to cover gas fees. Please add more ETH to your wallet."
	case errors.Is(err, ErrInsufficientBalance):
		return "Insufficient token balance for this payment."
	case errors.Is(err, ErrUserRejected), strings.Contains(err.Error(), "user rejected"):
		return "Transaction was rejected by the user."
	case errors.Is(err, ErrGasAllowance), strings.Contains(err.Error(), "gas required exceeds allowance"):
		return "Gas required exceeds allowance. Please increase the gas limit or try again later."
	case errors.Is(err, ErrReverted), strings.Contains(err.Error(), "execution reverted"):
		return "Transaction execution reverted by the token contract."
	default:
		return "Failed to send transaction: " + err.Error()
	}
}
