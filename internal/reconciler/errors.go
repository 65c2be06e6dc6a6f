package reconciler

import (
	"errors"
	"fmt"
)

var (
	ErrNoFundsToClaim = errors.New("No funds to claim")
	ErrNotOwner       = errors.New("only the group creator can claim")
)

// Stage names where a transfer went wrong.
type Stage string

const (
	StageSubmit  Stage = "submit"
	StageConfirm Stage = "confirm"
	StageClaim   Stage = "claim"
)

// TransferError is returned when the executor did not confirm a transfer.
// TxHash is set when the transfer was sent before the failure.
type TransferError struct {
	Stage   Stage
	Outcome Outcome
	Reason  string
	TxHash  string
	Err     error
}

func (e *TransferError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s: %s (tx %s)", e.Stage, e.Reason, e.TxHash)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
