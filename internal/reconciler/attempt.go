package reconciler

import (
	"errors"
	"fmt"

	"github.com/mmynk/settle/internal/models"
)

// State is the position of a payment attempt in its lifecycle.
//
//	Uninitialized -> Located | Fabricated -> Previewed -> Submitting -> Confirmed | Submitted | Failed
type State int

const (
	StateUninitialized State = iota
	StateLocated
	StateFabricated
	StatePreviewed
	StateSubmitting
	StateConfirmed
	// StateSubmitted means the transfer was sent but not confirmed in time.
	StateSubmitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLocated:
		return "located"
	case StateFabricated:
		return "fabricated"
	case StatePreviewed:
		return "previewed"
	case StateSubmitting:
		return "submitting"
	case StateConfirmed:
		return "confirmed"
	case StateSubmitted:
		return "submitted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateSubmitted || s == StateFailed
}

// Outcome is what a caller is told about a submission.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeSubmitted: the transfer may still be pending on-chain.
	OutcomeSubmitted Outcome = "submitted"
	// OutcomeRejected: nothing was sent.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed: the transfer was mined but did not succeed.
	OutcomeFailed Outcome = "failed"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// Attempt tracks one payer's attempt to settle one payment.
type Attempt struct {
	PaymentID string
	// Amount is the amount the payer was asked for by the link, if any.
	Amount    string
	GroupName string

	State   State
	Payment *models.Payment
	// Group is nil for a fabricated payment whose store already held other groups.
	Group *models.Group

	TxHash      string
	ExplorerURL string
}

// EffectiveAmount is the amount to send when the caller gives none.
func (a *Attempt) EffectiveAmount() string {
	if a.Amount != "" {
		return a.Amount
	}
	if a.Payment != nil {
		return a.Payment.Amount
	}
	return ""
}

func (a *Attempt) transition(to State) error {
	if !allowed(a.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, to)
	}
	a.State = to
	return nil
}

func allowed(from, to State) bool {
	switch to {
	case StateLocated, StateFabricated:
		return from == StateUninitialized
	case StatePreviewed:
		return from == StateLocated || from == StateFabricated || from == StatePreviewed
	case StateSubmitting:
		return from == StateLocated || from == StateFabricated || from == StatePreviewed
	case StateConfirmed, StateSubmitted, StateFailed:
		return from == StateSubmitting
	default:
		return false
	}
}
