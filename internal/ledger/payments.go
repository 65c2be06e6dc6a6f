package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/settle/internal/calculator"
	"github.com/mmynk/settle/internal/chain"
	"github.com/mmynk/settle/internal/models"
)

// DefaultTempGroupName names fabricated groups when the link carries no name.
const DefaultTempGroupName = "Temporary Group"

// Placeholder describes a payment known only from a shared link.
type Placeholder struct {
	PaymentID string
	Amount    string
	GroupName string
	// Creator becomes the creator of a fabricated group. Empty means unknown.
	Creator string
}

// Fabricated reports what Fabricate had to create.
type Fabricated struct {
	Payment bool
	Group   bool
}

// Fabricate makes sure a payment known only from a link exists. The payment
// is added to the flat map if missing. A wrapping group is created only when
// the store holds no groups at all. It returns the stored payment and its
// group, which may be nil.
//
// Calling it again for the same id creates nothing new.
func (s *Store) Fabricate(ctx context.Context, ph Placeholder) (*models.Payment, *models.Group, Fabricated, error) {
	if !calculator.IsPositive(ph.Amount) {
		return nil, nil, Fabricated{}, fmt.Errorf("%w: amount %q", ErrValidation, ph.Amount)
	}

	var (
		payment *models.Payment
		group   *models.Group
		made    Fabricated
	)
	err := s.mutate(ctx, func(groups Groups, payments Payments) error {
		made = Fabricated{}
		var ok bool
		group = groupOf(groups, ph.PaymentID)
		payment, ok = payments[ph.PaymentID]
		switch {
		case ok:
		case group != nil:
			payment = paymentIn(group, payments, ph.PaymentID)
			made.Payment = true
		default:
			payment = &models.Payment{ID: ph.PaymentID, Amount: ph.Amount}
			payments[ph.PaymentID] = payment
			made.Payment = true
		}

		if group == nil && len(groups) == 0 {
			g, err := s.tempGroup(ph, *payment)
			if err != nil {
				return err
			}
			groups[g.ID] = g
			group = g
			made.Group = true
		}
		if !made.Payment && !made.Group {
			return errNothingToWrite
		}
		return nil
	})
	if err != nil {
		return nil, nil, Fabricated{}, fmt.Errorf("failed to fabricate payment %s: %w", ph.PaymentID, err)
	}

	if made.Payment || made.Group {
		slog.Warn("Payment not found, fabricated placeholder records",
			"payment_id", ph.PaymentID,
			"amount", ph.Amount,
			"fabricated_payment", made.Payment,
			"fabricated_group", made.Group,
		)
	}
	return payment, group, made, nil
}

// EnsureGroup returns the group wrapping the payment, creating the payment
// and a temporary group around it if needed. Unlike Fabricate it creates the
// group regardless of how many groups exist, since a transfer needs a
// destination. A temporary group with no known creator is handed to
// ph.Creator.
func (s *Store) EnsureGroup(ctx context.Context, ph Placeholder) (*models.Payment, *models.Group, error) {
	if !calculator.IsPositive(ph.Amount) {
		return nil, nil, fmt.Errorf("%w: amount %q", ErrValidation, ph.Amount)
	}

	var (
		payment *models.Payment
		group   *models.Group
		created bool
		adopted bool
	)
	err := s.mutate(ctx, func(groups Groups, payments Payments) error {
		created, adopted = false, false
		var ok bool
		group = groupOf(groups, ph.PaymentID)
		payment, ok = payments[ph.PaymentID]
		switch {
		case ok:
		case group != nil:
			payment = paymentIn(group, payments, ph.PaymentID)
		default:
			payment = &models.Payment{ID: ph.PaymentID, Amount: ph.Amount}
			payments[ph.PaymentID] = payment
		}

		if group == nil {
			g, err := s.tempGroup(ph, *payment)
			if err != nil {
				return err
			}
			groups[g.ID] = g
			group = g
			created = true
		} else if group.IsTemporary() && group.CreatorAddress == chain.ZeroAddress && ph.Creator != "" {
			group.CreatorAddress = ph.Creator
			adopted = true
		}
		if !created && !adopted && ok {
			return errNothingToWrite
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to ensure group for payment %s: %w", ph.PaymentID, err)
	}

	if created {
		slog.Warn("No group found for payment, created a temporary group",
			"payment_id", ph.PaymentID,
			"group_id", group.ID,
		)
	}
	if adopted {
		slog.Info("Temporary group adopted by payer", "group_id", group.ID, "creator", group.CreatorAddress)
	}
	return payment, group, nil
}

// RecordSubmitted stores the hash of a submitted but not yet confirmed
// transfer on an unpaid payment. Paid payments are left alone.
func (s *Store) RecordSubmitted(ctx context.Context, paymentID, txHash, explorerURL string) error {
	return s.mutate(ctx, func(groups Groups, payments Payments) error {
		p, err := lookupPayment(groups, payments, paymentID)
		if err != nil {
			return err
		}
		if p.Paid {
			return errNothingToWrite
		}
		p.TxHash = txHash
		p.ExplorerURL = explorerURL
		return nil
	})
}

// Receipt holds the fields recorded when a payment is confirmed.
type Receipt struct {
	PaidBy      string
	TxHash      string
	ExplorerURL string
	PaidAt      time.Time
}

// MarkPaid flips the payment to paid and records the confirmation. Paid is
// monotonic: marking a paid payment again returns ErrAlreadyPaid and changes
// nothing. It returns the id of the wrapping group, empty if there is none.
func (s *Store) MarkPaid(ctx context.Context, paymentID string, r Receipt) (string, error) {
	if r.PaidAt.IsZero() {
		r.PaidAt = s.now()
	}

	var groupID string
	err := s.mutate(ctx, func(groups Groups, payments Payments) error {
		p, err := lookupPayment(groups, payments, paymentID)
		if err != nil {
			return err
		}
		if p.Paid {
			return fmt.Errorf("%w: %s", ErrAlreadyPaid, paymentID)
		}

		paidAt := r.PaidAt
		p.Paid = true
		p.PaidAt = &paidAt
		p.PaidBy = r.PaidBy
		p.TransactionHash = r.TxHash
		p.TxHash = r.TxHash
		p.ExplorerURL = r.ExplorerURL

		groupID = ""
		if g := groupOf(groups, paymentID); g != nil {
			groupID = g.ID
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	slog.Info("Payment marked as paid", "payment_id", paymentID, "group_id", groupID, "tx_hash", r.TxHash)
	return groupID, nil
}

// lookupPayment finds the authoritative copy of a payment, falling back to an
// embedded copy that has no flat-map entry.
func lookupPayment(groups Groups, payments Payments, paymentID string) (*models.Payment, error) {
	if p, ok := payments[paymentID]; ok {
		return p, nil
	}
	if g := groupOf(groups, paymentID); g != nil {
		return paymentIn(g, payments, paymentID), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
}

func (s *Store) tempGroup(ph Placeholder, payment models.Payment) (*models.Group, error) {
	wallet, err := s.newWallet()
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(ph.GroupName)
	if name == "" {
		name = DefaultTempGroupName
	}
	creator := ph.Creator
	if creator == "" {
		creator = chain.ZeroAddress
	}

	suffix := s.newID()
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}

	return &models.Group{
		ID:                models.TempGroupPrefix + suffix,
		Name:              name,
		TotalAmount:       ph.Amount,
		WalletAddress:     wallet,
		CreatorAddress:    creator,
		NumberOfSplitters: 2,
		AmountPerPerson:   ph.Amount,
		Payments:          []models.Payment{payment},
		AmountCollected:   "0",
		CreatedAt:         s.now(),
		Network:           s.chain.Network,
		TokenSymbol:       s.chain.TokenSymbol,
		TokenAddress:      s.chain.TokenAddress,
	}, nil
}
