package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mmynk/settle/internal/calculator"
	"github.com/mmynk/settle/internal/models"
)

// CreateGroup validates the input and stores a new group together with
// splitters-1 unpaid payments of amountPerPerson each. The creator is the
// implicit last splitter and gets no payment.
func (s *Store) CreateGroup(ctx context.Context, name, totalAmount string, splitters int, creatorAddress string) (*models.Group, error) {
	perPerson, err := calculator.SplitEvenly(totalAmount, splitters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	wallet, err := s.newWallet()
	if err != nil {
		return nil, err
	}

	group := &models.Group{
		ID:                s.newID(),
		Name:              strings.TrimSpace(name),
		TotalAmount:       totalAmount,
		WalletAddress:     wallet,
		CreatorAddress:    creatorAddress,
		NumberOfSplitters: splitters,
		AmountPerPerson:   perPerson,
		Payments:          make([]models.Payment, 0, splitters-1),
		AmountCollected:   "0",
		CreatedAt:         s.now(),
		Network:           s.chain.Network,
		TokenSymbol:       s.chain.TokenSymbol,
		TokenAddress:      s.chain.TokenAddress,
	}
	for range splitters - 1 {
		group.Payments = append(group.Payments, models.Payment{
			ID:     s.newID(),
			Amount: perPerson,
		})
	}

	err = s.mutate(ctx, func(groups Groups, payments Payments) error {
		for i := range group.Payments {
			p := group.Payments[i]
			payments[p.ID] = &p
		}
		groups[group.ID] = group
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	slog.Info("Group created",
		"group_id", group.ID,
		"total_amount", group.TotalAmount,
		"splitters", splitters,
		"amount_per_person", perPerson,
	)
	return group, nil
}

// GetGroup returns the group with the given id.
func (s *Store) GetGroup(ctx context.Context, id string) (*models.Group, bool) {
	groups, _ := s.Load(ctx)
	g, ok := groups[id]
	return g, ok
}

// GetUserGroups returns the groups created by address, newest first.
// Addresses match case-insensitively.
func (s *Store) GetUserGroups(ctx context.Context, address string) []*models.Group {
	groups, _ := s.Load(ctx)

	var owned []*models.Group
	for _, g := range groups {
		if g.OwnedBy(address) {
			owned = append(owned, g)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID < owned[j].ID
	})
	return owned
}

// GetPayment returns a payment and the group it belongs to. Both the flat
// entry and a wrapping group must exist.
func (s *Store) GetPayment(ctx context.Context, id string) (*models.Payment, *models.Group, bool) {
	groups, payments := s.Load(ctx)
	p, ok := payments[id]
	if !ok {
		return nil, nil, false
	}
	g := groupOf(groups, id)
	if g == nil {
		return nil, nil, false
	}
	return p, g, true
}

// UpdateMemberName sets the display name on a payment of groupID. It touches
// nothing but the name.
func (s *Store) UpdateMemberName(ctx context.Context, groupID, paymentID, name string) error {
	return s.mutate(ctx, func(groups Groups, payments Payments) error {
		g, ok := groups[groupID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
		}
		i := g.PaymentIndex(paymentID)
		if i < 0 {
			return fmt.Errorf("%w: %s in group %s", ErrPaymentNotFound, paymentID, groupID)
		}
		g.Payments[i].MemberName = name
		if p := paymentIn(g, payments, paymentID); p != nil {
			p.MemberName = name
		}
		return nil
	})
}

// RecomputeCollected sets the group's collected amount to the sum of its paid
// payments. Paid status is read from the flat payment map.
func (s *Store) RecomputeCollected(ctx context.Context, groupID string) (string, error) {
	var collected string
	err := s.mutate(ctx, func(groups Groups, payments Payments) error {
		g, ok := groups[groupID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
		}

		var paid []string
		for _, embedded := range g.Payments {
			if p, ok := payments[embedded.ID]; ok && p.Paid {
				paid = append(paid, p.Amount)
			}
		}
		sum, err := calculator.Sum(paid)
		if err != nil {
			return fmt.Errorf("group %s: %w", groupID, err)
		}
		g.AmountCollected = sum
		collected = sum
		return nil
	})
	if err != nil {
		return "", err
	}

	slog.Debug("Collected amount recomputed", "group_id", groupID, "amount_collected", collected)
	return collected, nil
}

// ResetCollected zeroes the group's collected amount. Payments are untouched,
// so a later RecomputeCollected restores the sum.
func (s *Store) ResetCollected(ctx context.Context, groupID string) error {
	return s.mutate(ctx, func(groups Groups, _ Payments) error {
		g, ok := groups[groupID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
		}
		g.AmountCollected = "0"
		return nil
	})
}
