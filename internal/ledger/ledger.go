// Package ledger keeps groups and their payment obligations in a key-value
// store.
//
// State lives under two keys, one JSON object of groups and one of payments,
// both keyed by id. Each payment is stored twice: in the flat payments map
// and embedded in its group. The flat map is authoritative; embedded copies
// are refreshed from it whenever state is loaded or saved.
//
// Every operation reloads from the backing store first. Mutations run as a
// load, mutate, save cycle. When the backend implements storage.Transactor
// the cycle is optimistic and retried on conflict; otherwise concurrent
// writers race and the last save wins.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/settle/internal/chain"
	"github.com/mmynk/settle/internal/models"
	"github.com/mmynk/settle/internal/storage"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrGroupNotFound   = errors.New("group not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrAlreadyPaid     = errors.New("payment already paid")

	// errNothingToWrite aborts a mutation that found nothing to change.
	errNothingToWrite = errors.New("nothing to write")
)

// conflictRetries bounds how often a mutation is rerun after the backend gave
// up with storage.ErrConflict.
const conflictRetries = 3

// Groups maps group id to group.
type Groups map[string]*models.Group

// Payments maps payment id to payment.
type Payments map[string]*models.Payment

// Store is the ledger. It holds no cached state between calls.
type Store struct {
	kv        storage.Store
	chain     models.ChainInfo
	now       func() time.Time
	newID     func() string
	newWallet func() (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the id generator used for groups and payments.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithWalletGenerator overrides how group wallet addresses are generated.
func WithWalletGenerator(newWallet func() (string, error)) Option {
	return func(s *Store) { s.newWallet = newWallet }
}

// New creates a ledger over kv. Groups created by the ledger settle on the
// given chain and token.
func New(kv storage.Store, chainInfo models.ChainInfo, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		chain:     chainInfo,
		now:       time.Now,
		newID:     uuid.NewString,
		newWallet: chain.NewWalletAddress,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChainInfo returns the chain descriptor new groups are created with.
func (s *Store) ChainInfo() models.ChainInfo {
	return s.chain
}

// Load returns the persisted state. It never fails: unreadable or corrupt
// state is logged and treated as empty.
func (s *Store) Load(ctx context.Context) (Groups, Payments) {
	groups, payments, err := s.read(ctx)
	if err != nil {
		slog.Warn("Failed to load ledger, using empty state", "error", err)
		return Groups{}, Payments{}
	}
	return groups, payments
}

// Save persists both collections. Embedded payment copies are refreshed from
// payments before writing.
func (s *Store) Save(ctx context.Context, groups Groups, payments Payments) error {
	values, err := encode(groups, payments)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, storage.GroupsKey, values[storage.GroupsKey]); err != nil {
		return fmt.Errorf("failed to save groups: %w", err)
	}
	if err := s.kv.Set(ctx, storage.PaymentsKey, values[storage.PaymentsKey]); err != nil {
		return fmt.Errorf("failed to save payments: %w", err)
	}
	return nil
}

// read loads both keys. Backend errors are returned; parse errors are not.
func (s *Store) read(ctx context.Context) (Groups, Payments, error) {
	current := make(map[string]string, 2)
	for _, key := range []string{storage.GroupsKey, storage.PaymentsKey} {
		value, found, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if found {
			current[key] = value
		}
	}
	groups, payments := decode(current)
	return groups, payments, nil
}

// mutate runs fn inside a load, mutate, save cycle. If fn returns an error
// nothing is written.
func (s *Store) mutate(ctx context.Context, fn func(Groups, Payments) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = s.cycle(ctx, fn)
		if !errors.Is(err, storage.ErrConflict) {
			break
		}
		slog.Debug("Ledger update conflicted, retrying", "attempt", attempt+1)
	}
	if errors.Is(err, errNothingToWrite) {
		return nil
	}
	return err
}

func (s *Store) cycle(ctx context.Context, fn func(Groups, Payments) error) error {
	if tx, ok := s.kv.(storage.Transactor); ok {
		keys := []string{storage.GroupsKey, storage.PaymentsKey}
		return tx.Update(ctx, keys, func(current map[string]string) (map[string]string, error) {
			groups, payments := decode(current)
			if err := fn(groups, payments); err != nil {
				return nil, err
			}
			return encode(groups, payments)
		})
	}

	groups, payments, err := s.read(ctx)
	if err != nil {
		return err
	}
	if err := fn(groups, payments); err != nil {
		return err
	}
	return s.Save(ctx, groups, payments)
}

func decode(current map[string]string) (Groups, Payments) {
	groups := Groups{}
	payments := Payments{}

	if raw, ok := current[storage.GroupsKey]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &groups); err != nil {
			slog.Warn("Corrupt groups in storage, using empty state", "error", err)
			return Groups{}, Payments{}
		}
	}
	if raw, ok := current[storage.PaymentsKey]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &payments); err != nil {
			slog.Warn("Corrupt payments in storage, using empty state", "error", err)
			return Groups{}, Payments{}
		}
	}

	// JSON null entries decode to nil pointers.
	for id, g := range groups {
		if g == nil {
			delete(groups, id)
		}
	}
	for id, p := range payments {
		if p == nil {
			delete(payments, id)
		}
	}

	syncEmbedded(groups, payments)
	return groups, payments
}

func encode(groups Groups, payments Payments) (map[string]string, error) {
	syncEmbedded(groups, payments)

	g, err := json.Marshal(groups)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize groups: %w", err)
	}
	p, err := json.Marshal(payments)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payments: %w", err)
	}
	return map[string]string{
		storage.GroupsKey:   string(g),
		storage.PaymentsKey: string(p),
	}, nil
}

// syncEmbedded overwrites every embedded payment that has a flat-map entry.
// Embedded payments without one are left alone.
func syncEmbedded(groups Groups, payments Payments) {
	for _, g := range groups {
		for i := range g.Payments {
			if p, ok := payments[g.Payments[i].ID]; ok {
				g.Payments[i] = *p
			}
		}
	}
}

// groupOf returns the group embedding paymentID.
func groupOf(groups Groups, paymentID string) *models.Group {
	for _, g := range groups {
		if g.HasPayment(paymentID) {
			return g
		}
	}
	return nil
}

// paymentIn returns the authoritative copy of a payment embedded in g,
// promoting the embedded copy to the flat map if it has no entry there.
func paymentIn(g *models.Group, payments Payments, paymentID string) *models.Payment {
	if p, ok := payments[paymentID]; ok {
		return p
	}
	i := g.PaymentIndex(paymentID)
	if i < 0 {
		return nil
	}
	p := g.Payments[i]
	payments[paymentID] = &p
	return &p
}
