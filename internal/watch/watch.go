// Package watch keeps a creator's view of their groups fresh. A view is
// refreshed on a fixed interval and whenever a payment completes; both are
// best-effort cache invalidation, not a consistency guarantee.
package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmynk/settle/internal/ledger"
	"github.com/mmynk/settle/internal/models"
	"github.com/mmynk/settle/internal/notify"
)

// DefaultInterval is how often a view reloads without being prompted.
const DefaultInterval = 10 * time.Second

// Trigger names what caused a refresh.
type Trigger string

const (
	TriggerInitial  Trigger = "initial"
	TriggerInterval Trigger = "interval"
	TriggerPayment  Trigger = "payment"
)

// Snapshot is one refresh of a creator's groups.
type Snapshot struct {
	Trigger Trigger
	Groups  []*models.Group
	// Selected is the group whose collected amount was recomputed.
	Selected string
}

// Poller produces snapshots.
type Poller struct {
	ledger   *ledger.Store
	bus      *notify.Bus
	interval time.Duration
}

// New creates a Poller. bus may be nil, in which case only the interval
// drives refreshes.
func New(l *ledger.Store, bus *notify.Bus, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{ledger: l, bus: bus, interval: interval}
}

// Watch calls fn with a fresh snapshot of address's groups now, every
// interval, and after every payment notification, until ctx is done or fn
// returns an error. The selected group (the first one when selected is
// empty) has its collected amount recomputed on each refresh.
func (p *Poller) Watch(ctx context.Context, address, selected string, fn func(Snapshot) error) error {
	// A payment may have completed since this view was last open.
	if _, err := p.ledger.ConsumeNeedsRefresh(ctx); err != nil {
		slog.Warn("Failed to read refresh marker", "error", err)
	}

	payments := make(chan struct{}, 1)
	if p.bus != nil {
		unsubscribe := p.bus.Subscribe(func(notify.Event) {
			select {
			case payments <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	trigger := TriggerInitial
	for {
		snap := p.refresh(ctx, address, selected, trigger)
		if snap.Selected != "" {
			selected = snap.Selected
		}
		if err := fn(snap); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			trigger = TriggerInterval
		case <-payments:
			trigger = TriggerPayment
		}
	}
}

func (p *Poller) refresh(ctx context.Context, address, selected string, trigger Trigger) Snapshot {
	groups := p.ledger.GetUserGroups(ctx, address)
	snap := Snapshot{Trigger: trigger, Groups: groups}
	if len(groups) == 0 {
		return snap
	}

	target := groups[0]
	for _, g := range groups {
		if g.ID == selected {
			target = g
			break
		}
	}
	snap.Selected = target.ID

	collected, err := p.ledger.RecomputeCollected(ctx, target.ID)
	if err != nil {
		slog.Warn("Failed to recompute collected amount", "group_id", target.ID, "error", err)
		return snap
	}
	target.AmountCollected = collected

	slog.Debug("Groups refreshed",
		"address", address,
		"trigger", trigger,
		"groups", len(groups),
		"selected", target.ID,
	)
	return snap
}
