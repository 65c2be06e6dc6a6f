package ledger

import (
	"context"
	"fmt"

	"github.com/mmynk/settle/internal/storage"
)

// MarkNeedsRefresh leaves a marker telling observers that state changed.
func (s *Store) MarkNeedsRefresh(ctx context.Context) error {
	if err := s.kv.Set(ctx, storage.NeedsRefreshKey, "true"); err != nil {
		return fmt.Errorf("failed to set refresh marker: %w", err)
	}
	return nil
}

// ConsumeNeedsRefresh reports whether the refresh marker was set and clears it.
func (s *Store) ConsumeNeedsRefresh(ctx context.Context) (bool, error) {
	if tx, ok := s.kv.(storage.Transactor); ok {
		var set bool
		err := tx.Update(ctx, []string{storage.NeedsRefreshKey}, func(current map[string]string) (map[string]string, error) {
			set = current[storage.NeedsRefreshKey] == "true"
			if !set {
				return nil, nil
			}
			return map[string]string{storage.NeedsRefreshKey: "false"}, nil
		})
		if err != nil {
			return false, fmt.Errorf("failed to consume refresh marker: %w", err)
		}
		return set, nil
	}

	value, _, err := s.kv.Get(ctx, storage.NeedsRefreshKey)
	if err != nil {
		return false, fmt.Errorf("failed to read refresh marker: %w", err)
	}
	if value != "true" {
		return false, nil
	}
	if err := s.kv.Set(ctx, storage.NeedsRefreshKey, "false"); err != nil {
		return false, fmt.Errorf("failed to clear refresh marker: %w", err)
	}
	return true, nil
}
