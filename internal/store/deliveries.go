package store

import (
	"context"
	"fmt"
)

// The platform forwarder redelivers events it considers unacknowledged,
// so every mention carries an event id that must be answered exactly once.
// The deliveries table holds only delivery state; conversation content is
// never persisted here.

// TryClaimDelivery records an event id as processed. It returns true when
// this call claimed the id, false when a previous delivery already did —
// the insert is the atomic dedupe decision, immune to concurrent workers.
func (s *Store) TryClaimDelivery(ctx context.Context, eventID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (event_id, claimed_at)
		VALUES ($1, now())
		ON CONFLICT (event_id) DO NOTHING
	`, eventID)
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", eventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseDelivery removes a claim so a redelivery can be processed again.
// Used when answering failed after the claim was taken.
func (s *Store) ReleaseDelivery(ctx context.Context, eventID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM deliveries WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("release delivery %s: %w", eventID, err)
	}
	return nil
}

// PruneDeliveries drops claims older than the retention window. The
// forwarder never redelivers beyond a few minutes, so old rows are noise.
func (s *Store) PruneDeliveries(ctx context.Context, olderThanDays int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM deliveries
		WHERE claimed_at < now() - make_interval(days => $1)
	`, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}
