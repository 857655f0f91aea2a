package store

import (
	"context"

	"commerce-core/internal/models"
)

// InsertTrackingEvent appends one entry to an order's audit trail
func (s *Store) InsertTrackingEvent(ctx context.Context, orderID int64, status, description string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_tracking_events (order_id, status, description, created_at)
		VALUES ($1, $2, $3, NOW())`,
		orderID, status, description)
	return err
}

// ListTrackingEvents returns an order's audit trail in creation order
func (s *Store) ListTrackingEvents(ctx context.Context, orderID int64) ([]models.TrackingEvent, error) {
	var events []models.TrackingEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM order_tracking_events WHERE order_id = $1 ORDER BY created_at, id",
		orderID)
	return events, err
}
