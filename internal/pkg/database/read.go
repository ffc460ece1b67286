package database

import (
	"context"
	"fmt"
	"time"
)

// ParkingWatermark returns the latest status timestamp already stored, or
// nil when the table is empty (first run).
func (db *Database) ParkingWatermark(ctx context.Context) (*time.Time, error) {
	return db.maxTimestamp(ctx, "SELECT max(status_timestamp) FROM parking_bay_sensors")
}

// PedestrianWatermark returns the latest stored hour, or nil when the table
// is empty.
func (db *Database) PedestrianWatermark(ctx context.Context) (*time.Time, error) {
	return db.maxTimestamp(ctx, "SELECT max(melbourne_time) FROM pedestrian_counts")
}

func (db *Database) maxTimestamp(ctx context.Context, query string) (*time.Time, error) {
	var ts *time.Time
	if err := db.conn.QueryRow(ctx, query).Scan(&ts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ts, nil
}
