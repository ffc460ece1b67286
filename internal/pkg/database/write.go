package database

import (
	"context"
	"fmt"

	"github.com/anicoll/melbourne-sensors/internal/pkg/model"
)

// WriteParkingBatch appends one batch inside a single transaction. Rows whose
// (kerbside_id, status_timestamp) already exist are skipped by the conflict
// clause; the returned count covers rows actually inserted.
func (db *Database) WriteParkingBatch(ctx context.Context, records []model.ParkingBayStatus) (int64, error) {
	tx, err := db.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for _, rec := range records {
		ct, err := tx.Exec(ctx, `
			INSERT INTO parking_bay_sensors
				(zone_number, kerbside_id, status_description, status_timestamp, latitude, longitude, last_updated, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT ON CONSTRAINT parking_bay_sensors_identity DO NOTHING
		`, rec.ZoneNumber, rec.KerbsideID, rec.StatusDescription, rec.StatusTimestamp,
			rec.Latitude, rec.Longitude, rec.LastUpdated, rec.FetchedAt)
		if err != nil {
			return 0, err
		}
		inserted += ct.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// WritePedestrianBatch appends one batch of hourly counts. A republished
// hour keeps its first stored value: the conflict clause skips, it never
// upserts.
func (db *Database) WritePedestrianBatch(ctx context.Context, records []model.PedestrianCount) (int64, error) {
	tx, err := db.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for _, rec := range records {
		ct, err := tx.Exec(ctx, `
			INSERT INTO pedestrian_counts
				(location_id, sensor_name, slug, melbourne_time, pedestrian_count, year, month, day, hour, latitude, longitude, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT ON CONSTRAINT pedestrian_counts_identity DO NOTHING
		`, rec.LocationID, rec.SensorName, rec.Slug, rec.MelbourneTime, rec.PedestrianCount,
			rec.Year, rec.Month, rec.Day, rec.Hour, rec.Latitude, rec.Longitude, rec.FetchedAt)
		if err != nil {
			return 0, err
		}
		inserted += ct.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}
