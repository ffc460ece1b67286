package database

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
)

// ErrStoreUnavailable marks failures where the store cannot be reached at
// all, as opposed to a single bad batch.
var ErrStoreUnavailable = errors.New("store unavailable")

// Database wraps the single short-lived connection a fetch run holds.
type Database struct {
	conn *pgx.Conn
	io.Closer
}

func New(conn *pgx.Conn) *Database {
	return &Database{conn: conn}
}

// EnsureSchema keeps the job runnable without a migrations folder; managed
// environments apply the same DDL via database/migration instead. IF NOT
// EXISTS does not make concurrent DDL safe, so this must run from a single
// session before any concurrent writers connect.
func (db *Database) EnsureSchema(ctx context.Context) error {
	const createTablesSQL = `
CREATE TABLE IF NOT EXISTS parking_bay_sensors (
    id BIGSERIAL PRIMARY KEY,
    zone_number INTEGER,
    kerbside_id TEXT NOT NULL,
    status_description TEXT NOT NULL,
    status_timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    last_updated TIMESTAMP WITH TIME ZONE,
    fetched_at TIMESTAMP WITH TIME ZONE NOT NULL,
    CONSTRAINT parking_bay_sensors_identity UNIQUE (kerbside_id, status_timestamp)
);
CREATE INDEX IF NOT EXISTS idx_parking_bay_sensors_status_timestamp ON parking_bay_sensors (status_timestamp);

CREATE TABLE IF NOT EXISTS pedestrian_counts (
    id BIGSERIAL PRIMARY KEY,
    location_id TEXT NOT NULL,
    sensor_name TEXT NOT NULL,
    slug TEXT NOT NULL,
    melbourne_time TIMESTAMP WITH TIME ZONE NOT NULL,
    pedestrian_count INTEGER NOT NULL CHECK (pedestrian_count >= 0),
    year INTEGER,
    month TEXT,
    day TEXT,
    hour INTEGER,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    fetched_at TIMESTAMP WITH TIME ZONE NOT NULL,
    CONSTRAINT pedestrian_counts_identity UNIQUE (location_id, melbourne_time)
);
CREATE INDEX IF NOT EXISTS idx_pedestrian_counts_melbourne_time ON pedestrian_counts (melbourne_time);
`
	if _, err := db.conn.Exec(ctx, createTablesSQL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (db *Database) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close(context.Background())
}
