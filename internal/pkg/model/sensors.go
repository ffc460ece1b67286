package model

import (
	"fmt"
	"time"
)

// Parking bay status descriptions as published upstream.
const (
	StatusPresent    = "Present"
	StatusUnoccupied = "Unoccupied"
)

// ParkingBayStatus is one normalized on-street parking sensor reading.
// (KerbsideID, StatusTimestamp) is the dedup key; no two stored rows may
// share it.
type ParkingBayStatus struct {
	ZoneNumber        *int      `json:"zone_number"`
	KerbsideID        string    `json:"kerbsideid"`
	StatusDescription string    `json:"status_description"`
	StatusTimestamp   time.Time `json:"status_timestamp"`
	Latitude          *float64  `json:"latitude"`
	Longitude         *float64  `json:"longitude"`
	LastUpdated       time.Time `json:"lastupdated"`
	FetchedAt         time.Time `json:"fetched_at"`
}

func (p ParkingBayStatus) Key() string {
	return fmt.Sprintf("%s@%s", p.KerbsideID, p.StatusTimestamp.Format(time.RFC3339))
}

// PedestrianCount is one normalized hourly foot-traffic reading.
// (LocationID, MelbourneTime) is the dedup key: one row per location per hour.
type PedestrianCount struct {
	LocationID      string    `json:"location_id"`
	SensorName      string    `json:"sensor_name"`
	Slug            string    `json:"slug"`
	MelbourneTime   time.Time `json:"melbourne_time"`
	PedestrianCount int       `json:"pedestrian_count"`
	Year            int       `json:"year"`
	Month           string    `json:"month"`
	Day             string    `json:"day"`
	Hour            int       `json:"hour"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
	FetchedAt       time.Time `json:"fetched_at"`
}

func (p PedestrianCount) Key() string {
	return fmt.Sprintf("%s@%s", p.LocationID, p.MelbourneTime.Format(time.RFC3339))
}
