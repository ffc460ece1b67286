package melbourne

import (
	"encoding/json"
	"time"

	"github.com/gosimple/slug"

	"github.com/anicoll/melbourne-sensors/internal/pkg/model"
)

// Dataset identifiers and their watermark fields in the Melbourne catalog.
const (
	ParkingDataset      = "on-street-parking-bay-sensors"
	ParkingTimeField    = "status_timestamp"
	PedestrianDataset   = "pedestrian-counting-system-monthly-counts-per-hour"
	PedestrianTimeField = "date_time"
)

type rawParkingRecord struct {
	ZoneNumber        *int     `json:"zone_number"`
	KerbsideID        flexID   `json:"kerbsideid"`
	StatusDescription string   `json:"status_description"`
	StatusTimestamp   string   `json:"status_timestamp"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	LastUpdated       string   `json:"lastupdated"`
}

// DecodeParkingPage turns one raw page into normalized parking records.
// Pure function: records missing their identity (kerbside id + status
// timestamp) are dropped and counted, never failing the page.
func DecodeParkingPage(page *Page, fetchedAt time.Time) ([]model.ParkingBayStatus, int) {
	records := make([]model.ParkingBayStatus, 0, len(page.Results))
	skipped := 0

	for _, raw := range page.Results {
		var r rawParkingRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			skipped++
			continue
		}
		if r.KerbsideID == "" {
			skipped++
			continue
		}
		ts, ok := parseTime(r.StatusTimestamp)
		if !ok {
			skipped++
			continue
		}

		rec := model.ParkingBayStatus{
			ZoneNumber:        r.ZoneNumber,
			KerbsideID:        string(r.KerbsideID),
			StatusDescription: r.StatusDescription,
			StatusTimestamp:   ts,
			Latitude:          r.Latitude,
			Longitude:         r.Longitude,
			FetchedAt:         fetchedAt,
		}
		if lu, ok := parseTime(r.LastUpdated); ok {
			rec.LastUpdated = lu
		}
		records = append(records, rec)
	}

	return records, skipped
}

type rawPedestrianRecord struct {
	SensorID     flexID   `json:"sensor_id"`
	SensorName   string   `json:"sensor_name"`
	DateTime     string   `json:"date_time"`
	HourlyCounts *int     `json:"hourly_counts"`
	Year         int      `json:"year"`
	Month        string   `json:"month"`
	Day          string   `json:"day"`
	Time         *int     `json:"time"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// DecodePedestrianPage turns one raw page into normalized hourly counts.
// Identity is (sensor id, hour); hours are truncated so one row per location
// per hour holds. Negative counts are treated as malformed.
func DecodePedestrianPage(page *Page, fetchedAt time.Time) ([]model.PedestrianCount, int) {
	records := make([]model.PedestrianCount, 0, len(page.Results))
	skipped := 0

	for _, raw := range page.Results {
		var r rawPedestrianRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			skipped++
			continue
		}
		if r.SensorID == "" || r.HourlyCounts == nil || *r.HourlyCounts < 0 {
			skipped++
			continue
		}
		ts, ok := parseTime(r.DateTime)
		if !ok {
			skipped++
			continue
		}
		ts = ts.Truncate(time.Hour)

		rec := model.PedestrianCount{
			LocationID:      string(r.SensorID),
			SensorName:      r.SensorName,
			Slug:            slug.Make(r.SensorName),
			MelbourneTime:   ts,
			PedestrianCount: *r.HourlyCounts,
			Year:            r.Year,
			Month:           r.Month,
			Day:             r.Day,
			Hour:            ts.Hour(),
			Latitude:        r.Latitude,
			Longitude:       r.Longitude,
			FetchedAt:       fetchedAt,
		}
		if r.Time != nil {
			rec.Hour = *r.Time
		}
		if rec.Year == 0 {
			rec.Year = ts.Year()
		}
		if rec.Month == "" {
			rec.Month = ts.Month().String()
		}
		if rec.Day == "" {
			rec.Day = ts.Weekday().String()
		}
		records = append(records, rec)
	}

	return records, skipped
}
