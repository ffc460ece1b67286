package melbourne

import (
	"bytes"
	"encoding/json"
	"time"
)

// DatasetQuery describes one records endpoint in the Explore catalog.
// TimeField is used both for upstream ordering and for the watermark filter,
// so pagination order and dedup comparison always agree.
type DatasetQuery struct {
	Dataset   string
	TimeField string
	// Watermark, when set, restricts the fetch to records at or after it.
	// The boundary record is deliberately refetched; the writer absorbs it.
	Watermark *time.Time
}

// Page is one bounded response unit from the records endpoint.
type Page struct {
	TotalCount int               `json:"total_count"`
	Results    []json.RawMessage `json:"results"`
	// HasMore is computed from offset and TotalCount, not part of the body.
	HasMore bool `json:"-"`
}

// flexID tolerates identifiers published as either JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexID(b)
	return nil
}

// timestamps arrive either with an offset or as bare local time depending on
// the dataset export.
var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05"}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
