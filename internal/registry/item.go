package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// appleEpoch is 2001-01-01T00:00:00Z. Older config files store dateAdded as
// seconds since this reference date.
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Item is a tracked launchd job. ID is the only key for updates and removal;
// two items may share a label.
type Item struct {
	ID          uuid.UUID `json:"id"`
	Label       string    `json:"label"`
	DisplayName string    `json:"displayName"`
	DateAdded   Timestamp `json:"dateAdded"`
}

// Name returns the display name, or the label when none is set.
func (it Item) Name() string {
	if it.DisplayName != "" {
		return it.DisplayName
	}
	return it.Label
}

// Timestamp is a time that accepts RFC3339 strings as well as epoch numbers
// when decoding. It always encodes as RFC3339.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("dateAdded: %w", err)
		}
		t.Time = parsed
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("dateAdded: %w", err)
	}
	t.Time = fromEpochSeconds(secs)
	return nil
}

// fromEpochSeconds reads values below the Apple epoch's Unix offset as
// reference-date seconds and everything else as Unix seconds.
func fromEpochSeconds(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	nanos := int64(frac * float64(time.Second))
	if secs < float64(appleEpoch.Unix()) {
		return appleEpoch.Add(time.Duration(whole)*time.Second + time.Duration(nanos)).UTC()
	}
	return time.Unix(int64(whole), nanos).UTC()
}
