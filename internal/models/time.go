package models

import (
	"strconv"
	"time"
)

// ISOTime is an ISO-8601 timestamp. Timestamps written without a zone
// (older portfolio files) are read as local time.
type ISOTime struct {
	time.Time
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func NewISOTime(t time.Time) ISOTime { return ISOTime{Time: t} }

func (t ISOTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.Time.Format(time.RFC3339Nano))), nil
}

func (t *ISOTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		t.Time = time.Time{}
		return nil
	}
	s, err := strconv.Unquote(s)
	if err != nil {
		return err
	}
	var lastErr error
	for _, layout := range isoLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}
