package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload marks a response body that does not match the expected schema.
var ErrMalformedPayload = errors.New("malformed payload")

// StatGroup names one group-by result inside a statistics snapshot.
type StatGroup string

const (
	GroupMeasurement StatGroup = "measurementStats"
	GroupLocation    StatGroup = "locationStats"
	GroupShift       StatGroup = "shiftStats"
	GroupDate        StatGroup = "dateStats"
)

// StatGroups lists every group in wire order.
var StatGroups = []StatGroup{GroupMeasurement, GroupLocation, GroupShift, GroupDate}

// LabelKey is the report field the group is keyed by.
func (g StatGroup) LabelKey() string {
	switch g {
	case GroupMeasurement:
		return "reportMeasurement"
	case GroupLocation:
		return "location"
	case GroupShift:
		return "shiftTime"
	case GroupDate:
		return "date"
	}
	return ""
}

// StatEntry is one (label, count) pair. Label or Count is nil when the
// upstream entry lacked the field.
type StatEntry struct {
	Label *string
	Count *int64
	Raw   json.RawMessage
}

// NewStatEntry builds a well-formed entry.
func NewStatEntry(label string, count int64) StatEntry {
	return StatEntry{Label: &label, Count: &count}
}

// ReportStatisticsSnapshot holds the four group-by results computed by the source of truth.
type ReportStatisticsSnapshot struct {
	MeasurementStats []StatEntry
	LocationStats    []StatEntry
	ShiftStats       []StatEntry
	DateStats        []StatEntry
}

// Group returns the entries for g.
func (s *ReportStatisticsSnapshot) Group(g StatGroup) []StatEntry {
	if s == nil {
		return nil
	}
	switch g {
	case GroupMeasurement:
		return s.MeasurementStats
	case GroupLocation:
		return s.LocationStats
	case GroupShift:
		return s.ShiftStats
	case GroupDate:
		return s.DateStats
	}
	return nil
}

func (s *ReportStatisticsSnapshot) setGroup(g StatGroup, entries []StatEntry) {
	switch g {
	case GroupMeasurement:
		s.MeasurementStats = entries
	case GroupLocation:
		s.LocationStats = entries
	case GroupShift:
		s.ShiftStats = entries
	case GroupDate:
		s.DateStats = entries
	}
}

// UnmarshalJSON decodes `{measurementStats, locationStats, shiftStats, dateStats}`.
// A missing or non-array group fails the whole payload; a bad entry inside a
// group is kept with nil fields so the aggregation can skip and count it.
func (s *ReportStatisticsSnapshot) UnmarshalJSON(data []byte) error {
	var groups map[string]json.RawMessage
	if err := json.Unmarshal(data, &groups); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if groups == nil {
		return fmt.Errorf("%w: statistics body is null", ErrMalformedPayload)
	}

	var decoded ReportStatisticsSnapshot
	for _, group := range StatGroups {
		raw, ok := groups[string(group)]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrMalformedPayload, group)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || items == nil {
			return fmt.Errorf("%w: %s is not an array", ErrMalformedPayload, group)
		}
		entries := make([]StatEntry, 0, len(items))
		for _, item := range items {
			entries = append(entries, decodeStatEntry(group.LabelKey(), item))
		}
		decoded.setGroup(group, entries)
	}

	*s = decoded
	return nil
}

func decodeStatEntry(labelKey string, item json.RawMessage) StatEntry {
	entry := StatEntry{Raw: item}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return entry
	}

	entry.Label = decodeLabel(fields[labelKey])

	var counts map[string]json.RawMessage
	if err := json.Unmarshal(fields["_count"], &counts); err == nil {
		var n json.Number
		if err := json.Unmarshal(counts[labelKey], &n); err == nil {
			if v, err := n.Int64(); err == nil {
				entry.Count = &v
			}
		}
	}
	return entry
}

func decodeLabel(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return &s
	}
	if raw[0] == '{' || raw[0] == '[' {
		return nil
	}
	s := string(raw)
	return &s
}

// MarshalJSON emits the same wire shape UnmarshalJSON reads.
func (s ReportStatisticsSnapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string][]map[string]any, len(StatGroups))
	for _, group := range StatGroups {
		key := group.LabelKey()
		entries := s.Group(group)
		items := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			item := map[string]any{key: entry.Label}
			if entry.Count != nil {
				item["_count"] = map[string]int64{key: *entry.Count}
			}
			items = append(items, item)
		}
		out[string(group)] = items
	}
	return json.Marshal(out)
}
