package parsers

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// timeLayouts is the fixed ordered list of accepted timestamp formats.
// The first layout matches the vendor samples we normalize most often
// (no zone; assumed UTC).
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
	"Jan 2 15:04:05 2006",
	"02/Jan/2006:15:04:05 -0700",
}

// parseTimestamp tries each accepted layout in order and returns a UTC
// time, or nil when no layout matches. A bad timestamp never fails a line.
func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// validIP returns the input if it parses as IPv4 or IPv6, else nil.
// Invalid values are dropped, not treated as a line failure.
func validIP(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if net.ParseIP(s) == nil {
		return nil
	}
	return &s
}

// actionVocab maps case-folded vendor action strings into the controlled
// vocabulary. Unmapped values pass through verbatim.
var actionVocab = map[string]string{
	"allowed":     "Allowed",
	"allow":       "Allowed",
	"permitted":   "Allowed",
	"blocked":     "Blocked",
	"block":       "Blocked",
	"denied":      "Blocked",
	"deny":        "Blocked",
	"quarantined": "Quarantined",
	"quarantine":  "Quarantined",
	"isolated":    "Quarantined",
}

// severityVocab maps vendor severity strings into the controlled vocabulary.
var severityVocab = map[string]string{
	"informational": "Info",
	"information":   "Info",
	"info":          "Info",
	"low":           "Low",
	"medium":        "Medium",
	"med":           "Medium",
	"warn":          "Medium",
	"warning":       "Medium",
	"high":          "High",
	"error":         "High",
	"critical":      "Critical",
	"crit":          "Critical",
	"fatal":         "Critical",
}

// normalizeVocab maps s through the table by case-folded lookup; unmapped
// values are returned verbatim.
func normalizeVocab(table map[string]string, s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if mapped, ok := table[strings.ToLower(s)]; ok {
		return &mapped
	}
	return &s
}

// ptrString returns a *string or nil for empty input.
func ptrString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// toIntPtr converts a string or JSON number to *int, nil when absent or
// not numeric. Vendor logs carry sizes and scores as either type.
func toIntPtr(v any) *int {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		n := int(t)
		return &n
	case int:
		n := t
		return &n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if n, err := strconv.Atoi(s); err == nil {
			return &n
		}
		return nil
	default:
		return nil
	}
}

// toString coerces a JSON value to a trimmed string, "" when absent.
func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
