package report

import (
	"fmt"
	"strings"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

const gapDegradedNarrative = "Narrative was generated from structured data only (reasoning collaborator unavailable or returned an invalid response)."

// DetectGaps reports visibility limitations of the upload so the reader
// knows what the analysis could not see.
func DetectGaps(events []model.Event) []string {
	var gaps []string

	sawDNS := false
	sawServerIP := false
	missingTS := 0
	for i := range events {
		evt := &events[i]
		if evt.URLCategory != nil && strings.Contains(strings.ToLower(*evt.URLCategory), "dns") {
			sawDNS = true
		}
		if evt.ServerIP != nil && *evt.ServerIP != "" {
			sawServerIP = true
		}
		if evt.EventTime == nil {
			missingTS++
		}
	}

	if !sawDNS {
		gaps = append(gaps, "No DNS-category events in this upload; domain resolution activity is not visible.")
	}
	if !sawServerIP {
		gaps = append(gaps, "No server-side telemetry (server IP never populated); destination attribution relies on host names only.")
	}
	if missingTS > 0 && len(events) > 0 {
		pct := float64(missingTS) / float64(len(events)) * 100
		gaps = append(gaps, fmt.Sprintf(
			"%d of %d events (%.0f%%) have no parseable timestamp and are excluded from rollups and the timeline.",
			missingTS, len(events), pct))
	}
	return gaps
}
