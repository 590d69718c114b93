package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// fallbackActions are deterministic per-outcome recommendations used when
// the collaborator cannot supply narrative.
var fallbackActions = map[string][]string{
	"SUSPECTED_ENDPOINT_COMPROMISE_MULTI_STAGE": {
		"Isolate the implicated endpoint from the network.",
		"Capture a forensic image before remediation.",
		"Reset credentials for the implicated user accounts.",
	},
	"C2_BEACONING_SUSPECTED": {
		"Block the destination host at the proxy and firewall.",
		"Review the implicated endpoint for persistence mechanisms.",
		"Search adjacent telemetry for the same destination.",
	},
	"PHISH_TO_PAYLOAD_CHAIN_SUSPECTED": {
		"Pull the phishing URL from mail and proxy logs to find other recipients.",
		"Scan the implicated endpoint for dropped payloads.",
		"Reset credentials for the implicated user accounts.",
	},
	outcomeInsufficient: {
		"Review the cited findings and pivot into the underlying events.",
		"Widen the collection window if activity continues.",
	},
}

// fallbackNarrative fills the narrative fields of a report from structured
// data only. The output is intentionally templated: it must be clearly
// derived from the findings, never fabricated.
func fallbackNarrative(uploadID string, findings []model.Finding, incidents []model.Incident, features *model.UploadFeatures) (string, []model.Incident) {
	patterns := make(map[string]int)
	bySeverity := make(map[model.Severity]int)
	for _, f := range findings {
		patterns[f.PatternName]++
		bySeverity[f.Severity]++
	}
	patternNames := make([]string, 0, len(patterns))
	for p := range patterns {
		patternNames = append(patternNames, p)
	}
	sort.Strings(patternNames)

	var b strings.Builder
	fmt.Fprintf(&b, "Automated analysis of upload %s produced %d findings across %d detection patterns (%s).",
		uploadID, len(findings), len(patterns), strings.Join(patternNames, ", "))
	if n := bySeverity[model.SeverityCritical]; n > 0 {
		fmt.Fprintf(&b, " %d are critical.", n)
	} else if n := bySeverity[model.SeverityHigh]; n > 0 {
		fmt.Fprintf(&b, " %d are high severity.", n)
	}
	if features != nil && features.TotalEvents > 0 {
		fmt.Fprintf(&b, " The upload contains %d events (%d blocked, %d allowed)",
			features.TotalEvents, features.Blocked, features.Allowed)
		if features.StartTime != nil && features.EndTime != nil {
			fmt.Fprintf(&b, " spanning %s to %s",
				features.StartTime.Format("2006-01-02 15:04"),
				features.EndTime.Format("2006-01-02 15:04"))
		}
		b.WriteString(".")
	}
	fmt.Fprintf(&b, " %d incidents were synthesized; review the highest severity incident first.", len(incidents))

	byID := make(map[string]model.Finding, len(findings))
	for _, f := range findings {
		byID[f.ID] = f
	}
	for i := range incidents {
		inc := &incidents[i]
		inc.Why = fallbackWhy(inc, byID)
		inc.RecommendedActions = fallbackRecommendations(inc)
	}
	return b.String(), incidents
}

func fallbackWhy(inc *model.Incident, byID map[string]model.Finding) []string {
	var why []string
	for _, id := range inc.EvidenceFindingIDs {
		f, ok := byID[id]
		if !ok {
			continue
		}
		why = append(why, f.Summary)
		if len(why) == 5 {
			break
		}
	}
	return why
}

func fallbackRecommendations(inc *model.Incident) []string {
	var actions []string
	seen := make(map[string]struct{})
	for _, outcome := range inc.SecurityOutcomes {
		for _, a := range fallbackActions[outcome] {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			actions = append(actions, a)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, fallbackActions[outcomeInsufficient]...)
	}
	return actions
}
