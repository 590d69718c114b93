package report

import (
	"encoding/json"
	"fmt"

	"github.com/araddon/dateparse"
	"github.com/xeipuuv/gojsonschema"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// ValidationError marks a collaborator response that parsed but failed the
// report contract. Same consequence as CollaboratorError: fallback.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("collaborator response invalid: %s", e.Reason)
}

// reportSchema is the structural contract a collaborator response must
// satisfy before field-level checks run.
const reportSchema = `{
  "type": "object",
  "required": ["summary", "timeline", "incidents", "iocs", "gaps"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "timeline": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["ts_start", "ts_end", "label"],
        "properties": {
          "ts_start": {"type": "string"},
          "ts_end": {"type": "string"},
          "label": {"type": "string", "minLength": 1},
          "evidence_finding_ids": {"type": "array", "items": {"type": "string"}},
          "evidence_event_ids": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "incidents": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["title", "severity", "confidence", "evidence_finding_ids"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "severity": {"type": "string"},
          "confidence": {"type": "number"},
          "confirmed": {"type": "boolean"},
          "security_outcomes": {"type": "array", "items": {"type": "string"}},
          "affected_entities": {"type": "object"},
          "evidence_finding_ids": {"type": "array", "minItems": 1, "items": {"type": "string"}},
          "evidence_event_ids": {"type": "array", "items": {"type": "string"}},
          "why": {"type": "array", "items": {"type": "string"}},
          "recommended_actions": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "iocs": {
      "type": "object",
      "properties": {
        "domains": {"type": "array", "items": {"type": "string"}},
        "urls": {"type": "array", "items": {"type": "string"}},
        "ips": {"type": "array", "items": {"type": "string"}},
        "users": {"type": "array", "items": {"type": "string"}}
      }
    },
    "gaps": {"type": "array", "items": {"type": "string"}}
  }
}`

var compiledSchema = gojsonschema.NewStringLoader(reportSchema)

type wireTimelineItem struct {
	TsStart            string   `json:"ts_start"`
	TsEnd              string   `json:"ts_end"`
	Label              string   `json:"label"`
	EvidenceFindingIDs []string `json:"evidence_finding_ids"`
	EvidenceEventIDs   []string `json:"evidence_event_ids"`
}

type wireIncident struct {
	Title              string                 `json:"title"`
	Severity           string                 `json:"severity"`
	Confidence         float64                `json:"confidence"`
	Confirmed          bool                   `json:"confirmed"`
	SecurityOutcomes   []string               `json:"security_outcomes"`
	AffectedEntities   model.AffectedEntities `json:"affected_entities"`
	EvidenceFindingIDs []string               `json:"evidence_finding_ids"`
	EvidenceEventIDs   []string               `json:"evidence_event_ids"`
	Why                []string               `json:"why"`
	RecommendedActions []string               `json:"recommended_actions"`
}

type wireReport struct {
	Summary   string             `json:"summary"`
	Timeline  []wireTimelineItem `json:"timeline"`
	Incidents []wireIncident     `json:"incidents"`
	IOCs      model.IOCSet       `json:"iocs"`
	Gaps      []string           `json:"gaps"`
}

var validSeverities = map[string]model.Severity{
	"low":      model.SeverityLow,
	"medium":   model.SeverityMedium,
	"high":     model.SeverityHigh,
	"critical": model.SeverityCritical,
}

// ValidateResponse checks a raw collaborator response against the report
// schema and the field-level contract, then converts it into a SocReport.
// knownFindingIDs guards against fabricated citations.
func ValidateResponse(raw []byte, knownFindingIDs map[string]struct{}) (model.SocReport, error) {
	result, err := gojsonschema.Validate(compiledSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return model.SocReport{}, &ValidationError{Reason: fmt.Sprintf("schema check: %v", err)}
	}
	if !result.Valid() {
		return model.SocReport{}, &ValidationError{Reason: fmt.Sprintf("schema violation: %v", result.Errors()[0])}
	}

	var wire wireReport
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.SocReport{}, &ValidationError{Reason: fmt.Sprintf("decode: %v", err)}
	}

	rep := model.SocReport{
		Summary: wire.Summary,
		IOCs:    wire.IOCs,
		Gaps:    wire.Gaps,
	}

	for i, item := range wire.Timeline {
		start, err := dateparse.ParseAny(item.TsStart)
		if err != nil {
			return model.SocReport{}, &ValidationError{Reason: fmt.Sprintf("timeline[%d].ts_start %q: %v", i, item.TsStart, err)}
		}
		end, err := dateparse.ParseAny(item.TsEnd)
		if err != nil {
			return model.SocReport{}, &ValidationError{Reason: fmt.Sprintf("timeline[%d].ts_end %q: %v", i, item.TsEnd, err)}
		}
		rep.Timeline = append(rep.Timeline, model.TimelineItem{
			TsStart:            start.UTC(),
			TsEnd:              end.UTC(),
			Label:              item.Label,
			EvidenceFindingIDs: item.EvidenceFindingIDs,
			EvidenceEventIDs:   item.EvidenceEventIDs,
		})
	}

	for i, inc := range wire.Incidents {
		sev, ok := validSeverities[inc.Severity]
		if !ok {
			return model.SocReport{}, &ValidationError{Reason: fmt.Sprintf("incidents[%d].severity %q not in vocabulary", i, inc.Severity)}
		}
		if inc.Confidence < 0 || inc.Confidence > 1 {
			return model.SocReport{}, &ValidationError{Reason: fmt.Sprintf("incidents[%d].confidence %v out of range", i, inc.Confidence)}
		}
		for _, id := range inc.EvidenceFindingIDs {
			if _, ok := knownFindingIDs[id]; !ok {
				return model.SocReport{}, &ValidationError{Reason: fmt.Sprintf("incidents[%d] cites unknown finding %q", i, id)}
			}
		}
		rep.Incidents = append(rep.Incidents, model.Incident{
			Title:              inc.Title,
			Severity:           sev,
			Confidence:         inc.Confidence,
			Confirmed:          inc.Confirmed,
			SecurityOutcomes:   inc.SecurityOutcomes,
			AffectedEntities:   inc.AffectedEntities,
			EvidenceFindingIDs: inc.EvidenceFindingIDs,
			EvidenceEventIDs:   inc.EvidenceEventIDs,
			Why:                inc.Why,
			RecommendedActions: inc.RecommendedActions,
		})
	}
	return rep, nil
}
