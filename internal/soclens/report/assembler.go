package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/varunr-/SOCLens/internal/soclens/logger"
	"github.com/varunr-/SOCLens/internal/soclens/model"
	"github.com/varunr-/SOCLens/internal/soclens/store"
)

// ErrNoFindings is returned when report generation is requested for an
// upload with no findings to report on.
var ErrNoFindings = errors.New("no findings for upload")

const maxSampleEvents = 25

// Assembler builds the analyst-facing SOC report. Narrative is delegated
// to the reasoning collaborator when one is configured; any failure on
// that path falls back to deterministic templated text.
type Assembler struct {
	store  store.Store
	collab Collaborator // nil disables delegation
}

func NewAssembler(st store.Store, collab Collaborator) *Assembler {
	return &Assembler{store: st, collab: collab}
}

func (a *Assembler) GenerateReport(ctx context.Context, uploadID string) (model.SocReport, error) {
	findings, err := a.store.ListFindings(ctx, uploadID)
	if err != nil {
		return model.SocReport{}, fmt.Errorf("list findings for %s: %w", uploadID, err)
	}
	if len(findings) == 0 {
		return model.SocReport{}, fmt.Errorf("%w: %s", ErrNoFindings, uploadID)
	}

	events, err := a.store.ListEvents(ctx, uploadID)
	if err != nil {
		return model.SocReport{}, fmt.Errorf("list events for %s: %w", uploadID, err)
	}
	var features *model.UploadFeatures
	if f, ok, err := a.store.GetFeatures(ctx, uploadID); err == nil && ok {
		features = &f
	}

	incidents := SynthesizeIncidents(findings)
	attachEvidenceEvents(incidents, events)
	timeline := BuildTimeline(findings)
	iocs := ExtractIOCs(findings, events)
	gaps := DetectGaps(events)

	if a.collab != nil {
		rep, err := a.delegate(ctx, uploadID, findings, incidents, events, features)
		if err == nil {
			rep.UploadID = uploadID
			return rep, nil
		}
		logger.L().Warnw("narrative delegation failed, using deterministic fallback",
			"upload_id", uploadID, "error", err)
	}

	summary, incidents := fallbackNarrative(uploadID, findings, incidents, features)
	return model.SocReport{
		UploadID:  uploadID,
		Summary:   summary,
		Timeline:  timeline,
		Incidents: incidents,
		IOCs:      iocs,
		Gaps:      append(gaps, gapDegradedNarrative),
	}, nil
}

func (a *Assembler) delegate(ctx context.Context, uploadID string, findings []model.Finding, incidents []model.Incident, events []model.Event, features *model.UploadFeatures) (model.SocReport, error) {
	raw, err := a.collab.Draft(ctx, NarrativeRequest{
		UploadID:     uploadID,
		Findings:     findings,
		Incidents:    incidents,
		SampleEvents: sampleEvents(findings, events),
		Features:     features,
	})
	if err != nil {
		return model.SocReport{}, err
	}

	known := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		known[f.ID] = struct{}{}
	}
	return ValidateResponse(raw, known)
}

// sampleEvents picks a bounded set of representative raw events, favoring
// events tied to the entities the findings implicate.
func sampleEvents(findings []model.Finding, events []model.Event) []model.Event {
	users := make(map[string]struct{})
	ips := make(map[string]struct{})
	hosts := make(map[string]struct{})
	for _, f := range findings {
		for _, ref := range findingEntities(f) {
			switch ref.field {
			case "user_email":
				users[ref.value] = struct{}{}
			case "client_ip":
				ips[ref.value] = struct{}{}
			case "dest_host":
				hosts[ref.value] = struct{}{}
			}
		}
	}

	var sample []model.Event
	for i := range events {
		if eventImplicated(&events[i], users, ips, hosts) {
			sample = append(sample, events[i])
			if len(sample) == maxSampleEvents {
				return sample
			}
		}
	}
	for i := range events {
		if len(sample) == maxSampleEvents {
			break
		}
		if !eventImplicated(&events[i], users, ips, hosts) {
			sample = append(sample, events[i])
		}
	}
	return sample
}
