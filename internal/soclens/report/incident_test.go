package report

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

func finding(id, pattern string, severity model.Severity, confidence float64, ev model.Evidence) model.Finding {
	return model.Finding{
		ID:          id,
		UploadID:    "up",
		PatternName: pattern,
		Severity:    severity,
		Confidence:  confidence,
		Title:       "finding " + id,
		Summary:     "summary for " + id,
		Evidence:    ev,
	}
}

func TestSynthesizeIncidents_GroupsBySharedEntity(t *testing.T) {
	findings := []model.Finding{
		finding("f1", "BURST_FROM_SINGLE_IP", model.SeverityHigh, 0.8,
			model.Evidence{"client_ip": "10.0.0.5"}),
		finding("f2", "C2_BEACONING_SUSPECTED", model.SeverityHigh, 0.7,
			model.Evidence{"client_ip": "10.0.0.5", "dest_host": "c2.example.com"}),
		finding("f3", "OFF_HOURS_ACCESS", model.SeverityMedium, 0.55,
			model.Evidence{"user_email": "other@example.com"}),
	}

	incidents := SynthesizeIncidents(findings)
	require.Len(t, incidents, 2, "f1+f2 share a client IP; f3 stands alone")

	joined := incidents[0]
	assert.ElementsMatch(t, []string{"f1", "f2"}, joined.EvidenceFindingIDs)
	assert.Equal(t, model.SeverityHigh, joined.Severity)
	assert.Equal(t, []string{"10.0.0.5"}, joined.AffectedEntities.ClientIPs)
	assert.Equal(t, []string{"c2.example.com"}, joined.AffectedEntities.DestHosts)
	assert.Contains(t, joined.SecurityOutcomes, "C2_BEACONING_SUSPECTED")

	solo := incidents[1]
	assert.Equal(t, []string{"f3"}, solo.EvidenceFindingIDs)
	assert.Equal(t, []string{outcomeInsufficient}, solo.SecurityOutcomes)
}

func TestSynthesizeIncidents_TransitiveGrouping(t *testing.T) {
	// f1-f2 share an IP, f2-f3 share a host: all three join transitively
	findings := []model.Finding{
		finding("f1", "A", model.SeverityLow, 0.4, model.Evidence{"client_ip": "10.0.0.1"}),
		finding("f2", "B", model.SeverityLow, 0.4, model.Evidence{"client_ip": "10.0.0.1", "dest_host": "h.example.com"}),
		finding("f3", "C", model.SeverityLow, 0.4, model.Evidence{"dest_host": "h.example.com"}),
	}
	incidents := SynthesizeIncidents(findings)
	require.Len(t, incidents, 1)
	assert.ElementsMatch(t, []string{"f1", "f2", "f3"}, incidents[0].EvidenceFindingIDs)
}

func TestSynthesizeIncidents_ConfidenceClampedToStrongestMember(t *testing.T) {
	findings := []model.Finding{
		finding("f1", "A", model.SeverityCritical, 0.95, model.Evidence{"client_ip": "10.0.0.1"}),
		finding("f2", "B", model.SeverityLow, 0.15, model.Evidence{"client_ip": "10.0.0.1"}),
		finding("f3", "C", model.SeverityLow, 0.15, model.Evidence{"client_ip": "10.0.0.1"}),
	}
	incidents := SynthesizeIncidents(findings)
	require.Len(t, incidents, 1)
	inc := incidents[0]

	assert.Equal(t, model.SeverityCritical, inc.Severity)
	// the weighted average sits well below the clamp, so it binds exactly
	assert.InDelta(t, 0.95-confidenceMargin, inc.Confidence, 1e-9,
		"weak members cannot drag the incident far below its strongest finding")
	assert.LessOrEqual(t, inc.Confidence, 1.0)
}

func TestSynthesizeIncidents_ClampTracksLowerSeverityMember(t *testing.T) {
	// the group's most confident finding is the medium one; the clamp
	// follows it even though the incident severity comes from the high
	findings := []model.Finding{
		finding("f1", "A", model.SeverityHigh, 0.65, model.Evidence{"client_ip": "10.0.0.1"}),
		finding("f2", "B", model.SeverityMedium, 0.80, model.Evidence{"client_ip": "10.0.0.1"}),
	}
	incidents := SynthesizeIncidents(findings)
	require.Len(t, incidents, 1)
	inc := incidents[0]

	assert.Equal(t, model.SeverityHigh, inc.Severity)
	assert.InDelta(t, 0.80-confidenceMargin, inc.Confidence, 1e-9)
}

func TestSynthesizeIncidents_UnsetEntitiesDoNotJoin(t *testing.T) {
	findings := []model.Finding{
		finding("f1", "A", model.SeverityLow, 0.4, model.Evidence{"user_email": model.UnsetDim}),
		finding("f2", "B", model.SeverityLow, 0.4, model.Evidence{"user_email": model.UnsetDim}),
	}
	incidents := SynthesizeIncidents(findings)
	assert.Len(t, incidents, 2, "the unset sentinel is not a shared entity")
}

func TestSynthesizeIncidents_OrderedBySeverity(t *testing.T) {
	findings := []model.Finding{
		finding("f1", "A", model.SeverityLow, 0.9, model.Evidence{"client_ip": "10.0.0.1"}),
		finding("f2", "B", model.SeverityCritical, 0.8, model.Evidence{"client_ip": "10.0.0.2"}),
		finding("f3", "C", model.SeverityHigh, 0.7, model.Evidence{"client_ip": "10.0.0.3"}),
	}
	incidents := SynthesizeIncidents(findings)
	require.Len(t, incidents, 3)
	assert.Equal(t, model.SeverityCritical, incidents[0].Severity)
	assert.Equal(t, model.SeverityHigh, incidents[1].Severity)
	assert.Equal(t, model.SeverityLow, incidents[2].Severity)
}

func TestAttachEvidenceEvents(t *testing.T) {
	findings := []model.Finding{
		finding("f1", "A", model.SeverityHigh, 0.7, model.Evidence{"client_ip": "10.0.0.5"}),
	}
	incidents := SynthesizeIncidents(findings)
	require.Len(t, incidents, 1)

	hit := "10.0.0.5"
	miss := "10.0.0.9"
	events := []model.Event{
		{ID: "e1", UploadID: "up", ClientIP: &hit},
		{ID: "e2", UploadID: "up", ClientIP: &miss},
		{ID: "e3", UploadID: "up", ClientIP: &hit},
	}
	attachEvidenceEvents(incidents, events)
	assert.Equal(t, []string{"e1", "e3"}, incidents[0].EvidenceEventIDs)
}

func TestAttachEvidenceEvents_Bounded(t *testing.T) {
	findings := []model.Finding{
		finding("f1", "A", model.SeverityHigh, 0.7, model.Evidence{"client_ip": "10.0.0.5"}),
	}
	incidents := SynthesizeIncidents(findings)
	require.Len(t, incidents, 1)

	ip := "10.0.0.5"
	var events []model.Event
	for i := 0; i < maxIncidentEvents+10; i++ {
		events = append(events, model.Event{ID: fmt.Sprintf("e%d", i), UploadID: "up", ClientIP: &ip})
	}
	attachEvidenceEvents(incidents, events)
	assert.Len(t, incidents[0].EvidenceEventIDs, maxIncidentEvents)
}

func TestExtractIOCs_DedupAndSort(t *testing.T) {
	findings := []model.Finding{
		finding("f1", "A", model.SeverityHigh, 0.7, model.Evidence{
			"client_ip": "10.0.0.5", "dest_host": "c2.example.com", "user_email": "bob@example.com",
		}),
		finding("f2", "B", model.SeverityHigh, 0.7, model.Evidence{
			"client_ip": "10.0.0.5", "dest_host": "c2.example.com",
		}),
	}
	u1 := "bob@example.com"
	ip := "10.0.0.5"
	host := "c2.example.com"
	rawURL := "https://c2.example.com/gate.php"
	events := []model.Event{
		{ID: "e1", UploadID: "up", UserEmail: &u1, ClientIP: &ip, DestHost: &host, URL: &rawURL},
		{ID: "e2", UploadID: "up", UserEmail: &u1, ClientIP: &ip, DestHost: &host, URL: &rawURL},
	}

	iocs := ExtractIOCs(findings, events)
	assert.Equal(t, []string{"c2.example.com"}, iocs.Domains)
	assert.Equal(t, []string{"https://c2.example.com/gate.php"}, iocs.URLs)
	assert.Equal(t, []string{"10.0.0.5"}, iocs.IPs)
	assert.Equal(t, []string{"bob@example.com"}, iocs.Users)
}

func TestDetectGaps(t *testing.T) {
	u := "a@b.com"
	events := []model.Event{
		{ID: "e1", UploadID: "up", UserEmail: &u}, // no timestamp, no server IP
	}
	gaps := DetectGaps(events)
	require.Len(t, gaps, 3)
	assert.Contains(t, gaps[0], "DNS")
	assert.Contains(t, gaps[1], "server")
	assert.Contains(t, gaps[2], "timestamp")
}
