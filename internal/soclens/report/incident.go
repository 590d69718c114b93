package report

import (
	"fmt"
	"math"
	"sort"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// confidenceMargin is how far an incident's confidence may sit below its
// most confident member finding.
const confidenceMargin = 0.05

// securityOutcomes maps detection patterns onto the security-outcome
// taxonomy carried on incidents.
var securityOutcomes = map[string]string{
	"ENDPOINT_COMPROMISE_MULTI_CATEGORY": "SUSPECTED_ENDPOINT_COMPROMISE_MULTI_STAGE",
	"C2_BEACONING_SUSPECTED":             "C2_BEACONING_SUSPECTED",
	"PHISH_TO_PAYLOAD_CHAIN_SUSPECTED":   "PHISH_TO_PAYLOAD_CHAIN_SUSPECTED",
}

const outcomeInsufficient = "INSUFFICIENT_EVIDENCE"

// entityRef is one (field, value) pair extracted from finding evidence.
type entityRef struct {
	field string
	value string
}

var entityFields = []string{"user_email", "client_ip", "dest_host", "threat_category"}

func findingEntities(f model.Finding) []entityRef {
	var refs []entityRef
	for _, field := range entityFields {
		v, ok := f.Evidence[field].(string)
		if !ok || v == "" || v == model.UnsetDim {
			continue
		}
		refs = append(refs, entityRef{field, v})
	}
	return refs
}

// disjoint-set over finding indices
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n)}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// SynthesizeIncidents groups findings that share an entity (same user,
// client IP, destination host or threat category) into incidents. A
// finding with no extractable entity forms an incident of its own.
func SynthesizeIncidents(findings []model.Finding) []model.Incident {
	if len(findings) == 0 {
		return nil
	}

	uf := newUnionFind(len(findings))
	seen := make(map[entityRef]int)
	for i, f := range findings {
		for _, ref := range findingEntities(f) {
			if first, ok := seen[ref]; ok {
				uf.union(first, i)
			} else {
				seen[ref] = i
			}
		}
	}

	groups := make(map[int][]int)
	var roots []int
	for i := range findings {
		r := uf.find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}
	sort.Ints(roots)

	incidents := make([]model.Incident, 0, len(roots))
	for _, r := range roots {
		incidents = append(incidents, buildIncident(findings, groups[r]))
	}
	sort.SliceStable(incidents, func(i, j int) bool {
		ri, rj := incidents[i].Severity.Rank(), incidents[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return incidents[i].Confidence > incidents[j].Confidence
	})
	return incidents
}

func buildIncident(findings []model.Finding, members []int) model.Incident {
	severity := model.SeverityLow
	lead := members[0]
	for _, i := range members {
		f := findings[i]
		if f.Severity.Rank() > severity.Rank() {
			severity = f.Severity
		}
		if f.Severity.Rank() > findings[lead].Severity.Rank() ||
			(f.Severity.Rank() == findings[lead].Severity.Rank() &&
				f.Confidence > findings[lead].Confidence) {
			lead = i
		}
	}

	// weighted average biased toward higher-severity members, then clamped
	// so the incident never scores far below its most confident member,
	// whatever that member's severity
	var weighted, totalWeight, maxConf float64
	for _, i := range members {
		f := findings[i]
		w := float64(f.Severity.Rank() + 1)
		weighted += w * f.Confidence
		totalWeight += w
		maxConf = math.Max(maxConf, f.Confidence)
	}
	confidence := math.Max(weighted/totalWeight, maxConf-confidenceMargin)
	confidence = math.Min(confidence, 1.0)

	entities := model.AffectedEntities{}
	outcomes := make(map[string]struct{})
	ids := make([]string, 0, len(members))
	for _, i := range members {
		f := findings[i]
		ids = append(ids, f.ID)
		if o, ok := securityOutcomes[f.PatternName]; ok {
			outcomes[o] = struct{}{}
		}
		for _, ref := range findingEntities(f) {
			switch ref.field {
			case "user_email":
				entities.UserEmails = append(entities.UserEmails, ref.value)
			case "client_ip":
				entities.ClientIPs = append(entities.ClientIPs, ref.value)
			case "dest_host":
				entities.DestHosts = append(entities.DestHosts, ref.value)
			case "threat_category":
				entities.ThreatCategories = append(entities.ThreatCategories, ref.value)
			}
		}
	}
	entities.UserEmails = dedupSorted(entities.UserEmails)
	entities.ClientIPs = dedupSorted(entities.ClientIPs)
	entities.DestHosts = dedupSorted(entities.DestHosts)
	entities.ThreatCategories = dedupSorted(entities.ThreatCategories)

	outList := make([]string, 0, len(outcomes))
	for o := range outcomes {
		outList = append(outList, o)
	}
	sort.Strings(outList)
	if len(outList) == 0 {
		outList = []string{outcomeInsufficient}
	}

	title := findings[lead].Title
	if len(members) > 1 {
		title = fmt.Sprintf("%s (+%d related findings)", title, len(members)-1)
	}

	return model.Incident{
		Title:              title,
		Severity:           severity,
		Confidence:         confidence,
		Confirmed:          false,
		SecurityOutcomes:   outList,
		AffectedEntities:   entities,
		EvidenceFindingIDs: ids,
	}
}

// maxIncidentEvents bounds how many event citations an incident carries.
const maxIncidentEvents = 25

// attachEvidenceEvents fills each incident's EvidenceEventIDs with a bounded
// list of events matching the incident's affected entities, so deterministic
// reports link incidents back to raw events the way delegated ones can.
func attachEvidenceEvents(incidents []model.Incident, events []model.Event) {
	for idx := range incidents {
		inc := &incidents[idx]
		users := toSet(inc.AffectedEntities.UserEmails)
		ips := toSet(inc.AffectedEntities.ClientIPs)
		hosts := toSet(inc.AffectedEntities.DestHosts)
		if len(users)+len(ips)+len(hosts) == 0 {
			continue
		}
		for i := range events {
			if eventImplicated(&events[i], users, ips, hosts) {
				inc.EvidenceEventIDs = append(inc.EvidenceEventIDs, events[i].ID)
				if len(inc.EvidenceEventIDs) == maxIncidentEvents {
					break
				}
			}
		}
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func dedupSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
