package model

import "time"

// JobStatus is the lifecycle state of an ingest job.
// Transitions are monotone: queued → running → done|failed.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Severity levels for findings and incidents.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns a comparable ordering value (critical > high > medium > low).
// Unknown severities rank below low.
func (s Severity) Rank() int {
	return severityRank[s]
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// IngestJob tracks the conversion of one uploaded file into stored events.
// Jobs are never deleted; terminal jobs are immutable.
type IngestJob struct {
	ID             string    `json:"id"`
	UploadID       string    `json:"upload_id"`
	Status         JobStatus `json:"status"`
	InsertedEvents int       `json:"inserted_events"`
	BadLines       int       `json:"bad_lines"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Event is one normalized proxy log record. Optional fields are pointers;
// Raw always carries the verbatim input line, even on partial parses.
type Event struct {
	ID       string `json:"id"`
	UploadID string `json:"upload_id"`

	EventTime *time.Time `json:"event_time,omitempty"`
	EventID   *string    `json:"event_id,omitempty"`
	Vendor    *string    `json:"vendor,omitempty"`

	Action   *string `json:"action,omitempty"`
	Reason   *string `json:"reason,omitempty"`
	Severity *string `json:"severity,omitempty"`
	Status   *int    `json:"status,omitempty"`

	UserEmail  *string `json:"user_email,omitempty"`
	Department *string `json:"department,omitempty"`
	Location   *string `json:"location,omitempty"`

	ClientIP      *string `json:"client_ip,omitempty"`
	ServerIP      *string `json:"server_ip,omitempty"`
	DestHost      *string `json:"dest_host,omitempty"`
	URL           *string `json:"url,omitempty"`
	RequestMethod *string `json:"request_method,omitempty"`

	URLCategory    *string `json:"url_category,omitempty"`
	ThreatCategory *string `json:"threat_category,omitempty"`
	ThreatName     *string `json:"threat_name,omitempty"`
	RiskScore      *int    `json:"risk_score,omitempty"`

	RequestSize     *int `json:"request_size,omitempty"`
	ResponseSize    *int `json:"response_size,omitempty"`
	TransactionSize *int `json:"transaction_size,omitempty"`

	Raw string `json:"raw"`
}

// UnsetDim is the sentinel used in rollup keys when a dimension value is
// missing, so the composite key stays total.
const UnsetDim = "<null>"

// BucketKey is the composite key of a minute rollup bucket.
type BucketKey struct {
	UploadID       string    `json:"upload_id"`
	Bucket         time.Time `json:"bucket"` // minute-aligned, UTC
	UserEmail      string    `json:"user_email"`
	ClientIP       string    `json:"client_ip"`
	DestHost       string    `json:"dest_host"`
	Action         string    `json:"action"`
	ThreatCategory string    `json:"threat_category"`
}

// RollupBucket is a per-minute, per-dimension event count. Derived state:
// recomputable from the event store at any time.
type RollupBucket struct {
	Key   BucketKey `json:"key"`
	Total int       `json:"total"`
}

// Evidence is rule-specific structured data attached to a finding.
type Evidence map[string]any

// Finding is one detection rule's scored output. Immutable once created.
type Finding struct {
	ID          string    `json:"id"`
	UploadID    string    `json:"upload_id"`
	PatternName string    `json:"pattern_name"`
	Severity    Severity  `json:"severity"`
	Confidence  float64   `json:"confidence"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Evidence    Evidence  `json:"evidence"`
	CreatedAt   time.Time `json:"created_at"`
	Seq         int       `json:"-"` // creation order within one detection run
}

// AffectedEntities are the entity sets an incident touches.
type AffectedEntities struct {
	UserEmails       []string `json:"user_emails"`
	ClientIPs        []string `json:"client_ips"`
	DestHosts        []string `json:"dest_hosts"`
	ThreatCategories []string `json:"threat_categories"`
}

// Incident is a synthesized grouping of related findings. Built fresh on
// every report generation; not persisted by this core.
type Incident struct {
	Title              string           `json:"title"`
	Severity           Severity         `json:"severity"`
	Confidence         float64          `json:"confidence"`
	Confirmed          bool             `json:"confirmed"`
	SecurityOutcomes   []string         `json:"security_outcomes"`
	AffectedEntities   AffectedEntities `json:"affected_entities"`
	EvidenceFindingIDs []string         `json:"evidence_finding_ids"`
	EvidenceEventIDs   []string         `json:"evidence_event_ids"`
	Why                []string         `json:"why"`
	RecommendedActions []string         `json:"recommended_actions"`
}

// TimelineItem is one span on the report timeline.
type TimelineItem struct {
	TsStart            time.Time `json:"ts_start"`
	TsEnd              time.Time `json:"ts_end"`
	Label              string    `json:"label"`
	EvidenceFindingIDs []string  `json:"evidence_finding_ids"`
	EvidenceEventIDs   []string  `json:"evidence_event_ids"`
}

// IOCSet holds deduplicated indicators of compromise.
type IOCSet struct {
	Domains []string `json:"domains"`
	URLs    []string `json:"urls"`
	IPs     []string `json:"ips"`
	Users   []string `json:"users"`
}

// SocReport is the assembled analyst-facing report. Transient.
type SocReport struct {
	UploadID  string         `json:"upload_id"`
	Summary   string         `json:"summary"`
	Timeline  []TimelineItem `json:"timeline"`
	Incidents []Incident     `json:"incidents"`
	IOCs      IOCSet         `json:"iocs"`
	Gaps      []string       `json:"gaps"`
}

// TopEntry is one entry in a top-N breakdown.
type TopEntry struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// UploadFeatures are precomputed per-upload stats, used as upload metadata
// in the collaborator request and for CLI summaries.
type UploadFeatures struct {
	UploadID    string     `json:"upload_id"`
	TotalEvents int        `json:"total_events"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Blocked     int        `json:"blocked"`
	Allowed     int        `json:"allowed"`
	TopUsers    []TopEntry `json:"top_users"`
	TopIPs      []TopEntry `json:"top_ips"`
	TopHosts    []TopEntry `json:"top_hosts"`
	TopThreats  []TopEntry `json:"top_threat_categories"`
}
