package store

import (
	"context"
	"errors"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrActiveJob is returned by CreateJobIfNoneActive when the upload already
// has a non-terminal job.
var ErrActiveJob = errors.New("upload already has an active job")

// JobStore persists ingest jobs. Jobs are never deleted (audit trail).
type JobStore interface {
	CreateJob(ctx context.Context, job model.IngestJob) error
	// CreateJobIfNoneActive creates the job only when the upload has no
	// non-terminal job, as one atomic operation; otherwise ErrActiveJob.
	// The check-and-create must not be separable by a concurrent submitter.
	CreateJobIfNoneActive(ctx context.Context, job model.IngestJob) error
	GetJob(ctx context.Context, id string) (model.IngestJob, error)
	// ActiveJob returns the non-terminal job for an upload, if any.
	ActiveJob(ctx context.Context, uploadID string) (model.IngestJob, bool, error)
	// LatestJob returns the most recently created job for an upload, if any.
	LatestJob(ctx context.Context, uploadID string) (model.IngestJob, bool, error)
	// UpdateJob applies mutate to the stored job atomically, so concurrent
	// status reads always observe a consistent counter pair.
	UpdateJob(ctx context.Context, id string, mutate func(*model.IngestJob) error) error
}

// EventStore is the append-only per-upload event collection.
type EventStore interface {
	AppendEvents(ctx context.Context, events []model.Event) error
	ListEvents(ctx context.Context, uploadID string) ([]model.Event, error)
}

// RollupStore holds derived minute rollups, replaced wholesale per
// recompute (transactional upsert keyed by the composite bucket key).
type RollupStore interface {
	ReplaceRollups(ctx context.Context, uploadID string, buckets []model.RollupBucket) error
	ListRollups(ctx context.Context, uploadID string) ([]model.RollupBucket, error)
}

// FindingStore is append-only; findings are immutable once created.
type FindingStore interface {
	AppendFindings(ctx context.Context, findings []model.Finding) error
	ListFindings(ctx context.Context, uploadID string) ([]model.Finding, error)
}

// FeatureStore upserts per-upload feature summaries.
type FeatureStore interface {
	UpsertFeatures(ctx context.Context, f model.UploadFeatures) error
	GetFeatures(ctx context.Context, uploadID string) (model.UploadFeatures, bool, error)
}

// Store is the full record-store contract the core consumes. The physical
// engine behind it is external; this package ships a memory implementation
// and a Postgres one.
type Store interface {
	JobStore
	EventStore
	RollupStore
	FindingStore
	FeatureStore
}
