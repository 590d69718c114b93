package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// MemoryStore is an in-memory Store. It is the default backend for the CLI
// and tests; all mutation paths take the write lock so counter updates and
// appends are atomic with respect to readers.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]model.IngestJob
	events   map[string][]model.Event        // uploadID → append order
	rollups  map[string][]model.RollupBucket // uploadID → buckets
	findings map[string][]model.Finding      // uploadID → append order
	features map[string]model.UploadFeatures
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]model.IngestJob),
		events:   make(map[string][]model.Event),
		rollups:  make(map[string][]model.RollupBucket),
		findings: make(map[string][]model.Finding),
		features: make(map[string]model.UploadFeatures),
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, job model.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// CreateJobIfNoneActive holds the write lock across the active-job scan and
// the insert, so two concurrent submitters cannot both pass the check.
func (s *MemoryStore) CreateJobIfNoneActive(ctx context.Context, job model.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.UploadID == job.UploadID && !existing.Status.Terminal() {
			return ErrActiveJob
		}
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (model.IngestJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.IngestJob{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) ActiveJob(ctx context.Context, uploadID string) (model.IngestJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.UploadID == uploadID && !job.Status.Terminal() {
			return job, true, nil
		}
	}
	return model.IngestJob{}, false, nil
}

func (s *MemoryStore) LatestJob(ctx context.Context, uploadID string) (model.IngestJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest model.IngestJob
	found := false
	for _, job := range s.jobs {
		if job.UploadID != uploadID {
			continue
		}
		if !found || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
			found = true
		}
	}
	return latest, found, nil
}

func (s *MemoryStore) UpdateJob(ctx context.Context, id string, mutate func(*model.IngestJob) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if err := mutate(&job); err != nil {
		return err
	}
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range events {
		s.events[evt.UploadID] = append(s.events[evt.UploadID], evt)
	}
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, uploadID string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[uploadID]
	out := make([]model.Event, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) ReplaceRollups(ctx context.Context, uploadID string, buckets []model.RollupBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// last writer wins wholesale; upsert-by-key within one recompute is
	// guaranteed by the aggregator producing unique keys
	replacement := make([]model.RollupBucket, len(buckets))
	copy(replacement, buckets)
	s.rollups[uploadID] = replacement
	return nil
}

func (s *MemoryStore) ListRollups(ctx context.Context, uploadID string) ([]model.RollupBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.rollups[uploadID]
	out := make([]model.RollupBucket, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) AppendFindings(ctx context.Context, findings []model.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range findings {
		s.findings[f.UploadID] = append(s.findings[f.UploadID], f)
	}
	return nil
}

func (s *MemoryStore) ListFindings(ctx context.Context, uploadID string) ([]model.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.findings[uploadID]
	out := make([]model.Finding, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) UpsertFeatures(ctx context.Context, f model.UploadFeatures) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features[f.UploadID] = f
	return nil
}

func (s *MemoryStore) GetFeatures(ctx context.Context, uploadID string) (model.UploadFeatures, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[uploadID]
	return f, ok, nil
}
