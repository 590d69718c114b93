package detect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/varunr-/SOCLens/internal/soclens/logger"
	"github.com/varunr-/SOCLens/internal/soclens/model"
	"github.com/varunr-/SOCLens/internal/soclens/store"
)

// ErrIngestNotDone is returned when detection is requested for an upload
// whose ingest job has not completed.
var ErrIngestNotDone = errors.New("ingest not done for upload")

// Engine runs the rule registry against one upload and persists scored
// findings. Runs are append-only: re-running detection adds a new batch
// rather than replacing earlier findings.
type Engine struct {
	store store.Store
	rules []Rule
}

func NewEngine(st store.Store, rules []Rule) *Engine {
	return &Engine{store: st, rules: rules}
}

// Run evaluates every registered rule over the upload's events and
// rollups. A rule that errors or panics is logged and skipped; the
// remaining rules still run.
func (e *Engine) Run(ctx context.Context, uploadID string) ([]model.Finding, error) {
	job, ok, err := e.store.LatestJob(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("load job for %s: %w", uploadID, err)
	}
	if !ok || job.Status != model.JobDone {
		return nil, fmt.Errorf("%w: %s", ErrIngestNotDone, uploadID)
	}

	events, err := e.store.ListEvents(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", uploadID, err)
	}
	rollups, err := e.store.ListRollups(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("load rollups for %s: %w", uploadID, err)
	}
	scope := &Scope{UploadID: uploadID, Events: events, Rollups: rollups}

	if prior, err := e.store.ListFindings(ctx, uploadID); err == nil && len(prior) > 0 {
		logger.L().Warnw("detection re-run, appending to existing findings",
			"upload_id", uploadID, "existing", len(prior))
	}

	now := time.Now().UTC()
	var findings []model.Finding
	seq := 0
	for _, rule := range e.rules {
		drafts := e.evaluate(ctx, rule, scope)
		for _, d := range drafts {
			findings = append(findings, model.Finding{
				ID:          uuid.NewString(),
				UploadID:    uploadID,
				PatternName: d.PatternName,
				Severity:    d.Severity,
				Confidence:  calcConfidence(d.PatternName, d.Severity, d.Evidence),
				Title:       d.Title,
				Summary:     d.Summary,
				Evidence:    d.Evidence,
				CreatedAt:   now,
				Seq:         seq,
			})
			seq++
		}
	}

	if len(findings) > 0 {
		if err := e.store.AppendFindings(ctx, findings); err != nil {
			return nil, fmt.Errorf("persist findings for %s: %w", uploadID, err)
		}
	}
	logger.L().Infow("detection run complete",
		"upload_id", uploadID, "rules", len(e.rules), "findings", len(findings))
	return SortFindings(findings), nil
}

// evaluate isolates one rule: an error or panic in a rule must not take
// down the run.
func (e *Engine) evaluate(ctx context.Context, rule Rule, scope *Scope) (drafts []Draft) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Errorw("rule panicked, skipping",
				"rule", rule.Name(), "upload_id", scope.UploadID, "panic", r)
			drafts = nil
		}
	}()
	drafts, err := rule.Evaluate(ctx, scope)
	if err != nil {
		logger.L().Errorw("rule failed, skipping",
			"rule", rule.Name(), "upload_id", scope.UploadID, "error", err)
		return nil
	}
	return drafts
}

// List returns the upload's findings in presentation order.
func (e *Engine) List(ctx context.Context, uploadID string) ([]model.Finding, error) {
	findings, err := e.store.ListFindings(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list findings for %s: %w", uploadID, err)
	}
	return SortFindings(findings), nil
}

// SortFindings orders findings severity first, then confidence, keeping
// creation order for ties so repeated listings are stable.
func SortFindings(findings []model.Finding) []model.Finding {
	sort.SliceStable(findings, func(i, j int) bool {
		ri, rj := findings[i].Severity.Rank(), findings[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		if findings[i].Confidence != findings[j].Confidence {
			return findings[i].Confidence > findings[j].Confidence
		}
		if !findings[i].CreatedAt.Equal(findings[j].CreatedAt) {
			return findings[i].CreatedAt.Before(findings[j].CreatedAt)
		}
		return findings[i].Seq < findings[j].Seq
	})
	return findings
}
