package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/varunr-/SOCLens/internal/soclens/logger"
	"github.com/varunr-/SOCLens/internal/soclens/model"
	"github.com/varunr-/SOCLens/internal/soclens/parsers"
	"github.com/varunr-/SOCLens/internal/soclens/store"
)

// ErrJobActive is returned when an upload already has a non-terminal job.
var ErrJobActive = errors.New("upload already has an active ingest job")

// batchSize bounds how many events are buffered before a store append and
// counter flush, matching the original pipeline's batch of 1000.
const batchSize = 1000

// Hooks run on the worker goroutine after a job reaches done. Used to
// recompute derived state (rollups, features) for the upload.
type Hook func(ctx context.Context, uploadID string) error

// Controller drives batch uploads through normalization and storage.
// Submit is non-blocking; each upload ingests on its own worker goroutine
// with no cross-upload shared mutable state.
//
// Re-ingesting an upload is NOT idempotent: a second successful submit
// appends a fresh event set with new IDs. Callers that need replace
// semantics must delete the upload first.
type Controller struct {
	store  store.Store
	parser parsers.Parser
	hooks  []Hook
	done   chan string // receives job IDs as workers finish; nil unless tests ask
}

// NewController builds a Controller around the record store and a parser.
func NewController(st store.Store, parser parsers.Parser, hooks ...Hook) *Controller {
	return &Controller{store: st, parser: parser, hooks: hooks}
}

// notifyDone directs worker-completion signals to ch (test hook).
func (c *Controller) notifyDone(ch chan string) {
	c.done = ch
}

// Submit creates a queued job for the upload and schedules ingestion,
// returning the job ID immediately. A second submission while a
// non-terminal job exists for the upload is rejected with ErrJobActive.
func (c *Controller) Submit(ctx context.Context, uploadID string, r io.Reader) (string, error) {
	now := time.Now().UTC()
	job := model.IngestJob{
		ID:        uuid.NewString(),
		UploadID:  uploadID,
		Status:    model.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// check-and-create is a single store operation so two concurrent
	// submitters for the same upload cannot both slip past the guard
	if err := c.store.CreateJobIfNoneActive(ctx, job); err != nil {
		if errors.Is(err, store.ErrActiveJob) {
			return "", ErrJobActive
		}
		return "", fmt.Errorf("create job: %w", err)
	}

	logger.L().Infow("ingest job submitted", "job_id", job.ID, "upload_id", uploadID)

	// the worker owns the job from here; the submitter only polls status
	go c.run(context.WithoutCancel(ctx), job.ID, uploadID, r)

	return job.ID, nil
}

// Status returns the current job record.
func (c *Controller) Status(ctx context.Context, jobID string) (model.IngestJob, error) {
	return c.store.GetJob(ctx, jobID)
}

// run is the worker loop: queued → running → done|failed.
func (c *Controller) run(ctx context.Context, jobID, uploadID string, r io.Reader) {
	log := logger.L()

	if err := c.transition(ctx, jobID, model.JobRunning, nil); err != nil {
		log.Errorw("mark job running", "job_id", jobID, "err", err.Error())
		return
	}

	inserted, bad, err := c.consume(ctx, jobID, uploadID, r)
	if err != nil {
		log.Errorw("ingest job failed",
			"job_id", jobID,
			"upload_id", uploadID,
			"inserted_events", inserted,
			"bad_lines", bad,
			"err", err.Error())
		if terr := c.transition(ctx, jobID, model.JobFailed, err); terr != nil {
			log.Errorw("mark job failed", "job_id", jobID, "err", terr.Error())
		}
		c.signal(jobID)
		return
	}

	if err := c.transition(ctx, jobID, model.JobDone, nil); err != nil {
		log.Errorw("mark job done", "job_id", jobID, "err", err.Error())
		c.signal(jobID)
		return
	}

	log.Infow("ingest job done",
		"job_id", jobID,
		"upload_id", uploadID,
		"inserted_events", inserted,
		"bad_lines", bad)

	for _, hook := range c.hooks {
		if err := hook(ctx, uploadID); err != nil {
			// derived state is rebuildable; a hook failure does not undo done
			log.Errorw("post-ingest hook failed", "upload_id", uploadID, "err", err.Error())
		}
	}
	c.signal(jobID)
}

// consume streams the input line by line. A parse failure counts as a bad
// line and never fails the job; only stream or store errors are fatal.
// Returns the final counters alongside any fatal error.
func (c *Controller) consume(ctx context.Context, jobID, uploadID string, r io.Reader) (int, int, error) {
	log := logger.L()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var inserted, bad int
	batch := make([]model.Event, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.store.AppendEvents(ctx, batch); err != nil {
			return fmt.Errorf("append events: %w", err)
		}
		inserted += len(batch)
		batch = batch[:0]
		return c.updateCounters(ctx, jobID, inserted, bad)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		evt, err := c.parser.ParseLine(ctx, line)
		if err != nil {
			if errors.Is(err, parsers.ErrSkipLine) {
				bad++
				continue
			}
			// unexpected parser errors degrade to bad lines too; per-line
			// failures never escalate
			log.Warnw("parser error on line", "job_id", jobID, "err", err.Error())
			bad++
			continue
		}
		evt.UploadID = uploadID
		batch = append(batch, *evt)

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return inserted, bad, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return inserted, bad, fmt.Errorf("read input: %w", err)
	}

	if err := flush(); err != nil {
		return inserted, bad, err
	}
	// flush trailing bad-line counts even when no events remained
	if err := c.updateCounters(ctx, jobID, inserted, bad); err != nil {
		return inserted, bad, err
	}
	return inserted, bad, nil
}

// updateCounters writes both counters in one atomic job update so readers
// always see a pair summing to the lines processed so far.
func (c *Controller) updateCounters(ctx context.Context, jobID string, inserted, bad int) error {
	return c.store.UpdateJob(ctx, jobID, func(j *model.IngestJob) error {
		j.InsertedEvents = inserted
		j.BadLines = bad
		j.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// transition moves the job to next, enforcing monotone transitions;
// terminal jobs are immutable.
func (c *Controller) transition(ctx context.Context, jobID string, next model.JobStatus, cause error) error {
	return c.store.UpdateJob(ctx, jobID, func(j *model.IngestJob) error {
		if j.Status.Terminal() {
			return fmt.Errorf("job %s is terminal (%s)", jobID, j.Status)
		}
		j.Status = next
		if cause != nil {
			j.Error = cause.Error()
		}
		j.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (c *Controller) signal(jobID string) {
	if c.done != nil {
		c.done <- jobID
	}
}
