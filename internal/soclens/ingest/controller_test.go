package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunr-/SOCLens/internal/soclens/model"
	"github.com/varunr-/SOCLens/internal/soclens/parsers"
	"github.com/varunr-/SOCLens/internal/soclens/store"
)

func newTestController(t *testing.T, hooks ...Hook) (*Controller, *store.MemoryStore, chan string) {
	t.Helper()
	st := store.NewMemoryStore()
	factory := parsers.NewFactory()
	parser, err := factory.NewParser(parsers.DialectAuto, parsers.ParserOptions{})
	require.NoError(t, err)

	c := NewController(st, parser, hooks...)
	done := make(chan string, 4)
	c.notifyDone(done)
	return c, st, done
}

func waitForJob(t *testing.T, done chan string) string {
	t.Helper()
	select {
	case id := <-done:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ingest worker")
		return ""
	}
}

func uploadLines(good, corrupt int) string {
	var b strings.Builder
	for i := 0; i < good; i++ {
		fmt.Fprintf(&b, `{"event":{"datetime":"2025-06-01 10:%02d:00","user":"u%d@example.com","ClientIP":"10.0.0.%d","action":"allowed","hostname":"ok.example.com"}}`,
			i%60, i%7, i%250+1)
		b.WriteString("\n")
	}
	for i := 0; i < corrupt; i++ {
		b.WriteString("### not parseable at all\n")
	}
	return b.String()
}

func TestController_CountersSumToLinesProcessed(t *testing.T) {
	c, _, done := newTestController(t)
	ctx := context.Background()

	jobID, err := c.Submit(ctx, "upload-counters", strings.NewReader(uploadLines(95, 5)))
	require.NoError(t, err)
	waitForJob(t, done)

	job, err := c.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, job.Status)
	assert.Equal(t, 95, job.InsertedEvents)
	assert.Equal(t, 5, job.BadLines)
	assert.Equal(t, 100, job.InsertedEvents+job.BadLines)
}

func TestController_BadLinesNeverFailTheJob(t *testing.T) {
	c, st, done := newTestController(t)
	ctx := context.Background()

	input := "garbage line one\n{\"event\":{\"user\":\"a@b.com\"}}\n{truncated\n"
	jobID, err := c.Submit(ctx, "upload-bad", strings.NewReader(input))
	require.NoError(t, err)
	waitForJob(t, done)

	job, err := c.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, job.Status)
	assert.Equal(t, 1, job.InsertedEvents)
	assert.Equal(t, 2, job.BadLines)
	assert.Empty(t, job.Error)

	events, err := st.ListEvents(ctx, "upload-bad")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "upload-bad", events[0].UploadID)
}

func TestController_SecondSubmitWhileActiveRejected(t *testing.T) {
	c, _, done := newTestController(t)
	ctx := context.Background()

	// a reader that blocks keeps the first job non-terminal
	blocked := make(chan struct{})
	r := &blockingReader{unblock: blocked}

	_, err := c.Submit(ctx, "upload-active", r)
	require.NoError(t, err)

	_, err = c.Submit(ctx, "upload-active", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrJobActive)

	close(blocked)
	waitForJob(t, done)

	// once the first job is terminal, a new submit is accepted
	_, err = c.Submit(ctx, "upload-active", strings.NewReader(""))
	assert.NoError(t, err)
	waitForJob(t, done)
}

func TestController_ConcurrentSubmitSingleWinner(t *testing.T) {
	c, _, done := newTestController(t)
	ctx := context.Background()

	unblock := make(chan struct{})
	const submitters = 8

	var wg sync.WaitGroup
	accepted := make(chan string, submitters)
	rejected := make(chan error, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := c.Submit(ctx, "upload-race", &blockingReader{unblock: unblock})
			if err != nil {
				rejected <- err
				return
			}
			accepted <- id
		}()
	}
	wg.Wait()
	close(accepted)
	close(rejected)

	assert.Equal(t, 1, len(accepted), "exactly one concurrent submit may create a job")
	var losers int
	for err := range rejected {
		assert.ErrorIs(t, err, ErrJobActive)
		losers++
	}
	assert.Equal(t, submitters-1, losers)

	close(unblock)
	waitForJob(t, done)
}

type blockingReader struct {
	unblock chan struct{}
	once    bool
}

func (r *blockingReader) Read(p []byte) (int, error) {
	if !r.once {
		r.once = true
		<-r.unblock
	}
	return 0, errors.New("stream torn down")
}

func TestController_StreamErrorFailsJobWithMessage(t *testing.T) {
	c, _, done := newTestController(t)
	ctx := context.Background()

	jobID, err := c.Submit(ctx, "upload-fatal", &failingReader{})
	require.NoError(t, err)
	waitForJob(t, done)

	job, err := c.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.NotEmpty(t, job.Error)
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("disk gone")
}

func TestController_HooksRunAfterDone(t *testing.T) {
	var hooked []string
	hook := func(ctx context.Context, uploadID string) error {
		hooked = append(hooked, uploadID)
		return nil
	}
	failingHook := func(ctx context.Context, uploadID string) error {
		return errors.New("derived state recompute blew up")
	}

	c, _, done := newTestController(t, failingHook, hook)
	ctx := context.Background()

	jobID, err := c.Submit(ctx, "upload-hooks", strings.NewReader(uploadLines(3, 0)))
	require.NoError(t, err)
	waitForJob(t, done)

	// a failing hook does not undo done and does not stop later hooks
	job, err := c.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, job.Status)
	assert.Equal(t, []string{"upload-hooks"}, hooked)
}

func TestController_BatchingAcrossThreshold(t *testing.T) {
	c, st, done := newTestController(t)
	ctx := context.Background()

	n := batchSize + 37
	jobID, err := c.Submit(ctx, "upload-batch", strings.NewReader(uploadLines(n, 0)))
	require.NoError(t, err)
	waitForJob(t, done)

	job, err := c.Status(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, n, job.InsertedEvents)

	events, err := st.ListEvents(ctx, "upload-batch")
	require.NoError(t, err)
	assert.Len(t, events, n)
}
