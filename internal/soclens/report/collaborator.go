package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/varunr-/SOCLens/internal/soclens/model"
)

// CollaboratorError marks a narrative request that never produced a usable
// response (unreachable, timeout, non-200). It always routes to the
// deterministic fallback, never to the caller.
type CollaboratorError struct {
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("reasoning collaborator: %v", e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// NarrativeRequest is the structured evidence pack sent to the reasoning
// collaborator.
type NarrativeRequest struct {
	UploadID     string                `json:"upload_id"`
	Findings     []model.Finding       `json:"findings"`
	Incidents    []model.Incident      `json:"incidents"`
	SampleEvents []model.Event         `json:"sample_events"`
	Features     *model.UploadFeatures `json:"features,omitempty"`
}

// Collaborator drafts report narrative from structured evidence. The
// returned bytes are untrusted until validated.
type Collaborator interface {
	Draft(ctx context.Context, req NarrativeRequest) ([]byte, error)
}

// HTTPCollaborator posts the evidence pack as JSON and expects a SOC
// report JSON object back.
type HTTPCollaborator struct {
	URL    string
	Client *http.Client
}

func NewHTTPCollaborator(url string, timeout time.Duration) *HTTPCollaborator {
	return &HTTPCollaborator{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

const maxResponseBytes = 4 << 20

func (c *HTTPCollaborator) Draft(ctx context.Context, req NarrativeRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &CollaboratorError{Err: fmt.Errorf("encode request: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &CollaboratorError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, &CollaboratorError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &CollaboratorError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &CollaboratorError{Err: fmt.Errorf("read response: %w", err)}
	}
	return raw, nil
}
