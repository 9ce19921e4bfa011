package sailor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quarterdeck/captain/pkg/log"
	"github.com/quarterdeck/captain/pkg/types"
)

// maxReplyBody caps how much of a sailor's error reply is kept as a
// chore reason.
const maxReplyBody = 4096

// StatusError is a non-2xx reply from a sailor. The body, when present,
// becomes the chore's failure reason; an empty body is treated like a
// transient failure by the caller.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sailor replied %d", e.Code)
	}
	return fmt.Sprintf("sailor replied %d: %s", e.Code, e.Body)
}

// AsStatus unwraps a StatusError if err carries one.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Client invokes the sailor daemon contract: POST /chore to start work
// and POST /cancel to stop it. Every call gets its own short deadline so
// one stuck sailor cannot hold a scheduling tick hostage.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewClient creates a sailor client with the given per-call timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     log.WithComponent("sailor-client"),
	}
}

// Assign posts a chore descriptor to the sailor at endpoint (host:port).
func (c *Client) Assign(ctx context.Context, endpoint string, chore types.Chore) error {
	req := types.AssignRequest{
		ChoreID:       chore.ID,
		Owner:         chore.Owner,
		Script:        chore.Script,
		Configuration: chore.Configuration,
	}
	if err := c.post(ctx, endpoint, "/chore", req); err != nil {
		return fmt.Errorf("failed to assign chore %d: %w", chore.ID, err)
	}
	return nil
}

// Cancel asks the sailor at endpoint to terminate a chore. Sailors treat
// unknown and already-finished chore ids as success, so re-sending is
// safe.
func (c *Client) Cancel(ctx context.Context, endpoint string, choreID int64, reason string) error {
	req := types.CancelRequest{ChoreID: choreID, Reason: reason}
	if err := c.post(ctx, endpoint, "/cancel", req); err != nil {
		return fmt.Errorf("failed to cancel chore %d: %w", choreID, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := "http://" + endpoint + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(reply))}
}
