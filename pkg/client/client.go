package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quarterdeck/captain/pkg/captain"
	"github.com/quarterdeck/captain/pkg/types"
)

// callTimeout is the per-request deadline for every API call.
const callTimeout = 10 * time.Second

// APIError is a non-2xx reply from the captain, carrying the decoded
// error message when the body held one.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("captain replied %d", e.Code)
	}
	return fmt.Sprintf("captain replied %d: %s", e.Code, e.Message)
}

// AsAPIError unwraps an APIError if err carries one.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Client wraps the captain HTTP API for CLI and sailor usage.
type Client struct {
	base       string
	token      string
	httpClient *http.Client
}

// New creates a client for the captain at base, e.g. "http://host:8000".
func New(base string) *Client {
	return &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{},
	}
}

// SetToken attaches a session token used by the /me endpoints.
func (c *Client) SetToken(token string) { c.token = token }

// SubmitChore submits a chore and returns its id.
func (c *Client) SubmitChore(req captain.SubmitRequest) (int64, error) {
	var reply struct {
		OK      bool  `json:"ok"`
		ChoreID int64 `json:"chore_id"`
	}
	if err := c.post("/chore", req, &reply); err != nil {
		return 0, fmt.Errorf("failed to submit chore: %w", err)
	}
	return reply.ChoreID, nil
}

// CancelChore cancels a chore by id. An empty reason records the
// standard user-cancel reason.
func (c *Client) CancelChore(id int64, reason string) error {
	body := map[string]interface{}{"chore_id": id}
	if reason != "" {
		body["reason"] = reason
	}
	if err := c.post("/cancel", body, nil); err != nil {
		return fmt.Errorf("failed to cancel chore %d: %w", id, err)
	}
	return nil
}

// ListChores lists all live chores.
func (c *Client) ListChores() ([]types.Chore, error) {
	var list []types.Chore
	if err := c.get("/chores", &list); err != nil {
		return nil, fmt.Errorf("failed to list chores: %w", err)
	}
	return list, nil
}

// ListChoresOwned lists the live chores of one owner.
func (c *Client) ListChoresOwned(owner string) ([]types.Chore, error) {
	var list []types.Chore
	if err := c.get("/chores?owner="+url.QueryEscape(owner), &list); err != nil {
		return nil, fmt.Errorf("failed to list chores for %s: %w", owner, err)
	}
	return list, nil
}

// GetChore fetches one chore, live or archived.
func (c *Client) GetChore(id int64) (types.Chore, error) {
	var chore types.Chore
	if err := c.get(fmt.Sprintf("/api/chores/%d", id), &chore); err != nil {
		return types.Chore{}, fmt.Errorf("failed to get chore %d: %w", id, err)
	}
	return chore, nil
}

// ArchivedChores lists the reaped terminal chores.
func (c *Client) ArchivedChores() ([]types.Chore, error) {
	var list []types.Chore
	if err := c.get("/api/archive", &list); err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	return list, nil
}

// ListCrew lists all sailors with their derived statuses.
func (c *Client) ListCrew() ([]types.Sailor, error) {
	var fleet []types.Sailor
	if err := c.get("/crew", &fleet); err != nil {
		return nil, fmt.Errorf("failed to list crew: %w", err)
	}
	return fleet, nil
}

// RemoveSailor drops a sailor from the crew. Its live chores fail.
func (c *Client) RemoveSailor(name string) error {
	if err := c.do(http.MethodDelete, "/api/crew/"+url.PathEscape(name), nil, nil); err != nil {
		return fmt.Errorf("failed to remove sailor %s: %w", name, err)
	}
	return nil
}

// Prereg registers a sailor ahead of its first heartbeat.
func (c *Client) Prereg(name, ip string, port int, services []string, maxTime string) error {
	body := map[string]interface{}{
		"name": name,
		"ip":   ip,
	}
	if port > 0 {
		body["port"] = port
	}
	if len(services) > 0 {
		body["services"] = services
	}
	if maxTime != "" {
		body["max_time"] = maxTime
	}
	if err := c.post("/prereg", body, nil); err != nil {
		return fmt.Errorf("failed to preregister %s: %w", name, err)
	}
	return nil
}

// Heartbeat posts a sailor report and returns the captain's reply.
func (c *Client) Heartbeat(report *types.HeartbeatReport) (*types.HeartbeatReply, error) {
	var reply types.HeartbeatReply
	if err := c.post("/heartbeat", report, &reply); err != nil {
		return nil, fmt.Errorf("heartbeat failed: %w", err)
	}
	return &reply, nil
}

// ListUsers lists all user records.
func (c *Client) ListUsers() ([]types.User, error) {
	var list []types.User
	if err := c.get("/users", &list); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return list, nil
}

// SetUser creates or updates a user record.
func (c *Client) SetUser(upd captain.UserUpdate) error {
	if err := c.post("/user-set", upd, nil); err != nil {
		return fmt.Errorf("failed to set user %s: %w", upd.UID, err)
	}
	return nil
}

// Login exchanges a uid for a session token and retains it for the
// /me endpoints.
func (c *Client) Login(uid string) (*captain.SessionToken, error) {
	var token captain.SessionToken
	if err := c.post("/login", map[string]string{"uid": uid}, &token); err != nil {
		return nil, fmt.Errorf("login failed for %s: %w", uid, err)
	}
	c.token = token.Token
	return &token, nil
}

// MyChores lists the chores of the logged-in user.
func (c *Client) MyChores() ([]types.Chore, error) {
	var list []types.Chore
	if err := c.get("/me/chores", &list); err != nil {
		return nil, fmt.Errorf("failed to list own chores: %w", err)
	}
	return list, nil
}

// MyCancel cancels one of the logged-in user's chores.
func (c *Client) MyCancel(id int64, reason string) error {
	body := map[string]interface{}{"chore_id": id}
	if reason != "" {
		body["reason"] = reason
	}
	if err := c.post("/me/cancel", body, nil); err != nil {
		return fmt.Errorf("failed to cancel chore %d: %w", id, err)
	}
	return nil
}

// Health probes the captain's liveness endpoint.
func (c *Client) Health() error {
	if err := c.get("/health", nil); err != nil {
		return fmt.Errorf("captain unhealthy: %w", err)
	}
	return nil
}

func (c *Client) get(path string, out interface{}) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *Client) post(path string, body, out interface{}) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *Client) do(method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Code: resp.StatusCode, Message: e.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
