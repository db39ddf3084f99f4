package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkin/internal/logging"
	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

const maxResponseSize = 1 << 20

var (
	// ErrInvalidURL indicates the server URL is not absolute http(s)
	ErrInvalidURL = errors.New("invalid server url")

	// ErrNotFound indicates the requested changeset does not exist
	ErrNotFound = errors.New("changeset not found")
)

// StatusError is an unexpected HTTP response.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// ContentReader returns working copy file contents.
type ContentReader interface {
	ReadFile(path string) ([]byte, error)
}

// Client implements orchestrator.Submitter against a checkin server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	contents   ContentReader
	author     string
	logger     *logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout of the default http.Client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithContents attaches file contents to submitted changes.
func WithContents(r ContentReader) ClientOption {
	return func(c *Client) { c.contents = r }
}

// WithAuthor sets the author recorded on submitted changesets.
func WithAuthor(author string) ClientOption {
	return func(c *Client) { c.author = author }
}

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit posts the changeset. A 201 returns the new id. A stale base
// version (409) or a rejected submission (422) returns 0 with no error,
// which the orchestrator reports as a failed checkin. Any other status is
// an error.
func (c *Client) Submit(ctx context.Context, sub orchestrator.Submission) (int, error) {
	req, err := c.buildRequest(sub)
	if err != nil {
		return 0, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, ChangesetsPath, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var out SubmitResponse
		if err := decode(resp.Body, &out); err != nil {
			return 0, err
		}
		c.logger.Debug(ctx, "changeset accepted", zap.Int("id", out.ID), zap.String("uuid", out.UUID))
		return out.ID, nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		e := readError(resp)
		c.logger.Warn(ctx, "changeset rejected by server",
			zap.Int("status", e.StatusCode),
			zap.String("code", e.Code),
			zap.String("message", e.Message))
		return 0, nil
	default:
		return 0, readError(resp)
	}
}

func (c *Client) buildRequest(sub orchestrator.Submission) (*SubmitRequest, error) {
	changes := make([]Change, 0, len(sub.Changes))
	for _, pc := range sub.Changes {
		ch := Change{Path: pc.Path, Kind: pc.Kind, SourcePath: pc.SourcePath}
		if c.contents != nil && pc.Kind != orchestrator.ChangeDelete {
			content, err := c.contents.ReadFile(pc.Path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", pc.Path, err)
			}
			ch.Content = content
		}
		changes = append(changes, ch)
	}
	return &SubmitRequest{
		Author:      c.author,
		Comment:     sub.Comment,
		Notes:       sub.Notes,
		WorkItems:   sub.WorkItems,
		Changes:     changes,
		Override:    sub.Override,
		Forced:      sub.Forced,
		BaseVersion: sub.BaseVersion,
	}, nil
}

// Health checks the server and returns its head changeset id.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, HealthPath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}
	var out HealthResponse
	if err := decode(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Changeset fetches a recorded changeset.
func (c *Client) Changeset(ctx context.Context, id int) (*Changeset, error) {
	resp, err := c.do(ctx, http.MethodGet, ChangesetsPath+"/"+strconv.Itoa(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out Changeset
		if err := decode(resp.Body, &out); err != nil {
			return nil, err
		}
		return &out, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	default:
		return nil, readError(resp)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if id := logging.CheckinIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	return resp, nil
}

func decode(r io.Reader, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r, maxResponseSize)).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readError(resp *http.Response) *StatusError {
	e := &StatusError{StatusCode: resp.StatusCode}
	var body ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err == nil {
		e.Code = body.Code
		e.Message = body.Message
	}
	return e
}
