// Package remote submits changesets to a checkin server over HTTP.
package remote

import (
	"time"

	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

// API paths.
const (
	HealthPath     = "/health"
	ChangesetsPath = "/api/v1/changesets"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeStaleVersion   = "stale_version"
	CodeInvalidRequest = "invalid_request"
	CodeReasonRequired = "override_reason_required"
	CodeNotFound       = "not_found"
	CodeRateLimited    = "rate_limited"
)

// Change is one file change in a submission. Content is sent for adds,
// edits and renames; JSON encodes it as base64.
type Change struct {
	Path       string                  `json:"path"`
	Kind       orchestrator.ChangeKind `json:"kind"`
	SourcePath string                  `json:"source_path,omitempty"`
	Content    []byte                  `json:"content,omitempty"`
}

// SubmitRequest is the body of POST /api/v1/changesets.
type SubmitRequest struct {
	Author      string                       `json:"author,omitempty"`
	Comment     string                       `json:"comment"`
	Notes       []orchestrator.NoteField     `json:"notes,omitempty"`
	WorkItems   []orchestrator.WorkItem      `json:"work_items,omitempty"`
	Changes     []Change                     `json:"changes"`
	Override    *orchestrator.OverrideRecord `json:"override,omitempty"`
	Forced      bool                         `json:"forced"`
	BaseVersion int                          `json:"base_version"`
}

// SubmitResponse is the 201 body of POST /api/v1/changesets.
type SubmitResponse struct {
	ID   int    `json:"id"`
	UUID string `json:"uuid"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Changeset is a recorded checkin as returned by the server.
type Changeset struct {
	ID        int                          `json:"id"`
	UUID      string                       `json:"uuid"`
	Author    string                       `json:"author,omitempty"`
	Comment   string                       `json:"comment"`
	Notes     []orchestrator.NoteField     `json:"notes,omitempty"`
	WorkItems []orchestrator.WorkItem      `json:"work_items,omitempty"`
	Changes   []ChangeSummary              `json:"changes"`
	Override  *orchestrator.OverrideRecord `json:"override,omitempty"`
	Forced    bool                         `json:"forced"`
	CreatedAt time.Time                    `json:"created_at"`
}

// ChangeSummary is a change without its content.
type ChangeSummary struct {
	Path       string                  `json:"path"`
	Kind       orchestrator.ChangeKind `json:"kind"`
	SourcePath string                  `json:"source_path,omitempty"`
	Size       int                     `json:"size"`
}

// ChangesetList is the body of GET /api/v1/changesets.
type ChangesetList struct {
	Head       int         `json:"head"`
	Changesets []Changeset `json:"changesets"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Head   int    `json:"head"`
}
