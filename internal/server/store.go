package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
	"github.com/fyrsmithlabs/checkin/internal/remote"
)

// Submission errors.
var (
	ErrStaleVersion           = errors.New("base version is stale")
	ErrInvalidBaseVersion     = errors.New("base version is ahead of the server")
	ErrEmptyChangeset         = errors.New("changeset has no changes")
	ErrInvalidChange          = errors.New("invalid change")
	ErrOverrideReasonRequired = errors.New("override reason is required")
)

// Lookup errors.
var (
	ErrNotFound = errors.New("changeset not found")
)

// Store is the in-memory changeset ledger. Ids are issued sequentially
// from 1 and never reused.
type Store struct {
	mu         sync.RWMutex
	changesets []remote.Changeset
	latest     map[string]int
	now        func() time.Time
	newUUID    func() string
}

// NewStore creates an empty ledger.
func NewStore() *Store {
	return &Store{
		latest:  make(map[string]int),
		now:     time.Now,
		newUUID: uuid.NewString,
	}
}

// Head returns the id of the newest changeset, or 0.
func (s *Store) Head() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.changesets)
}

// Submit validates and records a changeset.
//
// A change whose path (or rename source) was modified by a changeset newer
// than req.BaseVersion is stale and rejects the whole submission.
func (s *Store) Submit(req *remote.SubmitRequest) (*remote.Changeset, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	head := len(s.changesets)
	if req.BaseVersion > head {
		return nil, fmt.Errorf("%w: base %d, head %d", ErrInvalidBaseVersion, req.BaseVersion, head)
	}

	var stale []string
	for _, p := range touchedPaths(req.Changes) {
		if s.latest[p] > req.BaseVersion {
			stale = append(stale, p)
		}
	}
	if len(stale) > 0 {
		sort.Strings(stale)
		return nil, fmt.Errorf("%w: %s changed after %d", ErrStaleVersion, strings.Join(stale, ", "), req.BaseVersion)
	}

	id := head + 1
	cs := remote.Changeset{
		ID:        id,
		UUID:      s.newUUID(),
		Author:    req.Author,
		Comment:   req.Comment,
		Notes:     req.Notes,
		WorkItems: req.WorkItems,
		Changes:   summarize(req.Changes),
		Override:  req.Override,
		Forced:    req.Forced,
		CreatedAt: s.now().UTC(),
	}
	s.changesets = append(s.changesets, cs)
	for _, p := range touchedPaths(req.Changes) {
		s.latest[p] = id
	}
	return &cs, nil
}

// Get returns a changeset by id.
func (s *Store) Get(id int) (*remote.Changeset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > len(s.changesets) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	cs := s.changesets[id-1]
	return &cs, nil
}

// List returns up to limit changesets, newest first. A non-positive limit
// returns all of them.
func (s *Store) List(limit int) []remote.Changeset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.changesets)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]remote.Changeset, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.changesets[i])
	}
	return out
}

func validate(req *remote.SubmitRequest) error {
	if len(req.Changes) == 0 {
		return ErrEmptyChangeset
	}
	if req.BaseVersion < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBaseVersion, req.BaseVersion)
	}
	for _, c := range req.Changes {
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("%w: empty path", ErrInvalidChange)
		}
		switch c.Kind {
		case orchestrator.ChangeAdd, orchestrator.ChangeEdit, orchestrator.ChangeDelete:
		case orchestrator.ChangeRename:
			if c.SourcePath == "" {
				return fmt.Errorf("%w: rename of %s has no source path", ErrInvalidChange, c.Path)
			}
		default:
			return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidChange, c.Path, c.Kind)
		}
	}
	if req.Override != nil && strings.TrimSpace(req.Override.Reason) == "" {
		return ErrOverrideReasonRequired
	}
	return nil
}

func touchedPaths(changes []remote.Change) []string {
	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.Path)
		if c.SourcePath != "" {
			paths = append(paths, c.SourcePath)
		}
	}
	return paths
}

func summarize(changes []remote.Change) []remote.ChangeSummary {
	out := make([]remote.ChangeSummary, 0, len(changes))
	for _, c := range changes {
		out = append(out, remote.ChangeSummary{
			Path:       c.Path,
			Kind:       c.Kind,
			SourcePath: c.SourcePath,
			Size:       len(c.Content),
		})
	}
	return out
}
