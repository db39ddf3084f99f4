// Package workspace exposes a git working copy as the source of pending
// changes for a checkin.
//
// The working copy is read with go-git: status codes become pending
// changes, the changeset a copy was last synchronized to is kept in the
// repository config under [checkin] version, and a successful checkin is
// recorded as a local bookkeeping commit.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

const (
	configSection = "checkin"
	versionOption = "version"

	// TrailerKey prefixes the changeset id in bookkeeping commit messages.
	TrailerKey = "Checkin-Id"
)

var (
	// ErrNotGitRepo indicates the directory is not inside a git working copy
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrOutsideWorkspace indicates a path escapes the working copy root
	ErrOutsideWorkspace = errors.New("path outside workspace")

	// ErrInvalidVersion indicates a malformed [checkin] version entry
	ErrInvalidVersion = errors.New("invalid target version")
)

// Workspace is an opened git working copy.
type Workspace struct {
	root string
	repo *git.Repository
	wt   *git.Worktree
}

// Open finds the working copy containing path, searching parent
// directories for .git.
func Open(dir string) (*Workspace, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, dir)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotGitRepo, dir, err)
	}

	return &Workspace{
		root: wt.Filesystem.Root(),
		repo: repo,
		wt:   wt,
	}, nil
}

// Root returns the working copy root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Branch returns the current branch name, or "" when HEAD is detached or
// unborn.
func (w *Workspace) Branch() string {
	head, err := w.repo.Head()
	if err != nil {
		return ""
	}
	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	return ""
}

// PendingChanges implements orchestrator.Discoverer. Changes are sorted by
// path; a clean working copy yields an empty slice.
func (w *Workspace) PendingChanges(ctx context.Context) ([]orchestrator.PendingChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	status, err := w.wt.Status()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w", err)
	}

	changes := make([]orchestrator.PendingChange, 0, len(status))
	for p, fs := range status {
		kind, ok := changeKind(fs)
		if !ok {
			continue
		}
		c := orchestrator.PendingChange{Path: p, Kind: kind}
		if kind == orchestrator.ChangeRename {
			c.SourcePath = fs.Extra
		}
		changes = append(changes, c)
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// changeKind maps a go-git file status to a change kind. Files added to
// the index and then deleted from disk are not pending.
func changeKind(fs *git.FileStatus) (orchestrator.ChangeKind, bool) {
	switch {
	case fs.Staging == git.Added && fs.Worktree == git.Deleted:
		return "", false
	case fs.Staging == git.Deleted || fs.Worktree == git.Deleted:
		return orchestrator.ChangeDelete, true
	case fs.Staging == git.Renamed:
		return orchestrator.ChangeRename, true
	case fs.Staging == git.Untracked || fs.Worktree == git.Untracked,
		fs.Staging == git.Added, fs.Staging == git.Copied:
		return orchestrator.ChangeAdd, true
	case fs.Staging == git.Modified || fs.Worktree == git.Modified,
		fs.Staging == git.UpdatedButUnmerged || fs.Worktree == git.UpdatedButUnmerged:
		return orchestrator.ChangeEdit, true
	default:
		return "", false
	}
}

// ReadFile returns the working copy content of a slash-separated path
// relative to the root.
func (w *Workspace) ReadFile(p string) ([]byte, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	return util.ReadFile(w.wt.Filesystem, clean)
}

func cleanPath(p string) (string, error) {
	slashed := filepath.ToSlash(p)
	if path.IsAbs(slashed) || filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
	}
	clean := path.Clean(slashed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
	}
	return clean, nil
}

// TargetVersion returns the changeset the working copy was last
// synchronized to, or 0 if it never was.
func (w *Workspace) TargetVersion() (int, error) {
	cfg, err := w.repo.Config()
	if err != nil {
		return 0, fmt.Errorf("read repository config: %w", err)
	}
	raw := cfg.Raw.Section(configSection).Option(versionOption)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
	}
	return v, nil
}

// SetTargetVersion stores the changeset the working copy is synchronized to.
func (w *Workspace) SetTargetVersion(id int) error {
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidVersion, id)
	}
	cfg, err := w.repo.Config()
	if err != nil {
		return fmt.Errorf("read repository config: %w", err)
	}
	cfg.Raw.Section(configSection).SetOption(versionOption, strconv.Itoa(id))
	if err := w.repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("write repository config: %w", err)
	}
	return nil
}

// Record stages the checked-in changes, creates a bookkeeping commit whose
// message ends with a "Checkin-Id: C<id>" trailer, and advances the target
// version to id. It returns the commit hash.
func (w *Workspace) Record(ctx context.Context, id int, message string, changes []orchestrator.PendingChange) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, c := range changes {
		if err := w.stage(c); err != nil {
			return "", fmt.Errorf("stage %s: %w", c.Path, err)
		}
	}

	hash, err := w.wt.Commit(CommitMessage(id, message), &git.CommitOptions{
		Author:            w.signature(),
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	if err := w.SetTargetVersion(id); err != nil {
		return "", err
	}
	return hash.String(), nil
}

// LastCheckin returns the changeset recorded by the HEAD commit, or 0 when
// HEAD is unborn or not a bookkeeping commit.
func (w *Workspace) LastCheckin() (int, error) {
	head, err := w.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := w.repo.CommitObject(head.Hash())
	if err != nil {
		return 0, fmt.Errorf("read HEAD commit: %w", err)
	}
	id, _ := ChangesetFromMessage(commit.Message)
	return id, nil
}

func (w *Workspace) stage(c orchestrator.PendingChange) error {
	switch c.Kind {
	case orchestrator.ChangeDelete:
		_, err := w.wt.Remove(c.Path)
		return err
	case orchestrator.ChangeRename:
		if c.SourcePath != "" {
			if _, err := w.wt.Remove(c.SourcePath); err != nil {
				return err
			}
		}
	}
	_, err := w.wt.Add(c.Path)
	return err
}

// Author returns "name <email>" for the bookkeeping commit signature.
func (w *Workspace) Author() string {
	sig := w.signature()
	return fmt.Sprintf("%s <%s>", sig.Name, sig.Email)
}

// signature uses the repository's user.name/user.email when set.
func (w *Workspace) signature() *object.Signature {
	sig := &object.Signature{Name: "checkin", Email: "checkin@localhost", When: time.Now()}
	cfg, err := w.repo.Config()
	if err != nil {
		return sig
	}
	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}
	return sig
}

// CommitMessage builds a bookkeeping commit message.
func CommitMessage(id int, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = fmt.Sprintf("Checkin C%d", id)
	}
	return fmt.Sprintf("%s\n\n%s: C%d\n", msg, TrailerKey, id)
}

// ChangesetFromMessage extracts the id from a bookkeeping commit message.
func ChangesetFromMessage(message string) (int, bool) {
	for _, line := range strings.Split(message, "\n") {
		v, ok := strings.CutPrefix(strings.TrimSpace(line), TrailerKey+": C")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(v)
		if err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}
