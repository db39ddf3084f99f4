package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// initRepo creates a repository with a.txt and b.txt committed.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "alpha\n")
	writeFile(t, dir, "b.txt", "bravo\n")

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("a.txt")
	require.NoError(t, err)
	_, err = wt.Add("b.txt")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func TestOpen_NotGitRepo(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, ErrNotGitRepo)
}

func TestOpen_DetectsParent(t *testing.T) {
	dir := initRepo(t)
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	ws, err := Open(sub)

	require.NoError(t, err)
	assert.Equal(t, dir, ws.Root())
	assert.Equal(t, "master", ws.Branch())
}

func TestPendingChanges_Clean(t *testing.T) {
	ws, err := Open(initRepo(t))
	require.NoError(t, err)

	changes, err := ws.PendingChanges(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, changes)
	assert.Empty(t, changes)
}

func TestPendingChanges_Kinds(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.txt", "alpha changed\n")
	require.NoError(t, os.Remove(filepath.Join(dir, "b.txt")))
	writeFile(t, dir, "src/c.go", "package c\n")

	ws, err := Open(dir)
	require.NoError(t, err)
	changes, err := ws.PendingChanges(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []orchestrator.PendingChange{
		{Path: "a.txt", Kind: orchestrator.ChangeEdit},
		{Path: "b.txt", Kind: orchestrator.ChangeDelete},
		{Path: "src/c.go", Kind: orchestrator.ChangeAdd},
	}, changes)
}

func TestPendingChanges_Cancelled(t *testing.T) {
	ws, err := Open(initRepo(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ws.PendingChanges(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChangeKind(t *testing.T) {
	tests := []struct {
		name string
		fs   git.FileStatus
		want orchestrator.ChangeKind
		ok   bool
	}{
		{"untracked", git.FileStatus{Staging: git.Untracked, Worktree: git.Untracked}, orchestrator.ChangeAdd, true},
		{"staged add", git.FileStatus{Staging: git.Added, Worktree: git.Unmodified}, orchestrator.ChangeAdd, true},
		{"modified", git.FileStatus{Staging: git.Unmodified, Worktree: git.Modified}, orchestrator.ChangeEdit, true},
		{"staged modify", git.FileStatus{Staging: git.Modified, Worktree: git.Unmodified}, orchestrator.ChangeEdit, true},
		{"deleted", git.FileStatus{Staging: git.Unmodified, Worktree: git.Deleted}, orchestrator.ChangeDelete, true},
		{"renamed", git.FileStatus{Staging: git.Renamed, Extra: "old.txt"}, orchestrator.ChangeRename, true},
		{"added then deleted", git.FileStatus{Staging: git.Added, Worktree: git.Deleted}, "", false},
		{"unmodified", git.FileStatus{Staging: git.Unmodified, Worktree: git.Unmodified}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := tt.fs
			got, ok := changeKind(&fs)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "src/c.go", "package c\n")
	ws, err := Open(dir)
	require.NoError(t, err)

	content, err := ws.ReadFile("src/c.go")
	require.NoError(t, err)
	assert.Equal(t, "package c\n", string(content))

	_, err = ws.ReadFile("../outside.txt")
	assert.ErrorIs(t, err, ErrOutsideWorkspace)

	_, err = ws.ReadFile("/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideWorkspace)

	_, err = ws.ReadFile("missing.txt")
	assert.Error(t, err)
}

func TestTargetVersion_RoundTrip(t *testing.T) {
	dir := initRepo(t)
	ws, err := Open(dir)
	require.NoError(t, err)

	v, err := ws.TargetVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, ws.SetTargetVersion(42))

	reopened, err := Open(dir)
	require.NoError(t, err)
	v, err = reopened.TargetVersion()
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	assert.ErrorIs(t, ws.SetTargetVersion(-1), ErrInvalidVersion)
}

func TestRecord(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.txt", "alpha changed\n")
	require.NoError(t, os.Remove(filepath.Join(dir, "b.txt")))
	writeFile(t, dir, "c.txt", "charlie\n")

	ws, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()
	changes, err := ws.PendingChanges(ctx)
	require.NoError(t, err)

	hash, err := ws.Record(ctx, 7, "Fix the thing", changes)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	remaining, err := ws.PendingChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	v, err := ws.TargetVersion()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Fix the thing\n\nCheckin-Id: C7\n", commit.Message)
	assert.Equal(t, "checkin", commit.Author.Name)

	id, ok := ChangesetFromMessage(commit.Message)
	assert.True(t, ok)
	assert.Equal(t, 7, id)

	last, err := ws.LastCheckin()
	require.NoError(t, err)
	assert.Equal(t, 7, last)
}

func TestLastCheckin_NoBookkeepingCommit(t *testing.T) {
	ws, err := Open(initRepo(t))
	require.NoError(t, err)

	id, err := ws.LastCheckin()

	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestLastCheckin_UnbornHead(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	ws, err := Open(dir)
	require.NoError(t, err)

	id, err := ws.LastCheckin()

	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Empty(t, ws.Branch())
}

func TestCommitMessage(t *testing.T) {
	assert.Equal(t, "Checkin C3\n\nCheckin-Id: C3\n", CommitMessage(3, "  "))
	_, ok := ChangesetFromMessage("no trailer here")
	assert.False(t, ok)
}

func TestLock(t *testing.T) {
	dir := initRepo(t)
	ws, err := Open(dir)
	require.NoError(t, err)

	lock, err := ws.Lock()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".git", "checkin.lock"), lock.Path())

	_, err = ws.Lock()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	again, err := ws.Lock()
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAuthor(t *testing.T) {
	dir := initRepo(t)
	ws, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, "checkin <checkin@localhost>", ws.Author())

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	cfg, err := repo.Config()
	require.NoError(t, err)
	cfg.User.Name = "Dana"
	cfg.User.Email = "dana@example.com"
	require.NoError(t, repo.SetConfig(cfg))

	ws, err = Open(dir)
	require.NoError(t, err)
	assert.Equal(t, "Dana <dana@example.com>", ws.Author())
}
