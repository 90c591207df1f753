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
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	return root, repo
}

func commitAll(t *testing.T, repo *git.Repository, msg string) string {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddGlob("."))
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "ops", Email: "ops@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	root, repo := initRepo(t)
	writeFile(t, root, "app/page.tsx", "export default function Page() {}\n")
	writeFile(t, root, ".env.local", "A=1\n")
	rev := commitAll(t, repo, "initial")

	head, err := repo.Head()
	require.NoError(t, err)

	i := NewInspector(0, nil)

	t.Run("clean tree", func(t *testing.T) {
		state, err := i.Snapshot(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, rev, state.Revision)
		assert.Equal(t, head.Name().Short(), state.Branch)
		assert.Empty(t, state.Dirty)
	})

	t.Run("modified and untracked files", func(t *testing.T) {
		writeFile(t, root, "app/page.tsx", "export default function Page() { return null }\n")
		writeFile(t, root, "lib/new.ts", "export {}\n")

		state, err := i.Snapshot(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, []string{"app/page.tsx", "lib/new.ts"}, state.Dirty)
	})

	t.Run("subdirectory resolves the repository", func(t *testing.T) {
		state, err := i.Snapshot(ctx, filepath.Join(root, "app"))
		require.NoError(t, err)
		assert.Equal(t, rev, state.Revision)
	})

	t.Run("dirty list is bounded", func(t *testing.T) {
		state, err := NewInspector(1, nil).Snapshot(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, []string{"app/page.tsx"}, state.Dirty)
	})
}

func TestSnapshot_EmptyRepository(t *testing.T) {
	root, _ := initRepo(t)
	writeFile(t, root, "README.md", "hi\n")

	state, err := NewInspector(0, nil).Snapshot(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, state.Revision)
	assert.Equal(t, []string{"README.md"}, state.Dirty)
}

func TestSnapshot_NotRepository(t *testing.T) {
	_, err := NewInspector(0, nil).Snapshot(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrNotRepository)
}
