// Package workspace records the version-control state of the target tree so
// plans and candidates show which revision a fix was prepared against.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/autopatch"
	"github.com/fyrsmithlabs/autopatchd/internal/configanalyzer"
)

const instrumentationName = "github.com/fyrsmithlabs/autopatchd/internal/workspace"

// DefaultMaxDirty bounds the number of dirty paths reported.
const DefaultMaxDirty = 50

// ErrNotRepository is returned when the root is not inside a git repository.
var ErrNotRepository = errors.New("not a git repository")

// Inspector snapshots git working trees.
type Inspector struct {
	maxDirty int
	logger   *zap.Logger
	tracer   trace.Tracer
}

var _ configanalyzer.WorkspaceInspector = (*Inspector)(nil)

// NewInspector creates an Inspector. maxDirty <= 0 means DefaultMaxDirty.
func NewInspector(maxDirty int, logger *zap.Logger) *Inspector {
	if maxDirty <= 0 {
		maxDirty = DefaultMaxDirty
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{
		maxDirty: maxDirty,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}
}

// Snapshot returns HEAD, the current branch and the modified or untracked
// paths of the repository containing root. A repository without commits
// reports an empty revision.
func (i *Inspector) Snapshot(ctx context.Context, root string) (*autopatch.WorkspaceState, error) {
	_, span := i.tracer.Start(ctx, "workspace.Snapshot", trace.WithAttributes(attribute.String("root", root)))
	defer span.End()

	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, root)
		}
		return nil, fmt.Errorf("opening repository: %w", err)
	}

	state := &autopatch.WorkspaceState{}
	head, err := repo.Head()
	switch {
	case err == nil:
		state.Revision = head.Hash().String()
		if head.Name().IsBranch() {
			state.Branch = head.Name().Short()
		}
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// Fresh repository without commits.
	default:
		return nil, fmt.Errorf("reading HEAD: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return state, nil
		}
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}

	for path, fs := range status {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		state.Dirty = append(state.Dirty, path)
	}
	sort.Strings(state.Dirty)
	if len(state.Dirty) > i.maxDirty {
		i.logger.Debug("dirty path list truncated",
			zap.String("root", root), zap.Int("dirty", len(state.Dirty)))
		state.Dirty = state.Dirty[:i.maxDirty]
	}

	span.SetAttributes(
		attribute.String("revision", state.Revision),
		attribute.Int("dirty", len(state.Dirty)),
	)
	return state, nil
}
