package pipeline

import (
	"context"
	"fmt"
	"os"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/slipway-sh/slipway/internal/logging"
)

// checkoutResult describes the working tree the build step consumes.
type checkoutResult struct {
	// Dir is the directory holding the source tree.
	Dir string
	// Revision is the commit actually checked out, when known.
	Revision string
	// cleanup removes the temporary clone; a no-op for local builds.
	cleanup func()
}

// checkout produces the source tree for the build. With no repo URL
// configured the current working directory is built as-is. Otherwise the
// repository is cloned into a temp directory; when a revision is requested
// a full clone is needed to check out an arbitrary commit, otherwise a
// shallow clone of the branch head suffices.
func checkout(ctx context.Context, repoURL, branch, revision string) (*checkoutResult, error) {
	if repoURL == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		logging.Get().Info().Str("dir", wd).Msg("building local working directory")
		return &checkoutResult{Dir: wd, Revision: revision, cleanup: func() {}}, nil
	}

	tmpDir, err := os.MkdirTemp("", "slipway-src-*")
	if err != nil {
		return nil, fmt.Errorf("create checkout dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	opts := &git.CloneOptions{URL: repoURL}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}
	if revision == "" {
		// Shallow clone for speed when only the branch head is needed
		opts.Depth = 1
	}

	logging.Get().Info().Str("repo", repoURL).Str("branch", branch).Msg("cloning repository")
	repo, err := git.PlainCloneContext(ctx, tmpDir, false, opts)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("clone %s: %w", repoURL, err)
	}

	if revision != "" {
		wt, err := repo.Worktree()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("open worktree: %w", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(revision)}); err != nil {
			cleanup()
			return nil, fmt.Errorf("checkout %s: %w", revision, err)
		}
		logging.Get().Info().Str("revision", revision).Msg("checked out revision")
		return &checkoutResult{Dir: tmpDir, Revision: revision, cleanup: cleanup}, nil
	}

	head, err := repo.Head()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	rev := head.Hash().String()
	logging.Get().Info().Str("revision", rev).Msg("checked out branch head")
	return &checkoutResult{Dir: tmpDir, Revision: rev, cleanup: cleanup}, nil
}
