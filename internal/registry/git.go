package registry

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/michiel/ratchet-sub007/internal/errs"
)

// GitSource discovers tasks from a Git repository: it shells out to the
// system git binary to clone (first use) or pull (subsequent discoveries)
// into a local checkout, then scans that checkout with a FilesystemSource.
// No Git client library appears anywhere in the retrieved pack (see
// DESIGN.md), so this follows the common Go-tooling pattern of driving the
// git CLI directly rather than fabricating a dependency.
type GitSource struct {
	repoURL   string
	ref       string
	checkout  string
	recursive bool
}

func NewGitSource(repoURL, ref, checkoutDir string, recursive bool) *GitSource {
	return &GitSource{repoURL: repoURL, ref: ref, checkout: checkoutDir, recursive: recursive}
}

func (s *GitSource) Name() string {
	return fmt.Sprintf("git:%s@%s", s.repoURL, s.ref)
}

func (s *GitSource) Discover(ctx context.Context) ([]DiscoveredTask, error) {
	if err := s.syncCheckout(ctx); err != nil {
		return nil, err
	}
	return NewFilesystemSource(s.checkout, s.recursive).Discover(ctx)
}

func (s *GitSource) syncCheckout(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.checkout, ".git")); err == nil {
		if err := s.run(ctx, s.checkout, "fetch", "--depth", "1", "origin", s.ref); err != nil {
			return err
		}
		return s.run(ctx, s.checkout, "checkout", "--force", "FETCH_HEAD")
	}

	if err := os.MkdirAll(filepath.Dir(s.checkout), 0o755); err != nil {
		return errs.Server(err, "create git checkout parent directory")
	}
	if err := s.run(ctx, "", "clone", "--depth", "1", "--branch", s.ref, s.repoURL, s.checkout); err != nil {
		return err
	}
	return nil
}

func (s *GitSource) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errs.Network(err, "git %v: %s", args, string(output))
	}
	return nil
}
