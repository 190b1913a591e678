package checkpoint

import (
	git "github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// CaptureVCS reads the current branch, revision and dirty flag from the
// repository containing path. Outside a repository (or on any error) it
// degrades to the zero pointer: checkpoints work fine without VCS.
func CaptureVCS(path string, logger *zap.Logger) VCSPointer {
	if logger == nil {
		logger = zap.NewNop()
	}

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return VCSPointer{}
	}

	var ptr VCSPointer

	head, err := repo.Head()
	if err != nil {
		logger.Debug("failed to resolve HEAD", zap.Error(err))
		return VCSPointer{}
	}
	ptr.Revision = head.Hash().String()
	if head.Name().IsBranch() {
		ptr.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return ptr
	}
	status, err := wt.Status()
	if err != nil {
		logger.Debug("failed to read worktree status", zap.Error(err))
		return ptr
	}
	ptr.Dirty = !status.IsClean()

	return ptr
}
