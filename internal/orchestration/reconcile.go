package orchestration

import (
	"context"

	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
	"github.com/bizmatters/agent-builder/pages-builder/internal/workspace"
)

// previousFiles reconstructs the last published version of a task. The
// published tree wins; the local workspace is used when the publisher has
// nothing. An empty result means the round starts from scratch.
func (s *Service) previousFiles(ctx context.Context, task string, ws *workspace.Workspace, logger *zap.Logger) fileset.FileSet {
	ctx, span := s.tracer.Start(ctx, "round.reconcile")
	defer span.End()

	published, err := s.deps.Publisher.CurrentFiles(ctx, task)
	if err != nil {
		logger.Warn("failed to read published files", zap.Error(err))
	}
	if len(published) > 0 {
		logger.Info("using published files as previous version", zap.Int("files", len(published)))
		return published
	}

	local, err := ws.ReadSite()
	if err != nil {
		logger.Warn("failed to read workspace files", zap.Error(err))
		return fileset.FileSet{}
	}
	if len(local) > 0 {
		logger.Info("using workspace files as previous version", zap.Int("files", len(local)))
		return local
	}

	logger.Info("no previous version found, generating from scratch")
	return fileset.FileSet{}
}
