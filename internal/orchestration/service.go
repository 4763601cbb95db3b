package orchestration

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/attachments"
	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
	"github.com/bizmatters/agent-builder/pages-builder/internal/generation"
	"github.com/bizmatters/agent-builder/pages-builder/internal/metrics"
	"github.com/bizmatters/agent-builder/pages-builder/internal/models"
	"github.com/bizmatters/agent-builder/pages-builder/internal/notify"
	"github.com/bizmatters/agent-builder/pages-builder/internal/parser"
	"github.com/bizmatters/agent-builder/pages-builder/internal/prompt"
	"github.com/bizmatters/agent-builder/pages-builder/internal/publish"
	"github.com/bizmatters/agent-builder/pages-builder/internal/workspace"
)

// Notifier delivers the evaluator callback.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) (int, error)
}

// AttachmentFetcher stores a request's attachments in the workspace.
type AttachmentFetcher interface {
	Ingest(ctx context.Context, ws *workspace.Workspace, list []attachments.Attachment) fileset.FileSet
}

// configChecker is implemented by collaborators that can report a missing
// credential without touching the network.
type configChecker interface {
	CheckConfig() error
}

// Options are the deployment-wide round settings.
type Options struct {
	Contract    parser.Contract
	FencePolicy parser.FencePolicy
	ScratchDir  string
}

// Dependencies are the round's collaborators.
type Dependencies struct {
	Generator   generation.Generator
	Publisher   publish.Publisher
	Notifier    Notifier
	Attachments AttachmentFetcher
	Runs        RunStore
	Metrics     *metrics.RoundMetrics
}

// Service runs generation rounds
type Service struct {
	deps   Dependencies
	opts   Options
	tracer trace.Tracer
	logger *zap.Logger
}

// RoundResult is the outcome of a successful round.
type RoundResult struct {
	RunID        string
	Deployment   publish.Deployment
	NotifyStatus int
	Parse        parser.Result
}

// NewService creates a new orchestration service
func NewService(deps Dependencies, opts Options, logger *zap.Logger) *Service {
	if opts.Contract == "" {
		opts.Contract = parser.ContractBlocks
	}
	if opts.FencePolicy == "" {
		opts.FencePolicy = parser.FencePolicyRecover
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		tracer: otel.Tracer("orchestration"),
		logger: logger,
	}
}

// Runs exposes the run ledger.
func (s *Service) Runs() RunStore {
	return s.deps.Runs
}

// RunRound executes one round synchronously: attachments, generation,
// parsing, publishing and notification. The round ignores cancellation of
// ctx so a disconnecting client cannot leave a half-published site.
func (s *Service) RunRound(ctx context.Context, req *models.TaskRequest) (*RoundResult, error) {
	if req.Round != 1 && req.Round != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRound, req.Round)
	}
	if _, err := workspace.Key(req.Task); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "round.run")
	defer span.End()

	start := time.Now()
	run := &models.Run{
		ID:       uuid.New().String(),
		Task:     req.Task,
		Round:    req.Round,
		Email:    req.Email,
		Nonce:    req.Nonce,
		Contract: string(s.opts.Contract),
		Status:   models.RunStatusRunning,
		Stage:    string(StageConfig),
	}
	span.SetAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("task", req.Task),
		attribute.Int("round", req.Round),
	)
	logger := s.logger.With(
		zap.String("run_id", run.ID),
		zap.String("task", req.Task),
		zap.Int("round", req.Round),
	)

	if err := s.deps.Runs.CreateRun(ctx, run); err != nil {
		logger.Error("failed to record run", zap.Error(err))
	}
	s.deps.Metrics.RecordRoundStarted(ctx, req.Round)

	result, err := s.runStages(ctx, req, run, logger)

	now := time.Now().UTC()
	run.FinishedAt = &now
	if err != nil {
		stage, _ := StageOf(err)
		msg := err.Error()
		run.Status = models.RunStatusFailed
		run.Error = &msg
		s.deps.Metrics.RecordRoundFailed(ctx, req.Round, string(stage), time.Since(start))
		span.RecordError(err)
		logger.Error("round failed", zap.String("stage", string(stage)), zap.Error(err))
	} else {
		run.Status = models.RunStatusCompleted
		s.deps.Metrics.RecordRoundCompleted(ctx, req.Round, time.Since(start))
		logger.Info("round completed",
			zap.String("pages_url", result.Deployment.PagesURL),
			zap.String("commit_sha", result.Deployment.CommitSHA),
			zap.Duration("duration", time.Since(start)))
	}
	s.saveRun(ctx, run, logger)

	if err != nil {
		return nil, err
	}
	result.RunID = run.ID
	return result, nil
}

func (s *Service) runStages(ctx context.Context, req *models.TaskRequest, run *models.Run, logger *zap.Logger) (*RoundResult, error) {
	if err := s.checkConfig(); err != nil {
		return nil, &StageError{Stage: StageConfig, Err: err}
	}

	ws, err := workspace.Open(s.opts.ScratchDir, req.Task, req.Round)
	if err != nil {
		return nil, &StageError{Stage: StageConfig, Err: err}
	}

	s.advance(ctx, run, StageAttachments, logger)
	attached := s.deps.Attachments.Ingest(ctx, ws, toAttachments(req.Attachments))

	s.advance(ctx, run, StageGenerate, logger)
	var previous fileset.FileSet
	if req.Round >= 2 {
		previous = s.previousFiles(ctx, req.Task, ws, logger)
	}

	p := prompt.Build(s.opts.Contract, prompt.Request{
		Task:          req.Task,
		Brief:         req.Brief,
		Checks:        req.Checks,
		Round:         req.Round,
		PreviousFiles: previous,
		Attachments:   attachmentNames(attached),
	})
	raw, err := s.deps.Generator.Generate(ctx, p)
	if err != nil {
		if errors.Is(err, generation.ErrMissingCredential) {
			return nil, &StageError{Stage: StageConfig, Err: err}
		}
		return nil, &StageError{Stage: StageGenerate, Err: err}
	}

	s.advance(ctx, run, StageParse, logger)
	parsed := s.parse(raw, req)
	s.deps.Metrics.RecordParse(ctx, string(s.opts.Contract), parsed.Fallback, len(parsed.Flagged))
	run.Fallback = parsed.Fallback
	run.Flagged = parsed.Flagged
	if parsed.Fallback {
		logger.Warn("response had no file structure, using fallback entry")
	}
	if len(parsed.Duplicates) > 0 {
		logger.Warn("repeated file paths, keeping the last block",
			zap.Strings("paths", parsed.Duplicates))
	}
	if len(parsed.Flagged) > 0 {
		logger.Warn("nested fence in file blocks",
			zap.Strings("paths", parsed.Flagged),
			zap.String("policy", string(s.opts.FencePolicy)))
		if s.opts.FencePolicy == parser.FencePolicyFail {
			return nil, &StageError{Stage: StageParse, Err: fmt.Errorf("%w: %v", ErrNestedFence, parsed.Flagged)}
		}
	}

	files := parsed.Files.Clone()
	files.Merge(attached)
	run.Files = files.Paths()

	s.advance(ctx, run, StagePublish, logger)
	if err := ws.WriteSite(files); err != nil {
		return nil, &StageError{Stage: StagePublish, Err: err}
	}
	dep, err := s.deps.Publisher.Publish(ctx, req.Task, files, publish.CommitMessage(req.Round, req.Brief))
	if err != nil {
		if errors.Is(err, publish.ErrMissingToken) {
			return nil, &StageError{Stage: StageConfig, Err: err}
		}
		return nil, &StageError{Stage: StagePublish, Err: err}
	}
	run.RepoURL = &dep.RepoURL
	run.PagesURL = &dep.PagesURL
	run.CommitSHA = &dep.CommitSHA

	s.advance(ctx, run, StageNotify, logger)
	status, err := s.deps.Notifier.Notify(ctx, notify.Notification{
		EvaluationURL: req.EvaluationURL,
		Email:         req.Email,
		Task:          req.Task,
		Round:         req.Round,
		Nonce:         req.Nonce,
		RepoURL:       dep.RepoURL,
		CommitSHA:     dep.CommitSHA,
		PagesURL:      dep.PagesURL,
	})
	if status != 0 {
		run.NotifyStatus = &status
	}
	if err != nil {
		return nil, &StageError{Stage: StageNotify, Err: err}
	}

	return &RoundResult{
		Deployment:   dep,
		NotifyStatus: status,
		Parse:        parsed,
	}, nil
}

// parse runs the parser matching the deployment's contract.
func (s *Service) parse(raw string, req *models.TaskRequest) parser.Result {
	return parser.Parse(s.opts.Contract, raw, parser.ReadmeData{
		Task:   req.Task,
		Brief:  req.Brief,
		Checks: req.Checks,
		Round:  req.Round,
	})
}

func (s *Service) checkConfig() error {
	for _, dep := range []interface{}{s.deps.Generator, s.deps.Publisher} {
		if checker, ok := dep.(configChecker); ok {
			if err := checker.CheckConfig(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) advance(ctx context.Context, run *models.Run, stage Stage, logger *zap.Logger) {
	run.Stage = string(stage)
	s.saveRun(ctx, run, logger)
}

func (s *Service) saveRun(ctx context.Context, run *models.Run, logger *zap.Logger) {
	if err := s.deps.Runs.UpdateRun(ctx, run); err != nil {
		logger.Warn("failed to update run ledger", zap.String("stage", run.Stage), zap.Error(err))
	}
}

func attachmentNames(files fileset.FileSet) []string {
	names := make([]string, 0, len(files))
	for _, p := range files.Paths() {
		names = append(names, path.Base(p))
	}
	return names
}

func toAttachments(in []models.Attachment) []attachments.Attachment {
	out := make([]attachments.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, attachments.Attachment{Name: a.Name, URL: a.URL})
	}
	return out
}
