package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/config"
	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
)

// maxFetchSize skips large blobs when reading the published tree.
const maxFetchSize = 1 << 20

// ErrMissingToken is returned when no GitHub token is configured.
var ErrMissingToken = errors.New("github token not configured")

// GitHubPublisher publishes to repositories owned by the token's user.
type GitHubPublisher struct {
	client  *github.Client
	token   string
	branch  string
	tracer  trace.Tracer
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger

	mu    sync.Mutex
	owner string
}

// NewGitHubPublisher creates a publisher from configuration.
func NewGitHubPublisher(cfg config.GitHubConfig, logger *zap.Logger) (*GitHubPublisher, error) {
	client := github.NewClient(&http.Client{Timeout: 30 * time.Second}).WithAuthToken(cfg.Token)

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("failed to parse github base url: %w", err)
		}
		client.BaseURL = u
	}

	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}

	if cfg.Token == "" {
		logger.Warn("GITHUB_TOKEN not set, publishing will fail")
	}

	return &GitHubPublisher{
		client: client,
		token:  cfg.Token,
		branch: branch,
		tracer: otel.Tracer("github-publisher"),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "github",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
		logger: logger,
	}, nil
}

// Publish creates or reuses the task repository, commits every file, enables
// Pages and returns the deployment. Pages failures are logged, not returned.
func (p *GitHubPublisher) Publish(ctx context.Context, task string, files fileset.FileSet, message string) (Deployment, error) {
	if p.token == "" {
		return Deployment{}, ErrMissingToken
	}

	ctx, span := p.tracer.Start(ctx, "github.publish")
	defer span.End()

	name := RepoName(task)
	span.SetAttributes(attribute.String("repo", name), attribute.Int("files", len(files)))

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.publishInternal(ctx, name, EnsureRequired(files), message)
	})
	if err != nil {
		span.RecordError(err)
		return Deployment{}, fmt.Errorf("failed to publish %s: %w", name, err)
	}

	dep := result.(Deployment)
	span.SetAttributes(attribute.String("commit_sha", dep.CommitSHA))
	return dep, nil
}

func (p *GitHubPublisher) publishInternal(ctx context.Context, name string, files fileset.FileSet, message string) (Deployment, error) {
	owner, err := p.resolveOwner(ctx)
	if err != nil {
		return Deployment{}, err
	}

	repo, err := p.ensureRepo(ctx, owner, name)
	if err != nil {
		return Deployment{}, err
	}

	if err := p.ensureBranch(ctx, owner, name, repo.GetDefaultBranch()); err != nil {
		return Deployment{}, err
	}

	var commitSHA string
	for _, path := range files.Paths() {
		sha, err := p.putFile(ctx, owner, name, path, files[path], message)
		if err != nil {
			return Deployment{}, err
		}
		commitSHA = sha
	}

	p.enablePages(ctx, owner, name)

	return Deployment{
		RepoURL:   repo.GetHTMLURL(),
		PagesURL:  fmt.Sprintf("https://%s.github.io/%s/", owner, name),
		CommitSHA: commitSHA,
	}, nil
}

func (p *GitHubPublisher) resolveOwner(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.owner != "" {
		return p.owner, nil
	}

	user, _, err := p.client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to resolve github user: %w", err)
	}
	p.owner = user.GetLogin()
	return p.owner, nil
}

func (p *GitHubPublisher) ensureRepo(ctx context.Context, owner, name string) (*github.Repository, error) {
	repo, _, err := p.client.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.String(name),
		Private:     github.Bool(false),
		Description: github.String("Generated site for " + name),
	})
	if err == nil {
		p.logger.Info("created repository", zap.String("repo", repo.GetFullName()))
		return repo, nil
	}

	if statusOf(err) != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	repo, _, err = p.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get existing repository: %w", err)
	}
	p.logger.Info("reusing repository", zap.String("repo", repo.GetFullName()))
	return repo, nil
}

// ensureBranch creates the publish branch from the default branch head when
// the repository has history but not that branch. In an empty repository
// the first commit creates it.
func (p *GitHubPublisher) ensureBranch(ctx context.Context, owner, name, base string) error {
	if base == "" || base == p.branch {
		return nil
	}

	_, _, err := p.client.Git.GetRef(ctx, owner, name, "heads/"+p.branch)
	if err == nil {
		return nil
	}
	if !isEmptyOrMissing(err) {
		return fmt.Errorf("failed to get branch %s: %w", p.branch, err)
	}

	head, _, err := p.client.Git.GetRef(ctx, owner, name, "heads/"+base)
	if err != nil {
		if isEmptyOrMissing(err) {
			return nil
		}
		return fmt.Errorf("failed to get %s head: %w", base, err)
	}

	_, _, err = p.client.Git.CreateRef(ctx, owner, name, &github.Reference{
		Ref:    github.String("refs/heads/" + p.branch),
		Object: &github.GitObject{SHA: head.GetObject().SHA},
	})
	if err != nil {
		return fmt.Errorf("failed to create branch %s: %w", p.branch, err)
	}
	p.logger.Info("created publish branch", zap.String("repo", name), zap.String("branch", p.branch))
	return nil
}

// putFile creates or updates one file on the publish branch and returns the
// resulting commit SHA.
func (p *GitHubPublisher) putFile(ctx context.Context, owner, repo, path, content, message string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(p.branch),
	}

	existing, _, _, err := p.client.Repositories.GetContents(ctx, owner, repo, path,
		&github.RepositoryContentGetOptions{Ref: p.branch})
	switch {
	case err == nil && existing != nil:
		opts.SHA = existing.SHA
		resp, _, err := p.client.Repositories.UpdateFile(ctx, owner, repo, path, opts)
		if err != nil {
			return "", fmt.Errorf("failed to update %s: %w", path, err)
		}
		return resp.Commit.GetSHA(), nil
	case err == nil || isEmptyOrMissing(err):
		resp, _, err := p.client.Repositories.CreateFile(ctx, owner, repo, path, opts)
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", path, err)
		}
		return resp.Commit.GetSHA(), nil
	default:
		return "", fmt.Errorf("failed to look up %s: %w", path, err)
	}
}

func (p *GitHubPublisher) enablePages(ctx context.Context, owner, repo string) {
	_, _, err := p.client.Repositories.EnablePages(ctx, owner, repo, &github.Pages{
		Source: &github.PagesSource{
			Branch: github.String(p.branch),
			Path:   github.String("/"),
		},
	})
	if err == nil {
		return
	}
	if statusOf(err) == http.StatusConflict {
		p.logger.Debug("pages already enabled", zap.String("repo", repo))
		return
	}
	p.logger.Warn("failed to enable pages", zap.String("repo", repo), zap.Error(err))
}

// CurrentFiles returns the published tree of the task repository on the
// configured branch, skipping hidden paths and files over 1 MiB. A missing
// or empty repository yields an empty set.
func (p *GitHubPublisher) CurrentFiles(ctx context.Context, task string) (fileset.FileSet, error) {
	if p.token == "" {
		return nil, ErrMissingToken
	}

	ctx, span := p.tracer.Start(ctx, "github.current_files")
	defer span.End()

	name := RepoName(task)
	span.SetAttributes(attribute.String("repo", name))

	result, err := p.breaker.Execute(func() (interface{}, error) {
		owner, err := p.resolveOwner(ctx)
		if err != nil {
			return nil, err
		}
		files := fileset.FileSet{}
		if err := p.walk(ctx, owner, name, "", files); err != nil {
			return nil, err
		}
		return files, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read published files of %s: %w", name, err)
	}

	files := result.(fileset.FileSet)
	span.SetAttributes(attribute.Int("files", len(files)))
	return files, nil
}

func (p *GitHubPublisher) walk(ctx context.Context, owner, repo, dir string, files fileset.FileSet) error {
	opts := &github.RepositoryContentGetOptions{Ref: p.branch}

	_, entries, _, err := p.client.Repositories.GetContents(ctx, owner, repo, dir, opts)
	if err != nil {
		if isEmptyOrMissing(err) {
			return nil
		}
		return fmt.Errorf("failed to list %q: %w", dir, err)
	}

	for _, entry := range entries {
		path := entry.GetPath()
		if fileset.IsHidden(path) {
			continue
		}

		switch entry.GetType() {
		case "dir":
			if err := p.walk(ctx, owner, repo, path, files); err != nil {
				return err
			}
		case "file":
			if entry.GetSize() > maxFetchSize {
				continue
			}
			file, _, _, err := p.client.Repositories.GetContents(ctx, owner, repo, path, opts)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", path, err)
			}
			if file == nil {
				continue
			}
			content, err := file.GetContent()
			if err != nil {
				p.logger.Warn("skipping undecodable file", zap.String("path", path), zap.Error(err))
				continue
			}
			files[path] = content
		}
	}
	return nil
}

func statusOf(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}

// isEmptyOrMissing covers a missing repository or path (404) and an empty
// repository without a branch yet (409).
func isEmptyOrMissing(err error) bool {
	status := statusOf(err)
	return status == http.StatusNotFound || status == http.StatusConflict
}

// CheckConfig reports a missing token.
func (p *GitHubPublisher) CheckConfig() error {
	if p.token == "" {
		return ErrMissingToken
	}
	return nil
}
