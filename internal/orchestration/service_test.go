package orchestration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/attachments"
	"github.com/bizmatters/agent-builder/pages-builder/internal/config"
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

type fakeGenerator struct {
	response string
	err      error
	prompts  []prompt.Prompt
}

func (g *fakeGenerator) Generate(_ context.Context, p prompt.Prompt) (string, error) {
	g.prompts = append(g.prompts, p)
	return g.response, g.err
}

type fakePublisher struct {
	mu        sync.Mutex
	published map[string]fileset.FileSet
	messages  []string
	current   fileset.FileSet
	err       error
	calls     int
}

func (p *fakePublisher) Publish(_ context.Context, task string, files fileset.FileSet, message string) (publish.Deployment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return publish.Deployment{}, p.err
	}
	if p.published == nil {
		p.published = map[string]fileset.FileSet{}
	}
	p.published[task] = publish.EnsureRequired(files)
	p.messages = append(p.messages, message)
	name := publish.RepoName(task)
	return publish.Deployment{
		RepoURL:   "https://github.com/octo/" + name,
		PagesURL:  "https://octo.github.io/" + name + "/",
		CommitSHA: "sha-1",
	}, nil
}

func (p *fakePublisher) CurrentFiles(_ context.Context, task string) (fileset.FileSet, error) {
	return p.current, nil
}

type fakeNotifier struct {
	sent   []notify.Notification
	status int
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, note notify.Notification) (int, error) {
	n.sent = append(n.sent, note)
	if n.status == 0 {
		n.status = http.StatusOK
	}
	return n.status, n.err
}

type fakeAttachments struct {
	files fileset.FileSet
}

func (a *fakeAttachments) Ingest(_ context.Context, ws *workspace.Workspace, list []attachments.Attachment) fileset.FileSet {
	out := fileset.FileSet{}
	for p, content := range a.files {
		out[p] = content
	}
	return out
}

type harness struct {
	gen      *fakeGenerator
	pub      *fakePublisher
	notifier *fakeNotifier
	runs     *MemoryRunStore
	svc      *Service
	scratch  string
}

func newHarness(t *testing.T, gen generation.Generator, opts Options) *harness {
	t.Helper()
	m, err := metrics.NewRoundMetrics(nil)
	require.NoError(t, err)

	h := &harness{
		pub:      &fakePublisher{},
		notifier: &fakeNotifier{},
		runs:     NewMemoryRunStore(),
		scratch:  t.TempDir(),
	}
	if fg, ok := gen.(*fakeGenerator); ok {
		h.gen = fg
	}
	opts.ScratchDir = h.scratch
	h.svc = NewService(Dependencies{
		Generator:   gen,
		Publisher:   h.pub,
		Notifier:    h.notifier,
		Attachments: &fakeAttachments{},
		Runs:        h.runs,
		Metrics:     m,
	}, opts, zap.NewNop())
	return h
}

func taskRequest(round int, brief string, checks ...string) *models.TaskRequest {
	return &models.TaskRequest{
		Email:         "student@example.com",
		Secret:        "s3cret",
		Task:          "todo-app",
		Round:         round,
		Nonce:         "n-1",
		Brief:         brief,
		Checks:        checks,
		EvaluationURL: "https://evaluator.example.com/notify",
	}
}

func TestRunRound_SingleFencedBlock(t *testing.T) {
	gen := &fakeGenerator{response: "```index.html\n<h1>Todo</h1>\n```"}
	h := newHarness(t, gen, Options{Contract: parser.ContractBlocks})

	result, err := h.svc.RunRound(context.Background(), taskRequest(1, "todo app", "has add button"))
	require.NoError(t, err)

	assert.Equal(t, fileset.FileSet{"index.html": "<h1>Todo</h1>"}, result.Parse.Files)
	assert.False(t, result.Parse.Fallback)
	assert.Equal(t, "https://octo.github.io/todo-app/", result.Deployment.PagesURL)
	assert.Equal(t, http.StatusOK, result.NotifyStatus)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0].User, "todo app")
	assert.Contains(t, gen.prompts[0].User, "- has add button")

	assert.Equal(t, []string{"Round 1: todo app"}, h.pub.messages)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "sha-1", h.notifier.sent[0].CommitSHA)
	assert.Equal(t, "n-1", h.notifier.sent[0].Nonce)
	assert.Equal(t, "https://evaluator.example.com/notify", h.notifier.sent[0].EvaluationURL)

	run, err := h.runs.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, string(StageNotify), run.Stage)
	assert.Equal(t, []string{"index.html"}, run.Files)
	require.NotNil(t, run.FinishedAt)

	ws, err := workspace.Open(h.scratch, "todo-app", 2)
	require.NoError(t, err)
	local, err := ws.ReadSite()
	require.NoError(t, err)
	assert.Equal(t, "<h1>Todo</h1>", local["index.html"], "files are persisted at the publish boundary")
}

func TestRunRound_PlainTextFallsBack(t *testing.T) {
	gen := &fakeGenerator{response: "  <p>just some html</p>\n"}
	h := newHarness(t, gen, Options{})

	result, err := h.svc.RunRound(context.Background(), taskRequest(1, "plain"))
	require.NoError(t, err)

	assert.Equal(t, fileset.FileSet{"index.html": "<p>just some html</p>"}, result.Parse.Files)
	assert.True(t, result.Parse.Fallback)

	run, err := h.runs.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.True(t, run.Fallback)
}

func TestRunRound_TwoPartContract(t *testing.T) {
	gen := &fakeGenerator{response: "<html>ok</html>\n---README.md---\n# Hi"}
	h := newHarness(t, gen, Options{Contract: parser.ContractTwoPart})

	result, err := h.svc.RunRound(context.Background(), taskRequest(1, "two part"))
	require.NoError(t, err)

	assert.Equal(t, fileset.FileSet{"index.html": "<html>ok</html>", "README.md": "# Hi"}, result.Parse.Files)
	assert.Contains(t, gen.prompts[0].User, parser.Separator)
}

func TestRunRound_BackendErrorStopsBeforePublish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model overloaded"))
	}))
	defer server.Close()

	cfg := config.Default().Generation
	cfg.BaseURL = server.URL
	cfg.APIKey = "tok"
	h := newHarness(t, generation.NewOpenRouterClient(cfg, zap.NewNop()), Options{})

	_, err := h.svc.RunRound(context.Background(), taskRequest(1, "boom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	stage, ok := StageOf(err)
	require.True(t, ok)
	assert.Equal(t, StageGenerate, stage)

	assert.Zero(t, h.pub.calls, "publisher must not be called")
	assert.Empty(t, h.notifier.sent, "notifier must not be called")

	runs, err := h.runs.ListRuns(context.Background(), "todo-app", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "status 500")
}

func TestRunRound_MissingCredentialIsConfigError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	cfg := config.Default().Generation
	cfg.BaseURL = server.URL
	h := newHarness(t, generation.NewOpenRouterClient(cfg, zap.NewNop()), Options{})

	_, err := h.svc.RunRound(context.Background(), taskRequest(1, "no key"))
	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrMissingCredential)
	stage, _ := StageOf(err)
	assert.Equal(t, StageConfig, stage)
	assert.Zero(t, calls)
	assert.Zero(t, h.pub.calls)
}

func TestRunRound_NestedFencePolicy(t *testing.T) {
	response := "```index.html\n<h1>Docs</h1>\n```js\nalert(1)\n```\n<p>tail</p>\n```"

	t.Run("recover", func(t *testing.T) {
		gen := &fakeGenerator{response: response}
		h := newHarness(t, gen, Options{FencePolicy: parser.FencePolicyRecover})

		result, err := h.svc.RunRound(context.Background(), taskRequest(1, "docs"))
		require.NoError(t, err)
		assert.Equal(t, []string{"index.html"}, result.Parse.Flagged)
		assert.Contains(t, result.Parse.Files["index.html"], "<p>tail</p>")
		assert.Equal(t, 1, h.pub.calls)
	})

	t.Run("fail", func(t *testing.T) {
		gen := &fakeGenerator{response: response}
		h := newHarness(t, gen, Options{FencePolicy: parser.FencePolicyFail})

		_, err := h.svc.RunRound(context.Background(), taskRequest(1, "docs"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNestedFence)
		stage, _ := StageOf(err)
		assert.Equal(t, StageParse, stage)
		assert.Zero(t, h.pub.calls)
	})
}

func TestRunRound_RoundTwoUsesPublishedFiles(t *testing.T) {
	gen := &fakeGenerator{response: "```index.html\n<h1>v2</h1>\n```"}
	h := newHarness(t, gen, Options{})
	h.pub.current = fileset.FileSet{
		"index.html": "<h1>v1</h1>",
		"README.md":  "# Todo v1",
		"LICENSE":    "MIT",
	}

	_, err := h.svc.RunRound(context.Background(), taskRequest(2, "add dark mode"))
	require.NoError(t, err)

	user := gen.prompts[0].User
	assert.Contains(t, user, "=== FILE: index.html ===\n<h1>v1</h1>")
	assert.Contains(t, user, "# Todo v1")
	assert.NotContains(t, user, "=== FILE: LICENSE ===")
	assert.Equal(t, []string{"Round 2: add dark mode"}, h.pub.messages)
}

func TestRunRound_RoundTwoFallsBackToWorkspace(t *testing.T) {
	gen := &fakeGenerator{response: "```index.html\n<h1>v1</h1>\n```"}
	h := newHarness(t, gen, Options{})

	_, err := h.svc.RunRound(context.Background(), taskRequest(1, "first"))
	require.NoError(t, err)

	gen.response = "```index.html\n<h1>v2</h1>\n```"
	_, err = h.svc.RunRound(context.Background(), taskRequest(2, "second"))
	require.NoError(t, err)

	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[1].User, "=== FILE: index.html ===\n<h1>v1</h1>")
}

func TestRunRound_RoundTwoWithoutHistory(t *testing.T) {
	gen := &fakeGenerator{response: "```index.html\n<h1>fresh</h1>\n```"}
	h := newHarness(t, gen, Options{})

	_, err := h.svc.RunRound(context.Background(), taskRequest(2, "fresh start"))
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[0].User, "No previous version is available")
}

func TestRunRound_AttachmentsArePublished(t *testing.T) {
	gen := &fakeGenerator{response: "```index.html\n<img src=\"attachments/logo.svg\">\n```"}
	h := newHarness(t, gen, Options{})
	h.svc.deps.Attachments = &fakeAttachments{files: fileset.FileSet{"attachments/logo.svg": "<svg/>"}}

	result, err := h.svc.RunRound(context.Background(), taskRequest(1, "logo"))
	require.NoError(t, err)

	assert.Equal(t, "<svg/>", h.pub.published["todo-app"]["attachments/logo.svg"])
	assert.NotContains(t, result.Parse.Files, "attachments/logo.svg", "attachments are never parser input")
	assert.Contains(t, gen.prompts[0].User, "- attachments/logo.svg")
}

func TestRunRound_PublishAndNotifyFailures(t *testing.T) {
	t.Run("publish", func(t *testing.T) {
		h := newHarness(t, &fakeGenerator{response: "<p>x</p>"}, Options{})
		h.pub.err = errors.New("github returned status 403")

		_, err := h.svc.RunRound(context.Background(), taskRequest(1, "x"))
		stage, _ := StageOf(err)
		assert.Equal(t, StagePublish, stage)
		assert.Empty(t, h.notifier.sent)
	})

	t.Run("notify", func(t *testing.T) {
		h := newHarness(t, &fakeGenerator{response: "<p>x</p>"}, Options{})
		h.notifier.status = http.StatusBadGateway
		h.notifier.err = notify.ErrNotDelivered

		_, err := h.svc.RunRound(context.Background(), taskRequest(1, "x"))
		assert.ErrorIs(t, err, notify.ErrNotDelivered)
		stage, _ := StageOf(err)
		assert.Equal(t, StageNotify, stage)

		runs, _ := h.runs.ListRuns(context.Background(), "", 0)
		require.Len(t, runs, 1)
		require.NotNil(t, runs[0].NotifyStatus)
		assert.Equal(t, http.StatusBadGateway, *runs[0].NotifyStatus)
	})
}

func TestRunRound_RejectsInvalidInput(t *testing.T) {
	h := newHarness(t, &fakeGenerator{response: "x"}, Options{})

	_, err := h.svc.RunRound(context.Background(), taskRequest(3, "x"))
	assert.ErrorIs(t, err, ErrInvalidRound)

	req := taskRequest(1, "x")
	req.Task = "../escape"
	_, err = h.svc.RunRound(context.Background(), req)
	assert.ErrorIs(t, err, workspace.ErrInvalidTask)

	runs, _ := h.runs.ListRuns(context.Background(), "", 0)
	assert.Empty(t, runs, "invalid requests are not recorded")
}

func TestRunRound_IgnoresCallerCancellation(t *testing.T) {
	gen := &fakeGenerator{response: "<p>x</p>"}
	h := newHarness(t, gen, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.RunRound(ctx, taskRequest(1, "cancelled client"))
	require.NoError(t, err)
	assert.Equal(t, 1, h.pub.calls)
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: StagePublish, Err: errors.New("boom")}
	assert.Equal(t, "publish stage failed: boom", err.Error())
	assert.True(t, strings.HasPrefix(err.Error(), "publish"))

	_, ok := StageOf(errors.New("plain"))
	assert.False(t, ok)
}
