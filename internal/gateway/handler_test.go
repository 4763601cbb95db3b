package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/agent-builder/pages-builder/internal/auth"
	"github.com/bizmatters/agent-builder/pages-builder/internal/models"
	"github.com/bizmatters/agent-builder/pages-builder/internal/orchestration"
	"github.com/bizmatters/agent-builder/pages-builder/internal/publish"
)

const testSecret = "shared-secret"

type fakeRunner struct {
	result *orchestration.RoundResult
	err    error
	calls  []*models.TaskRequest
}

func (f *fakeRunner) RunRound(_ context.Context, req *models.TaskRequest) (*orchestration.RoundResult, error) {
	f.calls = append(f.calls, req)
	return f.result, f.err
}

type fakeUsers struct {
	users map[string]*models.Operator
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.Operator, error) {
	if u, ok := f.users[auth.NormalizeEmail(email)]; ok {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

type testEnv struct {
	router *gin.Engine
	runner *fakeRunner
	runs   *orchestration.MemoryRunStore
	jwt    *auth.JWTManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jm, err := auth.NewJWTManager("test-secret-key-for-testing-purposes-only")
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("passw0rd"), bcrypt.MinCost)
	require.NoError(t, err)
	users := &fakeUsers{users: map[string]*models.Operator{
		"ops@example.com": {ID: "user-1", Name: "Ops", Email: "ops@example.com", PasswordHash: string(hash)},
	}}

	runner := &fakeRunner{}
	runs := orchestration.NewMemoryRunStore()
	logger := zap.NewNop()
	h := NewHandler(runner, runs, users, jm, testSecret, logger)
	stream := NewRunStream(runs, jm, logger)

	return &testEnv{
		router: NewRouter(h, stream, nil, logger),
		runner: runner,
		runs:   runs,
		jwt:    jm,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, _, err := e.jwt.GenerateToken(context.Background(), "user-1", "ops@example.com", []string{"operator"}, time.Hour)
	require.NoError(t, err)
	return token
}

func validTask() map[string]any {
	return map[string]any{
		"email":          "student@example.com",
		"secret":         testSecret,
		"task":           "sum-of-sales",
		"round":          1,
		"nonce":          "ab12",
		"brief":          "Publish a page that sums sales",
		"checks":         []string{"page has a title"},
		"evaluation_url": "https://evaluator.example.com/notify",
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSubmitTask_Success(t *testing.T) {
	env := newTestEnv(t)
	env.runner.result = &orchestration.RoundResult{
		RunID: "run-1",
		Deployment: publish.Deployment{
			RepoURL:   "https://github.com/octo/sum-of-sales",
			PagesURL:  "https://octo.github.io/sum-of-sales/",
			CommitSHA: "abc123",
		},
		NotifyStatus: http.StatusOK,
	}

	w := env.do(t, http.MethodPost, "/task", validTask(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.TaskResponse{
		Email:     "student@example.com",
		Task:      "sum-of-sales",
		Round:     1,
		Nonce:     "ab12",
		RepoURL:   "https://github.com/octo/sum-of-sales",
		PagesURL:  "https://octo.github.io/sum-of-sales/",
		CommitSHA: "abc123",
		Status:    http.StatusOK,
		RunID:     "run-1",
	}, resp)

	require.Len(t, env.runner.calls, 1)
	assert.Equal(t, []string{"page has a title"}, env.runner.calls[0].Checks)
}

func TestSubmitTask_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		status int
		code   string
	}{
		{"bad secret", func(b map[string]any) { b["secret"] = "nope" }, http.StatusForbidden, models.ErrCodeForbidden},
		{"round 3", func(b map[string]any) { b["round"] = 3 }, http.StatusBadRequest, models.ErrCodeValidationFailed},
		{"missing brief", func(b map[string]any) { delete(b, "brief") }, http.StatusBadRequest, models.ErrCodeInvalidRequest},
		{"bad evaluation url", func(b map[string]any) { b["evaluation_url"] = "not a url" }, http.StatusBadRequest, models.ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			body := validTask()
			tt.mutate(body)

			w := env.do(t, http.MethodPost, "/task", body, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
			assert.Empty(t, env.runner.calls)
		})
	}
}

func TestSubmitTask_RoundErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		stage  string
	}{
		{
			name:   "generation failure",
			err:    &orchestration.StageError{Stage: orchestration.StageGenerate, Err: fmt.Errorf("generation backend returned status 500: boom")},
			status: http.StatusBadGateway,
			code:   models.ErrCodeGenerationFailed,
			stage:  "generate",
		},
		{
			name:   "publish failure",
			err:    &orchestration.StageError{Stage: orchestration.StagePublish, Err: fmt.Errorf("failed")},
			status: http.StatusBadGateway,
			code:   models.ErrCodePublishFailed,
			stage:  "publish",
		},
		{
			name:   "notify failure",
			err:    &orchestration.StageError{Stage: orchestration.StageNotify, Err: fmt.Errorf("failed")},
			status: http.StatusBadGateway,
			code:   models.ErrCodeNotifyFailed,
			stage:  "notify",
		},
		{
			name:   "nested fence",
			err:    &orchestration.StageError{Stage: orchestration.StageParse, Err: orchestration.ErrNestedFence},
			status: http.StatusBadGateway,
			code:   models.ErrCodeParseFailed,
			stage:  "parse",
		},
		{
			name:   "missing credential",
			err:    &orchestration.StageError{Stage: orchestration.StageConfig, Err: fmt.Errorf("no token")},
			status: http.StatusInternalServerError,
			code:   models.ErrCodeMisconfigured,
			stage:  "config",
		},
		{
			name:   "unexpected",
			err:    fmt.Errorf("boom"),
			status: http.StatusInternalServerError,
			code:   models.ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.runner.err = tt.err

			w := env.do(t, http.MethodPost, "/task", validTask(), "")
			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.stage, resp.Details["stage"])
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ops@example.com", "password": "passw0rd"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.OperatorSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.OperatorID)
	assert.Equal(t, "ops@example.com", resp.Email)
	assert.NotContains(t, w.Body.String(), "$2a$")

	claims, err := env.jwt.ValidateToken(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ops@example.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "nobody@example.com", "password": "passw0rd"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "not-an-email"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_WithoutUserStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jm, err := auth.NewJWTManager("secret")
	require.NoError(t, err)
	runs := orchestration.NewMemoryRunStore()
	h := NewHandler(&fakeRunner{}, runs, nil, jm, testSecret, zap.NewNop())
	router := NewRouter(h, NewRunStream(runs, jm, zap.NewNop()), nil, zap.NewNop())

	body := bytes.NewBufferString(`{"email":"ops@example.com","password":"passw0rd"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRuns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i, task := range []string{"alpha", "beta", "alpha"} {
		require.NoError(t, env.runs.CreateRun(ctx, &models.Run{
			ID:     fmt.Sprintf("run-%d", i),
			Task:   task,
			Round:  1,
			Status: models.RunStatusCompleted,
		}))
	}
	token := env.token(t)

	w := env.do(t, http.MethodGet, "/api/runs", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/runs?task=alpha", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var runs []models.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-0", runs[1].ID)

	w = env.do(t, http.MethodGet, "/api/runs?limit=1", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	w = env.do(t, http.MethodGet, "/api/runs?task=none", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/runs?limit=zero", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/runs/run-1", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var run models.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "beta", run.Task)

	w = env.do(t, http.MethodGet, "/api/runs/missing", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/api/health", "/ready"} {
		w := env.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	gin.SetMode(gin.TestMode)
	runs := orchestration.NewMemoryRunStore()
	h := NewHandler(&fakeRunner{}, runs, nil, nil, testSecret, zap.NewNop())
	router := NewRouter(h, NewRunStream(runs, nil, zap.NewNop()), func(context.Context) error {
		return fmt.Errorf("database connection failed")
	}, zap.NewNop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database connection failed")
}
