package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/auth"
	"github.com/bizmatters/agent-builder/pages-builder/internal/models"
	"github.com/bizmatters/agent-builder/pages-builder/internal/orchestration"
	"github.com/bizmatters/agent-builder/pages-builder/internal/workspace"
)

const (
	tokenLifetime    = 24 * time.Hour
	defaultListLimit = 20
	maxListLimit     = 100
)

// RoundRunner executes one build round.
type RoundRunner interface {
	RunRound(ctx context.Context, req *models.TaskRequest) (*orchestration.RoundResult, error)
}

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	rounds     RoundRunner
	runs       orchestration.RunStore
	users      auth.UserStore
	jwtManager *auth.JWTManager
	secret     string
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewHandler creates a new gateway handler. users may be nil when no
// database is configured; login then reports the service unavailable.
func NewHandler(rounds RoundRunner, runs orchestration.RunStore, users auth.UserStore, jwtManager *auth.JWTManager, secret string, logger *zap.Logger) *Handler {
	return &Handler{
		rounds:     rounds,
		runs:       runs,
		users:      users,
		jwtManager: jwtManager,
		secret:     secret,
		tracer:     otel.Tracer("gateway"),
		logger:     logger,
	}
}

// SubmitTask godoc
// @Summary Build and publish a round
// @Description Generate the site for a task round, publish it to GitHub Pages and notify the evaluator
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body models.TaskRequest true "Task round"
// @Success 200 {object} models.TaskResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /task [post]
func (h *Handler) SubmitTask(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.submit_task")
	defer span.End()

	var req models.TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
			Code:  models.ErrCodeInvalidRequest,
		})
		return
	}
	span.SetAttributes(
		attribute.String("task", req.Task),
		attribute.Int("round", req.Round),
	)

	if !auth.SecretMatches(h.secret, req.Secret) {
		h.logger.Warn("rejected task with bad secret", zap.String("task", req.Task), zap.String("email", req.Email))
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error: "Invalid secret",
			Code:  models.ErrCodeForbidden,
		})
		return
	}

	if req.Round != 1 && req.Round != 2 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: orchestration.ErrInvalidRound.Error(),
			Code:  models.ErrCodeValidationFailed,
		})
		return
	}

	result, err := h.rounds.RunRound(ctx, &req)
	if err != nil {
		span.RecordError(err)
		status, resp := roundErrorResponse(err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, models.TaskResponse{
		Email:     req.Email,
		Task:      req.Task,
		Round:     req.Round,
		Nonce:     req.Nonce,
		RepoURL:   result.Deployment.RepoURL,
		PagesURL:  result.Deployment.PagesURL,
		CommitSHA: result.Deployment.CommitSHA,
		Status:    result.NotifyStatus,
		RunID:     result.RunID,
	})
}

func roundErrorResponse(err error) (int, models.ErrorResponse) {
	if errors.Is(err, workspace.ErrInvalidTask) || errors.Is(err, orchestration.ErrInvalidRound) {
		return http.StatusBadRequest, models.ErrorResponse{
			Error: err.Error(),
			Code:  models.ErrCodeValidationFailed,
		}
	}

	stage, ok := orchestration.StageOf(err)
	if !ok {
		return http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
			Code:  models.ErrCodeInternalError,
		}
	}

	resp := models.ErrorResponse{
		Error:   err.Error(),
		Details: map[string]string{"stage": string(stage)},
	}
	switch stage {
	case orchestration.StageConfig:
		resp.Code = models.ErrCodeMisconfigured
		return http.StatusInternalServerError, resp
	case orchestration.StageParse:
		resp.Code = models.ErrCodeParseFailed
	case orchestration.StagePublish:
		resp.Code = models.ErrCodePublishFailed
	case orchestration.StageNotify:
		resp.Code = models.ErrCodeNotifyFailed
	default:
		resp.Code = models.ErrCodeGenerationFailed
	}
	return http.StatusBadGateway, resp
}

// Login godoc
// @Summary User login
// @Description Authenticate an operator and return a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.OperatorLogin true "Login credentials"
// @Success 200 {object} models.OperatorSession
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	if h.users == nil || h.jwtManager == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error: "Operator login requires a database and JWT secret",
			Code:  models.ErrCodeMisconfigured,
		})
		return
	}

	var req models.OperatorLogin
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid request",
			Code:  models.ErrCodeInvalidRequest,
		})
		return
	}

	op, err := h.users.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			h.logger.Error("failed to look up operator", zap.Error(err))
		}
		h.logger.Warn("login failed", zap.String("email", req.Email))
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error: "Invalid email or password",
			Code:  models.ErrCodeUnauthorized,
		})
		return
	}

	if !auth.CheckPassword(op, req.Password) {
		h.logger.Warn("login failed", zap.String("email", req.Email))
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error: "Invalid email or password",
			Code:  models.ErrCodeUnauthorized,
		})
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(c.Request.Context(), op.ID, op.Email, []string{"operator"}, tokenLifetime)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to generate token",
			Code:  models.ErrCodeInternalError,
		})
		return
	}

	c.JSON(http.StatusOK, op.Session(token, expiresAt))
}

// ListRuns godoc
// @Summary List recorded rounds
// @Description List rounds newest first, optionally filtered by task
// @Tags runs
// @Produce json
// @Param task query string false "Task name"
// @Param limit query int false "Maximum number of runs" default(20)
// @Success 200 {array} models.Run
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/runs [get]
func (h *Handler) ListRuns(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  models.ErrCodeInvalidRequest,
			})
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), c.Query("task"), limit)
	if err != nil {
		h.logger.Error("failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to list runs",
			Code:  models.ErrCodeInternalError,
		})
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}

	c.JSON(http.StatusOK, runs)
}

// GetRun godoc
// @Summary Get a recorded round
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} models.Run
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/runs/{id} [get]
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, orchestration.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: "Run not found",
				Code:  models.ErrCodeNotFound,
			})
			return
		}
		h.logger.Error("failed to get run", zap.String("run_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to get run",
			Code:  models.ErrCodeInternalError,
		})
		return
	}

	c.JSON(http.StatusOK, run)
}
