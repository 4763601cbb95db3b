package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/auth"
	"github.com/bizmatters/agent-builder/pages-builder/internal/models"
	"github.com/bizmatters/agent-builder/pages-builder/internal/orchestration"
)

const (
	defaultPollInterval = time.Second
	writeWait           = 10 * time.Second
)

// RunEvent is one message on a run stream.
type RunEvent struct {
	EventType string      `json:"event_type"`
	Run       *models.Run `json:"run,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// RunStream pushes run ledger snapshots to websocket clients until the run
// reaches a terminal status.
type RunStream struct {
	runs         orchestration.RunStore
	jwtManager   *auth.JWTManager
	tracer       trace.Tracer
	upgrader     websocket.Upgrader
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewRunStream creates a run stream handler
func NewRunStream(runs orchestration.RunStore, jwtManager *auth.JWTManager, logger *zap.Logger) *RunStream {
	return &RunStream{
		runs:       runs,
		jwtManager: jwtManager,
		tracer:     otel.Tracer("run-stream"),
		upgrader: websocket.Upgrader{
			// Operators reach the stream from arbitrary dashboards; the JWT gates access.
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
}

// StreamRun handles WebSocket /api/ws/runs/:id
// @Summary Stream run progress
// @Description WebSocket endpoint sending a snapshot each time the run changes, ending with "end"
// @Tags runs
// @Param id path string true "Run ID"
// @Param token query string false "JWT, for clients that cannot set headers"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/ws/runs/{id} [get]
func (s *RunStream) StreamRun(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "run_stream.stream_run")
	defer span.End()

	runID := c.Param("id")
	span.SetAttributes(attribute.String("run.id", runID))

	userID, err := s.authenticate(c)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("run stream authentication failed", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error: "Unauthorized",
			Code:  models.ErrCodeUnauthorized,
		})
		return
	}
	span.SetAttributes(attribute.String("user_id", userID))

	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, orchestration.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: "Run not found",
				Code:  models.ErrCodeNotFound,
			})
			return
		}
		s.logger.Error("failed to load run", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to load run",
			Code:  models.ErrCodeInternalError,
		})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Debug("run stream opened", zap.String("run_id", runID), zap.String("user_id", userID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.drain(conn, cancel)

	if err := s.stream(ctx, conn, run); err != nil {
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, context.Canceled) {
			span.RecordError(err)
			s.logger.Warn("run stream ended with error", zap.String("run_id", runID), zap.Error(err))
			s.sendError(conn, "Failed to stream run")
		}
		return
	}

	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), deadline)
}

// stream sends run, then every change seen by polling the ledger, then an
// end event once the run is terminal.
func (s *RunStream) stream(ctx context.Context, conn *websocket.Conn, run *models.Run) error {
	if err := s.send(conn, RunEvent{EventType: "snapshot", Run: run}); err != nil {
		return err
	}
	last := run.UpdatedAt

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for !run.Status.Terminal() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		next, err := s.runs.GetRun(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to poll run: %w", err)
		}
		run = next
		if run.UpdatedAt.Equal(last) && !run.Status.Terminal() {
			continue
		}
		last = run.UpdatedAt
		if err := s.send(conn, RunEvent{EventType: "snapshot", Run: run}); err != nil {
			return err
		}
	}

	return s.send(conn, RunEvent{EventType: "end", Run: run})
}

// drain reads until the client goes away so close frames are processed.
func (s *RunStream) drain(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *RunStream) send(conn *websocket.Conn, event RunEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(event)
}

func (s *RunStream) sendError(conn *websocket.Conn, message string) {
	if err := s.send(conn, RunEvent{EventType: "error", Error: message}); err != nil {
		s.logger.Debug("failed to send error to client", zap.Error(err))
	}
}

// authenticate accepts the JWT from the token query parameter or the
// Authorization header.
func (s *RunStream) authenticate(c *gin.Context) (string, error) {
	if s.jwtManager == nil {
		return "", fmt.Errorf("operator authentication is not configured")
	}

	token := c.Query("token")
	if token == "" {
		token, _ = auth.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		return "", fmt.Errorf("missing JWT token")
	}

	claims, err := s.jwtManager.ValidateToken(c.Request.Context(), token)
	if err != nil {
		return "", fmt.Errorf("invalid JWT: %w", err)
	}
	return claims.UserID, nil
}
