// Package notify reports a finished round to the evaluator's callback URL.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/config"
)

// ErrNotDelivered is returned when every attempt failed.
var ErrNotDelivered = errors.New("evaluation notification not delivered")

// Notification is the evaluator payload. EvaluationURL is the destination
// and is not part of the body.
type Notification struct {
	EvaluationURL string `json:"-"`
	Email         string `json:"email"`
	Task          string `json:"task"`
	Round         int    `json:"round"`
	Nonce         string `json:"nonce"`
	RepoURL       string `json:"repo_url"`
	CommitSHA     string `json:"commit_sha"`
	PagesURL      string `json:"pages_url"`
}

// Notifier delivers notifications with an initial delay and exponential
// backoff between attempts.
type Notifier struct {
	cfg        config.NotifyConfig
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *zap.Logger
}

// New creates a notifier.
func New(cfg config.NotifyConfig, logger *zap.Logger) *Notifier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	return &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{},
		tracer:     otel.Tracer("notifier"),
		logger:     logger,
	}
}

// Notify waits for the initial delay, then posts n until the evaluator
// answers 2xx or attempts run out. It returns the last HTTP status seen.
func (nt *Notifier) Notify(ctx context.Context, n Notification) (int, error) {
	ctx, span := nt.tracer.Start(ctx, "notifier.notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("task", n.Task),
		attribute.Int("round", n.Round),
	)

	body, err := json.Marshal(n)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal notification: %w", err)
	}

	nt.logger.Info("waiting before notifying evaluator",
		zap.String("task", n.Task),
		zap.Duration("delay", nt.cfg.InitialDelay))
	if err := sleep(ctx, nt.cfg.InitialDelay); err != nil {
		return 0, err
	}

	var (
		status  int
		lastErr error
		backoff = nt.cfg.BaseBackoff
	)
	for attempt := 1; attempt <= nt.cfg.MaxAttempts; attempt++ {
		status, lastErr = nt.post(ctx, n.EvaluationURL, body)
		if lastErr == nil {
			span.SetAttributes(attribute.Int("attempts", attempt), attribute.Int("http.status_code", status))
			nt.logger.Info("evaluator notified",
				zap.String("task", n.Task),
				zap.Int("round", n.Round),
				zap.Int("status", status),
				zap.Int("attempt", attempt))
			return status, nil
		}

		nt.logger.Warn("notification attempt failed",
			zap.String("task", n.Task),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", nt.cfg.MaxAttempts),
			zap.Duration("retry_in", backoff),
			zap.Error(lastErr))

		if attempt == nt.cfg.MaxAttempts {
			break
		}
		if err := sleep(ctx, backoff); err != nil {
			return status, err
		}
		backoff *= 2
	}

	span.RecordError(lastErr)
	return status, fmt.Errorf("%w after %d attempts: %w", ErrNotDelivered, nt.cfg.MaxAttempts, lastErr)
}

func (nt *Notifier) post(ctx context.Context, url string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, nt.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := nt.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("evaluator returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
