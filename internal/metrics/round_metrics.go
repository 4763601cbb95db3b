package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pages-builder"

// RoundMetrics provides metrics collection for generation rounds
type RoundMetrics struct {
	roundsStartedCounter   metric.Int64Counter
	roundsCompletedCounter metric.Int64Counter
	roundsFailedCounter    metric.Int64Counter
	roundDurationHistogram metric.Float64Histogram
	roundsActiveGauge      metric.Int64UpDownCounter
	parseFallbackCounter   metric.Int64Counter
	flaggedBlocksCounter   metric.Int64Counter
}

// NewRoundMetrics creates a round metrics collector. A nil provider uses the
// global one.
func NewRoundMetrics(provider metric.MeterProvider) (*RoundMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	roundsStartedCounter, err := meter.Int64Counter(
		"pages_builder.rounds.started",
		metric.WithDescription("Total number of rounds started"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, err
	}

	roundsCompletedCounter, err := meter.Int64Counter(
		"pages_builder.rounds.completed",
		metric.WithDescription("Total number of rounds published and notified"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, err
	}

	roundsFailedCounter, err := meter.Int64Counter(
		"pages_builder.rounds.failed",
		metric.WithDescription("Total number of rounds that failed"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, err
	}

	roundDurationHistogram, err := meter.Float64Histogram(
		"pages_builder.round.duration",
		metric.WithDescription("Duration of a round in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	roundsActiveGauge, err := meter.Int64UpDownCounter(
		"pages_builder.rounds.active",
		metric.WithDescription("Number of rounds in progress"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, err
	}

	parseFallbackCounter, err := meter.Int64Counter(
		"pages_builder.parse.fallbacks",
		metric.WithDescription("Responses that matched no file structure and fell back to a single entry"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	flaggedBlocksCounter, err := meter.Int64Counter(
		"pages_builder.parse.flagged_blocks",
		metric.WithDescription("File blocks flagged for a nested fence"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, err
	}

	return &RoundMetrics{
		roundsStartedCounter:   roundsStartedCounter,
		roundsCompletedCounter: roundsCompletedCounter,
		roundsFailedCounter:    roundsFailedCounter,
		roundDurationHistogram: roundDurationHistogram,
		roundsActiveGauge:      roundsActiveGauge,
		parseFallbackCounter:   parseFallbackCounter,
		flaggedBlocksCounter:   flaggedBlocksCounter,
	}, nil
}

// RecordRoundStarted records a round entering the pipeline
func (rm *RoundMetrics) RecordRoundStarted(ctx context.Context, round int) {
	attrs := metric.WithAttributes(attribute.Int("round", round))
	rm.roundsStartedCounter.Add(ctx, 1, attrs)
	rm.roundsActiveGauge.Add(ctx, 1, attrs)
}

// RecordRoundCompleted records a round that was published and notified
func (rm *RoundMetrics) RecordRoundCompleted(ctx context.Context, round int, duration time.Duration) {
	rm.roundsCompletedCounter.Add(ctx, 1, metric.WithAttributes(attribute.Int("round", round)))
	rm.roundDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.Int("round", round),
			attribute.String("status", "completed"),
		),
	)
	rm.roundsActiveGauge.Add(ctx, -1, metric.WithAttributes(attribute.Int("round", round)))
}

// RecordRoundFailed records a round that stopped at stage
func (rm *RoundMetrics) RecordRoundFailed(ctx context.Context, round int, stage string, duration time.Duration) {
	rm.roundsFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Int("round", round),
			attribute.String("stage", stage),
		),
	)
	rm.roundDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.Int("round", round),
			attribute.String("status", "failed"),
		),
	)
	rm.roundsActiveGauge.Add(ctx, -1, metric.WithAttributes(attribute.Int("round", round)))
}

// RecordParse records the parser outcome for one response
func (rm *RoundMetrics) RecordParse(ctx context.Context, contract string, fallback bool, flagged int) {
	attrs := metric.WithAttributes(attribute.String("contract", contract))
	if fallback {
		rm.parseFallbackCounter.Add(ctx, 1, attrs)
	}
	if flagged > 0 {
		rm.flaggedBlocksCounter.Add(ctx, int64(flagged), attrs)
	}
}
