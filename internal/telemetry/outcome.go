// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const meterName = "meetbot/executor"

// EmitSessionOutcome stamps the outcome on the span in ctx and counts it on
// the global meter provider. The provider is looked up per call so a
// provider installed after startup is honoured.
func EmitSessionOutcome(ctx context.Context, state, reason, recordingRef string, elapsed time.Duration) {
	trace.SpanFromContext(ctx).SetAttributes(OutcomeAttributes(state, reason, recordingRef)...)

	meter := otel.GetMeterProvider().Meter(meterName)
	attrs := metric.WithAttributes(
		attribute.String(SessionStateKey, state),
		attribute.String(SessionReasonKey, reason),
	)
	if total, err := meter.Int64Counter("meetbot.session.outcomes",
		metric.WithDescription("Finished meeting sessions by terminal state and reason")); err == nil {
		total.Add(ctx, 1, attrs)
	}
	if hist, err := meter.Float64Histogram("meetbot.session.duration",
		metric.WithDescription("Wall time of finished meeting sessions"), metric.WithUnit("s")); err == nil {
		hist.Record(ctx, elapsed.Seconds(), attrs)
	}
}
