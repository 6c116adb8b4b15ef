package utils

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SetupTracing installs a tracer provider that reports finished spans to the
// logger at debug level. When disabled the global no-op provider is kept.
// The returned function flushes and stops the provider.
func SetupTracing(enabled bool, logger *logrus.Logger) func(context.Context) error {
	if !enabled {
		return func(context.Context) error { return nil }
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(&logSpanProcessor{logger: logger}),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown
}

// logSpanProcessor writes finished spans to logrus
type logSpanProcessor struct {
	logger *logrus.Logger
}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	fields := logrus.Fields{
		"trace_id":    span.SpanContext().TraceID().String(),
		"span":        span.Name(),
		"duration_ms": span.EndTime().Sub(span.StartTime()).Milliseconds(),
		"status":      span.Status().Code.String(),
	}
	for _, attr := range span.Attributes() {
		fields[string(attr.Key)] = attr.Value.Emit()
	}
	p.logger.WithFields(fields).Debug("Span finished")
}

func (p *logSpanProcessor) Shutdown(context.Context) error { return nil }

func (p *logSpanProcessor) ForceFlush(context.Context) error { return nil }
