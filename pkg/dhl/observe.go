package dhl

import (
	"context"
	"errors"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/tournevent/dhlparcel/pkg/dhl"

// MetricsRecorder receives per-operation measurements. telemetry.Metrics
// implements it.
type MetricsRecorder interface {
	RecordRequest(operation, status string, duration float64)
	RecordError(operation, errorType string)
	RecordTokenLookup(result string)
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string, string, float64) {}
func (nopMetrics) RecordError(string, string)            {}
func (nopMetrics) RecordTokenLookup(string)              {}

// Options carries the optional collaborators shared by the services in this
// package. Zero values fall back to no-op implementations.
type Options struct {
	Logger  *otelzap.Logger
	Tracer  trace.Tracer
	Metrics MetricsRecorder
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = otelzap.New(zap.NewNop())
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	return o
}

func (o Options) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.Tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// errorType labels an error for the carrier error counter.
func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrDownloadLabel):
		return "label"
	default:
		return "api"
	}
}
