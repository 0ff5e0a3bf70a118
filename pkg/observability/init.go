// Package observability provides tracing for container I/O and the CLI jobs
// built on top of it.
package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

// Exporter names accepted by InitTracing.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterStderr = "stderr"
	// FilePrefix selects a file exporter: "file:spans.json".
	FilePrefix = "file:"
)

// ValidExporter reports whether name is an exporter InitTracing accepts.
func ValidExporter(name string) bool {
	switch name {
	case "", ExporterNone, ExporterStdout, ExporterStderr:
		return true
	}
	return strings.HasPrefix(name, FilePrefix) && len(name) > len(FilePrefix)
}

// TracingConfig contains tracing configuration.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	SamplingRate   float64
	// ExporterType is none, stdout, stderr or file:PATH. File exporters
	// append spans to PATH as JSON.
	ExporterType string
	BatchTimeout time.Duration
}

// DefaultTracingConfig returns tracing disabled with full sampling.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    "ntuple",
		ServiceVersion: "dev",
		SamplingRate:   1.0,
		ExporterType:   ExporterNone,
		BatchTimeout:   5 * time.Second,
	}
}

// spanSink holds the file opened for a path exporter so Shutdown can close it.
var spanSink io.Closer

// InitTracing installs a global tracer provider. With the none exporter the
// global no-op provider is left in place.
func InitTracing(config TracingConfig) error {
	if config.ExporterType == "" || config.ExporterType == ExporterNone {
		return nil
	}

	var out io.Writer
	switch config.ExporterType {
	case ExporterStdout:
		out = os.Stdout
	case ExporterStderr:
		out = os.Stderr
	default:
		if !ValidExporter(config.ExporterType) {
			return errors.Newf(errors.ErrorTypeConfig, "unsupported tracing exporter %q", config.ExporterType)
		}
		path := strings.TrimPrefix(config.ExporterType, FilePrefix)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "open span file").WithDetail("path", path)
		}
		out, spanSink = f, f
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "create span exporter")
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "create tracing resource")
	}

	batch := config.BatchTimeout
	if batch <= 0 {
		batch = 5 * time.Second
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(config.SamplingRate)),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(batch)),
	)
	otel.SetTracerProvider(tp)
	return nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1:
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Shutdown flushes and stops the tracer provider installed by InitTracing.
func Shutdown(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "shutdown tracer provider")
		}
	}
	if spanSink != nil {
		err := spanSink.Close()
		spanSink = nil
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "close span file")
		}
	}
	return nil
}
