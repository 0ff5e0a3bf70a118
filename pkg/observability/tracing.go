package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/nebula-ntuple"

// Attribute keys shared by container and tree spans.
const (
	AttrContainer = "ntuple.container"
	AttrTree      = "ntuple.tree"
	AttrKeys      = "ntuple.keys"
	AttrRows      = "ntuple.rows"
	AttrBytes     = "ntuple.bytes"
)

// Span collects attributes for an otel span and applies them when the span
// ends, so attributes learned late (row counts, byte totals) land on it.
type Span struct {
	span       trace.Span
	attributes []attribute.KeyValue
	ended      bool
}

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, operationName)
	return ctx, &Span{span: span}
}

// StartContainerSpan starts a span for an operation on the named container.
func StartContainerSpan(ctx context.Context, operationName, container string) (context.Context, *Span) {
	ctx, s := StartSpan(ctx, operationName)
	s.SetAttribute(AttrContainer, container)
	return ctx, s
}

// SetAttribute records an attribute. Integer kinds are stored as int64.
func (s *Span) SetAttribute(key string, value any) {
	var attr attribute.KeyValue
	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case uint32:
		attr = attribute.Int64(key, int64(v))
	case float64:
		attr = attribute.Float64(key, v)
	case []string:
		attr = attribute.StringSlice(key, v)
	default:
		attr = attribute.String(key, fmt.Sprint(v))
	}
	s.attributes = append(s.attributes, attr)
}

// Finish records err, if any, and ends the span.
func (s *Span) Finish(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.End()
}

// End ends the span. Calls after the first are ignored.
func (s *Span) End() {
	if s.ended {
		return
	}
	s.ended = true
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}
