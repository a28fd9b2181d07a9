package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "bacon-ai-boards/api"

	instantiateRoute       = "/api/templates/instantiate"
	instantiateSpanName    = "boards.instantiate"
	instantiateEventName   = "instantiate.request.metrics"
	instantiateEventDomain = "bacon"
)

// instantiateRequestMetrics captures one instantiate request as a span plus
// a structured observability event, correlated through the trace id.
type instantiateRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	engineDuration time.Duration
	encodeDuration time.Duration
	templateID     string
	cardsCreated   int
	partialErrors  int
	errorStage     string
}

func newInstantiateRequestMetrics(ctx context.Context, logger *log.Logger) (*instantiateRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, instantiateSpanName)
	return &instantiateRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *instantiateRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *instantiateRequestMetrics) ObserveEngine(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.engineDuration = duration
}

func (m *instantiateRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *instantiateRequestMetrics) SetTemplateID(id string) {
	m.templateID = id
}

func (m *instantiateRequestMetrics) SetCardsCreated(count int) {
	if count < 0 {
		count = 0
	}
	m.cardsCreated = count
}

func (m *instantiateRequestMetrics) SetPartialErrors(count int) {
	if count < 0 {
		count = 0
	}
	m.partialErrors = count
}

func (m *instantiateRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log finalizes the span and emits the observability event both as a span
// event and as a structured log entry.
func (m *instantiateRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":                       instantiateRoute,
		"http.status_code":                 status,
		"bacon.instantiate.total_ms":       totalMs,
		"bacon.instantiate.cards_created":  m.cardsCreated,
		"bacon.instantiate.partial_errors": m.partialErrors,
	}
	if m.templateID != "" {
		attrs["bacon.instantiate.template_id"] = m.templateID
	}
	if m.authDuration > 0 {
		attrs["bacon.instantiate.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.engineDuration > 0 {
		attrs["bacon.instantiate.engine_ms"] = durationToMillis(m.engineDuration)
	}
	if m.encodeDuration > 0 {
		attrs["bacon.instantiate.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		attrs["bacon.instantiate.error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	if m.span != nil {
		spanAttrs := make([]attribute.KeyValue, 0, len(attrs)+3)
		for k, v := range attrs {
			spanAttrs = append(spanAttrs, anyAttribute(k, v))
		}
		m.span.SetAttributes(spanAttrs...)

		eventAttrs := append(spanAttrs,
			attribute.String("event.name", instantiateEventName),
			attribute.String("event.domain", instantiateEventDomain),
			attribute.String("severity_text", severityText),
		)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

		if err != nil || status >= http.StatusInternalServerError {
			desc := severityText
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}

		if m.logger != nil {
			fields := log.Fields{
				"event.name":      instantiateEventName,
				"event.domain":    instantiateEventDomain,
				"attributes":      attrs,
				"severity_text":   severityText,
				"severity_number": severityNumber,
			}
			if sc := m.span.SpanContext(); sc.HasTraceID() {
				fields["trace_id"] = sc.TraceID().String()
				fields["span_id"] = sc.SpanID().String()
			}
			m.logger.WithFields(fields).Info("observability.event")
		}

		m.span.End()
		return
	}

	if m.logger != nil {
		m.logger.WithFields(log.Fields{
			"event.name":      instantiateEventName,
			"event.domain":    instantiateEventDomain,
			"attributes":      attrs,
			"severity_text":   severityText,
			"severity_number": severityNumber,
		}).Info("observability.event")
	}
}

func anyAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, "")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
