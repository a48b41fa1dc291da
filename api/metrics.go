package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "kanban-board/api"
	boardSpanName    = "board.request"
	boardEventName   = "board.request"
	boardEventDomain = "kanban.board"
	observabilityMsg = "observability.event"
	metricsKey       = "board.metrics"
)

type requestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	method        string
	route         string
	op            string
	taskID        int64
	boardDuration time.Duration
	idempotent    bool
	errorStage    string
	err           error
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, boardSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		method: method,
		route:  route,
	}, spanCtx
}

func (m *requestMetrics) SetOp(op string, taskID int64) {
	if m == nil {
		return
	}
	m.op = op
	m.taskID = taskID
}

func (m *requestMetrics) ObserveBoard(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.boardDuration = duration
}

func (m *requestMetrics) SetIdempotent(v bool) {
	if m == nil {
		return
	}
	m.idempotent = v
}

func (m *requestMetrics) SetError(stage string, err error) {
	if m == nil {
		return
	}
	if stage != "" {
		m.errorStage = stage
	}
	if err != nil {
		m.err = err
	}
}

// Log emits one observability event for the request and ends its span.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.err
	}
	sevText, sevNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.method", m.method),
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Bool("board.idempotent", m.idempotent),
	}
	if m.op != "" {
		attrs = append(attrs, attribute.String("board.op", m.op))
	}
	if m.taskID != 0 {
		attrs = append(attrs, attribute.Int64("board.task_id", m.taskID))
	}
	if m.boardDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.mutation_ms", durationToMillis(m.boardDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", boardEventName),
			attribute.String("event.domain", boardEventDomain),
			attribute.String("severity_text", sevText),
			attribute.Int("severity_number", sevNumber),
		}, attrs...)
		m.span.AddEvent(observabilityMsg, trace.WithAttributes(eventAttrs...))
		if sevText == "ERROR" {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      boardEventName,
		"event.domain":    boardEventDomain,
		"severity_text":   sevText,
		"severity_number": sevNumber,
		"attributes":      attributesToFields(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(levelForSeverity(sevText), observabilityMsg)
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError || (status == 0 && err != nil):
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func levelForSeverity(text string) log.Level {
	switch text {
	case "ERROR":
		return log.ErrorLevel
	case "WARN":
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// ObservabilityMiddleware wraps every request in a span and logs one
// observability event when the handler returns.
func ObservabilityMiddleware(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			m, spanCtx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(spanCtx))
			c.Set(metricsKey, m)
			defer func() {
				status := c.Response().Status
				if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
					status = he.Code
				}
				m.Log(status, err)
			}()
			return next(c)
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsKey).(*requestMetrics)
	return m
}
