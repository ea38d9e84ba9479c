package syncapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/observability"
	kgzip "github.com/klauspost/compress/gzip"
)

// instrumentation is one tracer plus a small set of metrics created once
// and reused across every request this client issues.
type instrumentation struct {
	tracer           observability.Tracer
	requestCounter   observability.Counter
	errorCounter     observability.Counter
	latencyHistogram observability.Histogram
}

func newInstrumentation(o11y observability.Observability) *instrumentation {
	metrics := o11y.Metrics()
	return &instrumentation{
		tracer: o11y.Tracer(),
		requestCounter: metrics.Counter(
			"syncapi.client.request.count", "Total number of remote API requests", "{request}"),
		errorCounter: metrics.Counter(
			"syncapi.client.request.errors", "Total number of remote API request errors", "{error}"),
		latencyHistogram: metrics.Histogram(
			"syncapi.client.request.duration", "Duration of remote API requests", "ms"),
	}
}

// observableTransport wraps every request issued by Client with a trace
// span and request/error/latency metrics.
type observableTransport struct {
	base            http.RoundTripper
	instrumentation *instrumentation
}

func (t *observableTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()

	ctx, span := t.instrumentation.tracer.Start(
		ctx,
		"syncapi.client.request",
		observability.WithSpanKind(observability.SpanKindClient),
		observability.WithAttributes(
			observability.String("http.method", req.Method),
			observability.String("http.url", req.URL.String()),
		),
	)
	defer span.End()

	resp, err := t.base.RoundTrip(req.WithContext(ctx))

	duration := float64(time.Since(start).Milliseconds())
	attrs := []observability.Field{observability.String("http.method", req.Method)}
	metricsCtx := context.Background()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusCodeError, err.Error())
		t.instrumentation.errorCounter.Increment(metricsCtx, append(attrs, observability.String("error.type", classifyNetError(err)))...)
		t.instrumentation.requestCounter.Increment(metricsCtx, attrs...)
		t.instrumentation.latencyHistogram.Record(metricsCtx, duration, attrs...)
		return resp, err
	}

	attrs = append(attrs, observability.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(observability.StatusCodeError, fmt.Sprintf("HTTP %d", resp.StatusCode))
	} else {
		span.SetStatus(observability.StatusCodeOK, "ok")
	}
	t.instrumentation.requestCounter.Increment(metricsCtx, attrs...)
	t.instrumentation.latencyHistogram.Record(metricsCtx, duration, attrs...)

	return resp, nil
}

func classifyNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "network_timeout"
		}
		return "network_error"
	}
	return "unknown"
}

// isConnectionError reports whether err represents a dial/connect-refused
// style failure, folded into ErrTransient alongside timeouts and 5xx.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// gzipBody compresses body with klauspost/compress/gzip rather than the
// standard library's compress/gzip.
func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := kgzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drainAndClose(r *http.Response) {
	if r == nil || r.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, r.Body, 1<<20)
	_ = r.Body.Close()
}
