// Package httpadapter implements the HTTP(S) protocol adapter (§4.4): a
// single synchronous Execute call per request descriptor, wrapping an
// *http.Client the caller constructs (in production, via
// client.NewHTTPClientFromRotator/client.NewHTTPClientWithProfile, wired by
// dispatch.NewHTTPEngine) rather than a bare http.DefaultClient, so pooling,
// keep-alives, and optional proxy routing apply to every load-generation
// request.
package httpadapter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/firasghr/loadspiker-engine/logger"
	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/timing"
)

// maxRedirects bounds automatic redirect following per §4.4.
const maxRedirects = 5

// Adapter executes HTTP request descriptors and credits a shared Aggregator.
type Adapter struct {
	client  *http.Client
	metrics *metrics.Aggregator
	log     *logger.Logger
}

// New wraps an existing *http.Client (as produced by client.NewHTTPClient or
// one of its profile/rotator variants) with redirect-limit enforcement and
// credits m on every Execute. log is optional; pass nil to disable the
// adapter's transport-failure logging.
func New(httpClient *http.Client, m *metrics.Aggregator, log *logger.Logger) *Adapter {
	c := *httpClient
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}
	return &Adapter{client: &c, metrics: m, log: log}
}

// Execute sends one HTTP request and returns a populated response record.
// success = transport OK AND 200 <= status < 400, per §4.4. Transport
// failures report status_code=0 with a non-empty error_message and still
// credit metrics with the elapsed time and success=false.
func (a *Adapter) Execute(req model.RequestDescriptor) model.ResponseRecord {
	start := timing.Start()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequest(method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return a.fail(start, err)
	}
	applyHeaderBlob(httpReq, req.Headers)

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	httpReq = httpReq.WithContext(ctx)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return a.fail(start, err)
	}
	defer resp.Body.Close()

	bodyBytes, truncated := readBounded(resp.Body, model.MaxBodyBytes)
	_ = truncated // truncation is reflected in the returned length only; success ignores it per §4.4

	headers, _ := timing.TruncateText(flattenHeaders(resp.Header), timing.MaxHeaderBlockBytes)

	elapsed := timing.ElapsedMicros(start)
	success := resp.StatusCode >= 200 && resp.StatusCode < 400

	rec := model.ResponseRecord{
		Protocol:       model.ProtocolHTTP,
		StatusCode:     resp.StatusCode,
		Headers:        headers,
		Body:           bodyBytes,
		ResponseTimeUS: elapsed,
		Success:        success,
	}
	if !success {
		rec.ErrorMessage = "http: non-2xx/3xx status " + strconv.Itoa(resp.StatusCode)
	}
	a.metrics.Record(elapsed, success)
	return rec
}

func (a *Adapter) fail(start time.Time, err error) model.ResponseRecord {
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, false)
	if a.log != nil {
		a.log.Errorf("httpadapter: transport error: %v", err)
	}
	return model.ResponseRecord{
		Protocol:       model.ProtocolHTTP,
		StatusCode:     0,
		ResponseTimeUS: elapsed,
		Success:        false,
		ErrorMessage:   "http: " + err.Error(),
	}
}

// applyHeaderBlob parses the newline-separated "Name: value" header blob and
// sets each header on req, per §4.4.
func applyHeaderBlob(req *http.Request, blob string) {
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		req.Header.Set(strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]))
	}
}

// flattenHeaders renders http.Header back into the engine's newline-blob
// format.
func flattenHeaders(h http.Header) string {
	var b strings.Builder
	for name, values := range h {
		for _, v := range values {
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// readBounded reads up to max bytes, then drains and discards the rest so
// the underlying connection can be returned to the pool, per §4.4's "drain
// so the connection can be reused" requirement.
func readBounded(r io.Reader, max int) (data []byte, truncated bool) {
	limited := io.LimitReader(r, int64(max))
	buf, _ := io.ReadAll(limited)
	n, _ := io.Copy(io.Discard, r)
	return buf, n > 0 || len(buf) >= max
}
