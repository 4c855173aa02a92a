package protocol

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nairaflow/connect/internal/auth"
	"github.com/nairaflow/connect/internal/core"
)

// RESTAdapter speaks plain HTTP APIs. The request body is encoded per the
// connector's data format; responses with a JSON content type are decoded
// into generic values, everything else is returned as a string.
type RESTAdapter struct {
	httpBase
	logger *log.Logger
}

func NewRESTAdapter(cfg *core.ConnectorConfig, authMgr *auth.Manager) *RESTAdapter {
	return &RESTAdapter{
		httpBase: newHTTPBase(cfg, authMgr),
		logger:   log.New(log.Writer(), "[REST] ", log.LstdFlags),
	}
}

func (a *RESTAdapter) Open(_ context.Context) error {
	a.opened = true
	return nil
}

func (a *RESTAdapter) Authenticate(ctx context.Context) error {
	return a.authenticate(ctx)
}

// Test issues a GET against the configured health endpoint, or the base URL
// when none is configured.
func (a *RESTAdapter) Test(ctx context.Context) error {
	endpoint := "health"
	if a.cfg.Endpoint(endpoint) == "" {
		endpoint = ""
	}
	resp, err := a.Execute(ctx, &core.ConnectorRequest{
		Operation: "test",
		Endpoint:  endpoint,
		Method:    http.MethodGet,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return core.NewError(core.KindConnection, "rest.test", resp.ErrorMessage)
	}
	return nil
}

func (a *RESTAdapter) Execute(ctx context.Context, req *core.ConnectorRequest) (*core.ConnectorResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	headers, query, err := a.applyAuth(req)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req.Body, a.cfg.DataFormat)
	if err != nil {
		return nil, core.WrapError(core.KindProtocol, "rest.execute", "encoding request body", err)
	}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}

	target := joinURL(a.cfg.BaseURL, a.resolvePath(req))
	if len(query) > 0 {
		vals := url.Values{}
		for k, v := range query {
			vals.Set(k, v)
		}
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + vals.Encode()
	}

	attempts := a.cfg.Retry.MaxAttempts
	if attempts <= 0 || !req.Retry {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt) * a.cfg.Retry.Backoff
			a.logger.Printf("retrying %s %s (attempt %d/%d) after %s", req.Method, target, attempt, attempts, backoff)
			select {
			case <-ctx.Done():
				return nil, core.WrapError(core.KindTimeout, "rest.execute", "cancelled during backoff", ctx.Err())
			case <-time.After(backoff):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bytes.NewReader(body))
		if err != nil {
			return nil, core.WrapError(core.KindProtocol, "rest.execute", "building request", err)
		}
		setHeaders(httpReq, headers)

		resp, err := a.client.Do(httpReq)
		if err != nil {
			lastErr = core.WrapError(core.KindConnection, "rest.execute", "request failed", err)
			continue
		}

		out, err := buildResponse(resp, requestID, start)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, lastErr
}

func (a *RESTAdapter) Close(_ context.Context) error {
	a.opened = false
	a.client.CloseIdleConnections()
	return nil
}

// encodeBody serializes a request body per the connector data format and
// returns the payload plus its content type.
func encodeBody(body any, format core.DataFormat) ([]byte, string, error) {
	if body == nil {
		return nil, "", nil
	}
	switch format {
	case core.FormatXML:
		if raw, ok := rawBytes(body); ok {
			return raw, "application/xml", nil
		}
		buf, err := xml.Marshal(body)
		return buf, "application/xml", err
	case core.FormatForm:
		vals := url.Values{}
		switch m := body.(type) {
		case map[string]string:
			for k, v := range m {
				vals.Set(k, v)
			}
		case map[string]any:
			for k, v := range m {
				vals.Set(k, fmt.Sprintf("%v", v))
			}
		default:
			return nil, "", fmt.Errorf("form encoding requires a map body, got %T", body)
		}
		return []byte(vals.Encode()), "application/x-www-form-urlencoded", nil
	case core.FormatCSV:
		rows, ok := body.([][]string)
		if !ok {
			return nil, "", fmt.Errorf("csv encoding requires [][]string, got %T", body)
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(rows); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	case core.FormatBinary:
		raw, ok := rawBytes(body)
		if !ok {
			return nil, "", fmt.Errorf("binary encoding requires bytes, got %T", body)
		}
		return raw, "application/octet-stream", nil
	default: // JSON
		buf, err := json.Marshal(body)
		return buf, "application/json", err
	}
}

func rawBytes(body any) ([]byte, bool) {
	switch b := body.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	}
	return nil, false
}

// buildResponse drains an HTTP response into a ConnectorResponse. Statuses
// of 400 and above mark the response failed without raising.
func buildResponse(resp *http.Response, requestID string, start time.Time) (*core.ConnectorResponse, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, core.WrapError(core.KindConnection, "rest.response", "reading response body", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	out := &core.ConnectorResponse{
		StatusCode:     resp.StatusCode,
		Headers:        headers,
		Success:        resp.StatusCode < 400,
		ResponseTimeMs: elapsedMs(start),
		RequestID:      requestID,
	}
	out.Body = decodeBody(raw, resp.Header.Get("Content-Type"))
	if !out.Success {
		out.ErrorMessage = fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, snippet(raw, 200))
	}
	return out, nil
}

func decodeBody(raw []byte, contentType string) any {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

func snippet(raw []byte, n int) string {
	s := strings.TrimSpace(string(raw))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
