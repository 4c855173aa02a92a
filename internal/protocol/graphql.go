package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nairaflow/connect/internal/auth"
	"github.com/nairaflow/connect/internal/core"
)

// introspectionQuery is the minimal schema probe run on Open.
const introspectionQuery = `query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types { name kind }
  }
}`

// GraphQLAdapter posts {query, variables, operationName} documents to a
// single endpoint. Responses carrying errors[] are reported as failed with
// the messages joined; partial data, when present, still rides along in the
// body.
type GraphQLAdapter struct {
	httpBase
	logger *log.Logger

	schema map[string]any // populated by Open when introspection succeeds
}

func NewGraphQLAdapter(cfg *core.ConnectorConfig, authMgr *auth.Manager) *GraphQLAdapter {
	return &GraphQLAdapter{
		httpBase: newHTTPBase(cfg, authMgr),
		logger:   log.New(log.Writer(), "[GRAPHQL] ", log.LstdFlags),
	}
}

// Open runs the introspection probe unless disabled via the introspection
// setting. Servers that forbid introspection are still usable; the schema
// simply stays unknown.
func (a *GraphQLAdapter) Open(ctx context.Context) error {
	a.opened = true
	if v, ok := a.cfg.Settings["introspection"].(bool); ok && !v {
		return nil
	}
	resp, err := a.Execute(ctx, &core.ConnectorRequest{
		Operation: "introspection",
		Body:      map[string]any{"query": introspectionQuery},
	})
	if err != nil || !resp.Success {
		a.logger.Printf("introspection unavailable for %s", a.cfg.ConnectorID)
		return nil
	}
	if body, ok := resp.Body.(map[string]any); ok {
		if data, ok := body["data"].(map[string]any); ok {
			if schema, ok := data["__schema"].(map[string]any); ok {
				a.schema = schema
			}
		}
	}
	return nil
}

func (a *GraphQLAdapter) Authenticate(ctx context.Context) error {
	return a.authenticate(ctx)
}

func (a *GraphQLAdapter) Test(ctx context.Context) error {
	resp, err := a.Execute(ctx, &core.ConnectorRequest{
		Operation: "test",
		Body:      map[string]any{"query": "query { __typename }"},
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return core.NewError(core.KindConnection, "graphql.test", resp.ErrorMessage)
	}
	return nil
}

// Execute posts one document. The request body is either a ready payload map
// with a query key, or a raw query string; variables and operationName come
// from metadata when not embedded in the payload.
func (a *GraphQLAdapter) Execute(ctx context.Context, req *core.ConnectorRequest) (*core.ConnectorResponse, error) {
	payload, err := a.buildPayload(req)
	if err != nil {
		return nil, err
	}
	return a.post(ctx, req, payload)
}

// ExecuteBatch posts several documents as one array payload.
func (a *GraphQLAdapter) ExecuteBatch(ctx context.Context, reqs []*core.ConnectorRequest) (*core.ConnectorResponse, error) {
	if len(reqs) == 0 {
		return nil, core.NewError(core.KindValidation, "graphql.batch", "empty batch")
	}
	batch := make([]any, 0, len(reqs))
	for _, r := range reqs {
		p, err := a.buildPayload(r)
		if err != nil {
			return nil, err
		}
		batch = append(batch, p)
	}
	return a.post(ctx, reqs[0], batch)
}

// Schema returns the introspected schema, or nil when unknown.
func (a *GraphQLAdapter) Schema() map[string]any { return a.schema }

func (a *GraphQLAdapter) Close(_ context.Context) error {
	a.opened = false
	a.client.CloseIdleConnections()
	return nil
}

func (a *GraphQLAdapter) buildPayload(req *core.ConnectorRequest) (map[string]any, error) {
	payload := map[string]any{}
	switch body := req.Body.(type) {
	case map[string]any:
		if _, ok := body["query"]; !ok {
			return nil, core.NewError(core.KindValidation, "graphql.execute", "payload map missing query")
		}
		for k, v := range body {
			payload[k] = v
		}
	case string:
		payload["query"] = body
	default:
		return nil, core.NewError(core.KindValidation, "graphql.execute",
			fmt.Sprintf("body must be a query string or payload map, got %T", req.Body))
	}
	if vars, ok := req.Metadata["variables"].(map[string]any); ok {
		payload["variables"] = vars
	}
	if op := req.Meta("operation_name"); op != "" {
		payload["operationName"] = op
	}
	return payload, nil
}

func (a *GraphQLAdapter) post(ctx context.Context, req *core.ConnectorRequest, payload any) (*core.ConnectorResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, core.WrapError(core.KindProtocol, "graphql.execute", "encoding payload", err)
	}

	target := joinURL(a.cfg.BaseURL, a.resolvePath(req))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return nil, core.WrapError(core.KindProtocol, "graphql.execute", "building request", err)
	}
	headers, _, err := a.applyAuth(req)
	if err != nil {
		return nil, err
	}
	setHeaders(httpReq, headers)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, core.WrapError(core.KindConnection, "graphql.execute", "request failed", err)
	}

	out, err := buildResponse(resp, requestID, start)
	if err != nil {
		return nil, err
	}
	out.ResponseTimeMs = elapsedMs(start)

	// A 200 with errors[] is still a failed GraphQL call.
	if body, ok := out.Body.(map[string]any); ok {
		if errs, ok := body["errors"].([]any); ok && len(errs) > 0 {
			out.Success = false
			out.ErrorMessage = joinGraphQLErrors(errs)
		}
	}
	return out, nil
}

func joinGraphQLErrors(errs []any) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if m, ok := e.(map[string]any); ok {
			if msg, ok := m["message"].(string); ok {
				msgs = append(msgs, msg)
				continue
			}
		}
		msgs = append(msgs, fmt.Sprintf("%v", e))
	}
	return strings.Join(msgs, "; ")
}
