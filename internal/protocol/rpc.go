package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nairaflow/connect/internal/auth"
	"github.com/nairaflow/connect/internal/core"
)

// ============================================================================
// JSON-RPC 2.0
// ============================================================================

// JSONRPCAdapter posts JSON-RPC 2.0 calls with a monotonically increasing id.
type JSONRPCAdapter struct {
	httpBase
	logger *log.Logger
	nextID atomic.Int64
}

func NewJSONRPCAdapter(cfg *core.ConnectorConfig, authMgr *auth.Manager) *JSONRPCAdapter {
	return &JSONRPCAdapter{
		httpBase: newHTTPBase(cfg, authMgr),
		logger:   log.New(log.Writer(), "[JSONRPC] ", log.LstdFlags),
	}
}

func (a *JSONRPCAdapter) Open(_ context.Context) error {
	a.opened = true
	return nil
}

func (a *JSONRPCAdapter) Authenticate(ctx context.Context) error {
	return a.authenticate(ctx)
}

func (a *JSONRPCAdapter) Test(ctx context.Context) error {
	method := settingString(a.cfg, "ping_method", "system.listMethods")
	resp, err := a.Execute(ctx, &core.ConnectorRequest{Operation: method})
	if err != nil {
		return err
	}
	// Servers without the ping method still prove reachability by answering.
	_ = resp
	return nil
}

func (a *JSONRPCAdapter) Execute(ctx context.Context, req *core.ConnectorRequest) (*core.ConnectorResponse, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"method":  req.Operation,
		"id":      a.nextID.Add(1),
	}
	if req.Body != nil {
		payload["params"] = req.Body
	}
	out, err := a.post(ctx, req, payload)
	if err != nil {
		return nil, err
	}
	a.surfaceError(out, out.Body)
	return out, nil
}

// ExecuteBatch posts several calls as one array payload, each with its own
// id. Per-call errors are joined into the response error message.
func (a *JSONRPCAdapter) ExecuteBatch(ctx context.Context, reqs []*core.ConnectorRequest) (*core.ConnectorResponse, error) {
	if len(reqs) == 0 {
		return nil, core.NewError(core.KindValidation, "jsonrpc.batch", "empty batch")
	}
	batch := make([]any, 0, len(reqs))
	for _, r := range reqs {
		call := map[string]any{
			"jsonrpc": "2.0",
			"method":  r.Operation,
			"id":      a.nextID.Add(1),
		}
		if r.Body != nil {
			call["params"] = r.Body
		}
		batch = append(batch, call)
	}
	out, err := a.post(ctx, reqs[0], batch)
	if err != nil {
		return nil, err
	}
	if results, ok := out.Body.([]any); ok {
		var msgs []string
		for _, r := range results {
			if m, ok := r.(map[string]any); ok {
				if errObj, ok := m["error"].(map[string]any); ok {
					msgs = append(msgs, rpcErrorMessage(errObj))
				}
			}
		}
		if len(msgs) > 0 {
			out.Success = false
			out.ErrorMessage = strings.Join(msgs, "; ")
		}
	}
	return out, nil
}

func (a *JSONRPCAdapter) Close(_ context.Context) error {
	a.opened = false
	a.client.CloseIdleConnections()
	return nil
}

func (a *JSONRPCAdapter) post(ctx context.Context, req *core.ConnectorRequest, payload any) (*core.ConnectorResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, core.WrapError(core.KindProtocol, "jsonrpc.execute", "encoding payload", err)
	}
	target := joinURL(a.cfg.BaseURL, a.resolvePath(req))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return nil, core.WrapError(core.KindProtocol, "jsonrpc.execute", "building request", err)
	}
	headers, _, err := a.applyAuth(req)
	if err != nil {
		return nil, err
	}
	setHeaders(httpReq, headers)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, core.WrapError(core.KindConnection, "jsonrpc.execute", "request failed", err)
	}
	out, err := buildResponse(resp, requestID, start)
	if err != nil {
		return nil, err
	}
	out.ResponseTimeMs = elapsedMs(start)
	return out, nil
}

func (a *JSONRPCAdapter) surfaceError(out *core.ConnectorResponse, body any) {
	m, ok := body.(map[string]any)
	if !ok {
		return
	}
	if errObj, ok := m["error"].(map[string]any); ok {
		out.Success = false
		out.ErrorMessage = rpcErrorMessage(errObj)
		return
	}
	if result, ok := m["result"]; ok {
		out.Body = result
	}
}

func rpcErrorMessage(errObj map[string]any) string {
	code := ""
	if c, ok := errObj["code"]; ok {
		code = fmt.Sprintf("%v", c)
	}
	msg, _ := errObj["message"].(string)
	return strings.TrimSpace(code + " " + msg)
}

// ============================================================================
// XML-RPC
// ============================================================================

// XMLRPCAdapter builds methodCall documents with typed values and parses
// methodResponse documents, surfacing faults as failed responses.
type XMLRPCAdapter struct {
	httpBase
	logger *log.Logger
}

func NewXMLRPCAdapter(cfg *core.ConnectorConfig, authMgr *auth.Manager) *XMLRPCAdapter {
	return &XMLRPCAdapter{
		httpBase: newHTTPBase(cfg, authMgr),
		logger:   log.New(log.Writer(), "[XMLRPC] ", log.LstdFlags),
	}
}

func (a *XMLRPCAdapter) Open(_ context.Context) error {
	a.opened = true
	return nil
}

func (a *XMLRPCAdapter) Authenticate(ctx context.Context) error {
	return a.authenticate(ctx)
}

func (a *XMLRPCAdapter) Test(ctx context.Context) error {
	_, err := a.Execute(ctx, &core.ConnectorRequest{Operation: "system.listMethods"})
	return err
}

func (a *XMLRPCAdapter) Execute(ctx context.Context, req *core.ConnectorRequest) (*core.ConnectorResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	var params []any
	switch b := req.Body.(type) {
	case nil:
	case []any:
		params = b
	default:
		params = []any{b}
	}

	doc, err := buildMethodCall(req.Operation, params)
	if err != nil {
		return nil, err
	}

	target := joinURL(a.cfg.BaseURL, a.resolvePath(req))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(doc))
	if err != nil {
		return nil, core.WrapError(core.KindProtocol, "xmlrpc.execute", "building request", err)
	}
	headers, _, err := a.applyAuth(req)
	if err != nil {
		return nil, err
	}
	setHeaders(httpReq, headers)
	httpReq.Header.Set("Content-Type", "text/xml")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, core.WrapError(core.KindConnection, "xmlrpc.execute", "request failed", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, core.WrapError(core.KindConnection, "xmlrpc.execute", "reading response", err)
	}

	out := &core.ConnectorResponse{
		StatusCode:     resp.StatusCode,
		Success:        resp.StatusCode < 400,
		ResponseTimeMs: elapsedMs(start),
		RequestID:      requestID,
	}

	value, fault, err := parseMethodResponse(raw)
	if err != nil {
		return nil, core.WrapError(core.KindProtocol, "xmlrpc.execute", "parsing response", err)
	}
	if fault != nil {
		out.Success = false
		out.ErrorMessage = fmt.Sprintf("xmlrpc fault %d: %s", fault.Code, fault.String)
		out.Body = map[string]any{"faultCode": fault.Code, "faultString": fault.String}
		return out, nil
	}
	out.Body = value
	return out, nil
}

func (a *XMLRPCAdapter) Close(_ context.Context) error {
	a.opened = false
	a.client.CloseIdleConnections()
	return nil
}

// ============================================================================
// XML-RPC VALUE CODEC
// ============================================================================

type xmlrpcFault struct {
	Code   int
	String string
}

func buildMethodCall(method string, params []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<methodCall><methodName>" + xmlEscape(method) + "</methodName><params>")
	for _, p := range params {
		buf.WriteString("<param>")
		if err := encodeXMLRPCValue(&buf, p); err != nil {
			return nil, core.WrapError(core.KindProtocol, "xmlrpc.encode", "encoding param", err)
		}
		buf.WriteString("</param>")
	}
	buf.WriteString("</params></methodCall>")
	return buf.Bytes(), nil
}

// encodeXMLRPCValue renders one typed <value>. Maps encode as structs with
// members in sorted key order so documents are reproducible.
func encodeXMLRPCValue(buf *bytes.Buffer, v any) error {
	buf.WriteString("<value>")
	switch t := v.(type) {
	case nil:
		buf.WriteString("<nil/>")
	case bool:
		if t {
			buf.WriteString("<boolean>1</boolean>")
		} else {
			buf.WriteString("<boolean>0</boolean>")
		}
	case int:
		buf.WriteString("<int>" + strconv.Itoa(t) + "</int>")
	case int64:
		buf.WriteString("<int>" + strconv.FormatInt(t, 10) + "</int>")
	case float64:
		buf.WriteString("<double>" + strconv.FormatFloat(t, 'g', -1, 64) + "</double>")
	case string:
		buf.WriteString("<string>" + xmlEscape(t) + "</string>")
	case []any:
		buf.WriteString("<array><data>")
		for _, item := range t {
			if err := encodeXMLRPCValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteString("</data></array>")
	case map[string]any:
		buf.WriteString("<struct>")
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString("<member><name>" + xmlEscape(k) + "</name>")
			if err := encodeXMLRPCValue(buf, t[k]); err != nil {
				return err
			}
			buf.WriteString("</member>")
		}
		buf.WriteString("</struct>")
	default:
		return fmt.Errorf("unsupported xmlrpc value type %T", v)
	}
	buf.WriteString("</value>")
	return nil
}

// xmlrpcValue mirrors the <value> element for decoding.
type xmlrpcValue struct {
	Raw     string        `xml:",chardata"`
	Int     *string       `xml:"int"`
	I4      *string       `xml:"i4"`
	Double  *string       `xml:"double"`
	Boolean *string       `xml:"boolean"`
	Str     *string       `xml:"string"`
	Nil     *struct{}     `xml:"nil"`
	Array   *xmlrpcArray  `xml:"array"`
	Struct  *xmlrpcStruct `xml:"struct"`
}

type xmlrpcArray struct {
	Values []xmlrpcValue `xml:"data>value"`
}

type xmlrpcStruct struct {
	Members []struct {
		Name  string      `xml:"name"`
		Value xmlrpcValue `xml:"value"`
	} `xml:"member"`
}

func (v *xmlrpcValue) decode() (any, error) {
	switch {
	case v.Nil != nil:
		return nil, nil
	case v.Boolean != nil:
		return strings.TrimSpace(*v.Boolean) == "1", nil
	case v.Int != nil:
		return strconv.Atoi(strings.TrimSpace(*v.Int))
	case v.I4 != nil:
		return strconv.Atoi(strings.TrimSpace(*v.I4))
	case v.Double != nil:
		return strconv.ParseFloat(strings.TrimSpace(*v.Double), 64)
	case v.Str != nil:
		return *v.Str, nil
	case v.Array != nil:
		out := make([]any, 0, len(v.Array.Values))
		for i := range v.Array.Values {
			item, err := v.Array.Values[i].decode()
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case v.Struct != nil:
		out := make(map[string]any, len(v.Struct.Members))
		for i := range v.Struct.Members {
			m := &v.Struct.Members[i]
			item, err := m.Value.decode()
			if err != nil {
				return nil, err
			}
			out[m.Name] = item
		}
		return out, nil
	default:
		// Untyped values default to string per the XML-RPC spec.
		return strings.TrimSpace(v.Raw), nil
	}
}

func parseMethodResponse(raw []byte) (any, *xmlrpcFault, error) {
	var doc struct {
		Params []xmlrpcValue `xml:"params>param>value"`
		Fault  *xmlrpcValue  `xml:"fault>value"`
	}
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, err
	}

	if doc.Fault != nil {
		decoded, err := doc.Fault.decode()
		if err != nil {
			return nil, nil, err
		}
		fault := &xmlrpcFault{}
		if m, ok := decoded.(map[string]any); ok {
			if c, ok := m["faultCode"].(int); ok {
				fault.Code = c
			}
			fault.String, _ = m["faultString"].(string)
		}
		return nil, fault, nil
	}

	if len(doc.Params) == 0 {
		return nil, nil, nil
	}
	if len(doc.Params) == 1 {
		v, err := doc.Params[0].decode()
		return v, nil, err
	}
	out := make([]any, 0, len(doc.Params))
	for i := range doc.Params {
		v, err := doc.Params[i].decode()
		if err != nil {
			return nil, nil, err
		}
		out = append(out, v)
	}
	return out, nil, nil
}
