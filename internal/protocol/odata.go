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
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nairaflow/connect/internal/auth"
	"github.com/nairaflow/connect/internal/core"
)

// ODataAdapter speaks OData v2 and v4 JSON services. The version comes from
// the odata_version setting (default 4) and drives protocol headers and the
// response envelope shape. SAP-style CSRF protection is handled by fetching
// a token on a dry GET and echoing it on modifying calls.
type ODataAdapter struct {
	httpBase
	logger *log.Logger

	version    int
	entitySets []string
	csrfToken  string
}

func NewODataAdapter(cfg *core.ConnectorConfig, authMgr *auth.Manager) *ODataAdapter {
	version := 4
	if v, ok := cfg.Settings["odata_version"]; ok {
		switch n := v.(type) {
		case int:
			version = n
		case float64:
			version = int(n)
		case string:
			if parsed, err := strconv.Atoi(n); err == nil {
				version = parsed
			}
		}
	}
	if version != 2 {
		version = 4
	}
	return &ODataAdapter{
		httpBase: newHTTPBase(cfg, authMgr),
		logger:   log.New(log.Writer(), "[ODATA] ", log.LstdFlags),
		version:  version,
	}
}

// Open fetches $metadata to discover entity sets. Discovery failure is not
// fatal; requests against undiscovered sets still go through.
func (a *ODataAdapter) Open(ctx context.Context) error {
	a.opened = true
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(a.cfg.BaseURL, "$metadata"), nil)
	if err != nil {
		return core.WrapError(core.KindProtocol, "odata.open", "building metadata request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Printf("metadata unavailable for %s: %v", a.cfg.ConnectorID, err)
		return nil
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		a.logger.Printf("metadata fetch for %s returned %d", a.cfg.ConnectorID, resp.StatusCode)
		return nil
	}
	a.entitySets = parseEntitySets(raw)
	return nil
}

func (a *ODataAdapter) Authenticate(ctx context.Context) error {
	return a.authenticate(ctx)
}

func (a *ODataAdapter) Test(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL, nil)
	if err != nil {
		return core.WrapError(core.KindConnection, "odata.test", "building probe", err)
	}
	a.setProtocolHeaders(req)
	resp, err := a.client.Do(req)
	if err != nil {
		return core.WrapError(core.KindConnection, "odata.test", "service unreachable", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return core.NewError(core.KindConnection, "odata.test",
			fmt.Sprintf("service returned %d", resp.StatusCode))
	}
	return nil
}

func (a *ODataAdapter) Execute(ctx context.Context, req *core.ConnectorRequest) (*core.ConnectorResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	path := a.resolvePath(req)
	if opts := queryOptionsFromMetadata(req.Metadata); opts != "" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + opts
	}
	target := joinURL(a.cfg.BaseURL, path)

	headers, query, err := a.applyAuth(req)
	if err != nil {
		return nil, err
	}
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

	var body io.Reader
	if req.Body != nil {
		buf, err := json.Marshal(req.Body)
		if err != nil {
			return nil, core.WrapError(core.KindProtocol, "odata.execute", "encoding body", err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, core.WrapError(core.KindProtocol, "odata.execute", "building request", err)
	}
	setHeaders(httpReq, headers)
	a.setProtocolHeaders(httpReq)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if isModifying(req.Method) {
		token, err := a.csrf(ctx, headers)
		if err != nil {
			return nil, err
		}
		if token != "" {
			httpReq.Header.Set("X-CSRF-Token", token)
		}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, core.WrapError(core.KindConnection, "odata.execute", "request failed", err)
	}

	out, err := buildResponse(resp, requestID, start)
	if err != nil {
		return nil, err
	}
	out.ResponseTimeMs = elapsedMs(start)
	a.unwrap(out)
	return out, nil
}

func (a *ODataAdapter) Close(_ context.Context) error {
	a.opened = false
	a.csrfToken = ""
	a.client.CloseIdleConnections()
	return nil
}

// EntitySets lists the sets discovered from $metadata.
func (a *ODataAdapter) EntitySets() []string { return a.entitySets }

// GetEntitySet reads an entity set with the common query options. filters
// become an equality $filter expression; selectFields become $select.
func (a *ODataAdapter) GetEntitySet(ctx context.Context, set string, filters map[string]any, selectFields []string, top, skip int) (*core.ConnectorResponse, error) {
	meta := map[string]any{}
	if expr := filterExpression(filters); expr != "" {
		meta["$filter"] = expr
	}
	if len(selectFields) > 0 {
		meta["$select"] = strings.Join(selectFields, ",")
	}
	if top > 0 {
		meta["$top"] = strconv.Itoa(top)
	}
	if skip > 0 {
		meta["$skip"] = strconv.Itoa(skip)
	}
	return a.Execute(ctx, &core.ConnectorRequest{
		Operation: "get_entity_set",
		Endpoint:  "/" + set,
		Method:    http.MethodGet,
		Metadata:  meta,
	})
}

// GetEntity reads one entity by key.
func (a *ODataAdapter) GetEntity(ctx context.Context, set string, key any) (*core.ConnectorResponse, error) {
	return a.Execute(ctx, &core.ConnectorRequest{
		Operation: "get_entity",
		Endpoint:  fmt.Sprintf("/%s(%s)", set, keyLiteral(key)),
		Method:    http.MethodGet,
	})
}

// CreateEntity posts a new entity to a set.
func (a *ODataAdapter) CreateEntity(ctx context.Context, set string, data map[string]any) (*core.ConnectorResponse, error) {
	return a.Execute(ctx, &core.ConnectorRequest{
		Operation: "create_entity",
		Endpoint:  "/" + set,
		Method:    http.MethodPost,
		Body:      data,
	})
}

func (a *ODataAdapter) setProtocolHeaders(r *http.Request) {
	r.Header.Set("Accept", "application/json")
	if a.version == 4 {
		r.Header.Set("OData-Version", "4.0")
		r.Header.Set("OData-MaxVersion", "4.0")
	} else {
		r.Header.Set("DataServiceVersion", "2.0")
		r.Header.Set("MaxDataServiceVersion", "2.0")
	}
}

// csrf returns the cached token or fetches one with a dry GET carrying
// X-CSRF-Token: Fetch. Services without CSRF protection return no token and
// none is attached.
func (a *ODataAdapter) csrf(ctx context.Context, headers map[string]string) (string, error) {
	if a.csrfToken != "" {
		return a.csrfToken, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL, nil)
	if err != nil {
		return "", core.WrapError(core.KindProtocol, "odata.csrf", "building fetch request", err)
	}
	setHeaders(req, headers)
	a.setProtocolHeaders(req)
	req.Header.Set("X-CSRF-Token", "Fetch")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", core.WrapError(core.KindConnection, "odata.csrf", "token fetch failed", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	a.csrfToken = resp.Header.Get("X-CSRF-Token")
	return a.csrfToken, nil
}

// unwrap strips the version envelope (v2 d, v4 value) and extracts error
// messages from OData error bodies.
func (a *ODataAdapter) unwrap(out *core.ConnectorResponse) {
	body, ok := out.Body.(map[string]any)
	if !ok {
		return
	}
	if !out.Success {
		if msg := odataErrorMessage(body); msg != "" {
			out.ErrorMessage = msg
		}
		return
	}
	if a.version == 2 {
		if d, ok := body["d"]; ok {
			out.Body = d
		}
		return
	}
	if v, ok := body["value"]; ok {
		out.Body = v
	}
}

func odataErrorMessage(body map[string]any) string {
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	switch msg := errObj["message"].(type) {
	case string: // v4
		return msg
	case map[string]any: // v2 wraps the text in message.value
		if v, ok := msg["value"].(string); ok {
			return v
		}
	}
	return ""
}

func isModifying(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, "MERGE":
		return true
	}
	return false
}

// queryOptionsFromMetadata renders the OData system query options present in
// the request metadata, in canonical order. Filter expressions are escaped
// with %20 for spaces; $select, $expand and $orderby keep their commas.
func queryOptionsFromMetadata(meta map[string]any) string {
	var parts []string
	appendOpt := func(name string, escape bool) {
		v, ok := meta[name]
		if !ok {
			return
		}
		s := fmt.Sprintf("%v", v)
		if s == "" {
			return
		}
		if escape {
			s = escapeODataExpr(s)
		}
		parts = append(parts, name+"="+s)
	}
	appendOpt("$filter", true)
	appendOpt("$select", false)
	appendOpt("$expand", false)
	appendOpt("$orderby", true)
	appendOpt("$top", false)
	appendOpt("$skip", false)
	return strings.Join(parts, "&")
}

// escapeODataExpr percent-encodes an expression the way OData services
// expect: spaces become %20, quotes %27, commas survive.
func escapeODataExpr(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	escaped = strings.ReplaceAll(escaped, "%2C", ",")
	return escaped
}

// filterExpression renders an equality filter from a field→value map. String
// values are quoted per OData literal syntax; multiple fields join with and.
func filterExpression(filters map[string]any) string {
	if len(filters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s eq %s", k, keyLiteral(filters[k])))
	}
	return strings.Join(parts, " and ")
}

func keyLiteral(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// parseEntitySets pulls EntitySet names out of a $metadata document.
func parseEntitySets(raw []byte) []string {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var sets []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return sets
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "EntitySet" {
			for _, attr := range start.Attr {
				if attr.Name.Local == "Name" {
					sets = append(sets, attr.Value)
				}
			}
		}
	}
}
