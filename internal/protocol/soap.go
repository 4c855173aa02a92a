package protocol

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nairaflow/connect/internal/auth"
	"github.com/nairaflow/connect/internal/core"
)

const (
	soapEnvNS = "http://schemas.xmlsoap.org/soap/envelope/"
	wsseNS    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
)

// wsdlOperation is one operation discovered from a WSDL port type.
type wsdlOperation struct {
	Name          string
	InputMessage  string
	OutputMessage string
}

// SOAPAdapter speaks SOAP 1.1. When a wsdl_url setting is present, Open
// fetches the WSDL to discover the service endpoint, target namespace and
// operation catalog; otherwise the base URL is used directly.
type SOAPAdapter struct {
	httpBase
	logger *log.Logger

	endpointURL     string
	targetNamespace string
	operations      map[string]wsdlOperation
}

func NewSOAPAdapter(cfg *core.ConnectorConfig, authMgr *auth.Manager) *SOAPAdapter {
	return &SOAPAdapter{
		httpBase:    newHTTPBase(cfg, authMgr),
		logger:      log.New(log.Writer(), "[SOAP] ", log.LstdFlags),
		endpointURL: cfg.BaseURL,
		operations:  make(map[string]wsdlOperation),
	}
}

func (a *SOAPAdapter) Open(ctx context.Context) error {
	if wsdlURL := settingString(a.cfg, "wsdl_url", ""); wsdlURL != "" {
		if err := a.loadWSDL(ctx, wsdlURL); err != nil {
			return err
		}
	}
	a.opened = true
	return nil
}

func (a *SOAPAdapter) Authenticate(ctx context.Context) error {
	return a.authenticate(ctx)
}

func (a *SOAPAdapter) Test(ctx context.Context) error {
	// Without a cheap standard ping, reaching the endpoint is the test.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpointURL, nil)
	if err != nil {
		return core.WrapError(core.KindConnection, "soap.test", "building probe", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return core.WrapError(core.KindConnection, "soap.test", "endpoint unreachable", err)
	}
	resp.Body.Close()
	return nil
}

func (a *SOAPAdapter) Execute(ctx context.Context, req *core.ConnectorRequest) (*core.ConnectorResponse, error) {
	requestID := uuid.NewString()
	start := time.Now()

	envelope, err := a.buildEnvelope(req)
	if err != nil {
		return nil, err
	}

	action := req.Meta("soap_action")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpointURL, bytes.NewReader(envelope))
	if err != nil {
		return nil, core.WrapError(core.KindProtocol, "soap.execute", "building request", err)
	}
	headers, _, err := a.applyAuth(req)
	if err != nil {
		return nil, err
	}
	setHeaders(httpReq, headers)
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", fmt.Sprintf("%q", action))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, core.WrapError(core.KindConnection, "soap.execute", "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, core.WrapError(core.KindConnection, "soap.execute", "reading response", err)
	}

	out := &core.ConnectorResponse{
		StatusCode:     resp.StatusCode,
		Success:        resp.StatusCode < 400,
		ResponseTimeMs: elapsedMs(start),
		RequestID:      requestID,
	}

	body, fault, err := parseSOAPBody(raw)
	if err != nil {
		return nil, core.WrapError(core.KindProtocol, "soap.execute", "parsing envelope", err)
	}
	if fault != nil {
		out.Success = false
		out.ErrorMessage = fmt.Sprintf("soap fault %s: %s", fault.Code, fault.String)
		out.Body = map[string]any{
			"faultcode":   fault.Code,
			"faultstring": fault.String,
			"detail":      fault.Detail,
		}
		return out, nil
	}
	out.Body = body
	if !out.Success && out.ErrorMessage == "" {
		out.ErrorMessage = fmt.Sprintf("upstream returned %d", resp.StatusCode)
	}
	return out, nil
}

func (a *SOAPAdapter) Close(_ context.Context) error {
	a.opened = false
	a.client.CloseIdleConnections()
	return nil
}

// Operations lists the operation names discovered from the WSDL, sorted.
func (a *SOAPAdapter) Operations() []string {
	names := make([]string, 0, len(a.operations))
	for name := range a.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ============================================================================
// ENVELOPE CONSTRUCTION
// ============================================================================

// buildEnvelope renders a SOAP 1.1 envelope for the request. The operation
// element lives in the target namespace; body fields come from the request
// body map in sorted key order so envelopes are reproducible.
func (a *SOAPAdapter) buildEnvelope(req *core.ConnectorRequest) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="` + soapEnvNS + `" xmlns:tns="` + xmlEscape(a.targetNamespace) + `">`)

	if header := a.securityHeader(); header != "" {
		buf.WriteString("<soap:Header>")
		buf.WriteString(header)
		buf.WriteString("</soap:Header>")
	}

	buf.WriteString("<soap:Body>")
	buf.WriteString("<tns:" + req.Operation + ">")
	if fields, ok := req.Body.(map[string]any); ok {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeXMLField(&buf, k, fields[k])
		}
	} else if req.Body != nil {
		return nil, core.NewError(core.KindProtocol, "soap.envelope",
			fmt.Sprintf("body must be a map, got %T", req.Body))
	}
	buf.WriteString("</tns:" + req.Operation + ">")
	buf.WriteString("</soap:Body></soap:Envelope>")
	return buf.Bytes(), nil
}

// securityHeader renders a WS-Security UsernameToken when the connector uses
// a custom token scheme with a username configured. Signing and encryption
// are not supported.
func (a *SOAPAdapter) securityHeader() string {
	if a.cfg.AuthScheme != core.AuthCustomToken {
		return ""
	}
	user, _ := a.cfg.AuthConfig["username"].(string)
	if user == "" {
		return ""
	}
	pass, _ := a.cfg.AuthConfig["password"].(string)
	return `<wsse:Security xmlns:wsse="` + wsseNS + `"><wsse:UsernameToken>` +
		`<wsse:Username>` + xmlEscape(user) + `</wsse:Username>` +
		`<wsse:Password>` + xmlEscape(pass) + `</wsse:Password>` +
		`</wsse:UsernameToken></wsse:Security>`
}

func writeXMLField(buf *bytes.Buffer, name string, value any) {
	switch v := value.(type) {
	case map[string]any:
		buf.WriteString("<" + name + ">")
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeXMLField(buf, k, v[k])
		}
		buf.WriteString("</" + name + ">")
	case []any:
		for _, item := range v {
			writeXMLField(buf, name, item)
		}
	case nil:
		buf.WriteString("<" + name + "/>")
	default:
		buf.WriteString("<" + name + ">" + xmlEscape(fmt.Sprintf("%v", v)) + "</" + name + ">")
	}
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// ============================================================================
// RESPONSE PARSING
// ============================================================================

type soapFault struct {
	Code   string
	String string
	Detail string
}

// parseSOAPBody parses an envelope generically: namespace prefixes are
// stripped and body children flattened into nested maps; repeated siblings
// collapse into slices. A Fault child is returned separately.
func parseSOAPBody(raw []byte) (map[string]any, *soapFault, error) {
	var envelope struct {
		Body struct {
			Inner []byte `xml:",innerxml"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(raw, &envelope); err != nil {
		return nil, nil, err
	}

	body, err := flattenXML(envelope.Body.Inner)
	if err != nil {
		return nil, nil, err
	}

	if f, ok := body["Fault"].(map[string]any); ok {
		fault := &soapFault{
			Code:   stringAt(f, "faultcode"),
			String: stringAt(f, "faultstring"),
			Detail: stringAt(f, "detail"),
		}
		return nil, fault, nil
	}
	return body, nil, nil
}

// flattenXML converts an XML fragment into nested maps keyed by local
// element names. Elements with only character data become strings.
func flattenXML(fragment []byte) (map[string]any, error) {
	dec := xml.NewDecoder(bytes.NewReader(fragment))
	root := map[string]any{}
	if err := flattenInto(dec, root, ""); err != nil && err != io.EOF {
		return nil, err
	}
	return root, nil
}

func flattenInto(dec *xml.Decoder, parent map[string]any, closing string) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			child := map[string]any{}
			var text strings.Builder
			if err := collectElement(dec, t.Name, child, &text); err != nil {
				return err
			}
			var value any
			if len(child) == 0 {
				value = strings.TrimSpace(text.String())
			} else {
				value = child
			}
			addChild(parent, name, value)
		case xml.EndElement:
			if t.Name.Local == closing {
				return nil
			}
		}
	}
}

func collectElement(dec *xml.Decoder, open xml.Name, into map[string]any, text *strings.Builder) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := map[string]any{}
			var childText strings.Builder
			if err := collectElement(dec, t.Name, child, &childText); err != nil {
				return err
			}
			var value any
			if len(child) == 0 {
				value = strings.TrimSpace(childText.String())
			} else {
				value = child
			}
			addChild(into, t.Name.Local, value)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if t.Name == open {
				return nil
			}
		}
	}
}

func addChild(parent map[string]any, name string, value any) {
	existing, ok := parent[name]
	if !ok {
		parent[name] = value
		return
	}
	if list, ok := existing.([]any); ok {
		parent[name] = append(list, value)
		return
	}
	parent[name] = []any{existing, value}
}

func stringAt(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	if v, ok := m[key].(map[string]any); ok {
		// detail elements may nest; render flatly
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// ============================================================================
// WSDL DISCOVERY
// ============================================================================

func (a *SOAPAdapter) loadWSDL(ctx context.Context, wsdlURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wsdlURL, nil)
	if err != nil {
		return core.WrapError(core.KindConfig, "soap.wsdl", "building wsdl request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return core.WrapError(core.KindConnection, "soap.wsdl", "fetching wsdl", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.NewError(core.KindConnection, "soap.wsdl",
			fmt.Sprintf("wsdl fetch returned %d", resp.StatusCode))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return core.WrapError(core.KindConnection, "soap.wsdl", "reading wsdl", err)
	}
	return a.parseWSDL(raw)
}

func (a *SOAPAdapter) parseWSDL(raw []byte) error {
	var doc struct {
		TargetNamespace string `xml:"targetNamespace,attr"`
		PortTypes       []struct {
			Operations []struct {
				Name   string `xml:"name,attr"`
				Input  struct{ Message string `xml:"message,attr"` } `xml:"input"`
				Output struct{ Message string `xml:"message,attr"` } `xml:"output"`
			} `xml:"operation"`
		} `xml:"portType"`
		Services []struct {
			Ports []struct {
				Addresses []struct {
					Location string `xml:"location,attr"`
				} `xml:"address"`
			} `xml:"port"`
		} `xml:"service"`
	}
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return core.WrapError(core.KindProtocol, "soap.wsdl", "parsing wsdl", err)
	}

	a.targetNamespace = doc.TargetNamespace
	for _, pt := range doc.PortTypes {
		for _, op := range pt.Operations {
			a.operations[op.Name] = wsdlOperation{
				Name:          op.Name,
				InputMessage:  op.Input.Message,
				OutputMessage: op.Output.Message,
			}
		}
	}
	for _, svc := range doc.Services {
		for _, port := range svc.Ports {
			for _, addr := range port.Addresses {
				if addr.Location != "" {
					a.endpointURL = addr.Location
				}
			}
		}
	}
	a.logger.Printf("wsdl loaded: %d operations, endpoint %s", len(a.operations), a.endpointURL)
	return nil
}

func settingString(cfg *core.ConnectorConfig, key, fallback string) string {
	if cfg.Settings == nil {
		return fallback
	}
	if v, ok := cfg.Settings[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
