package protocol

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nairaflow/connect/internal/core"
)

func restConfig(baseURL string) *core.ConnectorConfig {
	return &core.ConnectorConfig{
		ConnectorID: "test-rest",
		Protocol:    core.ProtocolREST,
		AuthScheme:  core.AuthNone,
		BaseURL:     baseURL,
		Endpoints:   map[string]string{"invoices": "/api/v1/invoices"},
		DataFormat:  core.FormatJSON,
	}
}

func TestRegistryCoversAllProtocols(t *testing.T) {
	for _, p := range []core.Protocol{
		core.ProtocolREST, core.ProtocolSOAP, core.ProtocolGraphQL,
		core.ProtocolOData, core.ProtocolJSONRPC, core.ProtocolXMLRPC,
	} {
		cfg := restConfig("http://example.invalid")
		cfg.Protocol = p
		a, err := New(cfg, nil)
		require.NoError(t, err, p.String())
		require.NotNil(t, a)
	}
}

func TestRESTExecute_JSONRoundTrip(t *testing.T) {
	var gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "inv-1", "total": 125.5})
	}))
	defer srv.Close()

	a := NewRESTAdapter(restConfig(srv.URL), nil)
	require.NoError(t, a.Open(context.Background()))

	resp, err := a.Execute(context.Background(), &core.ConnectorRequest{
		Operation: "create",
		Endpoint:  "invoices",
		Method:    http.MethodPost,
		Body:      map[string]any{"customer": "Dangote Cement", "total": 125.5},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Dangote Cement", gotBody["customer"])

	body := resp.Body.(map[string]any)
	assert.Equal(t, "inv-1", body["id"])
	assert.NotEmpty(t, resp.RequestID)
}

func TestRESTExecute_UpstreamErrorDoesNotRaise(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewRESTAdapter(restConfig(srv.URL), nil)
	resp, err := a.Execute(context.Background(), &core.ConnectorRequest{
		Operation: "read",
		Endpoint:  "/missing",
		Method:    http.MethodGet,
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.ErrorMessage, "404")
}

func TestRESTExecute_FormEncoding(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.FormValue("account")
	}))
	defer srv.Close()

	cfg := restConfig(srv.URL)
	cfg.DataFormat = core.FormatForm
	a := NewRESTAdapter(cfg, nil)
	resp, err := a.Execute(context.Background(), &core.ConnectorRequest{
		Operation: "submit",
		Method:    http.MethodPost,
		Body:      map[string]string{"account": "0123456789"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "0123456789", got)
}

func TestRESTExecute_QueryMerging(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
	}))
	defer srv.Close()

	a := NewRESTAdapter(restConfig(srv.URL), nil)
	_, err := a.Execute(context.Background(), &core.ConnectorRequest{
		Operation: "list",
		Method:    http.MethodGet,
		Query:     map[string]string{"page": "2", "status": "paid"},
	})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "page=2")
	assert.Contains(t, gotQuery, "status=paid")
}

// ============================================================================
// ODATA
// ============================================================================

func TestODataQueryOptions_CanonicalComposition(t *testing.T) {
	opts := queryOptionsFromMetadata(map[string]any{
		"$filter": "Status eq 'Paid'",
		"$select": "Id,Total",
		"$top":    "10",
		"$skip":   "20",
	})
	assert.Equal(t, "$filter=Status%20eq%20%27Paid%27&$select=Id,Total&$top=10&$skip=20", opts)
}

func TestODataGetEntitySet_WireURL(t *testing.T) {
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	}))
	defer srv.Close()

	cfg := restConfig(srv.URL)
	cfg.Protocol = core.ProtocolOData
	a := NewODataAdapter(cfg, nil)

	resp, err := a.GetEntitySet(context.Background(), "Invoices",
		map[string]any{"Status": "Paid"}, []string{"Id", "Total"}, 10, 20)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "/Invoices?$filter=Status%20eq%20%27Paid%27&$select=Id,Total&$top=10&$skip=20", gotURI)
}

func TestODataUnwrap_V2AndV4(t *testing.T) {
	payload := func(body map[string]any) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(body)
		}))
	}

	srv4 := payload(map[string]any{"value": []any{map[string]any{"Id": "1"}}})
	defer srv4.Close()
	cfg := restConfig(srv4.URL)
	cfg.Protocol = core.ProtocolOData
	a4 := NewODataAdapter(cfg, nil)
	resp, err := a4.Execute(context.Background(), &core.ConnectorRequest{Endpoint: "/Invoices", Method: http.MethodGet})
	require.NoError(t, err)
	list, ok := resp.Body.([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	srv2 := payload(map[string]any{"d": map[string]any{"Id": "7"}})
	defer srv2.Close()
	cfg2 := restConfig(srv2.URL)
	cfg2.Protocol = core.ProtocolOData
	cfg2.Settings = map[string]any{"odata_version": 2}
	a2 := NewODataAdapter(cfg2, nil)
	resp, err = a2.Execute(context.Background(), &core.ConnectorRequest{Endpoint: "/Invoices('7')", Method: http.MethodGet})
	require.NoError(t, err)
	entity := resp.Body.(map[string]any)
	assert.Equal(t, "7", entity["Id"])
}

func TestODataCSRFDance(t *testing.T) {
	const token = "csrf-abc123"
	var fetches, echoes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.Header.Get("X-CSRF-Token") == "Fetch" {
			fetches++
			w.Header().Set("X-CSRF-Token", token)
			return
		}
		if r.Method == http.MethodPost {
			if r.Header.Get("X-CSRF-Token") == token {
				echoes++
				w.WriteHeader(http.StatusCreated)
				return
			}
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}))
	defer srv.Close()

	cfg := restConfig(srv.URL)
	cfg.Protocol = core.ProtocolOData
	a := NewODataAdapter(cfg, nil)

	for i := 0; i < 2; i++ {
		resp, err := a.CreateEntity(context.Background(), "Invoices", map[string]any{"Total": 100})
		require.NoError(t, err)
		assert.True(t, resp.Success)
	}
	assert.Equal(t, 1, fetches, "token is fetched once and cached")
	assert.Equal(t, 2, echoes)
}

func TestODataErrorMessages(t *testing.T) {
	v2 := map[string]any{"error": map[string]any{"message": map[string]any{"value": "bad v2"}}}
	v4 := map[string]any{"error": map[string]any{"message": "bad v4"}}
	assert.Equal(t, "bad v2", odataErrorMessage(v2))
	assert.Equal(t, "bad v4", odataErrorMessage(v4))
}

// ============================================================================
// GRAPHQL
// ============================================================================

func TestGraphQLErrorsReportedAsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": nil,
			"errors": []any{
				map[string]any{"message": "field not found"},
				map[string]any{"message": "rate exceeded"},
			},
		})
	}))
	defer srv.Close()

	cfg := restConfig(srv.URL)
	cfg.Protocol = core.ProtocolGraphQL
	a := NewGraphQLAdapter(cfg, nil)
	resp, err := a.Execute(context.Background(), &core.ConnectorRequest{
		Operation: "query",
		Body:      "query { orders { id } }",
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "field not found; rate exceeded", resp.ErrorMessage)
}

func TestGraphQLPayloadShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"ok": true}})
	}))
	defer srv.Close()

	cfg := restConfig(srv.URL)
	cfg.Protocol = core.ProtocolGraphQL
	a := NewGraphQLAdapter(cfg, nil)
	resp, err := a.Execute(context.Background(), &core.ConnectorRequest{
		Operation: "query",
		Body:      "query GetOrders($after: String) { orders(after: $after) { id } }",
		Metadata: map[string]any{
			"variables":      map[string]any{"after": "cursor-9"},
			"operation_name": "GetOrders",
		},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, got["query"], "GetOrders")
	assert.Equal(t, "GetOrders", got["operationName"])
	vars := got["variables"].(map[string]any)
	assert.Equal(t, "cursor-9", vars["after"])
}

// ============================================================================
// SOAP
// ============================================================================

func TestSOAPEnvelopeAndFault(t *testing.T) {
	var gotAction, gotBody string
	fault := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.Header.Get("SOAPAction")
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		if fault {
			w.Write([]byte(`<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>soap:Server</faultcode>
      <faultstring>ledger unavailable</faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`))
			return
		}
		w.Write([]byte(`<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ns1:GetInvoiceResponse xmlns:ns1="urn:billing">
      <ns1:InvoiceId>INV-42</ns1:InvoiceId>
      <ns1:Total>1500</ns1:Total>
    </ns1:GetInvoiceResponse>
  </soap:Body>
</soap:Envelope>`))
	}))
	defer srv.Close()

	cfg := restConfig(srv.URL)
	cfg.Protocol = core.ProtocolSOAP
	a := NewSOAPAdapter(cfg, nil)
	require.NoError(t, a.Open(context.Background()))

	resp, err := a.Execute(context.Background(), &core.ConnectorRequest{
		Operation: "GetInvoice",
		Body:      map[string]any{"InvoiceId": "INV-42"},
		Metadata:  map[string]any{"soap_action": "urn:billing#GetInvoice"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, `"urn:billing#GetInvoice"`, gotAction)
	assert.Contains(t, gotBody, "<tns:GetInvoice>")
	assert.Contains(t, gotBody, "<InvoiceId>INV-42</InvoiceId>")

	body := resp.Body.(map[string]any)
	inner := body["GetInvoiceResponse"].(map[string]any)
	assert.Equal(t, "INV-42", inner["InvoiceId"])
	assert.Equal(t, "1500", inner["Total"])

	fault = true
	resp, err = a.Execute(context.Background(), &core.ConnectorRequest{Operation: "GetInvoice"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "ledger unavailable")
}

func TestSOAPSecurityHeader(t *testing.T) {
	cfg := restConfig("http://example.invalid")
	cfg.Protocol = core.ProtocolSOAP
	cfg.AuthScheme = core.AuthCustomToken
	cfg.AuthConfig = map[string]any{"username": "sapuser", "password": "sappass", "token": "t"}
	a := NewSOAPAdapter(cfg, nil)

	envelope, err := a.buildEnvelope(&core.ConnectorRequest{Operation: "Ping"})
	require.NoError(t, err)
	s := string(envelope)
	assert.Contains(t, s, "<wsse:UsernameToken>")
	assert.Contains(t, s, "<wsse:Username>sapuser</wsse:Username>")
	assert.Contains(t, s, "<wsse:Password>sappass</wsse:Password>")
}

func TestSOAPWSDLParsing(t *testing.T) {
	wsdl := []byte(`<?xml version="1.0"?>
<definitions xmlns="http://schemas.xmlsoap.org/wsdl/"
             xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/"
             targetNamespace="urn:billing">
  <portType name="BillingPort">
    <operation name="GetInvoice">
      <input message="tns:GetInvoiceRequest"/>
      <output message="tns:GetInvoiceResponse"/>
    </operation>
    <operation name="ListInvoices">
      <input message="tns:ListInvoicesRequest"/>
      <output message="tns:ListInvoicesResponse"/>
    </operation>
  </portType>
  <service name="BillingService">
    <port name="BillingPort" binding="tns:BillingBinding">
      <soap:address location="https://erp.example.com/soap/billing"/>
    </port>
  </service>
</definitions>`)

	cfg := restConfig("http://example.invalid")
	cfg.Protocol = core.ProtocolSOAP
	a := NewSOAPAdapter(cfg, nil)
	require.NoError(t, a.parseWSDL(wsdl))

	assert.Equal(t, "urn:billing", a.targetNamespace)
	assert.Equal(t, "https://erp.example.com/soap/billing", a.endpointURL)
	assert.Equal(t, []string{"GetInvoice", "ListInvoices"}, a.Operations())
}

// ============================================================================
// JSON-RPC / XML-RPC
// ============================================================================

func TestJSONRPCExecute(t *testing.T) {
	var ids []float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call map[string]any
		json.NewDecoder(r.Body).Decode(&call)
		ids = append(ids, call["id"].(float64))
		w.Header().Set("Content-Type", "application/json")

		if call["method"] == "ledger.close" {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": call["id"],
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": call["id"],
			"result": map[string]any{"balance": 4200},
		})
	}))
	defer srv.Close()

	cfg := restConfig(srv.URL)
	cfg.Protocol = core.ProtocolJSONRPC
	a := NewJSONRPCAdapter(cfg, nil)

	resp, err := a.Execute(context.Background(), &core.ConnectorRequest{
		Operation: "account.balance",
		Body:      []any{"0123456789"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	result := resp.Body.(map[string]any)
	assert.Equal(t, float64(4200), result["balance"])

	resp, err = a.Execute(context.Background(), &core.ConnectorRequest{Operation: "ledger.close"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "method not found")

	require.Len(t, ids, 2)
	assert.Greater(t, ids[1], ids[0], "ids increase monotonically")
}

func TestXMLRPCValueRoundTrip(t *testing.T) {
	values := []any{
		"naira transfer",
		42,
		3.5,
		true,
		false,
		[]any{1, 2, 3},
		map[string]any{"account": "0123456789", "amount": 50000, "verified": true},
		map[string]any{"nested": []any{map[string]any{"k": "v"}}},
	}

	for _, v := range values {
		doc, err := buildMethodCall("echo", []any{v})
		require.NoError(t, err)

		// A methodCall and a methodResponse share the params>param>value
		// shape, so the parser round-trips our own encoding.
		decoded, fault, err := parseMethodResponse(doc)
		require.NoError(t, err)
		require.Nil(t, fault)
		assert.Equal(t, v, decoded)
	}
}

func TestXMLRPCFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<?xml version="1.0"?>
<methodResponse>
  <fault>
    <value><struct>
      <member><name>faultCode</name><value><int>201</int></value></member>
      <member><name>faultString</name><value><string>unknown ledger</string></value></member>
    </struct></value>
  </fault>
</methodResponse>`))
	}))
	defer srv.Close()

	cfg := restConfig(srv.URL)
	cfg.Protocol = core.ProtocolXMLRPC
	a := NewXMLRPCAdapter(cfg, nil)
	resp, err := a.Execute(context.Background(), &core.ConnectorRequest{Operation: "ledger.read"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "201")
	assert.Contains(t, resp.ErrorMessage, "unknown ledger")
}
