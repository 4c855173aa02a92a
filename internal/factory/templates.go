package factory

import (
	"time"

	"github.com/nairaflow/connect/internal/core"
)

// SeedBuiltins registers the built-in template catalog: the accounting,
// ERP, CRM, payment, banking, forex and government systems Nigerian
// invoicing platforms most commonly integrate with.
func (f *Factory) SeedBuiltins() {
	for _, t := range builtinTemplates() {
		f.RegisterTemplate(t)
	}
}

func builtinTemplates() []*Template {
	jsonHeaders := map[string]string{"Accept": "application/json"}

	return []*Template{
		{
			ID:          "quickbooks_online",
			Name:        "QuickBooks Online",
			Description: "Intuit QuickBooks Online accounting API.",
			Kind:        core.KindAccounting,
			Protocol:    core.ProtocolREST,
			AuthScheme:  core.AuthOAuth2,
			BaseURL:     "https://quickbooks.api.intuit.com/v3",
			Endpoints: map[string]string{
				"invoices":  "/company/{realm_id}/invoice",
				"customers": "/company/{realm_id}/customer",
				"payments":  "/company/{realm_id}/payment",
			},
			DefaultHeaders:     jsonHeaders,
			RequiredFields:     []string{"client_id", "client_secret", "token_url"},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 500,
			BatchSize:          30,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "xero",
			Name:        "Xero",
			Description: "Xero accounting API.",
			Kind:        core.KindAccounting,
			Protocol:    core.ProtocolREST,
			AuthScheme:  core.AuthOAuth2,
			BaseURL:     "https://api.xero.com/api.xro/2.0",
			Endpoints: map[string]string{
				"invoices": "/Invoices",
				"contacts": "/Contacts",
				"payments": "/Payments",
			},
			DefaultHeaders:     jsonHeaders,
			RequiredFields:     []string{"client_id", "client_secret", "token_url"},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 60,
			BatchSize:          50,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "sage_business_cloud",
			Name:        "Sage Business Cloud",
			Description: "Sage Business Cloud accounting API.",
			Kind:        core.KindAccounting,
			Protocol:    core.ProtocolREST,
			AuthScheme:  core.AuthOAuth2,
			BaseURL:     "https://api.accounting.sage.com/v3.1",
			Endpoints: map[string]string{
				"invoices":  "/sales_invoices",
				"contacts":  "/contacts",
				"purchases": "/purchase_invoices",
			},
			DefaultHeaders:     jsonHeaders,
			RequiredFields:     []string{"client_id", "client_secret", "token_url"},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 120,
			BatchSize:          25,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "sap_s4hana",
			Name:        "SAP S/4HANA",
			Description: "SAP S/4HANA OData v2 gateway with CSRF protection.",
			Kind:        core.KindERP,
			Protocol:    core.ProtocolOData,
			AuthScheme:  core.AuthBasic,
			Endpoints: map[string]string{
				"invoices":   "/API_BILLING_DOCUMENT_SRV/A_BillingDocument",
				"customers":  "/API_BUSINESS_PARTNER/A_BusinessPartner",
				"sales_docs": "/API_SALES_ORDER_SRV/A_SalesOrder",
			},
			DefaultHeaders:     jsonHeaders,
			RequiredFields:     []string{"base_url", "username", "password"},
			DefaultSettings:    map[string]any{"odata_version": 2, "csrf_protection": true},
			Timeout:            60 * time.Second,
			RateLimitPerMinute: 100,
			BatchSize:          20,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "salesforce",
			Name:        "Salesforce",
			Description: "Salesforce CRM REST API.",
			Kind:        core.KindCRM,
			Protocol:    core.ProtocolREST,
			AuthScheme:  core.AuthOAuth2,
			Endpoints: map[string]string{
				"accounts":      "/services/data/v59.0/sobjects/Account",
				"opportunities": "/services/data/v59.0/sobjects/Opportunity",
				"query":         "/services/data/v59.0/query",
			},
			DefaultHeaders:     jsonHeaders,
			RequiredFields:     []string{"base_url", "client_id", "client_secret", "token_url"},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 1000,
			BatchSize:          200,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "dynamics_365",
			Name:        "Microsoft Dynamics 365",
			Description: "Dynamics 365 Business Central OData v4 API.",
			Kind:        core.KindERP,
			Protocol:    core.ProtocolOData,
			AuthScheme:  core.AuthOAuth2,
			Endpoints: map[string]string{
				"invoices":  "/salesInvoices",
				"customers": "/customers",
				"items":     "/items",
			},
			DefaultHeaders:     jsonHeaders,
			RequiredFields:     []string{"base_url", "client_id", "client_secret", "token_url"},
			DefaultSettings:    map[string]any{"odata_version": 4},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 300,
			BatchSize:          100,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "zoho_books",
			Name:        "Zoho Books",
			Description: "Zoho Books accounting API.",
			Kind:        core.KindAccounting,
			Protocol:    core.ProtocolREST,
			AuthScheme:  core.AuthOAuth2,
			BaseURL:     "https://www.zohoapis.com/books/v3",
			Endpoints: map[string]string{
				"invoices":  "/invoices",
				"contacts":  "/contacts",
				"estimates": "/estimates",
			},
			DefaultHeaders:     jsonHeaders,
			RequiredFields:     []string{"client_id", "client_secret", "token_url"},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 100,
			BatchSize:          25,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "netsuite",
			Name:        "Oracle NetSuite",
			Description: "NetSuite SuiteTalk SOAP web services.",
			Kind:        core.KindERP,
			Protocol:    core.ProtocolSOAP,
			AuthScheme:  core.AuthCustomToken,
			Endpoints:   map[string]string{},
			RequiredFields: []string{
				"base_url", "token", "username",
			},
			DefaultSettings:    map[string]any{"soap_version": "1.1"},
			Timeout:            60 * time.Second,
			RateLimitPerMinute: 60,
			BatchSize:          25,
			DataFormat:         core.FormatXML,
			SSLVerify:          true,
		},
		{
			ID:          "odoo",
			Name:        "Odoo",
			Description: "Odoo external XML-RPC API.",
			Kind:        core.KindERP,
			Protocol:    core.ProtocolXMLRPC,
			AuthScheme:  core.AuthBasic,
			Endpoints: map[string]string{
				"common": "/xmlrpc/2/common",
				"object": "/xmlrpc/2/object",
			},
			RequiredFields:     []string{"base_url", "username", "password"},
			DefaultSettings:    map[string]any{"database": ""},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 120,
			BatchSize:          50,
			DataFormat:         core.FormatXML,
			SSLVerify:          true,
		},
		{
			ID:          "shopify",
			Name:        "Shopify",
			Description: "Shopify Admin GraphQL API.",
			Kind:        core.KindEcommerce,
			Protocol:    core.ProtocolGraphQL,
			AuthScheme:  core.AuthCustomToken,
			Endpoints: map[string]string{
				"graphql": "/admin/api/2024-01/graphql.json",
			},
			RequiredFields: []string{"base_url", "token"},
			DefaultSettings: map[string]any{
				"introspection": false,
			},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 120,
			BatchSize:          50,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "paystack",
			Name:        "Paystack",
			Description: "Paystack payments API.",
			Kind:        core.KindPayment,
			Protocol:    core.ProtocolREST,
			AuthScheme:  core.AuthAPIKey,
			BaseURL:     "https://api.paystack.co",
			Endpoints: map[string]string{
				"transactions": "/transaction",
				"customers":    "/customer",
				"transfers":    "/transfer",
				"banks":        "/bank",
			},
			DefaultHeaders: jsonHeaders,
			RequiredFields: []string{"api_key"},
			DefaultSettings: map[string]any{
				"currency": "NGN",
			},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 600,
			BatchSize:          100,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "flutterwave",
			Name:        "Flutterwave",
			Description: "Flutterwave payments API.",
			Kind:        core.KindPayment,
			Protocol:    core.ProtocolREST,
			AuthScheme:  core.AuthAPIKey,
			BaseURL:     "https://api.flutterwave.com/v3",
			Endpoints: map[string]string{
				"transactions": "/transactions",
				"transfers":    "/transfers",
				"banks":        "/banks/NG",
			},
			DefaultHeaders:     jsonHeaders,
			RequiredFields:     []string{"api_key"},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 300,
			BatchSize:          100,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "mono",
			Name:        "Mono",
			Description: "Mono open-banking API for Nigerian bank accounts.",
			Kind:        core.KindBanking,
			Protocol:    core.ProtocolREST,
			AuthScheme:  core.AuthAPIKey,
			BaseURL:     "https://api.withmono.com/v2",
			Endpoints: map[string]string{
				"accounts":     "/accounts",
				"transactions": "/accounts/{account_id}/transactions",
				"statements":   "/accounts/{account_id}/statement",
			},
			DefaultHeaders: jsonHeaders,
			RequiredFields: []string{"api_key"},
			DefaultSettings: map[string]any{
				"header_name": "mono-sec-key",
			},
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 100,
			BatchSize:          50,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "cbn_forex",
			Name:        "CBN Exchange Rates",
			Description: "Central Bank of Nigeria published exchange rates.",
			Kind:        core.KindForex,
			Protocol:    core.ProtocolREST,
			AuthScheme:  core.AuthNone,
			BaseURL:     "https://www.cbn.gov.ng/api",
			Endpoints: map[string]string{
				"rates": "/GetExchangeRate",
			},
			DefaultHeaders:     jsonHeaders,
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 30,
			BatchSize:          10,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
		{
			ID:          "firs_einvoice",
			Name:        "FIRS e-Invoice",
			Description: "Federal Inland Revenue Service e-invoicing gateway.",
			Kind:        core.KindGovernment,
			Protocol:    core.ProtocolREST,
			AuthScheme:  core.AuthCustomToken,
			Endpoints: map[string]string{
				"submit":   "/api/v1/invoice/submit",
				"validate": "/api/v1/invoice/validate",
				"status":   "/api/v1/invoice/{irn}/status",
			},
			DefaultHeaders: jsonHeaders,
			RequiredFields: []string{"base_url", "token"},
			DefaultSettings: map[string]any{
				"environment": "sandbox",
			},
			Timeout:            60 * time.Second,
			RateLimitPerMinute: 60,
			BatchSize:          20,
			DataFormat:         core.FormatJSON,
			SSLVerify:          true,
		},
	}
}
