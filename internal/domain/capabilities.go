// Package domain defines the capability interfaces vertical integrations
// program against, plus the Nigerian tax arithmetic shared by banking,
// payment and forex flows. A banking integration is a value that provides
// the Connector capability and the Banking capability; callers depend on the
// narrow capability only.
package domain

import (
	"context"

	"github.com/nairaflow/connect/internal/core"
)

// Connector is the base capability every integration provides. The runtime
// in internal/connector satisfies it.
type Connector interface {
	ID() string
	Execute(ctx context.Context, req *core.ConnectorRequest) (*core.ConnectorResponse, error)
	TestConnection(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// CRUD is the resource-oriented capability REST-style integrations provide.
type CRUD interface {
	Create(ctx context.Context, resource string, data any) (*core.ConnectorResponse, error)
	Read(ctx context.Context, resource, id string) (*core.ConnectorResponse, error)
	Update(ctx context.Context, resource, id string, data any) (*core.ConnectorResponse, error)
	Delete(ctx context.Context, resource, id string) (*core.ConnectorResponse, error)
	List(ctx context.Context, resource string, query map[string]string) (*core.ConnectorResponse, error)
}

// Banking reads account state and transaction feeds from bank aggregators.
type Banking interface {
	Connector

	Accounts(ctx context.Context) ([]map[string]any, error)
	Transactions(ctx context.Context, accountID string, from, to string) ([]core.BankTransaction, error)
	Balance(ctx context.Context, accountID string) (*core.Transaction, error)
}

// Payment drives payment processors.
type Payment interface {
	Connector

	InitiatePayment(ctx context.Context, tx *core.PaymentTransaction) (*core.ConnectorResponse, error)
	VerifyPayment(ctx context.Context, reference string) (*core.PaymentTransaction, error)
	ListTransactions(ctx context.Context, query map[string]string) ([]core.PaymentTransaction, error)
}

// Forex reads exchange rates and executes FX transactions under the CBN
// regulatory forms.
type Forex interface {
	Connector

	Rates(ctx context.Context, base string) (map[string]float64, error)
	Convert(ctx context.Context, tx *core.ForexTransaction) (*core.ConnectorResponse, error)
}

// ERP covers document-oriented back-office systems.
type ERP interface {
	Connector
	CRUD

	PostInvoice(ctx context.Context, invoice map[string]any) (*core.ConnectorResponse, error)
}

// CRM covers customer-relationship systems.
type CRM interface {
	Connector
	CRUD
}

// Accounting covers ledger systems with invoice push and reconciliation.
type Accounting interface {
	Connector
	CRUD

	PushInvoice(ctx context.Context, invoice map[string]any) (*core.ConnectorResponse, error)
	FetchPayments(ctx context.Context, since string) (*core.ConnectorResponse, error)
}

// Inventory covers stock-level systems (POS, e-commerce).
type Inventory interface {
	Connector
	CRUD

	StockLevels(ctx context.Context, location string) (*core.ConnectorResponse, error)
}
