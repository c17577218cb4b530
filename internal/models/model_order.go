package models

import (
	"time"

	"github.com/paydohq/reconciler/pkg/types"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// TerminalStatuses are statuses the engine never transitions out of.
var TerminalStatuses = []OrderStatus{
	OrderStatusCompleted,
	OrderStatusFailed,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// AwaitingStatuses are the statuses an unconfirmed order parks in.
var AwaitingStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusOnHold,
}

func (s OrderStatus) Terminal() bool {
	return lo.Contains(TerminalStatuses, s)
}

func (s OrderStatus) Awaiting() bool {
	return lo.Contains(AwaitingStatuses, s)
}

// Order is the payment-relevant projection of an order owned by the external
// order-management system. The reconciliation engine governs every write to
// the payment fields below; total and currency are immutable after creation,
// invoice_id and txid are write-once.
type Order struct {
	ID            string               `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Status        OrderStatus          `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Total         decimal.Decimal      `gorm:"column:total;type:numeric(18,4);not null" json:"total"`
	Currency      string               `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	PaymentMethod types.PaymentGateway `gorm:"column:payment_method;type:varchar(64);not null" json:"payment_method"`

	// InvoiceID is issued by the provider when the payment form is requested.
	InvoiceID string `gorm:"column:invoice_id;type:varchar(128);index" json:"invoice_id"`
	// TxID is learned from the first IPN or poll for the order.
	TxID string `gorm:"column:txid;type:varchar(128);index" json:"txid"`
	// SubMethod is the provider rail picked by the customer at checkout.
	SubMethod string `gorm:"column:sub_method;type:varchar(64)" json:"sub_method"`

	PaidAt *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`

	BillingEmail string `gorm:"column:billing_email;type:varchar(256)" json:"billing_email"`
	BillingName  string `gorm:"column:billing_name;type:varchar(256)" json:"billing_name"`
	BillingPhone string `gorm:"column:billing_phone;type:varchar(64)" json:"billing_phone"`

	// ReceivedURL is the customer-facing order-received page; browser
	// redirects land there regardless of payment outcome.
	ReceivedURL string `gorm:"column:received_url;type:text" json:"received_url"`
	CancelURL   string `gorm:"column:cancel_url;type:text" json:"cancel_url"`

	// InvoiceResponse caches the provider's invoice-create response so the
	// payment form is never requested twice for the same order.
	InvoiceResponse datatypes.JSON `gorm:"column:invoice_response;type:jsonb" json:"invoice_response"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Paid reports whether payment-complete already fired for this order.
func (o *Order) Paid() bool {
	return o != nil && o.PaidAt != nil && !o.PaidAt.IsZero()
}

// Amount returns the order total formatted the way signature material and
// invoice requests require: fixed four decimal places.
func (o *Order) Amount() string {
	return o.Total.StringFixed(4)
}
