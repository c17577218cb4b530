package paydo

import (
	"strconv"
)

// Two IPN schemas coexist on the wire. V1 is the legacy flat payload carrying
// a signed status; V2 nests invoice/transaction objects and only claims a
// state, which must be confirmed through the status query API.
type Version string

const (
	VersionV1 Version = "V1"
	VersionV2 Version = "V2"
)

// ValidationError is a classifier/verifier failure. The message doubles as
// the HTTP response body for invalid requests, so the legacy strings are
// part of the provider contract and must not change.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

const (
	ErrEmptyInvoiceID     ValidationError = "Empty invoice id"
	ErrEmptyOrderIDV1     ValidationError = "Empty order id V1"
	ErrEmptyTransactionID ValidationError = "Empty transaction id"
	ErrEmptyOrderIDV2     ValidationError = "Empty order id V2"
	ErrInvalidState       ValidationError = "State is not valid"
	ErrInvalidSignature   ValidationError = "Invalid signature"
	ErrUnknownStatus      ValidationError = "Unknown status"
)

// NotificationV1 is the legacy IPN: the status is trusted directly once the
// signature checks out.
type NotificationV1 struct {
	OrderID   string
	Status    string
	Signature string
}

type InvoiceRef struct {
	ID   string
	TxID string
}

type TransactionRef struct {
	OrderID string
	State   int
	TxID    string
}

// NotificationV2 claims a transaction state; the engine never trusts it for
// the transition itself, only as a reason to poll for confirmation.
type NotificationV2 struct {
	Invoice     InvoiceRef
	Transaction TransactionRef
	Signature   string
}

// Notification is the tagged union the classifier produces. Exactly one of
// V1/V2 is non-nil, matching Version.
type Notification struct {
	Version Version
	V1      *NotificationV1
	V2      *NotificationV2
}

// OrderID returns the order the notification is about, whatever the version.
func (n *Notification) OrderID() string {
	switch n.Version {
	case VersionV1:
		return n.V1.OrderID
	case VersionV2:
		return n.V2.Transaction.OrderID
	}
	return ""
}

// TxID returns the provider transaction id carried by the notification, or
// empty when the version does not carry one.
func (n *Notification) TxID() string {
	if n.Version != VersionV2 {
		return ""
	}
	if n.V2.Invoice.TxID != "" {
		return n.V2.Invoice.TxID
	}
	return n.V2.Transaction.TxID
}

// Classify determines the protocol version and shape of an untrusted inbound
// payload. It is pure: no lookups, no side effects. Signature verification
// for V1 happens later, once the order's amount and currency are known.
//
// The V2 state gate deliberately stays at [1,5] even though the status
// mapping knows about states 9 and 15; those are reachable only through the
// polling path.
func Classify(payload map[string]any) (*Notification, error) {
	invoiceID := nestedString(payload, "invoice", "id")
	if invoiceID == "" {
		sig := stringValue(payload["signature"])
		if sig == "" {
			return nil, ErrEmptyInvoiceID
		}
		orderID := stringValue(payload["orderId"])
		if orderID == "" {
			return nil, ErrEmptyOrderIDV1
		}
		return &Notification{
			Version: VersionV1,
			V1: &NotificationV1{
				OrderID:   orderID,
				Status:    stringValue(payload["status"]),
				Signature: sig,
			},
		}, nil
	}

	txid := nestedString(payload, "invoice", "txid")
	if txid == "" {
		return nil, ErrEmptyTransactionID
	}
	orderID := nestedString(payload, "transaction", "order", "id")
	if orderID == "" {
		return nil, ErrEmptyOrderIDV2
	}
	state := nestedInt(payload, "transaction", "state")
	if state < 1 || state > 5 {
		return nil, ErrInvalidState
	}

	return &Notification{
		Version: VersionV2,
		V2: &NotificationV2{
			Invoice: InvoiceRef{ID: invoiceID, TxID: txid},
			Transaction: TransactionRef{
				OrderID: orderID,
				State:   state,
				TxID:    nestedString(payload, "transaction", "txid"),
			},
			Signature: stringValue(payload["signature"]),
		},
	}, nil
}

// stringValue renders scalar payload values as strings. JSON numbers arrive
// as float64, query parameters as strings; order ids come both ways.
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func intValue(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func nestedMap(payload map[string]any, keys ...string) map[string]any {
	m := payload
	for _, k := range keys {
		next, ok := m[k].(map[string]any)
		if !ok {
			return nil
		}
		m = next
	}
	return m
}

func nestedString(payload map[string]any, keys ...string) string {
	m := nestedMap(payload, keys[:len(keys)-1]...)
	if m == nil {
		return ""
	}
	return stringValue(m[keys[len(keys)-1]])
}

func nestedInt(payload map[string]any, keys ...string) int {
	m := nestedMap(payload, keys[:len(keys)-1]...)
	if m == nil {
		return 0
	}
	return intValue(m[keys[len(keys)-1]])
}
