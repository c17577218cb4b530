package paydo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/paydohq/reconciler/pkg/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// identifierHeader carries the invoice id on invoice-create responses.
const identifierHeader = "identifier"

const defaultTimeout = 30 * time.Second

// FetchError is any failure to obtain an authoritative status: transport
// errors, non-200 responses, malformed bodies and explicit isSuccess:false
// all collapse into it. A fetch is never partially successful.
type FetchError struct {
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status fetch failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("status fetch failed: %s", e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusReport is the authoritative view of a transaction pulled from the
// provider's query API. NumericCode is nil when the reported status text is
// unrecognized.
type StatusReport struct {
	RawStatus   string
	NumericCode *int
	RawPayload  map[string]any
}

// Client talks to the provider API: invoice creation (seeds the order's
// invoice id) and transaction status queries (pull confirmation).
type Client struct {
	http *resty.Client
	log  *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	r := resty.New().
		SetBaseURL(cfg.Paydo.APIBaseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.Paydo.APIToken)
	return &Client{http: r, log: log}
}

// GetTransaction pulls the status of a transaction by id. Safe to call
// repeatedly for the same txid; it keeps no local state.
func (c *Client) GetTransaction(ctx context.Context, txid string) (*StatusReport, error) {
	if txid == "" {
		return nil, &FetchError{Reason: "empty transaction id"}
	}

	resp, err := c.http.R().SetContext(ctx).Get("/v1/transactions/" + url.PathEscape(txid))
	if err != nil {
		return nil, &FetchError{Reason: "request failed", Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &FetchError{Reason: fmt.Sprintf("unexpected response code %d", resp.StatusCode())}
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body == nil {
		return nil, &FetchError{Reason: "response body is not an object", Err: err}
	}
	if ok, present := body["isSuccess"].(bool); present && !ok {
		return nil, &FetchError{Reason: "provider reported isSuccess=false"}
	}

	data, _ := body["data"].(map[string]any)
	if data == nil {
		data = body
	}

	report := &StatusReport{
		RawStatus:  stringValue(data["status"]),
		RawPayload: body,
	}
	if state := intValue(data["state"]); state != 0 {
		report.NumericCode = &state
	} else if code, ok := StateFromStatus(report.RawStatus); ok {
		report.NumericCode = &code
	}
	return report, nil
}

type InvoiceItem struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

type InvoiceOrder struct {
	ID          string        `json:"id"`
	Amount      string        `json:"amount"`
	Currency    string        `json:"currency"`
	Description string        `json:"description"`
	Items       []InvoiceItem `json:"items"`
}

type InvoicePayer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type InvoiceRequest struct {
	PublicKey  string       `json:"publicKey"`
	Order      InvoiceOrder `json:"order"`
	Payer      InvoicePayer `json:"payer"`
	Language   string       `json:"language"`
	Lifetime   int          `json:"lifetime,omitempty"`
	ProductURL string       `json:"productUrl"`
	ResultURL  string       `json:"resultUrl"`
	FailPath   string       `json:"failPath"`
	Signature  string       `json:"signature"`
}

// CreateInvoice obtains a provider invoice id for the order. The id arrives
// in the "identifier" response header; older API deployments return it as a
// bare JSON string body instead. Validation failures come back as a
// "messages" field.
func (c *Client) CreateInvoice(ctx context.Context, req *InvoiceRequest) (string, []byte, error) {
	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("/v1/invoices/create")
	if err != nil {
		return "", nil, fmt.Errorf("invoice create request failed: %w", err)
	}

	if id := resp.Header().Get(identifierHeader); id != "" {
		return id, resp.Body(), nil
	}

	var asMessages struct {
		Messages any `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body(), &asMessages); err == nil && asMessages.Messages != nil {
		return "", resp.Body(), fmt.Errorf("invoice create rejected: %v", asMessages.Messages)
	}

	var asString string
	if err := json.Unmarshal(resp.Body(), &asString); err == nil && asString != "" {
		return asString, resp.Body(), nil
	}

	return "", resp.Body(), fmt.Errorf("invoice create returned no identifier (code %d)", resp.StatusCode())
}
