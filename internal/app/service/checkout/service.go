package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/paydohq/reconciler/internal/app/service/order"
	"github.com/paydohq/reconciler/internal/models"
	"github.com/paydohq/reconciler/internal/platform/paydo"
	"github.com/paydohq/reconciler/pkg/config"
	"github.com/paydohq/reconciler/pkg/logctx"
	"github.com/paydohq/reconciler/pkg/types"

	"go.uber.org/zap"
)

var (
	// ErrNotPayable covers orders payment is disabled for: failed orders
	// (the customer must not retry a dead order) and other terminal states.
	ErrNotPayable = errors.New("payment is not available for this order")
	// ErrUnknownSubMethod means the requested payment rail is not enabled.
	ErrUnknownSubMethod = errors.New("unknown payment method variant")
)

// InvoiceCreator is the slice of the provider client checkout needs.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, req *paydo.InvoiceRequest) (string, []byte, error)
}

// Service requests the hosted payment form for an order. The provider
// invoice id it obtains is the order's write-once invoiceId; a second Begin
// for the same order reuses the stored invoice instead of creating another.
type Service struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	orders *order.Service
	client InvoiceCreator
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, orders *order.Service, client *paydo.Client) *Service {
	return &Service{cfg: cfg, log: log, orders: orders, client: client}
}

type BeginResult struct {
	RedirectURL string `json:"redirect_url"`
	InvoiceID   string `json:"invoice_id"`
	// SkipConfirm tells the caller to send the customer straight to the
	// hosted checkout instead of showing a confirmation page first.
	SkipConfirm bool `json:"skip_confirm"`
}

// Begin returns the hosted-checkout URL for the order, creating a provider
// invoice on first call.
func (s *Service) Begin(ctx context.Context, orderID, subMethod string) (*BeginResult, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != types.PaymentGatewayPaydo {
		return nil, order.ErrGatewayMismatch
	}
	if o.Status.Terminal() {
		return nil, ErrNotPayable
	}

	if subMethod != "" && len(s.cfg.Paydo.Methods) > 0 {
		if s.cfg.SubMethodByCode(subMethod) == nil {
			return nil, ErrUnknownSubMethod
		}
		if err := s.orders.SetSubMethod(ctx, o.ID, subMethod); err != nil {
			return nil, err
		}
	}

	if o.InvoiceID != "" {
		return s.result(o.InvoiceID), nil
	}

	invoiceID, raw, err := s.createInvoice(ctx, o)
	if err != nil {
		return nil, err
	}
	if err := s.orders.SetInvoice(ctx, o.ID, invoiceID, raw); err != nil {
		// A concurrent Begin may have stored a different invoice first;
		// reuse the winner rather than surfacing the conflict.
		if errors.Is(err, order.ErrWriteOnceConflict) {
			if cur, getErr := s.orders.Get(ctx, o.ID); getErr == nil && cur.InvoiceID != "" {
				return s.result(cur.InvoiceID), nil
			}
		}
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("invoice_created", "order_id", o.ID, "invoice_id", invoiceID)
	return s.result(invoiceID), nil
}

func (s *Service) createInvoice(ctx context.Context, o *models.Order) (string, []byte, error) {
	amount := o.Amount()
	signature := paydo.Sign(map[string]string{
		"id":       o.ID,
		"amount":   amount,
		"currency": o.Currency,
	}, "", s.cfg.Paydo.SecretKey)

	req := &paydo.InvoiceRequest{
		PublicKey: s.cfg.Paydo.PublicKey,
		Order: paydo.InvoiceOrder{
			ID:          o.ID,
			Amount:      amount,
			Currency:    o.Currency,
			Description: "Payment order #" + o.ID,
			Items:       []paydo.InvoiceItem{},
		},
		Payer: paydo.InvoicePayer{
			Email: o.BillingEmail,
			Name:  o.BillingName,
			Phone: o.BillingPhone,
		},
		Language:   s.cfg.Paydo.Language,
		Lifetime:   s.cfg.Paydo.InvoiceLifetime,
		ProductURL: s.cfg.Paydo.ProductURL,
		ResultURL:  addQuery(o.ReceivedURL, map[string]string{"kind": "success", "orderId": o.ID}),
		FailPath:   addQuery(o.CancelURL, map[string]string{"kind": "fail", "orderId": o.ID}),
		Signature:  signature,
	}
	return s.client.CreateInvoice(ctx, req)
}

func (s *Service) result(invoiceID string) *BeginResult {
	return &BeginResult{
		RedirectURL: fmt.Sprintf("%s/%s/payment/invoice-preprocessing/%s",
			s.cfg.Paydo.CheckoutBaseURL, s.cfg.Paydo.Language, invoiceID),
		InvoiceID:   invoiceID,
		SkipConfirm: s.cfg.Paydo.SkipConfirm,
	}
}

func addQuery(raw string, params map[string]string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
