package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paydohq/reconciler/internal/app/service/ipnlog"
	"github.com/paydohq/reconciler/internal/app/service/order"
	"github.com/paydohq/reconciler/internal/models"
	"github.com/paydohq/reconciler/internal/platform/paydo"
	"github.com/paydohq/reconciler/pkg/config"
	"github.com/paydohq/reconciler/pkg/logctx"
	"github.com/paydohq/reconciler/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// OrderStore is the slice of the order service the engine mutates through.
// Every write happens inside WithLock's per-order serialization scope.
type OrderStore interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	WithLock(ctx context.Context, id string, fn func(ctx context.Context, o *models.Order, m order.Mutator) error) error
}

// StatusFetcher pulls the authoritative transaction status from the provider.
type StatusFetcher interface {
	GetTransaction(ctx context.Context, txid string) (*paydo.StatusReport, error)
}

// Reconciler is the engine surface the HTTP layer consumes.
type Reconciler interface {
	HandlePush(ctx context.Context, payload map[string]any) (PushAction, error)
	ConfirmByTxid(ctx context.Context, orderID, txid string) (*ConfirmOutcome, error)
	HandleRedirect(ctx context.Context, kind RedirectKind, orderID string) (*RedirectOutcome, error)
}

// Engine decides the one authoritative transition to apply to an order's
// payment state given an untrusted notification or a polled status. It
// enforces: write-once provider ids, no transitions out of terminal
// statuses, no gateway-foreign orders and no redirect-granted authority.
type Engine struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	orders OrderStore
	status StatusFetcher
	logs   *ipnlog.Service
}

func NewEngine(cfg *config.Config, log *zap.SugaredLogger, orders *order.Service, client *paydo.Client, logs *ipnlog.Service) *Engine {
	return &Engine{cfg: cfg, log: log, orders: orders, status: client, logs: logs}
}

// HandlePush processes a server-to-server IPN (kind=result). The returned
// action becomes the plain-text response body; validation and guard failures
// come back as errors the HTTP layer maps onto 4xx codes.
func (e *Engine) HandlePush(ctx context.Context, payload map[string]any) (act PushAction, resErr error) {
	n, classErr := paydo.Classify(payload)

	version := ""
	orderID := ""
	txid := ""
	if n != nil {
		version = string(n.Version)
		orderID = n.OrderID()
		txid = n.TxID()
	}
	e.recordReceived(ctx, "result", version, orderID, txid, payload)
	defer func() {
		e.recordOutcome(ctx, "result", version, orderID, txid, payload, act, resErr)
	}()

	if classErr != nil {
		logctx.FromCtx(ctx, e.log).Infow("ipn_rejected", "reason", classErr.Error())
		return "", classErr
	}

	o, err := e.guardedOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.Status.Terminal() {
		logctx.FromCtx(ctx, e.log).Infow("ipn_ignored_terminal", "order_id", o.ID, "status", o.Status)
		return PushActionIgnored, nil
	}

	switch n.Version {
	case paydo.VersionV1:
		return e.handlePushV1(ctx, o, n.V1)
	default:
		return e.handlePushV2(ctx, o, n.V2)
	}
}

// guardedOrder loads the order and applies the guards shared by every entry
// point: the order must exist and must belong to this gateway.
func (e *Engine) guardedOrder(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != types.PaymentGatewayPaydo {
		return nil, order.ErrGatewayMismatch
	}
	return o, nil
}

// handlePushV1 is the legacy path: the payload's status is trusted directly
// once the signature over the order's own amount and currency verifies.
// There is no pull confirmation here; that asymmetry with V2 is deliberate
// legacy compatibility, not an oversight.
func (e *Engine) handlePushV1(ctx context.Context, o *models.Order, n *paydo.NotificationV1) (PushAction, error) {
	fields := map[string]string{
		"id":       o.ID,
		"amount":   o.Amount(),
		"currency": o.Currency,
	}
	if !paydo.VerifySignature(n.Signature, fields, n.Status, e.cfg.Paydo.SecretKey) {
		return "", paydo.ErrInvalidSignature
	}

	switch n.Status {
	case "wait":
		err := e.orders.WithLock(ctx, o.ID, func(ctx context.Context, o *models.Order, m order.Mutator) error {
			if o.Status.Terminal() || o.Status == models.OrderStatusPending {
				return nil
			}
			return m.SetStatus(models.OrderStatusPending, "Transaction pending")
		})
		if err != nil {
			return "", err
		}
		return PushActionWait, nil

	case "success":
		err := e.orders.WithLock(ctx, o.ID, func(ctx context.Context, o *models.Order, m order.Mutator) error {
			if o.Status.Terminal() {
				return nil
			}
			return e.applyPaid(o, m)
		})
		if err != nil {
			return "", err
		}
		return PushActionOK, nil

	case "error":
		err := e.orders.WithLock(ctx, o.ID, func(ctx context.Context, o *models.Order, m order.Mutator) error {
			if o.Status.Terminal() {
				return nil
			}
			return m.SetStatus(models.OrderStatusFailed, "Payment not paid")
		})
		if err != nil {
			return "", err
		}
		return PushActionOK, nil

	default:
		return "", paydo.ErrUnknownStatus
	}
}

// handlePushV2 never trusts the claimed state. It records the provider ids
// (write-once, mismatches are a benign ignore) and then confirms through the
// status query API.
func (e *Engine) handlePushV2(ctx context.Context, o *models.Order, n *paydo.NotificationV2) (PushAction, error) {
	txid := n.Invoice.TxID
	if txid == "" {
		txid = n.Transaction.TxID
	}

	var act PushAction
	err := e.orders.WithLock(ctx, o.ID, func(ctx context.Context, o *models.Order, m order.Mutator) error {
		if o.Status.Terminal() {
			act = PushActionIgnored
			return nil
		}
		if o.InvoiceID != "" && o.InvoiceID != n.Invoice.ID {
			act = PushActionIgnored
			return m.AddNote(fmt.Sprintf(
				"IPN ignored: invoice id mismatch (notification %q, order %q)", n.Invoice.ID, o.InvoiceID))
		}
		if txid == "" {
			act = PushActionWait
			if !o.Status.Awaiting() {
				return m.SetStatus(models.OrderStatusOnHold, "Order awaiting payment confirmation")
			}
			return nil
		}
		if o.TxID != "" && o.TxID != txid {
			act = PushActionIgnored
			return m.AddNote(fmt.Sprintf(
				"IPN ignored: transaction id mismatch (notification %q, order %q)", txid, o.TxID))
		}
		if err := m.SetInvoiceID(n.Invoice.ID); err != nil {
			return err
		}
		return m.SetTxID(txid)
	})
	if err != nil {
		return "", err
	}
	if act != "" {
		return act, nil
	}

	out, err := e.ConfirmByTxid(ctx, o.ID, txid)
	if err != nil {
		return "", err
	}
	switch {
	case out.CheckFailed:
		return PushActionCheckFailed, nil
	case out.Final:
		return PushActionOK, nil
	default:
		return PushActionWait, nil
	}
}

// ConfirmByTxid pulls the authoritative status for txid and applies the
// resulting transition. A failed fetch degrades to a non-final pending
// outcome with no mutation; it is never surfaced as a request failure, the
// order simply waits for a later confirmation attempt.
func (e *Engine) ConfirmByTxid(ctx context.Context, orderID, txid string) (*ConfirmOutcome, error) {
	o, err := e.guardedOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	report, err := e.status.GetTransaction(ctx, txid)
	if err != nil {
		logctx.FromCtx(ctx, e.log).Warnw("status_check_failed",
			"order_id", o.ID, "txid", txid, "error", err.Error())
		return &ConfirmOutcome{Final: false, State: ConfirmStatePending, CheckFailed: true}, nil
	}

	code := 0
	if report.NumericCode != nil {
		code = *report.NumericCode
	}

	var out *ConfirmOutcome
	err = e.orders.WithLock(ctx, o.ID, func(ctx context.Context, o *models.Order, m order.Mutator) error {
		if o.Status.Terminal() {
			out = outcomeForTerminal(o.Status)
			return nil
		}
		switch code {
		case paydo.StateAccepted:
			out = &ConfirmOutcome{Final: true, State: ConfirmStatePaid}
			return e.applyPaid(o, m)
		case paydo.StateFailed, paydo.StateRejected, paydo.StateTimeout:
			out = &ConfirmOutcome{Final: true, State: ConfirmStateFailed}
			return m.SetStatus(models.OrderStatusFailed, "Payment not paid")
		case paydo.StatePreApproved:
			out = &ConfirmOutcome{Final: false, State: ConfirmStatePending}
			if o.Status != models.OrderStatusOnHold {
				return m.SetStatus(models.OrderStatusOnHold, "Payment pre-approved by provider")
			}
			return nil
		default:
			out = &ConfirmOutcome{Final: false, State: ConfirmStatePending}
			if !o.Status.Awaiting() {
				return m.SetStatus(models.OrderStatusOnHold, "Order awaiting payment confirmation")
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyPaid fires payment-complete exactly once and advances the status.
// Callers must hold the order lock and have excluded terminal statuses.
func (e *Engine) applyPaid(o *models.Order, m order.Mutator) error {
	if !o.Paid() {
		if err := m.MarkPaid(); err != nil {
			return err
		}
	}
	if e.cfg.Paydo.AutoComplete {
		return m.SetStatus(models.OrderStatusCompleted, "Payment successfully paid")
	}
	if !lo.Contains([]models.OrderStatus{models.OrderStatusProcessing, models.OrderStatusCompleted}, o.Status) {
		return m.SetStatus(models.OrderStatusProcessing, "Payment successfully paid")
	}
	return nil
}

// HandleRedirect processes a browser return (kind=success|fail). Redirects
// are fully untrusted and carry no authority: at most they park a
// non-terminal order on hold until a push or poll confirms the payment.
func (e *Engine) HandleRedirect(ctx context.Context, kind RedirectKind, orderID string) (out *RedirectOutcome, resErr error) {
	e.recordReceived(ctx, string(kind), "", orderID, "", map[string]any{"orderId": orderID})
	defer func() {
		act := PushActionOK
		if resErr != nil {
			act = ""
		}
		e.recordOutcome(ctx, string(kind), "", orderID, "", nil, act, resErr)
	}()

	o, err := e.guardedOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out = &RedirectOutcome{Location: o.ReceivedURL}

	// Paid and terminal orders get the idempotent thank-you page, untouched.
	if o.Paid() || o.Status == models.OrderStatusProcessing || o.Status.Terminal() {
		return out, nil
	}

	note := "Success redirect received, awaiting payment confirmation"
	if kind == RedirectKindFail {
		note = "Fail redirect received, awaiting payment confirmation"
	}
	err = e.orders.WithLock(ctx, o.ID, func(ctx context.Context, o *models.Order, m order.Mutator) error {
		if o.Status.Terminal() || o.Paid() {
			return nil
		}
		if o.Status != models.OrderStatusOnHold {
			return m.SetStatus(models.OrderStatusOnHold, note)
		}
		if kind == RedirectKindFail {
			return m.AddNote(note)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func outcomeForTerminal(s models.OrderStatus) *ConfirmOutcome {
	if s == models.OrderStatusCompleted {
		return &ConfirmOutcome{Final: true, State: ConfirmStatePaid}
	}
	return &ConfirmOutcome{Final: true, State: ConfirmStateFailed}
}

func (e *Engine) recordReceived(ctx context.Context, kind, version, orderID, txid string, payload map[string]any) {
	if e.logs == nil {
		return
	}
	data, _ := json.Marshal(payload)
	e.logs.Save(ctx, &models.IPNLog{
		Kind:    kind,
		Version: version,
		TraceID: traceID(ctx),
		OrderID: orderID,
		TxID:    txid,
		Payload: datatypes.JSON(data),
		Status:  models.IPNLogStatusReceived,
	})
}

func (e *Engine) recordOutcome(ctx context.Context, kind, version, orderID, txid string, payload map[string]any, act PushAction, resErr error) {
	if e.logs == nil {
		return
	}
	data, _ := json.Marshal(payload)
	resMap := map[string]any{"action": string(act)}
	if resErr != nil {
		resMap["error"] = resErr.Error()
	}
	resBytes, _ := json.Marshal(resMap)
	res := datatypes.JSON(resBytes)

	status := models.IPNLogStatusHandled
	switch {
	case resErr != nil:
		status = models.IPNLogStatusHandleFailed
	case act == PushActionIgnored:
		status = models.IPNLogStatusIgnored
	}

	e.logs.Save(ctx, &models.IPNLog{
		Kind:    kind,
		Version: version,
		TraceID: traceID(ctx),
		OrderID: orderID,
		TxID:    txid,
		Payload: datatypes.JSON(data),
		Result:  &res,
		Status:  status,
	})
}

func traceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if tid, ok := ctx.Value("traceID").(string); ok {
		return tid
	}
	return ""
}
