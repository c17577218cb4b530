package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/paydohq/reconciler/internal/app/service/order"
	"github.com/paydohq/reconciler/internal/models"
	"github.com/paydohq/reconciler/internal/platform/paydo"
	"github.com/paydohq/reconciler/pkg/config"
	"github.com/paydohq/reconciler/pkg/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "s3cret"

// memStore implements OrderStore in memory with the same write guards as the
// database-backed mutator, so engine tests exercise the real guard semantics.
type memStore struct {
	orders    map[string]*models.Order
	notes     map[string][]string
	paidCalls map[string]int
}

func newMemStore(orders ...*models.Order) *memStore {
	s := &memStore{
		orders:    map[string]*models.Order{},
		notes:     map[string][]string{},
		paidCalls: map[string]int{},
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) WithLock(ctx context.Context, id string, fn func(ctx context.Context, o *models.Order, m order.Mutator) error) error {
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	return fn(ctx, o, &memMutator{s: s, o: o})
}

type memMutator struct {
	s *memStore
	o *models.Order
}

func (m *memMutator) SetInvoiceID(v string) error { return m.setOnce(&m.o.InvoiceID, v) }
func (m *memMutator) SetTxID(v string) error      { return m.setOnce(&m.o.TxID, v) }

func (m *memMutator) setOnce(field *string, v string) error {
	if v == "" {
		return nil
	}
	if *field != "" {
		if *field == v {
			return nil
		}
		return order.ErrWriteOnceConflict
	}
	*field = v
	return nil
}

func (m *memMutator) SetStatus(st models.OrderStatus, note string) error {
	if m.o.Status == st {
		return nil
	}
	m.o.Status = st
	if note != "" {
		return m.AddNote(note)
	}
	return nil
}

func (m *memMutator) MarkPaid() error {
	m.s.paidCalls[m.o.ID]++
	if m.o.Paid() {
		return nil
	}
	now := time.Now()
	m.o.PaidAt = &now
	return nil
}

func (m *memMutator) AddNote(note string) error {
	m.s.notes[m.o.ID] = append(m.s.notes[m.o.ID], note)
	return nil
}

type stubFetcher struct {
	report *paydo.StatusReport
	err    error
	calls  int
}

func (f *stubFetcher) GetTransaction(context.Context, string) (*paydo.StatusReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func stateReport(code int) *paydo.StatusReport {
	c := code
	return &paydo.StatusReport{NumericCode: &c}
}

func testEngine(store *memStore, fetcher StatusFetcher, autoComplete bool) *Engine {
	return &Engine{
		cfg: &config.Config{Paydo: config.PaydoConfig{
			SecretKey:    testSecret,
			AutoComplete: autoComplete,
		}},
		log:    zap.NewNop().Sugar(),
		orders: store,
		status: fetcher,
	}
}

func testOrder(id string, status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:            id,
		Status:        status,
		Total:         decimal.RequireFromString("25"),
		Currency:      "USD",
		PaymentMethod: types.PaymentGatewayPaydo,
		ReceivedURL:   "https://shop.example/thanks?order-received=" + id,
	}
}

func v1Push(orderID, status string) map[string]any {
	o := testOrder(orderID, models.OrderStatusPending)
	sig := paydo.Sign(map[string]string{
		"id":       orderID,
		"amount":   o.Amount(),
		"currency": o.Currency,
	}, status, testSecret)
	return map[string]any{"orderId": orderID, "status": status, "signature": sig}
}

func v2Push(orderID, invoiceID, txid string, state int) map[string]any {
	return map[string]any{
		"invoice": map[string]any{"id": invoiceID, "txid": txid},
		"transaction": map[string]any{
			"order": map[string]any{"id": orderID},
			"state": float64(state),
			"txid":  txid,
		},
	}
}

func TestHandlePushV1_Success(t *testing.T) {
	store := newMemStore(testOrder("o-1", models.OrderStatusPending))
	fetcher := &stubFetcher{}
	eng := testEngine(store, fetcher, false)

	act, err := eng.HandlePush(context.Background(), v1Push("o-1", "success"))
	require.NoError(t, err)
	require.Equal(t, PushActionOK, act)

	o := store.orders["o-1"]
	require.Equal(t, models.OrderStatusProcessing, o.Status)
	require.True(t, o.Paid())
	// The legacy path trusts the signed status; no pull confirmation.
	require.Zero(t, fetcher.calls)
}

func TestHandlePushV1_SuccessAutoComplete(t *testing.T) {
	store := newMemStore(testOrder("o-1", models.OrderStatusPending))
	eng := testEngine(store, &stubFetcher{}, true)

	act, err := eng.HandlePush(context.Background(), v1Push("o-1", "success"))
	require.NoError(t, err)
	require.Equal(t, PushActionOK, act)
	require.Equal(t, models.OrderStatusCompleted, store.orders["o-1"].Status)
}

func TestHandlePushV1_Wait(t *testing.T) {
	store := newMemStore(testOrder("o-1", models.OrderStatusOnHold))
	eng := testEngine(store, &stubFetcher{}, false)

	act, err := eng.HandlePush(context.Background(), v1Push("o-1", "wait"))
	require.NoError(t, err)
	require.Equal(t, PushActionWait, act)
	require.Equal(t, models.OrderStatusPending, store.orders["o-1"].Status)
}

func TestHandlePushV1_Error(t *testing.T) {
	store := newMemStore(testOrder("o-1", models.OrderStatusPending))
	eng := testEngine(store, &stubFetcher{}, false)

	act, err := eng.HandlePush(context.Background(), v1Push("o-1", "error"))
	require.NoError(t, err)
	require.Equal(t, PushActionOK, act)
	require.Equal(t, models.OrderStatusFailed, store.orders["o-1"].Status)
}

func TestHandlePushV1_BadSignature(t *testing.T) {
	store := newMemStore(testOrder("o-1", models.OrderStatusPending))
	eng := testEngine(store, &stubFetcher{}, false)

	payload := v1Push("o-1", "success")
	payload["signature"] = "not-the-signature"

	_, err := eng.HandlePush(context.Background(), payload)
	require.ErrorIs(t, err, paydo.ErrInvalidSignature)
	require.Equal(t, models.OrderStatusPending, store.orders["o-1"].Status)
}

func TestHandlePushV1_SignatureBoundToAmount(t *testing.T) {
	// A signature computed over a different amount must not move the order.
	o := testOrder("o-1", models.OrderStatusPending)
	o.Total = decimal.RequireFromString("999")
	store := newMemStore(o)
	eng := testEngine(store, &stubFetcher{}, false)

	_, err := eng.HandlePush(context.Background(), v1Push("o-1", "success"))
	require.ErrorIs(t, err, paydo.ErrInvalidSignature)
}

func TestHandlePushV1_UnknownStatus(t *testing.T) {
	store := newMemStore(testOrder("o-1", models.OrderStatusPending))
	eng := testEngine(store, &stubFetcher{}, false)

	_, err := eng.HandlePush(context.Background(), v1Push("o-1", "rebooted"))
	require.ErrorIs(t, err, paydo.ErrUnknownStatus)
}

func TestHandlePushV1_Idempotent(t *testing.T) {
	store := newMemStore(testOrder("o-1", models.OrderStatusPending))
	eng := testEngine(store, &stubFetcher{}, false)

	payload := v1Push("o-1", "success")
	for i := 0; i < 3; i++ {
		act, err := eng.HandlePush(context.Background(), payload)
		require.NoError(t, err)
		if i == 0 {
			require.Equal(t, PushActionOK, act)
		}
	}

	o := store.orders["o-1"]
	require.Equal(t, models.OrderStatusProcessing, o.Status)
	// MarkPaid fired only on the first delivery; replays see the order
	// already paid.
	require.Equal(t, 1, store.paidCalls["o-1"])
}

func TestHandlePushV2_ConfirmedPaid(t *testing.T) {
	store := newMemStore(testOrder("o-2", models.OrderStatusPending))
	fetcher := &stubFetcher{report: stateReport(paydo.StateAccepted)}
	eng := testEngine(store, fetcher, true)

	act, err := eng.HandlePush(context.Background(), v2Push("o-2", "inv-1", "tx-1", 2))
	require.NoError(t, err)
	require.Equal(t, PushActionOK, act)

	o := store.orders["o-2"]
	require.Equal(t, models.OrderStatusCompleted, o.Status)
	require.True(t, o.Paid())
	require.Equal(t, "inv-1", o.InvoiceID)
	require.Equal(t, "tx-1", o.TxID)
	require.Equal(t, 1, fetcher.calls)
}

func TestHandlePushV2_ClaimedStateNeverTrusted(t *testing.T) {
	// The notification claims accepted, the provider says failed: the pull
	// result wins.
	store := newMemStore(testOrder("o-2", models.OrderStatusPending))
	eng := testEngine(store, &stubFetcher{report: stateReport(paydo.StateFailed)}, false)

	act, err := eng.HandlePush(context.Background(), v2Push("o-2", "inv-1", "tx-1", 2))
	require.NoError(t, err)
	require.Equal(t, PushActionOK, act)
	require.Equal(t, models.OrderStatusFailed, store.orders["o-2"].Status)
	require.False(t, store.orders["o-2"].Paid())
}

func TestHandlePushV2_PendingConfirmation(t *testing.T) {
	store := newMemStore(testOrder("o-2", models.OrderStatusOnHold))
	eng := testEngine(store, &stubFetcher{report: stateReport(paydo.StatePending)}, false)

	act, err := eng.HandlePush(context.Background(), v2Push("o-2", "inv-1", "tx-1", 4))
	require.NoError(t, err)
	require.Equal(t, PushActionWait, act)
	require.Equal(t, models.OrderStatusOnHold, store.orders["o-2"].Status)
}

func TestHandlePushV2_CheckFailed(t *testing.T) {
	store := newMemStore(testOrder("o-2", models.OrderStatusPending))
	eng := testEngine(store, &stubFetcher{err: &paydo.FetchError{Reason: "provider down"}}, false)

	act, err := eng.HandlePush(context.Background(), v2Push("o-2", "inv-1", "tx-1", 2))
	require.NoError(t, err)
	require.Equal(t, PushActionCheckFailed, act)

	// Provider ids were recorded, but no status transition happened.
	o := store.orders["o-2"]
	require.Equal(t, models.OrderStatusPending, o.Status)
	require.False(t, o.Paid())
	require.Equal(t, "tx-1", o.TxID)
}

func TestHandlePushV2_InvoiceMismatchIgnored(t *testing.T) {
	o := testOrder("o-2", models.OrderStatusPending)
	o.InvoiceID = "inv-original"
	store := newMemStore(o)
	fetcher := &stubFetcher{report: stateReport(paydo.StateAccepted)}
	eng := testEngine(store, fetcher, false)

	act, err := eng.HandlePush(context.Background(), v2Push("o-2", "inv-other", "tx-1", 2))
	require.NoError(t, err)
	require.Equal(t, PushActionIgnored, act)

	require.Equal(t, models.OrderStatusPending, store.orders["o-2"].Status)
	require.Equal(t, "inv-original", store.orders["o-2"].InvoiceID)
	require.Empty(t, store.orders["o-2"].TxID)
	require.Zero(t, fetcher.calls)
	require.Len(t, store.notes["o-2"], 1)
	require.Contains(t, store.notes["o-2"][0], "invoice id mismatch")
}

func TestHandlePushV2_TxidMismatchIgnored(t *testing.T) {
	o := testOrder("o-2", models.OrderStatusOnHold)
	o.InvoiceID = "inv-1"
	o.TxID = "tx-original"
	store := newMemStore(o)
	fetcher := &stubFetcher{report: stateReport(paydo.StateAccepted)}
	eng := testEngine(store, fetcher, false)

	act, err := eng.HandlePush(context.Background(), v2Push("o-2", "inv-1", "tx-other", 2))
	require.NoError(t, err)
	require.Equal(t, PushActionIgnored, act)
	require.Equal(t, "tx-original", store.orders["o-2"].TxID)
	require.Zero(t, fetcher.calls)
	require.Contains(t, store.notes["o-2"][0], "transaction id mismatch")
}

func TestHandlePushV2_Idempotent(t *testing.T) {
	store := newMemStore(testOrder("o-2", models.OrderStatusPending))
	eng := testEngine(store, &stubFetcher{report: stateReport(paydo.StateAccepted)}, false)

	payload := v2Push("o-2", "inv-1", "tx-1", 2)
	act, err := eng.HandlePush(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, PushActionOK, act)

	act, err = eng.HandlePush(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, PushActionIgnored, act)

	require.Equal(t, 1, store.paidCalls["o-2"])
	require.Equal(t, models.OrderStatusProcessing, store.orders["o-2"].Status)
}

func TestHandlePush_TerminalOrderIgnored(t *testing.T) {
	for _, status := range models.TerminalStatuses {
		store := newMemStore(testOrder("o-3", status))
		fetcher := &stubFetcher{report: stateReport(paydo.StateAccepted)}
		eng := testEngine(store, fetcher, false)

		act, err := eng.HandlePush(context.Background(), v2Push("o-3", "inv-1", "tx-1", 2))
		require.NoError(t, err, status)
		require.Equal(t, PushActionIgnored, act, status)
		require.Equal(t, status, store.orders["o-3"].Status)
		require.Zero(t, fetcher.calls)
	}
}

func TestHandlePush_UnknownOrder(t *testing.T) {
	eng := testEngine(newMemStore(), &stubFetcher{}, false)

	_, err := eng.HandlePush(context.Background(), v2Push("missing", "inv-1", "tx-1", 2))
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestHandlePush_ForeignGateway(t *testing.T) {
	o := testOrder("o-4", models.OrderStatusPending)
	o.PaymentMethod = "stripe"
	eng := testEngine(newMemStore(o), &stubFetcher{}, false)

	_, err := eng.HandlePush(context.Background(), v2Push("o-4", "inv-1", "tx-1", 2))
	require.ErrorIs(t, err, order.ErrGatewayMismatch)
}

func TestHandlePush_MalformedPayload(t *testing.T) {
	eng := testEngine(newMemStore(), &stubFetcher{}, false)

	_, err := eng.HandlePush(context.Background(), map[string]any{"hello": "world"})
	require.ErrorIs(t, err, paydo.ErrEmptyInvoiceID)
}

func TestConfirmByTxid_PreApproved(t *testing.T) {
	store := newMemStore(testOrder("o-5", models.OrderStatusPending))
	eng := testEngine(store, &stubFetcher{report: stateReport(paydo.StatePreApproved)}, false)

	out, err := eng.ConfirmByTxid(context.Background(), "o-5", "tx-1")
	require.NoError(t, err)
	require.False(t, out.Final)
	require.Equal(t, ConfirmStatePending, out.State)
	require.Equal(t, models.OrderStatusOnHold, store.orders["o-5"].Status)
	require.Contains(t, store.notes["o-5"][0], "pre-approved")
}

func TestConfirmByTxid_Timeout(t *testing.T) {
	// State 15 is unreachable through push classification but valid when
	// polled.
	store := newMemStore(testOrder("o-5", models.OrderStatusOnHold))
	eng := testEngine(store, &stubFetcher{report: stateReport(paydo.StateTimeout)}, false)

	out, err := eng.ConfirmByTxid(context.Background(), "o-5", "tx-1")
	require.NoError(t, err)
	require.True(t, out.Final)
	require.Equal(t, ConfirmStateFailed, out.State)
	require.Equal(t, models.OrderStatusFailed, store.orders["o-5"].Status)
}

func TestConfirmByTxid_FetchErrorLeavesOrderUntouched(t *testing.T) {
	store := newMemStore(testOrder("o-5", models.OrderStatusOnHold))
	eng := testEngine(store, &stubFetcher{err: &paydo.FetchError{Reason: "timeout"}}, false)

	out, err := eng.ConfirmByTxid(context.Background(), "o-5", "tx-1")
	require.NoError(t, err)
	require.True(t, out.CheckFailed)
	require.False(t, out.Final)
	require.Equal(t, models.OrderStatusOnHold, store.orders["o-5"].Status)
}

func TestConfirmByTxid_TerminalOrderReportsStoredOutcome(t *testing.T) {
	store := newMemStore(testOrder("o-5", models.OrderStatusCompleted))
	eng := testEngine(store, &stubFetcher{report: stateReport(paydo.StateFailed)}, false)

	out, err := eng.ConfirmByTxid(context.Background(), "o-5", "tx-1")
	require.NoError(t, err)
	require.True(t, out.Final)
	require.Equal(t, ConfirmStatePaid, out.State)
	// Terminal statuses never move, whatever the provider reports now.
	require.Equal(t, models.OrderStatusCompleted, store.orders["o-5"].Status)
}

func TestConfirmByTxid_UnknownCodeParksOnHold(t *testing.T) {
	store := newMemStore(testOrder("o-5", models.OrderStatusProcessing))
	eng := testEngine(store, &stubFetcher{report: &paydo.StatusReport{RawStatus: "reviewing"}}, false)

	out, err := eng.ConfirmByTxid(context.Background(), "o-5", "tx-1")
	require.NoError(t, err)
	require.False(t, out.Final)
	require.Equal(t, models.OrderStatusOnHold, store.orders["o-5"].Status)
}

func TestHandleRedirect_SuccessParksOnHold(t *testing.T) {
	o := testOrder("o-6", models.OrderStatusPending)
	store := newMemStore(o)
	fetcher := &stubFetcher{}
	eng := testEngine(store, fetcher, false)

	out, err := eng.HandleRedirect(context.Background(), RedirectKindSuccess, "o-6")
	require.NoError(t, err)
	require.Equal(t, o.ReceivedURL, out.Location)
	require.Equal(t, models.OrderStatusOnHold, store.orders["o-6"].Status)
	// Redirects carry no authority: never a provider call, never paid.
	require.Zero(t, fetcher.calls)
	require.False(t, store.orders["o-6"].Paid())
}

func TestHandleRedirect_FailOnPendingParksOnHold(t *testing.T) {
	store := newMemStore(testOrder("o-6", models.OrderStatusPending))
	fetcher := &stubFetcher{}
	eng := testEngine(store, fetcher, false)

	out, err := eng.HandleRedirect(context.Background(), RedirectKindFail, "o-6")
	require.NoError(t, err)
	require.NotEmpty(t, out.Location)
	require.Equal(t, models.OrderStatusOnHold, store.orders["o-6"].Status)
	require.Zero(t, fetcher.calls)
	require.Len(t, store.notes["o-6"], 1)
	require.Contains(t, store.notes["o-6"][0], "Fail redirect")
}

func TestHandleRedirect_FailOnHoldAddsNoteOnly(t *testing.T) {
	store := newMemStore(testOrder("o-6", models.OrderStatusOnHold))
	eng := testEngine(store, &stubFetcher{}, false)

	out, err := eng.HandleRedirect(context.Background(), RedirectKindFail, "o-6")
	require.NoError(t, err)
	require.NotEmpty(t, out.Location)
	require.Equal(t, models.OrderStatusOnHold, store.orders["o-6"].Status)
	require.Len(t, store.notes["o-6"], 1)
	require.Contains(t, store.notes["o-6"][0], "Fail redirect")
}

func TestHandleRedirect_SuccessOnHoldLeavesNoNote(t *testing.T) {
	store := newMemStore(testOrder("o-6", models.OrderStatusOnHold))
	eng := testEngine(store, &stubFetcher{}, false)

	_, err := eng.HandleRedirect(context.Background(), RedirectKindSuccess, "o-6")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusOnHold, store.orders["o-6"].Status)
	require.Empty(t, store.notes["o-6"])
}

func TestHandleRedirect_PaidOrderUntouched(t *testing.T) {
	o := testOrder("o-6", models.OrderStatusProcessing)
	now := time.Now()
	o.PaidAt = &now
	store := newMemStore(o)
	eng := testEngine(store, &stubFetcher{}, false)

	out, err := eng.HandleRedirect(context.Background(), RedirectKindSuccess, "o-6")
	require.NoError(t, err)
	require.Equal(t, o.ReceivedURL, out.Location)
	require.Equal(t, models.OrderStatusProcessing, store.orders["o-6"].Status)
	require.Empty(t, store.notes["o-6"])
}

func TestHandleRedirect_TerminalOrderUntouched(t *testing.T) {
	store := newMemStore(testOrder("o-6", models.OrderStatusFailed))
	eng := testEngine(store, &stubFetcher{}, false)

	out, err := eng.HandleRedirect(context.Background(), RedirectKindFail, "o-6")
	require.NoError(t, err)
	require.NotEmpty(t, out.Location)
	require.Equal(t, models.OrderStatusFailed, store.orders["o-6"].Status)
	require.Empty(t, store.notes["o-6"])
}

func TestHandleRedirect_UnknownOrder(t *testing.T) {
	eng := testEngine(newMemStore(), &stubFetcher{}, false)

	_, err := eng.HandleRedirect(context.Background(), RedirectKindSuccess, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}
