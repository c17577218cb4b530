package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paydohq/reconciler/internal/app/service/order"
	"github.com/paydohq/reconciler/internal/app/service/reconcile"
	"github.com/paydohq/reconciler/internal/platform/paydo"
)

type stubReconciler struct {
	pushAct     reconcile.PushAction
	pushErr     error
	pushPayload map[string]any

	redirectKind    reconcile.RedirectKind
	redirectOrderID string
	redirectOut     *reconcile.RedirectOutcome
	redirectErr     error
}

func (s *stubReconciler) HandlePush(_ context.Context, payload map[string]any) (reconcile.PushAction, error) {
	s.pushPayload = payload
	return s.pushAct, s.pushErr
}

func (s *stubReconciler) ConfirmByTxid(context.Context, string, string) (*reconcile.ConfirmOutcome, error) {
	panic("not used")
}

func (s *stubReconciler) HandleRedirect(_ context.Context, kind reconcile.RedirectKind, orderID string) (*reconcile.RedirectOutcome, error) {
	s.redirectKind = kind
	s.redirectOrderID = orderID
	return s.redirectOut, s.redirectErr
}

func ipnRouter(stub *stubReconciler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterIPNRoutes(r.Group("/gateway/paydo"), stub, zap.NewNop().Sugar())
	return r
}

func TestApiIPN_ResultReturnsAction(t *testing.T) {
	stub := &stubReconciler{pushAct: reconcile.PushActionOK}
	r := ipnRouter(stub)

	body, _ := json.Marshal(map[string]any{"orderId": "o-1", "status": "success", "signature": "sig"})
	req := httptest.NewRequest(http.MethodPost, "/gateway/paydo/ipn?kind=result", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
	require.Equal(t, "o-1", stub.pushPayload["orderId"])
}

func TestApiIPN_ResultAcceptsGetQueryPayload(t *testing.T) {
	stub := &stubReconciler{pushAct: reconcile.PushActionWait}
	r := ipnRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/gateway/paydo/ipn?kind=result&orderId=o-2&status=wait&signature=sig", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "WAIT", w.Body.String())
	require.Equal(t, "o-2", stub.pushPayload["orderId"])
	require.Equal(t, "wait", stub.pushPayload["status"])
	// The dispatch parameter is part of the query, so it rides along; the
	// classifier does not care.
	require.Equal(t, "result", stub.pushPayload["kind"])
}

func TestApiIPN_ResultErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"validation error", paydo.ErrEmptyInvoiceID, http.StatusBadRequest, "Empty invoice id"},
		{"order missing", order.ErrNotFound, http.StatusNotFound, "Order not found"},
		{"foreign gateway", order.ErrGatewayMismatch, http.StatusForbidden, "Unknown payment method"},
		{"storage failure", context.DeadlineExceeded, http.StatusInternalServerError, "Internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ipnRouter(&stubReconciler{pushErr: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/gateway/paydo/ipn?kind=result", bytes.NewReader([]byte(`{}`)))
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantCode, w.Code)
			require.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestApiIPN_SuccessRedirect(t *testing.T) {
	stub := &stubReconciler{redirectOut: &reconcile.RedirectOutcome{Location: "https://shop.example/thanks"}}
	r := ipnRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/gateway/paydo/ipn?kind=success&orderId=o-3", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://shop.example/thanks", w.Header().Get("Location"))
	require.Equal(t, reconcile.RedirectKindSuccess, stub.redirectKind)
	require.Equal(t, "o-3", stub.redirectOrderID)
}

func TestApiIPN_FailRedirectLegacyOrderParam(t *testing.T) {
	stub := &stubReconciler{redirectOut: &reconcile.RedirectOutcome{Location: "https://shop.example/thanks"}}
	r := ipnRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/gateway/paydo/ipn?kind=fail&order-received=o-4", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, reconcile.RedirectKindFail, stub.redirectKind)
	require.Equal(t, "o-4", stub.redirectOrderID)
}

func TestApiIPN_RedirectUnknownOrder(t *testing.T) {
	r := ipnRouter(&stubReconciler{redirectErr: order.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/gateway/paydo/ipn?kind=success&orderId=missing", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestApiIPN_InvalidKind(t *testing.T) {
	r := ipnRouter(&stubReconciler{})

	for _, kind := range []string{"", "unknown"} {
		req := httptest.NewRequest(http.MethodGet, "/gateway/paydo/ipn?kind="+kind, nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "Invalid request", w.Body.String())
	}
}

func TestApiIPN_MalformedBodyBecomesEmptyPayload(t *testing.T) {
	stub := &stubReconciler{pushErr: paydo.ErrEmptyInvoiceID}
	r := ipnRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/gateway/paydo/ipn?kind=result", bytes.NewReader([]byte("not-json")))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, stub.pushPayload)
	require.Empty(t, stub.pushPayload)
}

func TestRegisterIPNRoutes_RegistersBothMethods(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterIPNRoutes(r.Group("/gateway/paydo"), &stubReconciler{}, zap.NewNop().Sugar())

	routes := r.Routes()
	contains := func(target string) bool {
		for _, rt := range routes {
			if rt.Method+" "+rt.Path == target {
				return true
			}
		}
		return false
	}

	require.True(t, contains("POST /gateway/paydo/ipn"))
	require.True(t, contains("GET /gateway/paydo/ipn"))
}
