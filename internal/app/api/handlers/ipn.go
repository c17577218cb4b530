package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/paydohq/reconciler/internal/app/service/order"
	"github.com/paydohq/reconciler/internal/app/service/reconcile"
	"github.com/paydohq/reconciler/internal/platform/paydo"
	"github.com/paydohq/reconciler/pkg/logctx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @Summary      Paydo IPN endpoint
// @Description  Single gateway endpoint, dispatched by the kind query parameter: result (server-to-server IPN), success and fail (browser redirects).
// @Tags         Gateway
// @Accept       json
// @Produce      plain
// @Param        kind query string true "result | success | fail"
// @Success      200  {string}  string  "OK | WAIT | IGNORED | Check failed"
// @Router       /gateway/paydo/ipn [post]
// ApiIPN handles provider notifications and browser returns.
func ApiIPN(eng reconcile.Reconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := c.Query("kind")
		logctx.FromGin(c, log).Infow("ipn_received", "kind", kind, "method", c.Request.Method)

		switch kind {
		case "result":
			handleResult(c, eng, log)
		case "success":
			handleRedirect(c, eng, reconcile.RedirectKindSuccess)
		case "fail":
			handleRedirect(c, eng, reconcile.RedirectKindFail)
		default:
			c.String(http.StatusBadRequest, "Invalid request")
		}
	}
}

func handleResult(c *gin.Context, eng reconcile.Reconciler, log *zap.SugaredLogger) {
	act, err := eng.HandlePush(c.Request.Context(), requestPayload(c))
	if err != nil {
		status, msg := pushErrorResponse(err)
		if status == http.StatusInternalServerError {
			logctx.FromGin(c, log).Errorw("ipn_handle_error", "error", err.Error())
		}
		c.String(status, msg)
		return
	}
	c.String(http.StatusOK, string(act))
}

func handleRedirect(c *gin.Context, eng reconcile.Reconciler, kind reconcile.RedirectKind) {
	orderID := c.Query("orderId")
	if orderID == "" {
		orderID = c.Query("order-received")
	}

	out, err := eng.HandleRedirect(c.Request.Context(), kind, orderID)
	if err != nil {
		status, msg := pushErrorResponse(err)
		c.String(status, msg)
		return
	}
	c.Redirect(http.StatusFound, out.Location)
}

// requestPayload extracts the untrusted notification body. POST carries a
// JSON object (anything else is treated as empty); GET carries flat query
// parameters, which is all the legacy V1 schema needs.
func requestPayload(c *gin.Context) map[string]any {
	if c.Request.Method == http.MethodPost {
		payload := map[string]any{}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return payload
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return map[string]any{}
		}
		return payload
	}

	payload := map[string]any{}
	for k, vs := range c.Request.URL.Query() {
		if len(vs) > 0 {
			payload[k] = vs[0]
		}
	}
	return payload
}

func pushErrorResponse(err error) (int, string) {
	var vErr paydo.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error()
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, order.ErrGatewayMismatch):
		return http.StatusForbidden, "Unknown payment method"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func RegisterIPNRoutes(r gin.IRouter, eng reconcile.Reconciler, log *zap.SugaredLogger) {
	h := ApiIPN(eng, log)
	r.POST("/ipn", h)
	r.GET("/ipn", h)
}
