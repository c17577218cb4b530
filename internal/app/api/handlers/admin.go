package handlers

import (
	"errors"
	"net/http"

	"github.com/paydohq/reconciler/internal/app/service/ipnlog"
	"github.com/paydohq/reconciler/internal/app/service/order"
	"github.com/paydohq/reconciler/internal/app/service/reconcile"
	"github.com/paydohq/reconciler/internal/app/service/stats"
	"github.com/paydohq/reconciler/internal/models"
	"github.com/paydohq/reconciler/pkg/response"
	"github.com/paydohq/reconciler/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createOrderReq struct {
	ID           string `json:"id" binding:"required"`
	Total        string `json:"total" binding:"required"`
	Currency     string `json:"currency" binding:"required"`
	Status       string `json:"status"`
	BillingEmail string `json:"billing_email"`
	BillingName  string `json:"billing_name"`
	BillingPhone string `json:"billing_phone"`
	ReceivedURL  string `json:"received_url"`
	CancelURL    string `json:"cancel_url"`
}

// @Summary      Ingest order projection
// @Description  Registers the payment-relevant projection of an order created by the external order system.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body handlers.createOrderReq true "Order projection"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/orders [post]
func ApiCreateOrder(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		total, err := decimal.NewFromString(req.Total)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid total"))
			return
		}

		o := &models.Order{
			ID:            req.ID,
			Status:        models.OrderStatus(req.Status),
			Total:         total,
			Currency:      req.Currency,
			PaymentMethod: types.PaymentGatewayPaydo,
			BillingEmail:  req.BillingEmail,
			BillingName:   req.BillingName,
			BillingPhone:  req.BillingPhone,
			ReceivedURL:   req.ReceivedURL,
			CancelURL:     req.CancelURL,
		}
		if err := orders.Create(c.Request.Context(), o); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(o))
	}
}

// @Summary      Scan orders
// @Description  Paginated admin listing of order projections with filters.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body order.ScanRequest true "Scan request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/orders/scan [post]
func ApiScanOrders(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := orders.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Scan IPN logs
// @Description  Paginated admin listing of the IPN audit trail.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ipnlog.ScanRequest true "Scan request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/ipn_logs/scan [post]
func ApiScanIPNLogs(logs *ipnlog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ipnlog.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := logs.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Confirm order by txid
// @Description  Externally triggered pull confirmation: fetches the authoritative transaction status and applies the resulting transition.
// @Tags         Admin
// @Produce      json
// @Param        id path string true "Order ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/orders/{id}/confirm [post]
func ApiConfirmOrder(orders *order.Service, eng reconcile.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := orders.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		}
		if o.TxID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "order has no transaction id yet"))
			return
		}
		out, err := eng.ConfirmByTxid(c.Request.Context(), o.ID, o.TxID)
		if err != nil {
			if errors.Is(err, order.ErrGatewayMismatch) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeForbidden, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Reconciliation summary
// @Description  Order and IPN counters for the admin dashboard.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/stats [get]
func ApiStats(svc *stats.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svc.Summarize(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sum))
	}
}

func RegisterAdminRoutes(r gin.IRouter, orders *order.Service, logs *ipnlog.Service, eng reconcile.Reconciler, statsSvc *stats.Service) {
	r.POST("/orders", ApiCreateOrder(orders))
	r.POST("/orders/scan", ApiScanOrders(orders))
	r.POST("/orders/:id/confirm", ApiConfirmOrder(orders, eng))
	r.POST("/ipn_logs/scan", ApiScanIPNLogs(logs))
	r.GET("/stats", ApiStats(statsSvc))
}
