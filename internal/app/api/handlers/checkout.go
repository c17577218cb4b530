package handlers

import (
	"errors"
	"net/http"

	"github.com/paydohq/reconciler/internal/app/service/checkout"
	"github.com/paydohq/reconciler/internal/app/service/order"
	"github.com/paydohq/reconciler/pkg/response"

	"github.com/gin-gonic/gin"
)

type beginCheckoutReq struct {
	SubMethod string `json:"sub_method"`
}

// @Summary      Begin checkout
// @Description  Requests the hosted payment form for an order and returns the checkout redirect URL. The provider invoice id is stored write-once on the order.
// @Tags         Checkout
// @Accept       json
// @Produce      json
// @Param        order_id path string true "Order ID"
// @Param        request body handlers.beginCheckoutReq false "Optional payment rail selection"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/checkout/{order_id} [post]
func ApiBeginCheckout(svc *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req beginCheckoutReq
		// Body is optional; a missing or empty body means no rail selection.
		_ = c.ShouldBindJSON(&req)

		res, err := svc.Begin(c.Request.Context(), c.Param("order_id"), req.SubMethod)
		if err != nil {
			switch {
			case errors.Is(err, order.ErrNotFound):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			case errors.Is(err, order.ErrGatewayMismatch):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeForbidden, err.Error()))
			case errors.Is(err, checkout.ErrNotPayable), errors.Is(err, checkout.ErrUnknownSubMethod):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterCheckoutRoutes(r gin.IRouter, svc *checkout.Service) {
	r.POST("/checkout/:order_id", ApiBeginCheckout(svc))
}
