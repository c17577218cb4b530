package handlers

import (
	"github.com/paydohq/reconciler/internal/app/service/checkout"
	"github.com/paydohq/reconciler/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespBeginCheckout wraps checkout.BeginResult in the standard envelope.
type RespBeginCheckout struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    checkout.BeginResult     `json:"data"`
}
