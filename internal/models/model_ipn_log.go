package models

import (
	"time"

	"gorm.io/datatypes"
)

type IPNLogStatus string

const (
	IPNLogStatusReceived     IPNLogStatus = "received"
	IPNLogStatusHandled      IPNLogStatus = "handled"
	IPNLogStatusIgnored      IPNLogStatus = "ignored"
	IPNLogStatusHandleFailed IPNLogStatus = "handle_failed"
)

// IPNLog records every inbound payment notification and what the engine did
// with it. Payload is the raw untrusted body; Result holds the outcome.
type IPNLog struct {
	ID      string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Kind    string `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	Version string `gorm:"column:version;type:varchar(8)" json:"version"`
	TraceID string `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	OrderID string `gorm:"column:order_id;type:varchar(64);index" json:"order_id"`
	TxID    string `gorm:"column:txid;type:varchar(128)" json:"txid"`

	Payload datatypes.JSON  `gorm:"column:payload;type:jsonb" json:"payload"`
	Result  *datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	Status  IPNLogStatus    `gorm:"column:status;type:varchar(32);not null" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (IPNLog) TableName() string { return "ipn_log" }
