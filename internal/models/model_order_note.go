package models

import "time"

// OrderNote is an append-only annotation on an order. Mismatched or ignored
// notifications leave a note here instead of mutating order state.
type OrderNote struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OrderID   string    `gorm:"column:order_id;type:varchar(64);not null;index" json:"order_id"`
	Note      string    `gorm:"column:note;type:text;not null" json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderNote) TableName() string { return "order_note" }
