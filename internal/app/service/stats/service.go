package stats

import (
	"context"
	"fmt"

	"github.com/paydohq/reconciler/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service aggregates reconciliation counters for the admin dashboard.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

type statusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type currencyTotal struct {
	Currency string `json:"currency"`
	Total    string `json:"total"`
}

type Summary struct {
	OrdersByStatus  []statusCount   `json:"orders_by_status"`
	IPNsByStatus    []statusCount   `json:"ipns_by_status"`
	PaidByCurrency  []currencyTotal `json:"paid_by_currency"`
	PaidOrdersTotal int64           `json:"paid_orders_total"`
}

// Summarize reports order counts per status, IPN handling counts and the
// paid volume per currency.
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	sum := &Summary{}

	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&sum.OrdersByStatus).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&models.IPNLog{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&sum.IPNsByStatus).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count ipn logs by status: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&models.Order{}).
		Select("currency, sum(total) as total").
		Where("paid_at IS NOT NULL").
		Group("currency").
		Scan(&sum.PaidByCurrency).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum paid volume: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&models.Order{}).
		Where("paid_at IS NOT NULL").
		Count(&sum.PaidOrdersTotal).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count paid orders: %w", err)
	}

	return sum, nil
}
