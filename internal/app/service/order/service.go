package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paydohq/reconciler/internal/models"
	"github.com/paydohq/reconciler/pkg/tool"
	"github.com/paydohq/reconciler/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrGatewayMismatch means the order belongs to a different payment
	// gateway; no mutation is ever applied to such an order.
	ErrGatewayMismatch = errors.New("order payment method mismatch")
	// ErrWriteOnceConflict is returned when a write-once field (invoice id,
	// txid) already holds a different non-empty value.
	ErrWriteOnceConflict = errors.New("write-once field already set to a different value")
)

// Mutator applies payment-field writes to an order inside the per-order lock
// scope opened by Service.WithLock. All writes are guarded: write-once fields
// reject conflicting overwrites, status updates are skipped when already in
// the target status.
type Mutator interface {
	SetInvoiceID(v string) error
	SetTxID(v string) error
	SetStatus(s models.OrderStatus, note string) error
	MarkPaid() error
	AddNote(note string) error
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Get loads the payment projection of an order.
func (s *Service) Get(ctx context.Context, id string) (*models.Order, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	var o models.Order
	if err := s.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return &o, nil
}

// WithLock runs fn against the order row locked FOR UPDATE in a transaction,
// serializing mutations per order id: duplicate webhook deliveries and
// racing redirects line up here instead of interleaving.
func (s *Service) WithLock(ctx context.Context, id string, fn func(ctx context.Context, o *models.Order, m Mutator) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock order %s: %w", id, err)
		}
		return fn(ctx, &o, &txMutator{tx: tx, o: &o})
	})
}

// Create inserts an order projection. Orders originate in the external order
// system; this is the ingestion point for the payment-relevant subset.
func (s *Service) Create(ctx context.Context, o *models.Order) error {
	if o == nil || o.ID == "" {
		return errors.New("order id is required")
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = types.PaymentGatewayPaydo
	}
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("failed to create order %s: %w", o.ID, err)
	}
	return nil
}

// SetInvoice stores the provider invoice id (write-once) together with the
// raw invoice-create response snapshot.
func (s *Service) SetInvoice(ctx context.Context, id, invoiceID string, snapshot []byte) error {
	return s.WithLock(ctx, id, func(ctx context.Context, o *models.Order, m Mutator) error {
		if err := m.SetInvoiceID(invoiceID); err != nil {
			return err
		}
		if len(snapshot) > 0 {
			mu := m.(*txMutator)
			if err := mu.tx.Model(o).Update("invoice_response", datatypes.JSON(snapshot)).Error; err != nil {
				return fmt.Errorf("failed to store invoice snapshot: %w", err)
			}
		}
		return nil
	})
}

// SetSubMethod records the customer-selected payment rail. Like the provider
// ids it is set at most once; a different later value is ignored.
func (s *Service) SetSubMethod(ctx context.Context, id, code string) error {
	if code == "" {
		return nil
	}
	return s.WithLock(ctx, id, func(ctx context.Context, o *models.Order, m Mutator) error {
		if o.SubMethod != "" {
			return nil
		}
		mu := m.(*txMutator)
		if err := mu.tx.Model(o).Update("sub_method", code).Error; err != nil {
			return fmt.Errorf("failed to set sub method: %w", err)
		}
		o.SubMethod = code
		return nil
	})
}

// Notes returns the order's annotations, newest first.
func (s *Service) Notes(ctx context.Context, orderID string) ([]*models.OrderNote, error) {
	var notes []*models.OrderNote
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list order notes: %w", err)
	}
	return notes, nil
}

type txMutator struct {
	tx *gorm.DB
	o  *models.Order
}

func (m *txMutator) SetInvoiceID(v string) error {
	return m.setOnce("invoice_id", &m.o.InvoiceID, v)
}

func (m *txMutator) SetTxID(v string) error {
	return m.setOnce("txid", &m.o.TxID, v)
}

func (m *txMutator) setOnce(column string, field *string, v string) error {
	if v == "" {
		return nil
	}
	if *field != "" {
		if *field == v {
			return nil
		}
		return ErrWriteOnceConflict
	}
	if err := m.tx.Model(m.o).Update(column, v).Error; err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	*field = v
	return nil
}

func (m *txMutator) SetStatus(s models.OrderStatus, note string) error {
	if m.o.Status == s {
		return nil
	}
	if err := m.tx.Model(m.o).Update("status", s).Error; err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	m.o.Status = s
	if note != "" {
		return m.AddNote(note)
	}
	return nil
}

func (m *txMutator) MarkPaid() error {
	if m.o.Paid() {
		return nil
	}
	now := time.Now()
	if err := m.tx.Model(m.o).Update("paid_at", now).Error; err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	m.o.PaidAt = &now
	return nil
}

func (m *txMutator) AddNote(note string) error {
	n := &models.OrderNote{
		ID:      tool.GenerateUUIDV7(),
		OrderID: m.o.ID,
		Note:    note,
	}
	if err := m.tx.Create(n).Error; err != nil {
		return fmt.Errorf("failed to add order note: %w", err)
	}
	return nil
}
