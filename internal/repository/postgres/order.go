package postgres

import (
	"context"
	"database/sql"
	"errors"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/repository"
)

type orderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) repository.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Order, error) {
	var o domain.Order
	query := `SELECT id, tenant_id, order_number, total_amount, paid_amount, vendor_cost_paid,
	                 production_progress_percent, currency, status
	          FROM orders WHERE tenant_id = $1 AND id = $2`
	err := r.db.QueryRowContext(ctx, query, tenantID, id).Scan(
		&o.ID, &o.TenantID, &o.OrderNumber, &o.TotalAmount, &o.PaidAmount, &o.VendorCostPaid,
		&o.ProductionProgressPercent, &o.Currency, &o.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
