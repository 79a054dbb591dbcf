package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/repository"
)

type negotiationRepository struct {
	db DBTX
}

func NewNegotiationRepository(db DBTX) repository.NegotiationRepository {
	return &negotiationRepository{db: db}
}

func (r *negotiationRepository) Create(ctx context.Context, n *domain.OrderVendorNegotiation) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	history, err := json.Marshal(n.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	quote, err := json.Marshal(n.QuoteDetails)
	if err != nil {
		return fmt.Errorf("marshal quote details: %w", err)
	}

	query := `INSERT INTO order_vendor_negotiations
	          (id, tenant_id, order_id, vendor_id, status, initial_offer, latest_offer,
	           currency, quote_details, history, round, expires_at, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.db.ExecContext(ctx, query,
		n.ID, n.TenantID, n.OrderID, n.VendorID, n.Status, n.InitialOffer, n.LatestOffer,
		n.Currency, quote, history, n.Round, n.ExpiresAt, n.CreatedAt, n.UpdatedAt)
	return err
}

const negotiationColumns = `id, tenant_id, order_id, vendor_id, status, initial_offer, latest_offer,
	currency, quote_details, history, round, expires_at, closed_at, created_at, updated_at`

func scanNegotiation(scan func(dest ...any) error) (*domain.OrderVendorNegotiation, error) {
	var n domain.OrderVendorNegotiation
	var quote, history []byte
	err := scan(&n.ID, &n.TenantID, &n.OrderID, &n.VendorID, &n.Status, &n.InitialOffer, &n.LatestOffer,
		&n.Currency, &quote, &history, &n.Round, &n.ExpiresAt, &n.ClosedAt, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(quote) > 0 {
		if err := json.Unmarshal(quote, &n.QuoteDetails); err != nil {
			return nil, fmt.Errorf("unmarshal quote details: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &n.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return &n, nil
}

func (r *negotiationRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.OrderVendorNegotiation, error) {
	query := `SELECT ` + negotiationColumns + ` FROM order_vendor_negotiations WHERE tenant_id = $1 AND id = $2`
	n, err := scanNegotiation(r.db.QueryRowContext(ctx, query, tenantID, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

func (r *negotiationRepository) ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.OrderVendorNegotiation, error) {
	query := `SELECT ` + negotiationColumns + ` FROM order_vendor_negotiations
	          WHERE tenant_id = $1 AND order_id = $2 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.OrderVendorNegotiation
	for rows.Next() {
		n, err := scanNegotiation(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}

// Update persists the negotiation guarded by its previous status and round,
// so two racing counter-offers cannot both land.
func (r *negotiationRepository) Update(ctx context.Context, n *domain.OrderVendorNegotiation, expectedStatus domain.NegotiationStatus, expectedRound int32) error {
	history, err := json.Marshal(n.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	quote, err := json.Marshal(n.QuoteDetails)
	if err != nil {
		return fmt.Errorf("marshal quote details: %w", err)
	}

	query := `UPDATE order_vendor_negotiations
	          SET status = $1, latest_offer = $2, quote_details = $3, history = $4,
	              round = $5, expires_at = $6, closed_at = $7, updated_at = $8
	          WHERE tenant_id = $9 AND id = $10 AND status = $11 AND round = $12`
	res, err := r.db.ExecContext(ctx, query,
		n.Status, n.LatestOffer, quote, history,
		n.Round, n.ExpiresAt, n.ClosedAt, n.UpdatedAt,
		n.TenantID, n.ID, expectedStatus, expectedRound)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

func (r *negotiationRepository) ListExpiredCandidates(ctx context.Context, asOf time.Time, limit int32) ([]domain.OrderVendorNegotiation, error) {
	query := `SELECT ` + negotiationColumns + ` FROM order_vendor_negotiations
	          WHERE status IN ('sent', 'countered', 'pending_response') AND expires_at < $1
	          ORDER BY expires_at ASC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.OrderVendorNegotiation
	for rows.Next() {
		n, err := scanNegotiation(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}
