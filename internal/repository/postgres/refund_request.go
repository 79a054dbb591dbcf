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

type refundRequestRepository struct {
	db DBTX
}

func NewRefundRequestRepository(db DBTX) repository.RefundRequestRepository {
	return &refundRequestRepository{db: db}
}

func (r *refundRequestRepository) Create(ctx context.Context, req *domain.RefundRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	evidence, err := json.Marshal(req.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	calc, err := json.Marshal(req.Calculation)
	if err != nil {
		return fmt.Errorf("marshal calculation: %w", err)
	}

	query := `INSERT INTO refund_requests
	          (id, tenant_id, order_id, request_number, refund_reason, refund_type,
	           requested_amount, quality_issue_percentage, evidence, customer_notes,
	           calculation, status, prior_status, requester_id, requested_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = r.db.ExecContext(ctx, query,
		req.ID, req.TenantID, req.OrderID, req.RequestNumber, req.RefundReason, req.RefundType,
		req.RequestedAmount, req.QualityIssuePercentage, evidence, req.CustomerNotes,
		calc, req.Status, req.PriorStatus, req.RequesterID, req.RequestedAt)
	return err
}

const refundRequestColumns = `id, tenant_id, order_id, request_number, refund_reason, refund_type,
	requested_amount, quality_issue_percentage, evidence, COALESCE(customer_notes, ''),
	calculation, status, COALESCE(prior_status, ''), current_approver_id,
	requester_id, requested_at, approved_at, processed_at, completed_at`

func (r *refundRequestRepository) scanRequest(scan func(dest ...any) error) (*domain.RefundRequest, error) {
	var req domain.RefundRequest
	var evidence, calc []byte
	err := scan(&req.ID, &req.TenantID, &req.OrderID, &req.RequestNumber, &req.RefundReason, &req.RefundType,
		&req.RequestedAmount, &req.QualityIssuePercentage, &evidence, &req.CustomerNotes,
		&calc, &req.Status, &req.PriorStatus, &req.CurrentApproverID,
		&req.RequesterID, &req.RequestedAt, &req.ApprovedAt, &req.ProcessedAt, &req.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &req.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}
	if len(calc) > 0 && string(calc) != "null" {
		req.Calculation = &domain.RefundCalculation{}
		if err := json.Unmarshal(calc, req.Calculation); err != nil {
			return nil, fmt.Errorf("unmarshal calculation: %w", err)
		}
	}
	return &req, nil
}

func (r *refundRequestRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.RefundRequest, error) {
	query := `SELECT ` + refundRequestColumns + ` FROM refund_requests WHERE tenant_id = $1 AND id = $2`
	req, err := r.scanRequest(r.db.QueryRowContext(ctx, query, tenantID, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return req, err
}

func (r *refundRequestRepository) ListByTenant(ctx context.Context, tenantID string, status string, page, pageSize int32) ([]domain.RefundRequest, int32, error) {
	offset := (page - 1) * pageSize
	query := `SELECT ` + refundRequestColumns + ` FROM refund_requests
	          WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
	          ORDER BY requested_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.db.QueryContext(ctx, query, tenantID, status, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reqs []domain.RefundRequest
	for rows.Next() {
		req, err := r.scanRequest(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int32
	countQuery := `SELECT count(*) FROM refund_requests WHERE tenant_id = $1 AND ($2 = '' OR status = $2)`
	if err := r.db.QueryRowContext(ctx, countQuery, tenantID, status).Scan(&count); err != nil {
		return nil, 0, err
	}
	return reqs, count, nil
}

func (r *refundRequestRepository) ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.RefundRequest, error) {
	query := `SELECT ` + refundRequestColumns + ` FROM refund_requests
	          WHERE tenant_id = $1 AND order_id = $2 ORDER BY requested_at DESC`
	rows, err := r.db.QueryContext(ctx, query, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []domain.RefundRequest
	for rows.Next() {
		req, err := r.scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

func (r *refundRequestRepository) CountForDay(ctx context.Context, tenantID string, day time.Time) (int32, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	var count int32
	query := `SELECT count(*) FROM refund_requests
	          WHERE tenant_id = $1 AND requested_at >= $2 AND requested_at < $3`
	err := r.db.QueryRowContext(ctx, query, tenantID, start, start.AddDate(0, 0, 1)).Scan(&count)
	return count, err
}

func (r *refundRequestRepository) UpdateCalculation(ctx context.Context, tenantID, id string, calc *domain.RefundCalculation) error {
	payload, err := json.Marshal(calc)
	if err != nil {
		return fmt.Errorf("marshal calculation: %w", err)
	}
	query := `UPDATE refund_requests SET calculation = $1 WHERE tenant_id = $2 AND id = $3`
	res, err := r.db.ExecContext(ctx, query, payload, tenantID, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendEvidence merges new evidence documents into the request's jsonb
// array and appends the customer's note.
func (r *refundRequestRepository) AppendEvidence(ctx context.Context, tenantID, id string, evidence []domain.EvidenceDocument, notes string) error {
	payload, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	query := `UPDATE refund_requests
	          SET evidence = COALESCE(evidence, '[]'::jsonb) || $1::jsonb,
	              customer_notes = TRIM(BOTH E'\n' FROM COALESCE(customer_notes, '') || E'\n' || $2)
	          WHERE tenant_id = $3 AND id = $4`
	res, err := r.db.ExecContext(ctx, query, payload, notes, tenantID, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *refundRequestRepository) UpdateStatus(ctx context.Context, req *domain.RefundRequest, expected domain.RefundStatus) error {
	query := `UPDATE refund_requests
	          SET status = $1, prior_status = $2, current_approver_id = $3,
	              approved_at = $4, processed_at = $5, completed_at = $6
	          WHERE tenant_id = $7 AND id = $8 AND status = $9`
	res, err := r.db.ExecContext(ctx, query,
		req.Status, req.PriorStatus, req.CurrentApproverID,
		req.ApprovedAt, req.ProcessedAt, req.CompletedAt,
		req.TenantID, req.ID, expected)
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
