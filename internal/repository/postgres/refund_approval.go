package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/repository"
)

type refundApprovalRepository struct {
	db DBTX
}

func NewRefundApprovalRepository(db DBTX) repository.RefundApprovalRepository {
	return &refundApprovalRepository{db: db}
}

func (r *refundApprovalRepository) Create(ctx context.Context, approval *domain.RefundApproval) error {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	var reviewed []byte
	if approval.ReviewedCalculation != nil {
		var err error
		reviewed, err = json.Marshal(approval.ReviewedCalculation)
		if err != nil {
			return fmt.Errorf("marshal reviewed calculation: %w", err)
		}
	}

	query := `INSERT INTO refund_approvals
	          (id, tenant_id, refund_request_id, approver_id, approval_level,
	           decision, decision_notes, reviewed_calculation, adjusted_amount, decided_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		approval.ID, approval.TenantID, approval.RefundRequestID, approval.ApproverID, approval.ApprovalLevel,
		approval.Decision, approval.DecisionNotes, reviewed, approval.AdjustedAmount, approval.DecidedAt)
	return err
}

func (r *refundApprovalRepository) ListByRequest(ctx context.Context, tenantID, refundRequestID string) ([]domain.RefundApproval, error) {
	query := `SELECT id, tenant_id, refund_request_id, approver_id, approval_level,
	                 decision, COALESCE(decision_notes, ''), reviewed_calculation, adjusted_amount, decided_at
	          FROM refund_approvals
	          WHERE tenant_id = $1 AND refund_request_id = $2
	          ORDER BY decided_at ASC`
	rows, err := r.db.QueryContext(ctx, query, tenantID, refundRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []domain.RefundApproval
	for rows.Next() {
		var a domain.RefundApproval
		var reviewed []byte
		if err := rows.Scan(&a.ID, &a.TenantID, &a.RefundRequestID, &a.ApproverID, &a.ApprovalLevel,
			&a.Decision, &a.DecisionNotes, &reviewed, &a.AdjustedAmount, &a.DecidedAt); err != nil {
			return nil, err
		}
		if len(reviewed) > 0 && string(reviewed) != "null" {
			a.ReviewedCalculation = &domain.RefundCalculation{}
			if err := json.Unmarshal(reviewed, a.ReviewedCalculation); err != nil {
				return nil, fmt.Errorf("unmarshal reviewed calculation: %w", err)
			}
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
