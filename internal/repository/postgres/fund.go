package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/repository"
)

type fundRepository struct {
	db DBTX
}

func NewFundRepository(db DBTX) repository.FundRepository {
	return &fundRepository{db: db}
}

const fundTransactionColumns = `seq, id, tenant_id, order_id, refund_request_id, transaction_type,
	amount, shortfall_amount, COALESCE(description, ''), balance_before, balance_after, created_at`

func scanFundTransaction(scan func(dest ...any) error) (*domain.InsuranceFundTransaction, error) {
	var tx domain.InsuranceFundTransaction
	err := scan(&tx.Seq, &tx.ID, &tx.TenantID, &tx.OrderID, &tx.RefundRequestID, &tx.TransactionType,
		&tx.Amount, &tx.ShortfallAmount, &tx.Description, &tx.BalanceBefore, &tx.BalanceAfter, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *fundRepository) LastTransaction(ctx context.Context, tenantID string) (*domain.InsuranceFundTransaction, error) {
	query := `SELECT ` + fundTransactionColumns + ` FROM insurance_fund_transactions
	          WHERE tenant_id = $1 ORDER BY seq DESC LIMIT 1`
	tx, err := scanFundTransaction(r.db.QueryRowContext(ctx, query, tenantID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return tx, err
}

// AppendTransaction is the ledger's only write path. The insert lands only
// if the tenant's chain head is still expectedSeq; a concurrent append
// makes the SELECT produce zero rows and nothing is written. Under read
// committed two appends can both pass the guard before either commits;
// the table's UNIQUE (tenant_id, seq) constraint then rejects the loser,
// which is reported as a lost race the same as the zero-row case.
func (r *fundRepository) AppendTransaction(ctx context.Context, tx *domain.InsuranceFundTransaction, expectedSeq int64) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.Seq = expectedSeq + 1

	query := `INSERT INTO insurance_fund_transactions
	          (seq, id, tenant_id, order_id, refund_request_id, transaction_type,
	           amount, shortfall_amount, description, balance_before, balance_after, created_at)
	          SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
	          WHERE (SELECT COALESCE(MAX(seq), 0) FROM insurance_fund_transactions WHERE tenant_id = $3) = $13
	          RETURNING seq`
	err := r.db.QueryRowContext(ctx, query,
		tx.Seq, tx.ID, tx.TenantID, tx.OrderID, tx.RefundRequestID, tx.TransactionType,
		tx.Amount, tx.ShortfallAmount, tx.Description, tx.BalanceBefore, tx.BalanceAfter, tx.CreatedAt,
		expectedSeq).Scan(&tx.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrConcurrentModification
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return domain.ErrConcurrentModification
	}
	return err
}

func (r *fundRepository) ListTransactions(ctx context.Context, tenantID string, txType string, page, pageSize int32) ([]domain.InsuranceFundTransaction, int32, error) {
	offset := (page - 1) * pageSize
	query := `SELECT ` + fundTransactionColumns + ` FROM insurance_fund_transactions
	          WHERE tenant_id = $1 AND ($2 = '' OR transaction_type = $2)
	          ORDER BY seq DESC LIMIT $3 OFFSET $4`
	rows, err := r.db.QueryContext(ctx, query, tenantID, txType, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var txs []domain.InsuranceFundTransaction
	for rows.Next() {
		tx, err := scanFundTransaction(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int32
	countQuery := `SELECT count(*) FROM insurance_fund_transactions
	               WHERE tenant_id = $1 AND ($2 = '' OR transaction_type = $2)`
	if err := r.db.QueryRowContext(ctx, countQuery, tenantID, txType).Scan(&count); err != nil {
		return nil, 0, err
	}
	return txs, count, nil
}

func (r *fundRepository) ListChain(ctx context.Context, tenantID string) ([]domain.InsuranceFundTransaction, error) {
	query := `SELECT ` + fundTransactionColumns + ` FROM insurance_fund_transactions
	          WHERE tenant_id = $1 ORDER BY seq ASC`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.InsuranceFundTransaction
	for rows.Next() {
		tx, err := scanFundTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (r *fundRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM insurance_fund_transactions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

func (r *fundRepository) Statistics(ctx context.Context, tenantID string, from, to time.Time) (*domain.FundStatistics, error) {
	stats := &domain.FundStatistics{PeriodStart: from, PeriodEnd: to}

	query := `SELECT
	            COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'contribution'), 0),
	            COALESCE(SUM(amount - shortfall_amount) FILTER (WHERE transaction_type = 'withdrawal'), 0),
	            COUNT(*) FILTER (WHERE transaction_type = 'contribution'),
	            COUNT(*) FILTER (WHERE transaction_type = 'withdrawal')
	          FROM insurance_fund_transactions
	          WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`
	err := r.db.QueryRowContext(ctx, query, tenantID, from, to).Scan(
		&stats.TotalContributions, &stats.TotalWithdrawals, &stats.ContributionCount, &stats.WithdrawalCount)
	if err != nil {
		return nil, err
	}
	stats.TransactionCount = stats.ContributionCount + stats.WithdrawalCount
	stats.NetChange = stats.TotalContributions.Sub(stats.TotalWithdrawals)

	last, err := r.LastTransaction(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		stats.CurrentBalance = last.BalanceAfter
	} else {
		stats.CurrentBalance = decimal.Zero
	}
	return stats, nil
}

func (r *fundRepository) HasHold(ctx context.Context, tenantID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM insurance_fund_holds WHERE tenant_id = $1)`
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&exists)
	return exists, err
}

func (r *fundRepository) PlaceHold(ctx context.Context, tenantID, reason string) error {
	query := `INSERT INTO insurance_fund_holds (tenant_id, reason, placed_at)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (tenant_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, tenantID, reason, time.Now())
	return err
}

func (r *fundRepository) ClearHold(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM insurance_fund_holds WHERE tenant_id = $1`, tenantID)
	return err
}
