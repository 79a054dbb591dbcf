package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"xenial-settlement/internal/repository"

	_ "github.com/lib/pq"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same repository code can run standalone or inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	repository.RefundRequestRepository
	repository.RefundApprovalRepository
	repository.FundRepository
	repository.NegotiationRepository
	repository.OrderRepository
	repository.NotificationRepository
	repository.ApproverDirectoryRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                          db,
		RefundRequestRepository:     NewRefundRequestRepository(db),
		RefundApprovalRepository:    NewRefundApprovalRepository(db),
		FundRepository:              NewFundRepository(db),
		NegotiationRepository:       NewNegotiationRepository(db),
		OrderRepository:             NewOrderRepository(db),
		NotificationRepository:      NewNotificationRepository(db),
		ApproverDirectoryRepository: NewApproverDirectoryRepository(db),
	}
}

// Repositories returns the store's repositories bound to the shared
// database handle.
func (s *Store) Repositories() *repository.Repositories {
	return newRepositories(s.db)
}

// WithinTx runs fn with repositories bound to a single transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(r *repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(newRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func newRepositories(db DBTX) *repository.Repositories {
	return &repository.Repositories{
		RefundRequests:  NewRefundRequestRepository(db),
		RefundApprovals: NewRefundApprovalRepository(db),
		Fund:            NewFundRepository(db),
		Negotiations:    NewNegotiationRepository(db),
		Orders:          NewOrderRepository(db),
		Notifications:   NewNotificationRepository(db),
		Approvers:       NewApproverDirectoryRepository(db),
	}
}
