package postgres

import (
	"context"
	"database/sql"
	"errors"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/repository"
)

type approverDirectoryRepository struct {
	db DBTX
}

func NewApproverDirectoryRepository(db DBTX) repository.ApproverDirectoryRepository {
	return &approverDirectoryRepository{db: db}
}

// LevelFor returns the highest approval level granted to the actor within
// the tenant. Actors with no grant are not approvers at all.
func (r *approverDirectoryRepository) LevelFor(ctx context.Context, tenantID, actorID string) (int32, error) {
	var level sql.NullInt32
	query := `SELECT MAX(approval_level) FROM approver_levels WHERE tenant_id = $1 AND actor_id = $2`
	err := r.db.QueryRowContext(ctx, query, tenantID, actorID).Scan(&level)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if !level.Valid || level.Int32 == 0 {
		return 0, domain.ErrUnauthorized
	}
	return level.Int32, nil
}
