package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"teamportal/internal/domain"
)

// BulkUpdateStatusTx sets status on every live task in ids. completed_at is
// stamped for rows entering completed and cleared when moving elsewhere.
func (r Repo) BulkUpdateStatusTx(ctx context.Context, tx *sqlx.Tx, ids []string, status domain.TaskStatus, actorID, now string) (int64, error) {
	if status == domain.StatusCompleted {
		return bulkExec(ctx, tx, "update status",
			`status=?, updated_by=?, updated_at=?, completed_at=CASE WHEN status='completed' THEN completed_at ELSE ? END`,
			[]any{string(status), actorID, now, now}, ids)
	}
	return bulkExec(ctx, tx, "update status",
		`status=?, updated_by=?, updated_at=?, completed_at=NULL`,
		[]any{string(status), actorID, now}, ids)
}

func (r Repo) BulkAssignTx(ctx context.Context, tx *sqlx.Tx, ids []string, assigneeID, actorID, now string) (int64, error) {
	return bulkExec(ctx, tx, "assign",
		`assigned_to_id=?, updated_by=?, updated_at=?`,
		[]any{assigneeID, actorID, now}, ids)
}

func (r Repo) BulkChangePriorityTx(ctx context.Context, tx *sqlx.Tx, ids []string, priority domain.TaskPriority, actorID, now string) (int64, error) {
	return bulkExec(ctx, tx, "change priority",
		`priority=?, updated_by=?, updated_at=?`,
		[]any{string(priority), actorID, now}, ids)
}

// BulkSoftDeleteTx marks live tasks deleted; rows already deleted are not counted.
func (r Repo) BulkSoftDeleteTx(ctx context.Context, tx *sqlx.Tx, ids []string, actorID, now string) (int64, error) {
	return bulkExec(ctx, tx, "soft delete",
		`deleted_at=?, updated_by=?, updated_at=?`,
		[]any{now, actorID, now}, ids)
}

func bulkExec(ctx context.Context, tx *sqlx.Tx, op, set string, setArgs []any, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append(append([]any{}, setArgs...), ids)
	query, args, err := sqlx.In(`UPDATE tasks SET `+set+` WHERE id IN (?) AND deleted_at IS NULL`, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "build bulk %s", op)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, errors.Wrapf(err, "bulk %s", op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}
