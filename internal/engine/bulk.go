package engine

import (
	"context"

	"go.uber.org/zap"

	"teamportal/internal/domain"
	"teamportal/internal/events"
)

type BulkOp string

const (
	OpUpdateStatus   BulkOp = "update_status"
	OpAssign         BulkOp = "assign"
	OpChangePriority BulkOp = "change_priority"
	OpDelete         BulkOp = "delete"
)

func (op BulkOp) Valid() bool {
	switch op {
	case OpUpdateStatus, OpAssign, OpChangePriority, OpDelete:
		return true
	}
	return false
}

// ResultKey is the response field carrying the affected-row count.
func (op BulkOp) ResultKey() string {
	switch op {
	case OpAssign:
		return "assigned"
	case OpDelete:
		return "deleted"
	default:
		return "updated"
	}
}

type BulkInput struct {
	Operation    string
	TaskIDs      []string
	Status       *string
	AssignedToID *string
	Priority     *string
	UserID       string
}

type BulkResult struct {
	Operation    BulkOp
	TaskIDsCount int
	Affected     int64
}

// validate checks everything that can be checked without the store.
func (in BulkInput) validate() error {
	op := BulkOp(in.Operation)
	if in.Operation == "" {
		return invalid("operation", "operation is required")
	}
	if !op.Valid() {
		return invalid("operation", "Invalid operation: %s", in.Operation)
	}
	if len(in.TaskIDs) == 0 {
		return invalid("task_ids", "task_ids must be a non-empty array")
	}
	for _, id := range in.TaskIDs {
		if id == "" {
			return invalid("task_ids", "task_ids must not contain empty ids")
		}
	}
	if in.UserID == "" {
		return invalid("user_id", "user_id is required")
	}
	switch op {
	case OpUpdateStatus:
		if in.Status == nil || *in.Status == "" {
			return invalid("status", "status is required for update_status")
		}
		if !domain.TaskStatus(*in.Status).Valid() {
			return invalid("status", "Invalid status: %s", *in.Status)
		}
	case OpAssign:
		if in.AssignedToID == nil || *in.AssignedToID == "" {
			return invalid("assigned_to_id", "assigned_to_id is required for assign")
		}
	case OpChangePriority:
		if in.Priority == nil || *in.Priority == "" {
			return invalid("priority", "priority is required for change_priority")
		}
		if !domain.TaskPriority(*in.Priority).Valid() {
			return invalid("priority", "Invalid priority: %s", *in.Priority)
		}
	}
	return nil
}

// BulkOperation validates the request, requires a superadmin caller and
// applies the change to every live task in one statement.
func (e Engine) BulkOperation(ctx context.Context, in BulkInput) (BulkResult, error) {
	if err := in.validate(); err != nil {
		return BulkResult{}, err
	}
	if err := e.Auth.RequireRole(ctx, in.UserID, domain.RoleSuperadmin); err != nil {
		return BulkResult{}, err
	}

	op := BulkOp(in.Operation)
	now := e.timestamp()
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return BulkResult{}, storeErr("begin bulk operation", err)
	}
	defer tx.Rollback()

	var affected int64
	payload := events.EventPayload{"operation": op, "task_ids": in.TaskIDs}
	switch op {
	case OpUpdateStatus:
		payload["status"] = *in.Status
		affected, err = e.Repo.BulkUpdateStatusTx(ctx, tx, in.TaskIDs, domain.TaskStatus(*in.Status), in.UserID, now)
	case OpAssign:
		payload["assigned_to_id"] = *in.AssignedToID
		affected, err = e.Repo.BulkAssignTx(ctx, tx, in.TaskIDs, *in.AssignedToID, in.UserID, now)
	case OpChangePriority:
		payload["priority"] = *in.Priority
		affected, err = e.Repo.BulkChangePriorityTx(ctx, tx, in.TaskIDs, domain.TaskPriority(*in.Priority), in.UserID, now)
	case OpDelete:
		affected, err = e.Repo.BulkSoftDeleteTx(ctx, tx, in.TaskIDs, in.UserID, now)
	}
	if err != nil {
		return BulkResult{}, storeErr(string(op), err)
	}
	payload["affected"] = affected
	if err := e.audit().Append(ctx, tx, events.TypeBulkOperation, "task", "", in.UserID, payload); err != nil {
		return BulkResult{}, storeErr("append bulk event", err)
	}
	if err := tx.Commit(); err != nil {
		return BulkResult{}, storeErr("commit bulk operation", err)
	}
	e.Logger().Info("bulk operation applied",
		zap.String("operation", string(op)),
		zap.String("user_id", in.UserID),
		zap.Int("task_ids", len(in.TaskIDs)),
		zap.Int64("affected", affected))
	return BulkResult{Operation: op, TaskIDsCount: len(in.TaskIDs), Affected: affected}, nil
}
