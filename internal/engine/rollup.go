package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"teamportal/internal/domain"
	"teamportal/internal/events"
	"teamportal/internal/repo"
)

const (
	MsgNoParent   = "No parent to sync"
	MsgNoSiblings = "No siblings found"
)

// SyncStatusInput announces that TaskID moved from OldStatus to NewStatus.
// The caller has already persisted the change.
type SyncStatusInput struct {
	TaskID    string
	OldStatus string
	NewStatus string
}

// RollupLevel is one ancestor examined during the ascent.
type RollupLevel struct {
	TaskID    string            `json:"task_id"`
	OldStatus domain.TaskStatus `json:"old_status"`
	NewStatus domain.TaskStatus `json:"new_status"`
	Updated   bool              `json:"updated"`
}

// SyncStatusResult describes the immediate parent, or carries Message when
// there was nothing to roll up.
type SyncStatusResult struct {
	Message   string
	ParentID  string
	OldStatus domain.TaskStatus
	NewStatus domain.TaskStatus
	Updated   bool
	Levels    []RollupLevel
}

// AggregateStatus derives a container's status from its children.
// Order matters: all completed, any blocked, any in progress, all not
// started, otherwise in progress.
func AggregateStatus(children []domain.TaskStatus) domain.TaskStatus {
	if len(children) == 0 {
		return ""
	}
	allCompleted, allNotStarted := true, true
	anyBlocked, anyInProgress := false, false
	for _, s := range children {
		if s != domain.StatusCompleted {
			allCompleted = false
		}
		if s != domain.StatusNotStarted {
			allNotStarted = false
		}
		switch s {
		case domain.StatusBlocked:
			anyBlocked = true
		case domain.StatusInProgress:
			anyInProgress = true
		}
	}
	switch {
	case allCompleted:
		return domain.StatusCompleted
	case anyBlocked:
		return domain.StatusBlocked
	case anyInProgress:
		return domain.StatusInProgress
	case allNotStarted:
		return domain.StatusNotStarted
	default:
		return domain.StatusInProgress
	}
}

// SyncTaskStatus recomputes the changed task's ancestors bottom-up,
// stopping at the first ancestor whose status is already correct or at the
// root. Each level commits on its own, so a failure higher up leaves the
// lower levels applied.
func (e Engine) SyncTaskStatus(ctx context.Context, in SyncStatusInput) (SyncStatusResult, error) {
	if in.TaskID == "" || in.OldStatus == "" || in.NewStatus == "" {
		return SyncStatusResult{}, invalid("", "Missing required fields: task_id, old_status, new_status")
	}
	if !domain.TaskStatus(in.OldStatus).Valid() {
		return SyncStatusResult{}, invalid("old_status", "Invalid old_status: %s", in.OldStatus)
	}
	if !domain.TaskStatus(in.NewStatus).Valid() {
		return SyncStatusResult{}, invalid("new_status", "Invalid new_status: %s", in.NewStatus)
	}

	task, err := e.Repo.GetTask(ctx, in.TaskID)
	if errors.Is(err, repo.ErrNotFound) {
		return SyncStatusResult{}, NotFoundError{What: "Task", ID: in.TaskID}
	}
	if err != nil {
		return SyncStatusResult{}, storeErr("load task", err)
	}
	if task.ParentID == nil || *task.ParentID == "" {
		return SyncStatusResult{Message: MsgNoParent}, nil
	}

	log := e.Logger().With(zap.String("task_id", task.ID))
	maxDepth := e.Config.Rollup.MaxDepth
	visited := map[string]bool{task.ID: true}
	childID, childStatus := task.ID, domain.TaskStatus(in.NewStatus)
	parentID := *task.ParentID

	var res SyncStatusResult
	for depth := 0; ; depth++ {
		if maxDepth > 0 && depth >= maxDepth {
			return res, ConflictError{TaskID: parentID, Message: fmt.Sprintf("task hierarchy deeper than %d levels", maxDepth)}
		}
		if visited[parentID] {
			return res, ConflictError{TaskID: parentID, Message: "task hierarchy cycle detected"}
		}
		visited[parentID] = true

		level, parent, found, err := e.rollupLevel(ctx, parentID, childID, childStatus)
		if err != nil {
			return res, err
		}
		if !found {
			if depth == 0 {
				return SyncStatusResult{Message: MsgNoSiblings}, nil
			}
			break
		}
		res.Levels = append(res.Levels, level)
		if depth == 0 {
			res.ParentID = level.TaskID
			res.OldStatus = level.OldStatus
			res.NewStatus = level.NewStatus
			res.Updated = level.Updated
		}
		if level.Updated {
			log.Info("rolled up parent status",
				zap.String("parent_id", level.TaskID),
				zap.String("from", string(level.OldStatus)),
				zap.String("to", string(level.NewStatus)),
				zap.Int("depth", depth))
		}
		if !level.Updated || parent.ParentID == nil || *parent.ParentID == "" {
			break
		}
		childID, childStatus = parent.ID, level.NewStatus
		parentID = *parent.ParentID
	}
	return res, nil
}

// rollupLevel recomputes one parent from its children, substituting
// childStatus for childID. The write is a compare-and-set on the status
// that was read; when another writer got there first the level is re-read
// and retried. found is false when the parent has no live children.
func (e Engine) rollupLevel(ctx context.Context, parentID, childID string, childStatus domain.TaskStatus) (RollupLevel, domain.Task, bool, error) {
	retries := e.Config.Rollup.CASRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		level, parent, found, applied, err := e.tryRollupLevel(ctx, parentID, childID, childStatus)
		if err != nil || !found || applied {
			return level, parent, found, err
		}
		e.Logger().Debug("parent status changed during rollup; retrying",
			zap.String("parent_id", parentID), zap.Int("attempt", attempt+1))
	}
	return RollupLevel{}, domain.Task{}, false, ConflictError{
		TaskID:  parentID,
		Message: fmt.Sprintf("parent task %s kept changing; gave up after %d attempts", parentID, retries),
	}
}

func (e Engine) tryRollupLevel(ctx context.Context, parentID, childID string, childStatus domain.TaskStatus) (level RollupLevel, parent domain.Task, found, applied bool, err error) {
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return level, parent, false, false, storeErr("begin rollup", err)
	}
	defer tx.Rollback()

	siblings, err := e.Repo.ListSiblingsTx(ctx, tx, parentID)
	if err != nil {
		return level, parent, false, false, storeErr("load siblings", err)
	}
	if len(siblings) == 0 {
		return level, parent, false, false, nil
	}
	statuses := make([]domain.TaskStatus, 0, len(siblings))
	for _, s := range siblings {
		if s.ID == childID {
			s.Status = childStatus
		}
		statuses = append(statuses, s.Status)
	}
	next := AggregateStatus(statuses)

	parent, err = e.Repo.GetTaskTx(ctx, tx, parentID)
	if errors.Is(err, repo.ErrNotFound) {
		return level, parent, false, false, NotFoundError{What: "Parent task", ID: parentID}
	}
	if err != nil {
		return level, parent, false, false, storeErr("load parent", err)
	}
	level = RollupLevel{TaskID: parent.ID, OldStatus: parent.Status, NewStatus: next}
	if next == parent.Status {
		return level, parent, true, true, nil
	}

	now := e.timestamp()
	var completedAt *string
	if next == domain.StatusCompleted {
		completedAt = &now
	}
	ok, err := e.Repo.CompareAndSetStatusTx(ctx, tx, parent.ID, parent.Status, next, completedAt, now)
	if err != nil {
		return level, parent, true, false, storeErr("update parent status", err)
	}
	if !ok {
		return level, parent, true, false, nil
	}
	if err := e.audit().Append(ctx, tx, events.TypeStatusRollup, "task", parent.ID, "", events.EventPayload{
		"from":        parent.Status,
		"to":          next,
		"child_id":    childID,
		"child_count": len(siblings),
	}); err != nil {
		return level, parent, true, false, storeErr("append rollup event", err)
	}
	if err := tx.Commit(); err != nil {
		return level, parent, true, false, storeErr("commit rollup", err)
	}
	level.Updated = true
	parent.Status = next
	parent.UpdatedAt = now
	parent.CompletedAt = completedAt
	return level, parent, true, true, nil
}
