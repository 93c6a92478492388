package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"teamportal/internal/domain"
	"teamportal/internal/events"
)

const MsgNoOverdue = "No overdue tasks found"

// PriorityUpdateResult is the outcome of one automatic priority raise.
type PriorityUpdateResult struct {
	TaskID  string `json:"task_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type OverdueResult struct {
	Message              string
	OverdueTasksFound    int
	NotificationsCreated int
	PrioritiesUpdated    int
	PriorityUpdates      []PriorityUpdateResult
}

// DaysOverdue counts whole calendar days between due and today. Both are
// compared as dates only.
func DaysOverdue(due string, today time.Time) (int, error) {
	d, err := time.Parse(time.DateOnly, dateOnly(due))
	if err != nil {
		return 0, err
	}
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(d).Hours() / 24), nil
}

// ProcessOverdueTasks notifies assignees of overdue work, escalates to
// managers past the manager threshold and raises priority to urgent past
// the urgent threshold. Notifications are written first as one batch; if
// that fails nothing else happens. Priority raises are then applied one
// task at a time and a failing task does not stop the rest.
func (e Engine) ProcessOverdueTasks(ctx context.Context) (OverdueResult, error) {
	log := e.Logger()
	today := e.today()
	tasks, err := e.Repo.ListOverdueTasks(ctx, today.Format(time.DateOnly))
	if err != nil {
		return OverdueResult{}, storeErr("load overdue tasks", err)
	}
	if len(tasks) == 0 {
		log.Info("overdue sweep found nothing", zap.String("today", today.Format(time.DateOnly)))
		return OverdueResult{Message: MsgNoOverdue}, nil
	}

	now := e.timestamp()
	managerAfter := e.Config.Escalation.ManagerAfterDays
	urgentAfter := e.Config.Escalation.UrgentAfterDays
	var notes []domain.Notification
	var raise []domain.OverdueTask
	for _, t := range tasks {
		days, err := DaysOverdue(*t.DueDate, today)
		if err != nil {
			log.Warn("skipping task with unreadable due date", zap.String("task_id", t.ID), zap.String("due_date", *t.DueDate), zap.Error(err))
			continue
		}
		data := map[string]any{
			"task_id":      t.ID,
			"task_name":    t.Name,
			"due_date":     *t.DueDate,
			"days_overdue": days,
		}
		if t.AssignedToID != nil {
			title, msg, err := e.Messages.Overdue(t.Name, days)
			if err != nil {
				return OverdueResult{}, err
			}
			notes = append(notes, e.notification(*t.AssignedToID, domain.NotificationTaskOverdue, title, msg, data, now))

			if days > managerAfter && t.ManagerID != nil {
				title, msg, err := e.Messages.Escalation(t.AssigneeName, t.Name, days)
				if err != nil {
					return OverdueResult{}, err
				}
				escalation := map[string]any{
					"assignee_id":   *t.AssignedToID,
					"assignee_name": t.AssigneeName,
				}
				for k, v := range data {
					escalation[k] = v
				}
				notes = append(notes, e.notification(*t.ManagerID, domain.NotificationTaskEscalation, title, msg, escalation, now))
			}
		}
		if days > urgentAfter && t.Priority != domain.PriorityUrgent {
			raise = append(raise, t)
		}
	}

	if err := e.insertNotifications(ctx, notes); err != nil {
		return OverdueResult{}, err
	}

	res := OverdueResult{
		OverdueTasksFound:    len(tasks),
		NotificationsCreated: len(notes),
		PriorityUpdates:      make([]PriorityUpdateResult, 0, len(raise)),
	}
	for _, t := range raise {
		out := PriorityUpdateResult{TaskID: t.ID, Success: true}
		if err := e.raisePriority(ctx, t.Task, now); err != nil {
			log.Warn("failed to raise priority", zap.String("task_id", t.ID), zap.Error(err))
			out.Success = false
			out.Error = err.Error()
		} else {
			res.PrioritiesUpdated++
		}
		res.PriorityUpdates = append(res.PriorityUpdates, out)
	}
	log.Info("overdue sweep finished",
		zap.Int("overdue_tasks_found", res.OverdueTasksFound),
		zap.Int("notifications_created", res.NotificationsCreated),
		zap.Int("priorities_updated", res.PrioritiesUpdated),
		zap.Int("priority_failures", len(raise)-res.PrioritiesUpdated))
	return res, nil
}

func (e Engine) notification(userID, kind, title, msg string, data map[string]any, now string) domain.Notification {
	return domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   msg,
		Data:      data,
		CreatedAt: now,
	}
}

func (e Engine) insertNotifications(ctx context.Context, notes []domain.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr("begin notifications", err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertNotificationsTx(ctx, tx, notes); err != nil {
		return storeErr("insert notifications", err)
	}
	if err := e.audit().Append(ctx, tx, events.TypeNotifyOverdue, "notification", "", "", events.EventPayload{"count": len(notes)}); err != nil {
		return storeErr("append notification event", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit notifications", err)
	}
	return nil
}

func (e Engine) raisePriority(ctx context.Context, t domain.Task, now string) error {
	tx, err := e.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetPriorityTx(ctx, tx, t.ID, domain.PriorityUrgent, now); err != nil {
		return err
	}
	if err := e.audit().Append(ctx, tx, events.TypePriorityEscalate, "task", t.ID, "", events.EventPayload{
		"from": t.Priority,
		"to":   domain.PriorityUrgent,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func dateOnly(v string) string {
	if len(v) > 10 {
		return v[:10]
	}
	return v
}
