package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"teamportal/internal/domain"
)

// Repo is the task store accessor shared by every job. Reads skip
// soft-deleted rows; nothing here retries.
type Repo struct {
	DB *sqlx.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,name,status,priority,parent_id,assigned_to_id,due_date,deleted_at,created_at,updated_at,updated_by,completed_at`

const prefixedTaskColumns = `t.id,t.name,t.status,t.priority,t.parent_id,t.assigned_to_id,t.due_date,t.deleted_at,t.created_at,t.updated_at,t.updated_by,t.completed_at`

type taskRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Status       string         `db:"status"`
	Priority     string         `db:"priority"`
	ParentID     sql.NullString `db:"parent_id"`
	AssignedToID sql.NullString `db:"assigned_to_id"`
	DueDate      sql.NullString `db:"due_date"`
	DeletedAt    sql.NullString `db:"deleted_at"`
	CreatedAt    string         `db:"created_at"`
	UpdatedAt    string         `db:"updated_at"`
	UpdatedBy    sql.NullString `db:"updated_by"`
	CompletedAt  sql.NullString `db:"completed_at"`
}

func (row taskRow) toDomain() domain.Task {
	t := domain.Task{
		ID:           row.ID,
		Name:         row.Name,
		Status:       domain.TaskStatus(row.Status),
		Priority:     domain.TaskPriority(row.Priority),
		ParentID:     nullStringPtr(row.ParentID),
		AssignedToID: nullStringPtr(row.AssignedToID),
		DeletedAt:    nullStringPtr(row.DeletedAt),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		UpdatedBy:    nullStringPtr(row.UpdatedBy),
		CompletedAt:  nullStringPtr(row.CompletedAt),
	}
	if row.DueDate.Valid && row.DueDate.String != "" {
		d := dateOnly(row.DueDate.String)
		t.DueDate = &d
	}
	return t
}

func mapTasks(rows []taskRow) []domain.Task {
	res := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res
}

// GetTask loads a live task by id.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTask(ctx, r.DB, id)
}

// GetTaskTx loads a live task inside tx.
func (r Repo) GetTaskTx(ctx context.Context, tx *sqlx.Tx, id string) (domain.Task, error) {
	return getTask(ctx, tx, id)
}

func getTask(ctx context.Context, q sqlx.ExtContext, id string) (domain.Task, error) {
	var row taskRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id=? AND deleted_at IS NULL`), id)
	if err == sql.ErrNoRows {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, errors.Wrapf(err, "get task %s", id)
	}
	return row.toDomain(), nil
}

// ListSiblings returns the live children of parentID.
func (r Repo) ListSiblings(ctx context.Context, parentID string) ([]domain.Task, error) {
	return listSiblings(ctx, r.DB, parentID)
}

func (r Repo) ListSiblingsTx(ctx context.Context, tx *sqlx.Tx, parentID string) ([]domain.Task, error) {
	return listSiblings(ctx, tx, parentID)
}

func listSiblings(ctx context.Context, q sqlx.ExtContext, parentID string) ([]domain.Task, error) {
	var rows []taskRow
	err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE parent_id=? AND deleted_at IS NULL ORDER BY id`), parentID)
	if err != nil {
		return nil, errors.Wrapf(err, "list children of %s", parentID)
	}
	return mapTasks(rows), nil
}

// ListActiveTasks returns every live task.
func (r Repo) ListActiveTasks(ctx context.Context) ([]domain.Task, error) {
	var rows []taskRow
	if err := r.DB.SelectContext(ctx, &rows, `SELECT `+taskColumns+` FROM tasks WHERE deleted_at IS NULL ORDER BY created_at, id`); err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	return mapTasks(rows), nil
}

type overdueRow struct {
	taskRow
	AssigneeName string         `db:"assignee_name"`
	ManagerID    sql.NullString `db:"manager_id"`
}

// ListOverdueTasks returns live, unfinished tasks due strictly before today
// (YYYY-MM-DD), joined with the assignee's name and manager.
func (r Repo) ListOverdueTasks(ctx context.Context, today string) ([]domain.OverdueTask, error) {
	var rows []overdueRow
	query := `SELECT ` + prefixedTaskColumns + `, COALESCE(p.full_name,'') AS assignee_name, p.manager_id AS manager_id
FROM tasks t
LEFT JOIN profiles p ON p.id = t.assigned_to_id
WHERE t.deleted_at IS NULL
  AND t.due_date IS NOT NULL AND t.due_date <> ''
  AND substr(t.due_date, 1, 10) < ?
  AND t.status <> ?
ORDER BY t.due_date, t.id`
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), today, string(domain.StatusCompleted)); err != nil {
		return nil, errors.Wrap(err, "list overdue tasks")
	}
	res := make([]domain.OverdueTask, 0, len(rows))
	for _, row := range rows {
		res = append(res, domain.OverdueTask{
			Task:         row.taskRow.toDomain(),
			AssigneeName: row.AssigneeName,
			ManagerID:    nullStringPtr(row.ManagerID),
		})
	}
	return res, nil
}

// CompareAndSetStatusTx moves a task from expected to next and reports
// whether the row still held expected. completedAt is written as given.
func (r Repo) CompareAndSetStatusTx(ctx context.Context, tx *sqlx.Tx, id string, expected, next domain.TaskStatus, completedAt *string, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tasks SET status=?, updated_at=?, completed_at=? WHERE id=? AND status=? AND deleted_at IS NULL`),
		string(next), now, nullable(completedAt), id, string(expected))
	if err != nil {
		return false, errors.Wrapf(err, "update status of %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

// SetPriorityTx writes a single task's priority.
func (r Repo) SetPriorityTx(ctx context.Context, tx *sqlx.Tx, id string, priority domain.TaskPriority, now string) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tasks SET priority=?, updated_at=? WHERE id=? AND deleted_at IS NULL`),
		string(priority), now, id)
	if err != nil {
		return errors.Wrapf(err, "update priority of %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.DB.ExecContext(ctx, r.DB.Rebind(`INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`),
		t.ID, t.Name, string(t.Status), string(t.Priority), nullable(t.ParentID), nullable(t.AssignedToID), nullable(t.DueDate),
		nullable(t.DeletedAt), t.CreatedAt, t.UpdatedAt, nullable(t.UpdatedBy), nullable(t.CompletedAt))
	if err != nil {
		return errors.Wrapf(err, "insert task %s", t.ID)
	}
	return nil
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func dateOnly(v string) string {
	if len(v) > 10 {
		return v[:10]
	}
	return v
}
