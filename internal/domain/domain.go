package domain

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not-started"
	StatusInProgress TaskStatus = "in-progress"
	StatusInReview   TaskStatus = "in-review"
	StatusBlocked    TaskStatus = "blocked"
	StatusCompleted  TaskStatus = "completed"
)

// Statuses lists every status in display order.
var Statuses = []TaskStatus{StatusNotStarted, StatusInProgress, StatusInReview, StatusBlocked, StatusCompleted}

func (s TaskStatus) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

var Priorities = []TaskPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p TaskPriority) Valid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// RoleSuperadmin is the only role allowed to run bulk mutations.
const RoleSuperadmin = "superadmin"

const (
	NotificationTaskOverdue    = "task_overdue"
	NotificationTaskEscalation = "task_overdue_escalation"
)

type Task struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Status       TaskStatus   `json:"status" enum:"not-started,in-progress,in-review,blocked,completed"`
	Priority     TaskPriority `json:"priority" enum:"low,medium,high,urgent"`
	ParentID     *string      `json:"parent_id,omitempty"`
	AssignedToID *string      `json:"assigned_to_id,omitempty"`
	DueDate      *string      `json:"due_date,omitempty" format:"date"`
	DeletedAt    *string      `json:"deleted_at,omitempty" format:"date-time"`
	CreatedAt    string       `json:"created_at" format:"date-time"`
	UpdatedAt    string       `json:"updated_at" format:"date-time"`
	UpdatedBy    *string      `json:"updated_by,omitempty"`
	CompletedAt  *string      `json:"completed_at,omitempty" format:"date-time"`
}

type Profile struct {
	ID        string  `json:"id"`
	FullName  string  `json:"full_name"`
	Email     string  `json:"email"`
	ManagerID *string `json:"manager_id,omitempty"`
	Role      string  `json:"role"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt string         `json:"created_at" format:"date-time"`
}

// OverdueTask is a task joined with its assignee and the assignee's manager.
type OverdueTask struct {
	Task
	AssigneeName string
	ManagerID    *string
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	PayloadJSON string `json:"payload_json"`
}
