package server

import (
	"teamportal/internal/engine"
)

// Request fields are optional at the schema level; the engine reports
// missing values with its own messages. Database triggers send extra
// fields, so unknown properties are accepted.

type SyncTaskStatusRequest struct {
	_         struct{} `json:"-" additionalProperties:"true"`
	TaskID    string   `json:"task_id,omitempty" doc:"Task whose status changed"`
	OldStatus string   `json:"old_status,omitempty" doc:"Status before the change"`
	NewStatus string   `json:"new_status,omitempty" doc:"Status after the change"`
}

type SyncTaskStatusInput struct {
	Body SyncTaskStatusRequest
}

type SyncTaskStatusResponse struct {
	Success   bool                 `json:"success"`
	Message   string               `json:"message,omitempty"`
	ParentID  string               `json:"parent_id,omitempty"`
	OldStatus string               `json:"old_status,omitempty"`
	NewStatus string               `json:"new_status,omitempty"`
	Updated   *bool                `json:"updated,omitempty"`
	Levels    []engine.RollupLevel `json:"levels,omitempty" doc:"Every ancestor examined, nearest first"`
}

type SyncTaskStatusOutput struct {
	Body SyncTaskStatusResponse
}

type ProcessOverdueResponse struct {
	Success              bool                          `json:"success"`
	Message              string                        `json:"message,omitempty"`
	Processed            *int                          `json:"processed,omitempty"`
	OverdueTasksFound    *int                          `json:"overdue_tasks_found,omitempty"`
	NotificationsCreated *int                          `json:"notifications_created,omitempty"`
	PrioritiesUpdated    *int                          `json:"priorities_updated,omitempty"`
	PriorityUpdates      []engine.PriorityUpdateResult `json:"priority_updates,omitempty"`
}

type ProcessOverdueOutput struct {
	Body ProcessOverdueResponse
}

type AnalyticsResponse struct {
	Success bool `json:"success"`
	engine.Analytics
}

type AnalyticsOutput struct {
	Body AnalyticsResponse
}

type BulkTaskOperationsRequest struct {
	_            struct{} `json:"-" additionalProperties:"true"`
	Operation    string   `json:"operation,omitempty" doc:"update_status, assign, change_priority or delete"`
	TaskIDs      []string `json:"task_ids,omitempty"`
	Status       *string  `json:"status,omitempty"`
	AssignedToID *string  `json:"assigned_to_id,omitempty"`
	Priority     *string  `json:"priority,omitempty"`
	UserID       string   `json:"user_id,omitempty" doc:"Acting user; defaults to the token subject"`
}

type BulkTaskOperationsInput struct {
	Body BulkTaskOperationsRequest
}

// BulkTaskOperationsResponse carries the affected count under a key named
// after the operation.
type BulkTaskOperationsResponse struct {
	Success      bool   `json:"success"`
	Operation    string `json:"operation"`
	TaskIDsCount int    `json:"task_ids_count"`
	Updated      *int64 `json:"updated,omitempty"`
	Assigned     *int64 `json:"assigned,omitempty"`
	Deleted      *int64 `json:"deleted,omitempty"`
}

type BulkTaskOperationsOutput struct {
	Body BulkTaskOperationsResponse
}

func syncResponse(res engine.SyncStatusResult) SyncTaskStatusResponse {
	if res.Message != "" {
		return SyncTaskStatusResponse{Success: true, Message: res.Message}
	}
	updated := res.Updated
	return SyncTaskStatusResponse{
		Success:   true,
		ParentID:  res.ParentID,
		OldStatus: string(res.OldStatus),
		NewStatus: string(res.NewStatus),
		Updated:   &updated,
		Levels:    res.Levels,
	}
}

func overdueResponse(res engine.OverdueResult) ProcessOverdueResponse {
	if res.Message != "" {
		zero := 0
		return ProcessOverdueResponse{Success: true, Message: res.Message, Processed: &zero}
	}
	return ProcessOverdueResponse{
		Success:              true,
		OverdueTasksFound:    intPtr(res.OverdueTasksFound),
		NotificationsCreated: intPtr(res.NotificationsCreated),
		PrioritiesUpdated:    intPtr(res.PrioritiesUpdated),
		PriorityUpdates:      res.PriorityUpdates,
	}
}

func bulkResponse(res engine.BulkResult) BulkTaskOperationsResponse {
	out := BulkTaskOperationsResponse{
		Success:      true,
		Operation:    string(res.Operation),
		TaskIDsCount: res.TaskIDsCount,
	}
	n := res.Affected
	switch res.Operation.ResultKey() {
	case "assigned":
		out.Assigned = &n
	case "deleted":
		out.Deleted = &n
	default:
		out.Updated = &n
	}
	return out
}

func intPtr(v int) *int { return &v }
