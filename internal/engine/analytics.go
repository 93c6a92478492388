package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"teamportal/internal/domain"
)

const unknownUser = "Unknown"

type TeamMemberStats struct {
	UserID         string  `json:"user_id"`
	UserName       string  `json:"user_name"`
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	CompletionRate float64 `json:"completion_rate"`
}

// Analytics is a read-only snapshot of the live task fleet.
type Analytics struct {
	Total                     int               `json:"total"`
	ByStatus                  map[string]int    `json:"by_status"`
	ByPriority                map[string]int    `json:"by_priority"`
	CompletionRate            float64           `json:"completion_rate"`
	OverdueCount              int               `json:"overdue_count"`
	AverageCompletionTimeDays float64           `json:"average_completion_time_days"`
	TeamPerformance           []TeamMemberStats `json:"team_performance"`
	CalculatedAt              string            `json:"calculated_at"`
}

// CalculateAnalytics aggregates every live task in one pass. Completion
// time uses completed_at, falling back to updated_at for rows completed
// before completed_at was recorded.
func (e Engine) CalculateAnalytics(ctx context.Context) (Analytics, error) {
	tasks, err := e.Repo.ListActiveTasks(ctx)
	if err != nil {
		return Analytics{}, storeErr("load tasks", err)
	}
	res := Analytics{
		Total:           len(tasks),
		ByStatus:        map[string]int{},
		ByPriority:      map[string]int{},
		TeamPerformance: []TeamMemberStats{},
		CalculatedAt:    e.timestamp(),
	}
	if len(tasks) == 0 {
		return res, nil
	}

	today := e.today().Format(time.DateOnly)
	completed := 0
	var durationDays float64
	durations := 0
	perUser := map[string]*TeamMemberStats{}
	var userIDs []string
	for _, t := range tasks {
		res.ByStatus[string(t.Status)]++
		res.ByPriority[string(t.Priority)]++
		done := t.Status == domain.StatusCompleted
		if done {
			completed++
			if d, ok := completionDays(t); ok {
				durationDays += d
				durations++
			}
		} else if t.DueDate != nil && dateOnly(*t.DueDate) < today {
			res.OverdueCount++
		}
		if t.AssignedToID != nil && *t.AssignedToID != "" {
			id := *t.AssignedToID
			s, ok := perUser[id]
			if !ok {
				s = &TeamMemberStats{UserID: id, UserName: unknownUser}
				perUser[id] = s
				userIDs = append(userIDs, id)
			}
			s.TotalTasks++
			if done {
				s.CompletedTasks++
			}
		}
	}
	res.CompletionRate = percent(completed, len(tasks))
	if durations > 0 {
		res.AverageCompletionTimeDays = round2(durationDays / float64(durations))
	}

	if len(userIDs) > 0 {
		profiles, err := e.Repo.ProfilesByIDs(ctx, userIDs)
		if err != nil {
			e.Logger().Warn("profile lookup failed; team names fall back", zap.Error(err))
		}
		for _, id := range userIDs {
			s := perUser[id]
			if p, ok := profiles[id]; ok && p.FullName != "" {
				s.UserName = p.FullName
			}
			s.CompletionRate = percent(s.CompletedTasks, s.TotalTasks)
			res.TeamPerformance = append(res.TeamPerformance, *s)
		}
		sort.SliceStable(res.TeamPerformance, func(i, j int) bool {
			a, b := res.TeamPerformance[i], res.TeamPerformance[j]
			if a.CompletionRate != b.CompletionRate {
				return a.CompletionRate > b.CompletionRate
			}
			return a.UserID < b.UserID
		})
	}
	return res, nil
}

func completionDays(t domain.Task) (float64, bool) {
	created, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		return 0, false
	}
	end := t.UpdatedAt
	if t.CompletedAt != nil && *t.CompletedAt != "" {
		end = *t.CompletedAt
	}
	finished, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return 0, false
	}
	return finished.Sub(created).Hours() / 24, true
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
