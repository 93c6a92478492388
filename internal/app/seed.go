package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teamportal/internal/domain"
	"teamportal/internal/repo"
)

// SeedSummary lists what Seed created.
type SeedSummary struct {
	Profiles []string `json:"profiles"`
	Tasks    []string `json:"tasks"`
}

type seedProfile struct {
	id, name, role, manager string
}

var seedProfiles = []seedProfile{
	{"admin", "Ada Admin", domain.RoleSuperadmin, ""},
	{"manager", "Max Manager", "manager", ""},
	{"alice", "Alice Doe", "employee", "manager"},
	{"bob", "Bob Roe", "employee", "manager"},
}

// Seed writes a small demo organization: one project task with subtasks in
// mixed states and a few overdue tasks. Existing profiles are kept.
func Seed(ctx context.Context, r repo.Repo, now time.Time) (SeedSummary, error) {
	var sum SeedSummary
	ts := now.UTC().Format(time.RFC3339)
	for _, p := range seedProfiles {
		if _, err := r.GetProfile(ctx, p.id); err == nil {
			continue
		} else if !errors.Is(err, repo.ErrNotFound) {
			return sum, err
		}
		prof := domain.Profile{ID: p.id, FullName: p.name, Email: p.id + "@example.com", Role: p.role, CreatedAt: ts}
		if p.manager != "" {
			m := p.manager
			prof.ManagerID = &m
		}
		if err := r.InsertProfile(ctx, prof); err != nil {
			return sum, fmt.Errorf("seed profile %s: %w", p.id, err)
		}
		sum.Profiles = append(sum.Profiles, p.id)
	}

	day := func(offset int) *string {
		d := now.AddDate(0, 0, offset).Format(time.DateOnly)
		return &d
	}
	who := func(id string) *string { return &id }
	projectID := uuid.NewString()
	tasks := []domain.Task{
		{ID: projectID, Name: "Quarterly onboarding revamp", Status: domain.StatusInProgress, Priority: domain.PriorityHigh, AssignedToID: who("manager"), DueDate: day(30)},
		{ID: uuid.NewString(), Name: "Draft welcome pack", Status: domain.StatusCompleted, Priority: domain.PriorityMedium, ParentID: &projectID, AssignedToID: who("alice"), CompletedAt: &ts},
		{ID: uuid.NewString(), Name: "Book orientation rooms", Status: domain.StatusInProgress, Priority: domain.PriorityMedium, ParentID: &projectID, AssignedToID: who("bob"), DueDate: day(-2)},
		{ID: uuid.NewString(), Name: "Update benefits handbook", Status: domain.StatusNotStarted, Priority: domain.PriorityLow, ParentID: &projectID, AssignedToID: who("alice"), DueDate: day(-5)},
		{ID: uuid.NewString(), Name: "Collect payroll forms", Status: domain.StatusBlocked, Priority: domain.PriorityHigh, AssignedToID: who("bob"), DueDate: day(-9)},
		{ID: uuid.NewString(), Name: "Archive old contracts", Status: domain.StatusNotStarted, Priority: domain.PriorityLow, DueDate: day(-12)},
	}
	for _, t := range tasks {
		t.CreatedAt = now.AddDate(0, 0, -14).UTC().Format(time.RFC3339)
		t.UpdatedAt = t.CreatedAt
		if err := r.InsertTask(ctx, t); err != nil {
			return sum, fmt.Errorf("seed task %q: %w", t.Name, err)
		}
		sum.Tasks = append(sum.Tasks, t.ID)
	}
	return sum, nil
}
