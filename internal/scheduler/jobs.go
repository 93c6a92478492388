package scheduler

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"teamportal/internal/config"
	"teamportal/internal/engine"
	"teamportal/internal/storage"
)

const (
	JobOverdue   = "process-overdue-tasks"
	JobAnalytics = "calculate-task-analytics"
)

// Jobs binds the engine's periodic work to the scheduler.
type Jobs struct {
	Engine engine.Engine
	// Snapshots receives one JSON document per analytics run when set.
	Snapshots      storage.Storage
	SnapshotPrefix string
}

func (j Jobs) Overdue(ctx context.Context) error {
	_, err := j.Engine.ProcessOverdueTasks(ctx)
	return err
}

func (j Jobs) Analytics(ctx context.Context) error {
	a, err := j.Engine.CalculateAnalytics(ctx)
	if err != nil {
		return err
	}
	if j.Snapshots == nil {
		return nil
	}
	p, err := SaveSnapshot(ctx, j.Snapshots, j.SnapshotPrefix, a)
	if err != nil {
		return err
	}
	j.Engine.Logger().Info("analytics snapshot stored", zap.String("path", p), zap.Int("total", a.Total))
	return nil
}

// SnapshotPath names a snapshot by its calculation time so a listing sorts
// chronologically.
func SnapshotPath(prefix string, at time.Time) string {
	name := at.UTC().Format("20060102T150405Z") + ".json"
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func SaveSnapshot(ctx context.Context, store storage.Storage, prefix string, a engine.Analytics) (string, error) {
	at, err := time.Parse(time.RFC3339, a.CalculatedAt)
	if err != nil {
		at = time.Now()
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", err
	}
	p := SnapshotPath(prefix, at)
	if err := store.Write(ctx, p, data); err != nil {
		return "", err
	}
	return p, nil
}

// Register adds every job whose spec is configured.
func Register(s *Scheduler, cfg *config.Config, j Jobs) error {
	if spec := cfg.Schedule.Overdue; spec != "" {
		if _, err := s.Schedule(JobOverdue, spec, j.Overdue); err != nil {
			return err
		}
	}
	if spec := cfg.Schedule.Analytics; spec != "" {
		if _, err := s.Schedule(JobAnalytics, spec, j.Analytics); err != nil {
			return err
		}
	}
	return nil
}
