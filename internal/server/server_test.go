package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamportal/internal/config"
	"teamportal/internal/db"
	"teamportal/internal/domain"
	"teamportal/internal/engine"
	"teamportal/internal/migrate"
)

var fixedNow = time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	engine engine.Engine
}

func newTestServer(t *testing.T, authCfg AuthConfig) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	e, err := engine.New(conn, config.Default(), nil)
	require.NoError(t, err)
	e.Now = func() time.Time { return fixedNow }

	handler, err := New(Config{Engine: e, Auth: authCfg})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{Server: srv, engine: e}
}

func (s *testServer) profile(t *testing.T, id, role string) {
	t.Helper()
	require.NoError(t, s.engine.Repo.InsertProfile(context.Background(), domain.Profile{
		ID: id, FullName: "User " + id, Email: id + "@example.com", Role: role, CreatedAt: fixedNow.Format(time.RFC3339),
	}))
}

func (s *testServer) task(t *testing.T, id string, status domain.TaskStatus, parentID string) {
	t.Helper()
	ts := fixedNow.Add(-48 * time.Hour).Format(time.RFC3339)
	task := domain.Task{ID: id, Name: "Task " + id, Status: status, Priority: domain.PriorityMedium, CreatedAt: ts, UpdatedAt: ts}
	if parentID != "" {
		task.ParentID = &parentID
	}
	require.NoError(t, s.engine.Repo.InsertTask(context.Background(), task))
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "secret"})
	resp, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/functions/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode(t, body)["status"])
}

func TestSyncTaskStatusRollsUpParent(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	srv.task(t, "P", domain.StatusNotStarted, "")
	srv.task(t, "A", domain.StatusCompleted, "P")
	srv.task(t, "B", domain.StatusInProgress, "P")

	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/functions/v1/sync-task-status", map[string]any{
		"task_id":    "B",
		"old_status": "in-progress",
		"new_status": "completed",
		"record":     map[string]any{"id": "B"},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode(t, body)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "P", out["parent_id"])
	assert.Equal(t, "not-started", out["old_status"])
	assert.Equal(t, "completed", out["new_status"])
	assert.Equal(t, true, out["updated"])

	parent, err := srv.engine.Repo.GetTask(context.Background(), "P")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, parent.Status)
}

func TestSyncTaskStatusNoParent(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	srv.task(t, "root", domain.StatusNotStarted, "")

	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/functions/v1/sync-task-status", map[string]any{
		"task_id": "root", "old_status": "not-started", "new_status": "blocked",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, engine.MsgNoParent, out["message"])
	assert.NotContains(t, out, "parent_id")
}

func TestSyncTaskStatusErrors(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	url := srv.URL + "/functions/v1/sync-task-status"

	resp, body := doJSON(t, srv.Client(), http.MethodPost, url, map[string]any{"task_id": "x"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing required fields: task_id, old_status, new_status", decode(t, body)["error"])

	resp, body = doJSON(t, srv.Client(), http.MethodPost, url, map[string]any{
		"task_id": "x", "old_status": "done", "new_status": "completed",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid old_status: done", decode(t, body)["error"])

	resp, body = doJSON(t, srv.Client(), http.MethodPost, url, map[string]any{
		"task_id": "missing", "old_status": "not-started", "new_status": "completed",
	}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Task not found", decode(t, body)["error"])
}

func TestBodiesCarryOnlyDocumentedKeys(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	url := srv.URL + "/functions/v1/sync-task-status"

	resp, body := doJSON(t, srv.Client(), http.MethodPost, url, map[string]any{"task_id": "x"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decode(t, body)
	assert.NotContains(t, out, "$schema")
	for k := range out {
		assert.Contains(t, []string{"error", "details"}, k)
	}

	resp, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/functions/v1/process-overdue-tasks", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, decode(t, body), "$schema")
	assert.Empty(t, resp.Header.Get("Link"))
}

func TestProcessOverdueEmpty(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/functions/v1/process-overdue-tasks", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode(t, body)
	assert.Equal(t, engine.MsgNoOverdue, out["message"])
	assert.EqualValues(t, 0, out["processed"])
}

func TestProcessOverdueCounts(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	srv.profile(t, "u1", "employee")
	due := fixedNow.AddDate(0, 0, -2).Format(time.DateOnly)
	assignee := "u1"
	ts := fixedNow.Format(time.RFC3339)
	require.NoError(t, srv.engine.Repo.InsertTask(context.Background(), domain.Task{
		ID: "late", Name: "Late", Status: domain.StatusInProgress, Priority: domain.PriorityLow,
		AssignedToID: &assignee, DueDate: &due, CreatedAt: ts, UpdatedAt: ts,
	}))

	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/functions/v1/process-overdue-tasks", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode(t, body)
	assert.EqualValues(t, 1, out["overdue_tasks_found"])
	assert.EqualValues(t, 1, out["notifications_created"])
	assert.EqualValues(t, 0, out["priorities_updated"])
}

func TestAnalyticsEmptyFleet(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/functions/v1/calculate-task-analytics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode(t, body)
	assert.Equal(t, true, out["success"])
	assert.EqualValues(t, 0, out["total"])
	assert.Equal(t, map[string]any{}, out["by_status"])
	assert.Equal(t, map[string]any{}, out["by_priority"])
	assert.Equal(t, []any{}, out["team_performance"])
	assert.EqualValues(t, 0, out["completion_rate"])
}

func TestBulkRequiresSuperadmin(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	srv.profile(t, "emp", "employee")
	srv.task(t, "t1", domain.StatusNotStarted, "")

	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/functions/v1/bulk-task-operations", map[string]any{
		"operation": "delete", "task_ids": []string{"t1"}, "user_id": "emp",
	}, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode, string(body))

	task, err := srv.engine.Repo.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, task.DeletedAt)
}

func TestBulkValidation(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/functions/v1/bulk-task-operations", map[string]any{
		"operation": "assign", "task_ids": []string{"t1"}, "user_id": "admin",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, "assigned_to_id is required for assign", out["error"])
	assert.Equal(t, map[string]any{"field": "assigned_to_id"}, out["details"])
}

func TestBulkResponseKeyFollowsOperation(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	srv.profile(t, "admin", domain.RoleSuperadmin)
	srv.profile(t, "u2", "employee")
	srv.task(t, "t1", domain.StatusNotStarted, "")
	srv.task(t, "t2", domain.StatusNotStarted, "")

	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/functions/v1/bulk-task-operations", map[string]any{
		"operation": "assign", "task_ids": []string{"t1", "t2", "ghost"}, "assigned_to_id": "u2", "user_id": "admin",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode(t, body)
	assert.Equal(t, "assign", out["operation"])
	assert.EqualValues(t, 3, out["task_ids_count"])
	assert.EqualValues(t, 2, out["assigned"])
	assert.NotContains(t, out, "updated")
}

func TestJWTGate(t *testing.T) {
	const secret = "s3cret"
	srv := newTestServer(t, AuthConfig{JWTSecret: secret})
	srv.profile(t, "admin", domain.RoleSuperadmin)
	srv.task(t, "t1", domain.StatusNotStarted, "")
	url := srv.URL + "/functions/v1/bulk-task-operations"
	body := map[string]any{"operation": "update_status", "task_ids": []string{"t1"}, "status": "blocked"}

	resp, _ := doJSON(t, srv.Client(), http.MethodPost, url, body, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, srv.Client(), http.MethodPost, url, body, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "admin"}).SignedString([]byte(secret))
	require.NoError(t, err)
	resp, data := doJSON(t, srv.Client(), http.MethodPost, url, body, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.EqualValues(t, 1, decode(t, data)["updated"])
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	resp, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/functions/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decode(t, body)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/functions/v1/sync-task-status", "/functions/v1/process-overdue-tasks", "/functions/v1/calculate-task-analytics", "/functions/v1/bulk-task-operations"} {
		assert.Contains(t, paths, p)
	}
}
