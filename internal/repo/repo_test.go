package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamportal/internal/db"
	"teamportal/internal/domain"
	"teamportal/internal/migrate"
	"teamportal/internal/repo"
)

const ts = "2024-03-20T09:00:00Z"

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func insert(t *testing.T, r repo.Repo, id string, status domain.TaskStatus, parentID string) {
	t.Helper()
	task := domain.Task{ID: id, Name: id, Status: status, Priority: domain.PriorityMedium, CreatedAt: ts, UpdatedAt: ts}
	if parentID != "" {
		task.ParentID = &parentID
	}
	require.NoError(t, r.InsertTask(context.Background(), task))
}

func TestMigrateIsIdempotent(t *testing.T) {
	r := newRepo(t)
	require.NoError(t, migrate.Migrate(r.DB))
	v, err := migrate.Version(r.DB)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCompareAndSetStatus(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insert(t, r, "p", domain.StatusInProgress, "")

	tx, err := r.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	ok, err := r.CompareAndSetStatusTx(ctx, tx, "p", domain.StatusNotStarted, domain.StatusCompleted, nil, ts)
	require.NoError(t, err)
	assert.False(t, ok)

	done := ts
	ok, err = r.CompareAndSetStatusTx(ctx, tx, "p", domain.StatusInProgress, domain.StatusCompleted, &done, ts)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tx.Commit())

	p, err := r.GetTask(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
}

func TestListSiblingsSkipsDeleted(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insert(t, r, "p", domain.StatusInProgress, "")
	insert(t, r, "b", domain.StatusInProgress, "p")
	insert(t, r, "a", domain.StatusBlocked, "p")
	_, err := r.DB.Exec(`UPDATE tasks SET deleted_at=? WHERE id='a'`, ts)
	require.NoError(t, err)

	kids, err := r.ListSiblings(ctx, "p")
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, "b", kids[0].ID)

	_, err = r.GetTask(ctx, "a")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestListOverdueTasksJoinsAssignee(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	boss := "boss"
	require.NoError(t, r.InsertProfile(ctx, domain.Profile{ID: boss, FullName: "Boss", Role: "manager", CreatedAt: ts}))
	require.NoError(t, r.InsertProfile(ctx, domain.Profile{ID: "u1", FullName: "Ann", Role: "employee", ManagerID: &boss, CreatedAt: ts}))
	due, today, later := "2024-03-10", "2024-03-20", "2024-03-25T00:00:00Z"
	u1 := "u1"
	require.NoError(t, r.InsertTask(ctx, domain.Task{ID: "late", Name: "late", Status: domain.StatusInProgress, Priority: domain.PriorityLow, AssignedToID: &u1, DueDate: &due, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.InsertTask(ctx, domain.Task{ID: "due-today", Name: "today", Status: domain.StatusInProgress, Priority: domain.PriorityLow, DueDate: &today, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.InsertTask(ctx, domain.Task{ID: "future", Name: "future", Status: domain.StatusInProgress, Priority: domain.PriorityLow, DueDate: &later, CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.InsertTask(ctx, domain.Task{ID: "unowned", Name: "unowned", Status: domain.StatusBlocked, Priority: domain.PriorityLow, DueDate: &due, CreatedAt: ts, UpdatedAt: ts}))

	got, err := r.ListOverdueTasks(ctx, today)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "late", got[0].ID)
	assert.Equal(t, "Ann", got[0].AssigneeName)
	require.NotNil(t, got[0].ManagerID)
	assert.Equal(t, "boss", *got[0].ManagerID)
	assert.Equal(t, "unowned", got[1].ID)
	assert.Empty(t, got[1].AssigneeName)
	assert.Nil(t, got[1].ManagerID)
}

func TestBulkScopedToLiveTasks(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insert(t, r, "a", domain.StatusNotStarted, "")
	insert(t, r, "b", domain.StatusNotStarted, "")
	insert(t, r, "c", domain.StatusNotStarted, "")

	tx, err := r.DB.BeginTxx(ctx, nil)
	require.NoError(t, err)
	n, err := r.BulkSoftDeleteTx(ctx, tx, []string{"a"}, "admin", ts)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = r.BulkChangePriorityTx(ctx, tx, []string{"a", "b", "zzz"}, domain.PriorityHigh, "admin", ts)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, tx.Commit())

	c, err := r.GetTask(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, c.Priority)
	b, err := r.GetTask(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, b.Priority)
}

func TestProfilesByIDs(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.InsertProfile(ctx, domain.Profile{ID: "u1", FullName: "Ann", Role: domain.RoleSuperadmin, CreatedAt: ts}))
	require.NoError(t, r.InsertProfile(ctx, domain.Profile{ID: "u2", FullName: "Bob", Role: "employee", CreatedAt: ts}))

	got, err := r.ProfilesByIDs(ctx, []string{"u1", "u2", "ghost"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "Bob", got["u2"].FullName)

	role, err := r.ProfileRole(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperadmin, role)
	_, err = r.ProfileRole(ctx, "ghost")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
