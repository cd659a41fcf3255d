package board

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sprintboard/internal/audit"
	"sprintboard/internal/models"
	"sprintboard/internal/ordering"
	"sprintboard/internal/storage/sqlite"
)

const (
	ownerID    int64 = 1
	memberID   int64 = 2
	outsiderID int64 = 3
	viewerID   int64 = 4
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *sqlite.Store
	recorder *audit.Recorder
	project  models.Project
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "board.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	recorder := audit.NewRecorder(store)
	t.Cleanup(recorder.Close)

	now := fixedNow
	f := &fixture{store: store, recorder: recorder, clock: &now}
	f.svc = New(store, store, recorder, WithClock(func() time.Time { return *f.clock }))

	ctx := context.Background()
	f.project, err = store.CreateProject(ctx, "Checkout", "", ownerID)
	require.NoError(t, err)
	require.NoError(t, store.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: memberID, Role: models.RoleMember}))
	require.NoError(t, store.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: viewerID, Role: models.RoleViewer}))
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *fixture) createItem(t *testing.T, title string, points int) models.WorkItem {
	t.Helper()
	w, err := f.svc.CreateWorkItem(context.Background(), f.project.ID, ItemFields{Title: title, StoryPoints: points}, memberID)
	require.NoError(t, err)
	return w
}

func (f *fixture) createSprint(t *testing.T, name string, planned int) models.Sprint {
	t.Helper()
	sp, err := f.svc.CreateSprint(context.Background(), f.project.ID, SprintFields{Name: name, PlannedVelocity: &planned}, ownerID)
	require.NoError(t, err)
	return sp
}

func (f *fixture) assign(t *testing.T, sprintID int64, items ...models.WorkItem) {
	t.Helper()
	for _, w := range items {
		_, err := f.svc.AssignToSprint(context.Background(), sprintID, w.ID, memberID)
		require.NoError(t, err)
	}
}

func (f *fixture) moveTo(t *testing.T, itemID int64, status string) models.WorkItem {
	t.Helper()
	w, err := f.svc.MoveItem(context.Background(), MoveRequest{ItemID: itemID, TargetStatus: &status, ActingUser: memberID})
	require.NoError(t, err)
	return w
}

func (f *fixture) item(t *testing.T, id int64) models.WorkItem {
	t.Helper()
	w, err := f.store.GetWorkItem(context.Background(), id)
	require.NoError(t, err)
	return w
}

func (f *fixture) backlog() ordering.Scope {
	return ordering.Scope{ProjectID: f.project.ID, Status: models.StatusBacklog}
}

func (f *fixture) sprintScope(sprintID int64, status string) ordering.Scope {
	return ordering.Scope{ProjectID: f.project.ID, SprintID: sprintID, Status: status}
}

// positions returns item id -> position for a scope.
func (f *fixture) positions(t *testing.T, scope ordering.Scope) map[int64]int64 {
	t.Helper()
	items, err := f.store.FindByScope(context.Background(), scope)
	require.NoError(t, err)
	out := make(map[int64]int64, len(items))
	for _, w := range items {
		out[w.ID] = w.Position
	}
	return out
}

func (f *fixture) requireContiguous(t *testing.T, scopes ...ordering.Scope) {
	t.Helper()
	for _, s := range scopes {
		require.NoError(t, f.store.CheckScopeInvariant(context.Background(), s))
	}
}

func (f *fixture) history(t *testing.T, entityType string, id int64) []models.HistoryRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.recorder.Flush(ctx))
	records, err := f.store.ListHistory(context.Background(), entityType, id)
	require.NoError(t, err)
	return records
}

func ptr[T any](v T) *T {
	return &v
}
