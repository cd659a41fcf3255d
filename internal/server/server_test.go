package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/audit"
	"sprintboard/internal/board"
	"sprintboard/internal/models"
	"sprintboard/internal/storage/sqlite"
)

type testServer struct {
	srv      *Server
	recorder *audit.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	recorder := audit.NewRecorder(store)
	t.Cleanup(recorder.Close)

	svc := board.New(store, store, recorder)
	return &testServer{srv: New(svc, nil), recorder: recorder}
}

func (ts *testServer) do(t *testing.T, method, path string, user int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user > 0 {
		req.Header.Set(userHeader, fmt.Sprint(user))
	}
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (ts *testServer) createProject(t *testing.T, name string, owner int64) models.Project {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/projects", owner, jsonBody{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[struct {
		Project models.Project `json:"project"`
	}](t, rec).Project
}

func (ts *testServer) createItem(t *testing.T, projectID, user int64, title string, points int) models.WorkItem {
	t.Helper()
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/items", projectID), user, jsonBody{"title": title, "story_points": points})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[struct {
		Item models.WorkItem `json:"item"`
	}](t, rec).Item
}

// jsonBody is a shorthand for JSON request bodies.
type jsonBody = map[string]any

func TestHealthDoesNotRequireUser(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/healthz", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequiresUserHeader(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/projects", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set(userHeader, "abc")
	rec = httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t, "Mapping", 1)

	rec := ts.do(t, http.MethodGet, "/api/items/999", 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, rec).Kind)

	rec = ts.do(t, http.MethodGet, "/api/items/abc", 1, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/items", p.ID), 2, jsonBody{"title": "outsider"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[errorBody](t, rec).Kind)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/items", p.ID), 1, jsonBody{"title": "bad", "story_points": 4})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decode[errorBody](t, rec).Kind)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/projects/%d/items", p.ID), bytes.NewBufferString("{"))
	req.Header.Set(userHeader, "1")
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/projects", 1, jsonBody{"name": "Mapping"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/nope", 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSprintFlow(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t, "Flow", 1)

	rec := ts.do(t, http.MethodPut, fmt.Sprintf("/api/projects/%d/members/2", p.ID), 1, jsonBody{"role": "member"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	a := ts.createItem(t, p.ID, 2, "a", 8)
	b := ts.createItem(t, p.ID, 2, "b", 5)
	c := ts.createItem(t, p.ID, 2, "c", 13)

	rec = ts.do(t, http.MethodPut, fmt.Sprintf("/api/projects/%d/backlog/%d", p.ID, c.ID), 2, jsonBody{"position": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1), decode[struct {
		Item models.WorkItem `json:"item"`
	}](t, rec).Item.Position)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/sprints", p.ID), 2, jsonBody{"name": "Sprint 1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/sprints", p.ID), 1, jsonBody{"name": "Sprint 1", "planned_velocity": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sp := decode[struct {
		Sprint models.Sprint `json:"sprint"`
	}](t, rec).Sprint
	assert.Equal(t, models.SprintPlanning, sp.Status)

	sprintPath := fmt.Sprintf("/api/sprints/%d", sp.ID)

	rec = ts.do(t, http.MethodPost, sprintPath+"/items", 2, jsonBody{"item_id": a.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode[board.AssignResult](t, rec).Warning)

	rec = ts.do(t, http.MethodPost, sprintPath+"/items", 2, jsonBody{"item_id": b.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assigned := decode[board.AssignResult](t, rec)
	assert.Equal(t, "Adding this item will exceed sprint capacity (13/10 points)", assigned.Warning)
	assert.Equal(t, models.StatusTodo, assigned.Item.Status)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/items?sprint_id=%d&status=todo", p.ID, sp.ID), 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	scoped := decode[struct {
		Items []models.WorkItem `json:"items"`
	}](t, rec).Items
	require.Len(t, scoped, 2)
	assert.Equal(t, a.ID, scoped[0].ID)

	rec = ts.do(t, http.MethodPost, sprintPath+"/activate", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/items/%d/move", a.ID), 2, jsonBody{"status": "DONE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[struct {
		Item models.WorkItem `json:"item"`
	}](t, rec).Item
	assert.Equal(t, models.StatusDone, moved.Status)
	assert.NotNil(t, moved.CompletedAt)

	rec = ts.do(t, http.MethodPost, sprintPath+"/burndown", 3, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, sprintPath+"/burndown", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decode[struct {
		Snapshot models.BurndownSnapshot `json:"snapshot"`
	}](t, rec).Snapshot
	assert.Equal(t, 5, snap.RemainingPoints)

	rec = ts.do(t, http.MethodPost, sprintPath+"/complete", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pending := decode[struct {
		Result board.CompleteResult `json:"result"`
	}](t, rec).Result
	assert.True(t, pending.NeedsDecision)
	assert.Equal(t, 1, pending.UnfinishedCount)

	rec = ts.do(t, http.MethodPost, sprintPath+"/complete", 1, jsonBody{"unfinished_action": "backlog"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[struct {
		Result board.CompleteResult `json:"result"`
	}](t, rec).Result
	assert.False(t, done.NeedsDecision)
	assert.Equal(t, 8, done.ActualVelocity)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/velocity", p.ID), 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 8.0, decode[struct {
		Average float64 `json:"average_velocity"`
	}](t, rec).Average, 0.001)

	rec = ts.do(t, http.MethodGet, sprintPath+"/burndown", 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[struct {
		Burndown []models.BurndownSnapshot `json:"burndown"`
	}](t, rec).Burndown)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.recorder.Flush(ctx))

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/items/%d/history", b.ID), 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		History []models.HistoryRecord `json:"history"`
	}](t, rec).History
	require.NotEmpty(t, history)
	assert.Equal(t, models.ActionCreated, history[0].Action)
}

func TestItemUpdateAndDelete(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t, "Edits", 1)
	a := ts.createItem(t, p.ID, 1, "a", 1)
	b := ts.createItem(t, p.ID, 1, "b", 2)

	rec := ts.do(t, http.MethodPatch, fmt.Sprintf("/api/items/%d", a.ID), 1, jsonBody{"title": "renamed", "priority": "high"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[struct {
		Item models.WorkItem `json:"item"`
	}](t, rec).Item
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "HIGH", updated.Priority)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/items/%d", a.ID), 1, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/items/%d", b.ID), 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[struct {
		Item models.WorkItem `json:"item"`
	}](t, rec).Item.Position)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/items", p.ID), 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[struct {
		Items []models.WorkItem `json:"items"`
	}](t, rec).Items, 1)
}

func TestColumns(t *testing.T) {
	ts := newTestServer(t)
	p := ts.createProject(t, "Columns", 1)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/columns", p.ID), 1, jsonBody{"name": "Code Review"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/columns", p.ID), 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cols := decode[struct {
		Columns []models.Column `json:"columns"`
	}](t, rec).Columns
	require.Len(t, cols, 4)
	assert.Equal(t, "CODE_REVIEW", cols[3].Status)
}
