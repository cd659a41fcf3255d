package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sprintboard/internal/apperr"
	"sprintboard/internal/models"
	"sprintboard/internal/ordering"
)

const itemColumns = `id, project_id, sprint_id, title, description, status, position, story_points,
    priority, type, is_blocked, is_active, created_by, started_at, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.WorkItem, error) {
	var (
		w         models.WorkItem
		sprintID  sql.NullInt64
		started   sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(&w.ID, &w.ProjectID, &sprintID, &w.Title, &w.Description, &w.Status, &w.Position, &w.StoryPoints,
		&w.Priority, &w.Type, &w.IsBlocked, &w.IsActive, &w.CreatedBy, &started, &completed, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return models.WorkItem{}, err
	}
	if sprintID.Valid {
		id := sprintID.Int64
		w.SprintID = &id
	}
	if started.Valid {
		t := started.Time
		w.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		w.CompletedAt = &t
	}
	return w, nil
}

func scanItems(rows *sql.Rows) ([]models.WorkItem, error) {
	defer rows.Close()
	var items []models.WorkItem
	for rows.Next() {
		w, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

// sprintArg turns a scope's sprint into a query argument; the backlog is NULL.
func sprintArg(sprintID int64) any {
	if sprintID == 0 {
		return nil
	}
	return sprintID
}

func nullableSprint(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// ScopeOf returns the ordering scope an item currently occupies.
func ScopeOf(w models.WorkItem) ordering.Scope {
	s := ordering.Scope{ProjectID: w.ProjectID, Status: w.Status}
	if w.SprintID != nil {
		s.SprintID = *w.SprintID
	}
	return s
}

// InsertWorkItem stores a new item at the given position. Callers are
// responsible for having opened the slot.
func (q queries) InsertWorkItem(ctx context.Context, w models.WorkItem) (models.WorkItem, error) {
	res, err := q.q.ExecContext(ctx, `INSERT INTO work_items(project_id, sprint_id, title, description, status, position,
        story_points, priority, type, is_blocked, created_by) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ProjectID, nullableSprint(w.SprintID), w.Title, w.Description, w.Status, w.Position,
		w.StoryPoints, w.Priority, w.Type, w.IsBlocked, w.CreatedBy)
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("insert work item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("work item id: %w", err)
	}
	return q.GetWorkItem(ctx, id)
}

// GetWorkItem retrieves an active item by id.
func (q queries) GetWorkItem(ctx context.Context, id int64) (models.WorkItem, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ? AND is_active = 1`, id)
	w, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WorkItem{}, apperr.NotFound("work item %d not found", id)
	}
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("get work item: %w", err)
	}
	return w, nil
}

// ListWorkItems returns the project's active items grouped by scope and
// ordered by position.
func (q queries) ListWorkItems(ctx context.Context, projectID int64) ([]models.WorkItem, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+itemColumns+` FROM work_items
        WHERE project_id = ? AND is_active = 1
        ORDER BY sprint_id IS NOT NULL, sprint_id, status, position, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	return scanItems(rows)
}

// FindByScope returns the active items of one scope ordered by position.
func (q queries) FindByScope(ctx context.Context, scope ordering.Scope) ([]models.WorkItem, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+itemColumns+` FROM work_items
        WHERE project_id = ? AND sprint_id IS ? AND status = ? AND is_active = 1
        ORDER BY position, id`, scope.ProjectID, sprintArg(scope.SprintID), scope.Status)
	if err != nil {
		return nil, fmt.Errorf("find by scope: %w", err)
	}
	return scanItems(rows)
}

// ScopeEntries returns the positions of the scope's active items, excluding
// the item with id `exclude` (0 excludes nothing).
func (q queries) ScopeEntries(ctx context.Context, scope ordering.Scope, exclude int64) ([]ordering.Entry, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, position FROM work_items
        WHERE project_id = ? AND sprint_id IS ? AND status = ? AND is_active = 1 AND id != ?
        ORDER BY position, id`, scope.ProjectID, sprintArg(scope.SprintID), scope.Status, exclude)
	if err != nil {
		return nil, fmt.Errorf("scope entries: %w", err)
	}
	defer rows.Close()

	var entries []ordering.Entry
	for rows.Next() {
		var e ordering.Entry
		if err := rows.Scan(&e.ID, &e.Position); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MaxPosition returns the highest position used in the scope, or 0.
func (q queries) MaxPosition(ctx context.Context, scope ordering.Scope) (int64, error) {
	var position sql.NullInt64
	err := q.q.QueryRowContext(ctx, `SELECT MAX(position) FROM work_items
        WHERE project_id = ? AND sprint_id IS ? AND status = ? AND is_active = 1`,
		scope.ProjectID, sprintArg(scope.SprintID), scope.Status).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("select position: %w", err)
	}
	return position.Int64, nil
}

// ApplyShifts writes neighbor position changes.
func (q queries) ApplyShifts(ctx context.Context, shifts []ordering.Shift) error {
	for _, sh := range shifts {
		if _, err := q.q.ExecContext(ctx, `UPDATE work_items SET position = ? WHERE id = ?`, sh.To, sh.ID); err != nil {
			return fmt.Errorf("shift work item %d: %w", sh.ID, err)
		}
	}
	return nil
}

// Placement is where an item sits plus the timestamps tied to its status.
type Placement struct {
	SprintID    *int64
	Status      string
	Position    int64
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// UpdatePlacement sets an item's scope, position and status timestamps.
func (q queries) UpdatePlacement(ctx context.Context, id int64, p Placement) error {
	res, err := q.q.ExecContext(ctx, `UPDATE work_items SET sprint_id = ?, status = ?, position = ?, started_at = ?, completed_at = ?
        WHERE id = ? AND is_active = 1`,
		nullableSprint(p.SprintID), p.Status, p.Position, nullableTime(p.StartedAt), nullableTime(p.CompletedAt), id)
	if err != nil {
		return fmt.Errorf("update placement: %w", err)
	}
	return expectOne(res, "work item", id)
}

// UpdateFields writes the descriptive fields of an item.
func (q queries) UpdateFields(ctx context.Context, w models.WorkItem) error {
	res, err := q.q.ExecContext(ctx, `UPDATE work_items SET title = ?, description = ?, story_points = ?, priority = ?, type = ?, is_blocked = ?
        WHERE id = ? AND is_active = 1`,
		w.Title, w.Description, w.StoryPoints, w.Priority, w.Type, w.IsBlocked, w.ID)
	if err != nil {
		return fmt.Errorf("update work item: %w", err)
	}
	return expectOne(res, "work item", w.ID)
}

// SoftDeleteWorkItem flips the active flag. The caller closes the gap.
func (q queries) SoftDeleteWorkItem(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `UPDATE work_items SET is_active = 0 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return fmt.Errorf("delete work item: %w", err)
	}
	return expectOne(res, "work item", id)
}

// SprintItems returns the active items of a sprint across all columns.
func (q queries) SprintItems(ctx context.Context, sprintID int64) ([]models.WorkItem, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+itemColumns+` FROM work_items
        WHERE sprint_id = ? AND is_active = 1 ORDER BY status, position, id`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("sprint items: %w", err)
	}
	return scanItems(rows)
}

// SprintPoints returns the committed and remaining (not DONE) story points
// of a sprint.
func (q queries) SprintPoints(ctx context.Context, sprintID int64) (total, remaining int, err error) {
	err = q.q.QueryRowContext(ctx, `SELECT
            COALESCE(SUM(story_points), 0),
            COALESCE(SUM(CASE WHEN status != ? THEN story_points ELSE 0 END), 0)
        FROM work_items WHERE sprint_id = ? AND is_active = 1`, models.StatusDone, sprintID).Scan(&total, &remaining)
	if err != nil {
		return 0, 0, fmt.Errorf("sprint points: %w", err)
	}
	return total, remaining, nil
}

// CheckScopeInvariant returns an error unless the scope's positions are 1..N.
func (q queries) CheckScopeInvariant(ctx context.Context, scope ordering.Scope) error {
	entries, err := q.ScopeEntries(ctx, scope, 0)
	if err != nil {
		return err
	}
	if err := ordering.Contiguous(entries); err != nil {
		return fmt.Errorf("scope %s: %w", scope, err)
	}
	return nil
}

func expectOne(res sql.Result, what string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.NotFound("%s %d not found", what, id)
	}
	return nil
}
