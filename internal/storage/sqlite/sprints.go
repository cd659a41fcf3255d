package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sprintboard/internal/apperr"
	"sprintboard/internal/models"
)

const sprintColumns = `id, project_id, name, goal, status, planned_velocity, actual_velocity,
    start_date, end_date, is_active, created_at, updated_at`

func scanSprint(row rowScanner) (models.Sprint, error) {
	var (
		sp    models.Sprint
		start sql.NullString
		end   sql.NullString
	)
	err := row.Scan(&sp.ID, &sp.ProjectID, &sp.Name, &sp.Goal, &sp.Status, &sp.PlannedVelocity, &sp.ActualVelocity,
		&start, &end, &sp.IsActive, &sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		return models.Sprint{}, err
	}
	sp.StartDate = start.String
	sp.EndDate = end.String
	return sp, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertSprint stores a new sprint in PLANNING status.
func (q queries) InsertSprint(ctx context.Context, sp models.Sprint) (models.Sprint, error) {
	res, err := q.q.ExecContext(ctx, `INSERT INTO sprints(project_id, name, goal, status, planned_velocity, start_date, end_date)
        VALUES(?, ?, ?, ?, ?, ?, ?)`,
		sp.ProjectID, sp.Name, sp.Goal, models.SprintPlanning, sp.PlannedVelocity, nullableString(sp.StartDate), nullableString(sp.EndDate))
	if err != nil {
		return models.Sprint{}, fmt.Errorf("insert sprint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Sprint{}, fmt.Errorf("sprint id: %w", err)
	}
	return q.GetSprint(ctx, id)
}

// GetSprint fetches an active sprint by id.
func (q queries) GetSprint(ctx context.Context, id int64) (models.Sprint, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = ? AND is_active = 1`, id)
	sp, err := scanSprint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sprint{}, apperr.NotFound("sprint %d not found", id)
	}
	if err != nil {
		return models.Sprint{}, fmt.Errorf("get sprint: %w", err)
	}
	return sp, nil
}

// ListSprints returns the project's sprints, oldest first.
func (q queries) ListSprints(ctx context.Context, projectID int64) ([]models.Sprint, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+sprintColumns+` FROM sprints
        WHERE project_id = ? AND is_active = 1 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer rows.Close()

	var sprints []models.Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		sprints = append(sprints, sp)
	}
	return sprints, rows.Err()
}

// ActiveSprintID returns the id of the project's ACTIVE sprint, or 0.
func (q queries) ActiveSprintID(ctx context.Context, projectID int64) (int64, error) {
	var id int64
	err := q.q.QueryRowContext(ctx, `SELECT id FROM sprints WHERE project_id = ? AND status = ? AND is_active = 1`,
		projectID, models.SprintActive).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("active sprint: %w", err)
	}
	return id, nil
}

// MarkSprintActive moves a sprint to ACTIVE and fills in its start date when
// it has none. The partial unique index rejects a second ACTIVE sprint.
func (q queries) MarkSprintActive(ctx context.Context, id int64, today string) error {
	res, err := q.q.ExecContext(ctx, `UPDATE sprints SET status = ?, start_date = COALESCE(start_date, ?)
        WHERE id = ? AND is_active = 1`, models.SprintActive, today, id)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("project already has an active sprint")
		}
		return fmt.Errorf("activate sprint: %w", err)
	}
	return expectOne(res, "sprint", id)
}

// MarkSprintCompleted records the measured velocity and closes the sprint.
func (q queries) MarkSprintCompleted(ctx context.Context, id int64, actualVelocity int, today string) error {
	res, err := q.q.ExecContext(ctx, `UPDATE sprints SET status = ?, actual_velocity = ?, end_date = COALESCE(end_date, ?)
        WHERE id = ? AND is_active = 1`, models.SprintCompleted, actualVelocity, today, id)
	if err != nil {
		return fmt.Errorf("complete sprint: %w", err)
	}
	return expectOne(res, "sprint", id)
}

// CompletedVelocities returns the positive actual velocities of the
// project's completed sprints.
func (q queries) CompletedVelocities(ctx context.Context, projectID int64) ([]int, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT actual_velocity FROM sprints
        WHERE project_id = ? AND status = ? AND is_active = 1 AND actual_velocity > 0 ORDER BY id`,
		projectID, models.SprintCompleted)
	if err != nil {
		return nil, fmt.Errorf("completed velocities: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan velocity: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpsertBurndown records the remaining points of a sprint for a date,
// overwriting an earlier value for the same date.
func (q queries) UpsertBurndown(ctx context.Context, snap models.BurndownSnapshot) error {
	_, err := q.q.ExecContext(ctx, `INSERT INTO burndown_snapshots(sprint_id, snapshot_date, remaining_points) VALUES(?, ?, ?)
        ON CONFLICT(sprint_id, snapshot_date) DO UPDATE SET remaining_points = excluded.remaining_points`,
		snap.SprintID, snap.Date, snap.RemainingPoints)
	if err != nil {
		return fmt.Errorf("upsert burndown: %w", err)
	}
	return nil
}

// ListBurndown returns a sprint's snapshots ordered by date.
func (q queries) ListBurndown(ctx context.Context, sprintID int64) ([]models.BurndownSnapshot, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT sprint_id, snapshot_date, remaining_points FROM burndown_snapshots
        WHERE sprint_id = ? ORDER BY snapshot_date`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("list burndown: %w", err)
	}
	defer rows.Close()

	snaps := []models.BurndownSnapshot{}
	for rows.Next() {
		var s models.BurndownSnapshot
		if err := rows.Scan(&s.SprintID, &s.Date, &s.RemainingPoints); err != nil {
			return nil, fmt.Errorf("scan burndown: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
