package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"sprintboard/internal/apperr"
	"sprintboard/internal/models"
)

const projectColumns = `id, name, color, status, created_at, updated_at`

// ListProjects retrieves all projects ordered by creation date.
func (q queries) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Color, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreateProject persists a project, seeds its default board columns and
// makes the creator its owner.
func (s *Store) CreateProject(ctx context.Context, name, color string, ownerID int64) (models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Project{}, apperr.Validation("project name must not be empty")
	}
	if color == "" {
		color = randomPaletteColor()
	}

	var project models.Project
	err := s.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.q.ExecContext(ctx, `INSERT INTO projects(name, color, status) VALUES(?, ?, ?)`, name, color, models.ProjectPlanning)
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("project %q already exists", name)
			}
			return fmt.Errorf("insert project: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("project id: %w", err)
		}
		for _, col := range models.DefaultColumns {
			col.ProjectID = id
			if _, err := tx.CreateColumn(ctx, col); err != nil {
				return err
			}
		}
		if err := tx.AddMember(ctx, models.Member{ProjectID: id, UserID: ownerID, Role: models.RoleOwner}); err != nil {
			return err
		}
		project, err = tx.GetProject(ctx, id)
		return err
	})
	return project, err
}

// GetProject fetches a single project by id.
func (q queries) GetProject(ctx context.Context, id int64) (models.Project, error) {
	var p models.Project
	err := q.q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Color, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, apperr.NotFound("project %d not found", id)
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// UpdateProject renames a project and optionally changes its color.
func (q queries) UpdateProject(ctx context.Context, id int64, name, color string) (models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Project{}, apperr.Validation("project name must not be empty")
	}
	if color == "" {
		color = randomPaletteColor()
	}

	res, err := q.q.ExecContext(ctx, `UPDATE projects SET name = ?, color = ? WHERE id = ?`, name, color, id)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Project{}, apperr.Conflict("project %q already exists", name)
		}
		return models.Project{}, fmt.Errorf("update project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Project{}, err
	}
	if affected == 0 {
		return models.Project{}, apperr.NotFound("project %d not found", id)
	}
	return q.GetProject(ctx, id)
}

// SetProjectStatus records whether the project has a running sprint.
func (q queries) SetProjectStatus(ctx context.Context, id int64, status string) error {
	res, err := q.q.ExecContext(ctx, `UPDATE projects SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set project status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.NotFound("project %d not found", id)
	}
	return nil
}

// AddMember grants a user a role in a project, replacing any previous role.
func (q queries) AddMember(ctx context.Context, m models.Member) error {
	if _, ok := models.ValidRoles[m.Role]; !ok {
		return apperr.Validation("invalid role %q", m.Role)
	}
	_, err := q.q.ExecContext(ctx, `INSERT INTO project_members(project_id, user_id, role) VALUES(?, ?, ?)
        ON CONFLICT(project_id, user_id) DO UPDATE SET role = excluded.role`, m.ProjectID, m.UserID, m.Role)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// IsMember reports whether the user belongs to the project.
func (q queries) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	role, err := q.RoleOf(ctx, projectID, userID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

// RoleOf returns the user's role in the project, or "" for non-members.
func (q queries) RoleOf(ctx context.Context, projectID, userID int64) (string, error) {
	var role string
	err := q.q.QueryRowContext(ctx, `SELECT role FROM project_members WHERE project_id = ? AND user_id = ?`, projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("role lookup: %w", err)
	}
	return role, nil
}

// CountOwners returns how many OWNER members the project has.
func (q queries) CountOwners(ctx context.Context, projectID int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_members WHERE project_id = ? AND role = ?`,
		projectID, models.RoleOwner).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

// ListColumns returns the project's board columns in display order.
func (q queries) ListColumns(ctx context.Context, projectID int64) ([]models.Column, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, project_id, name, status, position FROM board_columns
        WHERE project_id = ? ORDER BY position, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var cols []models.Column
	for rows.Next() {
		var c models.Column
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Status, &c.Position); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// CreateColumn persists a column and its status mapping. A zero position
// appends the column after the existing ones.
func (q queries) CreateColumn(ctx context.Context, c models.Column) (models.Column, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return models.Column{}, apperr.Validation("column name must not be empty")
	}
	if c.Status == "" {
		c.Status = models.NormalizeStatus(c.Name)
	} else {
		c.Status = models.NormalizeStatus(c.Status)
	}
	if c.Status == models.StatusBacklog {
		return models.Column{}, apperr.Validation("BACKLOG cannot be mapped to a board column")
	}
	if c.Position <= 0 {
		var last sql.NullInt64
		if err := q.q.QueryRowContext(ctx, `SELECT MAX(position) FROM board_columns WHERE project_id = ?`, c.ProjectID).Scan(&last); err != nil {
			return models.Column{}, fmt.Errorf("select column position: %w", err)
		}
		c.Position = last.Int64 + 1
	}

	res, err := q.q.ExecContext(ctx, `INSERT INTO board_columns(project_id, name, status, position) VALUES(?, ?, ?, ?)`,
		c.ProjectID, c.Name, c.Status, c.Position)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Column{}, apperr.Conflict("column %q already exists", c.Name)
		}
		return models.Column{}, fmt.Errorf("insert column: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return models.Column{}, fmt.Errorf("column id: %w", err)
	}
	return c, nil
}

// HasColumnStatus reports whether a column of the project maps to status.
func (q queries) HasColumnStatus(ctx context.Context, projectID int64, status string) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM board_columns WHERE project_id = ? AND status = ?`, projectID, status).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("column lookup: %w", err)
	}
	return n > 0, nil
}

func randomPaletteColor() string {
	palette := []string{
		"#2563eb", // blue-600
		"#7c3aed", // violet-600
		"#dc2626", // red-600
		"#059669", // green-600
		"#ea580c", // orange-600
		"#d97706", // amber-600
		"#0ea5e9", // sky-500
	}
	return palette[rand.IntN(len(palette))]
}
