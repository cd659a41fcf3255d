package board

import (
	"context"
	"strings"

	"sprintboard/internal/apperr"
	"sprintboard/internal/models"
	"sprintboard/internal/storage/sqlite"
)

// CreateProject creates a project owned by the acting user.
func (s *Service) CreateProject(ctx context.Context, name, color string, actingUser int64) (models.Project, error) {
	if actingUser <= 0 {
		return models.Project{}, apperr.Forbidden("an acting user is required")
	}
	project, err := s.store.CreateProject(ctx, name, color, actingUser)
	if err != nil {
		return models.Project{}, err
	}
	s.logger.Info("project created", "project_id", project.ID, "owner", actingUser)
	return project, nil
}

// ListProjects returns every project.
func (s *Service) ListProjects(ctx context.Context) ([]models.Project, error) {
	return s.store.ListProjects(ctx)
}

// GetProject returns one project.
func (s *Service) GetProject(ctx context.Context, projectID int64) (models.Project, error) {
	return s.store.GetProject(ctx, projectID)
}

// UpdateProject renames or recolors a project.
func (s *Service) UpdateProject(ctx context.Context, projectID int64, name, color string, actingUser int64) (models.Project, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return models.Project{}, err
	}
	if err := s.requireElevated(ctx, projectID, actingUser); err != nil {
		return models.Project{}, err
	}
	return s.store.UpdateProject(ctx, projectID, name, color)
}

// AddMember grants or changes a user's role. Only an owner may grant the
// owner role or change an owner's role, and a project always keeps at least
// one owner.
func (s *Service) AddMember(ctx context.Context, m models.Member, actingUser int64) error {
	if _, err := s.store.GetProject(ctx, m.ProjectID); err != nil {
		return err
	}
	if err := s.requireElevated(ctx, m.ProjectID, actingUser); err != nil {
		return err
	}
	if m.UserID <= 0 {
		return apperr.Validation("user id must be positive")
	}
	m.Role = strings.ToUpper(strings.TrimSpace(m.Role))
	if _, ok := models.ValidRoles[m.Role]; !ok {
		return apperr.Validation("invalid role %q", m.Role)
	}

	return s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		actorRole, err := tx.RoleOf(ctx, m.ProjectID, actingUser)
		if err != nil {
			return err
		}
		current, err := tx.RoleOf(ctx, m.ProjectID, m.UserID)
		if err != nil {
			return err
		}
		demotesOwner := current == models.RoleOwner && m.Role != models.RoleOwner
		if (m.Role == models.RoleOwner || demotesOwner) && actorRole != models.RoleOwner {
			return apperr.Forbidden("only an owner may grant or change the owner role")
		}
		if demotesOwner {
			owners, err := tx.CountOwners(ctx, m.ProjectID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return apperr.Conflict("project %d must keep at least one owner", m.ProjectID)
			}
		}
		return tx.AddMember(ctx, m)
	})
}

// ListColumns returns the project's board columns.
func (s *Service) ListColumns(ctx context.Context, projectID int64) ([]models.Column, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListColumns(ctx, projectID)
}

// CreateColumn adds a board column whose status becomes valid for moves.
func (s *Service) CreateColumn(ctx context.Context, col models.Column, actingUser int64) (models.Column, error) {
	if _, err := s.store.GetProject(ctx, col.ProjectID); err != nil {
		return models.Column{}, err
	}
	if err := s.requireElevated(ctx, col.ProjectID, actingUser); err != nil {
		return models.Column{}, err
	}
	return s.store.CreateColumn(ctx, col)
}
