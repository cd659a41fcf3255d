package board

import (
	"context"
	"strings"

	"sprintboard/internal/apperr"
	"sprintboard/internal/audit"
	"sprintboard/internal/models"
	"sprintboard/internal/ordering"
	"sprintboard/internal/storage/sqlite"
)

// ItemFields are the caller-supplied fields of a new work item.
type ItemFields struct {
	Title       string
	Description string
	StoryPoints int
	Priority    string
	Type        string
	IsBlocked   bool
}

// ItemPatch is a partial update; nil fields are left untouched.
type ItemPatch struct {
	Title       *string
	Description *string
	StoryPoints *int
	Priority    *string
	Type        *string
	IsBlocked   *bool
}

func validateItem(w *models.WorkItem) error {
	title, ok := models.NormalizeTitle(w.Title)
	if !ok {
		return apperr.Validation("title must be between 1 and %d characters", models.MaxTitleLength)
	}
	w.Title = title
	w.Description = strings.TrimSpace(w.Description)
	if _, ok := models.ValidStoryPoints[w.StoryPoints]; !ok {
		return apperr.Validation("story points %d are not in the Fibonacci scale", w.StoryPoints)
	}
	w.Priority = strings.ToUpper(strings.TrimSpace(w.Priority))
	if _, ok := models.ValidPriorities[w.Priority]; !ok {
		return apperr.Validation("invalid priority %q", w.Priority)
	}
	w.Type = strings.ToUpper(strings.TrimSpace(w.Type))
	if _, ok := models.ValidItemTypes[w.Type]; !ok {
		return apperr.Validation("invalid type %q", w.Type)
	}
	return nil
}

// CreateWorkItem adds an item at the end of the project backlog.
func (s *Service) CreateWorkItem(ctx context.Context, projectID int64, fields ItemFields, actingUser int64) (models.WorkItem, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return models.WorkItem{}, err
	}
	if err := s.requireMember(ctx, projectID, actingUser); err != nil {
		return models.WorkItem{}, err
	}

	w := models.WorkItem{
		ProjectID:   projectID,
		Title:       fields.Title,
		Description: fields.Description,
		Status:      models.StatusBacklog,
		StoryPoints: fields.StoryPoints,
		Priority:    fields.Priority,
		Type:        fields.Type,
		IsBlocked:   fields.IsBlocked,
		CreatedBy:   actingUser,
	}
	if w.Priority == "" {
		w.Priority = "MEDIUM"
	}
	if w.Type == "" {
		w.Type = "STORY"
	}
	if err := validateItem(&w); err != nil {
		return models.WorkItem{}, err
	}

	var created models.WorkItem
	err := s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		last, err := tx.MaxPosition(ctx, sqlite.ScopeOf(w))
		if err != nil {
			return err
		}
		w.Position = last + 1
		created, err = tx.InsertWorkItem(ctx, w)
		return err
	})
	if err != nil {
		return models.WorkItem{}, err
	}

	s.record([]models.HistoryRecord{{
		EntityType:   models.EntityWorkItem,
		EntityID:     created.ID,
		UserID:       actingUser,
		Action:       models.ActionCreated,
		FieldChanged: "title",
		NewValue:     created.Title,
	}})
	return created, nil
}

// UpdateWorkItem applies a partial update and records one history entry per
// field whose value actually changed.
func (s *Service) UpdateWorkItem(ctx context.Context, itemID int64, patch ItemPatch, actingUser int64) (models.WorkItem, error) {
	current, err := s.store.GetWorkItem(ctx, itemID)
	if err != nil {
		return models.WorkItem{}, err
	}
	if err := s.requireMember(ctx, current.ProjectID, actingUser); err != nil {
		return models.WorkItem{}, err
	}

	var (
		updated models.WorkItem
		changes []audit.Change
	)
	err = s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		before, err := tx.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		next := before
		if patch.Title != nil {
			next.Title = *patch.Title
		}
		if patch.Description != nil {
			next.Description = *patch.Description
		}
		if patch.StoryPoints != nil {
			next.StoryPoints = *patch.StoryPoints
		}
		if patch.Priority != nil {
			next.Priority = *patch.Priority
		}
		if patch.Type != nil {
			next.Type = *patch.Type
		}
		if patch.IsBlocked != nil {
			next.IsBlocked = *patch.IsBlocked
		}
		if err := validateItem(&next); err != nil {
			return err
		}

		changes = audit.Diff(audit.ItemFields(before), audit.ItemFields(next))
		if len(changes) == 0 {
			updated = before
			return nil
		}
		if err := tx.UpdateFields(ctx, next); err != nil {
			return err
		}
		updated, err = tx.GetWorkItem(ctx, itemID)
		return err
	})
	if err != nil {
		return models.WorkItem{}, err
	}

	s.record(audit.Records(models.EntityWorkItem, itemID, actingUser, models.ActionUpdated, changes))
	return updated, nil
}

// DeleteWorkItem soft-deletes an item and closes the gap it leaves in its
// scope.
func (s *Service) DeleteWorkItem(ctx context.Context, itemID, actingUser int64) error {
	current, err := s.store.GetWorkItem(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.requireMember(ctx, current.ProjectID, actingUser); err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		w, err := tx.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := ensureSprintOpen(ctx, tx, w.SprintID, "source sprint completed"); err != nil {
			return err
		}
		others, err := tx.ScopeEntries(ctx, sqlite.ScopeOf(w), w.ID)
		if err != nil {
			return err
		}
		if err := tx.ApplyShifts(ctx, ordering.PlanRemove(others, w.Position)); err != nil {
			return err
		}
		return tx.SoftDeleteWorkItem(ctx, w.ID)
	})
	if err != nil {
		return err
	}

	s.record([]models.HistoryRecord{{
		EntityType:   models.EntityWorkItem,
		EntityID:     itemID,
		UserID:       actingUser,
		Action:       models.ActionDeleted,
		FieldChanged: "is_active",
		OldValue:     "true",
		NewValue:     "false",
	}})
	return nil
}

// GetWorkItem returns an active item.
func (s *Service) GetWorkItem(ctx context.Context, itemID int64) (models.WorkItem, error) {
	return s.store.GetWorkItem(ctx, itemID)
}

// ListScope returns the items of one scope in position order.
func (s *Service) ListScope(ctx context.Context, scope ordering.Scope) ([]models.WorkItem, error) {
	return s.store.FindByScope(ctx, scope)
}

// ListProjectItems returns every active item of a project, backlog first.
func (s *Service) ListProjectItems(ctx context.Context, projectID int64) ([]models.WorkItem, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListWorkItems(ctx, projectID)
}

// ItemHistory returns the audit trail of an item, including deleted ones.
func (s *Service) ItemHistory(ctx context.Context, itemID int64) ([]models.HistoryRecord, error) {
	return s.store.ListHistory(ctx, models.EntityWorkItem, itemID)
}
