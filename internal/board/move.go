package board

import (
	"context"
	"log/slog"
	"time"

	"sprintboard/internal/apperr"
	"sprintboard/internal/audit"
	"sprintboard/internal/models"
	"sprintboard/internal/ordering"
	"sprintboard/internal/storage/sqlite"
)

// MoveRequest relocates one item. Nil fields keep the item's current value;
// a nil or non-positive TargetPosition appends to the target scope.
// ToBacklog clears the sprint, takes precedence over TargetSprintID and
// defaults the status to BACKLOG.
type MoveRequest struct {
	ItemID         int64
	TargetStatus   *string
	TargetPosition *int64
	TargetSprintID *int64
	ToBacklog      bool
	ActingUser     int64
}

// MoveItem relocates an item within its scope or into another one. Moving
// an item onto its current place changes nothing and records nothing.
func (s *Service) MoveItem(ctx context.Context, req MoveRequest) (models.WorkItem, error) {
	current, err := s.store.GetWorkItem(ctx, req.ItemID)
	if err != nil {
		return models.WorkItem{}, err
	}
	if err := s.requireMember(ctx, current.ProjectID, req.ActingUser); err != nil {
		return models.WorkItem{}, err
	}

	var (
		before  models.WorkItem
		after   models.WorkItem
		changed bool
	)
	err = s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		w, err := tx.GetWorkItem(ctx, req.ItemID)
		if err != nil {
			return err
		}
		before = w

		if err := ensureSprintOpen(ctx, tx, w.SprintID, "source sprint completed"); err != nil {
			return err
		}

		targetSprint := currentSprint(w)
		switch {
		case req.ToBacklog:
			targetSprint = 0
		case req.TargetSprintID != nil:
			targetSprint = *req.TargetSprintID
		}
		if targetSprint != currentSprint(w) && targetSprint != 0 {
			sp, err := tx.GetSprint(ctx, targetSprint)
			if err != nil {
				return err
			}
			if sp.ProjectID != w.ProjectID {
				return apperr.Validation("sprint %d belongs to another project", sp.ID)
			}
			if sp.Status == models.SprintCompleted {
				return apperr.Conflict("target sprint completed")
			}
		}

		targetStatus := w.Status
		if req.ToBacklog {
			targetStatus = models.StatusBacklog
		}
		if req.TargetStatus != nil {
			if targetStatus, err = resolveStatus(ctx, tx, w.ProjectID, *req.TargetStatus); err != nil {
				return err
			}
		}
		var targetPos int64
		if req.TargetPosition != nil {
			targetPos = *req.TargetPosition
		}

		after, changed, err = s.relocate(ctx, tx, w, targetSprint, targetStatus, targetPos)
		return err
	})
	if err != nil {
		return models.WorkItem{}, err
	}

	if changed {
		s.record([]models.HistoryRecord{moveRecord(before, after, req.ActingUser)})
		s.logger.Debug("work item moved",
			slog.Int64("item_id", after.ID),
			slog.String("from", sqlite.ScopeOf(before).String()),
			slog.String("to", sqlite.ScopeOf(after).String()),
			slog.Int64("position", after.Position))
	}
	return after, nil
}

// ReorderBacklog moves a backlog item to a new position within its column.
func (s *Service) ReorderBacklog(ctx context.Context, projectID, itemID, newPosition, actingUser int64) error {
	if newPosition < 1 {
		return apperr.Validation("position must be at least 1")
	}
	w, err := s.store.GetWorkItem(ctx, itemID)
	if err != nil {
		return err
	}
	if w.ProjectID != projectID {
		return apperr.NotFound("work item %d not found in project %d", itemID, projectID)
	}
	if w.SprintID != nil {
		return apperr.Conflict("work item %d is not in the backlog", itemID)
	}
	_, err = s.MoveItem(ctx, MoveRequest{
		ItemID:         itemID,
		TargetPosition: &newPosition,
		ActingUser:     actingUser,
	})
	return err
}

// relocate moves w to (toSprint, toStatus) at toPos, shifting neighbors in
// both scopes. It reports false when the item is already there.
func (s *Service) relocate(ctx context.Context, tx *sqlite.Tx, w models.WorkItem, toSprint int64, toStatus string, toPos int64) (models.WorkItem, bool, error) {
	from := sqlite.ScopeOf(w)
	to := ordering.Scope{ProjectID: w.ProjectID, SprintID: toSprint, Status: toStatus}

	var (
		shifts []ordering.Shift
		target int64
	)
	if from == to {
		others, err := tx.ScopeEntries(ctx, from, w.ID)
		if err != nil {
			return w, false, err
		}
		target = ordering.ClampWithin(int64(len(others))+1, toPos)
		if target == w.Position {
			return w, false, nil
		}
		shifts = ordering.PlanMoveWithinScope(others, w.Position, target)
	} else {
		fromOthers, err := tx.ScopeEntries(ctx, from, w.ID)
		if err != nil {
			return w, false, err
		}
		toOthers, err := tx.ScopeEntries(ctx, to, w.ID)
		if err != nil {
			return w, false, err
		}
		target = ordering.ClampInsert(int64(len(toOthers)), toPos)
		shifts = ordering.PlanMoveAcrossScopes(fromOthers, w.Position, toOthers, target)
	}

	p := sqlite.Placement{
		Status:      toStatus,
		Position:    target,
		StartedAt:   w.StartedAt,
		CompletedAt: w.CompletedAt,
	}
	if toSprint != 0 {
		p.SprintID = &toSprint
	}
	applyStatusTimestamps(&p, w.Status, s.now())

	if err := tx.ApplyShifts(ctx, shifts); err != nil {
		return w, false, err
	}
	if err := tx.UpdatePlacement(ctx, w.ID, p); err != nil {
		return w, false, err
	}
	for _, scope := range []ordering.Scope{from, to} {
		if err := tx.CheckScopeInvariant(ctx, scope); err != nil {
			return w, false, apperr.Internal("scope positions broken", err)
		}
	}
	if s.beforeCommit != nil {
		if err := s.beforeCommit(); err != nil {
			return w, false, err
		}
	}

	updated, err := tx.GetWorkItem(ctx, w.ID)
	if err != nil {
		return w, false, err
	}
	return updated, true, nil
}

// applyStatusTimestamps sets started_at the first time an item enters
// IN_PROGRESS, sets completed_at on entering DONE and clears it on leaving.
func applyStatusTimestamps(p *sqlite.Placement, fromStatus string, now time.Time) {
	if p.Status == fromStatus {
		return
	}
	if p.Status == models.StatusInProgress && p.StartedAt == nil {
		p.StartedAt = &now
	}
	switch {
	case p.Status == models.StatusDone:
		p.CompletedAt = &now
	case fromStatus == models.StatusDone:
		p.CompletedAt = nil
	}
}

// ensureSprintOpen fails with a conflict when the sprint is completed.
func ensureSprintOpen(ctx context.Context, tx *sqlite.Tx, sprintID *int64, msg string) error {
	if sprintID == nil {
		return nil
	}
	sp, err := tx.GetSprint(ctx, *sprintID)
	if err != nil {
		return err
	}
	if sp.Status == models.SprintCompleted {
		return apperr.Conflict("%s", msg)
	}
	return nil
}

func currentSprint(w models.WorkItem) int64 {
	if w.SprintID == nil {
		return 0
	}
	return *w.SprintID
}

// moveRecord describes a relocation by its most significant change:
// status, then sprint, then position.
func moveRecord(before, after models.WorkItem, userID int64) models.HistoryRecord {
	rec := models.HistoryRecord{
		EntityType: models.EntityWorkItem,
		EntityID:   after.ID,
		UserID:     userID,
		Action:     models.ActionMoved,
	}
	switch {
	case before.Status != after.Status:
		rec.FieldChanged, rec.OldValue, rec.NewValue = "status", before.Status, after.Status
	case currentSprint(before) != currentSprint(after):
		rec.FieldChanged, rec.OldValue, rec.NewValue = "sprint_id", audit.Format(before.SprintID), audit.Format(after.SprintID)
	default:
		rec.FieldChanged, rec.OldValue, rec.NewValue = "position", audit.Format(before.Position), audit.Format(after.Position)
	}
	return rec
}
