package board

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"sprintboard/internal/apperr"
	"sprintboard/internal/audit"
	"sprintboard/internal/models"
	"sprintboard/internal/storage/sqlite"
)

// Unfinished-item decisions accepted by CompleteSprint.
const (
	UnfinishedToBacklog    = "backlog"
	UnfinishedToNextSprint = "next_sprint"
)

// SprintFields are the caller-supplied fields of a new sprint. A nil
// PlannedVelocity defaults to the project's average velocity.
type SprintFields struct {
	Name            string
	Goal            string
	PlannedVelocity *int
	StartDate       string
	EndDate         string
}

// AssignResult is the assigned item plus an optional capacity warning.
type AssignResult struct {
	Item    models.WorkItem `json:"item"`
	Warning string          `json:"warning,omitempty"`
}

// CompleteResult reports a completion. When NeedsDecision is set nothing was
// changed and UnfinishedItems lists what the caller must decide about.
type CompleteResult struct {
	ActualVelocity  int               `json:"actual_velocity"`
	UnfinishedCount int               `json:"unfinished_count"`
	NeedsDecision   bool              `json:"needs_decision"`
	UnfinishedItems []models.WorkItem `json:"unfinished_items,omitempty"`
}

// CreateSprint adds a sprint in PLANNING status.
func (s *Service) CreateSprint(ctx context.Context, projectID int64, fields SprintFields, actingUser int64) (models.Sprint, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return models.Sprint{}, err
	}
	if err := s.requireElevated(ctx, projectID, actingUser); err != nil {
		return models.Sprint{}, err
	}

	name, ok := models.NormalizeTitle(fields.Name)
	if !ok {
		return models.Sprint{}, apperr.Validation("sprint name must be between 1 and %d characters", models.MaxTitleLength)
	}
	start, err := parseDate("start_date", fields.StartDate)
	if err != nil {
		return models.Sprint{}, err
	}
	end, err := parseDate("end_date", fields.EndDate)
	if err != nil {
		return models.Sprint{}, err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return models.Sprint{}, apperr.Validation("end_date must not be before start_date")
	}

	planned := 0
	if fields.PlannedVelocity != nil {
		if *fields.PlannedVelocity < 0 {
			return models.Sprint{}, apperr.Validation("planned velocity must not be negative")
		}
		planned = *fields.PlannedVelocity
	} else {
		avg, err := s.AverageVelocity(ctx, projectID)
		if err != nil {
			return models.Sprint{}, err
		}
		planned = int(math.Round(avg))
	}

	return s.store.InsertSprint(ctx, models.Sprint{
		ProjectID:       projectID,
		Name:            name,
		Goal:            strings.TrimSpace(fields.Goal),
		PlannedVelocity: planned,
		StartDate:       fields.StartDate,
		EndDate:         fields.EndDate,
	})
}

// ListSprints returns a project's sprints.
func (s *Service) ListSprints(ctx context.Context, projectID int64) ([]models.Sprint, error) {
	return s.store.ListSprints(ctx, projectID)
}

// GetSprint returns one sprint.
func (s *Service) GetSprint(ctx context.Context, sprintID int64) (models.Sprint, error) {
	return s.store.GetSprint(ctx, sprintID)
}

// ActivateSprint starts a PLANNING sprint, marks its project ACTIVE and
// records the first burndown snapshot. A project has at most one ACTIVE
// sprint.
func (s *Service) ActivateSprint(ctx context.Context, sprintID, actingUser int64) error {
	sp, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		return err
	}
	if err := s.requireElevated(ctx, sp.ProjectID, actingUser); err != nil {
		return err
	}

	var (
		snap          models.BurndownSnapshot
		before, after models.Sprint
		project       models.Project
	)
	err = s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		sp, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		if sp.Status != models.SprintPlanning {
			return apperr.Conflict("sprint %d is %s, only PLANNING sprints can be activated", sp.ID, sp.Status)
		}
		activeID, err := tx.ActiveSprintID(ctx, sp.ProjectID)
		if err != nil {
			return err
		}
		if activeID != 0 {
			return apperr.Conflict("project already has an active sprint")
		}
		if project, err = tx.GetProject(ctx, sp.ProjectID); err != nil {
			return err
		}
		if err := tx.MarkSprintActive(ctx, sp.ID, s.today()); err != nil {
			return err
		}
		if err := tx.SetProjectStatus(ctx, sp.ProjectID, models.ProjectActive); err != nil {
			return err
		}
		before = sp
		if after, err = tx.GetSprint(ctx, sp.ID); err != nil {
			return err
		}
		snap, err = s.remainingSnapshot(ctx, tx, sp.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.record(lifecycleRecords(before, after, project.Status, models.ProjectActive, actingUser, models.ActionSprintActivated))
	s.logger.Info("sprint activated",
		slog.Int64("sprint_id", sprintID),
		slog.Int("remaining_points", snap.RemainingPoints))
	return nil
}

// AssignToSprint moves a backlog item to the end of the sprint's TODO
// column. Exceeding the planned velocity is reported as a warning, not an
// error.
func (s *Service) AssignToSprint(ctx context.Context, sprintID, itemID, actingUser int64) (AssignResult, error) {
	sp, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		return AssignResult{}, err
	}
	w, err := s.store.GetWorkItem(ctx, itemID)
	if err != nil {
		return AssignResult{}, err
	}
	if w.ProjectID != sp.ProjectID {
		return AssignResult{}, apperr.Validation("work item %d and sprint %d belong to different projects", itemID, sprintID)
	}
	if err := s.requireMember(ctx, sp.ProjectID, actingUser); err != nil {
		return AssignResult{}, err
	}

	var (
		result AssignResult
		before models.WorkItem
	)
	err = s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		w, err := tx.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		before = w
		if w.SprintID != nil {
			return apperr.Conflict("work item %d is already assigned to sprint %d", w.ID, *w.SprintID)
		}
		sp, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		if sp.Status == models.SprintCompleted {
			return apperr.Conflict("target sprint completed")
		}

		total, _, err := tx.SprintPoints(ctx, sp.ID)
		if err != nil {
			return err
		}
		if newTotal := total + w.StoryPoints; newTotal > sp.PlannedVelocity {
			result.Warning = fmt.Sprintf("Adding this item will exceed sprint capacity (%d/%d points)", newTotal, sp.PlannedVelocity)
		}

		if result.Item, _, err = s.relocate(ctx, tx, w, sp.ID, models.StatusTodo, 0); err != nil {
			return err
		}
		_, err = s.remainingSnapshot(ctx, tx, sp.ID)
		return err
	})
	if err != nil {
		return AssignResult{}, err
	}

	s.record(audit.Records(models.EntityWorkItem, itemID, actingUser, models.ActionSprintAssigned, placementChanges(before, result.Item)))
	if result.Warning != "" {
		s.logger.Warn("sprint over capacity", slog.Int64("sprint_id", sprintID), slog.String("warning", result.Warning))
	}
	return result, nil
}

// RemoveFromSprint returns a sprint item to the end of the project backlog.
func (s *Service) RemoveFromSprint(ctx context.Context, sprintID, itemID, actingUser int64) error {
	w, err := s.store.GetWorkItem(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.requireMember(ctx, w.ProjectID, actingUser); err != nil {
		return err
	}

	var before, after models.WorkItem
	err = s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		w, err := tx.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		before = w
		if !w.InSprint(sprintID) {
			return apperr.Conflict("work item %d is not in sprint %d", itemID, sprintID)
		}
		if err := ensureSprintOpen(ctx, tx, w.SprintID, "source sprint completed"); err != nil {
			return err
		}
		if after, _, err = s.relocate(ctx, tx, w, 0, models.StatusBacklog, 0); err != nil {
			return err
		}
		_, err = s.remainingSnapshot(ctx, tx, sprintID)
		return err
	})
	if err != nil {
		return err
	}

	s.record(audit.Records(models.EntityWorkItem, itemID, actingUser, models.ActionSprintRemoved, placementChanges(before, after)))
	return nil
}

// CompleteSprint closes an ACTIVE sprint. If unfinished items exist and no
// decision is given, it returns them and changes nothing. "backlog" moves
// them to the end of the backlog; "next_sprint" leaves them linked to the
// completed sprint until CarryOver picks them up.
func (s *Service) CompleteSprint(ctx context.Context, sprintID, actingUser int64, unfinishedAction string) (CompleteResult, error) {
	switch unfinishedAction {
	case "", UnfinishedToBacklog, UnfinishedToNextSprint:
	default:
		return CompleteResult{}, apperr.Validation("unfinished action must be %q or %q", UnfinishedToBacklog, UnfinishedToNextSprint)
	}
	sp, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		return CompleteResult{}, err
	}
	if err := s.requireElevated(ctx, sp.ProjectID, actingUser); err != nil {
		return CompleteResult{}, err
	}

	var (
		result        CompleteResult
		moves         []models.HistoryRecord
		before, after models.Sprint
		project       models.Project
	)
	err = s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		sp, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		before = sp
		if sp.Status != models.SprintActive {
			return apperr.Conflict("sprint %d is %s, only ACTIVE sprints can be completed", sp.ID, sp.Status)
		}
		items, err := tx.SprintItems(ctx, sp.ID)
		if err != nil {
			return err
		}

		var unfinished []models.WorkItem
		velocity := 0
		for _, w := range items {
			if w.Status == models.StatusDone {
				velocity += w.StoryPoints
			} else {
				unfinished = append(unfinished, w)
			}
		}
		if len(unfinished) > 0 && unfinishedAction == "" {
			result = CompleteResult{NeedsDecision: true, UnfinishedCount: len(unfinished), UnfinishedItems: unfinished}
			return nil
		}

		if unfinishedAction == UnfinishedToBacklog {
			for _, u := range unfinished {
				// Earlier relocations shift positions in the same columns.
				w, err := tx.GetWorkItem(ctx, u.ID)
				if err != nil {
					return err
				}
				after, _, err := s.relocate(ctx, tx, w, 0, models.StatusBacklog, 0)
				if err != nil {
					return err
				}
				moves = append(moves, moveRecord(w, after, actingUser))
			}
		}

		if project, err = tx.GetProject(ctx, sp.ProjectID); err != nil {
			return err
		}
		if err := tx.MarkSprintCompleted(ctx, sp.ID, velocity, s.today()); err != nil {
			return err
		}
		if err := tx.SetProjectStatus(ctx, sp.ProjectID, models.ProjectPlanning); err != nil {
			return err
		}
		if after, err = tx.GetSprint(ctx, sp.ID); err != nil {
			return err
		}
		result = CompleteResult{ActualVelocity: velocity, UnfinishedCount: len(unfinished)}
		return nil
	})
	if err != nil {
		return CompleteResult{}, err
	}
	if result.NeedsDecision {
		return result, nil
	}

	records := lifecycleRecords(before, after, project.Status, models.ProjectPlanning, actingUser, models.ActionSprintCompleted)
	s.record(append(records, moves...))
	s.logger.Info("sprint completed",
		slog.Int64("sprint_id", sprintID),
		slog.Int("actual_velocity", result.ActualVelocity),
		slog.Int("unfinished", result.UnfinishedCount),
		slog.String("unfinished_action", unfinishedAction))
	return result, nil
}

// CarryOver moves the unfinished items left in a completed sprint to the end
// of the TODO column of another open sprint of the same project. It returns
// how many items moved.
func (s *Service) CarryOver(ctx context.Context, fromSprintID, toSprintID, actingUser int64) (int, error) {
	from, err := s.store.GetSprint(ctx, fromSprintID)
	if err != nil {
		return 0, err
	}
	if err := s.requireElevated(ctx, from.ProjectID, actingUser); err != nil {
		return 0, err
	}

	var (
		records []models.HistoryRecord
		moved   int
	)
	err = s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		from, err := tx.GetSprint(ctx, fromSprintID)
		if err != nil {
			return err
		}
		if from.Status != models.SprintCompleted {
			return apperr.Conflict("sprint %d is not completed", from.ID)
		}
		to, err := tx.GetSprint(ctx, toSprintID)
		if err != nil {
			return err
		}
		if to.ProjectID != from.ProjectID {
			return apperr.Validation("sprint %d belongs to another project", to.ID)
		}
		if to.Status == models.SprintCompleted {
			return apperr.Conflict("target sprint completed")
		}

		items, err := tx.SprintItems(ctx, from.ID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.Status == models.StatusDone {
				continue
			}
			w, err := tx.GetWorkItem(ctx, it.ID)
			if err != nil {
				return err
			}
			after, _, err := s.relocate(ctx, tx, w, to.ID, models.StatusTodo, 0)
			if err != nil {
				return err
			}
			records = append(records, audit.Records(models.EntityWorkItem, w.ID, actingUser, models.ActionSprintAssigned, placementChanges(w, after))...)
			moved++
		}
		if moved == 0 {
			return nil
		}
		_, err = s.remainingSnapshot(ctx, tx, to.ID)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.record(records)
	return moved, nil
}

// AverageVelocity is the mean actual velocity of the project's completed
// sprints, ignoring sprints that completed nothing.
func (s *Service) AverageVelocity(ctx context.Context, projectID int64) (float64, error) {
	velocities, err := s.store.CompletedVelocities(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if len(velocities) == 0 {
		return 0, nil
	}
	sum := 0
	for _, v := range velocities {
		sum += v
	}
	return float64(sum) / float64(len(velocities)), nil
}

// GetBurndown returns a sprint's snapshots ordered by date.
func (s *Service) GetBurndown(ctx context.Context, sprintID int64) ([]models.BurndownSnapshot, error) {
	if _, err := s.store.GetSprint(ctx, sprintID); err != nil {
		return nil, err
	}
	return s.store.ListBurndown(ctx, sprintID)
}

// RecordBurndown stores today's remaining points of an ACTIVE sprint. It is
// meant to be called once a day by an external scheduler; repeated calls on
// one day overwrite the value.
func (s *Service) RecordBurndown(ctx context.Context, sprintID, actingUser int64) (models.BurndownSnapshot, error) {
	sp, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		return models.BurndownSnapshot{}, err
	}
	if err := s.requireMember(ctx, sp.ProjectID, actingUser); err != nil {
		return models.BurndownSnapshot{}, err
	}

	var snap models.BurndownSnapshot
	err = s.store.WithTx(ctx, func(tx *sqlite.Tx) error {
		sp, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		if sp.Status != models.SprintActive {
			return apperr.Conflict("sprint %d is not active", sp.ID)
		}
		snap, err = s.remainingSnapshot(ctx, tx, sp.ID)
		return err
	})
	return snap, err
}

// lifecycleRecords describes a sprint transition: every sprint field it
// changed plus the status flip of the owning project.
func lifecycleRecords(before, after models.Sprint, projectBefore, projectAfter string, userID int64, action string) []models.HistoryRecord {
	fields := func(sp models.Sprint) map[string]any {
		return map[string]any{
			"status":          sp.Status,
			"start_date":      sp.StartDate,
			"end_date":        sp.EndDate,
			"actual_velocity": sp.ActualVelocity,
		}
	}
	records := audit.Records(models.EntitySprint, after.ID, userID, action, audit.Diff(fields(before), fields(after)))
	return append(records, audit.Records(models.EntityProject, after.ProjectID, userID, models.ActionUpdated,
		audit.Diff(map[string]any{"status": projectBefore}, map[string]any{"status": projectAfter}))...)
}

// placementChanges lists the sprint and status fields that differ.
func placementChanges(before, after models.WorkItem) []audit.Change {
	return audit.Diff(
		map[string]any{"sprint_id": before.SprintID, "status": before.Status},
		map[string]any{"sprint_id": after.SprintID, "status": after.Status},
	)
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation("%s must be formatted YYYY-MM-DD", field)
	}
	return t, nil
}
