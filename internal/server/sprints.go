package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/apperr"
	"sprintboard/internal/board"
	"sprintboard/internal/models"
)

type sprintRequest struct {
	Name            string `json:"name"`
	Goal            string `json:"goal"`
	PlannedVelocity *int   `json:"planned_velocity"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
}

type completeRequest struct {
	UnfinishedAction string `json:"unfinished_action"`
}

type assignRequest struct {
	ItemID int64 `json:"item_id"`
}

type carryOverRequest struct {
	ToSprintID int64 `json:"to_sprint_id"`
}

func (s *Server) handleListSprints(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	sprints, err := s.board.ListSprints(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if sprints == nil {
		sprints = []models.Sprint{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprints": sprints})
}

// handleCreateSprint adds a PLANNING sprint. Without planned_velocity the
// project's average velocity is used.
func (s *Server) handleCreateSprint(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req sprintRequest
	if !s.bindJSON(c, &req) {
		return
	}

	sprint, err := s.board.CreateSprint(c.Request.Context(), projectID, board.SprintFields{
		Name:            req.Name,
		Goal:            req.Goal,
		PlannedVelocity: req.PlannedVelocity,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
	}, actingUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"sprint": sprint})
}

func (s *Server) handleGetSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sprint, err := s.board.GetSprint(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sprint})
}

func (s *Server) handleActivateSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := s.board.ActivateSprint(ctx, id, actingUser(c)); err != nil {
		s.respondError(c, err)
		return
	}
	sprint, err := s.board.GetSprint(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sprint})
}

// handleCompleteSprint closes an ACTIVE sprint. When unfinished items exist
// and no decision was sent, nothing changes and the items are returned.
func (s *Server) handleCompleteSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req completeRequest
	if c.Request.ContentLength != 0 && !s.bindJSON(c, &req) {
		return
	}

	result, err := s.board.CompleteSprint(c.Request.Context(), id, actingUser(c), req.UnfinishedAction)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"result": result})
}

// handleCarryOver moves a completed sprint's leftovers into another sprint.
func (s *Server) handleCarryOver(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req carryOverRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.ToSprintID <= 0 {
		s.respondError(c, apperr.Validation("to_sprint_id is required"))
		return
	}

	moved, err := s.board.CarryOver(c.Request.Context(), id, req.ToSprintID, actingUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"moved": moved})
}

// handleAssignItem pulls a backlog item into the sprint. A capacity overrun
// succeeds and carries a warning.
func (s *Server) handleAssignItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req assignRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.ItemID <= 0 {
		s.respondError(c, apperr.Validation("item_id is required"))
		return
	}

	result, err := s.board.AssignToSprint(c.Request.Context(), id, req.ItemID, actingUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// handleRemoveItem sends an item back to the end of the backlog.
func (s *Server) handleRemoveItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseID(c, "itemId")
	if !ok {
		return
	}
	if err := s.board.RemoveFromSprint(c.Request.Context(), id, itemID, actingUser(c)); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

func (s *Server) handleGetBurndown(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	snapshots, err := s.board.GetBurndown(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"burndown": snapshots})
}

// handleRecordBurndown stores today's remaining points of an active sprint.
// Any project member may trigger it.
func (s *Server) handleRecordBurndown(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	snapshot, err := s.board.RecordBurndown(c.Request.Context(), id, actingUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"snapshot": snapshot})
}
