package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/apperr"
	"sprintboard/internal/board"
	"sprintboard/internal/models"
	"sprintboard/internal/ordering"
)

type itemRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	StoryPoints *int    `json:"story_points"`
	Priority    *string `json:"priority"`
	Type        *string `json:"type"`
	IsBlocked   *bool   `json:"is_blocked"`
}

type moveRequest struct {
	Status   *string `json:"status"`
	Position *int64  `json:"position"`
	SprintID *int64  `json:"sprint_id"`
	Backlog  bool    `json:"backlog"`
}

type positionRequest struct {
	Position int64 `json:"position"`
}

// handleListItems returns the project's items. With a status or sprint_id
// query it returns one scope in position order.
func (s *Server) handleListItems(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	status, hasStatus := c.GetQuery("status")
	rawSprint, hasSprint := c.GetQuery("sprint_id")
	if !hasStatus && !hasSprint {
		items, err := s.board.ListProjectItems(c.Request.Context(), projectID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		respondSuccess(c, http.StatusOK, gin.H{"items": nonNilItems(items)})
		return
	}

	scope := ordering.Scope{ProjectID: projectID, Status: models.StatusBacklog}
	if hasSprint {
		sprintID, err := strconv.ParseInt(rawSprint, 10, 64)
		if err != nil || sprintID < 0 {
			s.respondError(c, apperr.Validation("invalid sprint_id %q", rawSprint))
			return
		}
		scope.SprintID = sprintID
		if sprintID > 0 {
			scope.Status = models.StatusTodo
		}
	}
	if hasStatus {
		scope.Status = models.NormalizeStatus(status)
	}

	items, err := s.board.ListScope(c.Request.Context(), scope)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"scope": scope.String(), "items": nonNilItems(items)})
}

// handleCreateItem appends a new item to the project backlog.
func (s *Server) handleCreateItem(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req itemRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Title == nil {
		s.respondError(c, apperr.Validation("title is required"))
		return
	}

	item, err := s.board.CreateWorkItem(c.Request.Context(), projectID, board.ItemFields{
		Title:       *req.Title,
		Description: getString(req.Description),
		StoryPoints: getInt(req.StoryPoints),
		Priority:    getString(req.Priority),
		Type:        getString(req.Type),
		IsBlocked:   req.IsBlocked != nil && *req.IsBlocked,
	}, actingUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"item": item})
}

func (s *Server) handleGetItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	item, err := s.board.GetWorkItem(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"item": item})
}

// handleUpdateItem applies a partial update to the descriptive fields.
func (s *Server) handleUpdateItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req itemRequest
	if !s.bindJSON(c, &req) {
		return
	}

	item, err := s.board.UpdateWorkItem(c.Request.Context(), id, board.ItemPatch{
		Title:       req.Title,
		Description: req.Description,
		StoryPoints: req.StoryPoints,
		Priority:    req.Priority,
		Type:        req.Type,
		IsBlocked:   req.IsBlocked,
	}, actingUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"item": item})
}

// handleDeleteItem soft-deletes an item and closes the gap it leaves.
func (s *Server) handleDeleteItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.board.DeleteWorkItem(c.Request.Context(), id, actingUser(c)); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleMoveItem relocates an item to another column, sprint or position.
func (s *Server) handleMoveItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req moveRequest
	if !s.bindJSON(c, &req) {
		return
	}

	item, err := s.board.MoveItem(c.Request.Context(), board.MoveRequest{
		ItemID:         id,
		TargetStatus:   req.Status,
		TargetPosition: req.Position,
		TargetSprintID: req.SprintID,
		ToBacklog:      req.Backlog,
		ActingUser:     actingUser(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"item": item})
}

// handleReorderBacklog changes an item's rank inside the backlog.
func (s *Server) handleReorderBacklog(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseID(c, "itemId")
	if !ok {
		return
	}

	var req positionRequest
	if !s.bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := s.board.ReorderBacklog(ctx, projectID, itemID, req.Position, actingUser(c)); err != nil {
		s.respondError(c, err)
		return
	}
	item, err := s.board.GetWorkItem(ctx, itemID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"item": item})
}

func (s *Server) handleItemHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	records, err := s.board.ItemHistory(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"history": records})
}

func nonNilItems(items []models.WorkItem) []models.WorkItem {
	if items == nil {
		return []models.WorkItem{}
	}
	return items
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func getInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
