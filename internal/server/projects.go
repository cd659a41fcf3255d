package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/models"
)

type projectRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type columnRequest struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Position int64  `json:"position"`
}

type memberRequest struct {
	Role string `json:"role"`
}

// handleListProjects returns all available projects.
func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.board.ListProjects(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"projects": projects})
}

// handleCreateProject creates a project owned by the caller.
func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectRequest
	if !s.bindJSON(c, &req) {
		return
	}

	project, err := s.board.CreateProject(c.Request.Context(), req.Name, req.Color, actingUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"project": project})
}

func (s *Server) handleGetProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	project, err := s.board.GetProject(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project})
}

// handleUpdateProject renames or recolors an existing project.
func (s *Server) handleUpdateProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req projectRequest
	if !s.bindJSON(c, &req) {
		return
	}

	project, err := s.board.UpdateProject(c.Request.Context(), id, req.Name, req.Color, actingUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": project})
}

func (s *Server) handleListColumns(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	columns, err := s.board.ListColumns(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"columns": columns})
}

// handleCreateColumn adds a board column mapped to a status.
func (s *Server) handleCreateColumn(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req columnRequest
	if !s.bindJSON(c, &req) {
		return
	}

	column, err := s.board.CreateColumn(c.Request.Context(), models.Column{
		ProjectID: id,
		Name:      req.Name,
		Status:    req.Status,
		Position:  req.Position,
	}, actingUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"column": column})
}

// handleAddMember grants a user a role in the project.
func (s *Server) handleAddMember(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}

	var req memberRequest
	if !s.bindJSON(c, &req) {
		return
	}

	member := models.Member{ProjectID: projectID, UserID: userID, Role: strings.ToUpper(strings.TrimSpace(req.Role))}
	if err := s.board.AddMember(c.Request.Context(), member, actingUser(c)); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"member": member})
}

// handleVelocity reports the project's average completed velocity.
func (s *Server) handleVelocity(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	avg, err := s.board.AverageVelocity(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"average_velocity": avg})
}
