package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/apperr"
	"sprintboard/internal/board"
)

const (
	userHeader = "X-User-ID"
	userKey    = "acting_user"
)

// Server provides HTTP handlers for the sprint board backend.
type Server struct {
	engine *gin.Engine
	board  *board.Service
	logger *slog.Logger
}

// New constructs the HTTP server with routes and middleware configured.
func New(svc *board.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz"))

	srv := &Server{
		engine: router,
		board:  svc,
		logger: logger,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found", "kind": apperr.KindNotFound.String()})
	})

	api := s.engine.Group("/api")
	api.GET("/healthz", s.handleHealth)

	authed := api.Group("", s.requireUser)
	{
		projects := authed.Group("/projects")
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", s.handleCreateProject)
			projects.GET(":id", s.handleGetProject)
			projects.PUT(":id", s.handleUpdateProject)
			projects.GET(":id/items", s.handleListItems)
			projects.POST(":id/items", s.handleCreateItem)
			projects.PUT(":id/backlog/:itemId", s.handleReorderBacklog)
			projects.GET(":id/columns", s.handleListColumns)
			projects.POST(":id/columns", s.handleCreateColumn)
			projects.PUT(":id/members/:userId", s.handleAddMember)
			projects.GET(":id/velocity", s.handleVelocity)
			projects.GET(":id/sprints", s.handleListSprints)
			projects.POST(":id/sprints", s.handleCreateSprint)
		}

		items := authed.Group("/items")
		{
			items.GET(":id", s.handleGetItem)
			items.PATCH(":id", s.handleUpdateItem)
			items.DELETE(":id", s.handleDeleteItem)
			items.POST(":id/move", s.handleMoveItem)
			items.GET(":id/history", s.handleItemHistory)
		}

		sprints := authed.Group("/sprints")
		{
			sprints.GET(":id", s.handleGetSprint)
			sprints.POST(":id/activate", s.handleActivateSprint)
			sprints.POST(":id/complete", s.handleCompleteSprint)
			sprints.POST(":id/carry-over", s.handleCarryOver)
			sprints.POST(":id/items", s.handleAssignItem)
			sprints.DELETE(":id/items/:itemId", s.handleRemoveItem)
			sprints.GET(":id/burndown", s.handleGetBurndown)
			sprints.POST(":id/burndown", s.handleRecordBurndown)
		}
	}
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requireUser reads the acting user from the request header.
func (s *Server) requireUser(c *gin.Context) {
	raw := c.GetHeader(userHeader)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + userHeader + " header"})
		return
	}
	c.Set(userKey, id)
	c.Next()
}

func actingUser(c *gin.Context) int64 {
	return c.GetInt64(userKey)
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier", "kind": apperr.KindValidation.String()})
		return 0, false
	}
	return id, true
}

// bindJSON decodes the request body and reports malformed payloads.
func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.respondError(c, apperr.Validation("malformed request body: %v", err))
		return false
	}
	return true
}

// respondError maps a board error to its status code and a JSON payload.
// Unclassified errors are logged and reported without their details.
func (s *Server) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()

	var appErr *apperr.Error
	if kind == apperr.KindInternal {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		msg = "internal error"
	} else if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	c.JSON(kind.HTTPStatus(), gin.H{"error": msg, "kind": kind.String()})
}

// respondSuccess writes the payload, or only the status when it is nil.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
