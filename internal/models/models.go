package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Project groups work items and sprints. Its status mirrors whether a sprint
// is currently running.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkItem represents a single card on the board. A nil SprintID means the
// item lives in the project backlog.
type WorkItem struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	SprintID    *int64     `json:"sprint_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Position    int64      `json:"position"`
	StoryPoints int        `json:"story_points"`
	Priority    string     `json:"priority"`
	Type        string     `json:"type"`
	IsBlocked   bool       `json:"is_blocked"`
	IsActive    bool       `json:"is_active"`
	CreatedBy   int64      `json:"created_by"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// InSprint reports whether the item is assigned to the given sprint.
func (w WorkItem) InSprint(sprintID int64) bool {
	return w.SprintID != nil && *w.SprintID == sprintID
}

// Sprint is a time-boxed iteration with a committed capacity.
type Sprint struct {
	ID              int64     `json:"id"`
	ProjectID       int64     `json:"project_id"`
	Name            string    `json:"name"`
	Goal            string    `json:"goal"`
	Status          string    `json:"status"`
	PlannedVelocity int       `json:"planned_velocity"`
	ActualVelocity  int       `json:"actual_velocity"`
	StartDate       string    `json:"start_date,omitempty"`
	EndDate         string    `json:"end_date,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BurndownSnapshot is the remaining story points of a sprint on one day.
type BurndownSnapshot struct {
	SprintID        int64  `json:"sprint_id"`
	Date            string `json:"date"`
	RemainingPoints int    `json:"remaining_points"`
}

// HistoryRecord is one immutable audit entry. Records written by the same
// mutation share a ChangeSet.
type HistoryRecord struct {
	ID           int64     `json:"id"`
	ChangeSet    string    `json:"change_set"`
	EntityType   string    `json:"entity_type"`
	EntityID     int64     `json:"entity_id"`
	UserID       int64     `json:"user_id"`
	Action       string    `json:"action"`
	FieldChanged string    `json:"field_changed"`
	OldValue     string    `json:"old_value"`
	NewValue     string    `json:"new_value"`
	CreatedAt    time.Time `json:"created_at"`
}

// Column maps a board column to the status value items in it carry.
type Column struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Position  int64  `json:"position"`
}

// Member links a user to a project with a role.
type Member struct {
	ProjectID int64  `json:"project_id"`
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
}

// Work item statuses every project understands.
const (
	StatusBacklog    = "BACKLOG"
	StatusTodo       = "TODO"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// Sprint and project lifecycle states.
const (
	SprintPlanning  = "PLANNING"
	SprintActive    = "ACTIVE"
	SprintCompleted = "COMPLETED"

	ProjectPlanning = "PLANNING"
	ProjectActive   = "ACTIVE"
)

// Project roles.
const (
	RoleOwner   = "OWNER"
	RoleManager = "MANAGER"
	RoleMember  = "MEMBER"
	RoleViewer  = "VIEWER"
)

// Audit vocabulary.
const (
	EntityWorkItem = "WORK_ITEM"
	EntitySprint   = "SPRINT"
	EntityProject  = "PROJECT"

	ActionCreated         = "CREATED"
	ActionUpdated         = "UPDATED"
	ActionDeleted         = "DELETED"
	ActionMoved           = "MOVED"
	ActionSprintAssigned  = "SPRINT_ASSIGNED"
	ActionSprintRemoved   = "SPRINT_REMOVED"
	ActionSprintActivated = "ACTIVATED"
	ActionSprintCompleted = "COMPLETED"
)

// MaxTitleLength bounds work item and sprint titles, counted in runes.
const MaxTitleLength = 255

// BuiltinStatuses enumerates the statuses supported without custom columns.
var BuiltinStatuses = map[string]struct{}{
	StatusBacklog:    {},
	StatusTodo:       {},
	StatusInProgress: {},
	StatusDone:       {},
}

// DefaultColumns are seeded for every new project.
var DefaultColumns = []Column{
	{Name: "To Do", Status: StatusTodo, Position: 1},
	{Name: "In Progress", Status: StatusInProgress, Position: 2},
	{Name: "Done", Status: StatusDone, Position: 3},
}

// ValidStoryPoints is the Fibonacci estimate scale; 0 means unestimated.
var ValidStoryPoints = map[int]struct{}{
	0: {}, 1: {}, 2: {}, 3: {}, 5: {}, 8: {}, 13: {}, 21: {},
}

// ValidPriorities enumerates work item priorities.
var ValidPriorities = map[string]struct{}{
	"LOW":      {},
	"MEDIUM":   {},
	"HIGH":     {},
	"CRITICAL": {},
}

// ValidItemTypes enumerates work item kinds.
var ValidItemTypes = map[string]struct{}{
	"STORY":       {},
	"BUG":         {},
	"TASK":        {},
	"IMPROVEMENT": {},
}

// ValidRoles enumerates project roles.
var ValidRoles = map[string]struct{}{
	RoleOwner:   {},
	RoleManager: {},
	RoleMember:  {},
	RoleViewer:  {},
}

// IsElevated reports whether the role may drive the sprint lifecycle.
func IsElevated(role string) bool {
	return role == RoleOwner || role == RoleManager
}

// NormalizeTitle trims the title and reports whether its length is acceptable.
func NormalizeTitle(title string) (string, bool) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	return title, n > 0 && n <= MaxTitleLength
}

// NormalizeStatus upper-cases a status name and replaces spaces and dashes
// with underscores so "in progress" and "IN_PROGRESS" refer to one column.
func NormalizeStatus(status string) string {
	status = strings.ToUpper(strings.TrimSpace(status))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(status)
}
