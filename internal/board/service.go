// Package board is the ordering and lifecycle engine: it relocates work
// items between scopes without breaking their 1..N positions, and drives
// sprints from planning to completion.
//
// Every mutation runs inside one store transaction. Membership is checked
// before the transaction opens; everything the mutation reads to compute
// positions is read inside it. History is recorded after commit.
package board

import (
	"context"
	"io"
	"log/slog"
	"time"

	"sprintboard/internal/apperr"
	"sprintboard/internal/models"
	"sprintboard/internal/storage/sqlite"
)

const dateLayout = "2006-01-02"

// Membership answers who may act on a project.
type Membership interface {
	IsMember(ctx context.Context, projectID, userID int64) (bool, error)
	RoleOf(ctx context.Context, projectID, userID int64) (string, error)
}

// HistoryRecorder receives the audit records of committed mutations.
type HistoryRecorder interface {
	Record(records ...models.HistoryRecord)
}

// Service exposes the board operations to the calling layer.
type Service struct {
	store   *sqlite.Store
	members Membership
	history HistoryRecorder
	now     func() time.Time
	logger  *slog.Logger

	// beforeCommit runs after all writes of a relocation and before commit.
	beforeCommit func() error
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a Service.
func New(store *sqlite.Store, members Membership, history HistoryRecorder, opts ...Option) *Service {
	s := &Service{
		store:   store,
		members: members,
		history: history,
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() string {
	return s.now().Format(dateLayout)
}

func (s *Service) record(records []models.HistoryRecord) {
	if s.history == nil || len(records) == 0 {
		return
	}
	s.history.Record(records...)
}

func (s *Service) requireMember(ctx context.Context, projectID, userID int64) error {
	ok, err := s.members.IsMember(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("user %d is not a member of project %d", userID, projectID)
	}
	return nil
}

func (s *Service) requireElevated(ctx context.Context, projectID, userID int64) error {
	role, err := s.members.RoleOf(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if role == "" {
		return apperr.Forbidden("user %d is not a member of project %d", userID, projectID)
	}
	if !models.IsElevated(role) {
		return apperr.Forbidden("role %s may not manage sprints", role)
	}
	return nil
}

// resolveStatus normalizes a status and checks it against the built-in
// statuses and the project's persisted columns.
func resolveStatus(ctx context.Context, tx *sqlite.Tx, projectID int64, status string) (string, error) {
	status = models.NormalizeStatus(status)
	if status == "" {
		return "", apperr.Validation("status must not be empty")
	}
	if _, ok := models.BuiltinStatuses[status]; ok {
		return status, nil
	}
	ok, err := tx.HasColumnStatus(ctx, projectID, status)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.Validation("unknown status %q", status)
	}
	return status, nil
}

// remainingSnapshot records today's remaining points for a sprint.
func (s *Service) remainingSnapshot(ctx context.Context, tx *sqlite.Tx, sprintID int64) (models.BurndownSnapshot, error) {
	_, remaining, err := tx.SprintPoints(ctx, sprintID)
	if err != nil {
		return models.BurndownSnapshot{}, err
	}
	snap := models.BurndownSnapshot{SprintID: sprintID, Date: s.today(), RemainingPoints: remaining}
	if err := tx.UpsertBurndown(ctx, snap); err != nil {
		return models.BurndownSnapshot{}, err
	}
	return snap, nil
}
