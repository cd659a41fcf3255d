package board

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/internal/apperr"
	"sprintboard/internal/models"
)

func TestCreateProject_RequiresUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProject(ctx, "Anonymous", "", 0)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	p, err := f.svc.CreateProject(ctx, "Search", "#000000", memberID)
	require.NoError(t, err)
	role, err := f.store.RoleOf(ctx, p.ID, memberID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)
}

func TestUpdateProject_Roles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateProject(ctx, f.project.ID, "Renamed", "", memberID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	p, err := f.svc.UpdateProject(ctx, f.project.ID, "Renamed", "#111111", ownerID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)
	assert.Equal(t, "#111111", p.Color)
}

func TestAddMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: outsiderID, Role: models.RoleMember}, memberID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, f.svc.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: outsiderID, Role: models.RoleManager}, ownerID))
	ok, err := f.store.IsMember(ctx, f.project.ID, outsiderID)
	require.NoError(t, err)
	assert.True(t, ok)

	err = f.svc.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: memberID, Role: models.RoleOwner}, outsiderID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	err = f.svc.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: ownerID, Role: models.RoleMember}, ownerID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = f.svc.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: viewerID, Role: "ADMIN"}, ownerID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAddMember_OwnerRoleIsProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const managerID int64 = 9
	require.NoError(t, f.svc.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: managerID, Role: models.RoleManager}, ownerID))

	err := f.svc.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: ownerID, Role: models.RoleMember}, managerID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	role, err := f.store.RoleOf(ctx, f.project.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)

	// A second owner makes demoting the first one legal.
	require.NoError(t, f.svc.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: managerID, Role: models.RoleOwner}, ownerID))
	require.NoError(t, f.svc.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: ownerID, Role: models.RoleManager}, managerID))

	err = f.svc.AddMember(ctx, models.Member{ProjectID: f.project.ID, UserID: managerID, Role: models.RoleMember}, managerID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	owners, err := f.store.CountOwners(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, owners)
	role, err = f.store.RoleOf(ctx, f.project.ID, managerID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)
}

func TestCreateColumn_EnablesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateColumn(ctx, models.Column{ProjectID: f.project.ID, Name: "Review"}, memberID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	col, err := f.svc.CreateColumn(ctx, models.Column{ProjectID: f.project.ID, Name: "Review"}, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "REVIEW", col.Status)

	cols, err := f.svc.ListColumns(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, cols, 4)

	sp := f.createSprint(t, "Sprint 1", 10)
	w := f.createItem(t, "needs review", 3)
	f.assign(t, sp.ID, w)
	moved := f.moveTo(t, w.ID, "review")
	assert.Equal(t, "REVIEW", moved.Status)
}
