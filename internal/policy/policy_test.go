package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/models"
)

func station(id string) *string { return &id }

var (
	owner    = Actor{ID: "owner", Role: models.RoleDeclarant}
	stranger = Actor{ID: "stranger", Role: models.RoleDeclarant}
	agentA   = Actor{ID: "agent-a", Role: models.RoleStationAgent, StationID: station("A")}
	agentB   = Actor{ID: "agent-b", Role: models.RoleStationAgent, StationID: station("B")}
	detached = Actor{ID: "agent-x", Role: models.RoleStationAgent}
	admin    = Actor{ID: "admin", Role: models.RoleAdmin}
)

func TestCanPerform(t *testing.T) {
	pending := Resource{OwnerID: "owner", StationID: "A", Status: models.StatusPending}
	processing := Resource{OwnerID: "owner", StationID: "A", Status: models.StatusProcessing}

	tests := []struct {
		name   string
		actor  Actor
		action Action
		res    Resource
		want   bool
	}{
		{"anonymous denied", Actor{}, ReadDeclaration, pending, false},
		{"unknown role denied", Actor{ID: "x", Role: "ghost"}, CreateDeclaration, pending, false},

		{"declarant creates", stranger, CreateDeclaration, Resource{StationID: "A"}, true},
		{"owner reads", owner, ReadDeclaration, processing, true},
		{"stranger cannot read", stranger, ReadDeclaration, pending, false},
		{"owner edits pending", owner, UpdateDeclarationContent, pending, true},
		{"owner cannot edit processing", owner, UpdateDeclarationContent, processing, false},
		{"owner cannot edit staff fields", owner, UpdateDeclarationStaffFields, pending, false},
		{"owner deletes pending", owner, DeleteDeclaration, pending, true},
		{"owner cannot delete processing", owner, DeleteDeclaration, processing, false},
		{"stranger cannot delete", stranger, DeleteDeclaration, pending, false},
		{"owner hides", owner, HideDeclaration, processing, true},
		{"declarant cannot change status", owner, UpdateDeclarationStatus, pending, false},
		{"declarant cannot list station", owner, ListStationDeclarations, ForStation("A"), false},
		{"declarant cannot list all", owner, ListAllDeclarations, Resource{}, false},

		{"agent reads own station", agentA, ReadDeclaration, pending, true},
		{"agent cannot read other station", agentB, ReadDeclaration, pending, false},
		{"agent without station denied", detached, ReadDeclaration, pending, false},
		{"agent changes status", agentA, UpdateDeclarationStatus, processing, true},
		{"agent assigns", agentA, AssignAgent, processing, true},
		{"agent issues receipt", agentA, IssueReceipt, processing, true},
		{"agent edits staff fields", agentA, UpdateDeclarationStaffFields, processing, true},
		{"agent reads stats", agentA, ReadStationStats, ForStation("A"), true},
		{"agent cannot read other stats", agentA, ReadStationStats, ForStation("B"), false},
		{"agent never deletes", agentA, DeleteDeclaration, pending, false},
		{"agent cannot hide", agentA, HideDeclaration, pending, false},
		{"agent cannot create", agentA, CreateDeclaration, Resource{StationID: "A"}, false},
		{"agent cannot manage stations", agentA, ManageStations, Resource{}, false},

		{"admin reads anything", admin, ReadDeclaration, processing, true},
		{"admin deletes any status", admin, DeleteDeclaration, processing, true},
		{"admin lists all", admin, ListAllDeclarations, Resource{}, true},
		{"admin manages stations", admin, ManageStations, Resource{}, true},
		{"admin deletes declarant", admin, DeleteAccount, Resource{AccountID: "owner", AccountRole: models.RoleDeclarant}, true},
		{"admin cannot delete admin", admin, DeleteAccount, Resource{AccountID: "other", AccountRole: models.RoleAdmin}, false},

		{"own account readable", stranger, ReadOwnAccount, Resource{AccountID: "stranger"}, true},
		{"other account not readable", stranger, ReadOwnAccount, Resource{AccountID: "owner"}, false},
		{"declarant cannot manage accounts", owner, ManageAccounts, Resource{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanPerform(tt.actor, tt.action, tt.res))
		})
	}
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	err := Authorize(stranger, ReadDeclaration, Resource{OwnerID: "owner"})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	assert.Contains(t, err.Error(), "not authorized")

	assert.NoError(t, Authorize(admin, ManageStations, Resource{}))
}

func TestForDeclaration(t *testing.T) {
	d := &models.Declaration{OwnerID: "owner", StationID: "A", Status: models.StatusClosed}
	assert.Equal(t, Resource{OwnerID: "owner", StationID: "A", Status: models.StatusClosed}, ForDeclaration(d))
	assert.Equal(t, "hide declaration", HideDeclaration.String())
	assert.Equal(t, "unknown action", Action(999).String())
}
