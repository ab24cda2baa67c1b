// Package policy holds the single authorization predicate every service
// operation consults before reading or mutating a store.
package policy

import (
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/models"
)

// Actor is the authenticated caller
type Actor struct {
	ID        string
	Role      models.Role
	StationID *string
}

// StationMatches reports whether the actor is attached to stationID
func (a Actor) StationMatches(stationID string) bool {
	return a.StationID != nil && *a.StationID == stationID
}

// Action names an operation guarded by the policy
type Action int

const (
	CreateDeclaration Action = iota
	ReadDeclaration
	UpdateDeclarationContent
	UpdateDeclarationStaffFields
	UpdateDeclarationStatus
	AssignAgent
	DeleteDeclaration
	HideDeclaration
	ListOwnDeclarations
	ListStationDeclarations
	ListAllDeclarations
	IssueReceipt
	ReadStationStats
	ManageStations
	ManageAccounts
	DeleteAccount
	ReadOwnAccount
	UpdateOwnAccount
)

var actionNames = map[Action]string{
	CreateDeclaration:            "create declaration",
	ReadDeclaration:              "read declaration",
	UpdateDeclarationContent:     "update declaration",
	UpdateDeclarationStaffFields: "update receipt or notes",
	UpdateDeclarationStatus:      "update declaration status",
	AssignAgent:                  "assign agent",
	DeleteDeclaration:            "delete declaration",
	HideDeclaration:              "hide declaration",
	ListOwnDeclarations:          "list own declarations",
	ListStationDeclarations:      "list station declarations",
	ListAllDeclarations:          "list all declarations",
	IssueReceipt:                 "issue receipt",
	ReadStationStats:             "read station statistics",
	ManageStations:               "manage stations",
	ManageAccounts:               "manage accounts",
	DeleteAccount:                "delete account",
	ReadOwnAccount:               "read account",
	UpdateOwnAccount:             "update account",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown action"
}

// Resource describes the target of an action. Only the fields relevant to
// the action need to be set.
type Resource struct {
	// Declaration targets
	OwnerID   string
	StationID string
	Status    models.Status

	// Account targets
	AccountID   string
	AccountRole models.Role
}

// ForDeclaration describes an existing declaration
func ForDeclaration(d *models.Declaration) Resource {
	return Resource{OwnerID: d.OwnerID, StationID: d.StationID, Status: d.Status}
}

// ForStation describes station-wide actions
func ForStation(stationID string) Resource {
	return Resource{StationID: stationID}
}

// ForAccount describes an existing account
func ForAccount(a *models.Account) Resource {
	return Resource{AccountID: a.ID, AccountRole: a.Role}
}

// CanPerform is the authorization predicate. It has no side effects.
func CanPerform(actor Actor, action Action, res Resource) bool {
	return decide(actor, action, res) == ""
}

// Authorize returns a Forbidden error describing why the action is denied
func Authorize(actor Actor, action Action, res Resource) error {
	if reason := decide(actor, action, res); reason != "" {
		return apperrors.Forbidden("%s", reason)
	}
	return nil
}

// decide returns an empty string when allowed, otherwise the denial reason
func decide(actor Actor, action Action, res Resource) string {
	if actor.ID == "" {
		return "not authenticated"
	}

	// Self-service on the own account is open to every role
	switch action {
	case ReadOwnAccount, UpdateOwnAccount:
		if res.AccountID == actor.ID {
			return ""
		}
		return "not authorized to access another account"
	}

	switch actor.Role {
	case models.RoleAdmin:
		return decideAdmin(action, res)
	case models.RoleStationAgent:
		return decideAgent(actor, action, res)
	case models.RoleDeclarant:
		return decideDeclarant(actor, action, res)
	default:
		return "unknown role"
	}
}

func decideAdmin(action Action, res Resource) string {
	switch action {
	case DeleteAccount:
		if res.AccountRole == models.RoleAdmin {
			return "cannot delete an admin account"
		}
		return ""
	default:
		return ""
	}
}

func decideAgent(actor Actor, action Action, res Resource) string {
	switch action {
	case ReadDeclaration, UpdateDeclarationContent, UpdateDeclarationStaffFields,
		UpdateDeclarationStatus, AssignAgent, IssueReceipt,
		ListStationDeclarations, ReadStationStats:
		if !actor.StationMatches(res.StationID) {
			return "not authorized for declarations of another station"
		}
		return ""
	case DeleteDeclaration:
		return "station agents cannot delete declarations"
	default:
		return "not authorized to " + action.String()
	}
}

func decideDeclarant(actor Actor, action Action, res Resource) string {
	switch action {
	case CreateDeclaration, ListOwnDeclarations:
		return ""
	case ReadDeclaration, HideDeclaration:
		if res.OwnerID != actor.ID {
			return "not authorized to access this declaration"
		}
		return ""
	case UpdateDeclarationContent:
		if res.OwnerID != actor.ID {
			return "not authorized to modify this declaration"
		}
		if res.Status != models.StatusPending {
			return "update not allowed outside pending status"
		}
		return ""
	case DeleteDeclaration:
		if res.OwnerID != actor.ID {
			return "not authorized to delete this declaration"
		}
		if res.Status != models.StatusPending {
			return "delete not allowed outside pending status"
		}
		return ""
	default:
		return "not authorized to " + action.String()
	}
}
