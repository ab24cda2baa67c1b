// Package store defines the persistence ports of the three record stores and
// their PostgreSQL (gorm) and in-memory adapters.
package store

import (
	"context"

	"github.com/xelth-com/commissariat/internal/models"
)

// AccountFilter narrows account listings. Zero values match everything.
type AccountFilter struct {
	Role      models.Role
	StationID string
}

// DeclarationFilter narrows declaration listings. Zero values match everything.
type DeclarationFilter struct {
	OwnerID       string
	StationID     string
	AgentID       string
	Status        models.Status
	Kind          models.Kind
	ExcludeHidden bool
}

// AccountStore persists accounts. Email is unique.
type AccountStore interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	ListAccounts(ctx context.Context, f AccountFilter) ([]models.Account, error)
	UpdateAccount(ctx context.Context, a *models.Account) error
	DeleteAccount(ctx context.Context, id string) error
	CountAccounts(ctx context.Context, f AccountFilter) (int64, error)
}

// StationStore persists stations. Name is unique.
type StationStore interface {
	CreateStation(ctx context.Context, s *models.Station) error
	GetStation(ctx context.Context, id string) (*models.Station, error)
	ListStations(ctx context.Context) ([]models.Station, error)
	UpdateStation(ctx context.Context, s *models.Station) error
	DeleteStation(ctx context.Context, id string) error
}

// DeclarationStore persists declarations
type DeclarationStore interface {
	CreateDeclaration(ctx context.Context, d *models.Declaration) error
	GetDeclaration(ctx context.Context, id string) (*models.Declaration, error)
	// ListDeclarations returns matches ordered by creation time, newest first
	ListDeclarations(ctx context.Context, f DeclarationFilter) ([]models.Declaration, error)
	UpdateDeclaration(ctx context.Context, d *models.Declaration) error
	DeleteDeclaration(ctx context.Context, id string) error
	CountDeclarations(ctx context.Context, f DeclarationFilter) (int64, error)
	// ClearAgent unassigns agentID from every declaration
	ClearAgent(ctx context.Context, agentID string) error
}

// Store bundles the three record stores
type Store interface {
	AccountStore
	StationStore
	DeclarationStore
}
