package models

import (
	"strings"
	"time"

	"github.com/xelth-com/commissariat/internal/apperrors"
)

// Role is the closed set of account roles
type Role string

const (
	RoleDeclarant    Role = "declarant"
	RoleStationAgent Role = "station_agent"
	RoleAdmin        Role = "admin"
)

// ParseRole accepts only the known roles
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(s)); r {
	case RoleDeclarant, RoleStationAgent, RoleAdmin:
		return r, nil
	default:
		return "", apperrors.Validation("invalid role %q", s)
	}
}

// RequiresStation reports whether accounts of this role must reference a station
func (r Role) RequiresStation() bool {
	switch r {
	case RoleStationAgent:
		return true
	case RoleDeclarant, RoleAdmin:
		return false
	default:
		return false
	}
}

// Account represents a user of the system
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type Account struct {
	ID           string     `gorm:"primaryKey;type:uuid" json:"id"`
	FirstName    string     `gorm:"not null" json:"firstName"`
	LastName     string     `gorm:"not null" json:"lastName"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	Profession   string     `json:"profession,omitempty"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty"`
	BirthPlace   string     `json:"birthPlace,omitempty"`
	Role         Role       `gorm:"type:varchar(20);not null;index" json:"role"`
	StationID    *string    `gorm:"type:uuid;index" json:"stationId,omitempty"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Resolved on read, never persisted
	Station *StationRef `gorm:"-" json:"station,omitempty"`
}

// TableName specifies the table name for Account model
func (Account) TableName() string {
	return "accounts"
}

// AccountRef is the cross-reference embedded in other records
type AccountRef struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Ref returns the cross-reference view of the account
func (a *Account) Ref() *AccountRef {
	return &AccountRef{ID: a.ID, FirstName: a.FirstName, LastName: a.LastName, Email: a.Email}
}

// NormalizeEmail lower-cases and trims an email for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
