package models

import "time"

// Station is a police station (commissariat) declarations are filed against
type Station struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Address   string    `gorm:"not null" json:"address"`
	City      string    `gorm:"not null;index" json:"city"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Station model
func (Station) TableName() string {
	return "stations"
}

// StationRef is the cross-reference embedded in declarations and accounts
type StationRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	City    string `json:"city"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Ref returns the cross-reference view of the station
func (s *Station) Ref() *StationRef {
	return &StationRef{ID: s.ID, Name: s.Name, City: s.City, Address: s.Address, Phone: s.Phone}
}
