package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Kind distinguishes lost objects from missing persons
type Kind string

const (
	KindObject Kind = "object"
	KindPerson Kind = "person"
)

// ParseKind accepts only the known declaration kinds
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.TrimSpace(s)); k {
	case KindObject, KindPerson:
		return k, nil
	default:
		return "", apperrors.Validation("invalid declaration kind %q", s)
	}
}

// Status is the processing state of a declaration
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusClosed     Status = "closed"
	StatusRejected   Status = "rejected"
)

// AllStatuses lists every status in workflow order
var AllStatuses = []Status{StatusPending, StatusProcessing, StatusProcessed, StatusClosed, StatusRejected}

// ParseStatus accepts only the known statuses
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusPending, StatusProcessing, StatusProcessed, StatusClosed, StatusRejected:
		return st, nil
	default:
		return "", apperrors.Validation("invalid status %q", s)
	}
}

// CanTransition reports whether a declaration may move from one status to another.
// Re-applying the current status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch to {
	case StatusRejected:
		return true
	case StatusProcessing:
		return from == StatusPending
	case StatusProcessed:
		return from == StatusProcessing
	case StatusClosed:
		return from == StatusProcessed
	case StatusPending:
		return false
	default:
		return false
	}
}

// Details is the kind-specific part of a declaration.
// Implemented only by ObjectDetails and PersonDetails.
type Details interface {
	Kind() Kind
	Validate() error
	sealed()
}

// ObjectDetails describes a lost object. Every field is optional.
type ObjectDetails struct {
	ObjectName          string           `json:"objectName,omitempty"`
	ObjectCategory      string           `json:"objectCategory,omitempty"`
	ObjectBrand         string           `json:"objectBrand,omitempty"`
	ObjectModel         string           `json:"objectModel,omitempty"`
	SerialNumber        string           `json:"serialNumber,omitempty"`
	Color               string           `json:"color,omitempty"`
	EstimatedValue      *decimal.Decimal `json:"estimatedValue,omitempty"`
	IdentificationMarks string           `json:"identificationMarks,omitempty"`
}

func (ObjectDetails) Kind() Kind { return KindObject }
func (ObjectDetails) sealed()    {}

// Validate checks the only constraint objects carry: a non-negative value
func (d ObjectDetails) Validate() error {
	if d.EstimatedValue != nil && d.EstimatedValue.IsNegative() {
		return apperrors.ValidationFields("invalid fields: estimatedValue",
			map[string]string{"estimatedValue": "must not be negative"})
	}
	return nil
}

// PersonDetails describes a missing person. The first eight fields are required.
type PersonDetails struct {
	FirstName           string    `json:"firstName" validate:"required"`
	LastName            string    `json:"lastName" validate:"required"`
	DateOfBirth         time.Time `json:"dateOfBirth" validate:"required"`
	Gender              string    `json:"gender" validate:"required,oneof=male female other"`
	Height              float64   `json:"height" validate:"required,gt=0"`
	Weight              float64   `json:"weight" validate:"required,gt=0"`
	ClothingDescription string    `json:"clothingDescription" validate:"required"`
	LastSeenLocation    string    `json:"lastSeenLocation" validate:"required"`

	HairColor           string `json:"hairColor,omitempty"`
	EyeColor            string `json:"eyeColor,omitempty"`
	DistinguishingMarks string `json:"distinguishingMarks,omitempty"`
	MedicalConditions   string `json:"medicalConditions,omitempty"`
	ContactInfo         string `json:"contactInfo,omitempty"`
}

func (PersonDetails) Kind() Kind { return KindPerson }
func (PersonDetails) sealed()    {}

// Validate enforces the required person fields
func (d PersonDetails) Validate() error {
	return validation.Struct(d)
}

// NewPersonDetails returns d only if every required field is present
func NewPersonDetails(d PersonDetails) (PersonDetails, error) {
	if err := d.Validate(); err != nil {
		return PersonDetails{}, err
	}
	return d, nil
}

// DetailsFromJSON builds the variant matching kind from the raw sub-records.
// Exactly the sub-record matching kind may be present.
func DetailsFromJSON(kind Kind, object, person json.RawMessage) (Details, error) {
	hasObject := len(object) > 0 && string(object) != "null"
	hasPerson := len(person) > 0 && string(person) != "null"

	switch kind {
	case KindObject:
		if hasPerson {
			return nil, apperrors.Validation("personDetails not allowed for an object declaration")
		}
		var d ObjectDetails
		if hasObject {
			if err := json.Unmarshal(object, &d); err != nil {
				return nil, apperrors.Validation("invalid objectDetails: %v", err)
			}
		}
		return d, d.Validate()
	case KindPerson:
		if hasObject {
			return nil, apperrors.Validation("objectDetails not allowed for a person declaration")
		}
		if !hasPerson {
			return nil, apperrors.Validation("personDetails is required for a person declaration")
		}
		var d PersonDetails
		if err := json.Unmarshal(person, &d); err != nil {
			return nil, apperrors.Validation("invalid personDetails: %v", err)
		}
		return NewPersonDetails(d)
	default:
		return nil, apperrors.Validation("invalid declaration kind %q", kind)
	}
}

// Declaration is a filed lost-object or missing-person case
type Declaration struct {
	ID              string                      `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID         string                      `gorm:"type:uuid;not null;index" json:"ownerId"`
	Kind            Kind                        `gorm:"type:varchar(10);not null" json:"kind"`
	IncidentDate    time.Time                   `gorm:"not null" json:"incidentDate"`
	Location        string                      `gorm:"not null" json:"location"`
	Description     string                      `gorm:"type:text;not null" json:"description"`
	Photos          datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"photos"`
	StationID       string                      `gorm:"type:uuid;not null;index" json:"stationId"`
	Status          Status                      `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	RejectReason    string                      `gorm:"type:text" json:"rejectReason,omitempty"`
	AgentID         *string                     `gorm:"type:uuid;index" json:"agentId,omitempty"`
	ReceiptNumber   string                      `json:"receiptNumber,omitempty"`
	ReceiptURL      string                      `json:"receiptUrl,omitempty"`
	ReceiptIssuedAt *time.Time                  `json:"receiptIssuedAt,omitempty"`
	Notes           string                      `gorm:"type:text" json:"notes,omitempty"`
	ProcessedAt     *time.Time                  `json:"processedAt,omitempty"`
	Hidden          bool                        `gorm:"default:false" json:"hidden"`
	CreatedAt       time.Time                   `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time                   `json:"updatedAt"`

	Details Details `gorm:"-" json:"-"`

	// Storage of the populated Details variant
	ObjectData datatypes.JSON `gorm:"column:object_details;type:jsonb" json:"-"`
	PersonData datatypes.JSON `gorm:"column:person_details;type:jsonb" json:"-"`

	// Cross-references resolved on read
	Owner   *AccountRef `gorm:"-" json:"owner,omitempty"`
	Station *StationRef `gorm:"-" json:"station,omitempty"`
	Agent   *AccountRef `gorm:"-" json:"agent,omitempty"`
}

// TableName specifies the table name for Declaration model
func (Declaration) TableName() string {
	return "declarations"
}

// CheckDetails verifies that Details is populated, valid and matches Kind
func (d *Declaration) CheckDetails() error {
	if d.Details == nil {
		return apperrors.Validation("details are required for a %s declaration", d.Kind)
	}
	if d.Details.Kind() != d.Kind {
		return apperrors.Validation("%s details do not match declaration kind %s", d.Details.Kind(), d.Kind)
	}
	return d.Details.Validate()
}

// ObjectDetails returns the object variant, if that is the populated one
func (d *Declaration) ObjectDetails() (ObjectDetails, bool) {
	v, ok := d.Details.(ObjectDetails)
	return v, ok
}

// PersonDetails returns the person variant, if that is the populated one
func (d *Declaration) PersonDetails() (PersonDetails, bool) {
	v, ok := d.Details.(PersonDetails)
	return v, ok
}

// Clone returns a copy that shares no mutable state with d
func (d *Declaration) Clone() *Declaration {
	c := *d
	if d.Photos != nil {
		c.Photos = append(datatypes.JSONSlice[string]{}, d.Photos...)
	}
	if d.AgentID != nil {
		id := *d.AgentID
		c.AgentID = &id
	}
	return &c
}

// BeforeSave stores the populated variant in its column
func (d *Declaration) BeforeSave(tx *gorm.DB) error {
	d.ObjectData, d.PersonData = nil, nil
	switch v := d.Details.(type) {
	case ObjectDetails:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		d.ObjectData = raw
	case PersonDetails:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		d.PersonData = raw
	case nil:
		return fmt.Errorf("declaration %s has no details", d.ID)
	}
	return nil
}

// AfterFind rebuilds Details from the stored column
func (d *Declaration) AfterFind(tx *gorm.DB) error {
	switch d.Kind {
	case KindObject:
		var v ObjectDetails
		if len(d.ObjectData) > 0 {
			if err := json.Unmarshal(d.ObjectData, &v); err != nil {
				return fmt.Errorf("decode object details of %s: %w", d.ID, err)
			}
		}
		d.Details = v
	case KindPerson:
		var v PersonDetails
		if len(d.PersonData) > 0 {
			if err := json.Unmarshal(d.PersonData, &v); err != nil {
				return fmt.Errorf("decode person details of %s: %w", d.ID, err)
			}
		}
		d.Details = v
	}
	return nil
}

type declarationJSON Declaration

// MarshalJSON emits exactly one of objectDetails/personDetails
func (d Declaration) MarshalJSON() ([]byte, error) {
	out := struct {
		declarationJSON
		ObjectDetails *ObjectDetails `json:"objectDetails,omitempty"`
		PersonDetails *PersonDetails `json:"personDetails,omitempty"`
	}{declarationJSON: declarationJSON(d)}

	switch v := d.Details.(type) {
	case ObjectDetails:
		out.ObjectDetails = &v
	case PersonDetails:
		out.PersonDetails = &v
	}
	return json.Marshal(out)
}
