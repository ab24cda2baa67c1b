package declarations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/logger"
	"github.com/xelth-com/commissariat/internal/metrics"
	"github.com/xelth-com/commissariat/internal/models"
	"github.com/xelth-com/commissariat/internal/policy"
	"github.com/xelth-com/commissariat/internal/store"
	"gorm.io/datatypes"
)

// Notifier receives lifecycle events after they are persisted
type Notifier interface {
	DeclarationCreated(d *models.Declaration)
	DeclarationStatusChanged(d *models.Declaration)
	DeclarationDeleted(d *models.Declaration)
}

type nopNotifier struct{}

func (nopNotifier) DeclarationCreated(*models.Declaration)       {}
func (nopNotifier) DeclarationStatusChanged(*models.Declaration) {}
func (nopNotifier) DeclarationDeleted(*models.Declaration)       {}

// Options configures the service collaborators. Every field is optional.
type Options struct {
	Notifier Notifier
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
	// PublicURL prefixes the receipt download link stored on a declaration
	PublicURL string
	Now       func() time.Time
}

// Service implements the declaration lifecycle. Every operation is authorized
// through policy.Authorize before the store is touched.
type Service struct {
	store     store.Store
	notify    Notifier
	metrics   *metrics.Metrics
	log       *logrus.Entry
	publicURL string
	now       func() time.Time
}

// NewService creates the declaration service
func NewService(st store.Store, opts Options) *Service {
	s := &Service{
		store:     st,
		notify:    opts.Notifier,
		metrics:   opts.Metrics,
		log:       logger.Or(opts.Logger).Component("declarations"),
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		now:       opts.Now,
	}
	if s.notify == nil {
		s.notify = nopNotifier{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// CreateInput is the payload of a new declaration
type CreateInput struct {
	StationID    string
	Kind         models.Kind
	IncidentDate time.Time
	Location     string
	Description  string
	Photos       []string
	Details      models.Details
}

// Create files a declaration for the actor against an existing station
func (s *Service) Create(ctx context.Context, actor policy.Actor, in CreateInput) (*models.Declaration, error) {
	if err := policy.Authorize(actor, policy.CreateDeclaration, policy.Resource{OwnerID: actor.ID, StationID: in.StationID}); err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.StationID) == "" {
		return nil, apperrors.ValidationFields("a station must be selected", map[string]string{"stationId": "is required"})
	}
	if _, err := s.store.GetStation(ctx, in.StationID); err != nil {
		return nil, err
	}

	kind, err := models.ParseKind(string(in.Kind))
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if in.IncidentDate.IsZero() {
		fields["incidentDate"] = "is required"
	}
	if strings.TrimSpace(in.Location) == "" {
		fields["location"] = "is required"
	}
	if strings.TrimSpace(in.Description) == "" {
		fields["description"] = "is required"
	}
	if len(fields) > 0 {
		return nil, apperrors.ValidationFields("missing declaration fields", fields)
	}

	now := s.now()
	d := &models.Declaration{
		ID:           uuid.NewString(),
		OwnerID:      actor.ID,
		Kind:         kind,
		IncidentDate: in.IncidentDate,
		Location:     strings.TrimSpace(in.Location),
		Description:  strings.TrimSpace(in.Description),
		Photos:       photoList(in.Photos),
		StationID:    in.StationID,
		Status:       models.StatusPending,
		Details:      in.Details,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.CheckDetails(); err != nil {
		return nil, err
	}

	if err := s.store.CreateDeclaration(ctx, d); err != nil {
		return nil, err
	}

	if err := s.newResolver().resolve(ctx, d); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"declaration_id": d.ID,
		"owner_id":       d.OwnerID,
		"station_id":     d.StationID,
		"kind":           d.Kind,
	}).Info("declaration created")
	s.metrics.DeclarationEvent("created")
	s.notify.DeclarationCreated(d)

	return d, nil
}

// Get returns a declaration visible to the actor
func (s *Service) Get(ctx context.Context, actor policy.Actor, id string) (*models.Declaration, error) {
	d, err := s.store.GetDeclaration(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ReadDeclaration, policy.ForDeclaration(d)); err != nil {
		return nil, err
	}
	if err := s.newResolver().resolve(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ListOwn returns the actor's declarations, without the ones the actor hid
func (s *Service) ListOwn(ctx context.Context, actor policy.Actor) ([]models.Declaration, error) {
	if err := policy.Authorize(actor, policy.ListOwnDeclarations, policy.Resource{OwnerID: actor.ID}); err != nil {
		return nil, err
	}
	list, err := s.store.ListDeclarations(ctx, store.DeclarationFilter{OwnerID: actor.ID, ExcludeHidden: true})
	if err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, list)
}

// ListByStation returns every declaration of a station, newest first.
// Hidden declarations are included.
func (s *Service) ListByStation(ctx context.Context, actor policy.Actor, stationID string) ([]models.Declaration, error) {
	if err := policy.Authorize(actor, policy.ListStationDeclarations, policy.ForStation(stationID)); err != nil {
		return nil, err
	}
	if _, err := s.store.GetStation(ctx, stationID); err != nil {
		return nil, err
	}
	list, err := s.store.ListDeclarations(ctx, store.DeclarationFilter{StationID: stationID})
	if err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, list)
}

// Filter narrows ListAll
type Filter struct {
	StationID string
	Status    models.Status
	Kind      models.Kind
}

// ListAll returns every declaration matching the filter (admin view)
func (s *Service) ListAll(ctx context.Context, actor policy.Actor, f Filter) ([]models.Declaration, error) {
	if err := policy.Authorize(actor, policy.ListAllDeclarations, policy.Resource{}); err != nil {
		return nil, err
	}
	if f.Status != "" {
		if _, err := models.ParseStatus(string(f.Status)); err != nil {
			return nil, err
		}
	}
	if f.Kind != "" {
		if _, err := models.ParseKind(string(f.Kind)); err != nil {
			return nil, err
		}
	}
	list, err := s.store.ListDeclarations(ctx, store.DeclarationFilter{
		StationID: f.StationID,
		Status:    f.Status,
		Kind:      f.Kind,
	})
	if err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, list)
}

// Patch is a partial update. Nil fields are left unchanged.
//   - An empty Location or Description is rejected; they are required.
//   - An empty ReceiptNumber, ReceiptURL or Notes clears the field.
//   - A non-nil Photos replaces the list; an empty list clears it.
//   - A non-nil Details replaces the whole variant and must match the kind.
type Patch struct {
	IncidentDate *time.Time
	Location     *string
	Description  *string
	Photos       *[]string
	Details      models.Details

	ReceiptNumber *string
	ReceiptURL    *string
	Notes         *string
}

func (p Patch) touchesContent() bool {
	return p.IncidentDate != nil || p.Location != nil || p.Description != nil || p.Photos != nil || p.Details != nil
}

func (p Patch) touchesStaffFields() bool {
	return p.ReceiptNumber != nil || p.ReceiptURL != nil || p.Notes != nil
}

// UpdateContent applies a partial update. Owners may change content while the
// declaration is pending; staff of the station may also change receipt and notes.
func (s *Service) UpdateContent(ctx context.Context, actor policy.Actor, id string, p Patch) (*models.Declaration, error) {
	d, err := s.store.GetDeclaration(ctx, id)
	if err != nil {
		return nil, err
	}

	res := policy.ForDeclaration(d)
	if p.touchesContent() || !p.touchesStaffFields() {
		if err := policy.Authorize(actor, policy.UpdateDeclarationContent, res); err != nil {
			return nil, err
		}
	}
	if p.touchesStaffFields() {
		if err := policy.Authorize(actor, policy.UpdateDeclarationStaffFields, res); err != nil {
			return nil, err
		}
	}

	fields := map[string]string{}
	if p.IncidentDate != nil {
		if p.IncidentDate.IsZero() {
			fields["incidentDate"] = "is required"
		}
		d.IncidentDate = *p.IncidentDate
	}
	if p.Location != nil {
		if strings.TrimSpace(*p.Location) == "" {
			fields["location"] = "is required"
		}
		d.Location = strings.TrimSpace(*p.Location)
	}
	if p.Description != nil {
		if strings.TrimSpace(*p.Description) == "" {
			fields["description"] = "is required"
		}
		d.Description = strings.TrimSpace(*p.Description)
	}
	if len(fields) > 0 {
		return nil, apperrors.ValidationFields("invalid declaration fields", fields)
	}
	if p.Photos != nil {
		d.Photos = photoList(*p.Photos)
	}
	if p.Details != nil {
		d.Details = p.Details
		if err := d.CheckDetails(); err != nil {
			return nil, err
		}
	}
	if p.ReceiptNumber != nil {
		d.ReceiptNumber = strings.TrimSpace(*p.ReceiptNumber)
	}
	if p.ReceiptURL != nil {
		d.ReceiptURL = strings.TrimSpace(*p.ReceiptURL)
	}
	if p.Notes != nil {
		d.Notes = strings.TrimSpace(*p.Notes)
	}

	d.UpdatedAt = s.now()
	if err := s.store.UpdateDeclaration(ctx, d); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"declaration_id": d.ID, "actor_id": actor.ID}).Info("declaration updated")

	if err := s.newResolver().resolve(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// StatusInput is the payload of a status change
type StatusInput struct {
	Status       models.Status
	RejectReason string
	// AgentID, when set, assigns the declaration to a station agent
	AgentID *string
}

// UpdateStatus moves a declaration through the workflow
func (s *Service) UpdateStatus(ctx context.Context, actor policy.Actor, id string, in StatusInput) (*models.Declaration, error) {
	d, err := s.store.GetDeclaration(ctx, id)
	if err != nil {
		return nil, err
	}
	res := policy.ForDeclaration(d)
	if err := policy.Authorize(actor, policy.UpdateDeclarationStatus, res); err != nil {
		return nil, err
	}

	status, err := models.ParseStatus(string(in.Status))
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.RejectReason)
	if status == models.StatusRejected && reason == "" {
		return nil, apperrors.ValidationFields("a reason is required to reject a declaration",
			map[string]string{"rejectReason": "is required"})
	}
	if !models.CanTransition(d.Status, status) {
		return nil, apperrors.Validation("invalid status transition from %s to %s", d.Status, status)
	}

	if in.AgentID != nil {
		if err := policy.Authorize(actor, policy.AssignAgent, res); err != nil {
			return nil, err
		}
		agent, err := s.store.GetAccount(ctx, *in.AgentID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.NotFound("agent not found")
			}
			return nil, err
		}
		if agent.Role != models.RoleStationAgent {
			return nil, apperrors.Validation("account %s is not a station agent", agent.ID)
		}
		if agent.StationID == nil || *agent.StationID != d.StationID {
			return nil, apperrors.Validation("agent %s does not belong to the declaration's station", agent.ID)
		}
		d.AgentID = &agent.ID
	}

	previous := d.Status
	now := s.now()
	d.Status = status
	if status == models.StatusRejected {
		d.RejectReason = reason
	} else {
		d.RejectReason = ""
	}
	d.ProcessedAt = &now
	d.UpdatedAt = now

	if err := s.store.UpdateDeclaration(ctx, d); err != nil {
		return nil, err
	}

	if err := s.newResolver().resolve(ctx, d); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"declaration_id": d.ID,
		"actor_id":       actor.ID,
		"from":           previous,
		"to":             status,
	}).Info("declaration status updated")
	s.metrics.DeclarationEvent("status_changed")
	s.notify.DeclarationStatusChanged(d)

	return d, nil
}

// Delete removes a declaration permanently. Admins may delete any declaration,
// owners only while it is pending.
func (s *Service) Delete(ctx context.Context, actor policy.Actor, id string) error {
	d, err := s.store.GetDeclaration(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.DeleteDeclaration, policy.ForDeclaration(d)); err != nil {
		return err
	}
	if err := s.store.DeleteDeclaration(ctx, id); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"declaration_id": id, "actor_id": actor.ID}).Info("declaration deleted")
	s.metrics.DeclarationEvent("deleted")
	s.notify.DeclarationDeleted(d)
	return nil
}

// Hide removes a declaration from its owner's list without deleting it
func (s *Service) Hide(ctx context.Context, actor policy.Actor, id string) (*models.Declaration, error) {
	d, err := s.store.GetDeclaration(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.HideDeclaration, policy.ForDeclaration(d)); err != nil {
		return nil, err
	}
	if !d.Hidden {
		d.Hidden = true
		d.UpdatedAt = s.now()
		if err := s.store.UpdateDeclaration(ctx, d); err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{"declaration_id": id, "actor_id": actor.ID}).Info("declaration hidden")
	}
	if err := s.newResolver().resolve(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// IssueReceipt assigns a receipt number and download link. An existing
// number is kept.
func (s *Service) IssueReceipt(ctx context.Context, actor policy.Actor, id string) (*models.Declaration, error) {
	d, err := s.store.GetDeclaration(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.IssueReceipt, policy.ForDeclaration(d)); err != nil {
		return nil, err
	}

	now := s.now()
	if d.ReceiptNumber == "" {
		d.ReceiptNumber = receiptNumber(now)
	}
	if d.ReceiptIssuedAt == nil {
		d.ReceiptIssuedAt = &now
	}
	d.ReceiptURL = fmt.Sprintf("%s/api/declarations/%s/receipt", s.publicURL, d.ID)
	d.UpdatedAt = now

	if err := s.store.UpdateDeclaration(ctx, d); err != nil {
		return nil, err
	}
	if err := s.newResolver().resolve(ctx, d); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"declaration_id": id, "receipt": d.ReceiptNumber}).Info("receipt issued")
	return d, nil
}

// Receipt returns a declaration whose receipt was issued, for rendering
func (s *Service) Receipt(ctx context.Context, actor policy.Actor, id string) (*models.Declaration, error) {
	d, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if d.ReceiptNumber == "" {
		return nil, apperrors.NotFound("no receipt issued for this declaration")
	}
	return d, nil
}

// StationStats counts a station's declarations per status
type StationStats struct {
	StationID string                  `json:"stationId"`
	Total     int64                   `json:"total"`
	Pending   int64                   `json:"pending"`
	ByStatus  map[models.Status]int64 `json:"byStatus"`
}

// Stats returns per-status counts for a station
func (s *Service) Stats(ctx context.Context, actor policy.Actor, stationID string) (*StationStats, error) {
	if err := policy.Authorize(actor, policy.ReadStationStats, policy.ForStation(stationID)); err != nil {
		return nil, err
	}
	if _, err := s.store.GetStation(ctx, stationID); err != nil {
		return nil, err
	}

	stats := &StationStats{StationID: stationID, ByStatus: make(map[models.Status]int64, len(models.AllStatuses))}
	for _, st := range models.AllStatuses {
		n, err := s.store.CountDeclarations(ctx, store.DeclarationFilter{StationID: stationID, Status: st})
		if err != nil {
			return nil, err
		}
		stats.ByStatus[st] = n
		stats.Total += n
	}
	stats.Pending = stats.ByStatus[models.StatusPending]
	return stats, nil
}

func (s *Service) resolveAll(ctx context.Context, list []models.Declaration) ([]models.Declaration, error) {
	r := s.newResolver()
	for i := range list {
		if err := r.resolve(ctx, &list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func photoList(photos []string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(photos))
	for _, p := range photos {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// receiptNumber formats REC-YYYYMMDD-XXXXXX
func receiptNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("REC-%s-%s", now.Format("20060102"), suffix)
}
