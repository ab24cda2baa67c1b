// Package stations manages the commissariat stations declarations are filed with.
package stations

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/logger"
	"github.com/xelth-com/commissariat/internal/models"
	"github.com/xelth-com/commissariat/internal/policy"
	"github.com/xelth-com/commissariat/internal/store"
	"github.com/xelth-com/commissariat/internal/validation"
)

type Service struct {
	store store.Store
	log   *logrus.Entry
	now   func() time.Time
}

func NewService(st store.Store, log *logger.Logger) *Service {
	return &Service{
		store: st,
		log:   logger.Or(log).Component("stations"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Input is the payload for creating or replacing a station
type Input struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	Phone   string `json:"phone" validate:"omitempty,phone"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	in.City = strings.TrimSpace(in.City)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = models.NormalizeEmail(in.Email)
}

// List returns every station. Any authenticated caller may list stations
// to pick one when filing a declaration.
func (s *Service) List(ctx context.Context) ([]models.Station, error) {
	return s.store.ListStations(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*models.Station, error) {
	return s.store.GetStation(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor policy.Actor, in Input) (*models.Station, error) {
	if err := policy.Authorize(actor, policy.ManageStations, policy.Resource{}); err != nil {
		return nil, err
	}
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	st := &models.Station{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Address:   in.Address,
		City:      in.City,
		Phone:     in.Phone,
		Email:     in.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateStation(ctx, st); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"station_id": st.ID, "name": st.Name}).Info("station created")
	return st, nil
}

func (s *Service) Update(ctx context.Context, actor policy.Actor, id string, in Input) (*models.Station, error) {
	if err := policy.Authorize(actor, policy.ManageStations, policy.ForStation(id)); err != nil {
		return nil, err
	}
	st, err := s.store.GetStation(ctx, id)
	if err != nil {
		return nil, err
	}
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	st.Name, st.Address, st.City = in.Name, in.Address, in.City
	st.Phone, st.Email = in.Phone, in.Email
	st.UpdatedAt = s.now()
	if err := s.store.UpdateStation(ctx, st); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"station_id": st.ID}).Info("station updated")
	return st, nil
}

// Delete removes a station that no agent or declaration references
func (s *Service) Delete(ctx context.Context, actor policy.Actor, id string) error {
	if err := policy.Authorize(actor, policy.ManageStations, policy.ForStation(id)); err != nil {
		return err
	}
	if _, err := s.store.GetStation(ctx, id); err != nil {
		return err
	}

	agents, err := s.store.CountAccounts(ctx, store.AccountFilter{StationID: id})
	if err != nil {
		return err
	}
	if agents > 0 {
		return apperrors.Conflict("station still has %d agents", agents)
	}
	declarations, err := s.store.CountDeclarations(ctx, store.DeclarationFilter{StationID: id})
	if err != nil {
		return err
	}
	if declarations > 0 {
		return apperrors.Conflict("station still has %d declarations", declarations)
	}

	if err := s.store.DeleteStation(ctx, id); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"station_id": id, "actor_id": actor.ID}).Info("station deleted")
	return nil
}
