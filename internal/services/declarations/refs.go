package declarations

import (
	"context"

	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/models"
)

// resolver fills the owner, station and agent cross-references of
// declarations. Lookups are cached for the lifetime of one call.
type resolver struct {
	s        *Service
	accounts map[string]*models.AccountRef
	stations map[string]*models.StationRef
}

func (s *Service) newResolver() *resolver {
	return &resolver{
		s:        s,
		accounts: make(map[string]*models.AccountRef),
		stations: make(map[string]*models.StationRef),
	}
}

func (r *resolver) resolve(ctx context.Context, d *models.Declaration) error {
	var err error
	if d.Owner, err = r.account(ctx, d.OwnerID); err != nil {
		return err
	}
	if d.Station, err = r.station(ctx, d.StationID); err != nil {
		return err
	}
	d.Agent = nil
	if d.AgentID != nil {
		if d.Agent, err = r.account(ctx, *d.AgentID); err != nil {
			return err
		}
	}
	return nil
}

// account returns nil for a reference that no longer exists
func (r *resolver) account(ctx context.Context, id string) (*models.AccountRef, error) {
	if ref, ok := r.accounts[id]; ok {
		return ref, nil
	}
	a, err := r.s.store.GetAccount(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			r.accounts[id] = nil
			return nil, nil
		}
		return nil, err
	}
	ref := a.Ref()
	r.accounts[id] = ref
	return ref, nil
}

func (r *resolver) station(ctx context.Context, id string) (*models.StationRef, error) {
	if ref, ok := r.stations[id]; ok {
		return ref, nil
	}
	st, err := r.s.store.GetStation(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			r.stations[id] = nil
			return nil, nil
		}
		return nil, err
	}
	ref := st.Ref()
	r.stations[id] = ref
	return ref, nil
}
