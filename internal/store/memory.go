package store

import (
	"context"
	"sort"
	"sync"

	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/models"
)

// Memory is an in-process Store used by tests and local tooling.
// Records are copied on the way in and out.
type Memory struct {
	mu           sync.RWMutex
	seq          int64
	accounts     map[string]models.Account
	stations     map[string]models.Station
	declarations map[string]memDeclaration
}

type memDeclaration struct {
	d   *models.Declaration
	seq int64
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[string]models.Account),
		stations:     make(map[string]models.Station),
		declarations: make(map[string]memDeclaration),
	}
}

var _ Store = (*Memory)(nil)

// --- accounts ---

func (m *Memory) CreateAccount(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; ok {
		return apperrors.Conflict("account %s already exists", a.ID)
	}
	if m.emailTaken(a.Email, "") {
		return apperrors.Conflict("an account with this email already exists")
	}
	m.accounts[a.ID] = copyAccount(a)
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account not found")
	}
	c := copyAccount(&a)
	return &c, nil
}

func (m *Memory) GetAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if a.Email == email {
			c := copyAccount(&a)
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("account not found")
}

func (m *Memory) ListAccounts(_ context.Context, f AccountFilter) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		if matchAccount(&a, f) {
			out = append(out, copyAccount(&a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpdateAccount(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; !ok {
		return apperrors.NotFound("account not found")
	}
	if m.emailTaken(a.Email, a.ID) {
		return apperrors.Conflict("an account with this email already exists")
	}
	m.accounts[a.ID] = copyAccount(a)
	return nil
}

func (m *Memory) DeleteAccount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return apperrors.NotFound("account not found")
	}
	delete(m.accounts, id)
	return nil
}

func (m *Memory) CountAccounts(_ context.Context, f AccountFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, a := range m.accounts {
		if matchAccount(&a, f) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) emailTaken(email, exceptID string) bool {
	for id, a := range m.accounts {
		if id != exceptID && a.Email == email {
			return true
		}
	}
	return false
}

func matchAccount(a *models.Account, f AccountFilter) bool {
	if f.Role != "" && a.Role != f.Role {
		return false
	}
	if f.StationID != "" && (a.StationID == nil || *a.StationID != f.StationID) {
		return false
	}
	return true
}

func copyAccount(a *models.Account) models.Account {
	c := *a
	if a.StationID != nil {
		id := *a.StationID
		c.StationID = &id
	}
	c.Station = nil
	return c
}

// --- stations ---

func (m *Memory) CreateStation(_ context.Context, s *models.Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stations[s.ID]; ok {
		return apperrors.Conflict("station %s already exists", s.ID)
	}
	if m.stationNameTaken(s.Name, "") {
		return apperrors.Conflict("a station with this name already exists")
	}
	m.stations[s.ID] = *s
	return nil
}

func (m *Memory) GetStation(_ context.Context, id string) (*models.Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stations[id]
	if !ok {
		return nil, apperrors.NotFound("station not found")
	}
	return &s, nil
}

func (m *Memory) ListStations(_ context.Context) ([]models.Station, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Station, 0, len(m.stations))
	for _, s := range m.stations {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpdateStation(_ context.Context, s *models.Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stations[s.ID]; !ok {
		return apperrors.NotFound("station not found")
	}
	if m.stationNameTaken(s.Name, s.ID) {
		return apperrors.Conflict("a station with this name already exists")
	}
	m.stations[s.ID] = *s
	return nil
}

func (m *Memory) DeleteStation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stations[id]; !ok {
		return apperrors.NotFound("station not found")
	}
	delete(m.stations, id)
	return nil
}

func (m *Memory) stationNameTaken(name, exceptID string) bool {
	for id, s := range m.stations {
		if id != exceptID && s.Name == name {
			return true
		}
	}
	return false
}

// --- declarations ---

func (m *Memory) CreateDeclaration(_ context.Context, d *models.Declaration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.declarations[d.ID]; ok {
		return apperrors.Conflict("declaration %s already exists", d.ID)
	}
	m.seq++
	m.declarations[d.ID] = memDeclaration{d: stripRefs(d), seq: m.seq}
	return nil
}

func (m *Memory) GetDeclaration(_ context.Context, id string) (*models.Declaration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.declarations[id]
	if !ok {
		return nil, apperrors.NotFound("declaration not found")
	}
	return e.d.Clone(), nil
}

func (m *Memory) ListDeclarations(_ context.Context, f DeclarationFilter) ([]models.Declaration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]memDeclaration, 0, len(m.declarations))
	for _, e := range m.declarations {
		if matchDeclaration(e.d, f) {
			matches = append(matches, e)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.d.CreatedAt.Equal(b.d.CreatedAt) {
			return a.seq > b.seq
		}
		return a.d.CreatedAt.After(b.d.CreatedAt)
	})

	out := make([]models.Declaration, 0, len(matches))
	for _, e := range matches {
		out = append(out, *e.d.Clone())
	}
	return out, nil
}

func (m *Memory) UpdateDeclaration(_ context.Context, d *models.Declaration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.declarations[d.ID]
	if !ok {
		return apperrors.NotFound("declaration not found")
	}
	e.d = stripRefs(d)
	m.declarations[d.ID] = e
	return nil
}

func (m *Memory) DeleteDeclaration(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.declarations[id]; !ok {
		return apperrors.NotFound("declaration not found")
	}
	delete(m.declarations, id)
	return nil
}

func (m *Memory) CountDeclarations(_ context.Context, f DeclarationFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, e := range m.declarations {
		if matchDeclaration(e.d, f) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ClearAgent(_ context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.declarations {
		if e.d.AgentID != nil && *e.d.AgentID == agentID {
			e.d.AgentID = nil
			m.declarations[id] = e
		}
	}
	return nil
}

func matchDeclaration(d *models.Declaration, f DeclarationFilter) bool {
	switch {
	case f.OwnerID != "" && d.OwnerID != f.OwnerID:
		return false
	case f.StationID != "" && d.StationID != f.StationID:
		return false
	case f.AgentID != "" && (d.AgentID == nil || *d.AgentID != f.AgentID):
		return false
	case f.Status != "" && d.Status != f.Status:
		return false
	case f.Kind != "" && d.Kind != f.Kind:
		return false
	case f.ExcludeHidden && d.Hidden:
		return false
	}
	return true
}

func stripRefs(d *models.Declaration) *models.Declaration {
	c := d.Clone()
	c.Owner, c.Station, c.Agent = nil, nil, nil
	return c
}
