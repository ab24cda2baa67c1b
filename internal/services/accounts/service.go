// Package accounts implements registration, login and account administration.
package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/auth"
	"github.com/xelth-com/commissariat/internal/logger"
	"github.com/xelth-com/commissariat/internal/models"
	"github.com/xelth-com/commissariat/internal/policy"
	"github.com/xelth-com/commissariat/internal/store"
	"github.com/xelth-com/commissariat/internal/validation"
)

// Service manages accounts and their sessions
type Service struct {
	store  store.Store
	hasher *auth.Hasher
	tokens *auth.TokenService
	log    *logrus.Entry
	now    func() time.Time

	sessions SessionCloser
}

// SessionCloser drops the live connections of an account whose access changed
type SessionCloser interface {
	DisconnectAccount(accountID string)
}

type nopSessions struct{}

func (nopSessions) DisconnectAccount(string) {}

// NewService creates the account service
func NewService(st store.Store, hasher *auth.Hasher, tokens *auth.TokenService, log *logger.Logger) *Service {
	return &Service{
		store:  st,
		hasher: hasher,
		tokens: tokens,
		log:    logger.Or(log).Component("accounts"),
		now:    func() time.Time { return time.Now().UTC() },

		sessions: nopSessions{},
	}
}

// SetSessionCloser registers the notification hub so logout and access
// changes close the account's live connections
func (s *Service) SetSessionCloser(c SessionCloser) {
	if c == nil {
		c = nopSessions{}
	}
	s.sessions = c
}

// Session is the result of a successful register or login
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   *models.Account `json:"user"`
}

// RegisterInput is the self-registration payload
type RegisterInput struct {
	FirstName   string     `json:"firstName" validate:"required"`
	LastName    string     `json:"lastName" validate:"required"`
	Email       string     `json:"email" validate:"required,email"`
	Password    string     `json:"password" validate:"required,min=6"`
	Phone       string     `json:"phone" validate:"omitempty,phone"`
	Address     string     `json:"address"`
	Profession  string     `json:"profession"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
	BirthPlace  string     `json:"birthPlace"`
}

func (in *RegisterInput) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = models.NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.Profession = strings.TrimSpace(in.Profession)
	in.BirthPlace = strings.TrimSpace(in.BirthPlace)
}

// Register creates a declarant account and opens a session for it
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	a, err := s.newAccount(ctx, in, models.RoleDeclarant, nil)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"account_id": a.ID}).Info("account registered")
	return s.openSession(ctx, a)
}

// Login checks credentials. Unknown email and wrong password fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	a, err := s.store.GetAccountByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid credentials")
		}
		return nil, err
	}
	if !s.hasher.CheckPasswordHash(password, a.PasswordHash) {
		s.log.WithFields(logrus.Fields{"account_id": a.ID}).Warn("login failed")
		return nil, apperrors.Unauthorized("invalid credentials")
	}
	return s.openSession(ctx, a)
}

func (s *Service) openSession(ctx context.Context, a *models.Account) (*Session, error) {
	now := s.now()
	a.LastLogin = &now
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(a)
	if err != nil {
		return nil, err
	}
	if err := s.resolveStation(ctx, a); err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, Account: a}, nil
}

// Logout revokes the token that authenticated the request
func (s *Service) Logout(ctx context.Context, id auth.Identity) error {
	if err := s.tokens.Revoke(ctx, id); err != nil {
		return err
	}
	s.sessions.DisconnectAccount(id.AccountID)
	s.log.WithFields(logrus.Fields{"account_id": id.AccountID}).Info("logged out")
	return nil
}

// Resolve turns a verified token into the actor the policy reasons about.
// The stored account is authoritative for role and station.
func (s *Service) Resolve(ctx context.Context, id auth.Identity) (policy.Actor, error) {
	a, err := s.store.GetAccount(ctx, id.AccountID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return policy.Actor{}, apperrors.Unauthorized("account no longer exists")
		}
		return policy.Actor{}, err
	}
	return ActorOf(a), nil
}

// ActorOf builds the policy actor of an account
func ActorOf(a *models.Account) policy.Actor {
	return policy.Actor{ID: a.ID, Role: a.Role, StationID: a.StationID}
}

// Me returns the actor's own account
func (s *Service) Me(ctx context.Context, actor policy.Actor) (*models.Account, error) {
	return s.Get(ctx, actor, actor.ID)
}

// ProfileInput is a partial update of the caller's own profile. Nil fields
// are left unchanged.
type ProfileInput struct {
	FirstName   *string    `json:"firstName"`
	LastName    *string    `json:"lastName"`
	Email       *string    `json:"email"`
	Phone       *string    `json:"phone"`
	Address     *string    `json:"address"`
	Profession  *string    `json:"profession"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
	BirthPlace  *string    `json:"birthPlace"`
}

// UpdateProfile edits the actor's own profile. Role and station are not
// self-service.
func (s *Service) UpdateProfile(ctx context.Context, actor policy.Actor, in ProfileInput) (*models.Account, error) {
	a, err := s.store.GetAccount(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.UpdateOwnAccount, policy.ForAccount(a)); err != nil {
		return nil, err
	}
	if err := applyProfile(a, in); err != nil {
		return nil, err
	}
	a.UpdatedAt = s.now()
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	if err := s.resolveStation(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ChangePassword replaces the actor's password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, actor policy.Actor, current, next string) error {
	a, err := s.store.GetAccount(ctx, actor.ID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.UpdateOwnAccount, policy.ForAccount(a)); err != nil {
		return err
	}
	if !s.hasher.CheckPasswordHash(current, a.PasswordHash) {
		return apperrors.ValidationFields("current password is incorrect", map[string]string{"currentPassword": "is incorrect"})
	}
	if len(next) < 6 {
		return apperrors.ValidationFields("invalid fields: newPassword", map[string]string{"newPassword": "must be at least 6"})
	}
	hash, err := s.hasher.HashPassword(next)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	a.UpdatedAt = s.now()
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"account_id": a.ID}).Info("password changed")
	return nil
}

// List returns accounts matching the filter (admin only)
func (s *Service) List(ctx context.Context, actor policy.Actor, f store.AccountFilter) ([]models.Account, error) {
	if err := policy.Authorize(actor, policy.ManageAccounts, policy.Resource{}); err != nil {
		return nil, err
	}
	if f.Role != "" {
		if _, err := models.ParseRole(string(f.Role)); err != nil {
			return nil, err
		}
	}
	list, err := s.store.ListAccounts(ctx, f)
	if err != nil {
		return nil, err
	}
	stations := make(map[string]*models.StationRef)
	for i := range list {
		a := &list[i]
		if a.StationID == nil {
			continue
		}
		ref, ok := stations[*a.StationID]
		if !ok {
			st, err := s.store.GetStation(ctx, *a.StationID)
			if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
				return nil, err
			}
			if st != nil {
				ref = st.Ref()
			}
			stations[*a.StationID] = ref
		}
		a.Station = ref
	}
	return list, nil
}

// Get returns an account. Everyone may read their own; admins may read any.
func (s *Service) Get(ctx context.Context, actor policy.Actor, id string) (*models.Account, error) {
	action := policy.ManageAccounts
	if id == actor.ID {
		action = policy.ReadOwnAccount
	}
	if err := policy.Authorize(actor, action, policy.Resource{AccountID: id}); err != nil {
		return nil, err
	}
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.resolveStation(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateInput is the admin payload for a new account of any role
type CreateInput struct {
	RegisterInput
	Role      string  `json:"role"`
	StationID *string `json:"stationId"`
}

// Create adds an account with an explicit role (admin only)
func (s *Service) Create(ctx context.Context, actor policy.Actor, in CreateInput) (*models.Account, error) {
	if err := policy.Authorize(actor, policy.ManageAccounts, policy.Resource{}); err != nil {
		return nil, err
	}
	role, err := models.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	a, err := s.newAccount(ctx, in.RegisterInput, role, in.StationID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"account_id": a.ID, "role": a.Role, "actor_id": actor.ID}).Info("account created")
	if err := s.resolveStation(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Bootstrap creates the first admin account. It fails with Conflict once
// any admin exists.
func (s *Service) Bootstrap(ctx context.Context, in RegisterInput) (*models.Account, error) {
	n, err := s.store.CountAccounts(ctx, store.AccountFilter{Role: models.RoleAdmin})
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, apperrors.Conflict("an admin account already exists")
	}
	a, err := s.newAccount(ctx, in, models.RoleAdmin, nil)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"account_id": a.ID}).Info("admin bootstrapped")
	return a, nil
}

// UpdateInput is the admin partial update of an account
type UpdateInput struct {
	ProfileInput
	Role      *string `json:"role"`
	StationID *string `json:"stationId"`
	Password  *string `json:"password"`
}

// Update edits any account (admin only). A role change away from
// station_agent clears the station reference. When an agent leaves its
// role or station, its declaration assignments are cleared.
func (s *Service) Update(ctx context.Context, actor policy.Actor, id string, in UpdateInput) (*models.Account, error) {
	if err := policy.Authorize(actor, policy.ManageAccounts, policy.Resource{AccountID: id}); err != nil {
		return nil, err
	}
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyProfile(a, in.ProfileInput); err != nil {
		return nil, err
	}

	prevRole, prevStation := a.Role, ""
	if a.StationID != nil {
		prevStation = *a.StationID
	}

	role := a.Role
	if in.Role != nil {
		if role, err = models.ParseRole(*in.Role); err != nil {
			return nil, err
		}
	}
	stationID := in.StationID
	if stationID == nil && role == a.Role && role.RequiresStation() {
		stationID = a.StationID
	}
	if err := s.assignStation(ctx, a, role, stationID); err != nil {
		return nil, err
	}

	if in.Password != nil {
		if len(*in.Password) < 6 {
			return nil, apperrors.ValidationFields("invalid fields: password", map[string]string{"password": "must be at least 6"})
		}
		if a.PasswordHash, err = s.hasher.HashPassword(*in.Password); err != nil {
			return nil, err
		}
	}

	a.UpdatedAt = s.now()
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"account_id": a.ID, "role": a.Role, "actor_id": actor.ID}).Info("account updated")

	station := ""
	if a.StationID != nil {
		station = *a.StationID
	}
	if a.Role != prevRole || station != prevStation {
		if prevRole == models.RoleStationAgent {
			if err := s.store.ClearAgent(ctx, a.ID); err != nil {
				return nil, err
			}
		}
		s.sessions.DisconnectAccount(a.ID)
	}
	if err := s.resolveStation(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes an account. Admin accounts cannot be deleted, and accounts
// that still own declarations are kept.
func (s *Service) Delete(ctx context.Context, actor policy.Actor, id string) error {
	if err := policy.Authorize(actor, policy.ManageAccounts, policy.Resource{AccountID: id}); err != nil {
		return err
	}
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.DeleteAccount, policy.ForAccount(a)); err != nil {
		return err
	}

	owned, err := s.store.CountDeclarations(ctx, store.DeclarationFilter{OwnerID: id})
	if err != nil {
		return err
	}
	if owned > 0 {
		return apperrors.Conflict("account still owns %d declarations", owned)
	}
	if a.Role == models.RoleStationAgent {
		if err := s.store.ClearAgent(ctx, id); err != nil {
			return err
		}
	}
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.sessions.DisconnectAccount(id)
	s.log.WithFields(logrus.Fields{"account_id": id, "actor_id": actor.ID}).Info("account deleted")
	return nil
}

func (s *Service) newAccount(ctx context.Context, in RegisterInput, role models.Role, stationID *string) (*models.Account, error) {
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	a := &models.Account{
		ID:           uuid.NewString(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
		Phone:        in.Phone,
		Address:      in.Address,
		Profession:   in.Profession,
		DateOfBirth:  in.DateOfBirth,
		BirthPlace:   in.BirthPlace,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.assignStation(ctx, a, role, stationID); err != nil {
		return nil, err
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// assignStation sets role and station together: station agents reference an
// existing station, every other role references none.
func (s *Service) assignStation(ctx context.Context, a *models.Account, role models.Role, stationID *string) error {
	var id string
	if stationID != nil {
		id = strings.TrimSpace(*stationID)
	}

	if !role.RequiresStation() {
		if id != "" {
			return apperrors.ValidationFields("only station agents are attached to a station",
				map[string]string{"stationId": "must be empty for role " + string(role)})
		}
		a.Role, a.StationID = role, nil
		return nil
	}

	if id == "" {
		return apperrors.ValidationFields("station agents must be attached to a station",
			map[string]string{"stationId": "is required"})
	}
	if _, err := s.store.GetStation(ctx, id); err != nil {
		return err
	}
	a.Role, a.StationID = role, &id
	return nil
}

func (s *Service) resolveStation(ctx context.Context, a *models.Account) error {
	a.Station = nil
	if a.StationID == nil {
		return nil
	}
	st, err := s.store.GetStation(ctx, *a.StationID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	a.Station = st.Ref()
	return nil
}

func applyProfile(a *models.Account, in ProfileInput) error {
	fields := map[string]string{}
	setRequired := func(dst *string, v *string, name string) {
		if v == nil {
			return
		}
		if strings.TrimSpace(*v) == "" {
			fields[name] = "is required"
			return
		}
		*dst = strings.TrimSpace(*v)
	}
	setOptional := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}

	setRequired(&a.FirstName, in.FirstName, "firstName")
	setRequired(&a.LastName, in.LastName, "lastName")
	if in.Email != nil {
		email := models.NormalizeEmail(*in.Email)
		if err := validation.Validator().Var(email, "required,email"); err != nil {
			fields["email"] = "must be a valid email"
		} else {
			a.Email = email
		}
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if phone != "" && !validation.IsPhone(phone) {
			fields["phone"] = "must be a valid phone number"
		} else {
			a.Phone = phone
		}
	}
	setOptional(&a.Address, in.Address)
	setOptional(&a.Profession, in.Profession)
	setOptional(&a.BirthPlace, in.BirthPlace)
	if in.DateOfBirth != nil {
		dob := *in.DateOfBirth
		a.DateOfBirth = &dob
	}

	if len(fields) > 0 {
		return apperrors.ValidationFields("invalid account fields", fields)
	}
	return nil
}
