package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/models"
	"gorm.io/gorm"
)

// Gorm is the PostgreSQL-backed Store
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps an open gorm connection
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

var _ Store = (*Gorm)(nil)

// Models lists the records AutoMigrate must know about
func Models() []interface{} {
	return []interface{}{
		&models.Station{},
		&models.Account{},
		&models.Declaration{},
	}
}

// --- accounts ---

func (g *Gorm) CreateAccount(ctx context.Context, a *models.Account) error {
	if err := g.db.WithContext(ctx).Create(a).Error; err != nil {
		return translate(err, "account", "an account with this email already exists")
	}
	return nil
}

func (g *Gorm) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("account not found")
	}
	var a models.Account
	if err := g.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, translate(err, "account", "")
	}
	return &a, nil
}

func (g *Gorm) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	if err := g.db.WithContext(ctx).Where("email = ?", email).First(&a).Error; err != nil {
		return nil, translate(err, "account", "")
	}
	return &a, nil
}

func (g *Gorm) ListAccounts(ctx context.Context, f AccountFilter) ([]models.Account, error) {
	var accounts []models.Account
	if err := accountQuery(g.db.WithContext(ctx), f).Order("created_at ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (g *Gorm) UpdateAccount(ctx context.Context, a *models.Account) error {
	res := g.db.WithContext(ctx).Model(a).Select("*").Omit("created_at").Updates(a)
	if res.Error != nil {
		return translate(res.Error, "account", "an account with this email already exists")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("account not found")
	}
	return nil
}

func (g *Gorm) DeleteAccount(ctx context.Context, id string) error {
	if !validID(id) {
		return apperrors.NotFound("account not found")
	}
	res := g.db.WithContext(ctx).Delete(&models.Account{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "account", "")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("account not found")
	}
	return nil
}

func (g *Gorm) CountAccounts(ctx context.Context, f AccountFilter) (int64, error) {
	var n int64
	err := accountQuery(g.db.WithContext(ctx).Model(&models.Account{}), f).Count(&n).Error
	return n, err
}

func accountQuery(q *gorm.DB, f AccountFilter) *gorm.DB {
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.StationID != "" {
		q = whereID(q, "station_id", f.StationID)
	}
	return q
}

// --- stations ---

func (g *Gorm) CreateStation(ctx context.Context, s *models.Station) error {
	if err := g.db.WithContext(ctx).Create(s).Error; err != nil {
		return translate(err, "station", "a station with this name already exists")
	}
	return nil
}

func (g *Gorm) GetStation(ctx context.Context, id string) (*models.Station, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("station not found")
	}
	var s models.Station
	if err := g.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, translate(err, "station", "")
	}
	return &s, nil
}

func (g *Gorm) ListStations(ctx context.Context) ([]models.Station, error) {
	var stations []models.Station
	if err := g.db.WithContext(ctx).Order("name ASC").Find(&stations).Error; err != nil {
		return nil, err
	}
	return stations, nil
}

func (g *Gorm) UpdateStation(ctx context.Context, s *models.Station) error {
	res := g.db.WithContext(ctx).Model(s).Select("*").Omit("created_at").Updates(s)
	if res.Error != nil {
		return translate(res.Error, "station", "a station with this name already exists")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("station not found")
	}
	return nil
}

func (g *Gorm) DeleteStation(ctx context.Context, id string) error {
	if !validID(id) {
		return apperrors.NotFound("station not found")
	}
	res := g.db.WithContext(ctx).Delete(&models.Station{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "station", "")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("station not found")
	}
	return nil
}

// --- declarations ---

func (g *Gorm) CreateDeclaration(ctx context.Context, d *models.Declaration) error {
	if err := g.db.WithContext(ctx).Create(d).Error; err != nil {
		return translate(err, "declaration", "declaration already exists")
	}
	return nil
}

func (g *Gorm) GetDeclaration(ctx context.Context, id string) (*models.Declaration, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("declaration not found")
	}
	var d models.Declaration
	if err := g.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err, "declaration", "")
	}
	return &d, nil
}

func (g *Gorm) ListDeclarations(ctx context.Context, f DeclarationFilter) ([]models.Declaration, error) {
	var out []models.Declaration
	if err := declarationQuery(g.db.WithContext(ctx), f).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateDeclaration writes every column; concurrent writers race at last-write-wins
func (g *Gorm) UpdateDeclaration(ctx context.Context, d *models.Declaration) error {
	res := g.db.WithContext(ctx).Model(d).Select("*").Omit("created_at", "owner_id", "kind", "station_id").Updates(d)
	if res.Error != nil {
		return translate(res.Error, "declaration", "")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("declaration not found")
	}
	return nil
}

func (g *Gorm) DeleteDeclaration(ctx context.Context, id string) error {
	if !validID(id) {
		return apperrors.NotFound("declaration not found")
	}
	res := g.db.WithContext(ctx).Delete(&models.Declaration{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "declaration", "")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("declaration not found")
	}
	return nil
}

func (g *Gorm) CountDeclarations(ctx context.Context, f DeclarationFilter) (int64, error) {
	var n int64
	err := declarationQuery(g.db.WithContext(ctx).Model(&models.Declaration{}), f).Count(&n).Error
	return n, err
}

func (g *Gorm) ClearAgent(ctx context.Context, agentID string) error {
	return whereID(g.db.WithContext(ctx).Model(&models.Declaration{}), "agent_id", agentID).
		UpdateColumn("agent_id", nil).Error
}

func declarationQuery(q *gorm.DB, f DeclarationFilter) *gorm.DB {
	if f.OwnerID != "" {
		q = whereID(q, "owner_id", f.OwnerID)
	}
	if f.StationID != "" {
		q = whereID(q, "station_id", f.StationID)
	}
	if f.AgentID != "" {
		q = whereID(q, "agent_id", f.AgentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.ExcludeHidden {
		q = q.Where("hidden = ?", false)
	}
	return q
}

// translate maps driver errors onto the application error kinds
func translate(err error, entity, conflictMsg string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NotFound("%s not found", entity)
	case pgCode(err) == "22P02":
		// malformed uuid literal
		return apperrors.NotFound("%s not found", entity)
	case pgCode(err) == "23505" || errors.Is(err, gorm.ErrDuplicatedKey):
		if conflictMsg == "" {
			conflictMsg = entity + " already exists"
		}
		return apperrors.Conflict("%s", conflictMsg)
	default:
		return err
	}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// whereID filters column by id; a malformed id matches no row
func whereID(q *gorm.DB, column, id string) *gorm.DB {
	if !validID(id) {
		return q.Where("1 = 0")
	}
	return q.Where(column+" = ?", id)
}

// validID reports whether id can match a uuid primary key
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
