package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const knownID = "6f1c2d3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f"

func newMockGorm(t *testing.T) (*Gorm, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewGorm(gdb), mock
}

func TestGormMalformedIDsAreNotFound(t *testing.T) {
	ctx := context.Background()
	g, mock := newMockGorm(t)

	_, err := g.GetDeclaration(ctx, "abc")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	_, err = g.GetStation(ctx, "foo")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	_, err = g.GetAccount(ctx, "x")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.True(t, apperrors.Is(g.DeleteDeclaration(ctx, "abc"), apperrors.ErrNotFound))
	assert.True(t, apperrors.Is(g.DeleteStation(ctx, "abc"), apperrors.ErrNotFound))
	assert.True(t, apperrors.Is(g.DeleteAccount(ctx, "abc"), apperrors.ErrNotFound))

	// rejected before reaching the database
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormMissingRowIsNotFound(t *testing.T) {
	g, mock := newMockGorm(t)

	mock.ExpectQuery(`SELECT \* FROM "declarations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := g.GetDeclaration(context.Background(), knownID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormInvalidTextRepresentationIsNotFound(t *testing.T) {
	g, mock := newMockGorm(t)

	mock.ExpectQuery(`SELECT \* FROM "stations"`).
		WillReturnError(&pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"})

	_, err := g.GetStation(context.Background(), knownID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormMalformedFilterMatchesNothing(t *testing.T) {
	g, mock := newMockGorm(t)

	mock.ExpectQuery(`SELECT \* FROM "declarations" WHERE 1 = 0`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	list, err := g.ListDeclarations(context.Background(), DeclarationFilter{StationID: "foo"})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslate(t *testing.T) {
	err := translate(&pgconn.PgError{Code: "23505"}, "station", "a station with this name already exists")
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, "a station with this name already exists", err.Error())

	assert.True(t, apperrors.Is(translate(gorm.ErrRecordNotFound, "account", ""), apperrors.ErrNotFound))
	assert.True(t, apperrors.Is(translate(gorm.ErrDuplicatedKey, "account", ""), apperrors.ErrConflict))

	other := &pgconn.PgError{Code: "57014"}
	assert.Same(t, other, translate(other, "account", ""))
}
