package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	ierr "pluto/internal/errors"
	"pluto/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return sqlDB, mock, db
}

func TestTaxFindByID_NotFound(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "taxes"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "name", "default_rate"}))

	repo := NewTaxRepository(db)
	tax, err := repo.FindByID(context.Background(), "company-1", uuid.New())

	assert.Nil(t, tax)
	assert.True(t, ierr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaxFindByIDForUpdate_LocksRowInsideTransaction(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()

	taxID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "taxes" .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "name", "default_rate"}).
			AddRow(taxID.String(), "company-1", "VAT", "10"))
	mock.ExpectCommit()

	repo := NewTaxRepository(db)
	txManager := NewTransactionManager(db)

	var found *model.Tax
	err := txManager.RunInTx(context.Background(), func(txCtx context.Context) error {
		var err error
		found, err = repo.FindByIDForUpdate(txCtx, "company-1", taxID)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, taxID, found.ID)
	assert.Equal(t, "10", found.DefaultRate.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := fmt.Errorf("boom")
	err := NewTransactionManager(db).RunInTx(context.Background(), func(txCtx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindClaimedCountries_ReturnsClaimedSubset(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()

	mock.ExpectQuery(`FROM "tax_rule_countries" WHERE .*tax_rule_id <>`).
		WillReturnRows(sqlmock.NewRows([]string{"country_code"}).AddRow("DEU"))

	repo := NewTaxRuleRepository(db)
	exclude := uuid.New()
	claimed, err := repo.FindClaimedCountries(context.Background(),
		model.Partition{TaxID: uuid.New(), IsB2C: false}, []string{"DEU", "ITA"}, &exclude)

	require.NoError(t, err)
	assert.Equal(t, []string{"DEU"}, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindClaimedCountries_EmptyInputSkipsQuery(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()

	claimed, err := NewTaxRuleRepository(db).FindClaimedCountries(context.Background(),
		model.Partition{TaxID: uuid.New()}, nil, nil)

	require.NoError(t, err)
	assert.Empty(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsCatchAll(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "tax_rules" WHERE .*catch_all`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := NewTaxRuleRepository(db).ExistsCatchAll(context.Background(),
		model.Partition{TaxID: uuid.New(), IsB2C: true}, nil)

	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil, "tax"))
	assert.True(t, ierr.IsNotFound(translateError(gorm.ErrRecordNotFound, "tax")))

	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_tax_rules_single_catch_all"})
	assert.True(t, ierr.IsOverlapConflict(translateError(unique, "tax rule")))

	overflow := &pgconn.PgError{Code: "22003"}
	assert.True(t, ierr.IsValidation(translateError(overflow, "tax rule")))

	other := &pgconn.PgError{Code: "40001"}
	err := translateError(other, "tax rule")
	assert.True(t, ierr.IsDatabase(err))
	assert.False(t, ierr.IsOverlapConflict(err))
}
