package scope

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clinicerp/backend/internal/domain/clinic"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/access"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	t.Run("detects patient capabilities", func(t *testing.T) {
		d := r.MustRegister(&clinic.Patient{})

		assert.Equal(t, "Patient", d.Name)
		assert.Equal(t, "patients", d.Table)
		assert.True(t, d.Caps.BranchScoped)
		assert.True(t, d.Caps.TenantOwned)
		assert.True(t, d.Caps.SoftDeletable)
		assert.True(t, d.Caps.Auditable)
		assert.False(t, d.Caps.Versioned)
	})

	t.Run("detects invoice capabilities", func(t *testing.T) {
		d := r.MustRegister(&clinic.Invoice{})

		assert.True(t, d.Caps.BranchScoped)
		assert.True(t, d.Caps.TenantOwned)
		assert.False(t, d.Caps.SoftDeletable)
		assert.True(t, d.Caps.Versioned)
	})

	t.Run("detects stock item capabilities", func(t *testing.T) {
		d := r.MustRegister(&clinic.StockItem{})

		assert.True(t, d.Caps.BranchScoped)
		assert.False(t, d.Caps.TenantOwned)
		assert.True(t, d.Caps.SoftDeletable)
		assert.False(t, d.Caps.Auditable)
	})

	t.Run("registering twice returns the same descriptor", func(t *testing.T) {
		first := r.MustRegister(&clinic.Patient{})
		second := r.MustRegister(&clinic.Patient{})
		assert.Same(t, first, second)
	})

	t.Run("rejects non-pointer prototypes", func(t *testing.T) {
		_, err := r.Register(clinic.Patient{})
		assert.Error(t, err)
	})

	t.Run("lookup by instance", func(t *testing.T) {
		d, ok := r.Lookup(&clinic.Invoice{})
		require.True(t, ok)
		assert.Equal(t, "Invoice", d.Name)

		_, ok = r.Lookup("not an entity")
		assert.False(t, ok)
	})

	t.Run("lookup by type name", func(t *testing.T) {
		d, ok := r.LookupByName("StockItem")
		require.True(t, ok)
		assert.Equal(t, "stock_items", d.Table)

		_, ok = r.LookupByName("Unregistered")
		assert.False(t, ok)
	})
}

func TestDescriptor_Fields(t *testing.T) {
	r := NewRegistry()
	d := r.MustRegister(&clinic.Patient{})

	t.Run("flattens embedded capability fields", func(t *testing.T) {
		for _, col := range []string{
			"id", "created_at", "updated_at",
			"tenant_id", "branch_id",
			"created_by", "modified_at", "modified_by",
			"is_deleted", "deleted_at", "deleted_by",
			"record_no", "full_name",
		} {
			assert.True(t, d.HasField(col), "missing column %s", col)
		}
		assert.False(t, d.HasField("password"))
	})

	t.Run("snapshot copies current values", func(t *testing.T) {
		p := clinic.NewPatient(uuid.New(), 7, "MRN-1", "Ada Lovelace")
		snap := d.Snapshot(p)

		assert.Equal(t, p.ID, snap["id"])
		assert.Equal(t, int64(7), snap["branch_id"])
		assert.Equal(t, "Ada Lovelace", snap["full_name"])
		assert.Equal(t, false, snap["is_deleted"])

		p.FullName = "changed"
		assert.Equal(t, "Ada Lovelace", snap["full_name"])
	})

	t.Run("set writes a value back by column", func(t *testing.T) {
		p := clinic.NewPatient(uuid.New(), 1, "MRN-2", "Grace Hopper")
		created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		d.Set(p, "created_at", created)
		assert.Equal(t, created, p.CreatedAt)

		d.Set(p, "no_such_column", "ignored")
	})

	t.Run("set nil clears pointer fields", func(t *testing.T) {
		p := clinic.NewPatient(uuid.New(), 1, "MRN-3", "X")
		now := time.Now()
		p.ModifiedAt = &now

		d.Set(p, "modified_at", nil)
		assert.Nil(t, p.ModifiedAt)
	})

	t.Run("entity id renders the primary key", func(t *testing.T) {
		p := clinic.NewPatient(uuid.New(), 1, "MRN-4", "Y")
		assert.Equal(t, p.ID.String(), d.EntityID(p))
	})
}

func TestDescriptor_Scope(t *testing.T) {
	r := NewRegistry()
	patientDesc := r.MustRegister(&clinic.Patient{})
	stockDesc := r.MustRegister(&clinic.StockItem{})
	tenantID := uuid.New()

	t.Run("branch and tenant and tombstone filters for patient", func(t *testing.T) {
		db, mock := setupMockDB(t)
		ac := access.New(access.Principal{ActorID: uuid.New(), TenantID: tenantID, BranchIDs: []int64{1, 2}})

		mock.ExpectQuery(regexp.QuoteMeta(
			`SELECT * FROM "patients" WHERE branch_id IN ($1,$2) AND tenant_id = $3 AND is_deleted = $4`,
		)).WithArgs(int64(1), int64(2), tenantID, false).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		var patients []clinic.Patient
		err := db.Scopes(patientDesc.Scope(ac)).Find(&patients).Error
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no tenant filter for branch-only entity", func(t *testing.T) {
		db, mock := setupMockDB(t)
		ac := access.New(access.Principal{ActorID: uuid.New(), BranchIDs: []int64{5}})

		mock.ExpectQuery(regexp.QuoteMeta(
			`SELECT * FROM "stock_items" WHERE branch_id IN ($1) AND is_deleted = $2`,
		)).WithArgs(int64(5), false).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		var items []clinic.StockItem
		err := db.Scopes(stockDesc.Scope(ac)).Find(&items).Error
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty branch set matches nothing", func(t *testing.T) {
		db, mock := setupMockDB(t)
		ac := access.New(access.Principal{ActorID: uuid.New(), TenantID: tenantID})

		mock.ExpectQuery(regexp.QuoteMeta(
			`SELECT * FROM "patients" WHERE 1 = 0`,
		)).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		var patients []clinic.Patient
		err := db.Scopes(patientDesc.Scope(ac)).Find(&patients).Error
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("super admin only keeps the tombstone filter", func(t *testing.T) {
		db, mock := setupMockDB(t)
		ac := access.New(access.Principal{ActorID: uuid.New(), SuperAdmin: true})

		mock.ExpectQuery(regexp.QuoteMeta(
			`SELECT * FROM "patients" WHERE is_deleted = $1`,
		)).WithArgs(false).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		var patients []clinic.Patient
		err := db.Scopes(patientDesc.Scope(ac)).Find(&patients).Error
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("include deleted drops the tombstone filter", func(t *testing.T) {
		db, mock := setupMockDB(t)
		ac := access.New(access.Principal{ActorID: uuid.New(), TenantID: tenantID, BranchIDs: []int64{1}})

		mock.ExpectQuery(regexp.QuoteMeta(
			`SELECT * FROM "patients" WHERE branch_id IN ($1) AND tenant_id = $2`,
		)).WithArgs(int64(1), tenantID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		var patients []clinic.Patient
		err := db.Scopes(patientDesc.ScopeIncludeDeleted(ac)).Find(&patients).Error
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
