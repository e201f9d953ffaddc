package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinicerp/backend/internal/domain/clinic"
	"github.com/clinicerp/backend/internal/infrastructure/auth"
	"github.com/clinicerp/backend/internal/infrastructure/config"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/access"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/audit"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/scope"
	"github.com/clinicerp/backend/internal/interfaces/http/handler"
	"github.com/clinicerp/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testServer struct {
	engine *gin.Engine
	tokens *auth.TokenService
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&clinic.Patient{}, &clinic.Invoice{}, &clinic.StockItem{}, &audit.EntryModel{}))

	registry := scope.NewRegistry()
	registry.MustRegister(&clinic.Patient{})
	registry.MustRegister(&clinic.Invoice{})
	registry.MustRegister(&clinic.StockItem{})

	tokens := auth.NewTokenService(&config.JWTConfig{
		Secret:                "test-secret",
		Issuer:                "clinic-erp-test",
		AccessTokenExpiration: time.Hour,
	})

	store := audit.NewGormSink(db)
	handlers := router.Handlers{
		Patient: handler.NewPatientHandler(db, registry, store),
		Audit:   handler.NewAuditHandler(db, registry, store),
	}
	return &testServer{
		engine: router.New("clinic-erp-test", zap.NewNop(), tokens, handlers),
		tokens: tokens,
		db:     db,
	}
}

func (s *testServer) token(t *testing.T, tenantID uuid.UUID, branches ...int64) string {
	t.Helper()
	token, err := s.tokens.Generate(access.Principal{
		ActorID:   uuid.New(),
		ActorName: "dr.test",
		TenantID:  tenantID,
		BranchIDs: branches,
	})
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPatientEndpoints_Auth(t *testing.T) {
	srv := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/patients", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/patients", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		srv.engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("health needs no token", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestPatientEndpoints_CRUD(t *testing.T) {
	srv := newTestServer(t)
	tenantID := uuid.New()
	token := srv.token(t, tenantID, 1, 2)

	create := handler.CreatePatientRequest{
		BranchID: 1,
		RecordNo: "MRN-1",
		FullName: "Ada Lovelace",
		Phone:    "555-0001",
	}
	rec := srv.do(t, http.MethodPost, "/v1/patients", token, create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[handler.PatientResponse](t, rec)
	require.NotEqual(t, uuid.Nil, created.ID)

	t.Run("get returns the created patient", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/patients/"+created.ID.String(), token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[handler.PatientResponse](t, rec)
		assert.Equal(t, "Ada Lovelace", got.FullName)
		assert.Equal(t, int64(1), got.BranchID)
	})

	t.Run("create in an inaccessible branch is forbidden", func(t *testing.T) {
		bad := create
		bad.BranchID = 9
		bad.RecordNo = "MRN-2"
		rec := srv.do(t, http.MethodPost, "/v1/patients", token, bad)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("another tenant cannot see the patient", func(t *testing.T) {
		otherToken := srv.token(t, uuid.New(), 1)
		rec := srv.do(t, http.MethodGet, "/v1/patients/"+created.ID.String(), otherToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("update changes fields", func(t *testing.T) {
		update := handler.UpdatePatientRequest{FullName: "Ada L.", Phone: "555-0002"}
		rec := srv.do(t, http.MethodPut, "/v1/patients/"+created.ID.String(), token, update)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decode[handler.PatientResponse](t, rec)
		assert.Equal(t, "Ada L.", got.FullName)
	})

	t.Run("list pages the scoped set", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/patients?page=1&page_size=10", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var page struct {
			Items []handler.PatientResponse `json:"items"`
			Total int64                     `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, int64(1), page.Total)
		assert.Len(t, page.Items, 1)
	})

	t.Run("delete tombstones and restore recovers", func(t *testing.T) {
		rec := srv.do(t, http.MethodDelete, "/v1/patients/"+created.ID.String(), token, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = srv.do(t, http.MethodGet, "/v1/patients/"+created.ID.String(), token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = srv.do(t, http.MethodPost, "/v1/patients/"+created.ID.String()+"/restore", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = srv.do(t, http.MethodGet, "/v1/patients/"+created.ID.String(), token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("audit trail records the history", func(t *testing.T) {
		path := fmt.Sprintf("/v1/audit/Patient/%s", created.ID)
		rec := srv.do(t, http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var trail struct {
			Entries []struct {
				Action string `json:"action"`
			} `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trail))
		// create, update, soft delete, restore
		require.Len(t, trail.Entries, 4)

		actions := make([]string, 0, len(trail.Entries))
		for _, e := range trail.Entries {
			actions = append(actions, e.Action)
		}
		assert.ElementsMatch(t, []string{"CREATE", "UPDATE", "SOFT_DELETE", "RESTORE"}, actions)
	})

	t.Run("audit trail is scoped like the entity itself", func(t *testing.T) {
		path := fmt.Sprintf("/v1/audit/Patient/%s", created.ID)

		// another tenant gets the same not-found as for a missing entity,
		// with none of the recorded values in the body
		otherToken := srv.token(t, uuid.New(), 1)
		rec := srv.do(t, http.MethodGet, path, otherToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NotContains(t, rec.Body.String(), "Ada")
		assert.NotContains(t, rec.Body.String(), "MRN-1")

		missing := srv.do(t, http.MethodGet, "/v1/audit/Patient/"+uuid.NewString(), otherToken, nil)
		assert.Equal(t, missing.Body.String(), rec.Body.String())

		// same tenant without access to the entity's branch
		wrongBranch := srv.token(t, tenantID, 3)
		rec = srv.do(t, http.MethodGet, path, wrongBranch, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		// unregistered entity types reveal nothing
		rec = srv.do(t, http.MethodGet, "/v1/audit/Secret/"+created.ID.String(), token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = srv.do(t, http.MethodGet, "/v1/audit/Patient/not-a-uuid", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid payload is a bad request", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/v1/patients", token, map[string]any{"branch_id": 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid id is a bad request", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/patients/not-a-uuid", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
