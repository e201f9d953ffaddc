package handler

import (
	"net/http"
	"time"

	"github.com/clinicerp/backend/internal/domain/clinic"
	"github.com/clinicerp/backend/internal/domain/shared"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/access"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/scope"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/uow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PatientHandler exposes patient CRUD over the scoped data-access layer
type PatientHandler struct {
	db       *gorm.DB
	registry *scope.Registry
	sink     shared.AuditSink
}

// NewPatientHandler creates a patient handler
func NewPatientHandler(db *gorm.DB, registry *scope.Registry, sink shared.AuditSink) *PatientHandler {
	return &PatientHandler{db: db, registry: registry, sink: sink}
}

func (h *PatientHandler) unitOfWork(c *gin.Context) (*uow.UnitOfWork, *uow.Repository[clinic.Patient], bool) {
	ac, ok := access.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, nil, false
	}
	u := uow.New(h.db, ac, h.registry, uow.WithSink(h.sink))
	repo, err := uow.NewRepository[clinic.Patient](u)
	if err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	return u, repo, true
}

// CreatePatientRequest is the payload for creating a patient
type CreatePatientRequest struct {
	BranchID  int64      `json:"branch_id" binding:"required"`
	RecordNo  string     `json:"record_no" binding:"required,max=32"`
	FullName  string     `json:"full_name" binding:"required,max=128"`
	Phone     string     `json:"phone" binding:"max=32"`
	Gender    string     `json:"gender" binding:"max=16"`
	BirthDate *time.Time `json:"birth_date"`
	Notes     string     `json:"notes" binding:"max=512"`
}

// UpdatePatientRequest is the payload for updating a patient
type UpdatePatientRequest struct {
	FullName  string     `json:"full_name" binding:"required,max=128"`
	Phone     string     `json:"phone" binding:"max=32"`
	Gender    string     `json:"gender" binding:"max=16"`
	BirthDate *time.Time `json:"birth_date"`
	Notes     string     `json:"notes" binding:"max=512"`
}

// PatientResponse is the API shape of a patient
type PatientResponse struct {
	ID        uuid.UUID  `json:"id"`
	BranchID  int64      `json:"branch_id"`
	RecordNo  string     `json:"record_no"`
	FullName  string     `json:"full_name"`
	Phone     string     `json:"phone,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func toPatientResponse(p *clinic.Patient) PatientResponse {
	return PatientResponse{
		ID:        p.ID,
		BranchID:  p.BranchID,
		RecordNo:  p.RecordNo,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Gender:    p.Gender,
		BirthDate: p.BirthDate,
		Notes:     p.Notes,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// List returns a page of patients visible to the caller
// GET /v1/patients?page=1&page_size=20&order_by=full_name&order_dir=desc
func (h *PatientHandler) List(c *gin.Context) {
	_, repo, ok := h.unitOfWork(c)
	if !ok {
		return
	}

	var query struct {
		Page     int    `form:"page"`
		PageSize int    `form:"page_size"`
		OrderBy  string `form:"order_by"`
		OrderDir string `form:"order_dir"`
		BranchID *int64 `form:"branch_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter := shared.Filter{
		Page:     query.Page,
		PageSize: query.PageSize,
		OrderBy:  query.OrderBy,
		OrderDir: query.OrderDir,
		Filters:  map[string]any{},
	}
	if query.BranchID != nil {
		filter.Filters["branch_id"] = *query.BranchID
	}

	page, err := repo.GetPaged(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]PatientResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toPatientResponse(&page.Items[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"total":       page.Total,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages,
	})
}

// Get returns one patient by id
// GET /v1/patients/:id
func (h *PatientHandler) Get(c *gin.Context) {
	_, repo, ok := h.unitOfWork(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	patient, err := repo.GetByIDReadOnly(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPatientResponse(patient))
}

// Create registers a new patient in the caller's tenant
// POST /v1/patients
func (h *PatientHandler) Create(c *gin.Context) {
	u, repo, ok := h.unitOfWork(c)
	if !ok {
		return
	}
	var req CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patient := clinic.NewPatient(u.AccessContext().TenantID(), req.BranchID, req.RecordNo, req.FullName)
	patient.Phone = req.Phone
	patient.Gender = req.Gender
	patient.BirthDate = req.BirthDate
	patient.Notes = req.Notes

	if err := repo.Add(patient); err != nil {
		respondError(c, err)
		return
	}
	if _, err := u.Commit(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPatientResponse(patient))
}

// Update modifies an existing patient
// PUT /v1/patients/:id
func (h *PatientHandler) Update(c *gin.Context) {
	u, repo, ok := h.unitOfWork(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req UpdatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patient, err := repo.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	patient.FullName = req.FullName
	patient.Phone = req.Phone
	patient.Gender = req.Gender
	patient.BirthDate = req.BirthDate
	patient.Notes = req.Notes

	if err := repo.Update(patient); err != nil {
		respondError(c, err)
		return
	}
	if _, err := u.Commit(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPatientResponse(patient))
}

// Delete soft-deletes a patient
// DELETE /v1/patients/:id
func (h *PatientHandler) Delete(c *gin.Context) {
	u, repo, ok := h.unitOfWork(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	patient, err := repo.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := repo.Remove(patient); err != nil {
		respondError(c, err)
		return
	}
	if _, err := u.Commit(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Restore reverses a soft delete. Finding the tombstoned row requires a
// privileged read, which is logged.
// POST /v1/patients/:id/restore
func (h *PatientHandler) Restore(c *gin.Context) {
	u, repo, ok := h.unitOfWork(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	patient, err := repo.GetByIDPrivileged(c.Request.Context(), id, true)
	if err != nil {
		respondError(c, err)
		return
	}
	if !patient.IsSoftDeleted() {
		c.JSON(http.StatusConflict, gin.H{"error": "not deleted"})
		return
	}
	patient.MarkRestored()

	if err := repo.Update(patient); err != nil {
		respondError(c, err)
		return
	}
	if _, err := u.Commit(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPatientResponse(patient))
}
