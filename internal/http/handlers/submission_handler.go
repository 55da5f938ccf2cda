// Submission HTTP handlers.
//
// This file exposes the public ingestion endpoint and the admin submission
// read/bulk-mutation endpoints:
//   - POST /submissions                         (public ingestion)
//   - GET  /forms/{id}/submissions              (list, paginated, ETag support)
//   - POST /forms/{id}/submissions/bulk-delete  (bulk delete)
//   - POST /submissions/move                    (move between forms)
//   - PUT  /submissions/utm                     (bulk UTM edit)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-form-backend/internal/domain"
	"github.com/tbourn/go-form-backend/internal/http/middleware"
	"github.com/tbourn/go-form-backend/internal/repo"
	"github.com/tbourn/go-form-backend/internal/services"
	"github.com/tbourn/go-form-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SubmissionService defines ingestion, listing, and bulk mutations consumed
// by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SubmissionService interface {
	// Ingest persists a submission for the form identified by code.
	Ingest(ctx context.Context, formCode string, values map[string]string) (*domain.Submission, error)
	// ListPage returns a page of a form's submissions and the total count.
	ListPage(ctx context.Context, formID uint, page, pageSize int, clean bool) ([]domain.Submission, int64, error)
	// BulkDelete removes selected submissions of a form atomically.
	BulkDelete(ctx context.Context, formID uint, ids []uint) (int64, error)
	// Move re-parents selected submissions to another form atomically.
	Move(ctx context.Context, targetFormID uint, ids []uint) (int64, error)
	// BulkSetUTM bulk-edits UTM columns of selected submissions.
	BulkSetUTM(ctx context.Context, ids []uint, patch services.UTMPatch) (int64, error)
}

// DedupService defines duplicate rescans and key-field settings.
type DedupService interface {
	// Rescan recomputes the duplicated flag for every submission of a form.
	Rescan(ctx context.Context, formID uint) (*services.RescanResult, error)
	// Settings returns the configured duplicate-key fields of a form.
	Settings(ctx context.Context, formID uint) ([]domain.Field, error)
	// UpdateSettings replaces the duplicate-key fields of a form.
	UpdateSettings(ctx context.Context, formID uint, fieldIDs []uint) error
}

// EntityService defines entity CRUD with organic-entity protection.
type EntityService interface {
	List(ctx context.Context) ([]domain.Entity, error)
	Get(ctx context.Context, id uint) (*domain.Entity, error)
	Create(ctx context.Context, name, typ string) (*domain.Entity, error)
	Update(ctx context.Context, id uint, name, typ string) error
	Delete(ctx context.Context, id uint) error
}

// AllocationService defines the manual/requested allocation workflow.
type AllocationService interface {
	Queue(ctx context.Context, page, pageSize int) ([]domain.Submission, int64, error)
	Assign(ctx context.Context, submissionID, entityID uint) error
	Request(ctx context.Context, submissionID, entityID uint, requestedBy string) (*domain.AllocationRequest, error)
	List(ctx context.Context, status string, page, pageSize int) ([]domain.AllocationRequest, int64, error)
	Approve(ctx context.Context, requestID uint, resolvedBy string) error
	Reject(ctx context.Context, requestID uint, resolvedBy string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for submissions, duplicates, entities, and
// allocation. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	subSvc   SubmissionService
	dedupSvc DedupService
	entSvc   EntityService
	allocSvc AllocationService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(subSvc SubmissionService, dedupSvc DedupService, entSvc EntityService, allocSvc AllocationService) *Handlers {
	return &Handlers{subSvc: subSvc, dedupSvc: dedupSvc, entSvc: entSvc, allocSvc: allocSvc}
}

// actor extracts the authenticated admin identity from the Gin context (set
// by the auth middleware). If absent, it falls back to the "X-User-ID"
// header (tests use it), and finally to "admin".
func actor(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := c.GetHeader("X-User-ID"); h != "" {
			return h
		}
	}
	return "admin"
}

// uintParam parses a numeric path parameter, returning 0 and false when it
// is missing or malformed.
func uintParam(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

//
// DTOs
//

// IngestRequest is the JSON payload of the public ingestion endpoint.
type IngestRequest struct {
	// FormCode selects the form the values belong to.
	FormCode string `json:"form_code" binding:"required" example:"recruitment-2026"`
	// Values maps field names to raw submitted values.
	Values map[string]string `json:"values" binding:"required"`
}

// BulkIDsRequest selects submissions for a bulk operation.
type BulkIDsRequest struct {
	IDs []uint `json:"ids" binding:"required,min=1"`
}

// MoveRequest selects submissions and the form to move them to.
type MoveRequest struct {
	TargetFormID uint   `json:"target_form_id" binding:"required"`
	IDs          []uint `json:"ids" binding:"required,min=1"`
}

// BulkUTMRequest selects submissions and carries the UTM patch to apply.
type BulkUTMRequest struct {
	IDs   []uint            `json:"ids" binding:"required,min=1"`
	Patch services.UTMPatch `json:"patch"`
}

// BulkResult reports how many rows a bulk operation touched.
type BulkResult struct {
	Affected int64 `json:"affected"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSubmissionsResponse wraps a page of submissions and pagination info.
type ListSubmissionsResponse struct {
	Submissions []domain.Submission `json:"submissions"`
	Pagination  Pagination          `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// paginationMeta assembles the Pagination block for a list response.
func paginationMeta(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// IngestSubmission godoc
// @ID          ingestSubmission
// @Summary     Submit a form
// @Description Persists a submission with its field values. Database-typed fields are resolved against their reference tables; unresolved labels are stored raw.
// @Tags        Submissions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.IngestRequest  true  "Submission payload"
//
// @Success     201  {object}  domain.Submission
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submissions [post]
func (h *Handlers) IngestSubmission(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	sub, err := h.subSvc.Ingest(c.Request.Context(), req.FormCode, req.Values)
	switch {
	case err == nil:
		middleware.CountIngest(req.FormCode)
		ok(c, http.StatusCreated, sub)
	case errors.Is(err, services.ErrFormNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
	case errors.Is(err, services.ErrEmptySubmission):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission has no field values")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeIngestFailed, err.Error())
	}
}

// ListFormSubmissions godoc
// @ID          listFormSubmissions
// @Summary     List a form's submissions (paginated)
// @Description Returns a page of submissions. With clean=1 the page is the presentation-deduplicated read model. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Submissions
// @Produce     json
//
// @Param       id             path    int     true  "Form ID"
// @Param       clean          query   int     false "Return the deduplicated read model"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"      minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"   minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSubmissionsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /forms/{id}/submissions [get]
func (h *Handlers) ListFormSubmissions(c *gin.Context) {
	ctx := c.Request.Context()
	formID, okID := uintParam(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a positive integer")
		return
	}
	page, pageSize := clampPagination(c)
	clean := c.Query("clean") == "1" || c.Query("clean") == "true"

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, okSvc := h.subSvc.(*services.SubmissionService); okSvc {
		db = svc.DB
	}
	if db != nil && !clean {
		count, maxTS, err := repo.SubmissionStats(ctx, db, formID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"submissions:%d:%d:%d"`, formID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.subSvc.ListPage(ctx, formID, page, pageSize, clean)
	if err != nil {
		if errors.Is(err, services.ErrFormNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListSubmissionsResponse{
		Submissions: items,
		Pagination:  paginationMeta(page, pageSize, total),
	})
}

// BulkDeleteSubmissions godoc
// @ID          bulkDeleteSubmissions
// @Summary     Delete selected submissions of a form
// @Description Deletes submissions and their responses in one transaction.
// @Tags        Submissions
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                      true  "Form ID"
// @Param       body  body  handlers.BulkIDsRequest  true  "Submission ids"
//
// @Success     200  {object} handlers.BulkResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Form not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /forms/{id}/submissions/bulk-delete [post]
func (h *Handlers) BulkDeleteSubmissions(c *gin.Context) {
	formID, okID := uintParam(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a positive integer")
		return
	}
	var req BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ids required")
		return
	}

	n, err := h.subSvc.BulkDelete(c.Request.Context(), formID, req.IDs)
	switch {
	case err == nil:
		ok(c, http.StatusOK, BulkResult{Affected: n})
	case errors.Is(err, services.ErrFormNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
	case errors.Is(err, services.ErrNoSelection):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no submissions selected")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeBulkFailed, err.Error())
	}
}

// MoveSubmissions godoc
// @ID          moveSubmissions
// @Summary     Move submissions to another form
// @Description Re-parents submissions; responses without a same-named field on the target form are dropped. One transaction.
// @Tags        Submissions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.MoveRequest  true  "Move payload"
//
// @Success     200  {object} handlers.BulkResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Target form not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /submissions/move [post]
func (h *Handlers) MoveSubmissions(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "target_form_id and ids required")
		return
	}

	n, err := h.subSvc.Move(c.Request.Context(), req.TargetFormID, req.IDs)
	switch {
	case err == nil:
		ok(c, http.StatusOK, BulkResult{Affected: n})
	case errors.Is(err, services.ErrFormNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "target form not found")
	case errors.Is(err, services.ErrNoSelection):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no submissions selected")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeBulkFailed, err.Error())
	}
}

// BulkEditUTM godoc
// @ID          bulkEditUTM
// @Summary     Bulk-edit UTM fields
// @Description Applies the patch to the UTM rows of the selected submissions in one transaction.
// @Tags        Submissions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.BulkUTMRequest  true  "UTM patch payload"
//
// @Success     200  {object} handlers.BulkResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /submissions/utm [put]
func (h *Handlers) BulkEditUTM(c *gin.Context) {
	var req BulkUTMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ids required")
		return
	}

	n, err := h.subSvc.BulkSetUTM(c.Request.Context(), req.IDs, req.Patch)
	switch {
	case err == nil:
		ok(c, http.StatusOK, BulkResult{Affected: n})
	case errors.Is(err, services.ErrNoSelection):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no submissions selected")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeBulkFailed, err.Error())
	}
}
