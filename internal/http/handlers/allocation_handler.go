// Allocation HTTP handlers.
//
// Endpoints for the manual/requested allocation workflow:
//   - GET  /allocations/queue                   (submissions awaiting a real owner)
//   - PUT  /submissions/{id}/entity             (direct assignment)
//   - POST /allocation-requests                 (file a request)
//   - GET  /allocation-requests                 (list, status filter)
//   - POST /allocation-requests/{id}/approve
//   - POST /allocation-requests/{id}/reject
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-form-backend/internal/domain"
	"github.com/tbourn/go-form-backend/internal/services"
)

// AssignEntityRequest is the direct-assignment payload.
type AssignEntityRequest struct {
	EntityID uint `json:"entity_id" binding:"required"`
}

// AllocationRequestCreate is the payload for filing an allocation request.
type AllocationRequestCreate struct {
	SubmissionID uint `json:"submission_id" binding:"required"`
	EntityID     uint `json:"entity_id" binding:"required"`
}

// ListAllocationRequestsResponse wraps a page of allocation requests.
type ListAllocationRequestsResponse struct {
	Requests   []domain.AllocationRequest `json:"requests"`
	Pagination Pagination                 `json:"pagination"`
}

// ListAllocationQueue godoc
// @ID          listAllocationQueue
// @Summary     List submissions awaiting allocation
// @Description Returns submissions whose owning entity is missing or the organic fallback, oldest first.
// @Tags        Allocation
// @Produce     json
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListSubmissionsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /allocations/queue [get]
func (h *Handlers) ListAllocationQueue(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.allocSvc.Queue(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSubmissionsResponse{
		Submissions: items,
		Pagination:  paginationMeta(page, pageSize, total),
	})
}

// AssignEntity godoc
// @ID          assignEntity
// @Summary     Assign an entity to a submission
// @Description Sets the submission's owning entity directly, bypassing the request workflow.
// @Tags        Allocation
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                           true  "Submission ID"
// @Param       body  body  handlers.AssignEntityRequest  true  "Target entity"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Submission or entity not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submissions/{id}/entity [put]
func (h *Handlers) AssignEntity(c *gin.Context) {
	subID, okID := uintParam(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a positive integer")
		return
	}
	var req AssignEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "entity_id required")
		return
	}

	err := h.allocSvc.Assign(c.Request.Context(), subID, req.EntityID)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrSubmissionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found")
	case errors.Is(err, services.ErrEntityNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "entity not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// CreateAllocationRequest godoc
// @ID          createAllocationRequest
// @Summary     File an allocation request
// @Description Files a pending request to allocate a submission to an entity. At most one pending request may exist per submission.
// @Tags        Allocation
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.AllocationRequestCreate  true  "Request payload"
//
// @Success     201  {object}  domain.AllocationRequest
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Submission or entity not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Pending request already exists"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /allocation-requests [post]
func (h *Handlers) CreateAllocationRequest(c *gin.Context) {
	var req AllocationRequestCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission_id and entity_id required")
		return
	}

	created, err := h.allocSvc.Request(c.Request.Context(), req.SubmissionID, req.EntityID, actor(c))
	switch {
	case err == nil:
		ok(c, http.StatusCreated, created)
	case errors.Is(err, services.ErrSubmissionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found")
	case errors.Is(err, services.ErrEntityNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "entity not found")
	case errors.Is(err, services.ErrPendingRequestExists):
		fail(c, http.StatusConflict, ErrCodeConflict, "pending allocation request already exists")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ListAllocationRequests godoc
// @ID          listAllocationRequests
// @Summary     List allocation requests
// @Tags        Allocation
// @Produce     json
//
// @Param       status     query  string  false  "Filter by status"  Enums(pending, approved, rejected)
// @Param       page       query  int     false  "Page number"       minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"    minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListAllocationRequestsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /allocation-requests [get]
func (h *Handlers) ListAllocationRequests(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", domain.RequestPending, domain.RequestApproved, domain.RequestRejected:
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be pending, approved, or rejected")
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.allocSvc.List(c.Request.Context(), status, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListAllocationRequestsResponse{
		Requests:   items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}

// ApproveAllocationRequest godoc
// @ID          approveAllocationRequest
// @Summary     Approve an allocation request
// @Description Sets the submission's entity to the requested target and marks the request approved, atomically.
// @Tags        Allocation
// @Produce     json
//
// @Param       id  path  int  true  "Request ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Request already resolved"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /allocation-requests/{id}/approve [post]
func (h *Handlers) ApproveAllocationRequest(c *gin.Context) {
	h.resolveAllocationRequest(c, h.allocSvc.Approve)
}

// RejectAllocationRequest godoc
// @ID          rejectAllocationRequest
// @Summary     Reject an allocation request
// @Description Marks the request rejected without touching the submission.
// @Tags        Allocation
// @Produce     json
//
// @Param       id  path  int  true  "Request ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Request already resolved"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /allocation-requests/{id}/reject [post]
func (h *Handlers) RejectAllocationRequest(c *gin.Context) {
	h.resolveAllocationRequest(c, h.allocSvc.Reject)
}

// resolveAllocationRequest is the shared approve/reject plumbing.
func (h *Handlers) resolveAllocationRequest(c *gin.Context, resolve func(ctx context.Context, id uint, by string) error) {
	reqID, okID := uintParam(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a positive integer")
		return
	}

	err := resolve(c.Request.Context(), reqID, actor(c))
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrRequestNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "allocation request not found")
	case errors.Is(err, services.ErrRequestResolved):
		fail(c, http.StatusConflict, ErrCodeConflict, "allocation request already resolved")
	case errors.Is(err, services.ErrSubmissionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
