// Entity HTTP handlers.
//
// CRUD for owning entities with the reserved fallback entity protected from
// edits and deletion at the service layer; this file only translates those
// outcomes into HTTP statuses.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-form-backend/internal/services"
)

// EntityRequest is the create/update payload for an entity.
type EntityRequest struct {
	Name string `json:"name" binding:"required" example:"Hanoi"`
	Type string `json:"type" example:"local"`
}

// ListEntities godoc
// @ID          listEntities
// @Summary     List entities
// @Tags        Entities
// @Produce     json
//
// @Success     200  {array}   domain.Entity
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /entities [get]
func (h *Handlers) ListEntities(c *gin.Context) {
	items, err := h.entSvc.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// GetEntity godoc
// @ID          getEntity
// @Summary     Get one entity
// @Tags        Entities
// @Produce     json
//
// @Param       id  path  int  true  "Entity ID"
//
// @Success     200  {object}  domain.Entity
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Entity not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /entities/{id} [get]
func (h *Handlers) GetEntity(c *gin.Context) {
	id, okID := uintParam(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "entity id must be a positive integer")
		return
	}
	e, err := h.entSvc.Get(c.Request.Context(), id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, e)
	case errors.Is(err, services.ErrEntityNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "entity not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// CreateEntity godoc
// @ID          createEntity
// @Summary     Create an entity
// @Description Creates a new owning entity. The reserved fallback name and duplicate names are rejected.
// @Tags        Entities
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.EntityRequest  true  "Entity payload"
//
// @Success     201  {object}  domain.Entity
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Reserved or duplicate name"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /entities [post]
func (h *Handlers) CreateEntity(c *gin.Context) {
	var req EntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}

	e, err := h.entSvc.Create(c.Request.Context(), req.Name, req.Type)
	switch {
	case err == nil:
		ok(c, http.StatusCreated, e)
	case errors.Is(err, services.ErrProtectedEntity):
		fail(c, http.StatusConflict, ErrCodeConflict, "entity name is reserved")
	case errors.Is(err, services.ErrDuplicateEntityName):
		fail(c, http.StatusConflict, ErrCodeConflict, "entity name already exists")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// UpdateEntity godoc
// @ID          updateEntity
// @Summary     Update an entity
// @Description Renames or retypes an entity. The reserved fallback entity is immutable, and renaming another entity to its name is refused.
// @Tags        Entities
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                     true  "Entity ID"
// @Param       body  body  handlers.EntityRequest  true  "Entity payload"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Entity not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Protected or duplicate name"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /entities/{id} [put]
func (h *Handlers) UpdateEntity(c *gin.Context) {
	id, okID := uintParam(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "entity id must be a positive integer")
		return
	}
	var req EntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}

	err := h.entSvc.Update(c.Request.Context(), id, req.Name, req.Type)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrEntityNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "entity not found")
	case errors.Is(err, services.ErrProtectedEntity):
		fail(c, http.StatusConflict, ErrCodeConflict, "entity is protected")
	case errors.Is(err, services.ErrDuplicateEntityName):
		fail(c, http.StatusConflict, ErrCodeConflict, "entity name already exists")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// DeleteEntity godoc
// @ID          deleteEntity
// @Summary     Delete an entity
// @Description Deletes an entity. The reserved fallback entity and entities still owning submissions cannot be removed.
// @Tags        Entities
// @Produce     json
//
// @Param       id  path  int  true  "Entity ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Entity not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Protected or in use"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /entities/{id} [delete]
func (h *Handlers) DeleteEntity(c *gin.Context) {
	id, okID := uintParam(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "entity id must be a positive integer")
		return
	}

	err := h.entSvc.Delete(c.Request.Context(), id)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrEntityNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "entity not found")
	case errors.Is(err, services.ErrProtectedEntity):
		fail(c, http.StatusConflict, ErrCodeConflict, "entity is protected")
	case errors.Is(err, services.ErrEntityInUse):
		fail(c, http.StatusConflict, ErrCodeConflict, "entity still owns submissions")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
