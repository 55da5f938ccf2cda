// Duplicate-management HTTP handlers.
//
// Endpoints:
//   - POST /forms/{id}/duplicates/rescan     (recompute persisted flags)
//   - GET  /forms/{id}/duplicates/settings   (current key fields)
//   - PUT  /forms/{id}/duplicates/settings   (replace key fields)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-form-backend/internal/http/middleware"
	"github.com/tbourn/go-form-backend/internal/services"
)

// DuplicateSettingsRequest replaces a form's duplicate-key field set. An
// empty list clears the settings and reverts to the phone/email fallback.
type DuplicateSettingsRequest struct {
	FieldIDs []uint `json:"field_ids"`
}

// DuplicateSettingsResponse reports the fields currently configured for
// duplicate detection on a form.
type DuplicateSettingsResponse struct {
	FormID uint                    `json:"form_id"`
	Fields []DuplicateSettingField `json:"fields"`
	// UsesFallback is true when no settings exist and phone/email applies.
	UsesFallback bool `json:"uses_fallback"`
}

// DuplicateSettingField is one configured key field.
type DuplicateSettingField struct {
	ID        uint   `json:"id"`
	FieldName string `json:"field_name"`
}

// RescanDuplicates godoc
// @ID          rescanDuplicates
// @Summary     Recompute duplicate flags for a form
// @Description Clears and recomputes the duplicated flag of every submission in the form, atomically. Idempotent for unchanged data.
// @Tags        Duplicates
// @Produce     json
//
// @Param       id  path  int  true  "Form ID"
//
// @Success     200  {object}  services.RescanResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Rescan failed"
// @Router      /forms/{id}/duplicates/rescan [post]
func (h *Handlers) RescanDuplicates(c *gin.Context) {
	formID, okID := uintParam(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a positive integer")
		return
	}

	res, err := h.dedupSvc.Rescan(c.Request.Context(), formID)
	switch {
	case err == nil:
		middleware.CountRescan(res.Flagged)
		ok(c, http.StatusOK, res)
	case errors.Is(err, services.ErrFormNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeRescanFailed, err.Error())
	}
}

// GetDuplicateSettings godoc
// @ID          getDuplicateSettings
// @Summary     Get a form's duplicate-key settings
// @Description Returns the configured key fields, or an empty list with uses_fallback=true when the phone/email fallback applies.
// @Tags        Duplicates
// @Produce     json
//
// @Param       id  path  int  true  "Form ID"
//
// @Success     200  {object}  handlers.DuplicateSettingsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /forms/{id}/duplicates/settings [get]
func (h *Handlers) GetDuplicateSettings(c *gin.Context) {
	formID, okID := uintParam(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a positive integer")
		return
	}

	fields, err := h.dedupSvc.Settings(c.Request.Context(), formID)
	if err != nil {
		if errors.Is(err, services.ErrFormNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	out := DuplicateSettingsResponse{
		FormID:       formID,
		Fields:       make([]DuplicateSettingField, 0, len(fields)),
		UsesFallback: len(fields) == 0,
	}
	for _, f := range fields {
		out.Fields = append(out.Fields, DuplicateSettingField{ID: f.ID, FieldName: f.FieldName})
	}
	ok(c, http.StatusOK, out)
}

// PutDuplicateSettings godoc
// @ID          putDuplicateSettings
// @Summary     Replace a form's duplicate-key settings
// @Description Replaces the set of fields the duplicate key is built from. Every id must belong to the form. An empty list reverts to the phone/email fallback. Flags are not recomputed until the next rescan.
// @Tags        Duplicates
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                                true  "Form ID"
// @Param       body  body  handlers.DuplicateSettingsRequest  true  "Field ids"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Form not found"
// @Failure     422  {object}  handlers.ErrorResponse  "Field does not belong to the form"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /forms/{id}/duplicates/settings [put]
func (h *Handlers) PutDuplicateSettings(c *gin.Context) {
	formID, okID := uintParam(c, "id")
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "form id must be a positive integer")
		return
	}
	var req DuplicateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.dedupSvc.UpdateSettings(c.Request.Context(), formID, req.FieldIDs)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrFormNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "form not found")
	case errors.Is(err, services.ErrFieldNotFound):
		fail(c, http.StatusUnprocessableEntity, ErrCodeBadRequest, "field does not belong to this form")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
