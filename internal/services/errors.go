// Package services defines the business logic for submissions, duplicate
// rescans, entities, and allocation workflows. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

var (
	// ErrFormNotFound indicates that the requested form does not exist.
	ErrFormNotFound = errors.New("form not found")

	// ErrSubmissionNotFound indicates that the requested submission does
	// not exist.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrEntityNotFound indicates that the requested entity does not exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrFieldNotFound is returned when a duplicate-setting update names a
	// field id that does not belong to the form.
	ErrFieldNotFound = errors.New("field not found on form")

	// ErrRequestNotFound indicates that the requested allocation request
	// does not exist.
	ErrRequestNotFound = errors.New("allocation request not found")

	// ErrProtectedEntity is returned on attempts to edit or delete the
	// reserved "organic" fallback entity.
	ErrProtectedEntity = errors.New("organic entity cannot be modified")

	// ErrEntityInUse is returned when deleting an entity that still owns
	// submissions.
	ErrEntityInUse = errors.New("entity still owns submissions")

	// ErrDuplicateEntityName is returned when creating or renaming an
	// entity to a name that already exists.
	ErrDuplicateEntityName = errors.New("entity name already exists")

	// ErrPendingRequestExists is returned when a submission already has a
	// pending allocation request.
	ErrPendingRequestExists = errors.New("pending allocation request already exists")

	// ErrRequestResolved is returned on approve/reject of a request that is
	// no longer pending.
	ErrRequestResolved = errors.New("allocation request already resolved")

	// ErrEmptySubmission is returned when an ingestion payload carries no
	// field values at all.
	ErrEmptySubmission = errors.New("submission has no field values")

	// ErrNoSelection is returned when a bulk operation receives an empty
	// id list.
	ErrNoSelection = errors.New("no submissions selected")
)
