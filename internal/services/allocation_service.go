// Package services – AllocationService
//
// This file implements manual and requested entity allocation for
// submissions that arrived without a real owner. Unallocated submissions
// (entity missing or the organic fallback) surface in a queue; a
// non-privileged actor may file an allocation request (one pending per
// submission), and a privileged actor approves, rejects, or bypasses the
// workflow with a direct assignment. Every path fails closed: invalid ids,
// missing entities, and duplicate pending requests are rejected with no
// mutation.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-form-backend/internal/domain"
	"github.com/tbourn/go-form-backend/internal/repo"
)

// AllocationService implements the manual/requested allocation workflow.
type AllocationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// Queue returns a page of submissions awaiting allocation (entity missing
// or organic) with their responses, oldest first, plus the total count.
func (s *AllocationService) Queue(ctx context.Context, page, pageSize int) ([]domain.Submission, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	organic, err := repo.GetOrganicEntity(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}

	total, err := repo.CountUnallocated(ctx, s.DB, organic.ID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Submission{}, 0, nil
	}

	items, err := repo.ListUnallocatedPage(ctx, s.DB, organic.ID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Assign sets a submission's owning entity directly (privileged bypass of
// the request workflow). The target entity must exist.
func (s *AllocationService) Assign(ctx context.Context, submissionID, entityID uint) error {
	if _, err := repo.GetEntity(ctx, s.DB, entityID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntityNotFound
		}
		return err
	}
	if err := repo.UpdateSubmissionEntity(ctx, s.DB, submissionID, entityID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}
	return nil
}

// Request files an allocation request for a submission.
//
// Semantics:
//   - submissionID and entityID must exist; otherwise ErrSubmissionNotFound
//     / ErrEntityNotFound.
//   - At most one pending request may exist per submission; a second one is
//     rejected with ErrPendingRequestExists. The check and the insert run
//     in one transaction so the rule holds under concurrent callers.
func (s *AllocationService) Request(ctx context.Context, submissionID, entityID uint, requestedBy string) (*domain.AllocationRequest, error) {
	ctx, span := otel.Tracer("services").Start(ctx, "AllocationService.Request")
	defer span.End()
	span.SetAttributes(attribute.Int("submission.id", int(submissionID)))

	var req *domain.AllocationRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetSubmission(ctx, tx, submissionID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}
		if _, err := repo.GetEntity(ctx, tx, entityID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntityNotFound
			}
			return err
		}

		pending, err := repo.HasPendingRequest(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		if pending {
			return ErrPendingRequestExists
		}

		req = &domain.AllocationRequest{
			SubmissionID: submissionID,
			EntityID:     entityID,
			Status:       domain.RequestPending,
			RequestedBy:  requestedBy,
		}
		return repo.CreateAllocationRequest(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// List returns a page of allocation requests filtered by status ("" for
// all), newest first, plus the total count.
func (s *AllocationService) List(ctx context.Context, status string, page, pageSize int) ([]domain.AllocationRequest, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := repo.CountAllocationRequests(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AllocationRequest{}, 0, nil
	}

	items, err := repo.ListAllocationRequests(ctx, s.DB, status, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Approve resolves a pending request: the submission's entity is set to the
// requested target and the request is marked approved, atomically.
// Approving a request that is no longer pending yields ErrRequestResolved.
func (s *AllocationService) Approve(ctx context.Context, requestID uint, resolvedBy string) error {
	return s.resolve(ctx, requestID, domain.RequestApproved, resolvedBy)
}

// Reject resolves a pending request without touching the submission.
func (s *AllocationService) Reject(ctx context.Context, requestID uint, resolvedBy string) error {
	return s.resolve(ctx, requestID, domain.RequestRejected, resolvedBy)
}

// resolve transitions a pending request to its final status inside one
// transaction; approval also mutates the submission.
func (s *AllocationService) resolve(ctx context.Context, requestID uint, status, resolvedBy string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := repo.GetAllocationRequest(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if !req.Pending() {
			return ErrRequestResolved
		}

		if status == domain.RequestApproved {
			if err := repo.UpdateSubmissionEntity(ctx, tx, req.SubmissionID, req.EntityID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrSubmissionNotFound
				}
				return err
			}
		}

		if err := repo.ResolveAllocationRequest(ctx, tx, requestID, status, resolvedBy, time.Now().UTC()); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Lost a race with a concurrent resolver inside the same row.
				return ErrRequestResolved
			}
			return err
		}
		return nil
	})
}
