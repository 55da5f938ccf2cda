// Package repo – allocation-request persistence.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-form-backend/internal/domain"
)

// CreateAllocationRequest inserts a pending request row.
func CreateAllocationRequest(ctx context.Context, db *gorm.DB, r *domain.AllocationRequest) error {
	return db.WithContext(ctx).Create(r).Error
}

// GetAllocationRequest fetches a request by id, or ErrNotFound.
func GetAllocationRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.AllocationRequest, error) {
	var r domain.AllocationRequest
	if err := db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// HasPendingRequest reports whether a pending request already exists for the
// submission. Run inside the creating transaction so the one-pending-per-
// submission rule holds under concurrent requests.
func HasPendingRequest(ctx context.Context, db *gorm.DB, submissionID uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.AllocationRequest{}).
		Where("submission_id = ? AND status = ?", submissionID, domain.RequestPending).
		Count(&n).Error
	return n > 0, err
}

// ListAllocationRequests returns requests filtered by status ("" for all),
// newest first.
func ListAllocationRequests(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.AllocationRequest, error) {
	q := db.WithContext(ctx).Model(&domain.AllocationRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.AllocationRequest
	err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountAllocationRequests counts requests filtered by status ("" for all).
func CountAllocationRequests(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.AllocationRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// ResolveAllocationRequest transitions a pending request to approved or
// rejected. Only pending rows are affected; resolving an already-resolved
// request returns ErrNotFound so the service can map it to a conflict.
func ResolveAllocationRequest(ctx context.Context, db *gorm.DB, id uint, status, resolvedBy string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.AllocationRequest{}).
		Where("id = ? AND status = ?", id, domain.RequestPending).
		Updates(map[string]any{
			"status":      status,
			"resolved_by": resolvedBy,
			"resolved_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
