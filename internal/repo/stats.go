// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-form-backend/internal/domain"
)

// SubmissionStats returns aggregate metadata for a form's submissions: the
// total number of rows and the maximum UpdatedAt timestamp among them.
//
// When the form has no submissions, the returned count is 0 and
// maxUpdatedAt is nil.
func SubmissionStats(ctx context.Context, db *gorm.DB, formID uint) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Submission{}).Where("form_id = ?", formID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// DuplicateStats counts flagged submissions for a form. Shown next to the
// rescan action in the dashboard.
func DuplicateStats(ctx context.Context, db *gorm.DB, formID uint) (flagged int64, err error) {
	err = db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("form_id = ? AND duplicated = ?", formID, true).
		Count(&flagged).Error
	return flagged, err
}
