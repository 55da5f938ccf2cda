// Package repo – submission and response persistence.
//
// Beyond plain CRUD this file carries the projections consumed by the
// duplicate pipeline: key-row loaders that flatten each submission onto the
// configured duplicate-key fields, and the flag writers the transactional
// rescan runs. Loaders return data in deterministic (id) order so resolver
// output is reproducible.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-form-backend/internal/dedup"
	"github.com/tbourn/go-form-backend/internal/domain"
)

// CreateSubmission inserts a submission together with its responses. The
// caller is expected to run it inside a transaction when paired with other
// writes.
func CreateSubmission(ctx context.Context, db *gorm.DB, s *domain.Submission) error {
	return db.WithContext(ctx).Create(s).Error
}

// GetSubmission fetches a submission with its responses, or ErrNotFound.
func GetSubmission(ctx context.Context, db *gorm.DB, id uint) (*domain.Submission, error) {
	var s domain.Submission
	err := db.WithContext(ctx).
		Preload("Responses").
		First(&s, id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSubmissions returns the number of submissions of a form.
func CountSubmissions(ctx context.Context, db *gorm.DB, formID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("form_id = ?", formID).
		Count(&total).Error
	return total, err
}

// ListSubmissionsPage returns a page of a form's submissions with responses,
// newest first.
func ListSubmissionsPage(ctx context.Context, db *gorm.DB, formID uint, offset, limit int) ([]domain.Submission, error) {
	var out []domain.Submission
	err := db.WithContext(ctx).
		Preload("Responses").
		Where("form_id = ?", formID).
		Order("timestamp desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// keyValue is one (submission, field name, value) cell used to assemble
// resolver rows.
type keyValue struct {
	SubmissionID uint
	FieldName    string
	Value        *string
}

// ListKeyRows projects every submission of a form onto keyFields, in the
// given field order, yielding the rows the duplicate resolver consumes.
// Submissions with no response for a key field contribute "" for it.
func ListKeyRows(ctx context.Context, db *gorm.DB, formID uint, keyFields []string) ([]dedup.Row, error) {
	var subs []struct {
		ID        uint
		Timestamp time.Time
	}
	if err := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("form_id = ?", formID).
		Order("id asc").
		Select("id", "timestamp").
		Scan(&subs).Error; err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}

	var cells []keyValue
	if err := db.WithContext(ctx).
		Table("responses").
		Select("responses.submission_id AS submission_id, fields.field_name AS field_name, responses.value AS value").
		Joins("JOIN fields ON fields.id = responses.field_id").
		Joins("JOIN submissions ON submissions.id = responses.submission_id").
		Where("submissions.form_id = ? AND fields.field_name IN ?", formID, keyFields).
		Scan(&cells).Error; err != nil {
		return nil, err
	}

	bySubmission := make(map[uint]map[string]string, len(subs))
	for _, c := range cells {
		m := bySubmission[c.SubmissionID]
		if m == nil {
			m = make(map[string]string, len(keyFields))
			bySubmission[c.SubmissionID] = m
		}
		if c.Value != nil {
			m[c.FieldName] = *c.Value
		}
	}

	rows := make([]dedup.Row, 0, len(subs))
	for _, s := range subs {
		values := make([]string, len(keyFields))
		for i, name := range keyFields {
			values[i] = bySubmission[s.ID][name]
		}
		rows = append(rows, dedup.Row{ID: s.ID, Timestamp: s.Timestamp, Values: values})
	}
	return rows, nil
}

// ListCleanKeyRows projects submissions onto the presentation-only clean key
// (form code, phone, email). formIDs restricts the scope; empty means all
// forms. The result feeds dedup.Canonical and is never persisted.
func ListCleanKeyRows(ctx context.Context, db *gorm.DB, formIDs []uint) ([]dedup.Row, error) {
	var subs []struct {
		ID        uint
		Timestamp time.Time
		Code      string
	}
	q := db.WithContext(ctx).
		Table("submissions").
		Select("submissions.id AS id, submissions.timestamp AS timestamp, forms.code AS code").
		Joins("JOIN forms ON forms.id = submissions.form_id").
		Order("submissions.id asc")
	if len(formIDs) > 0 {
		q = q.Where("submissions.form_id IN ?", formIDs)
	}
	if err := q.Scan(&subs).Error; err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}

	var cells []keyValue
	cq := db.WithContext(ctx).
		Table("responses").
		Select("responses.submission_id AS submission_id, fields.field_name AS field_name, responses.value AS value").
		Joins("JOIN fields ON fields.id = responses.field_id").
		Joins("JOIN submissions ON submissions.id = responses.submission_id").
		Where("fields.field_name IN ?", []string{"phone", "email"})
	if len(formIDs) > 0 {
		cq = cq.Where("submissions.form_id IN ?", formIDs)
	}
	if err := cq.Scan(&cells).Error; err != nil {
		return nil, err
	}

	bySubmission := make(map[uint]map[string]string, len(subs))
	for _, c := range cells {
		m := bySubmission[c.SubmissionID]
		if m == nil {
			m = make(map[string]string, 2)
			bySubmission[c.SubmissionID] = m
		}
		if c.Value != nil {
			m[c.FieldName] = *c.Value
		}
	}

	rows := make([]dedup.Row, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, dedup.Row{
			ID:        s.ID,
			Timestamp: s.Timestamp,
			Values:    []string{s.Code, bySubmission[s.ID]["phone"], bySubmission[s.ID]["email"]},
		})
	}
	return rows, nil
}

// ListSubmissionsByIDs returns submissions (with responses) for the given
// ids, in id order.
func ListSubmissionsByIDs(ctx context.Context, db *gorm.DB, ids []uint) ([]domain.Submission, error) {
	var out []domain.Submission
	err := db.WithContext(ctx).
		Preload("Responses").
		Where("id IN ?", ids).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// ClearDuplicateFlags resets duplicated to false for every submission of the
// form. Intended to run inside the rescan transaction.
func ClearDuplicateFlags(ctx context.Context, db *gorm.DB, formID uint) error {
	return db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("form_id = ?", formID).
		Update("duplicated", false).Error
}

// FlagDuplicates sets duplicated = true for the given submission ids.
// Intended to run inside the rescan transaction; a no-op for empty ids.
func FlagDuplicates(ctx context.Context, db *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("id IN ?", ids).
		Update("duplicated", true).Error
}

// UpdateSubmissionEntity sets the owning entity of a submission. Returns
// ErrNotFound when the submission does not exist.
func UpdateSubmissionEntity(ctx context.Context, db *gorm.DB, id uint, entityID uint) error {
	res := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("id = ?", id).
		Update("entity_id", entityID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountUnallocated counts submissions whose entity is missing or the organic
// fallback.
func CountUnallocated(ctx context.Context, db *gorm.DB, organicID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("entity_id IS NULL OR entity_id IN ?", []uint{0, organicID}).
		Count(&total).Error
	return total, err
}

// ListUnallocatedPage returns a page of submissions whose entity is missing
// or the organic fallback, oldest first so the queue drains in arrival order.
func ListUnallocatedPage(ctx context.Context, db *gorm.DB, organicID uint, offset, limit int) ([]domain.Submission, error) {
	var out []domain.Submission
	err := db.WithContext(ctx).
		Preload("Responses").
		Where("entity_id IS NULL OR entity_id IN ?", []uint{0, organicID}).
		Order("timestamp asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteSubmissions removes the given submissions of a form along with their
// responses. Intended to run inside a transaction; responses are deleted
// explicitly rather than relying on driver cascade behavior.
func DeleteSubmissions(ctx context.Context, db *gorm.DB, formID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := db.WithContext(ctx).
		Where("submission_id IN (?)",
			db.Model(&domain.Submission{}).Select("id").Where("form_id = ? AND id IN ?", formID, ids),
		).
		Delete(&domain.Response{}).Error; err != nil {
		return 0, err
	}
	res := db.WithContext(ctx).
		Where("form_id = ? AND id IN ?", formID, ids).
		Delete(&domain.Submission{})
	return res.RowsAffected, res.Error
}

// ReparentSubmissions moves submissions to another form. Intended to run
// inside the move transaction after response pruning.
func ReparentSubmissions(ctx context.Context, db *gorm.DB, targetFormID uint, ids []uint) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("id IN ?", ids).
		Update("form_id", targetFormID)
	return res.RowsAffected, res.Error
}

// DeleteResponsesForMissingFields drops responses of the given submissions
// whose field has no same-named counterpart on the target form. Used by the
// move operation.
func DeleteResponsesForMissingFields(ctx context.Context, db *gorm.DB, targetFormID uint, ids []uint) error {
	return db.WithContext(ctx).
		Where("submission_id IN ?", ids).
		Where("field_id NOT IN (?)",
			db.Table("fields f").
				Select("f.id").
				Joins("JOIN fields t ON t.field_name = f.field_name AND t.form_id = ?", targetFormID),
		).
		Delete(&domain.Response{}).Error
}

// RemapResponsesToForm repoints surviving responses of moved submissions at
// the same-named fields of the target form.
func RemapResponsesToForm(ctx context.Context, db *gorm.DB, targetFormID uint, ids []uint) error {
	return db.WithContext(ctx).Exec(`
		UPDATE responses SET field_id = (
			SELECT t.id FROM fields t
			JOIN fields f ON f.field_name = t.field_name
			WHERE f.id = responses.field_id AND t.form_id = ?
		)
		WHERE submission_id IN ? AND EXISTS (
			SELECT 1 FROM fields t
			JOIN fields f ON f.field_name = t.field_name
			WHERE f.id = responses.field_id AND t.form_id = ?
		)`, targetFormID, ids, targetFormID).Error
}

// UpdateUTMLinks applies non-empty patch columns to the UTM rows of the
// given submissions. Intended to run inside the bulk-edit transaction.
func UpdateUTMLinks(ctx context.Context, db *gorm.DB, ids []uint, patch map[string]any) (int64, error) {
	if len(ids) == 0 || len(patch) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.UTMLink{}).
		Where("submission_id IN ?", ids).
		Updates(patch)
	return res.RowsAffected, res.Error
}
