// Package repo – form, field, and duplicate-setting persistence.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-form-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetForm fetches a form by id, or ErrNotFound if missing.
func GetForm(ctx context.Context, db *gorm.DB, id uint) (*domain.Form, error) {
	var f domain.Form
	if err := db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFormByCode fetches a form by its public code, or ErrNotFound.
func GetFormByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Form, error) {
	var f domain.Form
	if err := db.WithContext(ctx).Where("code = ?", code).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// ListForms returns all forms ordered by creation time descending.
func ListForms(ctx context.Context, db *gorm.DB) ([]domain.Form, error) {
	var out []domain.Form
	err := db.WithContext(ctx).Order("created_at desc").Find(&out).Error
	return out, err
}

// ListFields returns the fields of a form ordered by id (definition order).
func ListFields(ctx context.Context, db *gorm.DB, formID uint) ([]domain.Field, error) {
	var out []domain.Field
	err := db.WithContext(ctx).
		Where("form_id = ?", formID).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// GetFieldsByNames returns the form's fields whose field_name is in names.
// Missing names are simply absent from the result; the caller decides
// whether that matters.
func GetFieldsByNames(ctx context.Context, db *gorm.DB, formID uint, names []string) ([]domain.Field, error) {
	var out []domain.Field
	err := db.WithContext(ctx).
		Where("form_id = ? AND field_name IN ?", formID, names).
		Find(&out).Error
	return out, err
}

// ListDuplicateSettings returns the duplicate-key settings of a form joined
// with their fields, in setting id order.
func ListDuplicateSettings(ctx context.Context, db *gorm.DB, formID uint) ([]domain.Field, error) {
	var out []domain.Field
	err := db.WithContext(ctx).
		Joins("JOIN duplicate_settings ds ON ds.field_id = fields.id").
		Where("ds.form_id = ?", formID).
		Order("ds.id asc").
		Find(&out).Error
	return out, err
}

// ReplaceDuplicateSettings swaps the full set of duplicate-key fields for a
// form in one transaction. An empty fieldIDs list clears the settings, which
// reverts the resolver to the phone/email fallback.
func ReplaceDuplicateSettings(ctx context.Context, db *gorm.DB, formID uint, fieldIDs []uint) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("form_id = ?", formID).Delete(&domain.DuplicateSetting{}).Error; err != nil {
			return err
		}
		for _, fid := range fieldIDs {
			if err := tx.Create(&domain.DuplicateSetting{FormID: formID, FieldID: fid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
