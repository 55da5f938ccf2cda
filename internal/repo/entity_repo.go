// Package repo – entity and reference-table persistence.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-form-backend/internal/domain"
	"github.com/tbourn/go-form-backend/internal/lookup"
)

// CreateEntity inserts a new entity row.
func CreateEntity(ctx context.Context, db *gorm.DB, e *domain.Entity) error {
	return db.WithContext(ctx).Create(e).Error
}

// GetEntity fetches an entity by id, or ErrNotFound.
func GetEntity(ctx context.Context, db *gorm.DB, id uint) (*domain.Entity, error) {
	var e domain.Entity
	if err := db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// GetOrganicEntity fetches the protected fallback entity by its reserved
// name (case-insensitive).
func GetOrganicEntity(ctx context.Context, db *gorm.DB) (*domain.Entity, error) {
	var e domain.Entity
	err := db.WithContext(ctx).
		Where("LOWER(name) = ?", domain.OrganicEntityName).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntities returns all entities ordered by name.
func ListEntities(ctx context.Context, db *gorm.DB) ([]domain.Entity, error) {
	var out []domain.Entity
	err := db.WithContext(ctx).Order("name asc").Find(&out).Error
	return out, err
}

// UpdateEntity applies name/type changes to an entity. Returns ErrNotFound
// when the row does not exist. Protection of the organic entity is enforced
// in the service layer before this is called.
func UpdateEntity(ctx context.Context, db *gorm.DB, id uint, name, typ string) error {
	res := db.WithContext(ctx).
		Model(&domain.Entity{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "type": typ})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteEntity soft-deletes an entity. Returns ErrNotFound when missing.
func DeleteEntity(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Entity{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountSubmissionsForEntity counts submissions currently attributed to the
// entity. Used to refuse deleting an entity still in use.
func CountSubmissionsForEntity(ctx context.Context, db *gorm.DB, entityID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("entity_id = ?", entityID).
		Count(&n).Error
	return n, err
}

// ListCandidates loads the (id, label) projection of an allowlisted
// reference table for the lookup cascade. The table and columns come from
// the closed Source enum, never from request data.
func ListCandidates(ctx context.Context, db *gorm.DB, src lookup.Source) ([]lookup.Candidate, error) {
	var out []lookup.Candidate
	err := db.WithContext(ctx).
		Table(src.Table()).
		Select(src.ValueColumn() + " AS id, " + src.LabelColumn() + " AS label").
		Scan(&out).Error
	return out, err
}
