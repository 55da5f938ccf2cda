// Package services – EntityService
//
// This file implements entity CRUD with the protection rules around the
// reserved "organic" fallback entity: it can be neither edited nor deleted,
// and entities still owning submissions cannot be removed. Service-level
// errors (ErrProtectedEntity, ErrEntityInUse, ErrDuplicateEntityName, …)
// are returned for predictable cases so handlers can map them to HTTP
// results consistently.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-form-backend/internal/domain"
	"github.com/tbourn/go-form-backend/internal/repo"
)

// EntityService implements the use-cases around owning entities.
type EntityService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// isOrganic reports whether the name is the reserved fallback entity name,
// case-insensitively.
func isOrganic(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), domain.OrganicEntityName)
}

// List returns all entities ordered by name.
func (s *EntityService) List(ctx context.Context) ([]domain.Entity, error) {
	return repo.ListEntities(ctx, s.DB)
}

// Get fetches one entity, or ErrEntityNotFound.
func (s *EntityService) Get(ctx context.Context, id uint) (*domain.Entity, error) {
	e, err := repo.GetEntity(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntityNotFound
		}
		return nil, err
	}
	return e, nil
}

// Create inserts a new entity. The reserved organic name and duplicate
// names are rejected.
func (s *EntityService) Create(ctx context.Context, name, typ string) (*domain.Entity, error) {
	name = strings.TrimSpace(name)
	if isOrganic(name) {
		return nil, ErrProtectedEntity
	}
	if typ = strings.TrimSpace(typ); typ == "" {
		typ = "local"
	}

	e := &domain.Entity{Name: name, Type: typ}
	if err := repo.CreateEntity(ctx, s.DB, e); err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicateEntityName
		}
		return nil, err
	}
	return e, nil
}

// Update renames or retypes an entity. The organic entity is immutable;
// renaming another entity to "organic" is likewise refused.
func (s *EntityService) Update(ctx context.Context, id uint, name, typ string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if isOrganic(e.Name) {
		return ErrProtectedEntity
	}
	name = strings.TrimSpace(name)
	if isOrganic(name) {
		return ErrProtectedEntity
	}

	if err := repo.UpdateEntity(ctx, s.DB, id, name, strings.TrimSpace(typ)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntityNotFound
		}
		if isDuplicate(err) {
			return ErrDuplicateEntityName
		}
		return err
	}
	return nil
}

// Delete removes an entity. The organic entity and entities still owning
// submissions are protected; both cases surface as conflicts with no
// mutation.
func (s *EntityService) Delete(ctx context.Context, id uint) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if isOrganic(e.Name) {
		return ErrProtectedEntity
	}

	n, err := repo.CountSubmissionsForEntity(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrEntityInUse
	}

	if err := repo.DeleteEntity(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntityNotFound
		}
		return err
	}
	return nil
}

// isDuplicate attempts to detect unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
