// Package services – DedupService
//
// This file implements the duplicate flag maintainer: the admin-triggered
// rescan that makes the persisted duplicated flag of every submission in a
// form consistent with the resolver's output. The whole
// reset-recompute-flag sequence runs in one database transaction so
// concurrent readers never observe a form with all flags cleared and none
// yet re-set. New submissions are not flagged live; flags only change when
// a rescan runs.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-form-backend/internal/dedup"
	"github.com/tbourn/go-form-backend/internal/domain"
	"github.com/tbourn/go-form-backend/internal/repo"
)

// DedupService runs duplicate rescans and manages per-form duplicate-key
// settings.
type DedupService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// RescanResult summarizes one duplicate rescan of a form.
type RescanResult struct {
	// Scanned is the number of submissions examined.
	Scanned int `json:"scanned"`
	// Flagged is the number of submissions marked duplicated.
	Flagged int `json:"flagged"`
	// KeyFields are the field names the key was built from.
	KeyFields []string `json:"key_fields"`
	// UsedFallback is true when no duplicate settings were configured and
	// the phone/email fallback was applied.
	UsedFallback bool `json:"used_fallback"`
}

// KeyFields returns the field names configured for duplicate detection on a
// form, falling back to phone/email when no settings exist.
func (s *DedupService) KeyFields(ctx context.Context, formID uint) ([]string, bool, error) {
	fields, err := repo.ListDuplicateSettings(ctx, s.DB, formID)
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return append([]string(nil), dedup.FallbackKeyFields...), true, nil
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.FieldName
	}
	return names, false, nil
}

// Rescan recomputes the duplicated flag for every submission of formID.
//
// Semantics:
//   - All flags for the form are reset, groups are recomputed from the
//     configured key fields (or the phone/email fallback), and every
//     non-canonical member of a non-empty-key group is re-flagged.
//   - The sequence is atomic: on any failure the transaction rolls back and
//     no partial flag state is visible.
//   - Idempotent: a second run with unchanged data produces identical flags.
//
// Errors: ErrFormNotFound when the form does not exist; otherwise the
// underlying DB error.
func (s *DedupService) Rescan(ctx context.Context, formID uint) (*RescanResult, error) {
	ctx, span := otel.Tracer("services").Start(ctx, "DedupService.Rescan")
	defer span.End()
	span.SetAttributes(attribute.Int("form.id", int(formID)))

	if _, err := repo.GetForm(ctx, s.DB, formID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}

	keyFields, usedFallback, err := s.KeyFields(ctx, formID)
	if err != nil {
		return nil, err
	}

	var result *RescanResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.ClearDuplicateFlags(ctx, tx, formID); err != nil {
			return err
		}

		rows, err := repo.ListKeyRows(ctx, tx, formID, keyFields)
		if err != nil {
			return err
		}

		resolved := dedup.Resolve(rows)
		var dupIDs []uint
		for id, r := range resolved {
			if r.IsDuplicate {
				dupIDs = append(dupIDs, id)
			}
		}
		if err := repo.FlagDuplicates(ctx, tx, dupIDs); err != nil {
			return err
		}

		result = &RescanResult{
			Scanned:      len(rows),
			Flagged:      len(dupIDs),
			KeyFields:    keyFields,
			UsedFallback: usedFallback,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("dedup.scanned", result.Scanned),
		attribute.Int("dedup.flagged", result.Flagged),
	)
	return result, nil
}

// UpdateSettings replaces the duplicate-key field set of a form. Every id
// must be a field of that form; an empty list clears the settings and
// reverts the resolver to the phone/email fallback.
func (s *DedupService) UpdateSettings(ctx context.Context, formID uint, fieldIDs []uint) error {
	if _, err := repo.GetForm(ctx, s.DB, formID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFormNotFound
		}
		return err
	}

	fields, err := repo.ListFields(ctx, s.DB, formID)
	if err != nil {
		return err
	}
	known := make(map[uint]struct{}, len(fields))
	for _, f := range fields {
		known[f.ID] = struct{}{}
	}
	for _, id := range fieldIDs {
		if _, ok := known[id]; !ok {
			return ErrFieldNotFound
		}
	}

	return repo.ReplaceDuplicateSettings(ctx, s.DB, formID, fieldIDs)
}

// Settings returns the fields currently configured for duplicate detection
// on a form (empty when the fallback applies).
func (s *DedupService) Settings(ctx context.Context, formID uint) ([]domain.Field, error) {
	if _, err := repo.GetForm(ctx, s.DB, formID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return repo.ListDuplicateSettings(ctx, s.DB, formID)
}
