// Package services – SubmissionService
//
// This file implements the ingestion and bulk-mutation use-cases for
// submissions. Ingestion persists a submission with its responses in one
// transaction, resolving "database"-typed field values through the lookup
// cascade inline; a cascade miss keeps the raw label and never fails the
// submission. Bulk operations (delete, move between forms, UTM edits) are
// multi-statement sequences wrapped in a single transaction and rolled back
// whole on any error.
package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-form-backend/internal/dedup"
	"github.com/tbourn/go-form-backend/internal/domain"
	"github.com/tbourn/go-form-backend/internal/lookup"
	"github.com/tbourn/go-form-backend/internal/repo"
)

// SubmissionService coordinates submission ingestion, listing, and bulk
// mutations.
type SubmissionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// Now returns the current time; overridable in tests. Defaults to
	// time.Now when nil.
	Now func() time.Time
}

// now returns the service clock reading in UTC.
func (s *SubmissionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Ingest persists one form submission.
//
// Semantics:
//   - formCode selects the form; unknown codes yield ErrFormNotFound.
//   - values maps field names to raw submitted values. Names with no
//     matching field on the form are ignored; an entirely empty payload is
//     ErrEmptySubmission.
//   - For each field of type "database", the raw label runs through the
//     lookup cascade against the field's allowlisted source table. A match
//     stores the matched row id as the response value; a miss stores the
//     raw label unchanged (best-effort, never an error). A match on the
//     "entity" source additionally sets the submission's owning entity.
//   - The duplicated flag is not touched here; duplicates are only detected
//     by an explicit rescan.
//
// The submission and all responses are inserted in a single transaction.
func (s *SubmissionService) Ingest(ctx context.Context, formCode string, values map[string]string) (*domain.Submission, error) {
	ctx, span := otel.Tracer("services").Start(ctx, "SubmissionService.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("form.code", formCode))

	if len(values) == 0 {
		return nil, ErrEmptySubmission
	}

	form, err := repo.GetFormByCode(ctx, s.DB, formCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}

	fields, err := repo.ListFields(ctx, s.DB, form.ID)
	if err != nil {
		return nil, err
	}

	sub := &domain.Submission{
		FormID:    form.ID,
		Timestamp: s.now(),
	}

	for _, f := range fields {
		raw, ok := values[f.FieldName]
		if !ok {
			continue
		}
		stored := raw

		if f.FieldType == "database" {
			if src, ok := lookup.ParseSource(f.SourceTable); ok {
				candidates, err := repo.ListCandidates(ctx, s.DB, src)
				if err != nil {
					return nil, err
				}
				if m, ok := lookup.Resolve(raw, candidates); ok {
					stored = strconv.FormatUint(uint64(m.ID), 10)
					if src == lookup.SourceEntity {
						id := m.ID
						sub.EntityID = &id
					}
				}
			}
		}

		v := stored
		sub.Responses = append(sub.Responses, domain.Response{
			FieldID: f.ID,
			Value:   &v,
		})
	}

	if len(sub.Responses) == 0 {
		return nil, ErrEmptySubmission
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return repo.CreateSubmission(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListPage returns a page of a form's submissions and the total count. When
// clean is true the page is filtered to the presentation-only deduplicated
// read model (latest per form-code|phone|email key); persisted flags are
// not consulted or modified.
func (s *SubmissionService) ListPage(ctx context.Context, formID uint, page, pageSize int, clean bool) ([]domain.Submission, int64, error) {
	if _, err := repo.GetForm(ctx, s.DB, formID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrFormNotFound
		}
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if clean {
		rows, err := repo.ListCleanKeyRows(ctx, s.DB, []uint{formID})
		if err != nil {
			return nil, 0, err
		}
		ids := dedup.Canonical(rows)
		total := int64(len(ids))
		if offset >= len(ids) {
			return []domain.Submission{}, total, nil
		}
		end := offset + pageSize
		if end > len(ids) {
			end = len(ids)
		}
		items, err := repo.ListSubmissionsByIDs(ctx, s.DB, ids[offset:end])
		if err != nil {
			return nil, 0, err
		}
		return items, total, nil
	}

	total, err := repo.CountSubmissions(ctx, s.DB, formID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Submission{}, 0, nil
	}
	items, err := repo.ListSubmissionsPage(ctx, s.DB, formID, offset, pageSize)
	return items, total, err
}

// BulkDelete removes the selected submissions of a form together with their
// responses, atomically. Returns the number of submissions deleted.
func (s *SubmissionService) BulkDelete(ctx context.Context, formID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoSelection
	}
	if _, err := repo.GetForm(ctx, s.DB, formID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrFormNotFound
		}
		return 0, err
	}

	var deleted int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.DeleteSubmissions(ctx, tx, formID, ids)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	})
	return deleted, err
}

// Move re-parents the selected submissions to another form. Responses whose
// field has no same-named counterpart on the target form are dropped; the
// rest are remapped to the target's fields. The whole sequence is one
// transaction. Returns the number of submissions moved.
func (s *SubmissionService) Move(ctx context.Context, targetFormID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoSelection
	}
	if _, err := repo.GetForm(ctx, s.DB, targetFormID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrFormNotFound
		}
		return 0, err
	}

	var moved int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteResponsesForMissingFields(ctx, tx, targetFormID, ids); err != nil {
			return err
		}
		if err := repo.RemapResponsesToForm(ctx, tx, targetFormID, ids); err != nil {
			return err
		}
		n, err := repo.ReparentSubmissions(ctx, tx, targetFormID, ids)
		if err != nil {
			return err
		}
		moved = n
		return nil
	})
	return moved, err
}

// UTMPatch carries the UTM columns of a bulk edit; nil fields are left
// untouched.
type UTMPatch struct {
	Source   *string `json:"utm_source,omitempty"`
	Medium   *string `json:"utm_medium,omitempty"`
	Campaign *string `json:"utm_campaign,omitempty"`
	Content  *string `json:"utm_content,omitempty"`
}

// BulkSetUTM applies the patch to the UTM rows of the selected submissions
// in one transaction. Returns the number of UTM rows updated.
func (s *SubmissionService) BulkSetUTM(ctx context.Context, ids []uint, patch UTMPatch) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoSelection
	}

	cols := map[string]any{}
	if patch.Source != nil {
		cols["source"] = *patch.Source
	}
	if patch.Medium != nil {
		cols["medium"] = *patch.Medium
	}
	if patch.Campaign != nil {
		cols["campaign"] = *patch.Campaign
	}
	if patch.Content != nil {
		cols["content"] = *patch.Content
	}
	if len(cols) == 0 {
		return 0, nil
	}

	var updated int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.UpdateUTMLinks(ctx, tx, ids, cols)
		if err != nil {
			return err
		}
		updated = n
		return nil
	})
	return updated, err
}
