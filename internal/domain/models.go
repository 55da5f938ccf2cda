// Package domain defines the persistence models for forms, submissions,
// entities, and allocation requests. These types are mapped with GORM and
// form the core data layer of the form-admin application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// AllocationRequest lifecycle states.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// OrganicEntityName is the reserved name of the fallback entity that marks a
// submission as "no real owner assigned". The row is protected: it can be
// neither edited nor deleted, and matching is case-insensitive.
const OrganicEntityName = "organic"

// Form is a named definition of fields presented to submitters. The public
// Code is the identifier embedded in published form URLs and used by the
// ingestion endpoint; the numeric ID is internal.
//
// Fields:
//   - ID: auto-increment primary key.
//   - Code: unique public form code (e.g. "recruitment-2026").
//   - Name: human-readable form title shown in the dashboard.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Form struct {
	ID        uint           `json:"id"         gorm:"primaryKey"`
	Code      string         `json:"code"       gorm:"type:varchar(64);not null;uniqueIndex:ux_form_code"`
	Name      string         `json:"name"       gorm:"type:varchar(255);not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Form.
func (Form) TableName() string { return "forms" }

// Field is one input of a Form. FieldName is the stable join key used for
// duplicate detection and lookup resolution (e.g. "phone", "email", "uni").
// A FieldType of "database" means the submitted raw label must be resolved
// against the reference table named by SourceTable before storage.
type Field struct {
	ID        uint           `json:"id"          gorm:"primaryKey"`
	FormID    uint           `json:"form_id"     gorm:"not null;index:idx_form_fields"`
	FieldName string         `json:"field_name"  gorm:"type:varchar(128);not null;index"`
	FieldType string         `json:"field_type"  gorm:"type:varchar(32);not null;default:'text'"`
	// SourceTable names the allowlisted reference table for "database" fields
	// ("entity", "user" or "uni_mapping"); empty for plain fields.
	SourceTable string         `json:"source_table,omitempty" gorm:"type:varchar(32)"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Form is the owning form definition.
	Form Form `json:"-" gorm:"foreignKey:FormID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Field.
func (Field) TableName() string { return "fields" }

// Submission is one instance of filled-in form data.
//
// Mutable state after creation is limited to two columns: EntityID (set by
// the allocator) and Duplicated (recomputed by the duplicate rescan).
// Timestamp is the creation time and never changes; the duplicate resolver
// ranks group members by it, breaking exact ties by highest ID.
type Submission struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	FormID    uint      `json:"form_id"    gorm:"not null;index:idx_form_submissions"`
	Timestamp time.Time `json:"timestamp"  gorm:"not null;index"`
	// EntityID is nil while unallocated; it may also point at the reserved
	// "organic" entity, which the allocation queue treats as unallocated.
	EntityID   *uint      `json:"entity_id,omitempty" gorm:"index"`
	Duplicated bool       `json:"duplicated" gorm:"not null;default:false;index"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Form      Form       `json:"-" gorm:"foreignKey:FormID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Responses []Response `json:"responses,omitempty" gorm:"foreignKey:SubmissionID"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "submissions" }

// Response holds a single field value within a submission. A submission has
// at most one response per field (unique index). Value is nullable: a nil
// value records that the field was presented but left unanswered.
type Response struct {
	ID           uint      `json:"id"            gorm:"primaryKey"`
	SubmissionID uint      `json:"submission_id" gorm:"not null;index;uniqueIndex:ux_response_submission_field"`
	FieldID      uint      `json:"field_id"      gorm:"not null;index;uniqueIndex:ux_response_submission_field"`
	Value        *string   `json:"value"         gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at"`

	// Submission is the parent; responses are cascade-deleted with it.
	Submission Submission `json:"-" gorm:"foreignKey:SubmissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Field      Field      `json:"-" gorm:"foreignKey:FieldID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Response.
func (Response) TableName() string { return "responses" }

// DuplicateSetting marks one field as participating in duplicate-key
// computation for a form. When a form has no settings the resolver falls
// back to the fields literally named "phone" and "email".
type DuplicateSetting struct {
	ID      uint `json:"id"       gorm:"primaryKey"`
	FormID  uint `json:"form_id"  gorm:"not null;index;uniqueIndex:ux_dupsetting_form_field"`
	FieldID uint `json:"field_id" gorm:"not null;uniqueIndex:ux_dupsetting_form_field"`

	Form  Form  `json:"-" gorm:"foreignKey:FormID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Field Field `json:"-" gorm:"foreignKey:FieldID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DuplicateSetting.
func (DuplicateSetting) TableName() string { return "duplicate_settings" }

// Entity is an organizational unit that can own submissions (e.g. a local
// chapter). Name is unique; the reserved name "organic" designates the
// fallback entity and is protected from edits and deletion.
type Entity struct {
	ID        uint           `json:"entity_id"  gorm:"primaryKey"`
	Name      string         `json:"name"       gorm:"type:varchar(128);not null;uniqueIndex:ux_entity_name"`
	Type      string         `json:"type"       gorm:"type:varchar(32);not null;default:'local'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Entity.
func (Entity) TableName() string { return "entities" }

// AllocationRequest asks that a submission be attributed to a target entity.
// It is created by a non-privileged actor and resolved (approved or
// rejected) by a privileged one. At most one pending request may exist per
// submission at a time; the service layer enforces this inside the creating
// transaction.
type AllocationRequest struct {
	ID           uint       `json:"id"            gorm:"primaryKey"`
	SubmissionID uint       `json:"submission_id" gorm:"not null;index"`
	EntityID     uint       `json:"entity_id"     gorm:"not null"`
	Status       string     `json:"status"        gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','approved','rejected');index"`
	RequestedBy  string     `json:"requested_by"  gorm:"type:varchar(64);not null"`
	ResolvedBy   string     `json:"resolved_by,omitempty" gorm:"type:varchar(64)"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`

	Submission Submission `json:"-" gorm:"foreignKey:SubmissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Entity     Entity     `json:"-" gorm:"foreignKey:EntityID;references:ID"`
}

// TableName returns the database table name for AllocationRequest.
func (AllocationRequest) TableName() string { return "allocation_requests" }

// Pending reports whether the request is still awaiting resolution.
func (r AllocationRequest) Pending() bool { return r.Status == RequestPending }

// User is a staff record referenced by "database"-typed fields with the
// "user" source table. Managed through plain CRUD; listed here because the
// lookup cascade matches submitted labels against Name.
type User struct {
	ID        uint           `json:"id"    gorm:"primaryKey"`
	Name      string         `json:"name"  gorm:"type:varchar(128);not null;index"`
	Email     string         `json:"email" gorm:"type:varchar(255);uniqueIndex:ux_user_email"`
	Role      string         `json:"role"  gorm:"type:varchar(32);not null;default:'member'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// UniMapping maps free-text university names to stable ids. It is the
// reference table behind the "uni_mapping" lookup source.
type UniMapping struct {
	ID      uint   `json:"id"       gorm:"primaryKey"`
	UniName string `json:"uni_name" gorm:"type:varchar(255);not null;index"`
}

// TableName returns the database table name for UniMapping.
func (UniMapping) TableName() string { return "uni_mappings" }

// UTMLink records campaign attribution captured alongside a submission.
// Rows are mutated only through the bulk UTM edit operation.
type UTMLink struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	SubmissionID *uint     `json:"submission_id,omitempty" gorm:"index"`
	Source       string    `json:"utm_source"   gorm:"type:varchar(128)"`
	Medium       string    `json:"utm_medium"   gorm:"type:varchar(128)"`
	Campaign     string    `json:"utm_campaign" gorm:"type:varchar(128)"`
	Content      string    `json:"utm_content"  gorm:"type:varchar(128)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Submission *Submission `json:"-" gorm:"foreignKey:SubmissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UTMLink.
func (UTMLink) TableName() string { return "utm_links" }
