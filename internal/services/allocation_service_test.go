package services

import (
	"context"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-form-backend/internal/domain"
)

type allocFixture struct {
	db      *gorm.DB
	svc     *AllocationService
	organic domain.Entity
	target  domain.Entity
	form    domain.Form
}

func newAllocFixture(t *testing.T) *allocFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:allocsvc?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Form{}, &domain.Entity{}, &domain.Submission{},
		&domain.Response{}, &domain.AllocationRequest{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	db.Exec("DELETE FROM allocation_requests")
	db.Exec("DELETE FROM responses")
	db.Exec("DELETE FROM submissions")
	db.Exec("DELETE FROM entities")
	db.Exec("DELETE FROM forms")

	fx := &allocFixture{db: db, svc: &AllocationService{DB: db}}
	fx.organic = domain.Entity{Name: "organic", Type: "fallback"}
	fx.target = domain.Entity{Name: "Hanoi", Type: "local"}
	fx.form = domain.Form{Code: "alloc", Name: "Alloc"}
	for _, m := range []any{&fx.organic, &fx.target, &fx.form} {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return fx
}

func (fx *allocFixture) submission(t *testing.T, entityID *uint) domain.Submission {
	t.Helper()
	s := domain.Submission{FormID: fx.form.ID, Timestamp: time.Now().UTC(), EntityID: entityID}
	if err := fx.db.Create(&s).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	return s
}

func queueIDs(t *testing.T, fx *allocFixture) map[uint]bool {
	t.Helper()
	items, _, err := fx.svc.Queue(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	ids := make(map[uint]bool, len(items))
	for _, s := range items {
		ids[s.ID] = true
	}
	return ids
}

func TestQueue_ContainsNilAndOrganicOnly(t *testing.T) {
	fx := newAllocFixture(t)

	unset := fx.submission(t, nil)
	organic := fx.submission(t, &fx.organic.ID)
	owned := fx.submission(t, &fx.target.ID)

	ids := queueIDs(t, fx)
	if !ids[unset.ID] || !ids[organic.ID] {
		t.Fatalf("queue must contain unallocated and organic submissions: %v", ids)
	}
	if ids[owned.ID] {
		t.Fatalf("owned submission must not appear in queue")
	}
}

func TestAssign_RemovesFromQueue(t *testing.T) {
	fx := newAllocFixture(t)
	s := fx.submission(t, &fx.organic.ID)

	if !queueIDs(t, fx)[s.ID] {
		t.Fatalf("submission should start in the queue")
	}
	if err := fx.svc.Assign(context.Background(), s.ID, fx.target.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if queueIDs(t, fx)[s.ID] {
		t.Fatalf("assigned submission must leave the queue")
	}

	var got domain.Submission
	if err := fx.db.First(&got, s.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.EntityID == nil || *got.EntityID != fx.target.ID {
		t.Fatalf("entity not set: %+v", got.EntityID)
	}
}

func TestAssign_FailsClosed(t *testing.T) {
	fx := newAllocFixture(t)
	s := fx.submission(t, nil)

	if err := fx.svc.Assign(context.Background(), s.ID, 9999); err != ErrEntityNotFound {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
	if err := fx.svc.Assign(context.Background(), 9999, fx.target.ID); err != ErrSubmissionNotFound {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}

	var got domain.Submission
	if err := fx.db.First(&got, s.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.EntityID != nil {
		t.Fatalf("failed assign must not mutate the submission")
	}
}

func TestRequest_OnePendingPerSubmission(t *testing.T) {
	fx := newAllocFixture(t)
	ctx := context.Background()
	s := fx.submission(t, nil)

	first, err := fx.svc.Request(ctx, s.ID, fx.target.ID, "member-1")
	if err != nil {
		t.Fatalf("first Request: %v", err)
	}
	if first.Status != domain.RequestPending {
		t.Fatalf("new request must be pending: %+v", first)
	}

	if _, err := fx.svc.Request(ctx, s.ID, fx.target.ID, "member-2"); err != ErrPendingRequestExists {
		t.Fatalf("expected ErrPendingRequestExists, got %v", err)
	}

	// After resolution a new request is allowed again.
	if err := fx.svc.Reject(ctx, first.ID, "admin"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := fx.svc.Request(ctx, s.ID, fx.target.ID, "member-2"); err != nil {
		t.Fatalf("request after resolution: %v", err)
	}
}

func TestApprove_SetsEntityAndResolves(t *testing.T) {
	fx := newAllocFixture(t)
	ctx := context.Background()
	s := fx.submission(t, &fx.organic.ID)

	req, err := fx.svc.Request(ctx, s.ID, fx.target.ID, "member-1")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := fx.svc.Approve(ctx, req.ID, "admin"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	var sub domain.Submission
	if err := fx.db.First(&sub, s.ID).Error; err != nil {
		t.Fatalf("load submission: %v", err)
	}
	if sub.EntityID == nil || *sub.EntityID != fx.target.ID {
		t.Fatalf("approval must set the submission entity: %+v", sub.EntityID)
	}

	var got domain.AllocationRequest
	if err := fx.db.First(&got, req.ID).Error; err != nil {
		t.Fatalf("load request: %v", err)
	}
	if got.Status != domain.RequestApproved || got.ResolvedBy != "admin" || got.ResolvedAt == nil {
		t.Fatalf("request not resolved properly: %+v", got)
	}

	// Double resolution is a conflict.
	if err := fx.svc.Approve(ctx, req.ID, "admin"); err != ErrRequestResolved {
		t.Fatalf("expected ErrRequestResolved, got %v", err)
	}
}

func TestReject_LeavesSubmissionUntouched(t *testing.T) {
	fx := newAllocFixture(t)
	ctx := context.Background()
	s := fx.submission(t, nil)

	req, err := fx.svc.Request(ctx, s.ID, fx.target.ID, "member-1")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := fx.svc.Reject(ctx, req.ID, "admin"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	var sub domain.Submission
	if err := fx.db.First(&sub, s.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if sub.EntityID != nil {
		t.Fatalf("rejection must not allocate: %+v", sub.EntityID)
	}
}

func TestResolve_UnknownRequest(t *testing.T) {
	fx := newAllocFixture(t)
	if err := fx.svc.Approve(context.Background(), 777, "admin"); err != ErrRequestNotFound {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}
