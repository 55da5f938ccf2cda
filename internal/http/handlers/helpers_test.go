package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-form-backend/internal/domain"
	"github.com/tbourn/go-form-backend/internal/repo"
	"github.com/tbourn/go-form-backend/internal/services"
)

// newTestAPI wires real services over an in-memory database behind the same
// routes the server registers, minus the cross-cutting middleware.
func newTestAPI(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:handlers?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Form{}, &domain.Field{}, &domain.Submission{}, &domain.Response{},
		&domain.DuplicateSetting{}, &domain.Entity{}, &domain.User{},
		&domain.UniMapping{}, &domain.AllocationRequest{}, &domain.UTMLink{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	for _, tbl := range []string{
		"allocation_requests", "utm_links", "responses", "submissions",
		"duplicate_settings", "fields", "forms", "entities", "users", "uni_mappings",
	} {
		db.Exec("DELETE FROM " + tbl)
	}
	if err := repo.SeedOrganicEntity(db); err != nil {
		t.Fatalf("seed organic: %v", err)
	}

	h := New(
		&services.SubmissionService{DB: db},
		&services.DedupService{DB: db},
		&services.EntityService{DB: db},
		&services.AllocationService{DB: db},
	)

	r := gin.New()
	r.POST("/submissions", h.IngestSubmission)
	r.GET("/forms/:id/submissions", h.ListFormSubmissions)
	r.POST("/forms/:id/submissions/bulk-delete", h.BulkDeleteSubmissions)
	r.POST("/submissions/move", h.MoveSubmissions)
	r.PUT("/submissions/utm", h.BulkEditUTM)
	r.POST("/forms/:id/duplicates/rescan", h.RescanDuplicates)
	r.GET("/forms/:id/duplicates/settings", h.GetDuplicateSettings)
	r.PUT("/forms/:id/duplicates/settings", h.PutDuplicateSettings)
	r.GET("/entities", h.ListEntities)
	r.POST("/entities", h.CreateEntity)
	r.GET("/entities/:id", h.GetEntity)
	r.PUT("/entities/:id", h.UpdateEntity)
	r.DELETE("/entities/:id", h.DeleteEntity)
	r.GET("/allocations/queue", h.ListAllocationQueue)
	r.PUT("/submissions/:id/entity", h.AssignEntity)
	r.POST("/allocation-requests", h.CreateAllocationRequest)
	r.GET("/allocation-requests", h.ListAllocationRequests)
	r.POST("/allocation-requests/:id/approve", h.ApproveAllocationRequest)
	r.POST("/allocation-requests/:id/reject", h.RejectAllocationRequest)

	return r, db
}

// doJSON performs a request with an optional JSON body and returns the recorder.
func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decodeBody unmarshals the response into a generic map for assertions.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return out
}

// seedTestForm creates a form with the given fields and returns it with a
// name-indexed field map.
func seedTestForm(t *testing.T, db *gorm.DB, code string, fields ...domain.Field) (domain.Form, map[string]domain.Field) {
	t.Helper()
	form := domain.Form{Code: code, Name: code}
	if err := db.Create(&form).Error; err != nil {
		t.Fatalf("seed form: %v", err)
	}
	byName := make(map[string]domain.Field, len(fields))
	for i := range fields {
		fields[i].FormID = form.ID
		if err := db.Create(&fields[i]).Error; err != nil {
			t.Fatalf("seed field: %v", err)
		}
		byName[fields[i].FieldName] = fields[i]
	}
	return form, byName
}
