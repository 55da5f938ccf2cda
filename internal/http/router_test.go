package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-form-backend/internal/config"
	"github.com/tbourn/go-form-backend/internal/domain"
	"github.com/tbourn/go-form-backend/internal/http/middleware"
	"github.com/tbourn/go-form-backend/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+dsn+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := repo.SeedOrganicEntity(db); err != nil {
		t.Fatalf("seed organic: %v", err)
	}
	return db
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   50,
		IngestRPS:   100,
		IngestBurst: 50,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // allow-all branch
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	db := newTestDB(t, "routerdb")

	RegisterRoutes(r, db, cfg)

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404 JSON envelope
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	var envelope map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil || envelope["code"] == nil {
		t.Fatalf("NoRoute should return the JSON error envelope: %s", w.Body.String())
	}

	// NoMethod → 405 (DELETE /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	db := newTestDB(t, "routerdb_cors")

	RegisterRoutes(r, db, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

// End-to-end through the full middleware stack: ingest, list, rescan.
func TestRegisterRoutes_IngestListRescan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	db := newTestDB(t, "routerdb_e2e")

	RegisterRoutes(r, db, cfg)

	form := domain.Form{Code: "e2e", Name: "e2e"}
	if err := db.Create(&form).Error; err != nil {
		t.Fatalf("seed form: %v", err)
	}
	field := domain.Field{FormID: form.ID, FieldName: "phone"}
	if err := db.Create(&field).Error; err != nil {
		t.Fatalf("seed field: %v", err)
	}

	for _, phone := range []string{"0901", "0901"} {
		w := postJSON(t, r, "/api/v1/submissions", map[string]any{
			"form_code": "e2e",
			"values":    map[string]string{"phone": phone},
		}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("ingest = %d: %s", w.Code, w.Body.String())
		}
		if rid := w.Header().Get("X-Request-ID"); rid == "" {
			t.Fatalf("expected X-Request-ID header to be set")
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/forms/%d/submissions", form.ID), nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d: %s", w.Code, w.Body.String())
	}
	var list map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("list body: %v", err)
	}
	if total := list["pagination"].(map[string]any)["total"].(float64); total != 2 {
		t.Fatalf("list total = %v, want 2", total)
	}

	w2 := postJSON(t, r, fmt.Sprintf("/api/v1/forms/%d/duplicates/rescan", form.ID), nil, nil)
	if w2.Code != http.StatusOK {
		t.Fatalf("rescan = %d: %s", w2.Code, w2.Body.String())
	}
	var res map[string]any
	if err := json.Unmarshal(w2.Body.Bytes(), &res); err != nil || res["flagged"].(float64) != 1 {
		t.Fatalf("rescan result unexpected: %s", w2.Body.String())
	}
}

// With auth enabled the admin API demands a session while ingestion stays open.
func TestRegisterRoutes_AuthGuardsAdminOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.Auth = config.AuthConfig{
		Enabled:    true,
		JWTSecret:  "router-test-secret",
		CookieName: "admin_session",
		SessionTTL: time.Hour,
	}
	db := newTestDB(t, "routerdb_auth")

	RegisterRoutes(r, db, cfg)

	form := domain.Form{Code: "guarded", Name: "guarded"}
	if err := db.Create(&form).Error; err != nil {
		t.Fatalf("seed form: %v", err)
	}
	field := domain.Field{FormID: form.ID, FieldName: "phone"}
	if err := db.Create(&field).Error; err != nil {
		t.Fatalf("seed field: %v", err)
	}

	// Public ingestion needs no session.
	w := postJSON(t, r, "/api/v1/submissions", map[string]any{
		"form_code": "guarded",
		"values":    map[string]string{"phone": "0901"},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("anonymous ingest = %d: %s", w.Code, w.Body.String())
	}

	// Admin routes reject anonymous callers.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/forms/%d/submissions", form.ID), nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous admin call = %d, want 401", rec.Code)
	}

	// ...and accept a signed session.
	token, err := middleware.IssueSession([]byte(cfg.Auth.JWTSecret), "ops", cfg.Auth.SessionTTL)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/forms/%d/submissions", form.ID), nil)
	req.AddCookie(&http.Cookie{Name: cfg.Auth.CookieName, Value: token})
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated admin call = %d: %s", rec.Code, rec.Body.String())
	}
}

// The ingestion endpoint carries its own token bucket.
func TestRegisterRoutes_IngestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.IngestRPS = 0
	cfg.IngestBurst = 2
	db := newTestDB(t, "routerdb_rate")

	RegisterRoutes(r, db, cfg)

	form := domain.Form{Code: "rated", Name: "rated"}
	if err := db.Create(&form).Error; err != nil {
		t.Fatalf("seed form: %v", err)
	}
	field := domain.Field{FormID: form.ID, FieldName: "phone"}
	if err := db.Create(&field).Error; err != nil {
		t.Fatalf("seed field: %v", err)
	}

	body := map[string]any{"form_code": "rated", "values": map[string]string{"phone": "0901"}}
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := postJSON(t, r, "/api/v1/submissions", body, nil)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated {
		t.Fatalf("first two ingests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third ingest should be throttled, got %v", codes)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
