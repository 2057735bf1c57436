package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-group-notify/internal/config"
	"github.com/tbourn/go-group-notify/internal/domain"
	"github.com/tbourn/go-group-notify/internal/http/middleware"
	"github.com/tbourn/go-group-notify/internal/repo"
	"github.com/tbourn/go-group-notify/internal/services"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// --- engine fakes ---

type fakeDispatcher struct {
	sends  int
	loaded []string
}

func (f *fakeDispatcher) Send(_ context.Context, req domain.SendRequest) (*services.DispatchResult, error) {
	f.sends++
	return &services.DispatchResult{
		SendEventID: fmt.Sprintf("ev-%d", f.sends),
		Sent:        1,
		Results: []services.RecipientResult{{
			DeliveryID:  "d-1",
			RecipientID: "P1",
			PhoneNumber: "+15551230001",
			Role:        domain.RoleYouth,
			Success:     true,
			Content:     req.Body,
		}},
	}, nil
}

func (f *fakeDispatcher) SendDirect(_ context.Context, req domain.DirectRequest) (*services.DispatchResult, error) {
	f.sends++
	return &services.DispatchResult{
		Sent:    1,
		Results: []services.RecipientResult{{DeliveryID: "d-direct", RecipientID: req.PersonID, Success: true, Content: req.Body}},
	}, nil
}

func (f *fakeDispatcher) LoadResult(_ context.Context, id string) (*services.DispatchResult, error) {
	f.loaded = append(f.loaded, id)
	return &services.DispatchResult{SendEventID: id, Sent: 1}, nil
}

type fakeReconciler struct{ calls int }

func (f *fakeReconciler) ApplyCallback(_ context.Context, params url.Values, _, _ string) (*services.CallbackResult, error) {
	f.calls++
	return &services.CallbackResult{ProviderRef: params.Get("MessageSid"), Status: domain.StatusDelivered, Applied: true}, nil
}

type fakeHistory struct{}

func (fakeHistory) Summarize(context.Context, int, int, int) ([]services.HistoryEntry, error) {
	return []services.HistoryEntry{}, nil
}

func (fakeHistory) Since(days int) time.Time { return time.Now().UTC().AddDate(0, 0, -days) }

type fakeRates struct{}

func (fakeRates) Stats() services.RateStats { return services.RateStats{MaxPerHour: 500, Remaining: 500} }
func (fakeRates) RetryAfter() time.Duration { return 0 }

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      10,
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *fakeDispatcher, *fakeReconciler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	disp := &fakeDispatcher{}
	rec := &fakeReconciler{}
	RegisterRoutes(r, Deps{
		DB:         newTestDB(t),
		Dispatcher: disp,
		Reconciler: rec,
		History:    fakeHistory{},
		Rates:      fakeRates{},
	}, cfg)
	return r, disp, rec
}

func do(r *gin.Engine, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_Health_Metrics_Fallbacks(t *testing.T) {
	r, _, _ := newRouter(t, testConfig())

	w := do(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://app.test"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO = %q", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	w = do(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "notify_http_requests_total") {
		t.Fatalf("GET /metrics = %d", w.Code)
	}

	w = do(r, http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("NoRoute = %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/v1/groups/G1/messages", "", nil)
	if w.Code != http.StatusMethodNotAllowed || !strings.Contains(w.Body.String(), "method_not_allowed") {
		t.Fatalf("NoMethod = %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/swagger/index.html", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"https://ops.example.org"}}
	r, _, _ := newRouter(t, cfg)

	w := do(r, http.MethodGet, "/health", "", map[string]string{"Origin": "https://ops.example.org"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.org" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = do(r, http.MethodGet, "/health", "", map[string]string{"Origin": "https://evil.example"})
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin must not be allowed")
	}
}

func TestRegisterRoutes_APIRoutes(t *testing.T) {
	r, disp, _ := newRouter(t, testConfig())

	w := do(r, http.MethodPost, "/api/v1/people/P7/messages", `{"body":"hi"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("direct send = %d %s", w.Code, w.Body.String())
	}
	if disp.sends != 1 {
		t.Fatalf("sends = %d", disp.sends)
	}

	w = do(r, http.MethodGet, "/api/v1/dispatch/stats", "", nil)
	var st services.RateStats
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil || st.MaxPerHour != 500 {
		t.Fatalf("stats = %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/v1/messages/history", "", nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == "" {
		t.Fatalf("history = %d etag=%q", w.Code, w.Header().Get("ETag"))
	}

	w = do(r, http.MethodGet, "/api/v1/deliveries/missing", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown delivery = %d", w.Code)
	}
}

func TestRegisterRoutes_IdempotentReplayBypassesRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.0001
	cfg.RateBurst = 1
	r, disp, _ := newRouter(t, cfg)

	hdr := map[string]string{
		middleware.HeaderCallerID:       "coach-ana",
		middleware.HeaderIdempotencyKey: "practice-0412",
	}
	body := `{"body":"Practice moved to 6pm"}`

	w := do(r, http.MethodPost, "/api/v1/groups/G1/messages", body, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("first send = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatalf("first send must not be a replay")
	}

	// bucket is empty now; the replay must still be served
	w = do(r, http.MethodPost, "/api/v1/groups/G1/messages", body, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("replay = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("expected replay header")
	}
	if disp.sends != 1 || len(disp.loaded) != 1 || disp.loaded[0] != "ev-1" {
		t.Fatalf("sends=%d loaded=%v", disp.sends, disp.loaded)
	}

	w = do(r, http.MethodPost, "/api/v1/groups/G1/messages", body, map[string]string{middleware.HeaderCallerID: "coach-ana"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("un-keyed send after burst = %d", w.Code)
	}
}

func TestRegisterRoutes_WebhookExemptFromRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.0001
	cfg.RateBurst = 1
	r, _, rec := newRouter(t, cfg)

	form := url.Values{"MessageSid": {"SM1"}, "MessageStatus": {"delivered"}}.Encode()
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, config.WebhookPath, strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("callback %d = %d %s", i, w.Code, w.Body.String())
		}
	}
	if rec.calls != 3 {
		t.Fatalf("reconciler calls = %d", rec.calls)
	}

	_ = do(r, http.MethodGet, "/api/v1/dispatch/stats", "", nil)
	if w := do(r, http.MethodGet, "/api/v1/dispatch/stats", "", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("API should be limited, got %d", w.Code)
	}
}

func TestIdempotencyLookup_MissAndHit(t *testing.T) {
	db := newTestDB(t)
	lookup := idempotencyLookup(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if id, found, err := lookup(ctx, "coach-ana", "group:G1", "k1", now); err != nil || found || id != "" {
		t.Fatalf("miss: id=%q found=%v err=%v", id, found, err)
	}
	if _, err := repo.CreateIdempotency(ctx, db, "coach-ana", "group:G1", "k1", "ev-9", http.StatusOK, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if id, found, err := lookup(ctx, "coach-ana", "group:G1", "k1", now); err != nil || !found || id != "ev-9" {
		t.Fatalf("hit: id=%q found=%v err=%v", id, found, err)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
