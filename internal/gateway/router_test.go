package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hookyard/hookyard/internal/config"
	"github.com/hookyard/hookyard/internal/db"
	"github.com/hookyard/hookyard/internal/models"
	"github.com/hookyard/hookyard/internal/workerpool"
	"gorm.io/gorm"
)

func newMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("db.Connect() error = %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("db.AutoMigrate() error = %v", err)
	}
	return gdb
}

func TestHandleWebhook_RoutesToPRReviewer(t *testing.T) {
	var gotEventType string
	dispatched := make(chan struct{}, 1)

	prReviewer := NewInProcessDispatcher("pr-reviewer", func(ctx context.Context, eventType string, payload []byte) error {
		gotEventType = eventType
		dispatched <- struct{}{}
		return nil
	})

	gdb := newMigratedDB(t)
	opts := Options{
		DB:          gdb,
		Dispatchers: Dispatchers{PRReviewer: prReviewer},
	}

	router := NewRouter(opts)
	srv := httptest.NewServer(router)
	defer srv.Close()

	body := []byte(`{"action":"opened","repository":{"full_name":"acme/backend"},"pull_request":{"number":5}}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-GitHub-Delivery", "delivery-1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /webhook error = %v", err)
	}
	defer resp.Body.Close()

	select {
	case <-dispatched:
	case <-time.After(time.Second):
		t.Fatal("pr-reviewer dispatcher was not invoked")
	}
	if gotEventType != "pull_request" {
		t.Errorf("eventType = %q, want %q", gotEventType, "pull_request")
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var rows []models.WebhookDelivery
	if err := gdb.Find(&rows).Error; err != nil {
		t.Fatalf("query deliveries: %v", err)
	}
	if len(rows) != 1 || rows[0].DeliveryID != "delivery-1" {
		t.Errorf("deliveries = %+v, want one row with delivery_id=delivery-1", rows)
	}
}

func TestHandleWebhook_Ping(t *testing.T) {
	gdb := newMigratedDB(t)
	router := NewRouter(Options{DB: gdb})
	srv := httptest.NewServer(router)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(`{}`))
	req.Header.Set("X-GitHub-Event", "ping")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /webhook error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "success" || body["event"] != "ping" {
		t.Errorf("body = %+v, want {status: success, event: ping}", body)
	}
}

func TestHandleWebhook_UnsupportedEventIsIgnored(t *testing.T) {
	gdb := newMigratedDB(t)
	router := NewRouter(Options{DB: gdb})
	srv := httptest.NewServer(router)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(`{}`))
	req.Header.Set("X-GitHub-Event", "star")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /webhook error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ignored" {
		t.Errorf("status = %v, want \"ignored\"", body["status"])
	}
}

func TestHandleWebhook_DownstreamQueueFullReturns503(t *testing.T) {
	prReviewer := NewInProcessDispatcher("pr-reviewer", func(ctx context.Context, eventType string, payload []byte) error {
		return workerpool.ErrQueueFull
	})

	gdb := newMigratedDB(t)
	router := NewRouter(Options{DB: gdb, Dispatchers: Dispatchers{PRReviewer: prReviewer}})
	srv := httptest.NewServer(router)
	defer srv.Close()

	body := []byte(`{"action":"opened","repository":{"full_name":"acme/backend"},"pull_request":{"number":5}}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", "pull_request")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /webhook error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHandleWebhook_DownstreamUnreachableReturns502(t *testing.T) {
	prReviewer := NewHTTPDispatcher("pr-reviewer", "http://127.0.0.1:1", time.Millisecond)

	gdb := newMigratedDB(t)
	router := NewRouter(Options{DB: gdb, Dispatchers: Dispatchers{PRReviewer: prReviewer}})
	srv := httptest.NewServer(router)
	defer srv.Close()

	body := []byte(`{"action":"opened","repository":{"full_name":"acme/backend"},"pull_request":{"number":5}}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", "pull_request")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /webhook error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	gdb := newMigratedDB(t)
	opts := Options{DB: gdb, WebhookSecret: "topsecret"}
	router := NewRouter(opts)
	srv := httptest.NewServer(router)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(`{}`))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	req.Header.Set("X-GitHub-Event", "pull_request")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /webhook error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHandleDashboard_AggregatesWorkerResponses(t *testing.T) {
	prWorker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer prWorker.Close()

	gdb := newMigratedDB(t)
	opts := Options{
		DB:             gdb,
		PRReviewerURL:  prWorker.URL,
		DashboardTimeout: time.Second,
	}
	router := NewRouter(opts)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/dashboard")
	if err != nil {
		t.Fatalf("GET /api/dashboard error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := body["pr_review"]; !ok {
		t.Errorf("response missing pr_review key: %+v", body)
	}
}

func TestHandleDashboard_WorkerTimeoutReportsError(t *testing.T) {
	slowWorker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer slowWorker.Close()

	gdb := newMigratedDB(t)
	opts := Options{
		DB:               gdb,
		IssueCopierURL:   slowWorker.URL,
		DashboardTimeout: 10 * time.Millisecond,
	}
	router := NewRouter(opts)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/dashboard")
	if err != nil {
		t.Fatalf("GET /api/dashboard error = %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)

	entry, ok := body["issue_copier"].(map[string]interface{})
	if !ok {
		t.Fatalf("issue_copier entry = %v, want a map with an error key", body["issue_copier"])
	}
	if _, ok := entry["error"]; !ok {
		t.Errorf("expected error key for timed-out worker, got %+v", entry)
	}
}

func TestHandleDashboard_RequiresAuthWhenPasswordSet(t *testing.T) {
	gdb := newMigratedDB(t)
	opts := Options{DB: gdb, WebPassword: "secret", WebUsername: "admin"}
	router := NewRouter(opts)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/dashboard")
	if err != nil {
		t.Fatalf("GET /api/dashboard error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without credentials", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/dashboard", nil)
	req.SetBasicAuth("admin", "secret")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authenticated GET error = %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 with correct credentials", resp2.StatusCode)
	}
}

func TestHealthEndpoint_ReportsAuthEnabled(t *testing.T) {
	gdb := newMigratedDB(t)
	router := NewRouter(Options{DB: gdb, WebPassword: "secret"})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["auth_enabled"] != true {
		t.Errorf("auth_enabled = %v, want true", body["auth_enabled"])
	}
}
