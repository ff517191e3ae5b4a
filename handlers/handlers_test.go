package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pricewatch/models"
	"pricewatch/repository"
	"pricewatch/scheduler"
	"pricewatch/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type stubFetcher struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
}

func (f *stubFetcher) FetchOne(_ context.Context, url string) (models.ExtractedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if url == "not a url" {
		return models.ExtractedRecord{}, models.NewFetchError(models.KindInvalidURL, url, errors.New("bad"))
	}
	price, ok := f.prices[url]
	if !ok {
		return models.ExtractedRecord{}, models.NewFetchError(models.KindNoData, url, errors.New("status 404"))
	}
	return models.ExtractedRecord{Name: "Blender", Price: price, Currency: "BRL", PriceFound: price > 0}, nil
}

func (f *stubFetcher) set(url string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[url] = price
}

func newTestServer(t *testing.T) (*mux.Router, *stubFetcher) {
	t.Helper()
	store, err := repository.NewBoltStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fetcher := &stubFetcher{prices: map[string]float64{}}
	portfolio := services.NewPortfolio(store, zap.NewNop())
	orch := scheduler.NewOrchestrator(fetcher, portfolio, nil, zap.NewNop())
	tm := scheduler.NewTaskManager(orch, portfolio, 1, zap.NewNop())
	t.Cleanup(tm.Stop)

	r := mux.NewRouter()
	NewHandlers(fetcher, portfolio, tm, nil, 1<<20, zap.NewNop()).RegisterRoutes(r)
	return r, fetcher
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestPreviewErrors(t *testing.T) {
	r, _ := newTestServer(t)

	tests := []struct {
		url    string
		status int
		kind   string
	}{
		{"not a url", http.StatusBadRequest, "invalid_url"},
		{"https://shop.com/missing", http.StatusBadGateway, "no_data"},
	}
	for _, tt := range tests {
		rec := do(t, r, "POST", "/api/v1/preview", map[string]string{"url": tt.url})
		if rec.Code != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.url, tt.status, rec.Code)
			continue
		}
		var body map[string]string
		decodeBody(t, rec, &body)
		if body["kind"] != tt.kind {
			t.Errorf("%s: expected kind %s, got %s", tt.url, tt.kind, body["kind"])
		}
	}
}

func TestTrackItemAndDuplicate(t *testing.T) {
	r, fetcher := newTestServer(t)
	fetcher.set("https://shop.com/blender", 250)

	rec := do(t, r, "POST", "/api/v1/items", map[string]interface{}{"url": "https://shop.com/blender", "target_price": 200})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var item map[string]interface{}
	decodeBody(t, rec, &item)
	if item["current_price"] != 250.0 || item["below_target"] != false || item["percent_change"] != 0.0 {
		t.Errorf("unexpected item %v", item)
	}

	calls := fetcher.calls
	rec = do(t, r, "POST", "/api/v1/items", map[string]string{"url": "  HTTPS://SHOP.COM/BLENDER "})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate, got %d", rec.Code)
	}
	if fetcher.calls != calls {
		t.Error("duplicate should be rejected before fetching")
	}
}

func TestTrackItemWithoutPrice(t *testing.T) {
	r, fetcher := newTestServer(t)
	fetcher.set("https://shop.com/soldout", 0)

	rec := do(t, r, "POST", "/api/v1/items", map[string]string{"url": "https://shop.com/soldout"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestItemLifecycle(t *testing.T) {
	r, fetcher := newTestServer(t)
	fetcher.set("https://shop.com/blender", 250)

	var created models.MonitoredItem
	decodeBody(t, do(t, r, "POST", "/api/v1/items", map[string]string{"url": "https://shop.com/blender"}), &created)

	rec := do(t, r, "PATCH", "/api/v1/items/"+created.ID, map[string]interface{}{"target_price": 260})
	var patched map[string]interface{}
	decodeBody(t, rec, &patched)
	if rec.Code != http.StatusOK || patched["below_target"] != true {
		t.Errorf("expected target reached, got %d %v", rec.Code, patched)
	}

	fetcher.set("https://shop.com/blender", 199.9)
	rec = do(t, r, "POST", "/api/v1/items/"+created.ID+"/refresh", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var task models.TaskSnapshot
	decodeBody(t, rec, &task)

	deadline := time.Now().Add(3 * time.Second)
	for task.Status != models.TaskStatusCompleted {
		if time.Now().After(deadline) {
			t.Fatalf("task did not complete, last status %s", task.Status)
		}
		time.Sleep(10 * time.Millisecond)
		decodeBody(t, do(t, r, "GET", "/api/v1/tasks/"+task.ID, nil), &task)
	}
	if task.Result == nil || len(task.Result.Dropped) != 1 {
		t.Fatalf("expected one drop in result, got %+v", task.Result)
	}

	var got models.MonitoredItem
	decodeBody(t, do(t, r, "GET", "/api/v1/items/"+created.ID, nil), &got)
	if got.CurrentPrice != 199.9 || len(got.PriceHistory) != 2 {
		t.Errorf("expected refreshed price, got %+v", got)
	}

	if rec := do(t, r, "DELETE", "/api/v1/items/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec := do(t, r, "GET", "/api/v1/items/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestTaskRoutes(t *testing.T) {
	r, _ := newTestServer(t)

	rec := do(t, r, "GET", "/api/v1/tasks/stats", nil)
	var stats map[string]interface{}
	decodeBody(t, rec, &stats)
	if rec.Code != http.StatusOK || stats["max_workers"] != 1.0 {
		t.Errorf("unexpected stats %d %v", rec.Code, stats)
	}

	if rec := do(t, r, "GET", "/api/v1/tasks/task_missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, r, "DELETE", "/api/v1/tasks/task_missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, r, "POST", "/api/v1/items/unknown/refresh", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown item, got %d", rec.Code)
	}
}

func TestSubscribeWithoutPush(t *testing.T) {
	r, _ := newTestServer(t)
	rec := do(t, r, "POST", "/api/v1/push/subscriptions", map[string]string{"endpoint": "https://push"})
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrDuplicateProduct, http.StatusConflict},
		{models.ErrItemNotFound, http.StatusNotFound},
		{models.NewFetchError(models.KindParsing, "u", nil), http.StatusUnprocessableEntity},
		{models.NewFetchError(models.KindTimeout, "u", nil), http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
