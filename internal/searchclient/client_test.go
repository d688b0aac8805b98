package searchclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"skyfeed/internal/config"
	"skyfeed/internal/model"
)

func newTestClient(ts *httptest.Server) *HTTPClient {
	c := NewHTTPClient(config.SearchConfig{BaseURL: ts.URL, Token: "test", RPS: 100, Burst: 100, MaxAttempts: 3, BaseBackoff: 10 * time.Millisecond})
	c.httpClient = ts.Client()
	return c
}

func TestDoWithRetryHandles429(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	resp, err := c.doWithRetry(context.Background(), req, "test")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestDoWithRetryGivesUp(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	if _, err := c.doWithRetry(context.Background(), req, "test"); !errors.Is(err, errExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestSearchByCategories(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/recent" {
			t.Errorf("path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("categories"); got != "music,sports" {
			t.Errorf("categories %q", got)
		}
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"s1","author_id":"u9","text":"hi","created_at":"2026-06-01T10:00:00Z",
			 "categories":[{"category":"art","percentage":30},{"category":"music","percentage":70}],
			 "public_metrics":{"like_count":4,"reply_count":1,"repost_count":2,"quote_count":0,"view_count":50}},
			{"id":"s2","author_id":"u8","text":"bad cats","created_at":"2026-06-01T09:00:00Z",
			 "categories":[{"category":"music","percentage":40}]},
			{"id":"","text":"dropped"}
		]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	got, err := c.SearchByCategories(context.Background(), []model.Category{model.CategoryMusic, model.CategorySports}, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tweets, got %d", len(got))
	}
	if got[0].Likes != 4 || got[0].Reposts != 2 || got[0].Views != 50 || len(got[0].Categories) != 2 {
		t.Fatalf("unexpected mapping: %+v", got[0])
	}
	if got[0].Categories[0].Category != model.CategoryMusic {
		t.Fatalf("shares not largest first: %+v", got[0].Categories)
	}
	if got[1].Categories != nil {
		t.Fatalf("invalid categories should be dropped: %+v", got[1].Categories)
	}
}

func TestSearchByCategoriesEmpty(t *testing.T) {
	c := NewHTTPClient(config.SearchConfig{BaseURL: "http://unused"})
	got, err := c.SearchByCategories(context.Background(), nil, 10)
	if err != nil || got != nil {
		t.Fatalf("got %v %v", got, err)
	}
}
