package apify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"clinic_reviews/internal/adapters/apify"
)

func TestClient_RunActor_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "run-sync-get-dataset-items") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			w.WriteHeader(502)
		default:
			w.WriteHeader(200)
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"reviewId": "r1", "stars": 5.0},
			})
		}
	}))
	defer ts.Close()

	cl, err := apify.New(ts.URL, "test-token", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	items, err := cl.ScrapeMapsReviews(ctx, "https://maps.example/x")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(items) != 1 || items[0]["reviewId"] != "r1" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_ForwardsActorInput(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var input map[string]any
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			t.Fatalf("decode input: %v", err)
		}
		if input["companyDomain"] != "clinic.example" {
			t.Fatalf("input = %+v", input)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer ts.Close()

	cl, _ := apify.New(ts.URL, "t", 100)
	if _, err := cl.ScrapeTrustpilotReviews(context.Background(), "clinic.example"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(401)
	}))
	defer ts.Close()

	cl, _ := apify.New(ts.URL, "bad", 100)
	_, err := cl.ScrapeMapsReviews(context.Background(), "https://maps.example/x")
	if err != apify.ErrUnauthorized {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestClient_RequiresToken(t *testing.T) {
	if _, err := apify.New("", "", 1); err == nil {
		t.Fatal("missing token accepted")
	}
}
