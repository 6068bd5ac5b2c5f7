package oracle_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"clinic_reviews/internal/adapters/oracle"
	"clinic_reviews/internal/domain"
)

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
}

func TestScoreSentiment_ParsesVerdicts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Fatalf("auth = %s", r.Header.Get("Authorization"))
		}
		chatReply(t, w, `{"11": {"staff_satisfaction": 3, "made_up_attribute": 2}, "12": {"facility": 0}}`)
	}))
	defer ts.Close()

	cl, err := oracle.New(ts.URL, "key", "grader-1", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	got, err := cl.ScoreSentiment(context.Background(), []domain.ReviewText{
		{ID: 11, Text: "lovely staff"},
		{ID: 12, Text: "dirty rooms"},
	}, domain.SentimentAttributes)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got[11][domain.AttrStaffSatisfaction] != 3 {
		t.Fatalf("verdicts = %+v", got)
	}
	if _, ok := got[11]["made_up_attribute"]; ok {
		t.Fatal("invented attributes must be dropped")
	}
	// explicit zero survives as an observation
	if v, ok := got[12][domain.AttrFacility]; !ok || v != 0 {
		t.Fatalf("zero verdict lost: %+v", got[12])
	}
}

func TestComplete_ComposesURLFromPrefixedBase(t *testing.T) {
	// a base that already carries the API prefix, as the Gemini
	// compatibility endpoint does, must resolve without a doubled version
	// segment
	mux := http.NewServeMux()
	mux.HandleFunc("/v1beta/openai/chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		chatReply(t, w, `{"1": true}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cl, err := oracle.New(ts.URL+"/v1beta/openai", "key", "grader-1", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, err := cl.ClassifyComplaints(context.Background(), []domain.ReviewText{{ID: 1, Text: "x"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !got[1] {
		t.Fatalf("verdicts = %+v", got)
	}
}

func TestScoreSentiment_OffScaleIsMalformed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		chatReply(t, w, `{"1": {"facility": 7}}`)
	}))
	defer ts.Close()

	cl, _ := oracle.New(ts.URL, "key", "grader-1", 100)
	_, err := cl.ScoreSentiment(context.Background(), []domain.ReviewText{{ID: 1, Text: "x"}}, domain.SentimentAttributes)
	if !errors.Is(err, domain.ErrOracleMalformed) {
		t.Fatalf("err = %v, want ErrOracleMalformed", err)
	}
}

func TestComplete_RateLimitIsTyped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(429)
	}))
	defer ts.Close()

	cl, _ := oracle.New(ts.URL, "key", "grader-1", 100)
	_, err := cl.ClassifyComplaints(context.Background(), []domain.ReviewText{{ID: 1, Text: "x"}})
	if !errors.Is(err, domain.ErrOracleRateLimited) {
		t.Fatalf("err = %v, want ErrOracleRateLimited", err)
	}
}

func TestComplete_ContentFilterIsTyped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": ""}, "finish_reason": "content_filter"},
			},
		})
	}))
	defer ts.Close()

	cl, _ := oracle.New(ts.URL, "key", "grader-1", 100)
	_, err := cl.ClassifyComplaints(context.Background(), []domain.ReviewText{{ID: 1, Text: "x"}})
	if !errors.Is(err, domain.ErrOracleContentFiltered) {
		t.Fatalf("err = %v, want ErrOracleContentFiltered", err)
	}
}

func TestComplete_RetriesTransientFailures(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(503)
			return
		}
		chatReply(t, w, `{"5": true}`)
	}))
	defer ts.Close()

	cl, _ := oracle.New(ts.URL, "key", "grader-1", 100)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := cl.ClassifyComplaints(ctx, []domain.ReviewText{{ID: 5, Text: "bad"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !got[5] {
		t.Fatalf("verdicts = %+v", got)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected retries, got %d calls", hits)
	}
}

func TestAssessResponses_EmptyInputSkipsCall(t *testing.T) {
	cl, _ := oracle.New("http://unused.example", "key", "grader-1", 100)
	got, err := cl.AssessResponses(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestNew_RequiresKeyAndModel(t *testing.T) {
	if _, err := oracle.New("http://x", "", "m", 1); err == nil {
		t.Fatal("missing key accepted")
	}
	if _, err := oracle.New("http://x", "k", "", 1); err == nil {
		t.Fatal("missing model accepted")
	}
}
