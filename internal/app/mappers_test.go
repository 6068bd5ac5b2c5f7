package app

import (
	"testing"
	"time"

	"clinic_reviews/internal/domain"
)

func TestMapRawMaps_CurrentActorShape(t *testing.T) {
	item := map[string]any{
		"reviewId":        "gm-1",
		"name":            "A. Reviewer",
		"stars":           5.0,
		"text":            "great clinic",
		"language":        "en",
		"publishedAtDate": "2025-03-02T10:00:00Z",
		"isLocalGuide":    true,
	}
	rv := MapRawMaps(7, item)

	if rv.Platform != domain.PlatformMaps || rv.EstablishmentID != 7 {
		t.Fatalf("wrong identity: %+v", rv)
	}
	if rv.SourceID == nil || *rv.SourceID != "gm-1" {
		t.Fatalf("source id = %v", rv.SourceID)
	}
	if rv.Rating == nil || *rv.Rating != 5.0 {
		t.Fatalf("rating = %v", rv.Rating)
	}
	if rv.PublishedAt == nil || !rv.PublishedAt.Equal(time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("published = %v", rv.PublishedAt)
	}
	if len(rv.RawJSON) == 0 {
		t.Fatal("raw payload not snapshotted")
	}
}

func TestMapRawMaps_LegacyAliasesAndStringRating(t *testing.T) {
	item := map[string]any{
		"review_id":    "legacy-9",
		"reviewerName": "B",
		"rating":       "4,5",
		"review_text":  "ok",
		"published_at": "2024-12-01",
	}
	rv := MapRawMaps(1, item)

	if rv.SourceID == nil || *rv.SourceID != "legacy-9" {
		t.Fatalf("source id = %v", rv.SourceID)
	}
	if rv.Rating == nil || *rv.Rating != 4.5 {
		t.Fatalf("comma decimal not parsed: %v", rv.Rating)
	}
	if rv.PublishedAt == nil || rv.PublishedAt.Format("2006-01-02") != "2024-12-01" {
		t.Fatalf("date-only timestamp not parsed: %v", rv.PublishedAt)
	}
}

func TestMapRawTrustpilot_DropsAuthor(t *testing.T) {
	item := map[string]any{
		"reviewUrl":      "https://tp/r/1",
		"consumerName":   "should not be kept",
		"ratingValue":    2.0,
		"reviewHeadline": "disappointed",
		"reviewBody":     "long waits",
		"datePublished":  "2025-01-15T08:30:00Z",
	}
	rv := MapRawTrustpilot(3, item)

	if rv.Author != nil {
		t.Fatalf("author must stay empty, got %q", *rv.Author)
	}
	if rv.Title == nil || *rv.Title != "disappointed" {
		t.Fatalf("title = %v", rv.Title)
	}
}

func TestFinishRaw_SynthesizedSourceIDIsStable(t *testing.T) {
	item := map[string]any{"text": "no id here", "stars": 3.0}
	a := MapRawMaps(1, item)
	b := MapRawMaps(1, item)

	if a.SourceID == nil || *a.SourceID == "" {
		t.Fatal("no source id synthesized")
	}
	if *a.SourceID != *b.SourceID {
		t.Fatalf("synthesized id not deterministic: %q vs %q", *a.SourceID, *b.SourceID)
	}
}

func TestUnifyReview_MapsFlagsAndNormalization(t *testing.T) {
	raw := MapRawMaps(4, map[string]any{
		"reviewId":              "x",
		"stars":                 7.0, // stray value, clamp to scale
		"text":                  "fine",
		"isLocalGuide":          true,
		"responseFromOwnerText": "thank you",
	})
	raw.ID = 42

	u := UnifyReview(raw)
	if u.ReviewID != 42 || u.EstablishmentID != 4 {
		t.Fatalf("identity lost: %+v", u)
	}
	if u.Rating == nil || *u.Rating != 5.0 {
		t.Fatalf("rating not clamped: %v", u.Rating)
	}
	if !u.IsLocalGuide {
		t.Fatal("local guide flag lost")
	}
	if u.OwnerResponse == nil || *u.OwnerResponse != "thank you" {
		t.Fatalf("owner response = %v", u.OwnerResponse)
	}
}

func TestUnifyReview_TrustpilotVerificationLevel(t *testing.T) {
	raw := MapRawTrustpilot(1, map[string]any{
		"reviewUrl":         "u",
		"reviewBody":        "t",
		"verificationLevel": "Verified",
	})
	if u := UnifyReview(raw); !u.Verified {
		t.Fatal("verificationLevel=Verified must set the verified flag")
	}

	raw = MapRawTrustpilot(1, map[string]any{
		"reviewUrl":  "u2",
		"reviewBody": "t",
		"verified":   true,
	})
	if u := UnifyReview(raw); !u.Verified {
		t.Fatal("verified=true must set the verified flag")
	}
}

func TestUnifyReview_Deterministic(t *testing.T) {
	raw := MapRawMaps(2, map[string]any{"reviewId": "d", "stars": 4.0, "text": "solid"})
	raw.ID = 9

	a := UnifyReview(raw)
	b := UnifyReview(raw)
	if *a.Rating != *b.Rating || a.IsLocalGuide != b.IsLocalGuide || a.ReviewID != b.ReviewID {
		t.Fatalf("unify not deterministic: %+v vs %+v", a, b)
	}
}
