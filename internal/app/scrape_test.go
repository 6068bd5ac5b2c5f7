package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"clinic_reviews/internal/domain"
)

func TestScrape_BothPlatformsStoredWithScrapeInfo(t *testing.T) {
	repo := newFakeRepo()
	tp := "clinic.example"
	repo.establishments = []domain.Establishment{
		{ID: 1, DisplayName: "Clinic", GoogleURL: "https://maps/clinic", TrustpilotDomain: &tp},
	}
	client := &fakeScraper{
		mapsItems: map[string][]map[string]any{
			"https://maps/clinic": {
				{"reviewId": "m1", "stars": 5.0, "text": "good"},
				{"reviewId": "m2", "stars": 4.0, "text": "ok"},
			},
		},
		tpItems: map[string][]map[string]any{
			"clinic.example": {
				{"reviewUrl": "t1", "ratingValue": 1.0, "reviewBody": "bad"},
			},
		},
	}

	sum, err := NewScraper(repo, client, 2).Run(context.Background(), ScrapeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.MapsReviews != 2 || sum.TrustpilotReviews != 1 || len(sum.Failures) != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(repo.raw) != 3 {
		t.Fatalf("raw rows = %d", len(repo.raw))
	}
	if repo.scrapeInfo[1][domain.PlatformMaps] != 2 || repo.scrapeInfo[1][domain.PlatformTrustpilot] != 1 {
		t.Fatalf("scrape info = %+v", repo.scrapeInfo[1])
	}
}

func TestScrape_PerEstablishmentFailureDoesNotAbortRun(t *testing.T) {
	repo := newFakeRepo()
	repo.establishments = []domain.Establishment{
		{ID: 1, DisplayName: "A", GoogleURL: "https://maps/a"},
	}
	client := &fakeScraper{mapsErr: errors.New("actor timeout")}

	sum, err := NewScraper(repo, client, 1).Run(context.Background(), ScrapeOptions{})
	if err != nil {
		t.Fatalf("actor failure must be recorded, not returned: %v", err)
	}
	if len(sum.Failures) != 1 || sum.Failures[0].EstablishmentID != 1 {
		t.Fatalf("failures = %+v", sum.Failures)
	}
}

func TestSeedEstablishments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	body := "display_name,google_url,website,trustpilot_domain\n" +
		"Alpha Clinic,https://maps/alpha,https://alpha.example,alpha.example\n" +
		"Beta Clinic,https://maps/beta,,\n" +
		",https://maps/missing-name,,\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	repo := newFakeRepo()

	n, err := SeedEstablishments(context.Background(), repo, path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("seeded %d, want 2 (row without a name skipped)", n)
	}
	if repo.establishments[0].TrustpilotDomain == nil || *repo.establishments[0].TrustpilotDomain != "alpha.example" {
		t.Fatalf("trustpilot domain = %v", repo.establishments[0].TrustpilotDomain)
	}
	if repo.establishments[1].TrustpilotDomain != nil {
		t.Fatal("empty trustpilot column must stay nil")
	}
}

func TestSeedEstablishments_MissingRequiredColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.csv")
	if err := os.WriteFile(path, []byte("name,url\nA,b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := SeedEstablishments(context.Background(), newFakeRepo(), path); err == nil {
		t.Fatal("roster without required columns accepted")
	}
}
