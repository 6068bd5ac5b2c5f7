package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"clinic_reviews/internal/domain"
)

// Scraper pulls reviews for every establishment from both platforms and lands
// them verbatim in raw storage. Safe to re-run: raw upserts are keyed by
// (platform, source_id).
type Scraper struct {
	repo    domain.Repository
	client  domain.ScraperClient
	workers int64
}

func NewScraper(repo domain.Repository, client domain.ScraperClient, workers int) *Scraper {
	if workers < 1 {
		workers = 1
	}
	return &Scraper{repo: repo, client: client, workers: int64(workers)}
}

type ScrapeOptions struct {
	EstablishmentIDs []int64
}

type ScrapeSummary struct {
	Establishments    int
	MapsReviews       int
	TrustpilotReviews int
	Failures          []Failure
}

// Failure records a per-establishment stage error without failing the run.
type Failure struct {
	EstablishmentID int64
	Reason          string
}

func (s *Scraper) Run(ctx context.Context, opts ScrapeOptions) (ScrapeSummary, error) {
	ests, err := s.repo.ListEstablishments(ctx, opts.EstablishmentIDs)
	if err != nil {
		return ScrapeSummary{}, fmt.Errorf("list establishments: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = ScrapeSummary{Establishments: len(ests)}
		sem     = semaphore.NewWeighted(s.workers)
		wg      sync.WaitGroup
	)
	for _, est := range ests {
		if err := sem.Acquire(ctx, 1); err != nil {
			return summary, err
		}
		wg.Add(1)
		go func(est domain.Establishment) {
			defer sem.Release(1)
			defer wg.Done()
			maps, tp, err := s.scrapeOne(ctx, est)
			mu.Lock()
			defer mu.Unlock()
			summary.MapsReviews += maps
			summary.TrustpilotReviews += tp
			if err != nil {
				summary.Failures = append(summary.Failures, Failure{EstablishmentID: est.ID, Reason: err.Error()})
			}
		}(est)
	}
	wg.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].EstablishmentID < summary.Failures[j].EstablishmentID
	})
	log.Info().
		Int("establishments", summary.Establishments).
		Int("maps_reviews", summary.MapsReviews).
		Int("trustpilot_reviews", summary.TrustpilotReviews).
		Int("failures", len(summary.Failures)).
		Msg("scrape finished")
	return summary, nil
}

func (s *Scraper) scrapeOne(ctx context.Context, est domain.Establishment) (maps, tp int, err error) {
	var errs []string

	if est.GoogleURL != "" {
		items, merr := s.client.ScrapeMapsReviews(ctx, est.GoogleURL)
		if merr != nil {
			errs = append(errs, fmt.Sprintf("maps: %v", merr))
		} else if maps, merr = s.store(ctx, est.ID, domain.PlatformMaps, items); merr != nil {
			errs = append(errs, fmt.Sprintf("maps store: %v", merr))
		}
	}
	if est.TrustpilotDomain != nil && *est.TrustpilotDomain != "" {
		items, terr := s.client.ScrapeTrustpilotReviews(ctx, *est.TrustpilotDomain)
		if terr != nil {
			errs = append(errs, fmt.Sprintf("trustpilot: %v", terr))
		} else if tp, terr = s.store(ctx, est.ID, domain.PlatformTrustpilot, items); terr != nil {
			errs = append(errs, fmt.Sprintf("trustpilot store: %v", terr))
		}
	}
	if len(errs) > 0 {
		return maps, tp, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return maps, tp, nil
}

func (s *Scraper) store(ctx context.Context, estID int64, p domain.Platform, items []map[string]any) (int, error) {
	rs := make([]domain.RawReview, 0, len(items))
	for _, item := range items {
		switch p {
		case domain.PlatformMaps:
			rs = append(rs, MapRawMaps(estID, item))
		case domain.PlatformTrustpilot:
			rs = append(rs, MapRawTrustpilot(estID, item))
		}
	}
	if err := s.repo.UpsertRawReviews(ctx, rs); err != nil {
		return 0, err
	}
	if err := s.repo.UpdateScrapeInfo(ctx, estID, p, len(rs)); err != nil {
		return len(rs), err
	}
	return len(rs), nil
}

// SeedEstablishments loads the establishment roster from a CSV file with a
// header row of: display_name, google_url, website, trustpilot_domain.
// Existing rows are matched by google_url and refreshed in place.
func SeedEstablishments(ctx context.Context, repo domain.Repository, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read roster header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"display_name", "google_url"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("roster missing column %q", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	n := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, fmt.Errorf("read roster row: %w", err)
		}
		e := domain.Establishment{
			DisplayName: field(rec, "display_name"),
			GoogleURL:   field(rec, "google_url"),
			Website:     field(rec, "website"),
		}
		if e.DisplayName == "" || e.GoogleURL == "" {
			log.Warn().Strs("row", rec).Msg("roster row missing name or url, skipped")
			continue
		}
		if d := field(rec, "trustpilot_domain"); d != "" {
			e.TrustpilotDomain = &d
		}
		if _, err := repo.UpsertEstablishment(ctx, e); err != nil {
			return n, fmt.Errorf("upsert %q: %w", e.DisplayName, err)
		}
		n++
	}
	return n, nil
}
