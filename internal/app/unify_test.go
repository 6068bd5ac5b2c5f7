package app

import (
	"context"
	"testing"

	"clinic_reviews/internal/domain"
	"clinic_reviews/internal/scoring"
)

func TestUnify_WritesInBatches(t *testing.T) {
	repo := newFakeRepo()
	for i := int64(1); i <= 7; i++ {
		text := "review body"
		repo.ununified = append(repo.ununified, domain.RawReview{
			ID:              i,
			EstablishmentID: 1,
			Platform:        domain.PlatformMaps,
			Text:            &text,
			PublishedAt:     ts("2025-04-01T00:00:00Z"),
		})
	}
	cfg := scoring.Default()
	cfg.Processing.BatchSize = 3

	sum, err := NewUnifier(repo, cfg).Run(context.Background(), UnifyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Selected != 7 || sum.Written != 7 {
		t.Fatalf("summary = %+v", sum)
	}
	if repo.insertUnifiedCalls != 3 {
		t.Fatalf("insert calls = %d, want 3 batches of <=3", repo.insertUnifiedCalls)
	}
	if len(repo.unified) != 7 {
		t.Fatalf("unified rows = %d", len(repo.unified))
	}
	if repo.unified[0].ReviewID != 1 {
		t.Fatalf("first unified review id = %d", repo.unified[0].ReviewID)
	}
}

func TestUnify_QuickCountsWithoutWriting(t *testing.T) {
	repo := newFakeRepo()
	for i := int64(1); i <= 50; i++ {
		repo.ununified = append(repo.ununified, domain.RawReview{ID: i})
	}
	cfg := scoring.Default()
	cfg.Processing.BatchSize = 25

	sum, err := NewUnifier(repo, cfg).Run(context.Background(), UnifyOptions{Quick: true})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Pending != 25 {
		t.Fatalf("pending = %d, want batch-size cap", sum.Pending)
	}
	if len(repo.unified) != 0 {
		t.Fatal("quick mode must not write")
	}
}
