package app

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"clinic_reviews/internal/domain"
)

/********** alias registries (single source of truth) **********/

// Scraping actors rename fields between versions; each canonical field lists
// every spelling seen in the wild, first match wins.

var mapsAliases = map[string][]string{
	"source_id": {"reviewId", "review_id", "id"},
	"author":    {"name", "reviewerName", "author"},
	"text":      {"text", "review_text", "reviewText"},
	"lang":      {"language", "originalLanguage", "review_language"},
	"published": {"publishedAtDate", "publishAt", "published_at"},
	"response":  {"responseFromOwnerText", "ownerResponse.text"},
}

var trustpilotAliases = map[string][]string{
	"source_id": {"reviewUrl", "review_id", "id"},
	"title":     {"reviewHeadline", "title", "headline"},
	"text":      {"reviewBody", "text", "review_text"},
	"lang":      {"reviewLanguage", "language"},
	"published": {"datePublished", "publishedAt", "published_at"},
	"response":  {"replyMessage", "companyReply.message"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func lookupBool(m map[string]any, paths ...string) bool {
	for _, p := range paths {
		if v, ok := lookupAny(m, p).(bool); ok {
			return v
		}
	}
	return false
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return &s
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// getFloatFlexible: number from several paths (float64/int/string like "4,5").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// parseTimeFlexible accepts the timestamp shapes both actors emit.
func parseTimeFlexible(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

/********** raw review mappers (scrape stage) **********/

// MapRawMaps converts one maps actor item into a RawReview.
func MapRawMaps(establishmentID int64, item map[string]any) domain.RawReview {
	rv := domain.RawReview{
		EstablishmentID: establishmentID,
		Platform:        domain.PlatformMaps,
		SourceID:        firstNonEmptyAlias(item, mapsAliases, "source_id"),
		Author:          firstNonEmptyAlias(item, mapsAliases, "author"),
		Rating:          getFloatFlexible(item, "stars", "rating", "rating.value"),
		Text:            firstNonEmptyAlias(item, mapsAliases, "text"),
		Lang:            firstNonEmptyAlias(item, mapsAliases, "lang"),
	}
	if s := firstNonEmptyAlias(item, mapsAliases, "published"); s != nil {
		rv.PublishedAt = parseTimeFlexible(*s)
	}
	finishRaw(&rv, item)
	return rv
}

// MapRawTrustpilot converts one trustpilot actor item into a RawReview.
// Author names are dropped for privacy.
func MapRawTrustpilot(establishmentID int64, item map[string]any) domain.RawReview {
	rv := domain.RawReview{
		EstablishmentID: establishmentID,
		Platform:        domain.PlatformTrustpilot,
		SourceID:        firstNonEmptyAlias(item, trustpilotAliases, "source_id"),
		Rating:          getFloatFlexible(item, "ratingValue", "rating", "stars"),
		Title:           firstNonEmptyAlias(item, trustpilotAliases, "title"),
		Text:            firstNonEmptyAlias(item, trustpilotAliases, "text"),
		Lang:            firstNonEmptyAlias(item, trustpilotAliases, "lang"),
	}
	if s := firstNonEmptyAlias(item, trustpilotAliases, "published"); s != nil {
		rv.PublishedAt = parseTimeFlexible(*s)
	}
	finishRaw(&rv, item)
	return rv
}

// finishRaw synthesizes a stable source id when the actor omitted one and
// snapshots the full payload.
func finishRaw(rv *domain.RawReview, item map[string]any) {
	if rv.SourceID == nil {
		r := ""
		if rv.Rating != nil {
			r = fmt.Sprintf("%.3f", *rv.Rating)
		}
		sig := strings.Join([]string{deref(rv.Author), deref(rv.Title), deref(rv.Text), deref(rv.Lang), r}, "|")
		sum := sha1.Sum([]byte(sig))
		id := hex.EncodeToString(sum[:])
		rv.SourceID = &id
	}
	raw, err := json.Marshal(item)
	if err != nil {
		log.Error().Err(err).Str("context", "finishRaw").Msg("marshal raw payload failed")
		return
	}
	rv.RawJSON = raw
}

/********** unified review mapper (unify stage) **********/

// UnifyReview derives the canonical review from exactly one RawReview. Pure
// and deterministic: the same raw review always yields the same unified one.
func UnifyReview(r domain.RawReview) domain.UnifiedReview {
	u := domain.UnifiedReview{
		ReviewID:        r.ID,
		EstablishmentID: r.EstablishmentID,
		Platform:        r.Platform,
		Title:           r.Title,
		Text:            r.Text,
		Lang:            r.Lang,
		PublishedAt:     r.PublishedAt,
	}
	if r.Rating != nil {
		u.Rating = ptrFloat(normalizeRating(*r.Rating))
	}

	var payload map[string]any
	if len(r.RawJSON) > 0 {
		if err := json.Unmarshal(r.RawJSON, &payload); err != nil {
			log.Warn().Err(err).Int64("review_id", r.ID).Msg("raw payload unreadable, flags skipped")
		}
	}
	if payload == nil {
		return u
	}

	switch r.Platform {
	case domain.PlatformMaps:
		u.IsLocalGuide = lookupBool(payload, "isLocalGuide", "is_local_guide")
		u.OwnerResponse = firstNonEmptyAlias(payload, mapsAliases, "response")
	case domain.PlatformTrustpilot:
		u.Verified = lookupBool(payload, "verified") ||
			strings.EqualFold(lookupStr(payload, "verificationLevel"), "verified")
		u.OwnerResponse = firstNonEmptyAlias(payload, trustpilotAliases, "response")
	}
	return u
}

// normalizeRating maps platform-native ratings onto the common 0..5 scale.
// Both actors already report 1..5 stars; this clamps strays.
func normalizeRating(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 5 {
		return 5
	}
	return v
}

func ptrFloat(f float64) *float64 { return &f }
