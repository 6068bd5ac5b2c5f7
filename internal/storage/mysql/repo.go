package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clinic_reviews/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
func valBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}
func f64Ptr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}
func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}
func boolPtr(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	b := n.Bool
	return &b
}

func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---------- establishments ----------

func (r *Repo) UpsertEstablishment(ctx context.Context, e domain.Establishment) (int64, error) {
	res, err := r.db.ExecContext(ctx, upsertEstablishmentSQL,
		e.DisplayName,
		e.GoogleURL,
		e.Website,
		valStr(e.TrustpilotDomain),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) ListEstablishments(ctx context.Context, ids []int64) ([]domain.Establishment, error) {
	q := `
SELECT id, display_name, google_url, website, trustpilot_domain,
       maps_last_scraped, trustpilot_last_scraped, maps_total_reviews, trustpilot_total_reviews
FROM establishments`
	var args []any
	if len(ids) > 0 {
		q += " WHERE id IN " + placeholders(len(ids))
		for _, id := range ids {
			args = append(args, id)
		}
	}
	q += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Establishment
	for rows.Next() {
		var e domain.Establishment
		var tpDomain sql.NullString
		var mapsAt, tpAt sql.NullTime
		if err := rows.Scan(
			&e.ID, &e.DisplayName, &e.GoogleURL, &e.Website, &tpDomain,
			&mapsAt, &tpAt, &e.MapsTotalReviews, &e.TrustpilotTotalReviews,
		); err != nil {
			return nil, err
		}
		e.TrustpilotDomain = strPtr(tpDomain)
		e.MapsLastScraped = timePtr(mapsAt)
		e.TrustpilotLastScraped = timePtr(tpAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateScrapeInfo(ctx context.Context, id int64, p domain.Platform, totalReviews int) error {
	q := updateMapsScrapeSQL
	if p == domain.PlatformTrustpilot {
		q = updateTrustpilotScrapeSQL
	}
	_, err := r.db.ExecContext(ctx, q, totalReviews, id)
	return err
}

// ---------- raw reviews ----------

func (r *Repo) UpsertRawReviews(ctx context.Context, rs []domain.RawReview) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*10)
	for _, rv := range rs {
		values = append(values, "(?,?,?,?,?,?,?,?,?,?)")
		args = append(args,
			rv.EstablishmentID,
			string(rv.Platform),
			valStr(rv.SourceID),
			valStr(rv.Author),
			valF64(rv.Rating),
			valStr(rv.Title),
			valStr(rv.Text),
			valStr(rv.Lang),
			valTime(rv.PublishedAt),
			valJSON(rv.RawJSON),
		)
	}
	_, err := r.db.ExecContext(ctx, insertRawPrefix+strings.Join(values, ",")+insertRawOnDup, args...)
	return err
}

// stageFilter builds the WHERE/ORDER/LIMIT tail shared by the incremental
// selects. pendingCond is the anti-join null check; Force drops it.
func stageFilter(f domain.SelectFilter, alias, idCol, pendingCond string) (string, []any) {
	var conds []string
	var args []any
	if !f.Force {
		conds = append(conds, pendingCond)
	}
	if len(f.EstablishmentIDs) > 0 {
		conds = append(conds, alias+".establishment_id IN "+placeholders(len(f.EstablishmentIDs)))
		for _, id := range f.EstablishmentIDs {
			args = append(args, id)
		}
	}
	if f.PublishedAfter != nil {
		conds = append(conds, alias+".published_at > ?")
		args = append(args, f.PublishedAfter.UTC())
	}
	var sb strings.Builder
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s.published_at IS NULL, %s.published_at, %s", alias, alias, idCol))
	if f.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", f.Limit))
	}
	return sb.String(), args
}

func (r *Repo) SelectUnunified(ctx context.Context, f domain.SelectFilter) ([]domain.RawReview, error) {
	tail, args := stageFilter(f, "r", "r.id", "u.review_id IS NULL")
	rows, err := r.db.QueryContext(ctx, selectUnunifiedBase+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RawReview
	for rows.Next() {
		rv, err := scanRaw(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repo) CountUnunified(ctx context.Context, f domain.SelectFilter) (int, error) {
	return r.countStage(ctx, countUnunifiedBase, f, "r", "u.review_id IS NULL")
}

func (r *Repo) countStage(ctx context.Context, base string, f domain.SelectFilter, alias, pendingCond string) (int, error) {
	var conds []string
	var args []any
	if !f.Force {
		conds = append(conds, pendingCond)
	}
	if len(f.EstablishmentIDs) > 0 {
		conds = append(conds, alias+".establishment_id IN "+placeholders(len(f.EstablishmentIDs)))
		for _, id := range f.EstablishmentIDs {
			args = append(args, id)
		}
	}
	if f.PublishedAfter != nil {
		conds = append(conds, alias+".published_at > ?")
		args = append(args, f.PublishedAfter.UTC())
	}
	q := base
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanRaw(rows *sql.Rows) (domain.RawReview, error) {
	var rv domain.RawReview
	var platform string
	var sourceID, author, title, text, lang sql.NullString
	var rating sql.NullFloat64
	var publishedAt sql.NullTime
	var raw sql.RawBytes
	if err := rows.Scan(
		&rv.ID, &rv.EstablishmentID, &platform,
		&sourceID, &author, &rating, &title, &text, &lang, &publishedAt, &raw,
	); err != nil {
		return domain.RawReview{}, err
	}
	rv.Platform = domain.Platform(platform)
	rv.SourceID = strPtr(sourceID)
	rv.Author = strPtr(author)
	rv.Rating = f64Ptr(rating)
	rv.Title = strPtr(title)
	rv.Text = strPtr(text)
	rv.Lang = strPtr(lang)
	rv.PublishedAt = timePtr(publishedAt)
	if len(raw) > 0 {
		rv.RawJSON = append([]byte(nil), raw...)
	}
	return rv, nil
}

// ---------- unified reviews ----------

func (r *Repo) InsertUnified(ctx context.Context, rs []domain.UnifiedReview) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*11)
	for _, u := range rs {
		values = append(values, "(?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args,
			u.ReviewID,
			u.EstablishmentID,
			string(u.Platform),
			valF64(u.Rating),
			valStr(u.Title),
			valStr(u.Text),
			valStr(u.Lang),
			valTime(u.PublishedAt),
			u.IsLocalGuide,
			u.Verified,
			valStr(u.OwnerResponse),
		)
	}
	_, err := r.db.ExecContext(ctx, insertUnifiedPrefix+strings.Join(values, ",")+insertUnifiedOnDup, args...)
	return err
}

func (r *Repo) SelectUnenriched(ctx context.Context, f domain.SelectFilter) ([]domain.UnifiedReview, error) {
	tail, args := stageFilter(f, "u", "u.review_id", "e.review_id IS NULL")
	rows, err := r.db.QueryContext(ctx, selectUnenrichedBase+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UnifiedReview
	for rows.Next() {
		var u domain.UnifiedReview
		var platform string
		var title, text, lang, ownerResponse sql.NullString
		var rating sql.NullFloat64
		var publishedAt sql.NullTime
		if err := rows.Scan(
			&u.ReviewID, &u.EstablishmentID, &platform,
			&rating, &title, &text, &lang, &publishedAt,
			&u.IsLocalGuide, &u.Verified, &ownerResponse,
		); err != nil {
			return nil, err
		}
		u.Platform = domain.Platform(platform)
		u.Rating = f64Ptr(rating)
		u.Title = strPtr(title)
		u.Text = strPtr(text)
		u.Lang = strPtr(lang)
		u.PublishedAt = timePtr(publishedAt)
		u.OwnerResponse = strPtr(ownerResponse)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repo) CountUnenriched(ctx context.Context, f domain.SelectFilter) (int, error) {
	return r.countStage(ctx, countUnenrichedBase, f, "u", "e.review_id IS NULL")
}

// ---------- enriched reviews ----------

func (r *Repo) UpsertEnriched(ctx context.Context, rs []domain.EnrichedReview) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*11)
	for _, e := range rs {
		scores, err := json.Marshal(e.Scores)
		if err != nil {
			return fmt.Errorf("marshal scores for review %d: %w", e.ReviewID, err)
		}
		values = append(values, "(?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args,
			e.ReviewID,
			e.EstablishmentID,
			string(e.Platform),
			string(scores),
			e.IsComplaint,
			e.HasResponse,
			valBool(e.HasConstructiveResponse),
			e.ReviewLength,
			string(e.Status),
			valTime(e.PublishedAt),
			e.ProcessedAt.UTC(),
		)
	}
	_, err := r.db.ExecContext(ctx, upsertEnrichedPrefix+strings.Join(values, ",")+upsertEnrichedOnDup, args...)
	return err
}

func (r *Repo) MarkEnrichmentFailed(ctx context.Context, reviewIDs []int64) error {
	if len(reviewIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(reviewIDs))
	for _, id := range reviewIDs {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx, markFailedPrefix+placeholders(len(reviewIDs))+markFailedSuffix, args...)
	return err
}

func (r *Repo) GetEnriched(ctx context.Context, reviewID int64) (domain.EnrichedReview, error) {
	rows, err := r.db.QueryContext(ctx, getEnrichedSQL, reviewID)
	if err != nil {
		return domain.EnrichedReview{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.EnrichedReview{}, err
		}
		return domain.EnrichedReview{}, domain.ErrNotFound
	}
	return scanEnriched(rows)
}

func (r *Repo) ForEachEnriched(ctx context.Context, f domain.SelectFilter, fn func(domain.EnrichedReview) error) error {
	var conds []string
	var args []any
	if len(f.EstablishmentIDs) > 0 {
		conds = append(conds, "e.establishment_id IN "+placeholders(len(f.EstablishmentIDs)))
		for _, id := range f.EstablishmentIDs {
			args = append(args, id)
		}
	}
	if f.PublishedAfter != nil {
		conds = append(conds, "e.published_at > ?")
		args = append(args, f.PublishedAfter.UTC())
	}
	q := forEachEnrichedBase
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY e.review_id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEnriched(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanEnriched(rows *sql.Rows) (domain.EnrichedReview, error) {
	var e domain.EnrichedReview
	var platform, status string
	var scores sql.RawBytes
	var constructive sql.NullBool
	var publishedAt sql.NullTime
	var processedAt sql.NullTime
	if err := rows.Scan(
		&e.ReviewID, &e.EstablishmentID, &platform, &scores,
		&e.IsComplaint, &e.HasResponse, &constructive,
		&e.ReviewLength, &status, &publishedAt, &processedAt,
	); err != nil {
		return domain.EnrichedReview{}, err
	}
	e.Platform = domain.Platform(platform)
	e.Status = domain.EnrichmentStatus(status)
	e.HasConstructiveResponse = boolPtr(constructive)
	e.PublishedAt = timePtr(publishedAt)
	if processedAt.Valid {
		e.ProcessedAt = processedAt.Time.UTC()
	}
	e.Scores = map[string]int{}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &e.Scores); err != nil {
			return domain.EnrichedReview{}, fmt.Errorf("scores of review %d: %w", e.ReviewID, err)
		}
	}
	return e, nil
}

// ---------- scoring ----------

func (r *Repo) ListRatingObservations(ctx context.Context, establishmentID int64) ([]domain.RatingObservation, error) {
	rows, err := r.db.QueryContext(ctx, listRatingObservationsSQL, establishmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RatingObservation
	for rows.Next() {
		var o domain.RatingObservation
		var platform string
		if err := rows.Scan(&o.Rating, &platform, &o.IsLocalGuide, &o.Verified); err != nil {
			return nil, err
		}
		o.Platform = domain.Platform(platform)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) ReplaceScore(ctx context.Context, s domain.EstablishmentScore) error {
	attrs, err := json.Marshal(s.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	_, err = r.db.ExecContext(ctx, replaceScoreSQL,
		s.EstablishmentID,
		s.TotalReviewsAnalyzed,
		valF64(s.RawAverageRating),
		valF64(s.WeightedAverageRating),
		string(attrs),
		valF64(s.ServiceQuality),
		valF64(s.Communication),
		valF64(s.OnlineCommunication),
		valF64(s.Affordability),
		valF64(s.Recommendation),
		valF64(s.ComplaintRate),
		s.RunID,
		s.ScoredAt.UTC(),
	)
	return err
}

func (r *Repo) GetScore(ctx context.Context, establishmentID int64) (domain.EstablishmentScore, error) {
	row := r.db.QueryRowContext(ctx, getScoreSQL, establishmentID)

	var s domain.EstablishmentScore
	var rawAvg, weightedAvg, sq, comm, onlineComm, afford, rec, complaint sql.NullFloat64
	var attrs sql.RawBytes
	if err := row.Scan(
		&s.EstablishmentID, &s.TotalReviewsAnalyzed, &rawAvg, &weightedAvg,
		&attrs, &sq, &comm, &onlineComm, &afford, &rec, &complaint,
		&s.RunID, &s.ScoredAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.EstablishmentScore{}, domain.ErrNotFound
		}
		return domain.EstablishmentScore{}, err
	}
	s.RawAverageRating = f64Ptr(rawAvg)
	s.WeightedAverageRating = f64Ptr(weightedAvg)
	s.ServiceQuality = f64Ptr(sq)
	s.Communication = f64Ptr(comm)
	s.OnlineCommunication = f64Ptr(onlineComm)
	s.Affordability = f64Ptr(afford)
	s.Recommendation = f64Ptr(rec)
	s.ComplaintRate = f64Ptr(complaint)
	s.ScoredAt = s.ScoredAt.UTC()
	s.Attributes = map[string]domain.AttributeScore{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &s.Attributes); err != nil {
			return domain.EstablishmentScore{}, fmt.Errorf("attributes of establishment %d: %w", establishmentID, err)
		}
	}
	return s, nil
}

// ---------- stats ----------

func (r *Repo) CollectionCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, collectionCountsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}

func (r *Repo) AverageScores(ctx context.Context) (domain.ScoreAverages, error) {
	row := r.db.QueryRowContext(ctx, averageScoresSQL)

	var a domain.ScoreAverages
	var rawAvg, weightedAvg, sq, comm, afford, rec sql.NullFloat64
	var lastScored sql.NullTime
	if err := row.Scan(
		&a.Establishments, &a.WithScores,
		&rawAvg, &weightedAvg, &sq, &comm, &afford, &rec, &lastScored,
	); err != nil {
		return domain.ScoreAverages{}, err
	}
	a.AvgRawRating = f64Ptr(rawAvg)
	a.AvgWeightedRating = f64Ptr(weightedAvg)
	a.AvgServiceQuality = f64Ptr(sq)
	a.AvgCommunication = f64Ptr(comm)
	a.AvgAffordability = f64Ptr(afford)
	a.AvgRecommendation = f64Ptr(rec)
	a.LastScoredAt = timePtr(lastScored)
	return a, nil
}
