package mysql

// LAST_INSERT_ID(id) makes the duplicate path report the existing row's id.
const upsertEstablishmentSQL = `
INSERT INTO establishments
  (display_name, google_url, website, trustpilot_domain)
VALUES
  (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  id                = LAST_INSERT_ID(id),
  display_name      = VALUES(display_name),
  website           = VALUES(website),
  trustpilot_domain = COALESCE(VALUES(trustpilot_domain), establishments.trustpilot_domain),
  updated_at        = CURRENT_TIMESTAMP
`

const updateMapsScrapeSQL = `
UPDATE establishments
SET maps_last_scraped = CURRENT_TIMESTAMP, maps_total_reviews = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

const updateTrustpilotScrapeSQL = `
UPDATE establishments
SET trustpilot_last_scraped = CURRENT_TIMESTAMP, trustpilot_total_reviews = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

// Note: `text` is reserved; keep it quoted everywhere.
const insertRawPrefix = "INSERT INTO raw_reviews\n  (establishment_id, platform, source_id, author, rating, title, `text`, lang, published_at, raw)\nVALUES "

// COALESCE keeps the old value when a re-scrape delivers NULL for a field.
const insertRawOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  author       = COALESCE(VALUES(author), raw_reviews.author),\n" +
	"  rating       = COALESCE(VALUES(rating), raw_reviews.rating),\n" +
	"  title        = COALESCE(VALUES(title), raw_reviews.title),\n" +
	"  `text`       = COALESCE(VALUES(`text`), raw_reviews.`text`),\n" +
	"  lang         = COALESCE(VALUES(lang), raw_reviews.lang),\n" +
	"  published_at = COALESCE(VALUES(published_at), raw_reviews.published_at),\n" +
	"  raw          = COALESCE(VALUES(raw), raw_reviews.raw),\n" +
	"  scraped_at   = CURRENT_TIMESTAMP\n"

const rawColumns = "r.id, r.establishment_id, r.platform, r.source_id, r.author, r.rating, r.title, r.`text`, r.lang, r.published_at, r.raw"

// Anti-join keeps the stage incremental: only raw reviews with no unified
// counterpart come back. The WHERE tail is built per filter in the repo.
const selectUnunifiedBase = `
SELECT ` + rawColumns + `
FROM raw_reviews r
LEFT JOIN unified_reviews u ON u.review_id = r.id
`

const countUnunifiedBase = `
SELECT COUNT(*)
FROM raw_reviews r
LEFT JOIN unified_reviews u ON u.review_id = r.id
`

const insertUnifiedPrefix = "INSERT INTO unified_reviews\n  (review_id, establishment_id, platform, rating, title, `text`, lang, published_at, is_local_guide, verified, owner_response)\nVALUES "

// Re-unification is deterministic, so overwriting is always safe.
const insertUnifiedOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  rating         = VALUES(rating),\n" +
	"  title          = VALUES(title),\n" +
	"  `text`         = VALUES(`text`),\n" +
	"  lang           = VALUES(lang),\n" +
	"  published_at   = VALUES(published_at),\n" +
	"  is_local_guide = VALUES(is_local_guide),\n" +
	"  verified       = VALUES(verified),\n" +
	"  owner_response = VALUES(owner_response)\n"

const unifiedColumns = "u.review_id, u.establishment_id, u.platform, u.rating, u.title, u.`text`, u.lang, u.published_at, u.is_local_guide, u.verified, u.owner_response"

const selectUnenrichedBase = `
SELECT ` + unifiedColumns + `
FROM unified_reviews u
LEFT JOIN enriched_reviews e ON e.review_id = u.review_id
`

const countUnenrichedBase = `
SELECT COUNT(*)
FROM unified_reviews u
LEFT JOIN enriched_reviews e ON e.review_id = u.review_id
`

const upsertEnrichedPrefix = "INSERT INTO enriched_reviews\n  (review_id, establishment_id, platform, scores, is_complaint, has_response, has_constructive_response, review_length, status, published_at, processed_at)\nVALUES "

const upsertEnrichedOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  scores                    = VALUES(scores),\n" +
	"  is_complaint              = VALUES(is_complaint),\n" +
	"  has_response              = VALUES(has_response),\n" +
	"  has_constructive_response = VALUES(has_constructive_response),\n" +
	"  review_length             = VALUES(review_length),\n" +
	"  status                    = VALUES(status),\n" +
	"  processed_at              = VALUES(processed_at)\n"

// Failed reviews get a tombstone record so the anti-join stops reselecting
// them; a later forced run can still overwrite it.
const markFailedPrefix = `
INSERT INTO enriched_reviews
  (review_id, establishment_id, platform, scores, status, published_at)
SELECT u.review_id, u.establishment_id, u.platform, JSON_OBJECT(), 'failed', u.published_at
FROM unified_reviews u
WHERE u.review_id IN `

const markFailedSuffix = `
ON DUPLICATE KEY UPDATE
  status       = 'failed',
  processed_at = CURRENT_TIMESTAMP
`

const enrichedColumns = "e.review_id, e.establishment_id, e.platform, e.scores, e.is_complaint, e.has_response, e.has_constructive_response, e.review_length, e.status, e.published_at, e.processed_at"

const getEnrichedSQL = `
SELECT ` + enrichedColumns + `
FROM enriched_reviews e
WHERE e.review_id = ?
`

const forEachEnrichedBase = `
SELECT ` + enrichedColumns + `
FROM enriched_reviews e
`

const listRatingObservationsSQL = `
SELECT u.rating, u.platform, u.is_local_guide, u.verified
FROM unified_reviews u
WHERE u.establishment_id = ? AND u.rating IS NOT NULL
ORDER BY u.review_id
`

const replaceScoreSQL = `
INSERT INTO establishment_scores
  (establishment_id, total_reviews_analyzed, raw_average_rating, weighted_average_rating,
   attributes, service_quality, communication, online_communication,
   affordability, recommendation, complaint_rate, run_id, scored_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  total_reviews_analyzed  = VALUES(total_reviews_analyzed),
  raw_average_rating      = VALUES(raw_average_rating),
  weighted_average_rating = VALUES(weighted_average_rating),
  attributes              = VALUES(attributes),
  service_quality         = VALUES(service_quality),
  communication           = VALUES(communication),
  online_communication    = VALUES(online_communication),
  affordability           = VALUES(affordability),
  recommendation          = VALUES(recommendation),
  complaint_rate          = VALUES(complaint_rate),
  run_id                  = VALUES(run_id),
  scored_at               = VALUES(scored_at)
`

const getScoreSQL = `
SELECT establishment_id, total_reviews_analyzed, raw_average_rating, weighted_average_rating,
       attributes, service_quality, communication, online_communication,
       affordability, recommendation, complaint_rate, run_id, scored_at
FROM establishment_scores
WHERE establishment_id = ?
`

const collectionCountsSQL = `
SELECT 'establishments', COUNT(*) FROM establishments
UNION ALL SELECT 'raw_reviews', COUNT(*) FROM raw_reviews
UNION ALL SELECT 'unified_reviews', COUNT(*) FROM unified_reviews
UNION ALL SELECT 'enriched_reviews', COUNT(*) FROM enriched_reviews
UNION ALL SELECT 'enriched_failed', COUNT(*) FROM enriched_reviews WHERE status = 'failed'
UNION ALL SELECT 'establishment_scores', COUNT(*) FROM establishment_scores
`

const averageScoresSQL = `
SELECT
  (SELECT COUNT(*) FROM establishments),
  COUNT(*),
  AVG(raw_average_rating),
  AVG(weighted_average_rating),
  AVG(service_quality),
  AVG(communication),
  AVG(affordability),
  AVG(recommendation),
  MAX(scored_at)
FROM establishment_scores
`
