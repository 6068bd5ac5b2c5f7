package oracle

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"clinic_reviews/internal/adapters/observability"
	"clinic_reviews/internal/domain"
)

// Client talks to an OpenAI-compatible chat completions endpoint and turns
// free-text reviews into ordinal verdicts. All answers are requested as JSON
// objects keyed by review id. The base URL carries the API prefix and the
// client appends /chat/completions, so https://api.openai.com/v1 and Gemini's
// compatibility endpoint .../v1beta/openai both work unmodified.
type Client struct {
	base  string
	hc    *http.Client
	key   string
	model string
	rl    *rate.Limiter
}

func New(base, key, model string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("oracle API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("oracle model is required")
	}
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		hc:    &http.Client{Timeout: 120 * time.Second},
		key:   key,
		model: model,
		rl:    rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

const sentimentSystem = `You grade healthcare clinic reviews. For each review, score every attribute
the reviewer actually addresses on an ordinal scale: 0 very negative, 1 negative,
2 positive, 3 very positive. Omit attributes the review does not mention.
Answer with a single JSON object: {"<review_id>": {"<attribute>": <0-3>, ...}, ...}.`

const complaintSystem = `You classify healthcare clinic reviews. A complaint is a review whose main
purpose is to report a negative experience. Answer with a single JSON object:
{"<review_id>": true|false, ...}.`

const responseSystem = `You assess owner responses to complaints about healthcare clinics. A response
is constructive when it acknowledges the problem and offers a concrete remedy or
follow-up channel. Answer with a single JSON object: {"<review_id>": true|false, ...}.`

func (c *Client) ScoreSentiment(ctx context.Context, reviews []domain.ReviewText, attributes []string) (map[int64]map[string]int, error) {
	if len(reviews) == 0 {
		return map[int64]map[string]int{}, nil
	}
	var sb strings.Builder
	sb.WriteString("Attributes: " + strings.Join(attributes, ", ") + "\n\n")
	for _, r := range reviews {
		fmt.Fprintf(&sb, "Review %d:\n%s\n\n", r.ID, r.Text)
	}

	content, err := c.complete(ctx, "sentiment", sentimentSystem, sb.String())
	if err != nil {
		return nil, err
	}

	var raw map[string]map[string]int
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleMalformed, err)
	}
	allowed := map[string]bool{}
	for _, a := range attributes {
		allowed[a] = true
	}
	out := make(map[int64]map[string]int, len(raw))
	for k, scores := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: review key %q", domain.ErrOracleMalformed, k)
		}
		clean := map[string]int{}
		for attr, v := range scores {
			if !allowed[attr] {
				continue // the model sometimes invents attributes, drop them
			}
			if v < 0 || v > 3 {
				return nil, fmt.Errorf("%w: score %d for %s", domain.ErrOracleMalformed, v, attr)
			}
			clean[attr] = v
		}
		out[id] = clean
	}
	return out, nil
}

func (c *Client) ClassifyComplaints(ctx context.Context, reviews []domain.ReviewText) (map[int64]bool, error) {
	if len(reviews) == 0 {
		return map[int64]bool{}, nil
	}
	var sb strings.Builder
	for _, r := range reviews {
		fmt.Fprintf(&sb, "Review %d:\n%s\n\n", r.ID, r.Text)
	}
	content, err := c.complete(ctx, "complaint", complaintSystem, sb.String())
	if err != nil {
		return nil, err
	}
	return decodeBoolVerdicts(content)
}

func (c *Client) AssessResponses(ctx context.Context, pairs []domain.ReviewResponse) (map[int64]bool, error) {
	if len(pairs) == 0 {
		return map[int64]bool{}, nil
	}
	var sb strings.Builder
	for _, p := range pairs {
		fmt.Fprintf(&sb, "Review %d:\nComplaint: %s\nOwner response: %s\n\n", p.ID, p.Text, p.Response)
	}
	content, err := c.complete(ctx, "response", responseSystem, sb.String())
	if err != nil {
		return nil, err
	}
	return decodeBoolVerdicts(content)
}

func decodeBoolVerdicts(content string) (map[int64]bool, error) {
	var raw map[string]bool
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleMalformed, err)
	}
	out := make(map[int64]bool, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: review key %q", domain.ErrOracleMalformed, k)
		}
		out[id] = v
	}
	return out, nil
}

// ---- transport ----

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// complete sends one chat turn. 429 maps to the typed rate-limit error so the
// enrichment stage can abort and leave its batch pending; transient 5xx
// responses are retried with jittered backoff.
func (c *Client) complete(ctx context.Context, endpoint, system, user string) (string, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return "", err
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return "", err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", lastErr
		}
		observability.ObserveExternal("oracle", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			var cr chatResponse
			err := json.NewDecoder(resp.Body).Decode(&cr)
			resp.Body.Close()
			if err != nil {
				return "", fmt.Errorf("%w: %v", domain.ErrOracleMalformed, err)
			}
			if len(cr.Choices) == 0 {
				return "", fmt.Errorf("%w: empty choices", domain.ErrOracleMalformed)
			}
			if cr.Choices[0].FinishReason == "content_filter" {
				return "", domain.ErrOracleContentFiltered
			}
			return cr.Choices[0].Message.Content, nil

		case http.StatusTooManyRequests:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return "", domain.ErrOracleRateLimited

		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			resp.Body.Close()
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return "", fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return "", lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
