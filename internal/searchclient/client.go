package searchclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"skyfeed/internal/config"
	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
	"skyfeed/internal/model"
)

// Searcher is the subset of the search service the candidate sources use.
type Searcher interface {
	SearchByCategories(ctx context.Context, categories []model.Category, limit int) ([]model.Tweet, error)
}

// HTTPClient is a bearer-token client for the external search service.
type HTTPClient struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

func NewHTTPClient(cfg config.SearchConfig) *HTTPClient {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	backoff := cfg.BaseBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		bearerToken: cfg.Token,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newLimiter(cfg.RPS, cfg.Burst),
		maxAttempts: attempts,
		baseBackoff: backoff,
	}
}

func (c *HTTPClient) auth(req *http.Request) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	req.Header.Set("Accept", "application/json")
}

type searchResponse struct {
	Data []struct {
		ID         string                `json:"id"`
		AuthorID   string                `json:"author_id"`
		Text       string                `json:"text"`
		CreatedAt  time.Time             `json:"created_at"`
		Media      []model.MediaRef      `json:"media"`
		Categories []model.CategoryShare `json:"categories"`
		Metrics    struct {
			LikeCount   int64 `json:"like_count"`
			ReplyCount  int64 `json:"reply_count"`
			RepostCount int64 `json:"repost_count"`
			QuoteCount  int64 `json:"quote_count"`
			ViewCount   int64 `json:"view_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

// SearchByCategories returns recent tweets tagged with any of categories.
func (c *HTTPClient) SearchByCategories(ctx context.Context, categories []model.Category, limit int) ([]model.Tweet, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(categories))
	for _, cat := range categories {
		names = append(names, string(cat))
	}
	u := fmt.Sprintf("%s/search/recent?max_results=%d&categories=%s",
		c.baseURL, clamp(limit, 10, 100), url.QueryEscape(strings.Join(names, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req, "search_recent")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search api status %d", resp.StatusCode)
	}
	var raw searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	out := make([]model.Tweet, 0, len(raw.Data))
	for _, d := range raw.Data {
		if d.ID == "" {
			continue
		}
		t := model.Tweet{
			ID:        d.ID,
			AuthorID:  d.AuthorID,
			Content:   d.Text,
			CreatedAt: d.CreatedAt,
			Media:     d.Media,
			Type:      model.TweetOriginal,
			Counters: model.Counters{
				Likes:   d.Metrics.LikeCount,
				Replies: d.Metrics.ReplyCount,
				Reposts: d.Metrics.RepostCount,
				Quotes:  d.Metrics.QuoteCount,
				Views:   d.Metrics.ViewCount,
			},
		}
		if model.ValidateCategories(d.Categories) == nil {
			// match the store's largest-share-first order
			model.SortShares(d.Categories)
			t.Categories = d.Categories
		}
		out = append(out, t)
	}
	return out, nil
}

var errExhausted = errors.New("retries exhausted")

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry(endpoint)
		}
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				wait := retryAfter(resp.Header.Get("Retry-After"), backoff)
				_ = resp.Body.Close()
				lastErr = fmt.Errorf("status %d", resp.StatusCode)
				logging.Ctx(ctx).Warn().Str("endpoint", endpoint).Int("status", resp.StatusCode).Int("attempt", attempt).Dur("wait", wait).Msg("search retry")
				if attempt == c.maxAttempts {
					break
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", errExhausted, c.maxAttempts, lastErr)
}

// retryAfter honours a Retry-After header (seconds or HTTP date) and
// applies +/-20% jitter.
func retryAfter(header string, fallback time.Duration) time.Duration {
	wait := fallback
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil {
			wait = time.Duration(secs) * time.Second
		} else if t, err := http.ParseTime(header); err == nil {
			if d := time.Until(t); d > 0 {
				wait = d
			}
		}
	}
	jitter := time.Duration(float64(wait) * 0.2)
	if jitter > 0 {
		wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
	}
	return wait
}
