// Package appstore resolves App Store metadata and pages through customer reviews.
package appstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"appideas.app/engine/core/config"
	"appideas.app/engine/internal/model"
)

// ErrAppNotFound is returned when the lookup resolves no app for the id.
var ErrAppNotFound = errors.New("app not found")

const maxBodyBytes = 4 << 20

type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	lookupURL  string
	reviewsURL string
	country    string
	maxPages   int
}

func New(cfg config.AppStoreConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		lookupURL:  cfg.LookupURL,
		reviewsURL: cfg.ReviewsURL,
		country:    cfg.Country,
		maxPages:   cfg.MaxPages,
	}
}

// Lookup resolves app metadata with a single request.
func (c *Client) Lookup(ctx context.Context, appID, country string) (*model.AppMetadata, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, ErrAppNotFound
	}

	q := url.Values{}
	q.Set("id", appID)
	q.Set("country", c.countryOr(country))

	body, err := c.get(ctx, c.lookupURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("looking up app %s: %w", appID, err)
	}

	if gjson.GetBytes(body, "resultCount").Int() == 0 {
		return nil, ErrAppNotFound
	}
	r := gjson.GetBytes(body, "results.0")
	if !r.Exists() {
		return nil, ErrAppNotFound
	}

	icon := r.Get("artworkUrl512").String()
	if icon == "" {
		icon = r.Get("artworkUrl100").String()
	}

	id := r.Get("trackId").String()
	if id == "" {
		id = appID
	}

	return &model.AppMetadata{
		ID:          id,
		Name:        r.Get("trackName").String(),
		Developer:   r.Get("artistName").String(),
		Rating:      r.Get("averageUserRating").Float(),
		RatingCount: int(r.Get("userRatingCount").Int()),
		IconURL:     icon,
		Description: r.Get("description").String(),
		Genre:       r.Get("primaryGenreName").String(),
		Price:       r.Get("price").Float(),
		URL:         r.Get("trackViewUrl").String(),
	}, nil
}

// Reviews requests pages 1..maxPages and stops at the first empty page.
// A page that fails to load ends pagination and the reviews gathered so far
// are returned without error.
func (c *Client) Reviews(ctx context.Context, appID, country string) ([]model.Review, error) {
	if strings.TrimSpace(appID) == "" {
		return nil, ErrAppNotFound
	}

	country = c.countryOr(country)
	var reviews []model.Review

	for page := 1; page <= c.maxPages; page++ {
		body, err := c.get(ctx, fmt.Sprintf(c.reviewsURL, country, page, appID))
		if err != nil {
			slog.DebugContext(ctx, "review page fetch failed, stopping pagination",
				"app_id", appID, "page", page, "error", err)
			break
		}

		entries := parseEntries(body)
		if len(entries) == 0 {
			break
		}
		reviews = append(reviews, entries...)
	}

	slog.InfoContext(ctx, "fetched app reviews", "app_id", appID, "count", len(reviews))
	return reviews, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON response")
	}
	return body, nil
}

func (c *Client) countryOr(country string) string {
	if country = strings.TrimSpace(strings.ToLower(country)); country != "" {
		return country
	}
	if c.country != "" {
		return c.country
	}
	return "us"
}

// parseEntries reads feed.entry, which the feed emits as an object rather than
// an array when a page holds a single entry. Entries without a rating are app
// metadata rows and are skipped.
func parseEntries(body []byte) []model.Review {
	entry := gjson.GetBytes(body, "feed.entry")
	if !entry.Exists() {
		return nil
	}

	var items []gjson.Result
	if entry.IsArray() {
		items = entry.Array()
	} else {
		items = []gjson.Result{entry}
	}

	reviews := make([]model.Review, 0, len(items))
	for _, item := range items {
		rating := item.Get("im:rating.label")
		if !rating.Exists() {
			continue
		}
		reviews = append(reviews, model.Review{
			Title:  item.Get("title.label").String(),
			Author: item.Get("author.name.label").String(),
			Rating: int(rating.Int()),
			Date:   item.Get("updated.label").String(),
			Text:   item.Get("content.label").String(),
		})
	}
	return reviews
}
