// Package client talks to the Saunafreunde HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"saunafreunde/internal/aufguss"
	"saunafreunde/internal/models"
	"saunafreunde/internal/schedule"
)

// APIError is a non-2xx answer of the API.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("http %d: %s (%s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client calls the schedule endpoints with a member token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// New constructs a client. token may be empty for the public endpoints.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache caches week plans and categories in Redis for ttl.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// Week fetches the plan of the week containing date (YYYY-MM-DD).
func (c *Client) Week(ctx context.Context, date string) (schedule.WeekPlan, error) {
	endpoint := fmt.Sprintf("%s/api/v1/schedule?date=%s", c.baseURL, url.QueryEscape(date))
	cacheKey := "saunafreunde:client:week:" + date
	var plan schedule.WeekPlan

	if c.readCache(ctx, cacheKey, &plan) {
		return plan, nil
	}
	if err := c.doGet(ctx, endpoint, &plan); err != nil {
		return schedule.WeekPlan{}, err
	}
	c.writeCache(ctx, cacheKey, plan)
	return plan, nil
}

// Categories lists the configured infusion types.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	cacheKey := "saunafreunde:client:categories"
	var wrap struct {
		Categories []string `json:"categories"`
	}
	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Categories, nil
	}
	if err := c.doGet(ctx, c.baseURL+"/api/v1/categories", &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Categories, nil
}

// Claim takes a slot for the token's member.
func (c *Client) Claim(ctx context.Context, sauna string, start time.Time, aufgussType string) (*models.AufgussClaim, error) {
	body := map[string]interface{}{
		"sauna_name":   sauna,
		"start_time":   start,
		"aufguss_type": aufgussType,
	}
	var claim models.AufgussClaim
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/claims", body, &claim); err != nil {
		return nil, err
	}
	c.dropWeeks(ctx)
	return &claim, nil
}

// Cancel withdraws a claim.
func (c *Client) Cancel(ctx context.Context, claimID int64) (*aufguss.CancelResult, error) {
	var res aufguss.CancelResult
	endpoint := fmt.Sprintf("%s/api/v1/claims/%d", c.baseURL, claimID)
	if err := c.doJSON(ctx, http.MethodDelete, endpoint, nil, &res); err != nil {
		return nil, err
	}
	c.dropWeeks(ctx)
	return &res, nil
}

// MyClaims lists the token member's upcoming claims.
func (c *Client) MyClaims(ctx context.Context) ([]models.AufgussClaim, error) {
	var wrap struct {
		Claims []models.AufgussClaim `json:"claims"`
	}
	if err := c.doGet(ctx, c.baseURL+"/api/v1/me/claims", &wrap); err != nil {
		return nil, err
	}
	return wrap.Claims, nil
}

// dropWeeks forgets every cached plan. Entries are keyed by the requested date, not the week.
func (c *Client) dropWeeks(ctx context.Context) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, "saunafreunde:client:week:*", 100).Iterator()
	for iter.Next(ctx) {
		_ = c.redis.Del(ctx, iter.Val()).Err()
	}
}

func (c *Client) readCache(ctx context.Context, key string, out interface{}) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val interface{}) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			apiErr.Message = body.Error
			apiErr.Field = body.Field
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
