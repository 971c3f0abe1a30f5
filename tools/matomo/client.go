// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package matomo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/olegiv/webanalytics-go/internal/tool"
)

// Doer abstracts the HTTP client so tests can stub the remote instance.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to a Matomo instance's SitesManager reporting API. All
// calls go through a single rate limiter so a reconciliation sweep
// cannot hammer the remote instance.
type Client struct {
	siteURL string
	token   string
	http    Doer
	limiter *rate.Limiter
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(d Doer) ClientOption {
	return func(c *Client) { c.http = d }
}

// WithLimiter replaces the default request limiter.
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a client for the instance at siteURL. A scheme is
// added when missing since admins habitually configure bare hosts.
func NewClient(siteURL, token string, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		siteURL: siteURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) apiURL() string {
	u := strings.TrimRight(c.siteURL, "/")
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u + "/index.php"
}

// apiError is the error envelope Matomo returns with HTTP 200.
type apiError struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

// post performs one API call and returns the raw response body. An
// error-shaped 200 response is reported through errResult so callers
// can degrade to a zero value without failing the sweep.
func (c *Client) post(ctx context.Context, method string, fields url.Values) (body []byte, errResult *apiError, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, &tool.RemoteAPIError{Method: method, Err: err}
	}

	form := url.Values{}
	form.Set("module", "API")
	form.Set("method", method)
	form.Set("format", "JSON")
	form.Set("token_auth", c.token)
	for k, vs := range fields {
		for _, v := range vs {
			form.Add(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, &tool.RemoteAPIError{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &tool.RemoteAPIError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, &tool.RemoteAPIError{Method: method, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &tool.RemoteAPIError{Method: method, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Result == "error" {
		c.logger.Warn("matomo API returned error",
			"category", "matomo",
			"method", method,
			"message", apiErr.Message)
		return nil, &apiErr, nil
	}
	return body, nil, nil
}

// SiteIDFromURL looks up the id of a site already tracking url.
// Returns 0 when no site matches or the instance rejects the call.
func (c *Client) SiteIDFromURL(ctx context.Context, siteURL string) (int, error) {
	fields := url.Values{}
	fields.Set("url", siteURL)
	body, apiErr, err := c.post(ctx, "SitesManager.getSitesIdFromSiteUrl", fields)
	if err != nil {
		return 0, err
	}
	if apiErr != nil {
		return 0, nil
	}
	var sites []struct {
		IDSite json.Number `json:"idsite"`
	}
	if err := json.Unmarshal(body, &sites); err != nil {
		return 0, &tool.RemoteAPIError{Method: "SitesManager.getSitesIdFromSiteUrl", Err: err}
	}
	if len(sites) == 0 {
		return 0, nil
	}
	id, err := sites[0].IDSite.Int64()
	if err != nil {
		return 0, &tool.RemoteAPIError{Method: "SitesManager.getSitesIdFromSiteUrl", Err: err}
	}
	return int(id), nil
}

// URLsFromSiteID returns every URL the remote site tracks.
func (c *Client) URLsFromSiteID(ctx context.Context, siteID int) ([]string, error) {
	fields := url.Values{}
	fields.Set("idSite", fmt.Sprint(siteID))
	body, apiErr, err := c.post(ctx, "SitesManager.getSiteUrlsFromId", fields)
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		return nil, nil
	}
	var urls []string
	if err := json.Unmarshal(body, &urls); err != nil {
		return nil, &tool.RemoteAPIError{Method: "SitesManager.getSiteUrlsFromId", Err: err}
	}
	return urls, nil
}

// AddSite registers a new site and returns its id, or 0 when the
// instance rejects the call.
func (c *Client) AddSite(ctx context.Context, name string, urls []string, timezone, currency string) (int, error) {
	fields := url.Values{}
	fields.Set("siteName", name)
	for i, u := range urls {
		fields.Set(fmt.Sprintf("urls[%d]", i), u)
	}
	if timezone != "" {
		fields.Set("timezone", timezone)
	}
	if currency != "" {
		fields.Set("currency", currency)
	}
	body, apiErr, err := c.post(ctx, "SitesManager.addSite", fields)
	if err != nil {
		return 0, err
	}
	if apiErr != nil {
		return 0, nil
	}
	var resp struct {
		Value json.Number `json:"value"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, &tool.RemoteAPIError{Method: "SitesManager.addSite", Err: err}
	}
	id, _ := resp.Value.Int64()
	return int(id), nil
}

// UpdateSite replaces the tracked URL set of an existing site. It
// reports success=false when the instance rejects the call.
func (c *Client) UpdateSite(ctx context.Context, siteID int, urls []string) (bool, error) {
	fields := url.Values{}
	fields.Set("idSite", fmt.Sprint(siteID))
	for i, u := range urls {
		fields.Set(fmt.Sprintf("urls[%d]", i), u)
	}
	body, apiErr, err := c.post(ctx, "SitesManager.updateSite", fields)
	if err != nil {
		return false, err
	}
	if apiErr != nil {
		return false, nil
	}
	var resp struct {
		Result string      `json:"result"`
		Value  json.Number `json:"value"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, &tool.RemoteAPIError{Method: "SitesManager.updateSite", Err: err}
	}
	if resp.Result == "success" {
		return true, nil
	}
	v, _ := resp.Value.Int64()
	return v != 0, nil
}
