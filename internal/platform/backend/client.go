// Package backend provides the HTTP client for the remote product
// backend: job submission, the status accessors the poll scheduler
// queries, and the product lookup that materializes search results.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/brandsync/brandsync-api/internal/config"
	"github.com/brandsync/brandsync-api/internal/domain"
	"github.com/brandsync/brandsync-api/internal/task"
)

// Client talks to the remote backend over REST. It implements
// task.BackendClient plus the job-submission calls used by the API
// layer.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient builds a Client from config. The API key, when set, is sent
// as a bearer token on every request.
func NewClient(cfg config.BackendConfig, logger *slog.Logger) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		http.SetAuthToken(cfg.APIKey)
	}

	return &Client{
		http:   http,
		logger: logger.With("component", "backend_client"),
	}
}

type jobResponse struct {
	JobID string `json:"job_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StartSearchJob submits a brand product search and returns the job ID
// to poll.
func (c *Client) StartSearchJob(ctx context.Context, brandID string, keywords []string, limit int) (string, error) {
	var result jobResponse
	resp, err := c.newRequest(ctx).
		SetBody(map[string]interface{}{
			"brand_id": brandID,
			"keywords": keywords,
			"limit":    limit,
		}).
		SetResult(&result).
		Post("/api/v1/search-jobs")
	if err != nil {
		return "", fmt.Errorf("failed to start search job: %w", err)
	}
	if resp.IsError() {
		return "", c.requestError("start search job", resp)
	}
	if result.JobID == "" {
		return "", fmt.Errorf("backend returned no job ID for search")
	}
	return result.JobID, nil
}

// StartImportJob submits an import of the selected products and returns
// the job ID to poll.
func (c *Client) StartImportJob(ctx context.Context, brandID string, productIDs []string) (string, error) {
	var result jobResponse
	resp, err := c.newRequest(ctx).
		SetBody(map[string]interface{}{
			"brand_id":    brandID,
			"product_ids": productIDs,
		}).
		SetResult(&result).
		Post("/api/v1/import-jobs")
	if err != nil {
		return "", fmt.Errorf("failed to start import job: %w", err)
	}
	if resp.IsError() {
		return "", c.requestError("start import job", resp)
	}
	if result.JobID == "" {
		return "", fmt.Errorf("backend returned no job ID for import")
	}
	return result.JobID, nil
}

// SearchJobStatus reports the state of a search job.
func (c *Client) SearchJobStatus(ctx context.Context, jobID string) (*task.SearchStatus, error) {
	var status task.SearchStatus
	resp, err := c.newRequest(ctx).
		SetResult(&status).
		SetPathParam("jobID", jobID).
		Get("/api/v1/search-jobs/{jobID}")
	if err != nil {
		return nil, fmt.Errorf("search status check failed: %w", err)
	}
	if resp.IsError() {
		return nil, c.requestError("search status check", resp)
	}
	return &status, nil
}

// ImportJobStatus reports the state of an import job.
func (c *Client) ImportJobStatus(ctx context.Context, jobID string) (*task.ImportStatus, error) {
	var status task.ImportStatus
	resp, err := c.newRequest(ctx).
		SetResult(&status).
		SetPathParam("jobID", jobID).
		Get("/api/v1/import-jobs/{jobID}")
	if err != nil {
		return nil, fmt.Errorf("import status check failed: %w", err)
	}
	if resp.IsError() {
		return nil, c.requestError("import status check", resp)
	}
	return &status, nil
}

// ProductsByBrand returns the product list staged for a brand, filtered
// by product status.
func (c *Client) ProductsByBrand(ctx context.Context, brandID, status string, limit int) ([]domain.ProductSummary, error) {
	var products []domain.ProductSummary
	resp, err := c.newRequest(ctx).
		SetResult(&products).
		SetPathParam("brandID", brandID).
		SetQueryParams(map[string]string{
			"status": status,
			"limit":  fmt.Sprintf("%d", limit),
		}).
		Get("/api/v1/brands/{brandID}/products")
	if err != nil {
		return nil, fmt.Errorf("product lookup failed: %w", err)
	}
	if resp.IsError() {
		return nil, c.requestError("product lookup", resp)
	}
	return products, nil
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&errorResponse{})
}

// requestError turns a non-2xx response into an error, preferring the
// backend's error body when one was returned.
func (c *Client) requestError(operation string, resp *resty.Response) error {
	if body, ok := resp.Error().(*errorResponse); ok && body.Error != "" {
		return fmt.Errorf("%s: backend returned %d: %s", operation, resp.StatusCode(), body.Error)
	}
	return fmt.Errorf("%s: backend returned %d", operation, resp.StatusCode())
}
