package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	resty "github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
	"github.com/Ludentes/RooDemo-sub001/pkg/metrics"
)

// Client talks to the blockchain registry API that publishes election
// and constituency reference records.
type Client struct {
	baseURL     string
	httpClient  *resty.Client
	logger      *logger.Logger
	rateLimiter *rate.Limiter
}

func NewClient(baseURL string, timeout time.Duration, maxRetries int, retryDelay time.Duration, log *logger.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(retryDelay).
		SetRetryMaxWaitTime(retryDelay * 3).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})

	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		logger:      log,
		rateLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
	}
}

// GetElections lists elections matching the query.
func (c *Client) GetElections(ctx context.Context, params QueryParams) ([]ElectionRecord, error) {
	var elections []ElectionRecord
	url := fmt.Sprintf("%s/v1/elections", c.baseURL)
	if err := c.get(ctx, url, params, &elections); err != nil {
		return nil, fmt.Errorf("failed to fetch elections: %w", err)
	}

	c.logger.Debugw("Fetched elections", "count", len(elections))
	return elections, nil
}

// GetActiveElections returns elections currently accepting votes.
func (c *Client) GetActiveElections(ctx context.Context) ([]ElectionRecord, error) {
	return c.GetElections(ctx, QueryParams{Status: "active"})
}

// GetConstituencies lists the constituencies of one election.
func (c *Client) GetConstituencies(ctx context.Context, electionID string, params QueryParams) ([]ConstituencyRecord, error) {
	var constituencies []ConstituencyRecord
	url := fmt.Sprintf("%s/v1/elections/%s/constituencies", c.baseURL, electionID)
	if err := c.get(ctx, url, params, &constituencies); err != nil {
		return nil, fmt.Errorf("failed to fetch constituencies: %w", err)
	}

	c.logger.Debugw("Fetched constituencies", "election", electionID, "count", len(constituencies))
	return constituencies, nil
}

// GetAllConstituencies pages through an election's constituencies until
// the registry returns an empty batch.
func (c *Client) GetAllConstituencies(ctx context.Context, electionID string, batchSize int) ([]ConstituencyRecord, error) {
	var all []ConstituencyRecord
	offset := 0
	for {
		batch, err := c.GetConstituencies(ctx, electionID, QueryParams{Limit: batchSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return all, nil
		}
		all = append(all, batch...)
		offset += len(batch)
	}
}

func (c *Client) get(ctx context.Context, url string, params QueryParams, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	queryParams := buildQueryParams(params)

	c.logger.Debugw("Fetching registry records", "url", url, "params", queryParams)

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(queryParams).
		SetHeader("Accept", "application/json").
		Get(url)

	duration := time.Since(start).Seconds()
	success := err == nil && resp.StatusCode() == 200
	metrics.RecordRegistryRequest(duration, success)

	if err != nil {
		return err
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

func buildQueryParams(params QueryParams) map[string]string {
	queryParams := make(map[string]string)

	if params.Status != "" {
		queryParams["status"] = params.Status
	}
	if params.Limit > 0 {
		queryParams["limit"] = strconv.Itoa(params.Limit)
	}
	if params.Offset > 0 {
		queryParams["offset"] = strconv.Itoa(params.Offset)
	}

	return queryParams
}
