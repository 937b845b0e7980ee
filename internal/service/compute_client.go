package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	config "github.com/maheshrc27/podcast-studio/configs"
	"github.com/maheshrc27/podcast-studio/internal/transfer"
	"golang.org/x/time/rate"
)

// ComputeClient submits jobs to the external compute service.
type ComputeClient interface {
	Submit(ctx context.Context, url string, body any) (string, error)
}

type computeClient struct {
	client  *http.Client
	apiKey  string
	header  string
	limiter *rate.Limiter
}

func NewComputeClient(cfg config.Compute) ComputeClient {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &computeClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		apiKey:  cfg.APIKey,
		header:  cfg.APIKeyHeader,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Submit posts body as JSON and returns the task id issued by the service.
// Any failure to obtain a task id is reported as ErrUpstream; failures where
// the service never judged the request also match ErrUnavailable.
func (c *computeClient) Submit(ctx context.Context, url string, body any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %w: %v", ErrUpstream, ErrUnavailable, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.header, c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("%w: %w: %v", ErrUpstream, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %w: reading response: %v", ErrUpstream, ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: %w: status %d: %s", ErrUpstream, ErrUnavailable, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var result transfer.ComputeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: invalid response body: %v", ErrUpstream, err)
	}
	if result.TaskID == "" {
		return "", fmt.Errorf("%w: response has no taskId", ErrUpstream)
	}

	return result.TaskID, nil
}
