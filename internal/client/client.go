// Package client is a typed HTTP client for the student performance API.
package client

import (
	"context"
	"fmt"
	"io"
	"time"

	"student-perf/internal/api"
	"student-perf/internal/ml"
	"student-perf/internal/storage"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Detail)
}

type errorBody struct {
	Detail string `json:"detail"`
}

type Client struct {
	base, token string
	rest        *resty.Client
}

// New returns a client for the server at base. token is sent as a bearer
// token on admin calls.
func New(base, token string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second) // default fallback
	}
	return &Client{base: base, token: token, rest: r}
}

func (c *Client) request(ctx context.Context, admin bool) *resty.Request {
	req := c.rest.R().SetContext(ctx).SetError(&errorBody{})
	if admin {
		req.SetAuthToken(c.token)
	}
	return req
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if body, ok := resp.Error().(*errorBody); ok {
			apiErr.Detail = body.Detail
		}
		return apiErr
	}
	return nil
}

// Health reports the server status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out api.HealthResponse
	if err := check(c.request(ctx, false).SetResult(&out).Get(c.base + "/health")); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Predict scores one input.
func (c *Client) Predict(ctx context.Context, item ml.BatchItem) (*ml.PredictionResult, error) {
	var out ml.PredictionResult
	if err := check(c.request(ctx, false).SetBody(item).SetResult(&out).Post(c.base + "/api/predict")); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictBatch scores items, or every stored enrollment when items is empty.
func (c *Client) PredictBatch(ctx context.Context, items []ml.BatchItem) (*ml.BatchResult, error) {
	var out ml.BatchResult
	req := c.request(ctx, true).SetResult(&out)
	if len(items) > 0 {
		req.SetBody(api.BatchRequest{Items: items})
	}
	if err := check(req.Post(c.base + "/api/predict_batch")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Retrain trains on rows, or on stored enrollments when rows is empty.
func (c *Client) Retrain(ctx context.Context, rows []ml.Sample) (*ml.TrainReport, error) {
	var out ml.TrainReport
	req := c.request(ctx, true).SetResult(&out)
	if len(rows) > 0 {
		req.SetBody(api.RetrainRequest{Rows: rows})
	}
	if err := check(req.Post(c.base + "/api/retrain")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Threshold returns the threshold in effect and its source.
func (c *Client) Threshold(ctx context.Context) (*api.ThresholdResponse, error) {
	var out api.ThresholdResponse
	if err := check(c.request(ctx, true).SetResult(&out).Get(c.base + "/api/settings/threshold")); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetThreshold persists a user threshold and returns the resolved threshold.
func (c *Client) SetThreshold(ctx context.Context, value float64) (*api.ThresholdResponse, error) {
	var out api.ThresholdResponse
	req := c.request(ctx, true).SetBody(api.ThresholdRequest{Threshold: &value}).SetResult(&out)
	if err := check(req.Post(c.base + "/api/settings/threshold")); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModelInfo returns the metadata of the deployed model.
func (c *Client) ModelInfo(ctx context.Context) (*ml.Metadata, error) {
	var out ml.Metadata
	if err := check(c.request(ctx, false).SetResult(&out).Get(c.base + "/api/model/info")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Import uploads an enrollment CSV.
func (c *Client) Import(ctx context.Context, csv io.Reader) (*storage.ImportSummary, error) {
	var out storage.ImportSummary
	req := c.request(ctx, true).
		SetHeader("Content-Type", "text/csv").
		SetBody(csv).
		SetResult(&out)
	if err := check(req.Post(c.base + "/api/enrollments/import")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export writes the training-ready CSV to w.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	resp, err := c.request(ctx, true).Get(c.base + "/api/export")
	if err := check(resp, err); err != nil {
		return err
	}
	_, err = w.Write(resp.Body())
	return err
}
