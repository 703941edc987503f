package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"rewriteplan/internal/engine"
	"rewriteplan/pkg/planerr"
)

// Client calls a remote planning server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Plan asks the server to plan a rewrite of tableName.
func (c *Client) Plan(ctx context.Context, tableName string, req PlanRequest) (*engine.Plan, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode plan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/tables/"+url.PathEscape(tableName)+"/plan", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create plan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	return resp.Plan, nil
}

// Strategies lists the strategies the server knows.
func (c *Client) Strategies(ctx context.Context) ([]StrategyInfo, error) {
	resp, err := c.get(ctx, "/api/strategies")
	if err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// Tables lists the tables in the server's catalog.
func (c *Client) Tables(ctx context.Context) ([]string, error) {
	resp, err := c.get(ctx, "/api/tables")
	if err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

func (c *Client) get(ctx context.Context, path string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return Response{}, fmt.Errorf("create GET request: %w", err)
	}
	return c.do(req)
}

// do executes req and decodes the envelope. Not found and bad request
// responses map back to the matching sentinel errors.
func (c *Client) do(req *http.Request) (Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("execute %s request: %w", req.Method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return Response{}, fmt.Errorf("%s failed with status %d: %s", req.Method, resp.StatusCode, string(data))
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return out, nil
	case http.StatusNotFound:
		return Response{}, fmt.Errorf("%w: %s", planerr.ErrTableNotFound, out.Error)
	case http.StatusBadRequest:
		return Response{}, fmt.Errorf("%w: %s", planerr.ErrInvalidConfig, out.Error)
	default:
		return Response{}, fmt.Errorf("%s failed with status %d: %s", req.Method, resp.StatusCode, out.Error)
	}
}
