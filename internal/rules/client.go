package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	routingRulesPath = "/api/v1/workloads/routing-rules"
	maxResponseBytes = 1 << 20
	maxErrorBody     = 512
)

// Identity names the baseline workload the routing rules are attached to.
type Identity struct {
	Kind      string
	Namespace string
	Name      string
}

// ClientConfig configures a routing rules API client.
type ClientConfig struct {
	// BaseURL is the scheme and host of the rules API, e.g. http://routes-api:8081.
	BaseURL string

	// Baseline identifies the baseline workload.
	Baseline Identity

	// SandboxName restricts the rules to one destination sandbox.
	// Empty for the baseline worker.
	SandboxName string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// Client fetches active routing keys from the routing rules API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a new rules API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rules api address %q: %w", cfg.BaseURL, err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid rules api address %q: missing host", cfg.BaseURL)
	}
	if base.Scheme == "" {
		base.Scheme = "http"
	}

	query := url.Values{}
	query.Set("baselineKind", cfg.Baseline.Kind)
	query.Set("baselineNamespace", cfg.Baseline.Namespace)
	query.Set("baselineName", cfg.Baseline.Name)
	if cfg.SandboxName != "" {
		query.Set("destinationSandboxName", cfg.SandboxName)
	}

	endpoint := base.JoinPath(routingRulesPath)
	endpoint.RawQuery = query.Encode()
	endpoint.Fragment = ""

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		endpoint:   endpoint.String(),
		httpClient: httpClient,
	}, nil
}

// URL returns the full routing rules URL including the query.
func (c *Client) URL() string {
	return c.endpoint
}

type routingRulesResponse struct {
	RoutingRules *[]json.RawMessage `json:"routingRules"`
}

type routingRule struct {
	RoutingKey any `json:"routingKey"`
}

// FetchRoutingKeys returns the routing keys currently claimed for this worker.
func (c *Client) FetchRoutingKeys(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch routing rules: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read routing rules: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, truncate(body, maxErrorBody))
	}

	return parseRoutingKeys(body)
}

// parseRoutingKeys decodes a {"routingRules":[{"routingKey":"..."}]} document.
// Rules without a usable routingKey are ignored; a document without a
// routingRules array is rejected as a whole.
func parseRoutingKeys(body []byte) ([]string, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var doc routingRulesResponse
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRules, err)
	}
	if doc.RoutingRules == nil {
		return nil, fmt.Errorf("%w: missing routingRules", ErrMalformedRules)
	}

	keys := make([]string, 0, len(*doc.RoutingRules))
	for _, raw := range *doc.RoutingRules {
		var rule routingRule
		ruleDecoder := json.NewDecoder(bytes.NewReader(raw))
		ruleDecoder.UseNumber()
		if err := ruleDecoder.Decode(&rule); err != nil {
			continue
		}

		switch v := rule.RoutingKey.(type) {
		case string:
			if v != "" {
				keys = append(keys, v)
			}
		case json.Number:
			keys = append(keys, v.String())
		}
	}

	return keys, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
