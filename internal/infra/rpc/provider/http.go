package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider implements Provider for REST over HTTP and custom calls.
type HTTPProvider struct {
	*BaseProvider

	endpoint   string
	headers    map[string]string
	httpClient *http.Client
}

// NewHTTPProvider creates a new HTTP provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseProvider: NewBaseProvider(name),
		endpoint:     strings.TrimRight(endpoint, "/"),
		headers:      make(map[string]string),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SetHeader adds a header sent with every request (e.g. TRON-PRO-API-KEY).
// It must be called before the provider is shared.
func (p *HTTPProvider) SetHeader(key, value string) {
	p.headers[key] = value
}

// Endpoint returns the base URL.
func (p *HTTPProvider) Endpoint() string {
	return p.endpoint
}

// Execute runs an operation: a custom Invoke or a REST call.
func (p *HTTPProvider) Execute(ctx context.Context, op Operation) (any, error) {
	if op.Invoke != nil {
		return p.invoke(ctx, op)
	}
	if !op.IsREST {
		return nil, fmt.Errorf("operation %q: no REST path or invoke", op.Name)
	}

	method := op.RESTMethod
	if method == "" {
		method = http.MethodPost
	}
	return p.rest(ctx, method, op.Name, op.Params)
}

// invoke runs a custom call with the same health bookkeeping as an HTTP exchange.
func (p *HTTPProvider) invoke(ctx context.Context, op Operation) (any, error) {
	if status := p.Monitor.CheckProviderStatus(); status == StatusThrottled || status == StatusBlocked {
		return nil, fmt.Errorf("provider %s, retry after: %v", status, p.Monitor.GetRetryAfter())
	}

	start := time.Now()
	result, err := op.Invoke(ctx, p)
	if err != nil {
		p.RecordFailure()
		if p.Monitor.DetectThrottlePattern(err.Error()) {
			p.Monitor.RecordThrottle(429, "")
		}
		return nil, err
	}
	p.RecordSuccess(time.Since(start))
	return result, nil
}

func (p *HTTPProvider) rest(ctx context.Context, method, path string, params any) (any, error) {
	url := p.endpoint + "/" + strings.TrimLeft(path, "/")

	body, err := p.do(ctx, method, url, params)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		p.RecordFailure()
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return result, nil
}

// do performs the HTTP exchange and records health. It returns the body of a 200 response.
func (p *HTTPProvider) do(ctx context.Context, method, url string, payload any) ([]byte, error) {
	if status := p.Monitor.CheckProviderStatus(); status == StatusThrottled || status == StatusBlocked {
		return nil, fmt.Errorf("provider %s, retry after: %v", status, p.Monitor.GetRetryAfter())
	}

	start := time.Now()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.RecordFailure()
		return nil, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		p.Monitor.RecordThrottle(429, retryAfter)
		p.RecordFailure()
		return nil, fmt.Errorf("rate limited (429), retry after: %s", retryAfter)
	}

	// IP blocked detection
	if resp.StatusCode == http.StatusForbidden {
		p.Monitor.RecordThrottle(403, "")
		p.RecordFailure()
		return nil, fmt.Errorf("ip blocked (403)")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.RecordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.RecordFailure()
		if p.Monitor.DetectThrottlePattern(string(body)) {
			return nil, fmt.Errorf("throttle detected in response: %s", string(body))
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	p.RecordSuccess(time.Since(start))
	return body, nil
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
