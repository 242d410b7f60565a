package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// fetchJSON performs one GET request and returns the response body.
// Network failures, 429, and 5xx map to ErrUnavailable so the caller
// can retry; other non-200 statuses map to ErrMalformed.
func fetchJSON(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d from %s", ErrUnavailable, resp.StatusCode, url)
	default:
		return nil, fmt.Errorf("%w: status %d from %s", ErrMalformed, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	return body, nil
}

// metricsFrom copies provider fields into the canonical metric map.
// keys maps canonical metric names to provider field names. Fields the
// provider omitted stay absent; explicit nulls are carried through so
// drift detection can tell the two apart.
func metricsFrom(payload map[string]any, keys map[string]string) map[string]any {
	metrics := make(map[string]any, len(keys))
	for canonical, provider := range keys {
		if v, ok := payload[provider]; ok {
			metrics[canonical] = v
		}
	}
	return metrics
}
