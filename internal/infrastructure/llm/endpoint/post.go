package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	maxResponseBytes = 4 << 20
	maxErrorSnippet  = 2048
)

// PostJSON sends payload as JSON and returns the raw response body. Non-2xx
// answers come back as *StatusError with a truncated body.
func PostJSON(ctx context.Context, client *http.Client, provider, url string, header http.Header, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", provider, err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorSnippet {
			raw = raw[:maxErrorSnippet]
		}
		return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}
	return raw, nil
}
