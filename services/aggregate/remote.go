package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"streamhub/models"
)

// RemoteSource speaks the source contract over HTTP: the normalized query is
// POSTed as JSON to one endpoint, which answers with {items, streams} or an
// {error} body. It lets source adapters run as separate deployments while
// the gateway treats them exactly like in-process ones.
type RemoteSource struct {
	name     string
	endpoint string
	client   *http.Client
}

var _ Source = (*RemoteSource)(nil)

// NewRemoteSource builds a source bound to an endpoint URL. A nil client
// gets a context-bounded default (the gateway's per-source timeout governs).
func NewRemoteSource(name, endpoint string, client *http.Client) *RemoteSource {
	if client == nil {
		client = &http.Client{}
	}
	return &RemoteSource{name: strings.TrimSpace(name), endpoint: strings.TrimSpace(endpoint), client: client}
}

func (r *RemoteSource) Name() string {
	if r.name != "" {
		return r.name
	}
	return r.endpoint
}

func (r *RemoteSource) Resolve(ctx context.Context, q models.Query) (*models.SourceResult, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &failure) == nil && failure.Error != "" {
			return nil, fmt.Errorf("endpoint responded with %d: %s", resp.StatusCode, failure.Error)
		}
		return nil, fmt.Errorf("endpoint responded with %d", resp.StatusCode)
	}

	var result models.SourceResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Items == nil {
		result.Items = []models.Item{}
	}
	if result.Streams == nil {
		result.Streams = []models.Stream{}
	}
	return &result, nil
}
