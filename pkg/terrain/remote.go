package terrain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Fetcher is the subset of request.Client used by the remote provider.
type Fetcher interface {
	Get(ctx context.Context, u string) ([]byte, error)
}

// RemoteProvider queries an Open-Elevation compatible lookup API.
// It reports ready after the first successful lookup, mirroring tile-based
// sources that return nothing useful until data has been streamed in.
type RemoteProvider struct {
	readySignal
	client  Fetcher
	baseURL string
}

// NewRemoteProvider creates a provider for baseURL (e.g. https://api.open-elevation.com).
func NewRemoteProvider(client Fetcher, baseURL string) *RemoteProvider {
	return &RemoteProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type lookupResponse struct {
	Results []struct {
		Latitude  float64  `json:"latitude"`
		Longitude float64  `json:"longitude"`
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// QueryElevation performs one lookup. A missing or null elevation is
// reported as ok=false rather than an error.
func (r *RemoteProvider) QueryElevation(ctx context.Context, lon, lat float64) (float64, bool, error) {
	q := url.Values{}
	q.Set("locations", fmt.Sprintf("%.6f,%.6f", lat, lon))
	u := r.baseURL + "/api/v1/lookup?" + q.Encode()

	body, err := r.client.Get(ctx, u)
	if err != nil {
		return 0, false, fmt.Errorf("elevation lookup: %w", err)
	}

	var resp lookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, false, fmt.Errorf("failed to decode elevation response: %w", err)
	}
	if len(resp.Results) == 0 || resp.Results[0].Elevation == nil {
		return 0, false, nil
	}

	if !r.IsReady() {
		slog.Info("Elevation source ready", "url", r.baseURL)
		r.markReady()
	}
	return *resp.Results[0].Elevation, true, nil
}
