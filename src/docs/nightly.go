// Package docs implements the documentation-site build hooks that depend on
// the release API: resolving where the "nightly release" link should point.
package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// APIBaseURL is the base URL for the GitHub REST API.
	APIBaseURL = "https://api.github.com"
	// DefaultRepo is the repository whose releases feed the docs site.
	DefaultRepo = "ClementTsang/bottom"
)

// ReleasesClient fetches release listings from the GitHub API. The releases
// endpoint is public, so no token is needed.
type ReleasesClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewReleasesClient creates a client against the given API base URL; an
// empty base URL means the public GitHub API.
func NewReleasesClient(baseURL string) *ReleasesClient {
	if baseURL == "" {
		baseURL = APIBaseURL
	}
	return &ReleasesClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type release struct {
	TagName string `json:"tag_name"`
}

// NightlyRedirect returns the releases page of the newest release whose tag
// contains "nightly-". When no nightly release can be resolved (HTTP error,
// bad payload, none published), it returns the general releases page along
// with the reason; the docs build logs the reason and uses the fallback.
func (c *ReleasesClient) NightlyRedirect(ctx context.Context, repo string) (string, error) {
	fallback := fmt.Sprintf("https://github.com/%s/releases", repo)

	releases, err := c.listReleases(ctx, repo)
	if err != nil {
		return fallback, err
	}

	for _, rel := range releases {
		if strings.Contains(rel.TagName, "nightly-") {
			return fmt.Sprintf("https://github.com/%s/releases/tag/%s", repo, rel.TagName), nil
		}
	}

	return fallback, fmt.Errorf("no nightly release found for %s", repo)
}

func (c *ReleasesClient) listReleases(ctx context.Context, repo string) ([]release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases", c.baseURL, repo)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var releases []release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return releases, nil
}
