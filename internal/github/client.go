// Package github wraps the subset of the GitHub REST API the sync engine
// needs: listing the most recent releases of a repository.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/relaynote/relaynote/internal/errors"
	"github.com/relaynote/relaynote/internal/release"
)

// Release page bounds enforced by the API.
const (
	MinPerPage = 1
	MaxPerPage = 100
)

// Client fetches releases from the GitHub REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a release fetcher. token may be empty for public
// repositories. baseURL is the API root, e.g. https://api.github.com.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ListReleases returns the most recent page of releases for owner/repo,
// bounded by limit (clamped to [1,100]). The page comes back in GitHub's
// default order, most recent first; ordering for publication is the cursor
// evaluator's job, not ours.
func (c *Client) ListReleases(ctx context.Context, owner, repo string, limit int) ([]release.Release, error) {
	if limit < MinPerPage {
		limit = MinPerPage
	}
	if limit > MaxPerPage {
		limit = MaxPerPage
	}

	u := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewUpstream("github", 0, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewUpstream("github", resp.StatusCode, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewUpstream("github", resp.StatusCode, string(body))
	}

	var releases []release.Release
	if err := json.Unmarshal(body, &releases); err != nil {
		return nil, errors.NewUpstream("github", resp.StatusCode, "unparseable release list: "+err.Error())
	}

	return releases, nil
}
