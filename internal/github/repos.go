package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxAssetSize = 100 << 20

// Owner is the owning account of a repository
type Owner struct {
	Login string `json:"login"`
}

// Repository is the subset of the repository object ccx uses
type Repository struct {
	FullName        string     `json:"full_name"`
	Name            string     `json:"name"`
	Owner           Owner      `json:"owner"`
	Description     string     `json:"description"`
	HTMLURL         string     `json:"html_url"`
	CloneURL        string     `json:"clone_url"`
	DefaultBranch   string     `json:"default_branch"`
	StargazersCount int        `json:"stargazers_count"`
	Topics          []string   `json:"topics"`
	Archived        bool       `json:"archived"`
	UpdatedAt       *time.Time `json:"updated_at"`
	PushedAt        *time.Time `json:"pushed_at"`
}

// SearchResult is the body of GET /search/repositories
type SearchResult struct {
	TotalCount int          `json:"total_count"`
	Items      []Repository `json:"items"`
}

// SearchOptions narrows a topic search
type SearchOptions struct {
	Query   string // extra search terms
	Sort    string // stars, updated; default stars
	Order   string // asc, desc; default desc
	PerPage int
	Page    int
}

// Asset is a file attached to a release
type Asset struct {
	Name               string `json:"name"`
	ContentType        string `json:"content_type"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Release is a published GitHub release
type Release struct {
	TagName     string     `json:"tag_name"`
	Name        string     `json:"name"`
	Body        string     `json:"body"`
	HTMLURL     string     `json:"html_url"`
	Draft       bool       `json:"draft"`
	Prerelease  bool       `json:"prerelease"`
	PublishedAt *time.Time `json:"published_at"`
	Assets      []Asset    `json:"assets"`
}

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

// SearchRepositories lists repositories tagged with topic
func (c *Client) SearchRepositories(ctx context.Context, topic string, opts SearchOptions) (*SearchResult, error) {
	q := "topic:" + topic
	if opts.Query != "" {
		q = opts.Query + " " + q
	}
	if opts.Sort == "" {
		opts.Sort = "stars"
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 30
	}
	if opts.Page <= 0 {
		opts.Page = 1
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("sort", opts.Sort)
	params.Set("order", opts.Order)
	params.Set("per_page", strconv.Itoa(opts.PerPage))
	params.Set("page", strconv.Itoa(opts.Page))

	var result SearchResult
	if err := c.getJSON(ctx, "/search/repositories?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRepository fetches owner/repo
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var r Repository
	if err := c.getJSON(ctx, repoPath(owner, repo), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetLatestRelease fetches the latest non-draft, non-prerelease release
func (c *Client) GetLatestRelease(ctx context.Context, owner, repo string) (*Release, error) {
	var r Release
	if err := c.getJSON(ctx, repoPath(owner, repo)+"/releases/latest", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRelease fetches the release for tag
func (c *Client) GetRelease(ctx context.Context, owner, repo, tag string) (*Release, error) {
	var r Release
	if err := c.getJSON(ctx, repoPath(owner, repo)+"/releases/tags/"+url.PathEscape(tag), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReleaseAsset picks the downloadable asset of the release for tag: the
// first .zip asset, else the first asset.
func (c *Client) GetReleaseAsset(ctx context.Context, owner, repo, tag string) (*Asset, error) {
	rel, err := c.GetRelease(ctx, owner, repo, tag)
	if err != nil {
		return nil, err
	}
	return SelectAsset(rel.Assets, fmt.Sprintf("%s/%s@%s", owner, repo, tag))
}

// SelectAsset applies the release asset selection policy
func SelectAsset(assets []Asset, release string) (*Asset, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAssets, release)
	}
	for i := range assets {
		if strings.HasSuffix(strings.ToLower(assets[i].Name), ".zip") {
			return &assets[i], nil
		}
	}
	return &assets[0], nil
}

type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// GetFileContent returns the decoded contents of path at ref. An empty ref
// means the default branch.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	endpoint := repoPath(owner, repo) + "/contents/" + strings.Join(segments, "/")
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	var cr contentResponse
	if err := c.getJSON(ctx, endpoint, &cr); err != nil {
		return nil, err
	}
	if cr.Type != "" && cr.Type != "file" {
		return nil, fmt.Errorf("%s is a %s, not a file", path, cr.Type)
	}
	if cr.Encoding != "base64" {
		return nil, fmt.Errorf("unsupported content encoding %q for %s", cr.Encoding, path)
	}

	// GitHub wraps base64 content at 60 columns.
	raw := strings.NewReplacer("\n", "", "\r", "").Replace(cr.Content)
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: err}
	}
	return data, nil
}

// GetRateLimitStatus queries /rate_limit. The response is never cached.
func (c *Client) GetRateLimitStatus(ctx context.Context) (*RateLimitStatus, error) {
	data, err := c.do(ctx, "/rate_limit", requestOptions{skipCache: true})
	if err != nil {
		return nil, err
	}

	var body struct {
		Resources struct {
			Core    rateLimitResource `json:"core"`
			Search  rateLimitResource `json:"search"`
			GraphQL rateLimitResource `json:"graphql"`
		} `json:"resources"`
	}
	if err := decode(data, "/rate_limit", &body); err != nil {
		return nil, err
	}
	return &RateLimitStatus{
		Core:    body.Resources.Core.toRateLimit(),
		Search:  body.Resources.Search.toRateLimit(),
		GraphQL: body.Resources.GraphQL.toRateLimit(),
	}, nil
}

// DownloadAsset fetches a release asset body. Downloads bypass the
// response cache.
func (c *Client) DownloadAsset(ctx context.Context, assetURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, false)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, c.timeout, assetURL)
		}
		return nil, fmt.Errorf("download %s: %w", assetURL, err)
	}
	defer resp.Body.Close()

	c.updateRateLimit(resp.Header)
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Endpoint: assetURL}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", assetURL, err)
	}
	if len(data) > maxAssetSize {
		return nil, fmt.Errorf("asset %s exceeds %d bytes", assetURL, maxAssetSize)
	}
	return data, nil
}
