package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/http/httpproxy"

	"github.com/samhoang/ccx/internal/cache"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	o := Options{
		BaseURL:    srv.URL,
		GraphQLURL: srv.URL + "/graphql",
		HTTPClient: srv.Client(),
		Cache:      cache.NewMemoryCache(cache.Options{TTL: time.Minute, StaleTTL: time.Hour}),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o)
}

func withToken(token string) func(*Options) {
	return func(o *Options) { o.Token = token }
}

type counter struct{ n atomic.Int32 }

func (c *counter) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.n.Add(1)
		h(w, r)
	}
}

func (c *counter) count() int { return int(c.n.Load()) }

func repoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"full_name":"acme/lint","name":"lint","owner":{"login":"acme"},"stargazers_count":42}`)
}

func TestCachedRequestHitsNetworkOnce(t *testing.T) {
	var calls counter
	c := newTestClient(t, calls.wrap(repoHandler))
	ctx := context.Background()

	first, err := c.GetRepository(ctx, "acme", "lint")
	require.NoError(t, err)
	second, err := c.GetRepository(ctx, "acme", "lint")
	require.NoError(t, err)

	assert.Equal(t, 1, calls.count())
	assert.Equal(t, first, second)
	assert.Equal(t, 42, second.StargazersCount)
}

func TestSkipCacheAlwaysHitsNetwork(t *testing.T) {
	var calls counter
	c := newTestClient(t, calls.wrap(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rate_limit", r.URL.Path)
		fmt.Fprint(w, `{"resources":{"core":{"limit":60,"remaining":59,"reset":1700000000}}}`)
	}))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		status, err := c.GetRateLimitStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 60, status.Core.Limit)
		assert.Equal(t, int64(1700000000), status.Core.Reset.Unix())
	}
	assert.Equal(t, 2, calls.count())
}

func TestStaleEntryRevalidatesWithETag(t *testing.T) {
	var calls counter
	var sawETag atomic.Bool
	c := newTestClient(t, calls.wrap(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			sawETag.Store(true)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		repoHandler(w, r)
	}))
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	first, err := c.GetRepository(ctx, "acme", "lint")
	require.NoError(t, err)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	second, err := c.GetRepository(ctx, "acme", "lint")
	require.NoError(t, err)

	assert.Equal(t, 2, calls.count())
	assert.True(t, sawETag.Load())
	assert.Equal(t, first, second)
}

func TestRateLimitHeadersUpdateState(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderRateLimit, "5000")
		w.Header().Set(HeaderRateRemaining, "4321")
		w.Header().Set(HeaderRateReset, "1700000123")
		repoHandler(w, r)
	}))

	_, err := c.GetRepository(context.Background(), "acme", "lint")
	require.NoError(t, err)

	rl := c.RateLimit()
	assert.Equal(t, 5000, rl.Limit)
	assert.Equal(t, 4321, rl.Remaining)
	assert.Equal(t, time.Unix(1700000123, 0), rl.Reset)
}

func TestUpdateRateLimitIgnoresMissingHeaders(t *testing.T) {
	c := New(Options{})
	h := http.Header{}
	h.Set(HeaderRateLimit, "60")
	h.Set(HeaderRateRemaining, "10")
	h.Set(HeaderRateReset, "1700000000")
	c.updateRateLimit(h)
	c.updateRateLimit(http.Header{})

	rl := c.RateLimit()
	assert.Equal(t, 60, rl.Limit)
	assert.Equal(t, 10, rl.Remaining)
	assert.Equal(t, int64(1700000000), rl.Reset.Unix())
}

func TestRateLimitedResponses(t *testing.T) {
	reset := time.Now().Add(time.Hour).Truncate(time.Second)

	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(HeaderRateLimit, "60")
				w.Header().Set(HeaderRateRemaining, "0")
				w.Header().Set(HeaderRateReset, strconv.FormatInt(reset.Unix(), 10))
				w.WriteHeader(status)
				fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
			}))
			c.now = func() time.Time { return reset.Add(-10 * time.Minute) }

			_, err := c.GetRepository(context.Background(), "acme", "lint")
			var rlErr *RateLimitError
			require.ErrorAs(t, err, &rlErr)
			assert.Equal(t, 60, rlErr.Limit)
			assert.Equal(t, 0, rlErr.Remaining)
			assert.Equal(t, 10, rlErr.WaitMinutes)
			assert.Contains(t, err.Error(), "10 minutes")
		})
	}
}

func TestAPIErrorCarriesStatusAndMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}))

	_, err := c.GetRepository(context.Background(), "acme", "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Not Found", apiErr.Message)
	assert.Equal(t, "/repos/acme/missing", apiErr.Endpoint)
}

func TestInvalidJSONIsDecodeErrorAndNotCached(t *testing.T) {
	var calls counter
	c := newTestClient(t, calls.wrap(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>oops</html>`)
	}))
	ctx := context.Background()

	_, err := c.GetRepository(ctx, "acme", "lint")
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "/repos/acme/lint", decErr.Endpoint)

	_, err = c.GetRepository(ctx, "acme", "lint")
	require.Error(t, err)
	assert.Equal(t, 2, calls.count())
}

func TestTimeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}), func(o *Options) { o.Timeout = 20 * time.Millisecond })

	_, err := c.GetRepository(context.Background(), "acme", "lint")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHeaders(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		wantAuth string
	}{
		{"anonymous", "", ""},
		{"token", "ghp_secret", "token ghp_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got http.Header
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Clone()
				repoHandler(w, r)
			}), withToken(tt.token))

			_, err := c.GetRepository(context.Background(), "acme", "lint")
			require.NoError(t, err)

			assert.Equal(t, DefaultUserAgent, got.Get("User-Agent"))
			assert.Equal(t, "application/vnd.github.v3+json", got.Get("Accept"))
			assert.Equal(t, tt.wantAuth, got.Get("Authorization"))
			_, present := got["Authorization"]
			assert.Equal(t, tt.token != "", present)
		})
	}
}

func TestCacheKeySeparatesAuthModesAndBodies(t *testing.T) {
	anon := New(Options{})
	auth := New(Options{Token: "t"})

	assert.Equal(t, "anon:GET /repos/a/b", anon.cacheKey("GET", "/repos/a/b", nil))
	assert.Equal(t, "auth:GET /repos/a/b", auth.cacheKey("GET", "/repos/a/b", nil))

	k1 := anon.cacheKey("POST", "/graphql", []byte(`{"query":"a"}`))
	k2 := anon.cacheKey("POST", "/graphql", []byte(`{"query":"b"}`))
	assert.NotEqual(t, k1, k2)
	assert.Regexp(t, `^anon:POST /graphql#[0-9a-f]{64}$`, k1)
}

func TestSearchRepositories(t *testing.T) {
	var query url.Values
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/repositories", r.URL.Path)
		query = r.URL.Query()
		fmt.Fprint(w, `{"total_count":1,"items":[{"full_name":"acme/lint","name":"lint","owner":{"login":"acme"}}]}`)
	}))

	res, err := c.SearchRepositories(context.Background(), "claude-code-extension", SearchOptions{Query: "lint"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "acme/lint", res.Items[0].FullName)

	assert.Equal(t, "lint topic:claude-code-extension", query.Get("q"))
	assert.Equal(t, "stars", query.Get("sort"))
	assert.Equal(t, "desc", query.Get("order"))
	assert.Equal(t, "30", query.Get("per_page"))
}

func TestGetReleaseAsset(t *testing.T) {
	tests := []struct {
		name    string
		assets  string
		want    string
		wantErr error
	}{
		{"prefers zip", `[{"name":"ext.tar.gz"},{"name":"ext.zip"}]`, "ext.zip", nil},
		{"falls back to first", `[{"name":"ext.tar.gz"},{"name":"ext.tgz"}]`, "ext.tar.gz", nil},
		{"no assets", `[]`, "", ErrNoAssets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/acme/lint/releases/tags/v1.0.0", r.URL.Path)
				fmt.Fprintf(w, `{"tag_name":"v1.0.0","assets":%s}`, tt.assets)
			}))

			asset, err := c.GetReleaseAsset(context.Background(), "acme", "lint", "v1.0.0")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, asset.Name)
		})
	}
}

func TestGetLatestRelease(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/lint/releases/latest", r.URL.Path)
		fmt.Fprint(w, `{"tag_name":"v1.2.0","assets":[{"name":"lint.zip","browser_download_url":"https://example.test/lint.zip"}]}`)
	}))

	rel, err := c.GetLatestRelease(context.Background(), "acme", "lint")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", rel.TagName)
	require.Len(t, rel.Assets, 1)
}

func TestGetFileContent(t *testing.T) {
	content := "# Lint helper\n\nRuns linters.\n"
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	wrapped := encoded[:10] + "\n" + encoded[10:]

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/lint/contents/docs/README.md", r.URL.Path)
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","content":%q}`, wrapped)
	}))

	data, err := c.GetFileContent(context.Background(), "acme", "lint", "docs/README.md", "main")
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestDownloadAsset(t *testing.T) {
	var calls counter
	c := newTestClient(t, calls.wrap(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		w.Write([]byte("PK\x03\x04"))
	}))
	srvURL := c.baseURL + "/download/lint.zip"

	for i := 0; i < 2; i++ {
		data, err := c.DownloadAsset(context.Background(), srvURL)
		require.NoError(t, err)
		assert.Equal(t, []byte("PK\x03\x04"), data)
	}
	assert.Equal(t, 2, calls.count(), "downloads are not cached")
}

func TestMalformedProxyIsIgnored(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tr := newTransport(&httpproxy.Config{HTTPSProxy: "%zz"}, zap.New(core))

	req := httptest.NewRequest(http.MethodGet, "https://api.github.com/repos/a/b", nil)
	proxy, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Nil(t, proxy)
	assert.Equal(t, 1, logs.FilterMessage("ignoring malformed proxy setting").Len())
}

func TestProxyIsHonored(t *testing.T) {
	tr := newTransport(&httpproxy.Config{HTTPSProxy: "http://proxy.internal:3128"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "https://api.github.com/repos/a/b", nil)
	proxy, err := tr.Proxy(req)
	require.NoError(t, err)
	require.NotNil(t, proxy)
	assert.Equal(t, "proxy.internal:3128", proxy.Host)
}

func TestNewDefaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultGraphQLURL, c.graphqlURL)
	assert.Equal(t, DefaultTimeout, c.timeout)
	assert.NotNil(t, c.Cache())
	assert.False(t, c.HasToken())
}
