// Package github is a cached, rate-limit aware client for the GitHub REST
// and GraphQL APIs.
package github

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpproxy"

	"github.com/samhoang/ccx/internal/cache"
	"github.com/samhoang/ccx/internal/metrics"
)

const (
	DefaultBaseURL    = "https://api.github.com"
	DefaultGraphQLURL = "https://api.github.com/graphql"
	DefaultTimeout    = 30 * time.Second
	DefaultUserAgent  = "ccx-extension-manager"

	acceptREST    = "application/vnd.github.v3+json"
	acceptGraphQL = "application/json"

	maxResponseSize = 10 << 20
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	Token      string
	BaseURL    string
	GraphQLURL string
	Timeout    time.Duration
	UserAgent  string

	// Cache defaults to an in-memory cache.
	Cache cache.Cache

	// HTTPClient replaces the client built from ProxyEnv; tests point it
	// at an httptest server.
	HTTPClient *http.Client

	// ProxyEnv defaults to httpproxy.FromEnvironment().
	ProxyEnv *httpproxy.Config

	Logger  *zap.Logger
	Metrics metrics.Proxy
}

// Client talks to the GitHub API. It is safe for concurrent use.
type Client struct {
	token      string
	baseURL    string
	graphqlURL string
	timeout    time.Duration
	userAgent  string

	http    *http.Client
	cache   cache.Cache
	logger  *zap.Logger
	metrics metrics.Proxy
	now     func() time.Time

	rateMu sync.Mutex
	rate   RateLimit
}

// New creates a Client. The HTTP client and its connection pool are built
// once here and shared by every call.
func New(opts Options) *Client {
	c := &Client{
		token:      opts.Token,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		graphqlURL: opts.GraphQLURL,
		timeout:    opts.Timeout,
		userAgent:  opts.UserAgent,
		http:       opts.HTTPClient,
		cache:      opts.Cache,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.graphqlURL == "" {
		c.graphqlURL = DefaultGraphQLURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.metrics == nil {
		c.metrics = metrics.Noop{}
	}
	if c.cache == nil {
		c.cache = cache.NewMemoryCache(cache.DefaultOptions())
	}
	if c.http == nil {
		c.http = &http.Client{Transport: newTransport(opts.ProxyEnv, c.logger)}
	}
	return c
}

// newTransport clones the default transport and routes it through the
// configured forward proxy. A proxy setting that cannot be parsed is
// logged and ignored.
func newTransport(env *httpproxy.Config, logger *zap.Logger) *http.Transport {
	if env == nil {
		env = httpproxy.FromEnvironment()
	}
	cfg := *env

	for name, raw := range map[string]*string{"HTTP_PROXY": &cfg.HTTPProxy, "HTTPS_PROXY": &cfg.HTTPSProxy} {
		if err := checkProxyURL(*raw); err != nil {
			logger.Warn("ignoring malformed proxy setting", zap.String("var", name), zap.Error(err))
			*raw = ""
		}
	}

	proxy := cfg.ProxyFunc()
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}
	return t
}

// checkProxyURL accepts what httpproxy accepts: a full URL or a bare
// host:port that becomes http://host:port.
func checkProxyURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" && u.Host != "" {
		return nil
	}
	if u, err := url.Parse("http://" + raw); err == nil && u.Host != "" {
		return nil
	}
	return fmt.Errorf("invalid proxy address %q", raw)
}

// Cache returns the response cache backing this client
func (c *Client) Cache() cache.Cache {
	return c.cache
}

// HasToken reports whether requests are authenticated
func (c *Client) HasToken() bool {
	return c.token != ""
}

type requestOptions struct {
	method    string
	body      []byte
	graphql   bool
	skipCache bool // neither read nor write the cache

	// check inspects a 200 body before it is cached; an error aborts the
	// request and nothing is cached.
	check func([]byte) error
}

func (c *Client) cacheKey(method, endpoint string, body []byte) string {
	mode := "anon"
	if c.token != "" {
		mode = "auth"
	}
	key := fmt.Sprintf("%s:%s %s", mode, method, endpoint)
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		key += "#" + hex.EncodeToString(sum[:])
	}
	return key
}

func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "http://") {
		return endpoint
	}
	return c.baseURL + endpoint
}

func (c *Client) setHeaders(req *http.Request, graphql bool) {
	req.Header.Set("User-Agent", c.userAgent)
	if graphql {
		req.Header.Set("Accept", acceptGraphQL)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req.Header.Set("Accept", acceptREST)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
}

// do performs one request and returns the raw JSON body. A fresh cache
// entry short-circuits the network; a stale one is revalidated with its
// ETag.
func (c *Client) do(ctx context.Context, endpoint string, opts requestOptions) ([]byte, error) {
	if opts.method == "" {
		opts.method = http.MethodGet
	}
	key := c.cacheKey(opts.method, endpoint, opts.body)

	var cached cache.Entry
	var haveCached bool
	if !opts.skipCache {
		entry, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			if entry.Fresh(c.now()) {
				c.metrics.IncCache("hit")
				return entry.Value, nil
			}
			cached, haveCached = entry, true
			c.metrics.IncCache("stale")
		} else {
			c.metrics.IncCache("miss")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if opts.body != nil {
		body = bytes.NewReader(opts.body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.method, c.resolve(endpoint), body)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, opts.graphql)
	if haveCached && cached.ETag != "" {
		req.Header.Set("If-None-Match", cached.ETag)
	}

	kind := "rest"
	if opts.graphql {
		kind = "graphql"
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(kind, "error", time.Since(start).Seconds())
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, c.timeout, endpoint)
		}
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRequest(kind, fmt.Sprint(resp.StatusCode), time.Since(start).Seconds())

	c.updateRateLimit(resp.Header)

	if resp.StatusCode == http.StatusNotModified {
		if !haveCached {
			return nil, &APIError{Status: resp.StatusCode, Endpoint: endpoint, Message: "not modified but nothing cached"}
		}
		if err := c.cache.Set(ctx, key, cached.Value, cached.ETag); err != nil {
			c.logger.Debug("cache refresh failed", zap.String("key", key), zap.Error(err))
		}
		c.logger.Debug("not modified", zap.String("endpoint", endpoint))
		return cached.Value, nil
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, c.rateLimitError()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, c.timeout, endpoint)
		}
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}

	var parsed any
	var parseErr error
	if len(bytes.TrimSpace(data)) > 0 {
		parseErr = json.Unmarshal(data, &parsed)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Endpoint: endpoint}
		if obj, ok := parsed.(map[string]any); ok && parseErr == nil {
			apiErr.Message, _ = obj["message"].(string)
		}
		return nil, apiErr
	}
	if parseErr != nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: parseErr}
	}

	if opts.check != nil {
		if err := opts.check(data); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode == http.StatusOK && !opts.skipCache {
		if err := c.cache.Set(ctx, key, data, resp.Header.Get("ETag")); err != nil {
			c.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return data, nil
}

// getJSON issues a cached GET and decodes the body into out
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	data, err := c.do(ctx, endpoint, requestOptions{})
	if err != nil {
		return err
	}
	return decode(data, endpoint, out)
}

func decode(data []byte, endpoint string, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
