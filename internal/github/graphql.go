package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxBatchSize is how many repositories one batch query asks for
const MaxBatchSize = 10

// fallbackConcurrency bounds the per-repository REST calls made when the
// batch query fails.
const fallbackConcurrency = 4

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// BatchSource says which path produced a BatchResult
type BatchSource string

const (
	BatchSourceGraphQL BatchSource = "graphql"
	BatchSourceREST    BatchSource = "rest"
)

// ExtensionMetadata is the flat per-repository record a batch fetch yields
type ExtensionMetadata struct {
	ID            string // owner/repo
	Name          string
	Author        string
	Description   string
	Stars         int
	LastUpdated   *time.Time
	LatestRelease string // tag name, empty when there is none
}

// BatchResult is either the GraphQL answer or, when that failed, the
// REST fallback answer together with the reason GraphQL was abandoned.
type BatchResult struct {
	Source         BatchSource
	Records        []ExtensionMetadata
	FallbackReason error
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQLQuery posts query with vars and decodes the data member into out.
// A response carrying an errors array fails with *GraphQLError.
func (c *Client) GraphQLQuery(ctx context.Context, query string, vars map[string]any, out any) error {
	payload := map[string]any{"query": query}
	if len(vars) > 0 {
		payload["variables"] = vars
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var resp graphqlResponse
	check := func(data []byte) error {
		if err := json.Unmarshal(data, &resp); err != nil {
			return &DecodeError{Endpoint: c.graphqlURL, Err: err}
		}
		if len(resp.Errors) > 0 {
			msgs := make([]string, 0, len(resp.Errors))
			for _, e := range resp.Errors {
				msgs = append(msgs, e.Message)
			}
			return &GraphQLError{Messages: msgs}
		}
		return nil
	}

	data, err := c.do(ctx, c.graphqlURL, requestOptions{
		method:  http.MethodPost,
		body:    body,
		graphql: true,
		check:   check,
	})
	if err != nil {
		return err
	}
	// A cache hit skips check, so decode again here.
	if err := check(data); err != nil {
		return err
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	return decode(resp.Data, c.graphqlURL, out)
}

// splitID validates owner/repo against the identifier allow-list
func splitID(id string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(id, "/")
	if !ok || !identifierPattern.MatchString(owner) || !identifierPattern.MatchString(repo) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return owner, repo, nil
}

func firstBatch(ids []string) []string {
	if len(ids) > MaxBatchSize {
		return ids[:MaxBatchSize]
	}
	return ids
}

// BuildBatchQuery returns one query with an aliased repoN field per id, for
// at most the first MaxBatchSize ids. Every owner and repo token is checked
// against the allow-list before it is written into the query text.
func BuildBatchQuery(ids []string) (string, error) {
	var b strings.Builder
	b.WriteString("query {\n")
	for i, id := range firstBatch(ids) {
		owner, repo, err := splitID(id)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "  repo%d: repository(owner: %q, name: %q) {\n", i, owner, repo)
		b.WriteString("    nameWithOwner\n    name\n    description\n    stargazerCount\n    updatedAt\n")
		b.WriteString("    owner { login }\n    latestRelease { tagName }\n  }\n")
	}
	b.WriteString("}")
	return b.String(), nil
}

type batchRepository struct {
	NameWithOwner  string     `json:"nameWithOwner"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	StargazerCount int        `json:"stargazerCount"`
	UpdatedAt      *time.Time `json:"updatedAt"`
	Owner          struct {
		Login string `json:"login"`
	} `json:"owner"`
	LatestRelease *struct {
		TagName string `json:"tagName"`
	} `json:"latestRelease"`
}

func (r batchRepository) metadata() ExtensionMetadata {
	m := ExtensionMetadata{
		ID:          r.NameWithOwner,
		Name:        r.Name,
		Author:      r.Owner.Login,
		Description: r.Description,
		Stars:       r.StargazerCount,
		LastUpdated: r.UpdatedAt,
	}
	if r.LatestRelease != nil {
		m.LatestRelease = r.LatestRelease.TagName
	}
	return m
}

// BatchFetchExtensions fetches metadata for up to the first MaxBatchSize
// ids with one GraphQL query. If the query fails for any reason it falls
// back to concurrent REST lookups; ids that fail there are left out. An
// invalid id fails the whole call before any request is sent.
func (c *Client) BatchFetchExtensions(ctx context.Context, ids []string) (BatchResult, error) {
	ids = firstBatch(ids)
	if len(ids) == 0 {
		return BatchResult{Source: BatchSourceGraphQL}, nil
	}

	query, err := BuildBatchQuery(ids)
	if err != nil {
		return BatchResult{}, err
	}

	records, gqlErr := c.fetchBatchGraphQL(ctx, query, ids)
	if gqlErr == nil {
		c.metrics.IncBatch(string(BatchSourceGraphQL))
		return BatchResult{Source: BatchSourceGraphQL, Records: records}, nil
	}

	c.logger.Warn("batch query failed, falling back to REST",
		zap.Int("repos", len(ids)), zap.Error(gqlErr))
	c.metrics.IncBatch(string(BatchSourceREST))
	return BatchResult{
		Source:         BatchSourceREST,
		Records:        c.fetchBatchREST(ctx, ids),
		FallbackReason: gqlErr,
	}, nil
}

func (c *Client) fetchBatchGraphQL(ctx context.Context, query string, ids []string) ([]ExtensionMetadata, error) {
	var data map[string]json.RawMessage
	if err := c.GraphQLQuery(ctx, query, nil, &data); err != nil {
		return nil, err
	}

	records := make([]ExtensionMetadata, 0, len(ids))
	for i := range ids {
		raw, ok := data[fmt.Sprintf("repo%d", i)]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		var repo batchRepository
		if err := json.Unmarshal(raw, &repo); err != nil {
			return nil, &DecodeError{Endpoint: c.graphqlURL, Err: err}
		}
		records = append(records, repo.metadata())
	}
	return records, nil
}

func (c *Client) fetchBatchREST(ctx context.Context, ids []string) []ExtensionMetadata {
	results := make([]*ExtensionMetadata, len(ids))

	var g errgroup.Group
	g.SetLimit(fallbackConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			owner, repo, _ := splitID(id)
			r, err := c.GetRepository(ctx, owner, repo)
			if err != nil {
				c.logger.Debug("fallback lookup failed", zap.String("repo", id), zap.Error(err))
				return nil
			}
			results[i] = &ExtensionMetadata{
				ID:          r.FullName,
				Name:        r.Name,
				Author:      r.Owner.Login,
				Description: r.Description,
				Stars:       r.StargazersCount,
				LastUpdated: r.UpdatedAt,
			}
			return nil
		})
	}
	g.Wait()

	records := make([]ExtensionMetadata, 0, len(ids))
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records
}
