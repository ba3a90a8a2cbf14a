package guard

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ExpectedHost is the only host repository URLs may point at.
const ExpectedHost = "github.com"

var (
	ErrUnparsableURL     = errors.New("invalid URL format")
	ErrDisallowedScheme  = errors.New("only http and https URLs are allowed")
	ErrDisallowedHost    = fmt.Errorf("only %s repository URLs are allowed", ExpectedHost)
	ErrMalformedRepoPath = errors.New("URL must point to a repository (https://github.com/owner/repo)")
)

// URLError describes why a repository URL was rejected.
type URLError struct {
	URL string
	Err error
}

func (e *URLError) Error() string {
	return e.Err.Error()
}

func (e *URLError) Unwrap() error {
	return e.Err
}

// RepoURLResult is the outcome of ValidateRepositoryURL.
type RepoURLResult struct {
	Valid bool
	Owner string
	Repo  string
	Err   error
}

// ID returns the owner/repo identifier.
func (r RepoURLResult) ID() string {
	return r.Owner + "/" + r.Repo
}

// ValidateRepositoryURL checks that raw is an http(s) URL on ExpectedHost
// with at least an owner and repository path segment.
func ValidateRepositoryURL(raw string) RepoURLResult {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return reject(raw, ErrUnparsableURL)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return reject(raw, ErrDisallowedScheme)
	}

	// Exact match only: github.com.evil.com and evil-github.com are foreign hosts.
	if !strings.EqualFold(u.Hostname(), ExpectedHost) {
		return reject(raw, ErrDisallowedHost)
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return reject(raw, ErrMalformedRepoPath)
	}

	owner := segments[0]
	repo := strings.TrimSuffix(segments[1], ".git")
	if repo == "" {
		return reject(raw, ErrMalformedRepoPath)
	}

	return RepoURLResult{Valid: true, Owner: owner, Repo: repo}
}

func reject(raw string, err error) RepoURLResult {
	return RepoURLResult{Err: &URLError{URL: raw, Err: err}}
}
