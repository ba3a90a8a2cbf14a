package github

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	ErrTimeout           = errors.New("github request timed out")
	ErrNoAssets          = errors.New("release has no assets")
	ErrInvalidIdentifier = errors.New("invalid repository identifier")
)

// APIError is a non-success HTTP status from GitHub
type APIError struct {
	Status   int
	Endpoint string
	Message  string // upstream "message" field, if any
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("GitHub API error %d on %s: %s", e.Status, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("GitHub API error %d on %s", e.Status, e.Endpoint)
}

// RateLimitError is returned for 403 and 429 responses. It is
// informational; the request is not retried.
type RateLimitError struct {
	Limit       int
	Remaining   int
	Reset       time.Time
	WaitMinutes int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("GitHub API rate limit exceeded (%d/%d remaining); try again in %d minutes",
		e.Remaining, e.Limit, e.WaitMinutes)
}

// DecodeError means a response body was not the JSON we expected
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid JSON response from %s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// GraphQLError carries the errors array of a GraphQL response
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "GraphQL error: " + strings.Join(e.Messages, "; ")
}
