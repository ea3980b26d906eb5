// Package github reads markdown books hosted in GitHub repositories.
package github

import (
	"context"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with rate limiting support.
type Client struct {
	*github.Client
}

// NewClient creates a rate-limited GitHub client. An empty token yields an
// unauthenticated client (60 requests/hour); a token raises the limit.
func NewClient(_ context.Context, token string) (*Client, error) {
	// Waits out both primary and secondary (abuse detection) rate limits.
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &Client{Client: ghClient}, nil
}
