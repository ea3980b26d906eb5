package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	ghclient "github.com/mike-a-ellis/bookrag/internal/github"
)

// GitHubScheme prefixes sources of the form "github:owner/repo/path".
const GitHubScheme = "github:"

// GitHubSource reads a markdown book from a GitHub repository. Files are read
// in lexical path order and each H1/H2 section becomes a page.
type GitHubSource struct {
	client   *ghclient.Client
	markdown *MarkdownExtractor
	logger   *slog.Logger
}

// NewGitHubSource creates a GitHub-backed extractor.
func NewGitHubSource(client *ghclient.Client, logger *slog.Logger) *GitHubSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubSource{
		client:   client,
		markdown: NewMarkdownExtractor(),
		logger:   logger,
	}
}

// ParseGitHubSource splits "github:owner/repo/path" into its parts. The path
// may be empty (repository root) or name a single markdown file.
func ParseGitHubSource(source string) (owner, repo, basePath string, err error) {
	rest, ok := strings.CutPrefix(source, GitHubScheme)
	if !ok {
		return "", "", "", fmt.Errorf("%w: %s", ErrUnsupportedInput, source)
	}
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("%w: expected github:owner/repo[/path], got %s", ErrUnsupportedInput, source)
	}
	if len(parts) == 3 {
		basePath = parts[2]
	}
	return parts[0], parts[1], basePath, nil
}

// Extract implements Extractor. A file that cannot be fetched or parsed
// becomes a single error-sentinel page; the rest of the book is still read.
func (g *GitHubSource) Extract(ctx context.Context, source string) (Pages, error) {
	owner, repo, basePath, err := ParseGitHubSource(source)
	if err != nil {
		return nil, err
	}

	fetcher := ghclient.NewFetcher(g.client, owner, repo, basePath)
	if sha, err := fetcher.LatestCommitSHA(ctx); err == nil {
		g.logger.Info("Reading book from GitHub", "source", source, "commit", sha)
	}

	paths, err := fetcher.ListDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", source, err)
	}

	pages := make(Pages)
	next := 1
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := fetcher.FetchDoc(ctx, path)
		if err != nil {
			g.logger.Warn("Failed to fetch document", "path", path, "error", err)
			pages[next] = ErrorSentinel(err.Error())
			next++
			continue
		}

		sections, err := g.markdown.Sections([]byte(doc.Content))
		if err != nil {
			g.logger.Warn("Failed to split document", "path", path, "error", err)
			pages[next] = ErrorSentinel(err.Error())
			next++
			continue
		}

		for id, text := range SectionsToPages(sections, next) {
			pages[id] = text
		}
		next += len(sections)
	}
	return pages, nil
}
