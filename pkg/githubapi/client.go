// Package githubapi talks to the GitHub REST API on behalf of the review
// pipeline: it verifies webhook signatures and fetches the set of source
// files touched by a commit.
package githubapi

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
)

// ChangedFile is one analysable file from a commit. It is never persisted;
// the orchestrator consumes it and discards it.
type ChangedFile struct {
	Path    string
	Status  string
	Content string
}

// FileStatusRemoved is the commit-file status for deletions; there is nothing
// to analyse for those.
const FileStatusRemoved = "removed"

// deniedSegments are path segments that disqualify a file anywhere in its
// path, so nested vendor trees are excluded too.
var deniedSegments = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"out":          {},
	"target":       {},
	".git":         {},
	".idea":        {},
	".vscode":      {},
	"__pycache__":  {},
	"coverage":     {},
}

// deniedFiles are generated artefacts excluded by exact file name.
var deniedFiles = map[string]struct{}{
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"go.sum":            {},
	"cargo.lock":        {},
	"composer.lock":     {},
	"gemfile.lock":      {},
	"poetry.lock":       {},
}

// allowedExtensions are the source, config and markup extensions worth
// sending to the reviewer.
var allowedExtensions = map[string]struct{}{
	".go": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {}, ".py": {},
	".java": {}, ".rb": {}, ".php": {}, ".c": {}, ".h": {}, ".cpp": {},
	".hpp": {}, ".cs": {}, ".rs": {}, ".kt": {}, ".swift": {}, ".scala": {},
	".sql": {}, ".sh": {}, ".html": {}, ".css": {}, ".scss": {}, ".vue": {},
	".svelte": {}, ".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".md": {},
}

// ShouldAnalyzePath reports whether a changed file path passes the denylist
// and extension allowlist.
func ShouldAnalyzePath(filePath string) bool {
	lower := strings.ToLower(filePath)
	for _, segment := range strings.Split(lower, "/") {
		if _, denied := deniedSegments[segment]; denied {
			return false
		}
	}

	if _, denied := deniedFiles[path.Base(lower)]; denied {
		return false
	}

	_, allowed := allowedExtensions[path.Ext(lower)]
	return allowed
}

// CanonicalRepositoryURL builds the canonical repository URL stored on
// submissions from a webhook's full name ("owner/repo").
func CanonicalRepositoryURL(fullName string) string {
	return "https://github.com/" + strings.TrimSuffix(strings.TrimSpace(fullName), "/")
}

// SplitRepositoryURL extracts owner and repo from a stored repository URL.
func SplitRepositoryURL(repositoryURL string) (string, string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(repositoryURL), "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")

	for _, prefix := range []string{"https://github.com/", "http://github.com/", "git@github.com:"} {
		if strings.HasPrefix(trimmed, prefix) {
			parts := strings.Split(strings.TrimPrefix(trimmed, prefix), "/")
			if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
				return parts[0], parts[1], nil
			}
		}
	}

	return "", "", fmt.Errorf("not a parseable github repository url: %q", repositoryURL)
}

// Config holds client construction options.
type Config struct {
	Token  string
	Logger zerolog.Logger
}

// Client fetches commit data from the GitHub REST API.
type Client struct {
	gh     *github.Client
	logger zerolog.Logger
}

// NewClient builds a GitHub client. An empty token yields an unauthenticated
// client, useful against public repositories and in tests.
func NewClient(cfg Config) *Client {
	gh := github.NewClient(nil)
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}

	return &Client{
		gh:     gh,
		logger: cfg.Logger.With().Str("component", "github_client").Logger(),
	}
}

// FetchChangedFiles lists the files touched by one commit and downloads the
// content of every analysable one. A file whose content cannot be retrieved
// is dropped rather than failing the batch; an empty result is a benign
// "nothing to analyse" outcome, not an error.
func (c *Client) FetchChangedFiles(ctx context.Context, owner, repo, commitSHA string) ([]ChangedFile, error) {
	commit, _, err := c.gh.Repositories.GetCommit(ctx, owner, repo, commitSHA, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, wrapError(err)
	}

	files := make([]ChangedFile, 0, len(commit.Files))
	for _, commitFile := range commit.Files {
		filePath := commitFile.GetFilename()
		status := commitFile.GetStatus()

		if status == FileStatusRemoved || !ShouldAnalyzePath(filePath) {
			continue
		}

		content, err := c.fetchContent(ctx, owner, repo, filePath, commitSHA)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("repository", owner+"/"+repo).
				Str("path", filePath).
				Msg("skipping file with unreadable content")
			continue
		}

		files = append(files, ChangedFile{Path: filePath, Status: status, Content: content})
	}

	return files, nil
}

func (c *Client) fetchContent(ctx context.Context, owner, repo, filePath, ref string) (string, error) {
	fileContent, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, filePath, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", wrapError(err)
	}
	if fileContent == nil {
		return "", fmt.Errorf("path %q is not a file", filePath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode content for %q: %w", filePath, err)
	}

	return content, nil
}
