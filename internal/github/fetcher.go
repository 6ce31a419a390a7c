package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBase = "https://api.github.com"
	defaultRawBase = "https://raw.githubusercontent.com"

	// maxFiles caps how many relevant files are fetched per repository.
	maxFiles = 100

	fetchConcurrency = 8
)

var (
	// ErrInvalidLocator reports a repository URL that does not name a
	// GitHub owner/repo pair.
	ErrInvalidLocator = errors.New("github: invalid repository URL")

	// ErrNoRelevantFiles reports a repository with nothing worth indexing.
	ErrNoRelevantFiles = errors.New("github: no relevant files found in repository")
)

var locatorRe = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)`)

// Locator identifies a repository by owner and name.
type Locator struct {
	Owner string
	Repo  string
}

// String returns the canonical "owner/repo" form used as an index scope.
func (l Locator) String() string {
	return l.Owner + "/" + l.Repo
}

// ParseLocator extracts owner and repository name from a GitHub URL.
// Trailing ".git" and path suffixes are tolerated. Returns
// ErrInvalidLocator when no owner/repo pair can be found.
func ParseLocator(repoURL string) (Locator, error) {
	m := locatorRe.FindStringSubmatch(repoURL)
	if m == nil {
		return Locator{}, fmt.Errorf("%w: %q", ErrInvalidLocator, repoURL)
	}
	repo := strings.TrimSuffix(m[2], ".git")
	if repo == "" {
		return Locator{}, fmt.Errorf("%w: %q", ErrInvalidLocator, repoURL)
	}
	return Locator{Owner: m[1], Repo: repo}, nil
}

// File is a repository file with its full text content.
type File struct {
	Path    string
	Content string
}

// Config controls how the fetcher talks to GitHub.
type Config struct {
	// Token is an optional GitHub token for higher rate limits.
	Token string
	// Branch is the branch whose tree is listed. Defaults to "main".
	Branch string
	// RequestsPerSecond throttles outbound requests. Zero disables
	// throttling.
	RequestsPerSecond float64

	// APIBase and RawBase override the GitHub endpoints, for tests.
	APIBase string
	RawBase string

	HTTPClient *http.Client
}

// Fetcher lists and downloads the relevant files of a public repository.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewFetcher builds a Fetcher from cfg, filling in defaults.
func NewFetcher(cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.RawBase == "" {
		cfg.RawBase = defaultRawBase
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Fetcher{cfg: cfg, client: client, limiter: limiter, logger: logger}
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// Fetch lists the repository tree, keeps the relevant files up to the
// per-repository cap, and downloads their contents concurrently. The
// returned slice preserves tree order. Returns ErrNoRelevantFiles when
// the repository contains nothing indexable, and fails as a whole when
// any single file download fails.
func (f *Fetcher) Fetch(ctx context.Context, loc Locator) ([]File, error) {
	paths, err := f.listRelevantPaths(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRelevantFiles, loc)
	}

	f.logger.Info("fetching repository files",
		slog.String("repo", loc.String()),
		slog.Int("files", len(paths)))

	files := make([]File, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			content, err := f.fetchRaw(gctx, loc, p)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", p, err)
			}
			files[i] = File{Path: p, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (f *Fetcher) listRelevantPaths(ctx context.Context, loc Locator) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		f.cfg.APIBase, loc.Owner, loc.Repo, f.cfg.Branch)
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("list repository tree: %w", err)
	}

	var tree treeResponse
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, fmt.Errorf("decode repository tree: %w", err)
	}
	if tree.Truncated {
		f.logger.Warn("repository tree truncated by GitHub",
			slog.String("repo", loc.String()))
	}

	var paths []string
	for _, entry := range tree.Tree {
		if entry.Type != "blob" || !IsRelevantFile(entry.Path) {
			continue
		}
		paths = append(paths, entry.Path)
		if len(paths) == maxFiles {
			break
		}
	}
	return paths, nil
}

func (f *Fetcher) fetchRaw(ctx context.Context, loc Locator, path string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/%s/%s",
		f.cfg.RawBase, loc.Owner, loc.Repo, f.cfg.Branch, path)
	body, err := f.get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
