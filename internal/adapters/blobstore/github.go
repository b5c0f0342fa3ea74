package blobstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/okian/evalboard/internal/domain/evalerr"
)

// Default GitHub settings.
const (
	DefaultGitHubAPIURL = "https://api.github.com"
	defaultGitHubBranch = "main"
	githubAPIVersion    = "2022-11-28"
	githubHTTPTimeout   = 30 * time.Second
	maxErrorBody        = 4 << 10
)

// GitHubOption applies a configuration option to the GitHub store.
type GitHubOption func(*GitHub)

// WithGitHubAPIURL overrides the API root, e.g. for GitHub Enterprise.
func WithGitHubAPIURL(u string) GitHubOption {
	return func(g *GitHub) {
		if u != "" {
			g.apiURL = strings.TrimRight(u, "/")
		}
	}
}

// WithGitHubBranch sets the branch blobs are read from and committed to.
func WithGitHubBranch(b string) GitHubOption {
	return func(g *GitHub) {
		if b != "" {
			g.branch = b
		}
	}
}

// WithGitHubToken sets the bearer token.
func WithGitHubToken(t string) GitHubOption {
	return func(g *GitHub) { g.token = t }
}

// WithGitHubPath places every key under dir inside the repository.
func WithGitHubPath(dir string) GitHubOption {
	return func(g *GitHub) { g.dir = strings.Trim(dir, "/") }
}

// WithGitHubHTTPClient sets the HTTP client.
func WithGitHubHTTPClient(c *http.Client) GitHubOption {
	return func(g *GitHub) {
		if c != nil {
			g.client = c
		}
	}
}

// GitHub stores blobs as files of a repository through the contents API.
// The version token is the file's blob SHA.
type GitHub struct {
	apiURL string
	repo   string
	branch string
	token  string
	dir    string
	client *http.Client
}

// NewGitHub returns a store for repo ("owner/name").
func NewGitHub(repo string, opts ...GitHubOption) (*GitHub, error) {
	if strings.Count(repo, "/") != 1 || strings.HasPrefix(repo, "/") || strings.HasSuffix(repo, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepo, repo)
	}
	g := &GitHub{
		apiURL: DefaultGitHubAPIURL,
		repo:   repo,
		branch: defaultGitHubBranch,
		client: &http.Client{Timeout: githubHTTPTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type contentsFile struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Size     int64  `json:"size"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// Get implements Store.
func (g *GitHub) Get(ctx context.Context, key string) (Blob, error) {
	const op = "blobstore.github.get"

	u := g.contentsURL(key) + "?ref=" + url.QueryEscape(g.branch)
	req, err := g.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Blob{}, evalerr.WrapOp(op, err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return Blob{}, evalerr.Wrap(op, evalerr.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Blob{}, evalerr.WrapOp(op, classify(resp))
	}

	var f contentsFile
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return Blob{}, evalerr.Wrap(op, evalerr.ErrTransient, fmt.Errorf("decode contents: %w", err))
	}
	if f.Type != "" && f.Type != "file" {
		return Blob{}, fmt.Errorf("%s: %w: %s is a %s", op, ErrNotAFile, key, f.Type)
	}

	// Files over 1 MB come back without inline content.
	if f.Encoding != "base64" || (f.Content == "" && f.Size > 0) {
		data, err := g.getRaw(ctx, u)
		if err != nil {
			return Blob{}, evalerr.WrapOp(op, err)
		}
		return Blob{Data: data, Version: f.SHA}, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\n", "", "\r", "").Replace(f.Content))
	if err != nil {
		return Blob{}, fmt.Errorf("%s: decode base64: %w", op, err)
	}
	return Blob{Data: data, Version: f.SHA}, nil
}

func (g *GitHub) getRaw(ctx context.Context, u string) ([]byte, error) {
	req, err := g.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.raw")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, evalerr.Wrap("blobstore.github.raw", evalerr.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, evalerr.Wrap("blobstore.github.raw", evalerr.ErrTransient, err)
	}
	return data, nil
}

// Put implements Store.
func (g *GitHub) Put(ctx context.Context, key string, data []byte, expected string) (string, error) {
	const op = "blobstore.github.put"

	body, err := json.Marshal(putRequest{
		Message: "evalboard: update " + key,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  g.branch,
		SHA:     expected,
	})
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := g.newRequest(ctx, http.MethodPut, g.contentsURL(key), bytes.NewReader(body))
	if err != nil {
		return "", evalerr.WrapOp(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", evalerr.Wrap(op, evalerr.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", evalerr.WrapOp(op, classify(resp))
	}
	var out putResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", evalerr.Wrap(op, evalerr.ErrTransient, fmt.Errorf("decode response: %w", err))
	}
	if out.Content.SHA == "" {
		return "", fmt.Errorf("%s: %w", op, ErrMissingVersion)
	}
	return out.Content.SHA, nil
}

func (g *GitHub) contentsURL(key string) string {
	p := path.Join(g.dir, key)
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return g.apiURL + "/repos/" + g.repo + "/contents/" + strings.Join(segs, "/")
}

func (g *GitHub) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	return req, nil
}

// classify maps a non-success contents API response to an error kind.
func classify(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	cause := fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))

	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		return evalerr.Wrap("github", evalerr.ErrNotFound, cause)
	case code == http.StatusConflict, code == http.StatusPreconditionFailed:
		return evalerr.Wrap("github", evalerr.ErrVersionConflict, cause)
	case code == http.StatusUnprocessableEntity:
		// 422 is a conflict only when it is about the blob sha; a bad branch
		// or path will not fix itself on retry.
		if bytes.Contains(bytes.ToLower(msg), []byte("sha")) {
			return evalerr.Wrap("github", evalerr.ErrVersionConflict, cause)
		}
		return cause
	case code == http.StatusUnauthorized:
		return evalerr.Wrap("github", evalerr.ErrAuth, cause)
	case code == http.StatusForbidden:
		if rateLimited(resp, msg) {
			return evalerr.Wrap("github", evalerr.ErrTransient, cause)
		}
		return evalerr.Wrap("github", evalerr.ErrAuth, cause)
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return evalerr.Wrap("github", evalerr.ErrTransient, cause)
	default:
		return cause
	}
}

func rateLimited(resp *http.Response, body []byte) bool {
	if resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != "" {
		return true
	}
	return bytes.Contains(bytes.ToLower(body), []byte("rate limit"))
}

var _ Store = (*GitHub)(nil)

