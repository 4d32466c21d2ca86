// Package github is a narrow REST client for the pieces of the GitHub API
// the pipeline needs: PR file listings with patches, file contents at a ref,
// issue comments, and commit statuses.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	llmhttp "github.com/sentinelci/pr-sentinel/internal/adapter/llm/http"
	"github.com/sentinelci/pr-sentinel/internal/domain"
)

const (
	defaultBaseURL        = "https://api.github.com"
	defaultTimeout        = 30 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 2 * time.Second

	// filesPerPage is the page size for the PR files listing.
	filesPerPage = 100

	// StatusContext is the commit status context name this service reports
	// under.
	StatusContext = "pr-sentinel"
)

// Client is an HTTP client for the GitHub REST API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	retryConf  llmhttp.RetryConfig
}

// NewClient creates a GitHub API client. The token should be a personal
// access token or GITHUB_TOKEN from Actions.
func NewClient(token string) *Client {
	return &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retryConf: llmhttp.RetryConfig{
			MaxRetries:     defaultMaxRetries,
			InitialBackoff: defaultInitialBackoff,
			MaxBackoff:     32 * time.Second,
			Multiplier:     2.0,
		},
	}
}

// SetBaseURL sets a custom base URL (GitHub Enterprise, testing).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimSuffix(u, "/")
}

// SetTimeout sets the HTTP timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// SetRetryConfig overrides the retry behaviour.
func (c *Client) SetRetryConfig(conf llmhttp.RetryConfig) {
	c.retryConf = conf
}

// GetDiff returns the changed files of a pull request, including patches and
// head-revision file contents. repo is "owner/name".
func (c *Client) GetDiff(ctx context.Context, repo string, prNumber int) ([]domain.FileChange, error) {
	pr, err := c.getPullRequest(ctx, repo, prNumber)
	if err != nil {
		return nil, err
	}

	var changes []domain.FileChange
	for page := 1; ; page++ {
		var files []pullRequestFile
		path := fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=%d&page=%d", repo, prNumber, filesPerPage, page)
		if err := c.do(ctx, http.MethodGet, path, nil, &files); err != nil {
			return nil, err
		}
		if len(files) == 0 {
			break
		}

		for _, f := range files {
			change := domain.FileChange{
				Filename:  f.Filename,
				Status:    f.Status,
				Additions: f.Additions,
				Deletions: f.Deletions,
				Patch:     f.Patch,
				Language:  domain.DetectLanguage(f.Filename),
			}
			if f.Status != domain.FileStatusRemoved {
				// Full content is best-effort context; a miss is not fatal.
				content, err := c.GetFileContent(ctx, repo, f.Filename, pr.Head.SHA)
				if err == nil {
					change.FullContent = content
				}
			}
			changes = append(changes, change)
		}

		if len(files) < filesPerPage {
			break
		}
	}

	return changes, nil
}

// GetPullRequestSHAs returns the base and head commit SHAs of a pull request.
func (c *Client) GetPullRequestSHAs(ctx context.Context, repo string, prNumber int) (base, head string, err error) {
	pr, err := c.getPullRequest(ctx, repo, prNumber)
	if err != nil {
		return "", "", err
	}
	return pr.Base.SHA, pr.Head.SHA, nil
}

// GetFileContent fetches a file's content at a ref. Missing files and
// directories return an empty string, not an error.
func (c *Client) GetFileContent(ctx context.Context, repo, path, ref string) (string, error) {
	apiPath := fmt.Sprintf("/repos/%s/contents/%s?ref=%s", repo, escapePath(path), url.QueryEscape(ref))

	var contents contentsResponse
	if err := c.do(ctx, http.MethodGet, apiPath, nil, &contents); err != nil {
		var apiErr *llmhttp.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}

	if contents.Type != "file" {
		return "", nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode contents of %s: %w", path, err)
	}
	return string(decoded), nil
}

// PostComment posts an issue comment on a pull request.
func (c *Client) PostComment(ctx context.Context, repo string, prNumber int, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo, prNumber)
	return c.do(ctx, http.MethodPost, path, issueCommentRequest{Body: body}, nil)
}

// SetStatusCheck creates a commit status. state is one of pending, success,
// failure, error.
func (c *Client) SetStatusCheck(ctx context.Context, repo, sha, state, description string) error {
	path := fmt.Sprintf("/repos/%s/statuses/%s", repo, sha)
	return c.do(ctx, http.MethodPost, path, commitStatusRequest{
		State:       state,
		Description: description,
		Context:     StatusContext,
	}, nil)
}

func (c *Client) getPullRequest(ctx context.Context, repo string, prNumber int) (pullRequest, error) {
	var pr pullRequest
	path := fmt.Sprintf("/repos/%s/pulls/%d", repo, prNumber)
	if err := c.do(ctx, http.MethodGet, path, nil, &pr); err != nil {
		return pullRequest{}, err
	}
	return pr, nil
}

// do executes one API call with retry, decoding the response into out when
// out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var responseBody []byte
	err := llmhttp.RetryWithBackoff(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return &llmhttp.Error{
				Type:     llmhttp.ErrTypeUnknown,
				Message:  err.Error(),
				Provider: providerName,
			}
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &llmhttp.Error{
				Type:      llmhttp.ErrTypeTimeout,
				Message:   err.Error(),
				Retryable: true,
				Provider:  providerName,
			}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &llmhttp.Error{
				Type:       llmhttp.ErrTypeUnknown,
				Message:    fmt.Sprintf("HTTP %d (failed to read response: %v)", resp.StatusCode, err),
				StatusCode: resp.StatusCode,
				Retryable:  resp.StatusCode >= 500,
				Provider:   providerName,
			}
		}

		if resp.StatusCode >= 400 {
			return mapHTTPError(resp.StatusCode, data)
		}

		responseBody = data
		return nil
	}, c.retryConf)
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// escapePath escapes each segment of a repository file path while keeping
// the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
