package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmhttp "github.com/sentinelci/pr-sentinel/internal/adapter/llm/http"
	"github.com/sentinelci/pr-sentinel/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-token")
	client.SetBaseURL(server.URL)
	client.SetRetryConfig(llmhttp.RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	})
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestGetDiff(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("def handler():\n    pass\n"))

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))

		switch r.URL.Path {
		case "/repos/acme/api/pulls/7":
			writeJSON(t, w, map[string]any{
				"number": 7,
				"head":   map[string]string{"sha": "head-sha"},
				"base":   map[string]string{"sha": "base-sha"},
			})
		case "/repos/acme/api/pulls/7/files":
			writeJSON(t, w, []map[string]any{
				{"filename": "app/views.py", "status": "modified", "additions": 12, "deletions": 3, "patch": "@@ -1 +1 @@"},
				{"filename": "legacy/old.py", "status": "removed", "additions": 0, "deletions": 40},
			})
		case "/repos/acme/api/contents/app/views.py":
			assert.Equal(t, "head-sha", r.URL.Query().Get("ref"))
			writeJSON(t, w, map[string]any{"type": "file", "content": content, "encoding": "base64"})
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	changes, err := client.GetDiff(context.Background(), "acme/api", 7)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, domain.FileChange{
		Filename:    "app/views.py",
		Status:      "modified",
		Additions:   12,
		Deletions:   3,
		Patch:       "@@ -1 +1 @@",
		FullContent: "def handler():\n    pass\n",
		Language:    "python",
	}, changes[0])

	// Removed files never get content fetched
	assert.Equal(t, "", changes[1].FullContent)
	assert.Equal(t, domain.FileStatusRemoved, changes[1].Status)
}

func TestGetDiffPaginates(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/api/pulls/1":
			writeJSON(t, w, map[string]any{"head": map[string]string{"sha": "h"}})
		case "/repos/acme/api/pulls/1/files":
			page := r.URL.Query().Get("page")
			if page == "1" {
				files := make([]map[string]any, filesPerPage)
				for i := range files {
					files[i] = map[string]any{
						"filename": fmt.Sprintf("gen/file%03d.sql", i),
						"status":   "removed",
					}
				}
				writeJSON(t, w, files)
				return
			}
			writeJSON(t, w, []map[string]any{
				{"filename": "last.sql", "status": "removed"},
			})
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))

	changes, err := client.GetDiff(context.Background(), "acme/api", 1)
	require.NoError(t, err)
	assert.Len(t, changes, filesPerPage+1)
	assert.Equal(t, "last.sql", changes[filesPerPage].Filename)
}

func TestGetFileContentMissingFile(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(t, w, map[string]string{"message": "Not Found"})
	}))

	content, err := client.GetFileContent(context.Background(), "acme/api", "gone.py", "main")
	require.NoError(t, err)
	assert.Equal(t, "", content)
}

func TestGetFileContentDirectory(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"type": "dir"})
	}))

	content, err := client.GetFileContent(context.Background(), "acme/api", "app", "main")
	require.NoError(t, err)
	assert.Equal(t, "", content)
}

func TestGetFileContentStripsBase64Newlines(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("line one\nline two\n"))
	wrapped := raw[:10] + "\n" + raw[10:]

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"type": "file", "content": wrapped, "encoding": "base64"})
	}))

	content, err := client.GetFileContent(context.Background(), "acme/api", "a.txt", "main")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", content)
}

func TestPostComment(t *testing.T) {
	var posted issueCommentRequest

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/repos/acme/api/issues/7/comments", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, map[string]int{"id": 1})
	}))

	err := client.PostComment(context.Background(), "acme/api", 7, "## Analysis complete")
	require.NoError(t, err)
	assert.Equal(t, "## Analysis complete", posted.Body)
}

func TestSetStatusCheck(t *testing.T) {
	var posted commitStatusRequest

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/api/statuses/head-sha", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, map[string]int{"id": 1})
	}))

	err := client.SetStatusCheck(context.Background(), "acme/api", "head-sha", "failure", "2 critical findings")
	require.NoError(t, err)
	assert.Equal(t, "failure", posted.State)
	assert.Equal(t, "2 critical findings", posted.Description)
	assert.Equal(t, StatusContext, posted.Context)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, map[string]int{"id": 1})
	}))

	err := client.PostComment(context.Background(), "acme/api", 7, "retry me")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAuthErrorFailsFast(t *testing.T) {
	var calls atomic.Int32

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(t, w, map[string]string{"message": "Bad credentials"})
	}))

	err := client.PostComment(context.Background(), "acme/api", 7, "nope")
	require.Error(t, err)
	var apiErr *llmhttp.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, llmhttp.ErrTypeAuthentication, apiErr.Type)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantType  llmhttp.ErrorType
		retryable bool
		contains  string
	}{
		{"unauthorized", 401, `{"message":"Bad credentials"}`, llmhttp.ErrTypeAuthentication, false, "Bad credentials"},
		{"rate limited", 429, `{"message":"API rate limit exceeded"}`, llmhttp.ErrTypeRateLimit, true, "rate limit"},
		{"not found", 404, `{"message":"Not Found"}`, llmhttp.ErrTypeInvalidRequest, false, "Not Found"},
		{"validation", 422, `{"message":"Validation Failed","errors":[{"field":"body","code":"missing"}]}`, llmhttp.ErrTypeInvalidRequest, false, "body: missing"},
		{"server error", 502, ``, llmhttp.ErrTypeServiceUnavailable, true, "HTTP 502"},
		{"unknown", 418, `not json`, llmhttp.ErrTypeUnknown, false, "HTTP 418: not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapHTTPError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.wantType, err.Type)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Contains(t, err.Message, tt.contains)
		})
	}
}
