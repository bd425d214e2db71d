package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changesmith/internal/llm"
)

func newTestHost(t *testing.T, handler http.HandlerFunc) *Host {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	host, err := New(Config{Repo: "acme/app", Token: "t", BaseURL: server.URL})
	require.NoError(t, err)
	return host
}

func TestNewRejectsMalformedRepo(t *testing.T) {
	_, err := New(Config{Repo: "acme", Token: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner/repo")
}

func TestCreateOrUpdateFileRejectsDirectoryPath(t *testing.T) {
	host := newTestHost(t, func(w http.ResponseWriter, r *http.Request) {
		// GitHub answers a directory path with a JSON array of entries.
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"type":"file","name":"a.go","path":"docs/a.go"}]`)
	})

	err := host.CreateOrUpdateFile(context.Background(), "docs", "content", "main", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory, not a file")

	var svcErr *llm.ExternalServiceError
	assert.False(t, errors.As(err, &svcErr), "a directory path is a caller mistake, not a host outage")
}

func TestHostFailuresAreExternalServiceErrors(t *testing.T) {
	host := newTestHost(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})

	_, err := host.DefaultBranch(context.Background())
	require.Error(t, err)

	var svcErr *llm.ExternalServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "github", svcErr.Service)
}

func TestBranchExistsTreatsNotFoundAsAbsent(t *testing.T) {
	host := newTestHost(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	exists, err := host.BranchExists(context.Background(), "feature")
	require.NoError(t, err)
	assert.False(t, exists)
}
