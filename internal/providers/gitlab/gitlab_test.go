package gitlab

import (
	"context"
	"encoding/json"
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

	host, err := New(Config{Project: "acme/app", Token: "t", BaseURL: server.URL})
	require.NoError(t, err)
	return host
}

func TestMergeChangeRequestRejectsRebase(t *testing.T) {
	host, err := New(Config{Project: "acme/app", Token: "t"})
	require.NoError(t, err)

	_, err = host.MergeChangeRequest(context.Background(), 7, "rebase")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `merge method "rebase" is not supported`)

	var svcErr *llm.ExternalServiceError
	assert.False(t, errors.As(err, &svcErr), "rejected before any request is made")
}

func TestMergeChangeRequestMapsSquash(t *testing.T) {
	var body struct {
		Squash *bool `json:"squash"`
	}
	host := newTestHost(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"iid":7,"state":"merged","squash_commit_sha":"abc1234"}`)
	})

	result, err := host.MergeChangeRequest(context.Background(), 7, "squash")
	require.NoError(t, err)
	require.NotNil(t, body.Squash)
	assert.True(t, *body.Squash)
	assert.True(t, result.Merged)
	assert.Equal(t, "abc1234", result.SHA)
}

func TestHostFailuresAreExternalServiceErrors(t *testing.T) {
	host := newTestHost(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"404 Project Not Found"}`, http.StatusNotFound)
	})

	_, err := host.DefaultBranch(context.Background())
	require.Error(t, err)

	var svcErr *llm.ExternalServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "gitlab", svcErr.Service)
}
