package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michiel/ratchet-sub007/internal/errs"
)

func TestHTTPSource_DiscoversTasksFromIndex(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(httpIndex{Tasks: []httpIndexEntry{
			{TaskID: "00000000-0000-4000-8000-000000000040", Name: "one", URL: "/tasks/one.json"},
			{TaskID: "00000000-0000-4000-8000-000000000041", Name: "two", URL: "/tasks/two.json"},
		}})
	})
	mux.HandleFunc("/tasks/one.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(httpTaskDocument{
			TaskID: "00000000-0000-4000-8000-000000000040", Name: "one", Version: "1.0.0",
			Script: "function run(i){return i;}",
		})
	})
	mux.HandleFunc("/tasks/two.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(httpTaskDocument{
			TaskID: "00000000-0000-4000-8000-000000000041", Name: "two", Version: "1.0.0",
			Script: "function run(i){return i;}",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/index.json", 5*time.Second, 2)
	tasks, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.JSONEq(t, `{}`, string(tasks[0].InputSchema))
}

func TestHTTPSource_FailedFetchSurfacesAsNetworkError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(httpIndex{Tasks: []httpIndexEntry{
			{TaskID: "00000000-0000-4000-8000-000000000042", Name: "missing", URL: "/tasks/missing.json"},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/index.json", 5*time.Second, 2)
	_, err := src.Discover(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.CategoryNetwork, errs.CategoryOf(err))
}

func TestHTTPSource_UnreachableIndexIsAnError(t *testing.T) {
	src := NewHTTPSource("http://127.0.0.1:1/index.json", 200*time.Millisecond, 2)
	_, err := src.Discover(context.Background())
	require.Error(t, err)
}
