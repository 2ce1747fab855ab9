// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/insightvm-graph-connector/internal/config"
	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
	"github.com/bonial-oss/insightvm-graph-connector/internal/vulncache"
)

// fakeConsole serves the subset of the InsightVM API v3 the steps consume,
// with real pagination, so handler tests exercise the same wire traversal
// as a live console.
type fakeConsole struct {
	account    insightvm.Account
	users      []insightvm.User
	sites      []insightvm.Site
	scans      []insightvm.Scan
	assets     []insightvm.Asset
	siteAssets map[int][]insightvm.Asset
	siteUsers  map[int][]insightvm.User
	siteScans  map[int][]insightvm.Scan
	assetUsers map[int][]insightvm.User

	// findings maps asset id to its per-asset vulnerabilities; assets
	// without an entry get a 404 sub-resource, like the real console.
	findings map[int][]insightvm.AssetVulnerability

	// catalog must be ordered by severity score descending.
	catalog []insightvm.Vulnerability

	// detail sub-resources of catalog records; absent ids get an empty
	// envelope.
	exploits   map[string][]insightvm.VulnerabilityExploit
	references map[string][]insightvm.VulnerabilityReference

	mu       sync.Mutex
	requests map[string]int
}

// hits returns how many requests the console served for the given path.
func (f *fakeConsole) hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *fakeConsole) handler(t *testing.T) http.Handler {
	t.Helper()
	f.requests = make(map[string]int)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests[r.URL.Path]++
		f.mu.Unlock()

		rest, ok := strings.CutPrefix(r.URL.Path, "/api/3/")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		parts := strings.Split(rest, "/")

		switch {
		case rest == "administration/info":
			assert.NoError(t, json.NewEncoder(w).Encode(f.account))
		case rest == "users":
			writePage(t, w, r, f.users)
		case rest == "sites":
			writePage(t, w, r, f.sites)
		case rest == "scans":
			writePage(t, w, r, f.scans)
		case rest == "assets":
			writePage(t, w, r, f.assets)
		case rest == "vulnerabilities":
			writePage(t, w, r, f.catalog)
		case len(parts) == 3 && parts[0] == "vulnerabilities" && parts[2] == "exploits":
			writePage(t, w, r, f.exploits[parts[1]])
		case len(parts) == 3 && parts[0] == "vulnerabilities" && parts[2] == "references":
			writePage(t, w, r, f.references[parts[1]])
		case len(parts) == 2 && parts[0] == "vulnerabilities":
			for _, v := range f.catalog {
				if v.ID == parts[1] {
					assert.NoError(t, json.NewEncoder(w).Encode(v))
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "no such vulnerability"}`))
		case len(parts) == 3 && parts[0] == "sites" && parts[2] == "assets":
			id, _ := strconv.Atoi(parts[1])
			writePage(t, w, r, f.siteAssets[id])
		case len(parts) == 3 && parts[0] == "sites" && parts[2] == "users":
			id, _ := strconv.Atoi(parts[1])
			writePage(t, w, r, f.siteUsers[id])
		case len(parts) == 3 && parts[0] == "sites" && parts[2] == "scans":
			id, _ := strconv.Atoi(parts[1])
			writePage(t, w, r, f.siteScans[id])
		case len(parts) == 3 && parts[0] == "assets" && parts[2] == "users":
			id, _ := strconv.Atoi(parts[1])
			writePage(t, w, r, f.assetUsers[id])
		case len(parts) == 3 && parts[0] == "assets" && parts[2] == "vulnerabilities":
			id, _ := strconv.Atoi(parts[1])
			findings, ok := f.findings[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"message": "no vulnerability results"}`))
				return
			}
			writePage(t, w, r, findings)
		default:
			t.Errorf("fake console got unexpected request %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// writePage slices resources into the requested page and wraps it in the
// paginated envelope.
func writePage[T any](t *testing.T, w http.ResponseWriter, r *http.Request, resources []T) {
	t.Helper()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 {
		size = insightvm.DefaultPageSize
	}

	total := len(resources)
	lo := min(page*size, total)
	hi := min(lo+size, total)

	err := json.NewEncoder(w).Encode(map[string]any{
		"resources": resources[lo:hi],
		"page": map[string]int{
			"number":         page,
			"size":           size,
			"totalResources": total,
			"totalPages":     (total + size - 1) / size,
		},
	})
	assert.NoError(t, err)
}

// newTestContext wires an ExecutionContext against the fake console, with
// an in-memory job state and a vulnerability cache in a temp dir.
func newTestContext(t *testing.T, console *fakeConsole) *ExecutionContext {
	t.Helper()

	server := httptest.NewServer(console.handler(t))
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Host: "insight.example.com", Username: "admin", Password: "secret"}
	client := insightvm.NewClient(cfg, logger,
		insightvm.WithBaseURL(server.URL+"/api/3"),
		insightvm.WithHTTPClient(server.Client()),
	)

	cache, err := vulncache.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return &ExecutionContext{
		Logger:          logger,
		Client:          client,
		JobState:        graph.NewInMemory(),
		VulnCache:       cache,
		CatalogPageSize: 2,
	}
}

// severityFilter builds a filter the way the config layer does.
func severityFilter(t *testing.T, severities string) *config.SeverityFilter {
	t.Helper()
	cfg := &config.Config{VulnerabilitySeverities: severities}
	filter, err := cfg.SeverityFilter()
	require.NoError(t, err)
	return filter
}

// stateFilter builds a filter the way the config layer does.
func stateFilter(t *testing.T, states string) *config.StateFilter {
	t.Helper()
	cfg := &config.Config{VulnerabilityStates: states}
	filter, err := cfg.StateFilter()
	require.NoError(t, err)
	return filter
}
