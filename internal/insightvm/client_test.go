// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package insightvm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAuthentication(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pass, _ := r.BasicAuth(); pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	require.NoError(t, c.VerifyAuthentication(context.Background()))

	c.password = "wrong"
	err := c.VerifyAuthentication(context.Background())
	var authErr *AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestVerifyAuthentication_SelfSignedCert(t *testing.T) {
	// TLS server with a cert no client trusts.
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	c.httpClient = &http.Client{} // default transport, does not trust the test CA

	err := c.VerifyAuthentication(context.Background())
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Message, "docs.rapid7.com", "self-signed cert error must carry remediation guidance")
}

func TestGetAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/administration/info", r.URL.Path)
		json.NewEncoder(w).Encode(Account{
			User: "admin", Host: "insight.example.com", Superuser: true,
			Links: []Link{{Href: "https://insight.example.com/api/3/administration/info", Rel: "self"}},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	account, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", account.User)
	assert.True(t, account.Superuser)
}

func TestIterateAssets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/assets", r.URL.Path)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		json.NewEncoder(w).Encode(map[string]any{
			"resources": []Asset{
				{ID: page*2 + 1, HostName: fmt.Sprintf("host-%d", page*2+1)},
				{ID: page*2 + 2, HostName: fmt.Sprintf("host-%d", page*2+2)},
			},
			"page": Page{Number: page, TotalPages: 2, TotalResources: 4},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)

	var ids []int
	err := c.IterateAssets(context.Background(), func(a Asset) error {
		ids = append(ids, a.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, ids)
}

func TestCatalogPageCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "severityScore,DESC", r.URL.Query().Get("sort"))
		json.NewEncoder(w).Encode(map[string]any{
			"resources": []Vulnerability{{ID: "cve-1"}},
			"page":      Page{Number: 0, Size: 1, TotalResources: 1203, TotalPages: 1203},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)

	pages, err := c.CatalogPageCount(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, 3, pages, "1203 resources at page size 500 span 3 pages")
}

func TestCatalogPageCount_EmptyCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"resources": []Vulnerability{},
			"page":      Page{},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	pages, err := c.CatalogPageCount(context.Background(), 500)
	require.NoError(t, err)
	assert.Zero(t, pages)
}

func TestGetVulnerability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/vulnerabilities/cve-x", r.URL.Path)
		fmt.Fprint(w, `{
			"id": "cve-x",
			"severity": "Critical",
			"severityScore": 9,
			"categories": ["remote"],
			"description": {"text": "a bad one", "html": "<p>a bad one</p>"},
			"exploits": 2
		}`)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	vuln, err := c.GetVulnerability(context.Background(), "cve-x")
	require.NoError(t, err)
	assert.Equal(t, "cve-x", vuln.ID)
	assert.Equal(t, "Critical", vuln.Severity)
	assert.InEpsilon(t, 9.0, vuln.SeverityScore, 1e-9)
	assert.Equal(t, "a bad one", vuln.DescriptionText())
	assert.Equal(t, 2, vuln.Exploits)
}

func TestGetVulnerabilityExploits_WalksAllPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3/vulnerabilities/cve-x/exploits", r.URL.Path)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))

		exploits := make([]VulnerabilityExploit, size)
		for i := range exploits {
			exploits[i] = VulnerabilityExploit{ID: page*size + i + 1}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"resources": exploits,
			"page":      Page{Number: page, Size: size, TotalResources: 2 * size, TotalPages: 2},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	exploits, err := c.GetVulnerabilityExploits(context.Background(), "cve-x")
	require.NoError(t, err)

	require.Len(t, exploits, 2*DefaultPageSize, "a record with more exploits than one page must not be truncated")
	assert.Equal(t, 1, exploits[0].ID)
	assert.Equal(t, 2*DefaultPageSize, exploits[len(exploits)-1].ID)
}

func TestGetVulnerabilityReferences_NoneKnown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	references, err := c.GetVulnerabilityReferences(context.Background(), "cve-x")
	require.NoError(t, err, "a 404 sub-resource is an empty stream")
	assert.Empty(t, references)
}

func TestDescriptionText_BareString(t *testing.T) {
	v := Vulnerability{Description: json.RawMessage(`"plain text"`)}
	assert.Equal(t, "plain text", v.DescriptionText())

	empty := Vulnerability{}
	assert.Empty(t, empty.DescriptionText())
}

func TestDetailCachingTransport(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"id": "cve-x", "severity": "Critical"}`)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	c.httpClient = &http.Client{Transport: newDetailCachingTransport(http.DefaultTransport)}

	for i := 0; i < 3; i++ {
		vuln, err := c.GetVulnerability(context.Background(), "cve-x")
		require.NoError(t, err)
		assert.Equal(t, "cve-x", vuln.ID)
	}
	assert.Equal(t, 1, hits, "repeated detail GETs must be served from the cache")
}
