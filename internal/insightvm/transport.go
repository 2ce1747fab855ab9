// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package insightvm

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	detailCacheSize = 4096
	detailCacheTTL  = time.Hour
)

// newTransport builds the HTTP transport for the console, optionally
// skipping TLS verification for consoles without an installable certificate.
func newTransport(disableTLSVerification bool) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 6
	if disableTLSVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- operator opt-in
	}
	return transport
}

// detailCachingTransport memoizes GET responses for the per-id vulnerability
// detail endpoints. Several assets typically share the same vulnerabilities,
// so the lazy reconciliation path would otherwise refetch identical records.
// Catalog records are immutable within a run, which makes the cached bodies
// safe to replay.
type detailCachingTransport struct {
	next  http.RoundTripper
	cache *expirable.LRU[string, []byte]
}

func newDetailCachingTransport(next http.RoundTripper) *detailCachingTransport {
	return &detailCachingTransport{
		next:  next,
		cache: expirable.NewLRU[string, []byte](detailCacheSize, nil, detailCacheTTL),
	}
}

func (t *detailCachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || !isDetailEndpoint(req.URL.Path) {
		return t.next.RoundTrip(req)
	}

	key := req.URL.String()
	if raw, ok := t.cache.Get(key); ok {
		return responseFromBytes(raw, req)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}

	raw, err := httputil.DumpResponse(resp, true)
	if err != nil {
		// serving the live response beats failing the request
		return resp, nil
	}
	t.cache.Add(key, raw)
	return responseFromBytes(raw, req)
}

// isDetailEndpoint matches /api/3/vulnerabilities/{id} and its exploits,
// references and solutions sub-resources, but not the paginated catalog
// listing itself.
func isDetailEndpoint(path string) bool {
	const prefix = "/api/3/vulnerabilities/"
	return strings.HasPrefix(path, prefix) && len(path) > len(prefix)
}

func responseFromBytes(raw []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), req)
}
