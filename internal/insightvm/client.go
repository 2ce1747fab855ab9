// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package insightvm wraps the Rapid7 InsightVM Security Console API v3:
// authenticated requests with retry and rate-limit handling, page-by-page
// traversal of list endpoints, and typed access to the resources the
// connector ingests.
package insightvm

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bonial-oss/insightvm-graph-connector/internal/config"
)

const selfSignedCertRemediation = "The InsightVM Security Console is using a self-signed certificate. " +
	"Please follow the Rapid7 guidelines to install a valid TLS certificate: " +
	"https://docs.rapid7.com/insightvm/managing-the-security-console/#managing-the-https-certificate. " +
	"We recommend installing a certificate from https://letsencrypt.org/ or a certificate authority you trust."

// Client talks to one InsightVM Security Console.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
	retry      retryPolicy
}

// Option customizes a Client beyond what the config describes.
type Option func(*Client)

// WithBaseURL overrides the console base URL. Intended for pointing the
// client at a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient builds a Client from the validated connector config.
func NewClient(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	transport := newTransport(cfg.DisableTLSVerification)
	c := &Client{
		baseURL:  fmt.Sprintf("https://%s/api/3", cfg.Host),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: newDetailCachingTransport(transport),
		},
		logger: logger,
		retry:  defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) withBaseURL(path string) string {
	return c.baseURL + "/" + path
}

// VerifyAuthentication checks connectivity and credentials against the API
// root. Self-signed certificate failures are rewritten into an actionable
// remediation message.
func (c *Client) VerifyAuthentication(ctx context.Context) error {
	rootRoute := c.baseURL
	resp, err := c.do(ctx, rootRoute, http.MethodGet)
	if err == nil {
		resp.Body.Close()
		return nil
	}

	var authErr *AuthenticationError
	var authzErr *AuthorizationError
	if errors.As(err, &authErr) || errors.As(err, &authzErr) {
		return err
	}

	msg := fmt.Sprintf("error occurred validating invocation at %s: %v", rootRoute, err)
	if isSelfSignedCertError(err) {
		msg = selfSignedCertRemediation + " " + msg
	}
	return &ValidationError{Message: msg}
}

func isSelfSignedCertError(err error) bool {
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certInvalid) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "self-signed certificate")
}

// GetAccount fetches the console administration info record.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	return getJSON[Account](ctx, c, c.withBaseURL("administration/info"))
}

// IterateUsers walks every console user.
func (c *Client) IterateUsers(ctx context.Context, fn func(User) error) error {
	return iterateResources(ctx, c, "users", fn)
}

// IterateSites walks every scan site.
func (c *Client) IterateSites(ctx context.Context, fn func(Site) error) error {
	return iterateResources(ctx, c, "sites", fn)
}

// IterateScans walks every scan across all sites.
func (c *Client) IterateScans(ctx context.Context, fn func(Scan) error) error {
	return iterateResources(ctx, c, "scans", fn)
}

// IterateSiteScans walks the scans of one site.
func (c *Client) IterateSiteScans(ctx context.Context, siteID int, fn func(Scan) error) error {
	return iterateResources(ctx, c, fmt.Sprintf("sites/%d/scans", siteID), fn)
}

// IterateAssets walks every asset known to the console.
func (c *Client) IterateAssets(ctx context.Context, fn func(Asset) error) error {
	return iterateResources(ctx, c, "assets", fn)
}

// IterateSiteAssets walks the assets of one site.
func (c *Client) IterateSiteAssets(ctx context.Context, siteID int, fn func(Asset) error) error {
	return iterateResources(ctx, c, fmt.Sprintf("sites/%d/assets", siteID), fn)
}

// IterateSiteUsers walks the users granted access to one site.
func (c *Client) IterateSiteUsers(ctx context.Context, siteID int, fn func(User) error) error {
	return iterateResources(ctx, c, fmt.Sprintf("sites/%d/users", siteID), fn)
}

// IterateAssetUsers walks the users with access to one asset.
func (c *Client) IterateAssetUsers(ctx context.Context, assetID int, fn func(User) error) error {
	return iterateResources(ctx, c, fmt.Sprintf("assets/%d/users", assetID), fn)
}

// IterateAssetVulnerabilityPages walks the findings of one asset page by
// page, so the caller can fan out processing within each page. An asset
// without findings (404 sub-resource) yields no pages.
func (c *Client) IterateAssetVulnerabilityPages(ctx context.Context, assetID int, onPage PageIteratee[AssetVulnerability]) error {
	return paginate(ctx, c, fmt.Sprintf("assets/%d/vulnerabilities", assetID), DefaultPageSize, onPage)
}

// CatalogPageCount probes the vulnerability catalog and returns the number
// of pages a scan with the given page size will cover.
func (c *Client) CatalogPageCount(ctx context.Context, pageSize int) (int, error) {
	endpoint := c.withBaseURL("vulnerabilities?page=0&size=1&sort=severityScore,DESC")
	envelope, err := fetchPage[Vulnerability](ctx, c, endpoint)
	if err != nil {
		return 0, err
	}
	if envelope.Page == nil || envelope.Page.TotalResources == 0 {
		return 0, nil
	}
	return (envelope.Page.TotalResources + pageSize - 1) / pageSize, nil
}

// FetchCatalogPage fetches one page of the vulnerability catalog, sorted by
// severity score descending.
func (c *Client) FetchCatalogPage(ctx context.Context, page, pageSize int) ([]Vulnerability, error) {
	endpoint := c.withBaseURL(fmt.Sprintf("vulnerabilities?page=%d&size=%d&sort=severityScore,DESC", page, pageSize))
	envelope, err := fetchPage[Vulnerability](ctx, c, endpoint)
	if err != nil {
		return nil, err
	}
	return envelope.Resources, nil
}

// GetVulnerability fetches one catalog record by id.
func (c *Client) GetVulnerability(ctx context.Context, id string) (*Vulnerability, error) {
	return getJSON[Vulnerability](ctx, c, c.withBaseURL("vulnerabilities/"+id))
}

// GetVulnerabilityExploits fetches all known exploits of a catalog record.
func (c *Client) GetVulnerabilityExploits(ctx context.Context, id string) ([]VulnerabilityExploit, error) {
	return collectResources[VulnerabilityExploit](ctx, c, "vulnerabilities/"+id+"/exploits")
}

// GetVulnerabilityReferences fetches all advisory references of a catalog
// record.
func (c *Client) GetVulnerabilityReferences(ctx context.Context, id string) ([]VulnerabilityReference, error) {
	return collectResources[VulnerabilityReference](ctx, c, "vulnerabilities/"+id+"/references")
}

// collectResources drains a list endpoint into a slice.
func collectResources[T any](ctx context.Context, c *Client, resourcePath string) ([]T, error) {
	var out []T
	err := paginate(ctx, c, resourcePath, DefaultPageSize, func(resources []T) (PageAction, error) {
		out = append(out, resources...)
		return ContinuePaging, nil
	})
	return out, err
}

// iterateResources adapts the page-level driver to a per-item iteratee.
func iterateResources[T any](ctx context.Context, c *Client, resourcePath string, fn func(T) error) error {
	return paginate(ctx, c, resourcePath, DefaultPageSize, func(resources []T) (PageAction, error) {
		for _, resource := range resources {
			if err := fn(resource); err != nil {
				return StopPaging, err
			}
		}
		return ContinuePaging, nil
	})
}

// getJSON fetches and decodes a single resource.
func getJSON[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	resp, err := c.request(ctx, endpoint, http.MethodGet)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	return &out, nil
}
