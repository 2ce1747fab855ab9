// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package insightvm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	// DefaultPageSize suits interactive listing endpoints.
	DefaultPageSize = 10

	// BulkPageSize suits full-catalog scans where throughput matters.
	BulkPageSize = 500
)

// PageAction is the iteratee's verdict after processing one page.
type PageAction int

const (
	// ContinuePaging requests the next page.
	ContinuePaging PageAction = iota

	// StopPaging ends the traversal of this resource stream early.
	StopPaging
)

// PageIteratee receives the resources of one page. Returning StopPaging
// stops the traversal; returning an error aborts it.
type PageIteratee[T any] func(resources []T) (PageAction, error)

// paginate walks a list endpoint page by page, starting at page 0, until
// the envelope reports no further pages, the iteratee stops, or ctx is
// cancelled. A 404 on a sub-resource (e.g. an asset without findings) is an
// empty stream, not an error.
func paginate[T any](ctx context.Context, c *Client, resourcePath string, pageSize int, onPage PageIteratee[T]) error {
	currentPage := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		endpoint := c.withBaseURL(fmt.Sprintf("%s?page=%d&size=%d", resourcePath, currentPage, pageSize))
		c.logger.Debug("calling API endpoint", "endpoint", endpoint)

		envelope, err := fetchPage[T](ctx, c, endpoint)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				return nil
			}
			return err
		}

		action, err := onPage(envelope.Resources)
		if err != nil {
			return err
		}
		if action == StopPaging {
			return nil
		}

		currentPage++
		if envelope.Page == nil || currentPage >= envelope.Page.TotalPages {
			return nil
		}
	}
}

// fetchPage issues a single page request and decodes the envelope.
func fetchPage[T any](ctx context.Context, c *Client, endpoint string) (*paginatedEnvelope[T], error) {
	resp, err := c.request(ctx, endpoint, http.MethodGet)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope paginatedEnvelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding page envelope from %s: %w", endpoint, err)
	}
	return &envelope, nil
}
