// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bonial-oss/insightvm-graph-connector/internal/config"
)

// prefetchConcurrency bounds the parallel catalog page fetches.
const prefetchConcurrency = 5

// prefetchCatalog streams the global vulnerability catalog, sorted by
// severity score descending, into the run-scoped cache. Because the scan is
// sorted, a severity filter turns the catalog-wide scan into a prefix scan:
// the first record at the tier below the filter's minimum marks the last
// page worth processing, and every later page is skipped.
func prefetchCatalog(ctx context.Context, ec *ExecutionContext) error {
	pageSize := ec.catalogPageSize()
	totalPages, err := ec.Client.CatalogPageCount(ctx, pageSize)
	if err != nil {
		return errors.Wrap(err, "probing vulnerability catalog size")
	}
	if totalPages == 0 {
		ec.Logger.Info("vulnerability catalog is empty")
		return nil
	}

	stopSeverity, hasStop := ec.SeverityFilter.StopSeverity()

	ec.Logger.Info("prefetching vulnerability catalog",
		"totalPages", totalPages, "pageSize", pageSize, "earlyStop", hasStop)

	// lastPage is the highest page index still worth processing. Workers
	// shrink it when they observe the stop severity; pages beyond it are
	// no-ops, whether queued or already fetched.
	var lastPage atomic.Int64
	lastPage.Store(int64(totalPages - 1))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(prefetchConcurrency)

	for page := 0; page < totalPages; page++ {
		page := page
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return nil
			}
			if int64(page) > lastPage.Load() {
				return nil
			}

			vulns, err := ec.Client.FetchCatalogPage(groupCtx, page, pageSize)
			if err != nil {
				return errors.Wrapf(err, "fetching catalog page %d", page)
			}

			// a cancel or a stop observed while we were in flight makes
			// this page's results stale: discard them
			if groupCtx.Err() != nil || int64(page) > lastPage.Load() {
				return nil
			}

			for _, v := range vulns {
				if hasStop && config.AtOrBelow(config.Severity(v.Severity), stopSeverity) {
					shrinkToAtMost(&lastPage, int64(page))
					break
				}
				if !ec.SeverityFilter.Includes(config.Severity(v.Severity)) {
					continue
				}
				if err := ec.VulnCache.Put(v); err != nil {
					return errors.Wrap(err, "caching vulnerability")
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	if err := ec.VulnCache.Flush(); err != nil {
		return errors.Wrap(err, "flushing vulnerability cache")
	}

	ec.Logger.Info("vulnerability catalog prefetched", "cached", ec.VulnCache.Len())
	return nil
}

// shrinkToAtMost lowers v to bound unless it is already lower.
func shrinkToAtMost(v *atomic.Int64, bound int64) {
	for {
		current := v.Load()
		if current <= bound || v.CompareAndSwap(current, bound) {
			return
		}
	}
}
