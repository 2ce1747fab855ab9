// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

// scanAssetConcurrency bounds the parallel per-site scan traversals.
const scanAssetConcurrency = 5

// buildScanAssetRelationships links every scan of a site to the assets that
// site monitors. The site-to-asset map comes from the site-asset step, so
// only one pass over the scans endpoint per site is needed.
func buildScanAssetRelationships(ctx context.Context, ec *ExecutionContext) error {
	siteAssets, err := siteAssetsMap(ec)
	if err != nil {
		return err
	}
	ec.Logger.Info("built site assets map", "sites", len(siteAssets))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(scanAssetConcurrency)

	for siteID, assetKeys := range siteAssets {
		siteID, assetKeys := siteID, assetKeys
		group.Go(func() error {
			err := ec.Client.IterateSiteScans(groupCtx, siteID, func(scan insightvm.Scan) error {
				scanEntity, ok := ec.JobState.FindEntity(graph.ScanKey(scan.ID))
				if !ok {
					return nil
				}
				for _, assetKey := range assetKeys {
					assetEntity, ok := ec.JobState.FindEntity(assetKey)
					if !ok {
						continue
					}
					if err := ec.JobState.AddRelationship(graph.NewRelationship(graph.RelMonitors, &scanEntity, &assetEntity)); err != nil {
						return err
					}
				}
				return nil
			})
			return errors.Wrapf(err, "iterating scans of site %d", siteID)
		})
	}
	return group.Wait()
}
