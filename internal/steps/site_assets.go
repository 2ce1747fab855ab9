// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

// buildSiteAssetRelationships links every site to the assets it monitors.
// Assets not listed under any site fall back to a direct account HAS edge,
// so every asset stays reachable from the account. The per-site asset keys
// are recorded on the job state for the scan-asset step.
func buildSiteAssetRelationships(ctx context.Context, ec *ExecutionContext) error {
	connected := make(map[string]bool)
	siteAssets := make(map[int][]string)

	err := ec.JobState.IterateEntities(graph.TypeSite, func(siteEntity graph.Entity) error {
		siteID, err := entityID(siteEntity)
		if err != nil {
			return err
		}

		err = ec.Client.IterateSiteAssets(ctx, siteID, func(asset insightvm.Asset) error {
			assetKey := graph.AssetKey(asset.ID)
			connected[assetKey] = true

			assetEntity, ok := ec.JobState.FindEntity(assetKey)
			if !ok {
				ec.Logger.Debug("site lists unknown asset", "siteId", siteID, "assetId", asset.ID)
				return nil
			}
			siteAssets[siteID] = append(siteAssets[siteID], assetKey)
			return ec.JobState.AddRelationship(graph.NewRelationship(graph.RelMonitors, &siteEntity, &assetEntity))
		})
		return errors.Wrapf(err, "iterating assets of site %d", siteID)
	})
	if err != nil {
		return err
	}
	ec.JobState.SetData(siteAssetsMapDataKey, siteAssets)

	account, err := accountEntity(ec)
	if err != nil {
		return err
	}
	return ec.JobState.IterateEntities(graph.TypeAsset, func(assetEntity graph.Entity) error {
		if connected[assetEntity.Key] {
			return nil
		}
		return ec.JobState.AddRelationship(graph.NewRelationship(graph.RelHas, &account, &assetEntity))
	})
}

// siteAssetsMap returns the site-to-asset-keys map stored by
// buildSiteAssetRelationships.
func siteAssetsMap(ec *ExecutionContext) (map[int][]string, error) {
	v, ok := ec.JobState.GetData(siteAssetsMapDataKey)
	if !ok {
		return nil, errors.New("site assets map not found in job state: build-site-asset-relationships must run first")
	}
	m, ok := v.(map[int][]string)
	if !ok {
		return nil, errors.Errorf("unexpected site assets map type %T", v)
	}
	return m, nil
}

// entityID extracts the numeric provider id from an entity's properties.
// Its absence indicates a projection bug, so it fails fast.
func entityID(e graph.Entity) (int, error) {
	switch v := e.Properties["id"].(type) {
	case int:
		return v, nil
	case string:
		id, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.Errorf("entity %s has non-numeric id %q", e.Key, v)
		}
		return id, nil
	default:
		return 0, errors.Errorf("entity %s is missing its id property", e.Key)
	}
}
