// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

// buildAssetUserRelationships links every user with access to an asset to
// that asset. Users listed on an asset but unknown to the job state are
// skipped; site-level access already covers them elsewhere.
func buildAssetUserRelationships(ctx context.Context, ec *ExecutionContext) error {
	return ec.JobState.IterateEntities(graph.TypeAsset, func(assetEntity graph.Entity) error {
		assetID, err := entityID(assetEntity)
		if err != nil {
			return err
		}

		err = ec.Client.IterateAssetUsers(ctx, assetID, func(user insightvm.User) error {
			userEntity, ok := ec.JobState.FindEntity(graph.UserKey(user.ID))
			if !ok {
				return nil
			}
			return ec.JobState.AddRelationship(graph.NewRelationship(graph.RelOwns, &userEntity, &assetEntity))
		})
		return errors.Wrapf(err, "iterating users of asset %d", assetID)
	})
}
