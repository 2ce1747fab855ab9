// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

// buildSiteUserRelationships links every site to the users allowed on it.
func buildSiteUserRelationships(ctx context.Context, ec *ExecutionContext) error {
	return ec.JobState.IterateEntities(graph.TypeSite, func(siteEntity graph.Entity) error {
		siteID, err := entityID(siteEntity)
		if err != nil {
			return err
		}

		err = ec.Client.IterateSiteUsers(ctx, siteID, func(user insightvm.User) error {
			userEntity, ok := ec.JobState.FindEntity(graph.UserKey(user.ID))
			if !ok {
				ec.Logger.Debug("site lists unknown user", "siteId", siteID, "userId", user.ID)
				return nil
			}
			return ec.JobState.AddRelationship(graph.NewRelationship(graph.RelAllows, &siteEntity, &userEntity))
		})
		return errors.Wrapf(err, "iterating users of site %d", siteID)
	})
}
