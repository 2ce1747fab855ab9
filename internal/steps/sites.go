// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

func createSiteEntity(site insightvm.Site) graph.Entity {
	return graph.Entity{
		Key:   graph.SiteKey(site.ID),
		Type:  graph.TypeSite,
		Class: graph.ClassSite,
		Properties: map[string]any{
			"id":           site.ID,
			"name":         site.Name,
			"type":         site.Type,
			"importance":   site.Importance,
			"assets":       site.Assets,
			"riskScore":    site.RiskScore,
			"scanEngine":   site.ScanEngine,
			"scanTemplate": site.ScanTemplate,
			"lastScanTime": site.LastScanTime,
		},
	}
}

// fetchSites ingests scan sites and links them to the account.
func fetchSites(ctx context.Context, ec *ExecutionContext) error {
	account, err := accountEntity(ec)
	if err != nil {
		return err
	}

	err = ec.Client.IterateSites(ctx, func(site insightvm.Site) error {
		siteEntity := createSiteEntity(site)
		if err := ec.JobState.AddEntity(siteEntity); err != nil {
			return err
		}
		return ec.JobState.AddRelationship(graph.NewRelationship(graph.RelHas, &account, &siteEntity))
	})
	return errors.Wrap(err, "iterating sites")
}
