// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

func createScanEntity(scan insightvm.Scan) graph.Entity {
	return graph.Entity{
		Key:   graph.ScanKey(scan.ID),
		Type:  graph.TypeScan,
		Class: graph.ClassProcess,
		Properties: map[string]any{
			"id":         scan.ID,
			"name":       scan.ScanName,
			"scanType":   scan.ScanType,
			"siteId":     scan.SiteID,
			"siteName":   scan.SiteName,
			"engineName": scan.EngineName,
			"assets":     scan.Assets,
			"status":     scan.Status,
			"startTime":  scan.StartTime,
			"endTime":    scan.EndTime,
			"duration":   scan.Duration,
		},
	}
}

// fetchScans ingests scans across all sites. A scan is linked to its site
// both ways: the site performed it, and it monitors the site's assets.
func fetchScans(ctx context.Context, ec *ExecutionContext) error {
	err := ec.Client.IterateScans(ctx, func(scan insightvm.Scan) error {
		scanEntity := createScanEntity(scan)
		if err := ec.JobState.AddEntity(scanEntity); err != nil {
			return err
		}

		siteEntity, ok := ec.JobState.FindEntity(graph.SiteKey(scan.SiteID))
		if !ok {
			// scans may reference sites deleted since the scan ran
			ec.Logger.Debug("scan references unknown site", "scanId", scan.ID, "siteId", scan.SiteID)
			return nil
		}
		return ec.JobState.AddRelationships([]graph.Relationship{
			graph.NewRelationship(graph.RelPerformed, &siteEntity, &scanEntity),
			graph.NewRelationship(graph.RelMonitors, &scanEntity, &siteEntity),
		})
	})
	return errors.Wrap(err, "iterating scans")
}
