// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bonial-oss/insightvm-graph-connector/internal/config"
	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

const (
	// findingConcurrency bounds the parallel per-finding lookups within
	// one page of an asset's findings.
	findingConcurrency = 5

	// progressInterval is the processed-finding count between progress
	// diagnostics.
	progressInterval = 500
)

func createVulnerabilityEntity(v *insightvm.Vulnerability) graph.Entity {
	props := map[string]any{
		"id":              v.ID,
		"name":            v.ID,
		"title":           v.Title,
		"category":        strings.Join(v.Categories, ","),
		"severity":        strings.ToLower(v.Severity),
		"numericSeverity": v.SeverityScore,
		"riskScore":       v.RiskScore,
		"exploits":        v.Exploits,
		"blocking":        false,
		"open":            false,
		"production":      false,
		"public":          true,
	}
	if desc := v.DescriptionText(); desc != "" {
		props["description"] = desc
	}
	if len(v.CVEs) > 0 {
		props["cves"] = strings.Join(v.CVEs, ",")
	}
	return graph.Entity{
		Key:        graph.VulnerabilityKey(v.ID),
		Type:       graph.TypeVulnerability,
		Class:      graph.ClassVulnerability,
		Properties: props,
	}
}

func createFindingEntity(finding insightvm.AssetVulnerability, assetID int, vuln *insightvm.Vulnerability) graph.Entity {
	return graph.Entity{
		Key:   graph.FindingKey(assetID, finding.ID),
		Type:  graph.TypeFinding,
		Class: graph.ClassFinding,
		Properties: map[string]any{
			"id":              finding.ID,
			"name":            finding.ID,
			"category":        "host",
			"open":            finding.Status == string(config.StateVulnerable),
			"status":          finding.Status,
			"instances":       finding.Instances,
			"since":           finding.Since,
			"severity":        strings.ToLower(vuln.Severity),
			"numericSeverity": vuln.SeverityScore,
		},
	}
}

// fetchAssetVulnerabilities reconciles every asset's findings against the
// prefetched catalog and emits deduplicated Finding and Vulnerability
// entities plus their relationships.
func fetchAssetVulnerabilities(ctx context.Context, ec *ExecutionContext) error {
	countMap, err := assetVulnCountMap(ec)
	if err != nil {
		return err
	}

	var processed atomic.Int64

	return ec.JobState.IterateEntities(graph.TypeAsset, func(assetEntity graph.Entity) error {
		assetID, err := entityID(assetEntity)
		if err != nil {
			return err
		}

		if skipAsset(countMap, assetID, ec.SeverityFilter) {
			ec.Logger.Debug("skipping asset: no findings in requested severities", "assetId", assetID)
			return nil
		}

		ec.Logger.Debug("getting vulnerabilities for asset", "assetId", assetID)

		err = ec.Client.IterateAssetVulnerabilityPages(ctx, assetID,
			func(findings []insightvm.AssetVulnerability) (insightvm.PageAction, error) {
				group, groupCtx := errgroup.WithContext(ctx)
				group.SetLimit(findingConcurrency)

				for _, finding := range findings {
					finding := finding
					group.Go(func() error {
						return reconcileFinding(groupCtx, ec, &assetEntity, assetID, finding, &processed)
					})
				}
				if err := group.Wait(); err != nil {
					return insightvm.StopPaging, err
				}
				return insightvm.ContinuePaging, nil
			})
		return errors.Wrapf(err, "reconciling findings of asset %d", assetID)
	})
}

// skipAsset applies the count-summary prefilter. Assets without a recorded
// summary are never skipped: a missing summary means unknown, not zero.
func skipAsset(countMap map[int]assetVulnCounts, assetID int, filter *config.SeverityFilter) bool {
	if filter == nil {
		return false
	}
	counts, ok := countMap[assetID]
	if !ok {
		return false
	}
	if filter.Includes(config.SeverityCritical) && counts.Critical > 0 {
		return false
	}
	if filter.Includes(config.SeveritySevere) && counts.Severe > 0 {
		return false
	}
	if filter.Includes(config.SeverityModerate) && counts.Moderate > 0 {
		return false
	}
	return true
}

// reconcileFinding resolves one finding against the catalog cache and emits
// the Finding and Vulnerability entities plus relationships, at most once
// per key.
func reconcileFinding(ctx context.Context, ec *ExecutionContext, assetEntity *graph.Entity, assetID int, finding insightvm.AssetVulnerability, processed *atomic.Int64) error {
	if !ec.StateFilter.Includes(config.FindingState(finding.Status)) {
		return nil
	}

	vuln, err := resolveVulnerability(ctx, ec, finding.ID)
	if err != nil {
		// a single unreachable catalog record does not fail the run
		ec.Logger.Warn("skipping finding: vulnerability lookup failed",
			"assetId", assetID, "vulnerabilityId", finding.ID, "err", err)
		return nil
	}
	if vuln == nil {
		// rejected by the severity filter
		return nil
	}

	vulnKey := graph.VulnerabilityKey(vuln.ID)
	if !ec.JobState.HasKey(vulnKey) {
		vulnEntity := createVulnerabilityEntity(vuln)
		enrichVulnerabilityEntity(ctx, ec, &vulnEntity, vuln.ID)
		if err := ec.JobState.AddEntity(vulnEntity); err != nil {
			return err
		}
	}
	vulnEntity, _ := ec.JobState.FindEntity(vulnKey)

	findingKey := graph.FindingKey(assetID, finding.ID)
	if ec.JobState.HasKey(findingKey) {
		return nil
	}
	findingEntity := createFindingEntity(finding, assetID, vuln)
	if err := ec.JobState.AddEntity(findingEntity); err != nil {
		return err
	}
	if err := ec.JobState.AddRelationships([]graph.Relationship{
		graph.NewRelationship(graph.RelHas, assetEntity, &findingEntity),
		graph.NewRelationship(graph.RelIs, &findingEntity, &vulnEntity),
	}); err != nil {
		return err
	}

	if n := processed.Add(1); n%progressInterval == 0 {
		ec.Logger.Info("reconciliation progress", memoryDiagnostics(n)...)
	}
	return nil
}

// enrichVulnerabilityEntity attaches exploit titles and advisory links from
// the catalog detail sub-endpoints. Enrichment is best effort: a failed
// lookup leaves the entity without the extra properties. Concurrent workers
// racing on the same record fetch twice, but the detail response cache makes
// the second round trip free and the entity dedup keeps one result.
func enrichVulnerabilityEntity(ctx context.Context, ec *ExecutionContext, e *graph.Entity, id string) {
	exploits, err := ec.Client.GetVulnerabilityExploits(ctx, id)
	if err != nil {
		ec.Logger.Debug("skipping exploit enrichment", "vulnerabilityId", id, "err", err)
	} else if len(exploits) > 0 {
		titles := make([]string, 0, len(exploits))
		for _, exploit := range exploits {
			titles = append(titles, exploit.Title)
		}
		e.Properties["exploits"] = len(exploits)
		e.Properties["exploitTitles"] = strings.Join(titles, ",")
	}

	references, err := ec.Client.GetVulnerabilityReferences(ctx, id)
	if err != nil {
		ec.Logger.Debug("skipping reference enrichment", "vulnerabilityId", id, "err", err)
		return
	}
	advisories := make([]string, 0, len(references))
	for _, ref := range references {
		if ref.Advisory != nil {
			advisories = append(advisories, ref.Advisory.Href)
		}
	}
	if len(advisories) > 0 {
		e.Properties["references"] = strings.Join(advisories, ",")
	}
}

// resolveVulnerability returns the catalog record for id, consulting the
// prefetch cache first and falling back to a synchronous per-id fetch on a
// miss. A nil record with nil error means the severity filter rejected it.
func resolveVulnerability(ctx context.Context, ec *ExecutionContext, id string) (*insightvm.Vulnerability, error) {
	vuln, hit, err := ec.VulnCache.Get(id)
	if err != nil {
		return nil, err
	}
	if hit {
		// tombstones come back as a nil record
		return vuln, nil
	}

	fetched, err := ec.Client.GetVulnerability(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ec.SeverityFilter.Includes(config.Severity(fetched.Severity)) {
		if err := ec.VulnCache.PutTombstone(id); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := ec.VulnCache.Put(*fetched); err != nil {
		return nil, err
	}
	return fetched, nil
}
