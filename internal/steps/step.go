// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package steps contains the ingestion steps of the connector and the
// dependency-ordered runner executing them. Each step fetches one resource
// family from the console and projects it into graph entities and
// relationships on the shared job state.
package steps

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/bonial-oss/insightvm-graph-connector/internal/config"
	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
	"github.com/bonial-oss/insightvm-graph-connector/internal/vulncache"
)

// Step ids, also usable as dependency references.
const (
	StepFetchAccount       = "fetch-account"
	StepFetchUsers         = "fetch-users"
	StepFetchSites         = "fetch-sites"
	StepFetchScans         = "fetch-scans"
	StepFetchAssets        = "fetch-assets"
	StepSiteAssetRelations = "build-site-asset-relationships"
	StepSiteUserRelations  = "build-site-user-relationships"
	StepAssetUserRelations = "build-asset-user-relationships"
	StepScanAssetRelations = "build-scan-asset-relationships"
	StepPrefetchCatalog    = "prefetch-vulnerabilities"
	StepFetchFindings      = "fetch-asset-vulnerabilities"
)

// Data keys on the job state shared between steps.
const (
	accountEntityDataKey     = "entity:account"
	assetVulnCountMapDataKey = "assetVulnerabilityCountMap"
	siteAssetsMapDataKey     = "siteAssetsMap"
)

// ExecutionContext carries the collaborators each step handler needs. All
// state is pipeline-scoped; steps never reach for package globals.
type ExecutionContext struct {
	Logger         *slog.Logger
	Client         *insightvm.Client
	JobState       graph.JobState
	VulnCache      *vulncache.Cache
	SeverityFilter *config.SeverityFilter
	StateFilter    *config.StateFilter

	// CatalogPageSize overrides the bulk page size of the catalog
	// prefetch. Zero means insightvm.BulkPageSize.
	CatalogPageSize int
}

func (ec *ExecutionContext) catalogPageSize() int {
	if ec.CatalogPageSize > 0 {
		return ec.CatalogPageSize
	}
	return insightvm.BulkPageSize
}

// Handler executes one step.
type Handler func(ctx context.Context, ec *ExecutionContext) error

// Step is one unit of the ingestion pipeline.
type Step struct {
	ID        string
	Name      string
	DependsOn []string
	Handler   Handler
}

// All returns the full ingestion pipeline in declaration order.
func All() []Step {
	return []Step{
		{ID: StepFetchAccount, Name: "Fetch Account Details", Handler: fetchAccountDetails},
		{ID: StepFetchUsers, Name: "Fetch Users", DependsOn: []string{StepFetchAccount}, Handler: fetchUsers},
		{ID: StepFetchSites, Name: "Fetch Sites", DependsOn: []string{StepFetchAccount}, Handler: fetchSites},
		{ID: StepFetchScans, Name: "Fetch Scans", DependsOn: []string{StepFetchSites}, Handler: fetchScans},
		{ID: StepFetchAssets, Name: "Fetch Assets", Handler: fetchAssets},
		{ID: StepSiteAssetRelations, Name: "Build Site Asset Relationships", DependsOn: []string{StepFetchAccount, StepFetchSites, StepFetchAssets}, Handler: buildSiteAssetRelationships},
		{ID: StepSiteUserRelations, Name: "Build Site User Relationships", DependsOn: []string{StepFetchSites, StepFetchUsers}, Handler: buildSiteUserRelationships},
		{ID: StepAssetUserRelations, Name: "Build Asset User Relationships", DependsOn: []string{StepFetchAssets, StepFetchUsers}, Handler: buildAssetUserRelationships},
		{ID: StepScanAssetRelations, Name: "Build Scan Asset Relationships", DependsOn: []string{StepSiteAssetRelations, StepFetchScans}, Handler: buildScanAssetRelationships},
		{ID: StepPrefetchCatalog, Name: "Prefetch Vulnerability Catalog", Handler: prefetchCatalog},
		{ID: StepFetchFindings, Name: "Fetch Asset Vulnerabilities", DependsOn: []string{StepFetchAssets, StepPrefetchCatalog}, Handler: fetchAssetVulnerabilities},
	}
}

// Run executes the steps in dependency order. A failed step marks its
// dependents as skipped; independent steps still run. The returned error
// joins all step failures.
func Run(ctx context.Context, ec *ExecutionContext, steps []Step) error {
	byID := make(map[string]Step, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("step %s depends on unknown step %s", s.ID, dep)
			}
		}
	}

	completed := make(map[string]bool)
	broken := make(map[string]bool)
	var failures []error

	remaining := append([]Step(nil), steps...)
	for len(remaining) > 0 {
		progressed := false

		var deferred []Step
		for _, s := range remaining {
			ready, blocked := true, false
			for _, dep := range s.DependsOn {
				if broken[dep] {
					blocked = true
				}
				if !completed[dep] && !broken[dep] {
					ready = false
				}
			}

			switch {
			case blocked:
				ec.Logger.Warn("skipping step: dependency failed", "step", s.ID)
				broken[s.ID] = true
				progressed = true
			case ready:
				ec.Logger.Info("executing step", "step", s.ID, "name", s.Name)
				if err := s.Handler(ctx, ec); err != nil {
					failures = append(failures, errors.Wrapf(err, "step %s failed", s.ID))
					broken[s.ID] = true
				} else {
					completed[s.ID] = true
				}
				progressed = true
			default:
				deferred = append(deferred, s)
			}
		}

		if !progressed {
			return fmt.Errorf("step dependency cycle involving %s", deferred[0].ID)
		}
		remaining = deferred
	}

	if len(failures) > 0 {
		return joinErrors(failures)
	}
	return nil
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msg := fmt.Sprintf("%d steps failed:", len(errs))
	for _, err := range errs {
		msg += "\n  " + err.Error()
	}
	return fmt.Errorf("%s", msg)
}
