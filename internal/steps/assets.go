// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

// assetVulnCounts is the per-asset severity summary recorded during the
// asset scan and consulted as a cheap prefilter before fetching findings.
type assetVulnCounts struct {
	Critical int
	Severe   int
	Moderate int
	Total    int
}

// knownPlatforms are the platform values the graph schema accepts.
var knownPlatforms = map[string]bool{
	"darwin": true, "linux": true, "unix": true, "windows": true,
	"android": true, "ios": true, "embedded": true, "other": true,
}

// platformOf maps the fingerprinted OS family onto a schema platform,
// falling back to "other".
func platformOf(asset insightvm.Asset) string {
	if asset.OSFingerprint != nil {
		family := strings.ToLower(asset.OSFingerprint.Family)
		if knownPlatforms[family] {
			return family
		}
	}
	return "other"
}

func createAssetEntity(asset insightvm.Asset) graph.Entity {
	name := asset.HostName
	if name == "" {
		name = asset.IP
	}
	if name == "" {
		name = strconv.Itoa(asset.ID)
	}

	props := map[string]any{
		"id":         strconv.Itoa(asset.ID),
		"name":       name,
		"hostName":   asset.HostName,
		"ipAddress":  asset.IP,
		"macAddress": asset.MAC,
		"platform":   platformOf(asset),
		"osDetails":  asset.OS,
		"riskScore":  asset.RiskScore,
	}
	if asset.OSFingerprint != nil {
		props["osName"] = asset.OSFingerprint.SystemName
		props["osVersion"] = asset.OSFingerprint.Version
		props["category"] = asset.OSFingerprint.Type
	}
	if asset.Vulnerabilities != nil {
		props["numCriticalVulnerabilities"] = asset.Vulnerabilities.Critical
	}
	if last := asset.LastScanDate(); last != "" {
		props["lastScanDate"] = last
	}
	for _, link := range asset.Links {
		if link.Rel == "self" {
			props["webLink"] = link.Href
			break
		}
	}

	return graph.Entity{
		Key:        graph.AssetKey(asset.ID),
		Type:       graph.TypeAsset,
		Class:      graph.ClassDevice,
		Properties: props,
	}
}

// fetchAssets ingests every asset and records the per-asset vulnerability
// count summary for the reconciliation prefilter. Assets without a summary
// get no map entry; the prefilter must not skip them. Graph edges towards
// assets are built by the later relationship steps.
func fetchAssets(ctx context.Context, ec *ExecutionContext) error {
	countMap := make(map[int]assetVulnCounts)
	err := ec.Client.IterateAssets(ctx, func(asset insightvm.Asset) error {
		if asset.Vulnerabilities != nil {
			countMap[asset.ID] = assetVulnCounts{
				Critical: asset.Vulnerabilities.Critical,
				Severe:   asset.Vulnerabilities.Severe,
				Moderate: asset.Vulnerabilities.Moderate,
				Total:    asset.Vulnerabilities.Total,
			}
		}

		return ec.JobState.AddEntity(createAssetEntity(asset))
	})
	if err != nil {
		return errors.Wrap(err, "iterating assets")
	}

	ec.JobState.SetData(assetVulnCountMapDataKey, countMap)
	return nil
}

// assetVulnCountMap returns the summary map stored by fetchAssets.
func assetVulnCountMap(ec *ExecutionContext) (map[int]assetVulnCounts, error) {
	v, ok := ec.JobState.GetData(assetVulnCountMapDataKey)
	if !ok {
		return nil, errors.New("asset vulnerability count map not found in job state: fetch-assets must run first")
	}
	m, ok := v.(map[int]assetVulnCounts)
	if !ok {
		return nil, errors.Errorf("unexpected asset vulnerability count map type %T", v)
	}
	return m, nil
}
