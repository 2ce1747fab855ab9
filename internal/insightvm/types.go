// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package insightvm

import "encoding/json"

// Link is a HATEOAS link attached to most API v3 resources.
type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel,omitempty"`
}

// Page is the pagination envelope metadata returned by list endpoints.
type Page struct {
	Number         int `json:"number"`
	Size           int `json:"size"`
	TotalResources int `json:"totalResources"`
	TotalPages     int `json:"totalPages"`
}

// paginatedEnvelope is the generic list response shape:
// {"resources": [...], "page": {...}, "links": [...]}.
type paginatedEnvelope[T any] struct {
	Resources []T    `json:"resources"`
	Page      *Page  `json:"page"`
	Links     []Link `json:"links,omitempty"`
}

// Account describes the Security Console itself (administration/info).
type Account struct {
	User            string `json:"user"`
	Host            string `json:"host"`
	IP              string `json:"ip"`
	Serial          string `json:"serial"`
	OperatingSystem string `json:"operatingSystem"`
	Superuser       bool   `json:"superuser"`
	Links           []Link `json:"links"`
}

// User is a console user account.
type User struct {
	ID      int    `json:"id"`
	Email   string `json:"email"`
	Enabled bool   `json:"enabled"`
	Locked  bool   `json:"locked"`
	Name    string `json:"name"`
	Login   string `json:"login"`
	Links   []Link `json:"links"`
}

// VulnerabilityCounts is the per-resource severity breakdown summary.
type VulnerabilityCounts struct {
	Critical int `json:"critical"`
	Severe   int `json:"severe"`
	Moderate int `json:"moderate"`
	Total    int `json:"total"`
}

// Site is a scan site.
type Site struct {
	ID              int                 `json:"id"`
	Assets          int                 `json:"assets"`
	Name            string              `json:"name"`
	Type            string              `json:"type"`
	Importance      string              `json:"importance"`
	LastScanTime    string              `json:"lastScanTime"`
	RiskScore       float64             `json:"riskScore"`
	ScanEngine      int                 `json:"scanEngine"`
	ScanTemplate    string              `json:"scanTemplate"`
	Vulnerabilities VulnerabilityCounts `json:"vulnerabilities"`
	Links           []Link              `json:"links"`
}

// Scan is a single scan execution.
type Scan struct {
	ID              int                 `json:"id"`
	SiteID          int                 `json:"siteId"`
	SiteName        string              `json:"siteName"`
	EngineID        int                 `json:"engineId"`
	EngineName      string              `json:"engineName"`
	Assets          int                 `json:"assets"`
	ScanName        string              `json:"scanName"`
	ScanType        string              `json:"scanType"`
	StartTime       string              `json:"startTime"`
	EndTime         string              `json:"endTime"`
	Duration        string              `json:"duration"`
	Status          string              `json:"status"`
	Vulnerabilities VulnerabilityCounts `json:"vulnerabilities"`
	Links           []Link              `json:"links"`
}

// AssetVulnerabilityCounts extends the summary with asset-only counters.
type AssetVulnerabilityCounts struct {
	Critical    int `json:"critical"`
	Severe      int `json:"severe"`
	Moderate    int `json:"moderate"`
	Exploits    int `json:"exploits"`
	MalwareKits int `json:"malwareKits"`
	Total       int `json:"total"`
}

// OSFingerprint is the fingerprinted operating system of an asset.
type OSFingerprint struct {
	SystemName string `json:"systemName"`
	Version    string `json:"version"`
	Family     string `json:"family"`
	Type       string `json:"type"`
}

// AssetHistory is one scan history entry of an asset.
type AssetHistory struct {
	Date    string `json:"date"`
	ScanID  int    `json:"scanId"`
	Type    string `json:"type"`
	Version int    `json:"version"`
}

// Asset is a scanned host or device. OSFingerprint and Vulnerabilities may
// be absent for assets that were discovered but never fully scanned.
type Asset struct {
	ID              int                       `json:"id"`
	HostName        string                    `json:"hostName"`
	IP              string                    `json:"ip"`
	MAC             string                    `json:"mac"`
	OS              string                    `json:"os"`
	Type            string                    `json:"type"`
	SiteID          int                       `json:"siteId"`
	RiskScore       float64                   `json:"riskScore"`
	Vulnerabilities *AssetVulnerabilityCounts `json:"vulnerabilities"`
	OSFingerprint   *OSFingerprint            `json:"osFingerprint"`
	History         []AssetHistory            `json:"history"`
	Links           []Link                    `json:"links"`
}

// LastScanDate returns the date of the most recent history entry, or ""
// when the asset has no recorded scans.
func (a *Asset) LastScanDate() string {
	if len(a.History) == 0 {
		return ""
	}
	return a.History[len(a.History)-1].Date
}

// AssetVulnerability is a per-asset finding: the occurrence of a catalog
// vulnerability on one asset, with asset-specific status.
type AssetVulnerability struct {
	ID        string `json:"id"`
	Instances int    `json:"instances"`
	Since     string `json:"since"`
	Status    string `json:"status"`
	Results   []struct {
		Proof  string `json:"proof"`
		Since  string `json:"since"`
		Status string `json:"status"`
	} `json:"results"`
	Links []Link `json:"links"`
}

// Vulnerability is a global catalog record. Only the fields the connector
// projects into graph entities are typed; the full content description is
// carried as raw JSON for passthrough.
type Vulnerability struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Severity      string          `json:"severity"`
	SeverityScore float64         `json:"severityScore"`
	RiskScore     float64         `json:"riskScore"`
	Categories    []string        `json:"categories"`
	CVEs          []string        `json:"cves"`
	Exploits      int             `json:"exploits"`
	Added         string          `json:"added"`
	Modified      string          `json:"modified"`
	Published     string          `json:"published"`
	Description   json.RawMessage `json:"description,omitempty"`
	Links         []Link          `json:"links,omitempty"`
}

// DescriptionText extracts the plain-text description, tolerating both the
// API v3 object shape {"text": ..., "html": ...} and a bare string.
func (v *Vulnerability) DescriptionText() string {
	if len(v.Description) == 0 {
		return ""
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(v.Description, &obj); err == nil && obj.Text != "" {
		return obj.Text
	}
	var s string
	if err := json.Unmarshal(v.Description, &s); err == nil {
		return s
	}
	return ""
}

// VulnerabilityExploit is one known exploit of a catalog vulnerability.
type VulnerabilityExploit struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Skill  string `json:"skillLevel"`
	Source struct {
		Name string `json:"name"`
		Key  string `json:"key"`
	} `json:"source"`
	Links []Link `json:"links"`
}

// VulnerabilityReference is an external advisory reference of a catalog
// vulnerability.
type VulnerabilityReference struct {
	ID       int    `json:"id"`
	Source   string `json:"source"`
	Advisory *Link  `json:"advisory"`
	Links    []Link `json:"links"`
}
