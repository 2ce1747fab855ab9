// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package graph models the typed entities and relationships the connector
// emits, plus the run-scoped job state collecting them.
package graph

import (
	"fmt"
	"strings"
)

// Entity types emitted by the connector.
const (
	TypeAccount       = "insightvm_account"
	TypeUser          = "insightvm_user"
	TypeSite          = "insightvm_site"
	TypeScan          = "insightvm_scan"
	TypeAsset         = "insightvm_asset"
	TypeFinding       = "insightvm_finding"
	TypeVulnerability = "insightvm_vulnerability"
)

// Entity classes (the schema-level class of a typed entity).
const (
	ClassAccount       = "Account"
	ClassUser          = "User"
	ClassSite          = "Site"
	ClassProcess       = "Process"
	ClassDevice        = "Device"
	ClassFinding       = "Finding"
	ClassVulnerability = "Vulnerability"
)

// Relationship classes.
const (
	RelHas       = "HAS"
	RelIs        = "IS"
	RelAllows    = "ALLOWS"
	RelOwns      = "OWNS"
	RelPerformed = "PERFORMED"
	RelMonitors  = "MONITORS"
)

// Entity is a typed graph node with a deterministic key.
type Entity struct {
	Key        string         `json:"_key"`
	Type       string         `json:"_type"`
	Class      string         `json:"_class"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Relationship is a typed edge between two entities, referenced by key.
type Relationship struct {
	Key     string `json:"_key"`
	Type    string `json:"_type"`
	Class   string `json:"_class"`
	FromKey string `json:"_fromEntityKey"`
	ToKey   string `json:"_toEntityKey"`
}

// NewRelationship derives a relationship between two entities. Its key and
// type are content-derived, so emitting the same pair twice dedups cleanly.
func NewRelationship(class string, from, to *Entity) Relationship {
	return Relationship{
		Key:     fmt.Sprintf("%s|%s|%s", from.Key, class, to.Key),
		Type:    fmt.Sprintf("%s_%s_%s", from.Type, strings.ToLower(class), to.Type),
		Class:   class,
		FromKey: from.Key,
		ToKey:   to.Key,
	}
}

// Deterministic entity key builders.

func AccountKey(user string) string { return fmt.Sprintf("%s:%s", TypeAccount, user) }
func UserKey(id int) string         { return fmt.Sprintf("%s:%d", TypeUser, id) }
func SiteKey(id int) string         { return fmt.Sprintf("%s:%d", TypeSite, id) }
func ScanKey(id int) string         { return fmt.Sprintf("%s:%d", TypeScan, id) }
func AssetKey(id int) string        { return fmt.Sprintf("%s:%d", TypeAsset, id) }

// VulnerabilityKey keys a global catalog record.
func VulnerabilityKey(vulnID string) string {
	return fmt.Sprintf("%s:%s", TypeVulnerability, vulnID)
}

// FindingKey keys the occurrence of a vulnerability on an asset. The pair is
// the finding's identity; one asset never carries two findings for the same
// vulnerability within a run.
func FindingKey(assetID int, vulnID string) string {
	return fmt.Sprintf("%s:%d:%s", TypeFinding, assetID, vulnID)
}
