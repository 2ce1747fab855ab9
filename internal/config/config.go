// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Severity is an InsightVM vulnerability severity tier.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeveritySevere   Severity = "Severe"
	SeverityModerate Severity = "Moderate"
)

// severityRank orders tiers from highest to lowest. The catalog endpoint
// sorts by severityScore descending, so rank order matches scan order.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeveritySevere:   1,
	SeverityModerate: 2,
}

// orderedSeverities lists all tiers from highest to lowest rank.
var orderedSeverities = []Severity{SeverityCritical, SeveritySevere, SeverityModerate}

// AtOrBelow reports whether s is the given tier or a lower one. Unknown
// severities compare false.
func AtOrBelow(s, tier Severity) bool {
	sr, sok := severityRank[s]
	tr, tok := severityRank[tier]
	return sok && tok && sr >= tr
}

// FindingState is an InsightVM asset-vulnerability finding status.
type FindingState string

const (
	StateVulnerable   FindingState = "vulnerable"
	StateInvulnerable FindingState = "invulnerable"
	StateNoResults    FindingState = "no-results"
)

var validStates = map[FindingState]bool{
	StateVulnerable:   true,
	StateInvulnerable: true,
	StateNoResults:    true,
}

// Config holds the connector settings for one InsightVM console.
type Config struct {
	// Host is the hostname of the InsightVM Security Console.
	Host string

	// Username and Password authenticate against the console API (Basic Auth).
	Username string
	Password string

	// DisableTLSVerification skips certificate verification for consoles
	// that cannot install a trusted certificate.
	DisableTLSVerification bool

	// VulnerabilitySeverities is a comma-separated allow-list of severity
	// tiers (e.g. "Critical,Severe"). Empty means no severity filtering.
	VulnerabilitySeverities string

	// VulnerabilityStates is a comma-separated allow-list of finding states
	// (e.g. "vulnerable"). Empty means no state filtering.
	VulnerabilityStates string
}

// Validate checks required fields and the severity/state allow-lists.
// It normalizes Host to a bare hostname.
func (c *Config) Validate() error {
	if c.Host == "" || c.Username == "" || c.Password == "" {
		return fmt.Errorf("config requires all of {host, username, password}")
	}

	host, err := ValidateHost(c.Host)
	if err != nil {
		return err
	}
	c.Host = host

	if _, err := c.SeverityFilter(); err != nil {
		return err
	}
	if _, err := c.StateFilter(); err != nil {
		return err
	}
	return nil
}

// SeverityFilter parses VulnerabilitySeverities into a typed filter.
// A nil filter means no severity filtering.
func (c *Config) SeverityFilter() (*SeverityFilter, error) {
	if strings.TrimSpace(c.VulnerabilitySeverities) == "" {
		return nil, nil
	}
	filter := &SeverityFilter{included: make(map[Severity]bool)}
	for _, part := range strings.Split(c.VulnerabilitySeverities, ",") {
		s := Severity(strings.TrimSpace(part))
		if _, ok := severityRank[s]; !ok {
			return nil, fmt.Errorf("invalid vulnerability severity %q: must be one of Critical, Severe, Moderate", part)
		}
		filter.included[s] = true
	}
	return filter, nil
}

// StateFilter parses VulnerabilityStates into a typed filter.
// A nil filter means no state filtering.
func (c *Config) StateFilter() (*StateFilter, error) {
	if strings.TrimSpace(c.VulnerabilityStates) == "" {
		return nil, nil
	}
	filter := &StateFilter{included: make(map[FindingState]bool)}
	for _, part := range strings.Split(c.VulnerabilityStates, ",") {
		s := FindingState(strings.TrimSpace(part))
		if !validStates[s] {
			return nil, fmt.Errorf("invalid vulnerability state %q: must be one of vulnerable, invulnerable, no-results", part)
		}
		filter.included[s] = true
	}
	return filter, nil
}

// SeverityFilter is an allow-list of severity tiers. The zero pointer (nil)
// admits everything.
type SeverityFilter struct {
	included map[Severity]bool
}

// Includes reports whether the given severity passes the filter.
func (f *SeverityFilter) Includes(s Severity) bool {
	if f == nil {
		return true
	}
	return f.included[s]
}

// IncludesAny reports whether any of the given severities passes the filter.
func (f *SeverityFilter) IncludesAny(severities ...Severity) bool {
	for _, s := range severities {
		if f.Includes(s) {
			return true
		}
	}
	return false
}

// StopSeverity returns the tier one step below the lowest included severity.
// Because the catalog scan is sorted by severity score descending, seeing the
// stop severity means every remaining record is below the filter. The second
// return value is false when the filter admits the lowest tier (or admits
// everything), in which case the scan must run to the end.
func (f *SeverityFilter) StopSeverity() (Severity, bool) {
	if f == nil {
		return "", false
	}
	lowest := -1
	for s := range f.included {
		if r := severityRank[s]; r > lowest {
			lowest = r
		}
	}
	if lowest < 0 || lowest+1 >= len(orderedSeverities) {
		return "", false
	}
	return orderedSeverities[lowest+1], true
}

// StateFilter is an allow-list of finding states. The zero pointer (nil)
// admits everything.
type StateFilter struct {
	included map[FindingState]bool
}

// Includes reports whether the given finding state passes the filter.
func (f *StateFilter) Includes(s FindingState) bool {
	if f == nil {
		return true
	}
	return f.included[s]
}

var schemeRe = regexp.MustCompile(`^http`)

// ValidateHost accepts a bare hostname or a URL and reduces it to the
// hostname, rejecting anything that does not parse.
func ValidateHost(host string) (string, error) {
	valid := host
	if !schemeRe.MatchString(host) {
		valid = "https://" + host
	}
	u, err := url.Parse(valid)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid InsightVM hostname: %s", host)
	}
	return u.Hostname(), nil
}
