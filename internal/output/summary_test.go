// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
)

// makeTestState builds a job state with a small graph for rendering tests.
func makeTestState(t *testing.T) *graph.InMemory {
	t.Helper()
	state := graph.NewInMemory()

	account := graph.Entity{Key: graph.AccountKey("admin"), Type: graph.TypeAccount, Class: graph.ClassAccount}
	asset := graph.Entity{Key: graph.AssetKey(42), Type: graph.TypeAsset, Class: graph.ClassDevice}
	finding := graph.Entity{
		Key:   graph.FindingKey(42, "cve-x"),
		Type:  graph.TypeFinding,
		Class: graph.ClassFinding,
		Properties: map[string]any{
			"severity": "critical",
		},
	}
	for _, e := range []graph.Entity{account, asset, finding} {
		require.NoError(t, state.AddEntity(e))
	}
	require.NoError(t, state.AddRelationship(graph.NewRelationship(graph.RelHas, &account, &asset)))
	require.NoError(t, state.AddRelationship(graph.NewRelationship(graph.RelHas, &asset, &finding)))
	return state
}

func TestWriteSummary(t *testing.T) {
	summary := NewSummary(makeTestState(t), 1500*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, summary, false))
	out := buf.String()

	assert.Contains(t, out, "Sync completed in 1.5s")
	assert.Contains(t, out, graph.TypeAccount)
	assert.Contains(t, out, graph.TypeAsset)
	assert.Contains(t, out, graph.TypeFinding)
	assert.Contains(t, out, "insightvm_account_has_insightvm_asset")
	assert.Contains(t, out, "Findings: 1 (critical: 1, severe: 0, moderate: 0)")

	assert.NotContains(t, out, "\x1b[", "non-terminal output must not contain ANSI escapes")
}

func TestWriteSummary_CountsTotals(t *testing.T) {
	summary := NewSummary(makeTestState(t), time.Second)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, summary, false))

	// 3 entities and 2 relationships, one Total row per table
	assert.Equal(t, 2, strings.Count(buf.String(), "Total"))
}

func TestSeveritySummary(t *testing.T) {
	findings := []graph.Entity{
		{Key: "f1", Properties: map[string]any{"severity": "critical"}},
		{Key: "f2", Properties: map[string]any{"severity": "severe"}},
		{Key: "f3", Properties: map[string]any{"severity": "severe"}},
		{Key: "f4", Properties: map[string]any{"severity": "bogus"}},
		{Key: "f5"},
	}

	got := severitySummary(findings, false)
	assert.Equal(t, "Findings: 5 (critical: 1, severe: 2, moderate: 0)", got)
}

func TestWriteJSONExport(t *testing.T) {
	export := NewExport(makeTestState(t))

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, export))

	var decoded struct {
		Entities []struct {
			Key   string `json:"_key"`
			Type  string `json:"_type"`
			Class string `json:"_class"`
		} `json:"entities"`
		Relationships []struct {
			Key     string `json:"_key"`
			FromKey string `json:"_fromEntityKey"`
			ToKey   string `json:"_toEntityKey"`
		} `json:"relationships"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	require.Len(t, decoded.Entities, 3)
	assert.Equal(t, graph.AccountKey("admin"), decoded.Entities[0].Key)
	assert.Equal(t, graph.ClassAccount, decoded.Entities[0].Class)

	require.Len(t, decoded.Relationships, 2)
	assert.Equal(t, graph.AccountKey("admin"), decoded.Relationships[0].FromKey)
	assert.Equal(t, graph.AssetKey(42), decoded.Relationships[0].ToKey)
}
