// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
)

// Export is the JSON document emitted when syncing with --format json: the
// full collected graph.
type Export struct {
	Entities      []graph.Entity       `json:"entities"`
	Relationships []graph.Relationship `json:"relationships"`
}

// NewExport snapshots the job state into an export document. Entities and
// relationships keep their insertion order.
func NewExport(state *graph.InMemory) *Export {
	entities, relationships := state.All()
	return &Export{Entities: entities, Relationships: relationships}
}

func WriteJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
