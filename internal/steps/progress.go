// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"fmt"
	"runtime"
)

// memoryDiagnostics builds the slog attributes for a progress log line:
// processed-item count plus current heap figures. Observability only; the
// numbers never influence control flow.
func memoryDiagnostics(processed int64) []any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return []any{
		"processed", processed,
		"heapAlloc", formatMiB(m.HeapAlloc),
		"heapSys", formatMiB(m.HeapSys),
		"sys", formatMiB(m.Sys),
		"numGC", m.NumGC,
	}
}

func formatMiB(b uint64) string {
	return fmt.Sprintf("%.2f MB", float64(b)/1024/1024)
}
