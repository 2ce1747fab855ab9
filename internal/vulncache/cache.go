// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package vulncache is the run-scoped key/value store for catalog
// vulnerability records. The bulk prefetcher writes it ahead of the finding
// reconciliation pass, so reconciling an asset's findings does not cost one
// catalog round trip per finding.
//
// Records are buffered in memory and flushed to an on-disk segment file in
// batches; the in-memory side keeps only an id -> offset index, which bounds
// peak memory independent of catalog size. The store lives for one
// execution: the directory is created per run and is not reused.
package vulncache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

// DefaultFlushThreshold is the buffered-record count that triggers a flush.
const DefaultFlushThreshold = 1000

const segmentFilename = "vulnerabilities.jsonl"

// record is the serialized form of one cache entry. Excluded marks a
// tombstone: the id was fetched and rejected by the severity filter, so the
// lazy path must not fetch it again.
type record struct {
	ID            string                   `json:"id"`
	Excluded      bool                     `json:"excluded,omitempty"`
	Vulnerability *insightvm.Vulnerability `json:"vulnerability,omitempty"`
}

// location addresses a flushed record inside the segment file.
type location struct {
	offset int64
	length int
}

// Cache is safe for concurrent use. Writers are keyed by vulnerability id;
// concurrent puts for the same id carry identical content, so last-write
// races are harmless.
type Cache struct {
	mu             sync.Mutex
	file           *os.File
	writeOffset    int64
	buffer         map[string]record
	index          map[string]location
	flushThreshold int
}

// Open creates the cache under dir, which is created if missing.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, segmentFilename), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening cache segment: %w", err)
	}
	return &Cache{
		file:           f,
		buffer:         make(map[string]record),
		index:          make(map[string]location),
		flushThreshold: DefaultFlushThreshold,
	}, nil
}

// Put stores a catalog record, flushing the buffer once it reaches the
// threshold.
func (c *Cache) Put(v insightvm.Vulnerability) error {
	return c.put(record{ID: v.ID, Vulnerability: &v})
}

// PutTombstone remembers that the id was looked up and rejected by the
// severity filter.
func (c *Cache) PutTombstone(id string) error {
	return c.put(record{ID: id, Excluded: true})
}

func (c *Cache) put(r record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer[r.ID] = r
	if len(c.buffer) >= c.flushThreshold {
		return c.flushLocked()
	}
	return nil
}

// Get looks up a record by vulnerability id. The second return value is
// false when the id was never stored; a stored tombstone yields (nil, true).
func (c *Cache) Get(id string) (*insightvm.Vulnerability, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.buffer[id]; ok {
		return r.Vulnerability, true, nil
	}

	loc, ok := c.index[id]
	if !ok {
		return nil, false, nil
	}
	if loc.length == 0 {
		// tombstone
		return nil, true, nil
	}

	raw := make([]byte, loc.length)
	if _, err := c.file.ReadAt(raw, loc.offset); err != nil {
		return nil, false, fmt.Errorf("reading cache segment for %s: %w", id, err)
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, fmt.Errorf("decoding cache record for %s: %w", id, err)
	}
	return r.Vulnerability, true, nil
}

// Flush writes all buffered records to the segment file.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Cache) flushLocked() error {
	for id, r := range c.buffer {
		if r.Excluded {
			// tombstones live in the index only
			c.index[id] = location{}
			continue
		}
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding cache record for %s: %w", id, err)
		}
		raw = append(raw, '\n')
		if _, err := c.file.WriteAt(raw, c.writeOffset); err != nil {
			return fmt.Errorf("writing cache segment: %w", err)
		}
		c.index[id] = location{offset: c.writeOffset, length: len(raw) - 1}
		c.writeOffset += int64(len(raw))
	}
	c.buffer = make(map[string]record)
	return nil
}

// Len returns the number of stored records, tombstones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.index)
	for id := range c.buffer {
		if _, flushed := c.index[id]; !flushed {
			n++
		}
	}
	return n
}

// Close flushes pending records and closes the segment file.
func (c *Cache) Close() error {
	if err := c.Flush(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
