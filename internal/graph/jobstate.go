// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"sync"
)

// JobState collects the entities and relationships of one connector run and
// carries arbitrary cross-step data. Implementations must make the
// HasKey/AddEntity pair safe under concurrent workers: adding an entity
// whose key already exists is an idempotent no-op, never a duplicate.
type JobState interface {
	AddEntity(e Entity) error
	AddRelationship(r Relationship) error
	AddRelationships(rs []Relationship) error

	// IterateEntities calls fn for every entity of the given type. fn
	// returning an error aborts the iteration.
	IterateEntities(entityType string, fn func(e Entity) error) error

	HasKey(key string) bool
	FindEntity(key string) (Entity, bool)

	GetData(key string) (any, bool)
	SetData(key string, value any)
}

// InMemory is the in-process JobState used by the sync command. A mutex
// serializes the check-then-act sequences so concurrent finding workers
// cannot emit the same key twice.
type InMemory struct {
	mu            sync.Mutex
	entities      map[string]Entity
	entityOrder   []string
	relationships map[string]Relationship
	relOrder      []string
	data          map[string]any
}

// NewInMemory creates an empty job state.
func NewInMemory() *InMemory {
	return &InMemory{
		entities:      make(map[string]Entity),
		relationships: make(map[string]Relationship),
		data:          make(map[string]any),
	}
}

// AddEntity records an entity. A second add with the same key is dropped.
func (s *InMemory) AddEntity(e Entity) error {
	if e.Key == "" {
		return fmt.Errorf("entity of type %s has an empty key", e.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[e.Key]; exists {
		return nil
	}
	s.entities[e.Key] = e
	s.entityOrder = append(s.entityOrder, e.Key)
	return nil
}

// AddRelationship records a relationship. Duplicate keys are dropped.
func (s *InMemory) AddRelationship(r Relationship) error {
	if r.Key == "" {
		return fmt.Errorf("relationship of type %s has an empty key", r.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.relationships[r.Key]; exists {
		return nil
	}
	s.relationships[r.Key] = r
	s.relOrder = append(s.relOrder, r.Key)
	return nil
}

func (s *InMemory) AddRelationships(rs []Relationship) error {
	for _, r := range rs {
		if err := s.AddRelationship(r); err != nil {
			return err
		}
	}
	return nil
}

// IterateEntities walks entities of one type in insertion order. The
// snapshot is taken up front, so fn may add further entities.
func (s *InMemory) IterateEntities(entityType string, fn func(e Entity) error) error {
	s.mu.Lock()
	snapshot := make([]Entity, 0)
	for _, key := range s.entityOrder {
		if e := s.entities[key]; e.Type == entityType {
			snapshot = append(snapshot, e)
		}
	}
	s.mu.Unlock()

	for _, e := range snapshot {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemory) HasKey(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[key]; ok {
		return true
	}
	_, ok := s.relationships[key]
	return ok
}

func (s *InMemory) FindEntity(key string) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[key]
	return e, ok
}

func (s *InMemory) GetData(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *InMemory) SetData(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Counts returns the number of entities and relationships per type, for the
// run summary.
func (s *InMemory) Counts() (entities map[string]int, relationships map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities = make(map[string]int)
	for _, e := range s.entities {
		entities[e.Type]++
	}
	relationships = make(map[string]int)
	for _, r := range s.relationships {
		relationships[r.Type]++
	}
	return entities, relationships
}

// All returns every entity and relationship in insertion order.
func (s *InMemory) All() ([]Entity, []Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities := make([]Entity, 0, len(s.entityOrder))
	for _, key := range s.entityOrder {
		entities = append(entities, s.entities[key])
	}
	relationships := make([]Relationship, 0, len(s.relOrder))
	for _, key := range s.relOrder {
		relationships = append(relationships, s.relationships[key])
	}
	return entities, relationships
}

// Entities returns all entities of one type in insertion order.
func (s *InMemory) Entities(entityType string) []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entity, 0)
	for _, key := range s.entityOrder {
		if e := s.entities[key]; e.Type == entityType {
			out = append(out, e)
		}
	}
	return out
}

// Relationships returns all relationships of one class, in insertion order.
func (s *InMemory) Relationships(class string) []Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Relationship, 0)
	for _, key := range s.relOrder {
		if r := s.relationships[key]; r.Class == class {
			out = append(out, r)
		}
	}
	return out
}
