// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import (
	"github.com/google/uuid"

	"github.com/keeldb/keel/pkg/util/syncutil"
)

// PartUUIDRegistry deduplicates the storage parts read across every replica
// participating in a query. Add registers uuids and returns the ones that
// were already present.
type PartUUIDRegistry interface {
	Add(uuids []uuid.UUID) []uuid.UUID
}

// QueryPartUUIDs is the query-scoped registry shared by all executors of
// one distributed query.
type QueryPartUUIDs struct {
	mu   syncutil.Mutex
	seen map[uuid.UUID]struct{}
}

var _ PartUUIDRegistry = (*QueryPartUUIDs)(nil)

// NewQueryPartUUIDs returns an empty registry.
func NewQueryPartUUIDs() *QueryPartUUIDs {
	return &QueryPartUUIDs{seen: make(map[uuid.UUID]struct{})}
}

// Add registers the uuids, returning those already registered.
func (p *QueryPartUUIDs) Add(uuids []uuid.UUID) []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	var duplicates []uuid.UUID
	for _, u := range uuids {
		if _, ok := p.seen[u]; ok {
			duplicates = append(duplicates, u)
			continue
		}
		p.seen[u] = struct{}{}
	}
	return duplicates
}
