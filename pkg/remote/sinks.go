// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import "github.com/keeldb/keel/pkg/col"

// TextLogQueue receives server log blocks forwarded by the executor. Pushes
// are best-effort: a full queue drops the block.
type TextLogQueue struct {
	C chan *col.Block
}

// NewTextLogQueue returns a queue holding up to capacity blocks.
func NewTextLogQueue(capacity int) *TextLogQueue {
	return &TextLogQueue{C: make(chan *col.Block, capacity)}
}

// Push enqueues a block if there is room, reporting whether it was kept.
func (q *TextLogQueue) Push(b *col.Block) bool {
	select {
	case q.C <- b:
		return true
	default:
		return false
	}
}

// ProfileEventsQueue receives server profile-events blocks forwarded by the
// executor. Unlike logs, a failed push is a fault.
type ProfileEventsQueue struct {
	C chan *col.Block
}

// NewProfileEventsQueue returns a queue holding up to capacity blocks.
func NewProfileEventsQueue(capacity int) *ProfileEventsQueue {
	return &ProfileEventsQueue{C: make(chan *col.Block, capacity)}
}

// Push enqueues a block if there is room, reporting whether it was kept.
func (q *ProfileEventsQueue) Push(b *col.Block) bool {
	select {
	case q.C <- b:
		return true
	default:
		return false
	}
}
