// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/keeldb/keel/pkg/base"
	"github.com/keeldb/keel/pkg/col"
)

// BlockSource yields blocks one at a time. A nil block with a nil error
// means the source is exhausted.
type BlockSource interface {
	Next(ctx context.Context) (*col.Block, error)
}

// ExternalTableData is one temporary table queued for transmission on one
// connection. NewSource creates a fresh pipe over the table's contents;
// hedged connection sets call it again when they have to replay the
// conversation on a backup replica.
type ExternalTableData struct {
	Name string
	// NewSource creates a pipe over the table contents.
	NewSource func() BlockSource

	cancelled atomic.Bool
}

// MarkCancelled stops any feeder reading from this table's pipes.
func (d *ExternalTableData) MarkCancelled() {
	d.cancelled.Store(true)
}

// IsCancelled reports whether the table's transmission was cancelled.
func (d *ExternalTableData) IsCancelled() bool {
	return d.cancelled.Load()
}

// ExternalTablesData is the set of temporary tables queued for one
// connection.
type ExternalTablesData []*ExternalTableData

// blocksSource yields a fixed slice of blocks.
type blocksSource struct {
	blocks []*col.Block
	idx    int
}

func newBlocksSource(blocks []*col.Block) *blocksSource {
	return &blocksSource{blocks: blocks}
}

func (s *blocksSource) Next(context.Context) (*col.Block, error) {
	if s.idx >= len(s.blocks) {
		return nil, nil
	}
	b := s.blocks[s.idx]
	s.idx++
	return b, nil
}

// limitingSource bounds how long a source may keep producing. On overflow it
// either fails or ends the stream, depending on the overflow mode.
type limitingSource struct {
	src      BlockSource
	deadline time.Time
	mode     base.OverflowMode
}

func newLimitingSource(src BlockSource, maxExecutionTime time.Duration, mode base.OverflowMode) *limitingSource {
	return &limitingSource{
		src:      src,
		deadline: time.Now().Add(maxExecutionTime),
		mode:     mode,
	}
}

func (s *limitingSource) Next(ctx context.Context) (*col.Block, error) {
	if time.Now().After(s.deadline) {
		if s.mode == base.OverflowBreak {
			return nil, nil
		}
		return nil, errors.Newf("timeout exceeded while sending external table data")
	}
	return s.src.Next(ctx)
}
