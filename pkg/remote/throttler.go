// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/keeldb/keel/pkg/col"
)

// Throttler limits the network bandwidth spent on outbound data blocks
// (scalars and external tables). A nil Throttler imposes no limit.
type Throttler struct {
	limiter *rate.Limiter
}

// NewThrottler returns a throttler limiting sends to bytesPerSec.
func NewThrottler(bytesPerSec int) *Throttler {
	return &Throttler{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)}
}

// Throttle blocks until the given number of bytes may be sent.
func (t *Throttler) Throttle(ctx context.Context, bytes int) error {
	if t == nil {
		return nil
	}
	burst := t.limiter.Burst()
	for bytes > burst {
		if err := t.limiter.WaitN(ctx, burst); err != nil {
			return err
		}
		bytes -= burst
	}
	return t.limiter.WaitN(ctx, bytes)
}

// blockByteSize estimates the wire footprint of a block.
func blockByteSize(b *col.Block) int {
	if b == nil {
		return 0
	}
	size := 0
	for _, c := range b.Cols() {
		n := c.Len()
		switch c.Typ {
		case col.Bool:
			size += n
		case col.UInt32:
			size += 4 * n
		case col.Int64, col.Float64:
			size += 8 * n
		case col.String:
			if c.IsConst() {
				if s, ok := c.ConstValue().(string); ok {
					size += len(s) * n
				}
				continue
			}
			if v := c.Vec(); v != nil {
				for _, s := range v.Strings() {
					size += len(s)
				}
			}
		}
	}
	return size
}
