// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

// Package remotetest provides scripted replica connections for driving a
// remote query executor without a server: a connection serves a canned
// packet script per conversation and records every outbound frame.
package remotetest

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/keeldb/keel/pkg/base"
	"github.com/keeldb/keel/pkg/col"
	"github.com/keeldb/keel/pkg/remote"
	"github.com/keeldb/keel/pkg/util/syncutil"
)

// FrameKind classifies an outbound frame recorded by a scripted connection.
type FrameKind string

const (
	// FrameQuery is a Query packet.
	FrameQuery FrameKind = "query"
	// FrameIgnoredPartUUIDs is an IgnoredPartUUIDs packet.
	FrameIgnoredPartUUIDs FrameKind = "ignored_part_uuids"
	// FrameData is a Data packet (scalars, external tables, or the empty
	// terminator).
	FrameData FrameKind = "data"
	// FrameCancel is a Cancel packet.
	FrameCancel FrameKind = "cancel"
	// FrameReadTaskResponse is a ReadTaskResponse packet.
	FrameReadTaskResponse FrameKind = "read_task_response"
	// FrameMergeTreeReadTaskResponse is a MergeTreeReadTaskResponse packet.
	FrameMergeTreeReadTaskResponse FrameKind = "merge_tree_read_task_response"
)

// SentFrame is one outbound frame recorded by a scripted connection.
type SentFrame struct {
	Kind    FrameKind
	Query   string
	QueryID string
	Stage   remote.Stage
	Info    remote.ClientInfo
	Name    string
	Block   *col.Block
	UUIDs   []uuid.UUID
	Task    string
}

// Conn is a scripted replica connection. Each SendQuery starts the next
// conversation: the corresponding packet script becomes receivable, one
// packet per ReceivePacket call. Packets can also be appended while the
// conversation runs. The zero conversation count means ReceivePacket
// blocks until the script is fed or the connection is torn down.
type Conn struct {
	addr string

	mu struct {
		syncutil.Mutex
		scripts      [][]remote.Packet
		conversation int
		queue        []remote.Packet
		sent         []SentFrame
		closed       bool
		updated      chan struct{}
	}
}

var _ remote.Connection = (*Conn)(nil)

// NewConn returns a scripted connection serving one packet script per
// conversation.
func NewConn(addr string, scripts ...[]remote.Packet) *Conn {
	c := &Conn{addr: addr}
	c.mu.scripts = scripts
	c.mu.updated = make(chan struct{})
	return c
}

func (c *Conn) signalLocked() {
	close(c.mu.updated)
	c.mu.updated = make(chan struct{})
}

func (c *Conn) record(f SentFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.sent = append(c.mu.sent, f)
}

// Push appends a packet to the current conversation.
func (c *Conn) Push(p remote.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.queue = append(c.mu.queue, p)
	c.signalLocked()
}

// SentFrames returns a copy of every outbound frame recorded so far.
func (c *Conn) SentFrames() []SentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentFrame(nil), c.mu.sent...)
}

// CountSent returns how many frames of the given kind were recorded.
func (c *Conn) CountSent(kind FrameKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.mu.sent {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// SendQuery implements remote.Connection. It revives a disconnected
// scripted connection, so the same Conn can serve the retried conversation
// of a duplicate-uuid restart.
func (c *Conn) SendQuery(
	_ context.Context,
	_ base.ConnectionTimeouts,
	query string,
	queryID string,
	stage remote.Stage,
	info *remote.ClientInfo,
	_ bool,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.closed = false
	c.mu.queue = nil
	if c.mu.conversation < len(c.mu.scripts) {
		c.mu.queue = append(c.mu.queue, c.mu.scripts[c.mu.conversation]...)
	}
	c.mu.conversation++
	c.mu.sent = append(c.mu.sent, SentFrame{
		Kind:    FrameQuery,
		Query:   query,
		QueryID: queryID,
		Stage:   stage,
		Info:    *info,
	})
	c.signalLocked()
	return nil
}

// SendIgnoredPartUUIDs implements remote.Connection.
func (c *Conn) SendIgnoredPartUUIDs(_ context.Context, uuids []uuid.UUID) error {
	c.record(SentFrame{Kind: FrameIgnoredPartUUIDs, UUIDs: append([]uuid.UUID(nil), uuids...)})
	return nil
}

// SendData implements remote.Connection.
func (c *Conn) SendData(_ context.Context, block *col.Block, name string) error {
	c.record(SentFrame{Kind: FrameData, Name: name, Block: block})
	return nil
}

// SendCancel implements remote.Connection.
func (c *Conn) SendCancel(context.Context) error {
	c.record(SentFrame{Kind: FrameCancel})
	return nil
}

// SendReadTaskResponse implements remote.Connection.
func (c *Conn) SendReadTaskResponse(_ context.Context, response string) error {
	c.record(SentFrame{Kind: FrameReadTaskResponse, Task: response})
	return nil
}

// SendMergeTreeReadTaskResponse implements remote.Connection.
func (c *Conn) SendMergeTreeReadTaskResponse(
	_ context.Context, _ remote.ParallelReadResponse,
) error {
	c.record(SentFrame{Kind: FrameMergeTreeReadTaskResponse})
	return nil
}

// ReceivePacket implements remote.Connection.
func (c *Conn) ReceivePacket(ctx context.Context) (remote.Packet, error) {
	for {
		c.mu.Lock()
		if c.mu.closed {
			c.mu.Unlock()
			return remote.Packet{}, errors.Newf("connection to %s is closed", c.addr)
		}
		if len(c.mu.queue) > 0 {
			p := c.mu.queue[0]
			c.mu.queue = c.mu.queue[1:]
			c.mu.Unlock()
			return p, nil
		}
		updated := c.mu.updated
		c.mu.Unlock()

		select {
		case <-updated:
		case <-ctx.Done():
			return remote.Packet{}, ctx.Err()
		}
	}
}

// Disconnect implements remote.Connection.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.closed = true
	c.mu.queue = nil
	c.signalLocked()
	return nil
}

// IsClosed reports whether the connection was torn down.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.closed
}

// Addr implements remote.Connection.
func (c *Conn) Addr() string {
	return c.addr
}

// Pool is a scripted connection pool handing out a fixed list of
// connections in order.
type Pool struct {
	mu struct {
		syncutil.Mutex
		conns []remote.Connection
		next  int
	}
}

var _ remote.ConnectionPool = (*Pool)(nil)

// NewPool returns a pool over the given connections.
func NewPool(conns ...remote.Connection) *Pool {
	p := &Pool{}
	p.mu.conns = conns
	return p
}

// Get implements remote.ConnectionPool.
func (p *Pool) Get(
	_ context.Context, _ base.ConnectionTimeouts, async remote.AsyncCallback,
) (remote.Connection, error) {
	if async != nil {
		async()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mu.next >= len(p.mu.conns) {
		return nil, errors.Newf("all %d replicas are exhausted", len(p.mu.conns))
	}
	c := p.mu.conns[p.mu.next]
	p.mu.next++
	return c, nil
}

// GetMany implements remote.ConnectionPool. It returns the remaining
// connections, up to maxConns; an exhausted pool yields an empty set.
func (p *Pool) GetMany(
	_ context.Context, _ base.ConnectionTimeouts, maxConns int, async remote.AsyncCallback,
) ([]remote.Connection, error) {
	if async != nil {
		async()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var res []remote.Connection
	for len(res) < maxConns && p.mu.next < len(p.mu.conns) {
		res = append(res, p.mu.conns[p.mu.next])
		p.mu.next++
	}
	return res, nil
}
