// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import (
	"context"

	"github.com/google/uuid"

	"github.com/keeldb/keel/pkg/base"
	"github.com/keeldb/keel/pkg/col"
)

// Scalars are the scalar subquery results pushed to the servers after the
// query, keyed by scalar name.
type Scalars map[string]*col.Block

// Tables are the in-memory temporary tables shipped to the servers, keyed by
// table name.
type Tables map[string][]*col.Block

// AsyncCallback is invoked whenever a connection factory must block on pool
// operations, so that connection establishment can be integrated with an
// asynchronous read loop.
type AsyncCallback func()

// Connection is a single replica endpoint. The wire protocol behind it is
// out of scope for this package; implementations frame and transmit the
// packets however they see fit.
type Connection interface {
	// SendQuery transmits the Query packet.
	SendQuery(
		ctx context.Context,
		timeouts base.ConnectionTimeouts,
		query string,
		queryID string,
		stage Stage,
		info *ClientInfo,
		withPendingData bool,
	) error
	// SendIgnoredPartUUIDs transmits part uuids whose data the server must
	// suppress. Sent before the query.
	SendIgnoredPartUUIDs(ctx context.Context, uuids []uuid.UUID) error
	// SendData transmits one block of pending data (scalars or external
	// tables). An empty block with an empty name ends the pending data.
	SendData(ctx context.Context, block *col.Block, name string) error
	// SendCancel asks the server to abort the query.
	SendCancel(ctx context.Context) error
	// SendReadTaskResponse answers a ReadTaskRequest.
	SendReadTaskResponse(ctx context.Context, response string) error
	// SendMergeTreeReadTaskResponse answers a MergeTreeReadTaskRequest.
	SendMergeTreeReadTaskResponse(ctx context.Context, response ParallelReadResponse) error
	// ReceivePacket blocks until one packet is available.
	ReceivePacket(ctx context.Context) (Packet, error)
	// Disconnect tears the connection down. Pending receives fail.
	Disconnect() error
	// Addr returns the endpoint address, for diagnostics.
	Addr() string
}

// ConnectionPool hands out replica connections. Implementations are out of
// scope; the async callback is invoked if the pool must block.
type ConnectionPool interface {
	// Get returns one connection.
	Get(ctx context.Context, timeouts base.ConnectionTimeouts, async AsyncCallback) (Connection, error)
	// GetMany returns up to maxConns connections to distinct replicas. It
	// may return fewer when replicas are unavailable.
	GetMany(ctx context.Context, timeouts base.ConnectionTimeouts, maxConns int, async AsyncCallback) ([]Connection, error)
}

// Connections is the uniform duplex abstraction the executor drives: one or
// more replica connections behind a single send/receive surface. The
// executor never inspects which variant it holds.
type Connections interface {
	// SendIgnoredPartUUIDs transmits uuids to suppress. Must precede
	// SendQuery.
	SendIgnoredPartUUIDs(ctx context.Context, uuids []uuid.UUID) error
	// SendQuery transmits the Query packet to every replica.
	SendQuery(
		ctx context.Context,
		timeouts base.ConnectionTimeouts,
		query string,
		queryID string,
		stage Stage,
		info *ClientInfo,
		withPendingData bool,
	) error
	// SendScalarsData streams scalar subquery results.
	SendScalarsData(ctx context.Context, scalars Scalars) error
	// SendExternalTablesData streams the per-connection temporary tables
	// and terminates the pending-data stream.
	SendExternalTablesData(ctx context.Context, data []ExternalTablesData) error
	// SendReadTaskResponse answers a ReadTaskRequest.
	SendReadTaskResponse(ctx context.Context, response string) error
	// SendMergeTreeReadTaskResponse answers a MergeTreeReadTaskRequest.
	SendMergeTreeReadTaskResponse(ctx context.Context, response ParallelReadResponse) error
	// SendCancel asks every replica to abort.
	SendCancel(ctx context.Context) error
	// ReceivePacket blocks until one packet arrives from any replica.
	// Packets are delivered in arrival order.
	ReceivePacket(ctx context.Context) (Packet, error)
	// Drain discards packets until end-of-stream on every replica or a
	// fault, returning the terminal packet.
	Drain(ctx context.Context) (Packet, error)
	// Disconnect hard-tears down every connection.
	Disconnect() error
	// HasActiveConnections is false once every replica has emitted
	// EndOfStream.
	HasActiveConnections() bool
	// Size is the count of live connections.
	Size() int
	// DumpAddresses returns the replica addresses, for diagnostics.
	DumpAddresses() string
}

// ConnectionsFactory realizes the connection set for a query. The callback
// is passed through to pool operations that may block.
type ConnectionsFactory func(ctx context.Context, async AsyncCallback) (Connections, error)

// ReplicaInfo identifies this executor's slot within a parallel replica
// group.
type ReplicaInfo struct {
	AllReplicasCount       int
	NumberOfCurrentReplica int
}
