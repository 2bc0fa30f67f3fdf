// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

// Package remote implements the client-side driver of Keel's distributed
// query executor. It ships a query to one or more replica endpoints, streams
// back columnar blocks in a stable schema, multiplexes auxiliary data
// (scalars, external tables, parallel-read coordination), and keeps the
// underlying connections in sync under cancellation and retries.
package remote

import (
	"github.com/google/uuid"

	"github.com/keeldb/keel/pkg/col"
)

// PacketType tags a packet received from a server.
type PacketType uint8

const (
	// PacketData carries a block of result data.
	PacketData PacketType = iota
	// PacketProgress carries query progress counters.
	PacketProgress
	// PacketException carries an error raised on the server.
	PacketException
	// PacketTotals carries the block of aggregated totals.
	PacketTotals
	// PacketExtremes carries the block of min/max values.
	PacketExtremes
	// PacketProfileInfo carries the profiling summary of the query.
	PacketProfileInfo
	// PacketProfileEvents carries a block of server-side profile events.
	PacketProfileEvents
	// PacketLog carries a block of server log entries.
	PacketLog
	// PacketEndOfStream ends the conversation on a connection.
	PacketEndOfStream
	// PacketPartUUIDs announces the storage parts a replica is about to read.
	PacketPartUUIDs
	// PacketReadTaskRequest asks the client for the next read task.
	PacketReadTaskRequest
	// PacketMergeTreeReadTaskRequest asks the client's coordinator for a
	// range to read.
	PacketMergeTreeReadTaskRequest
	// PacketMergeTreeAllRangesAnnouncement announces the ranges a replica
	// could read, for coordinated parallel scans.
	PacketMergeTreeAllRangesAnnouncement
)

func (t PacketType) String() string {
	switch t {
	case PacketData:
		return "Data"
	case PacketProgress:
		return "Progress"
	case PacketException:
		return "Exception"
	case PacketTotals:
		return "Totals"
	case PacketExtremes:
		return "Extremes"
	case PacketProfileInfo:
		return "ProfileInfo"
	case PacketProfileEvents:
		return "ProfileEvents"
	case PacketLog:
		return "Log"
	case PacketEndOfStream:
		return "EndOfStream"
	case PacketPartUUIDs:
		return "PartUUIDs"
	case PacketReadTaskRequest:
		return "ReadTaskRequest"
	case PacketMergeTreeReadTaskRequest:
		return "MergeTreeReadTaskRequest"
	case PacketMergeTreeAllRangesAnnouncement:
		return "MergeTreeAllRangesAnnouncement"
	}
	return "Unknown"
}

// Packet is one unit received from a server. Type selects which payload
// field is meaningful.
type Packet struct {
	Type         PacketType
	Block        *col.Block
	Exception    error
	Progress     Progress
	ProfileInfo  ProfileInfo
	PartUUIDs    []uuid.UUID
	Request      *ParallelReadRequest
	Announcement *InitialAllRangesAnnouncement
}

// Progress counts the server-side advancement of a query.
type Progress struct {
	ReadRows        uint64
	ReadBytes       uint64
	TotalRowsToRead uint64
}

// ProfileInfo is the server's profiling summary for a query.
type ProfileInfo struct {
	Rows            uint64
	Blocks          uint64
	Bytes           uint64
	AppliedLimit    bool
	RowsBeforeLimit uint64
}

// ParallelReadRequest is a replica's request for a range assignment during a
// coordinated parallel scan. The payload is opaque to the driver.
type ParallelReadRequest struct {
	ReplicaNum int
	Payload    []byte
}

// ParallelReadResponse is the coordinator's answer to a ParallelReadRequest.
type ParallelReadResponse struct {
	Denied  bool
	Payload []byte
}

// InitialAllRangesAnnouncement is a replica's initial announcement of every
// range it could read. The payload is opaque to the driver.
type InitialAllRangesAnnouncement struct {
	ReplicaNum int
	Payload    []byte
}

// QueryKind describes who initiated a query.
type QueryKind uint8

const (
	// InitialQuery is a query coming directly from a client.
	InitialQuery QueryKind = iota
	// SecondaryQuery is a query forwarded by another server.
	SecondaryQuery
)

// Stage is the processing stage up to which the remote servers execute the
// query.
type Stage uint8

const (
	// StageFetchColumns only reads the referenced columns.
	StageFetchColumns Stage = iota
	// StageWithMergeableState executes up to an intermediate, mergeable
	// aggregation state.
	StageWithMergeableState
	// StageComplete executes the query completely.
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageFetchColumns:
		return "FetchColumns"
	case StageWithMergeableState:
		return "WithMergeableState"
	case StageComplete:
		return "Complete"
	}
	return "Unknown"
}

// ClientInfo identifies the party a query is executed on behalf of. It is
// forwarded to the servers with the query. The parallel-replica fields are
// filled in by the connection set when the executor takes part in a
// coordinated parallel scan.
type ClientInfo struct {
	QueryKind      QueryKind
	ClientName     string
	InitialUser    string
	InitialQueryID string

	CollaborateWithInitiator bool
	AllReplicasCount         int
	NumberOfCurrentReplica   int
}
