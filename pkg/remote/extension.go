// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

// TaskIterator yields opaque read task payloads, one per server request.
type TaskIterator func() (string, error)

// ParallelReplicasCoordinator assigns ranges to replicas during a
// coordinated parallel scan.
type ParallelReplicasCoordinator interface {
	// HandleRequest answers a replica's request for the next range.
	HandleRequest(req ParallelReadRequest) (ParallelReadResponse, error)
	// HandleInitialAllRangesAnnouncement records a replica's initial
	// announcement of everything it could read.
	HandleInitialAllRangesAnnouncement(ann InitialAllRangesAnnouncement) error
}

// Extension carries the optional collaborators of an executor.
type Extension struct {
	TaskIterator TaskIterator
	Coordinator  ParallelReplicasCoordinator
	ReplicaInfo  *ReplicaInfo
}
