// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import "github.com/keeldb/keel/pkg/col"

// ReadResultType describes what a call to Read produced.
type ReadResultType uint8

const (
	// ReadNothing means the processed packet produced nothing for the
	// caller; reading continues.
	ReadNothing ReadResultType = iota
	// ReadData means a data block is available.
	ReadData
	// ReadParallelReplicasToken means a parallel-reading coordination
	// message was processed. It is surfaced so callers can account for it
	// without confusing it with data.
	ReadParallelReplicasToken
	// ReadFinished means the stream is over: every replica sent
	// end-of-stream, or the query was cancelled.
	ReadFinished
	// ReadFileDescriptor means the asynchronous read is still in progress;
	// the caller should wait for readiness on the returned descriptor.
	ReadFileDescriptor
)

// ReadResult is the outcome of one Read or ReadAsync step.
type ReadResult struct {
	typ   ReadResultType
	block *col.Block
	fd    int
}

func dataResult(b *col.Block) ReadResult {
	return ReadResult{typ: ReadData, block: b}
}

func tokenResult() ReadResult {
	return ReadResult{typ: ReadParallelReplicasToken}
}

func nothingResult() ReadResult {
	return ReadResult{typ: ReadNothing}
}

func finishedResult() ReadResult {
	return ReadResult{typ: ReadFinished, block: col.NewBlock()}
}

func fdResult(fd int) ReadResult {
	return ReadResult{typ: ReadFileDescriptor, fd: fd}
}

// Type returns the result's type.
func (r ReadResult) Type() ReadResultType {
	return r.typ
}

// Block returns the data block of a ReadData result, or the empty terminal
// block of a ReadFinished result.
func (r ReadResult) Block() *col.Block {
	return r.block
}

// FileDescriptor returns the descriptor to wait on for a
// ReadFileDescriptor result.
func (r ReadResult) FileDescriptor() int {
	return r.fd
}
