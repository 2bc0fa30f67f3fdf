// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/keeldb/keel/pkg/util/syncutil"
)

// readContext runs the blocking receive on its own goroutine, standing in
// for the cooperative fiber of the synchronous path. Readiness is signaled
// through a pipe whose read end is handed to the caller, so the executor
// can be driven from an external event loop:
//
//   - resume kicks the goroutine to produce the next packet (the first
//     resume performs the query send);
//   - while isInProgress, the caller waits for the descriptor to become
//     readable;
//   - once a packet is parked, isInProgress turns false and getPacket hands
//     it over;
//   - cancel steals the goroutine: the parked packet (if any) is dropped
//     and the context is permanently cancelled.
type readContext struct {
	e *RemoteQueryExecutor

	workerCtx  context.Context
	stopWorker context.CancelFunc
	workerDone chan struct{}

	pipeR, pipeW int

	resumeCh chan struct{}

	inProgress atomic.Bool
	querySent  atomic.Bool
	cancelled  atomic.Bool

	// suspendAfterSend makes the goroutine signal readiness right after the
	// query send instead of continuing into the first receive. Used by
	// SendQueryAsync.
	suspendAfterSend bool

	mu struct {
		syncutil.Mutex
		packet    Packet
		err       error
		hasPacket bool
	}

	closeOnce sync.Once
}

func newReadContext(e *RemoteQueryExecutor, suspendAfterSend bool) (*readContext, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, errors.Wrap(err, "creating read context pipe")
	}
	_ = unix.SetNonblock(fds[0], true)
	_ = unix.SetNonblock(fds[1], true)
	ctx, cancel := context.WithCancel(context.Background())
	rc := &readContext{
		e:                e,
		workerCtx:        ctx,
		stopWorker:       cancel,
		workerDone:       make(chan struct{}),
		pipeR:            fds[0],
		pipeW:            fds[1],
		resumeCh:         make(chan struct{}, 1),
		suspendAfterSend: suspendAfterSend,
	}
	rc.inProgress.Store(true)
	go rc.run()
	return rc, nil
}

func (rc *readContext) run() {
	defer close(rc.workerDone)

	// The first resume triggers the query send; connection establishment
	// itself happens here, off the caller's thread.
	if !rc.await() {
		return
	}
	err := rc.e.sendQueryInternal(rc.workerCtx, InitialQuery, func() {})
	rc.querySent.Store(true)
	if err != nil {
		rc.park(Packet{}, err)
		return
	}
	if rc.suspendAfterSend {
		rc.ready()
		if !rc.await() {
			return
		}
	}

	conns := rc.e.currentConnections()
	if conns == nil || (rc.e.settings.SkipUnavailableShards && conns.Size() == 0) {
		rc.ready()
		return
	}
	for {
		p, err := conns.ReceivePacket(rc.workerCtx)
		if rc.cancelled.Load() {
			return
		}
		rc.park(p, err)
		if err != nil {
			return
		}
		if !rc.await() {
			return
		}
	}
}

// await blocks until the next resume, returning false if the context was
// cancelled instead.
func (rc *readContext) await() bool {
	select {
	case <-rc.resumeCh:
		return true
	case <-rc.workerCtx.Done():
		return false
	}
}

// park stores a received packet and signals readiness. inProgress turns
// false before the packet becomes observable, so a caller that sees the
// parked packet never spins on the descriptor.
func (rc *readContext) park(p Packet, err error) {
	rc.mu.Lock()
	rc.mu.packet = p
	rc.mu.err = err
	rc.mu.hasPacket = true
	rc.inProgress.Store(false)
	rc.mu.Unlock()
	rc.notify()
}

// ready marks the context as not in progress and wakes the poller.
func (rc *readContext) ready() {
	rc.inProgress.Store(false)
	rc.notify()
}

func (rc *readContext) notify() {
	var b [1]byte
	// A full pipe already has a pending readiness byte; EAGAIN is fine.
	_, _ = unix.Write(rc.pipeW, b[:])
}

func (rc *readContext) drainPipe() {
	var buf [16]byte
	for {
		n, err := unix.Read(rc.pipeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// resume runs the goroutine until a packet is ready or I/O would block. It
// never blocks the calling thread: if no packet is parked, the caller is
// expected to wait on the file descriptor while isInProgress holds.
func (rc *readContext) resume() {
	if rc.cancelled.Load() {
		return
	}
	rc.mu.Lock()
	has := rc.mu.hasPacket
	rc.mu.Unlock()
	if has {
		return
	}
	if rc.inProgress.CompareAndSwap(false, true) || !rc.querySent.Load() {
		rc.drainPipe()
		select {
		case rc.resumeCh <- struct{}{}:
		default:
		}
	}
}

// getPacket hands over the parked packet once isInProgress is false.
func (rc *readContext) getPacket() (Packet, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	p, err := rc.mu.packet, rc.mu.err
	rc.mu.packet = Packet{}
	rc.mu.err = nil
	rc.mu.hasPacket = false
	return p, err
}

func (rc *readContext) isInProgress() bool {
	return rc.inProgress.Load()
}

// isQuerySent is monotonic: true once the executor reached the post-send
// state, even if the send failed.
func (rc *readContext) isQuerySent() bool {
	return rc.querySent.Load()
}

func (rc *readContext) isCancelled() bool {
	return rc.cancelled.Load()
}

func (rc *readContext) fileDescriptor() int {
	return rc.pipeR
}

// cancel steals the goroutine: any unconsumed packet is dropped and the
// context is permanently cancelled.
func (rc *readContext) cancel() {
	if !rc.cancelled.CompareAndSwap(false, true) {
		return
	}
	rc.stopWorker()
	rc.mu.Lock()
	rc.mu.packet = Packet{}
	rc.mu.err = nil
	rc.mu.hasPacket = false
	rc.mu.Unlock()
	rc.notify()
}

// close cancels the context, waits for the goroutine and releases the pipe.
func (rc *readContext) close() {
	rc.cancel()
	<-rc.workerDone
	rc.closeOnce.Do(func() {
		_ = unix.Close(rc.pipeR)
		_ = unix.Close(rc.pipeW)
	})
}
