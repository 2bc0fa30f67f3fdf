// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/keeldb/keel/pkg/base"
	"github.com/keeldb/keel/pkg/util/log"
	"github.com/keeldb/keel/pkg/util/syncutil"
	"github.com/keeldb/keel/pkg/util/timeutil"
)

type hedgedPacket struct {
	idx    int
	packet Packet
	err    error
}

// HedgedConnections is a connection set that transparently substitutes a
// slow replica. The query is sent to one replica; if it does not deliver a
// packet within the hedge delay, a backup replica is opened from the pool
// and the conversation so far is replayed to it. The first replica to
// deliver a packet wins and the others are torn down.
type HedgedConnections struct {
	pool        ConnectionPool
	settings    base.Settings
	timeouts    base.ConnectionTimeouts
	throttler   *Throttler
	replicaInfo *ReplicaInfo

	readersCtx    context.Context
	cancelReaders context.CancelFunc
	readers       errgroup.Group

	packets  chan hedgedPacket
	chosenCh chan struct{}

	mu struct {
		syncutil.Mutex
		conns     []Connection
		active    []bool
		numActive int
		// chosen is the index of the winning replica, -1 until one of them
		// delivers its first packet.
		chosen    int
		sentQuery bool
		closed    bool
		// replay records the outbound conversation so a late backup replica
		// can be brought up to the same point. Cancel is never replayed.
		replay []func(ctx context.Context, c Connection) error
	}
}

var _ Connections = (*HedgedConnections)(nil)

// NewHedgedConnections opens the primary replica from the pool.
func NewHedgedConnections(
	ctx context.Context,
	pool ConnectionPool,
	settings base.Settings,
	timeouts base.ConnectionTimeouts,
	throttler *Throttler,
	async AsyncCallback,
) (*HedgedConnections, error) {
	conn, err := pool.Get(ctx, timeouts, async)
	if err != nil {
		return nil, err
	}
	readersCtx, cancel := context.WithCancel(context.Background())
	h := &HedgedConnections{
		pool:          pool,
		settings:      settings,
		timeouts:      timeouts,
		throttler:     throttler,
		readersCtx:    readersCtx,
		cancelReaders: cancel,
		packets:       make(chan hedgedPacket, 4),
		chosenCh:      make(chan struct{}),
	}
	h.mu.conns = []Connection{conn}
	h.mu.active = []bool{false}
	h.mu.chosen = -1
	return h, nil
}

// SetReplicaInfo marks this connection set's slot within a parallel replica
// group. Must be called before SendQuery.
func (h *HedgedConnections) SetReplicaInfo(info *ReplicaInfo) {
	h.replicaInfo = info
}

// forEachActive runs an outbound send on every live replica and records it
// for replay on backups.
func (h *HedgedConnections) forEachActive(
	ctx context.Context, send func(ctx context.Context, c Connection) error,
) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.forEachActiveLocked(ctx, send)
}

func (h *HedgedConnections) forEachActiveLocked(
	ctx context.Context, send func(ctx context.Context, c Connection) error,
) error {
	for i, c := range h.mu.conns {
		if h.mu.sentQuery && !h.mu.active[i] {
			continue
		}
		if err := send(ctx, c); err != nil {
			return err
		}
	}
	h.mu.replay = append(h.mu.replay, send)
	return nil
}

// SendIgnoredPartUUIDs implements Connections.
func (h *HedgedConnections) SendIgnoredPartUUIDs(ctx context.Context, uuids []uuid.UUID) error {
	return h.forEachActive(ctx, func(ctx context.Context, c Connection) error {
		return c.SendIgnoredPartUUIDs(ctx, uuids)
	})
}

// SendQuery implements Connections. It also arms the hedge timer: a backup
// replica is opened if no packet arrives within the hedge delay.
func (h *HedgedConnections) SendQuery(
	ctx context.Context,
	timeouts base.ConnectionTimeouts,
	query string,
	queryID string,
	stage Stage,
	info *ClientInfo,
	withPendingData bool,
) error {
	h.mu.Lock()
	if h.mu.sentQuery {
		h.mu.Unlock()
		return errors.AssertionFailedf("query already sent")
	}
	modified := *info
	if h.replicaInfo != nil {
		modified.CollaborateWithInitiator = true
		modified.AllReplicasCount = h.replicaInfo.AllReplicasCount
		modified.NumberOfCurrentReplica = h.replicaInfo.NumberOfCurrentReplica
	}
	err := h.forEachActiveLocked(ctx, func(ctx context.Context, c Connection) error {
		return c.SendQuery(ctx, timeouts, query, queryID, stage, &modified, withPendingData)
	})
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.mu.sentQuery = true
	for i := range h.mu.conns {
		h.mu.active[i] = true
	}
	h.mu.numActive = len(h.mu.conns)
	conns := append([]Connection(nil), h.mu.conns...)
	h.mu.Unlock()

	for i, c := range conns {
		i, c := i, c
		h.readers.Go(func() error {
			h.readLoop(i, c)
			return nil
		})
	}
	h.readers.Go(func() error {
		h.hedgeTimer()
		return nil
	})
	return nil
}

func (h *HedgedConnections) hedgeTimer() {
	var t timeutil.Timer
	defer t.Stop()
	t.Reset(h.settings.HedgedConnectionTimeout.Duration())
	select {
	case <-t.C:
		t.Read = true
		h.promoteBackup()
	case <-h.chosenCh:
	case <-h.readersCtx.Done():
	}
}

// promoteBackup opens a backup replica and replays the conversation to it.
// Failures are logged and otherwise ignored: the primary replica is still
// in flight.
func (h *HedgedConnections) promoteBackup() {
	ctx := h.readersCtx
	h.mu.Lock()
	if h.mu.chosen >= 0 || h.mu.closed {
		h.mu.Unlock()
		return
	}
	replay := append([]func(context.Context, Connection) error(nil), h.mu.replay...)
	h.mu.Unlock()

	c, err := h.pool.Get(ctx, h.timeouts, nil)
	if err != nil {
		log.Warningf(ctx, "hedged request: no backup replica available: %v", err)
		return
	}
	for _, step := range replay {
		if err := step(ctx, c); err != nil {
			log.Warningf(ctx, "hedged request: replaying to backup replica %s: %v", c.Addr(), err)
			_ = c.Disconnect()
			return
		}
	}

	h.mu.Lock()
	if h.mu.chosen >= 0 || h.mu.closed {
		h.mu.Unlock()
		_ = c.Disconnect()
		return
	}
	idx := len(h.mu.conns)
	h.mu.conns = append(h.mu.conns, c)
	h.mu.active = append(h.mu.active, true)
	h.mu.numActive++
	// Spawn the reader while holding mu so that Disconnect, which takes mu
	// before waiting for the readers, cannot miss it.
	h.readers.Go(func() error {
		h.readLoop(idx, c)
		return nil
	})
	h.mu.Unlock()

	log.VEventf(ctx, 1, "hedged request: opened backup replica %s", c.Addr())
}

func (h *HedgedConnections) readLoop(idx int, c Connection) {
	for {
		p, err := c.ReceivePacket(h.readersCtx)
		if err != nil {
			if h.readersCtx.Err() != nil {
				return
			}
			h.markInactive(idx)
			h.deliver(hedgedPacket{idx: idx, err: err})
			return
		}
		if p.Type == PacketEndOfStream {
			// The replica goes inactive when ReceivePacket hands this packet
			// over, so the receiver never sees it inactive with the packet
			// still in flight.
			h.deliver(hedgedPacket{idx: idx, packet: p})
			return
		}
		h.deliver(hedgedPacket{idx: idx, packet: p})
	}
}

func (h *HedgedConnections) deliver(hp hedgedPacket) {
	select {
	case h.packets <- hp:
	case <-h.readersCtx.Done():
	}
}

func (h *HedgedConnections) markInactive(idx int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mu.active[idx] {
		h.mu.active[idx] = false
		h.mu.numActive--
	}
}

// choose fixes the winning replica and tears the losers down.
func (h *HedgedConnections) choose(idx int) {
	h.mu.Lock()
	if h.mu.chosen >= 0 {
		h.mu.Unlock()
		return
	}
	h.mu.chosen = idx
	close(h.chosenCh)
	var losers []Connection
	for i, c := range h.mu.conns {
		if i == idx {
			continue
		}
		if h.mu.active[i] {
			h.mu.active[i] = false
			h.mu.numActive--
		}
		losers = append(losers, c)
	}
	h.mu.Unlock()
	for _, c := range losers {
		_ = c.Disconnect()
	}
}

// ReceivePacket implements Connections. The first replica to deliver a
// packet becomes the only one listened to.
func (h *HedgedConnections) ReceivePacket(ctx context.Context) (Packet, error) {
	for {
		if !h.HasActiveConnections() {
			select {
			case hp := <-h.packets:
				if h.accepted(hp.idx) {
					return hp.packet, hp.err
				}
				continue
			default:
				return Packet{}, errors.AssertionFailedf("no available replica to receive packets from")
			}
		}
		select {
		case hp := <-h.packets:
			if hp.err != nil {
				if h.failed(hp.idx) {
					return Packet{}, hp.err
				}
				continue
			}
			h.choose(hp.idx)
			if h.accepted(hp.idx) {
				if hp.packet.Type == PacketEndOfStream {
					h.markInactive(hp.idx)
				}
				return hp.packet, hp.err
			}
		case <-ctx.Done():
			return Packet{}, ctx.Err()
		case <-h.readersCtx.Done():
			return Packet{}, errors.New("connections are disconnected")
		}
	}
}

// accepted reports whether packets from the given replica are surfaced.
func (h *HedgedConnections) accepted(idx int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mu.chosen == -1 || h.mu.chosen == idx
}

// failed reports whether a replica error is terminal: it is when the failed
// replica was the chosen one, or when no other replica remains.
func (h *HedgedConnections) failed(idx int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mu.chosen == idx {
		return true
	}
	return h.mu.chosen == -1 && h.mu.numActive == 0
}

// Drain implements Connections.
func (h *HedgedConnections) Drain(ctx context.Context) (Packet, error) {
	res := Packet{Type: PacketEndOfStream}
	for h.HasActiveConnections() {
		p, err := h.ReceivePacket(ctx)
		if err != nil {
			return Packet{}, err
		}
		switch p.Type {
		case PacketData, PacketProgress, PacketProfileInfo, PacketTotals,
			PacketExtremes, PacketLog, PacketProfileEvents, PacketPartUUIDs,
			PacketEndOfStream:
			// Discarded.
		case PacketException:
			res = p
		default:
			return p, nil
		}
	}
	return res, nil
}

// SendScalarsData implements Connections.
func (h *HedgedConnections) SendScalarsData(ctx context.Context, scalars Scalars) error {
	names := make([]string, 0, len(scalars))
	for name := range scalars {
		names = append(names, name)
	}
	sort.Strings(names)
	throttler := h.throttler
	return h.forEachActive(ctx, func(ctx context.Context, c Connection) error {
		for _, name := range names {
			b := scalars[name]
			if err := throttler.Throttle(ctx, blockByteSize(b)); err != nil {
				return err
			}
			if err := c.SendData(ctx, b, name); err != nil {
				return err
			}
		}
		return nil
	})
}

// SendExternalTablesData implements Connections. A hedged set is one
// logical connection, so exactly one table set is expected; backups replay
// it through fresh sources.
func (h *HedgedConnections) SendExternalTablesData(ctx context.Context, data []ExternalTablesData) error {
	if len(data) != 1 {
		return errors.AssertionFailedf(
			"data size %d does not equal connections size 1", len(data))
	}
	tables := data[0]
	throttler := h.throttler
	return h.forEachActive(ctx, func(ctx context.Context, c Connection) error {
		return sendExternalTables(ctx, c, tables, throttler)
	})
}

// SendReadTaskResponse implements Connections.
func (h *HedgedConnections) SendReadTaskResponse(ctx context.Context, response string) error {
	return h.forEachActive(ctx, func(ctx context.Context, c Connection) error {
		return c.SendReadTaskResponse(ctx, response)
	})
}

// SendMergeTreeReadTaskResponse implements Connections.
func (h *HedgedConnections) SendMergeTreeReadTaskResponse(
	ctx context.Context, response ParallelReadResponse,
) error {
	return h.forEachActive(ctx, func(ctx context.Context, c Connection) error {
		return c.SendMergeTreeReadTaskResponse(ctx, response)
	})
}

// SendCancel implements Connections. Cancels are not replayed to backups.
func (h *HedgedConnections) SendCancel(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.mu.sentQuery {
		return errors.AssertionFailedf("cannot cancel. either no query sent or already cancelled")
	}
	for i, c := range h.mu.conns {
		if !h.mu.active[i] {
			continue
		}
		if err := c.SendCancel(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect implements Connections.
func (h *HedgedConnections) Disconnect() error {
	h.cancelReaders()
	h.mu.Lock()
	h.mu.closed = true
	var err error
	for i, c := range h.mu.conns {
		err = errors.CombineErrors(err, c.Disconnect())
		h.mu.active[i] = false
	}
	h.mu.numActive = 0
	h.mu.Unlock()
	_ = h.readers.Wait()
	return err
}

// HasActiveConnections implements Connections.
func (h *HedgedConnections) HasActiveConnections() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mu.chosen >= 0 {
		return h.mu.active[h.mu.chosen]
	}
	return h.mu.numActive > 0
}

// Size implements Connections. A hedged set is one logical connection
// regardless of how many replicas are currently racing.
func (h *HedgedConnections) Size() int {
	return 1
}

// DumpAddresses implements Connections.
func (h *HedgedConnections) DumpAddresses() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	addrs := make([]string, len(h.mu.conns))
	for i, c := range h.mu.conns {
		addrs[i] = c.Addr()
	}
	return strings.Join(addrs, "; ")
}
