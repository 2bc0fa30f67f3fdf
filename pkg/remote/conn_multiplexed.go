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
	"github.com/keeldb/keel/pkg/util/syncutil"
)

type receivedPacket struct {
	idx    int
	packet Packet
	err    error
}

// MultiplexedConnections drives one or more replica connections as a single
// duplex stream. Sends go to every replica; packets are delivered in
// arrival order. A connection stops being active once it emits EndOfStream.
type MultiplexedConnections struct {
	settings    base.Settings
	throttler   *Throttler
	replicaInfo *ReplicaInfo

	// readersCtx stops the per-connection reader goroutines on Disconnect.
	readersCtx    context.Context
	cancelReaders context.CancelFunc
	readers       errgroup.Group

	packets chan receivedPacket

	mu struct {
		syncutil.Mutex
		conns     []Connection
		active    []bool
		numActive int
		sentQuery bool
	}
}

var _ Connections = (*MultiplexedConnections)(nil)

// NewMultiplexedConnections returns a connection set over the given
// replicas. The throttler, if any, bounds outbound data bandwidth.
func NewMultiplexedConnections(
	conns []Connection, settings base.Settings, throttler *Throttler,
) *MultiplexedConnections {
	ctx, cancel := context.WithCancel(context.Background())
	m := &MultiplexedConnections{
		settings:      settings,
		throttler:     throttler,
		readersCtx:    ctx,
		cancelReaders: cancel,
		packets:       make(chan receivedPacket, len(conns)+1),
	}
	m.mu.conns = conns
	m.mu.active = make([]bool, len(conns))
	return m
}

// SetReplicaInfo marks this connection set's slot within a parallel replica
// group. Must be called before SendQuery.
func (m *MultiplexedConnections) SetReplicaInfo(info *ReplicaInfo) {
	m.replicaInfo = info
}

// SendIgnoredPartUUIDs implements Connections.
func (m *MultiplexedConnections) SendIgnoredPartUUIDs(ctx context.Context, uuids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mu.sentQuery {
		return errors.AssertionFailedf("cannot send uuids after query is sent")
	}
	for _, c := range m.mu.conns {
		if err := c.SendIgnoredPartUUIDs(ctx, uuids); err != nil {
			return err
		}
	}
	return nil
}

// SendQuery implements Connections. It transmits the query to every replica
// and starts delivering their packets.
func (m *MultiplexedConnections) SendQuery(
	ctx context.Context,
	timeouts base.ConnectionTimeouts,
	query string,
	queryID string,
	stage Stage,
	info *ClientInfo,
	withPendingData bool,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mu.sentQuery {
		return errors.AssertionFailedf("query already sent")
	}
	modified := *info
	if m.replicaInfo != nil {
		modified.CollaborateWithInitiator = true
		modified.AllReplicasCount = m.replicaInfo.AllReplicasCount
		modified.NumberOfCurrentReplica = m.replicaInfo.NumberOfCurrentReplica
	}
	for _, c := range m.mu.conns {
		if err := c.SendQuery(ctx, timeouts, query, queryID, stage, &modified, withPendingData); err != nil {
			return err
		}
	}
	m.mu.sentQuery = true
	for i := range m.mu.conns {
		m.mu.active[i] = true
	}
	m.mu.numActive = len(m.mu.conns)
	for i, c := range m.mu.conns {
		i, c := i, c
		m.readers.Go(func() error {
			m.readLoop(i, c)
			return nil
		})
	}
	return nil
}

func (m *MultiplexedConnections) readLoop(idx int, c Connection) {
	for {
		p, err := c.ReceivePacket(m.readersCtx)
		if err != nil {
			if m.readersCtx.Err() != nil {
				// Disconnected; nobody is listening anymore.
				return
			}
			m.markInactive(idx)
			m.deliver(receivedPacket{err: err})
			return
		}
		if p.Type == PacketEndOfStream {
			// The connection goes inactive when ReceivePacket hands this
			// packet over, not here: the reader runs ahead of the receiver,
			// and answers to earlier packets must still reach the replica.
			m.deliver(receivedPacket{idx: idx, packet: p})
			return
		}
		m.deliver(receivedPacket{idx: idx, packet: p})
	}
}

func (m *MultiplexedConnections) deliver(rp receivedPacket) {
	select {
	case m.packets <- rp:
	case <-m.readersCtx.Done():
	}
}

func (m *MultiplexedConnections) markInactive(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mu.active[idx] {
		m.mu.active[idx] = false
		m.mu.numActive--
	}
}

// SendScalarsData implements Connections.
func (m *MultiplexedConnections) SendScalarsData(ctx context.Context, scalars Scalars) error {
	names := make([]string, 0, len(scalars))
	for name := range scalars {
		names = append(names, name)
	}
	sort.Strings(names)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.mu.conns {
		for _, name := range names {
			b := scalars[name]
			if err := m.throttler.Throttle(ctx, blockByteSize(b)); err != nil {
				return err
			}
			if err := c.SendData(ctx, b, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// SendExternalTablesData implements Connections. One ExternalTablesData is
// consumed per connection; the pending-data stream on each connection is
// terminated with an empty block.
func (m *MultiplexedConnections) SendExternalTablesData(ctx context.Context, data []ExternalTablesData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(data) != len(m.mu.conns) {
		return errors.AssertionFailedf(
			"data size %d does not equal connections size %d", len(data), len(m.mu.conns))
	}
	for i, c := range m.mu.conns {
		if err := sendExternalTables(ctx, c, data[i], m.throttler); err != nil {
			return err
		}
	}
	return nil
}

// sendExternalTables streams the queued tables on one connection and
// terminates its pending data.
func sendExternalTables(
	ctx context.Context, c Connection, tables ExternalTablesData, throttler *Throttler,
) error {
	for _, t := range tables {
		src := t.NewSource()
		for !t.IsCancelled() {
			b, err := src.Next(ctx)
			if err != nil {
				return err
			}
			if b == nil {
				break
			}
			if err := throttler.Throttle(ctx, blockByteSize(b)); err != nil {
				return err
			}
			if err := c.SendData(ctx, b, t.Name); err != nil {
				return err
			}
		}
	}
	return c.SendData(ctx, nil, "")
}

// SendReadTaskResponse implements Connections.
func (m *MultiplexedConnections) SendReadTaskResponse(ctx context.Context, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.mu.conns {
		if !m.mu.active[i] {
			continue
		}
		if err := c.SendReadTaskResponse(ctx, response); err != nil {
			return err
		}
	}
	return nil
}

// SendMergeTreeReadTaskResponse implements Connections.
func (m *MultiplexedConnections) SendMergeTreeReadTaskResponse(
	ctx context.Context, response ParallelReadResponse,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.mu.conns {
		if !m.mu.active[i] {
			continue
		}
		if err := c.SendMergeTreeReadTaskResponse(ctx, response); err != nil {
			return err
		}
	}
	return nil
}

// SendCancel implements Connections.
func (m *MultiplexedConnections) SendCancel(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mu.sentQuery {
		return errors.AssertionFailedf("cannot cancel. either no query sent or already cancelled")
	}
	for i, c := range m.mu.conns {
		if !m.mu.active[i] {
			continue
		}
		if err := c.SendCancel(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ReceivePacket implements Connections.
func (m *MultiplexedConnections) ReceivePacket(ctx context.Context) (Packet, error) {
	if !m.HasActiveConnections() {
		// Replicas may still have packets in flight between going inactive
		// and delivery; pick those up without blocking.
		select {
		case rp := <-m.packets:
			return rp.packet, rp.err
		default:
			return Packet{}, errors.AssertionFailedf("no available replica to receive packets from")
		}
	}
	select {
	case rp := <-m.packets:
		if rp.packet.Type == PacketEndOfStream {
			// Mark the replica inactive before handing EndOfStream over, so
			// that the receiver observing it sees an up-to-date active count.
			m.markInactive(rp.idx)
		}
		return rp.packet, rp.err
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-m.readersCtx.Done():
		return Packet{}, errors.New("connections are disconnected")
	}
}

// Drain implements Connections. Data and side-channel packets are
// discarded; an Exception, if seen, becomes the terminal packet.
func (m *MultiplexedConnections) Drain(ctx context.Context) (Packet, error) {
	res := Packet{Type: PacketEndOfStream}
	for m.HasActiveConnections() {
		p, err := m.ReceivePacket(ctx)
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
			// Surface it; the executor treats it as an unknown-packet fault.
			return p, nil
		}
	}
	return res, nil
}

// Disconnect implements Connections.
func (m *MultiplexedConnections) Disconnect() error {
	m.cancelReaders()
	m.mu.Lock()
	var err error
	for i, c := range m.mu.conns {
		err = errors.CombineErrors(err, c.Disconnect())
		m.mu.active[i] = false
	}
	m.mu.numActive = 0
	m.mu.Unlock()
	// Readers honor readersCtx, so this terminates promptly.
	_ = m.readers.Wait()
	return err
}

// HasActiveConnections implements Connections.
func (m *MultiplexedConnections) HasActiveConnections() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.numActive > 0
}

// Size implements Connections.
func (m *MultiplexedConnections) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mu.conns)
}

// DumpAddresses implements Connections.
func (m *MultiplexedConnections) DumpAddresses() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	addrs := make([]string, len(m.mu.conns))
	for i, c := range m.mu.conns {
		addrs[i] = c.Addr()
	}
	return strings.Join(addrs, "; ")
}
