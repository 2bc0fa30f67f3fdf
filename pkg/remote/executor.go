// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/google/uuid"

	"github.com/keeldb/keel/pkg/base"
	"github.com/keeldb/keel/pkg/col"
	"github.com/keeldb/keel/pkg/util/log"
	"github.com/keeldb/keel/pkg/util/syncutil"
)

// ExecutorConfig describes one remote query. The descriptor fields are
// immutable for the executor's lifetime.
type ExecutorConfig struct {
	// Query is the query text.
	Query string
	// QueryID uniquely identifies the query; generated if empty.
	QueryID string
	// Header is the expected result schema. Every data block surfaced to
	// the caller is reshaped to it. An empty header disables reshaping.
	Header *col.Block
	// Settings are the driver settings; zero value gets defaults.
	Settings base.Settings
	// Stage is the processing stage requested from the servers.
	Stage Stage
	// ClientInfo identifies the party running the query.
	ClientInfo ClientInfo
	// Scalars are scalar subquery results pushed after the query.
	Scalars Scalars
	// ExternalTables are in-memory temporary tables pushed after the query.
	ExternalTables Tables
	// Extension carries the optional collaborators.
	Extension *Extension
	// PartUUIDRegistry deduplicates parts query-wide; a private registry is
	// created if nil.
	PartUUIDRegistry PartUUIDRegistry
	// Throttler bounds outbound data bandwidth; nil means unlimited.
	Throttler *Throttler
	// Metrics counts coordination traffic; created unregistered if nil.
	Metrics *Metrics
	// LogQueue receives server log blocks; pushes are best-effort.
	LogQueue *TextLogQueue
	// ProfileEventsQueue receives server profile-events blocks; a failed
	// push fails the query.
	ProfileEventsQueue *ProfileEventsQueue
	// ProgressCallback is invoked on Progress packets.
	ProgressCallback func(Progress)
	// ProfileInfoCallback is invoked on ProfileInfo packets.
	ProfileInfoCallback func(ProfileInfo)
}

// RemoteQueryExecutor ships one query to a set of replicas and streams the
// result back. It is driven by a single owning thread; Cancel and Finish
// may additionally be called from one concurrent canceling thread.
type RemoteQueryExecutor struct {
	cfg      ExecutorConfig
	settings base.Settings
	queryID  string

	taskIterator TaskIterator
	coordinator  ParallelReplicasCoordinator
	registry     PartUUIDRegistry
	metrics      *Metrics

	createConnections ConnectionsFactory
	connections       Connections

	// cancelMu guards the whole send window and the cancel transition, so
	// that a Cancel packet can never interleave the Query/Data send
	// sequence.
	cancelMu     syncutil.Mutex
	wasCancelled atomic.Bool

	duplicatedPartUUIDsMu syncutil.Mutex
	duplicatedPartUUIDs   []uuid.UUID

	externalTablesMu   syncutil.Mutex
	externalTablesData []ExternalTablesData

	established      atomic.Bool
	sentQuery        atomic.Bool
	finished         atomic.Bool
	gotException     atomic.Bool
	gotUnknownPacket atomic.Bool

	// Owner-thread state for the duplicate-uuid retry.
	gotDuplicatedPartUUIDs bool
	resentQuery            bool
	recreateReadContext    bool

	readCtx *readContext

	totals   *col.Block
	extremes *col.Block
}

// New creates an executor over an arbitrary connection set factory.
func New(cfg ExecutorConfig, factory ConnectionsFactory) *RemoteQueryExecutor {
	if cfg.QueryID == "" {
		cfg.QueryID = uuid.NewString()
	}
	settings := cfg.Settings
	if settings == (base.Settings{}) {
		settings = base.DefaultSettings()
	}
	registry := cfg.PartUUIDRegistry
	if registry == nil {
		registry = NewQueryPartUUIDs()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = MakeMetrics()
	}
	e := &RemoteQueryExecutor{
		cfg:               cfg,
		settings:          settings,
		queryID:           cfg.QueryID,
		registry:          registry,
		metrics:           metrics,
		createConnections: factory,
	}
	if cfg.Extension != nil {
		e.taskIterator = cfg.Extension.TaskIterator
		e.coordinator = cfg.Extension.Coordinator
	}
	return e
}

// NewForConnection creates an executor over a single established
// connection.
func NewForConnection(conn Connection, cfg ExecutorConfig) *RemoteQueryExecutor {
	return NewForConnections([]Connection{conn}, cfg)
}

// NewForConnections creates an executor over a fixed set of established
// connections.
func NewForConnections(conns []Connection, cfg ExecutorConfig) *RemoteQueryExecutor {
	var e *RemoteQueryExecutor
	e = New(cfg, func(context.Context, AsyncCallback) (Connections, error) {
		m := NewMultiplexedConnections(conns, e.settings, cfg.Throttler)
		if cfg.Extension != nil && cfg.Extension.ReplicaInfo != nil {
			m.SetReplicaInfo(cfg.Extension.ReplicaInfo)
		}
		return m, nil
	})
	return e
}

// NewForPool creates an executor that draws replicas from a pool at send
// time. Hedged connections are used when the settings ask for them.
func NewForPool(pool ConnectionPool, maxReplicas int, cfg ExecutorConfig) *RemoteQueryExecutor {
	var e *RemoteQueryExecutor
	e = New(cfg, func(ctx context.Context, async AsyncCallback) (Connections, error) {
		timeouts := e.settings.Timeouts()
		if e.settings.UseHedgedRequests {
			h, err := NewHedgedConnections(ctx, pool, e.settings, timeouts, cfg.Throttler, async)
			if err != nil {
				return nil, err
			}
			if cfg.Extension != nil && cfg.Extension.ReplicaInfo != nil {
				h.SetReplicaInfo(cfg.Extension.ReplicaInfo)
			}
			return h, nil
		}
		conns, err := pool.GetMany(ctx, timeouts, maxReplicas, async)
		if err != nil {
			return nil, err
		}
		m := NewMultiplexedConnections(conns, e.settings, cfg.Throttler)
		if cfg.Extension != nil && cfg.Extension.ReplicaInfo != nil {
			m.SetReplicaInfo(cfg.Extension.ReplicaInfo)
		}
		return m, nil
	})
	return e
}

func (e *RemoteQueryExecutor) annotate(ctx context.Context) context.Context {
	return logtags.AddTag(ctx, "query", e.queryID)
}

// QueryID returns the query's unique id.
func (e *RemoteQueryExecutor) QueryID() string {
	return e.queryID
}

func (e *RemoteQueryExecutor) currentConnections() Connections {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	return e.connections
}

func (e *RemoteQueryExecutor) needToSkipUnavailableShard() bool {
	return e.settings.SkipUnavailableShards && e.connections != nil && e.connections.Size() == 0
}

// SendQuery transmits the query, preceded by previously-collected duplicate
// part uuids and followed by scalars and external tables. It is idempotent.
func (e *RemoteQueryExecutor) SendQuery(ctx context.Context, kind QueryKind) error {
	return e.sendQueryInternal(ctx, kind, nil)
}

func (e *RemoteQueryExecutor) sendQueryInternal(
	ctx context.Context, kind QueryKind, async AsyncCallback,
) error {
	if e.sentQuery.Load() {
		return nil
	}
	ctx = e.annotate(ctx)

	conns, err := e.createConnections(ctx, async)
	if err != nil {
		return err
	}
	e.cancelMu.Lock()
	e.connections = conns
	e.cancelMu.Unlock()

	if e.needToSkipUnavailableShard() {
		return nil
	}

	// The query could be cancelled while the connections were being
	// created. was_cancelled is checked before taking cancelMu: the cancel
	// path sets the flag first and may be holding the mutex.
	if e.wasCancelled.Load() {
		return nil
	}

	// The query cannot be cancelled in the middle of the send window: after
	// a Cancel packet no Data packet may follow, or the remote side fails
	// with "unexpected packet Data received from client". Holding cancelMu
	// across the whole window defers any cancel past the last Data packet.
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()

	e.established.Store(true)
	e.wasCancelled.Store(false)

	timeouts := e.settings.Timeouts()
	info := e.cfg.ClientInfo
	info.QueryKind = kind
	info.InitialQueryID = e.queryID

	e.duplicatedPartUUIDsMu.Lock()
	ignored := append([]uuid.UUID(nil), e.duplicatedPartUUIDs...)
	e.duplicatedPartUUIDsMu.Unlock()
	if len(ignored) > 0 {
		if err := e.connections.SendIgnoredPartUUIDs(ctx, ignored); err != nil {
			e.established.Store(false)
			return err
		}
	}

	if err := e.connections.SendQuery(
		ctx, timeouts, e.cfg.Query, e.queryID, e.cfg.Stage, &info, true,
	); err != nil {
		e.established.Store(false)
		return err
	}

	e.established.Store(false)
	e.sentQuery.Store(true)

	if e.settings.EnableScalarSubqueryOptimization {
		if err := e.sendScalars(ctx); err != nil {
			return err
		}
	}
	return e.sendExternalTables(ctx)
}

// SendQueryAsync starts or continues sending the query without blocking.
// It returns -1 once the query (including scalars and external tables) has
// reached the wire, or a file descriptor to wait on before calling again.
func (e *RemoteQueryExecutor) SendQueryAsync() (int, error) {
	if e.readCtx == nil {
		e.cancelMu.Lock()
		rc, err := newReadContext(e, true /* suspendAfterSend */)
		if err != nil {
			e.cancelMu.Unlock()
			return -1, err
		}
		e.readCtx = rc
		e.cancelMu.Unlock()
	}

	// Note that sentQuery cannot be used here: the goroutine may still be
	// sending scalars or external tables.
	if e.readCtx.isQuerySent() {
		return -1, nil
	}

	e.readCtx.resume()

	if !e.readCtx.isQuerySent() {
		return e.readCtx.fileDescriptor(), nil
	}
	return -1, nil
}

// ReadBlock reads until a data block is produced. A terminal empty block
// means the stream is over.
func (e *RemoteQueryExecutor) ReadBlock(ctx context.Context) (*col.Block, error) {
	for {
		res, err := e.Read(ctx)
		if err != nil {
			return nil, err
		}
		switch res.Type() {
		case ReadData, ReadFinished:
			return res.Block(), nil
		}
	}
}

// Read drives the executor one step: the query is sent on first use, then
// packets are received and dispatched until one of them produces a result
// for the caller.
func (e *RemoteQueryExecutor) Read(ctx context.Context) (ReadResult, error) {
	ctx = e.annotate(ctx)

	if !e.sentQuery.Load() {
		if err := e.sendQueryInternal(ctx, InitialQuery, nil); err != nil {
			return ReadResult{}, err
		}
		if e.settings.SkipUnavailableShards && e.connections.Size() == 0 {
			return finishedResult(), nil
		}
	}

	for {
		e.cancelMu.Lock()
		if e.wasCancelled.Load() {
			e.cancelMu.Unlock()
			return finishedResult(), nil
		}
		p, err := e.connections.ReceivePacket(ctx)
		if err != nil {
			e.cancelMu.Unlock()
			return ReadResult{}, err
		}
		res, err := e.processPacket(ctx, p)
		e.cancelMu.Unlock()
		if err != nil {
			return ReadResult{}, err
		}

		switch res.Type() {
		case ReadData, ReadParallelReplicasToken, ReadFinished:
			return res, nil
		}
		if e.gotDuplicatedPartUUIDs {
			return e.restartQueryWithoutDuplicatedUUIDs(ctx)
		}
	}
}

// ReadAsync is the non-blocking variant of Read. A ReadFileDescriptor
// result means no packet is ready yet; the caller waits for readiness on
// the descriptor and calls again.
func (e *RemoteQueryExecutor) ReadAsync(ctx context.Context) (ReadResult, error) {
	ctx = e.annotate(ctx)

	if e.readCtx == nil || (e.resentQuery && e.recreateReadContext) {
		old := e.readCtx
		e.cancelMu.Lock()
		rc, err := newReadContext(e, false /* suspendAfterSend */)
		if err != nil {
			e.cancelMu.Unlock()
			return ReadResult{}, err
		}
		e.readCtx = rc
		e.recreateReadContext = false
		e.cancelMu.Unlock()
		if old != nil {
			old.close()
		}
	}

	for {
		e.readCtx.resume()

		if e.needToSkipUnavailableShard() {
			return finishedResult(), nil
		}
		if e.readCtx.isCancelled() {
			return finishedResult(), nil
		}
		if e.readCtx.isInProgress() {
			return fdResult(e.readCtx.fileDescriptor()), nil
		}
		// Recheck the cancel flag: the canceling thread may have stolen the
		// goroutine between resume and here and dropped the packet.
		if e.wasCancelled.Load() {
			return finishedResult(), nil
		}

		p, err := e.readCtx.getPacket()
		if err != nil {
			return ReadResult{}, err
		}
		res, err := e.processPacket(ctx, p)
		if err != nil {
			return ReadResult{}, err
		}

		switch res.Type() {
		case ReadData, ReadParallelReplicasToken, ReadFinished:
			return res, nil
		}
		if e.gotDuplicatedPartUUIDs {
			return e.restartQueryWithoutDuplicatedUUIDs(ctx)
		}
	}
}

// restartQueryWithoutDuplicatedUUIDs tears down the current conversation
// and re-sends the query once, with the collided uuids marked as ignored.
func (e *RemoteQueryExecutor) restartQueryWithoutDuplicatedUUIDs(
	ctx context.Context,
) (ReadResult, error) {
	// Cancel the previous conversation and disconnect before the retry.
	if err := e.Cancel(ctx); err != nil {
		return ReadResult{}, err
	}
	_ = e.connections.Disconnect()

	if e.resentQuery {
		return ReadResult{}, errDuplicatedPartUUIDs
	}

	log.VEventf(ctx, 1, "found duplicate uuids, will retry query without those parts")

	e.resentQuery = true
	e.recreateReadContext = true
	e.sentQuery.Store(false)
	e.gotDuplicatedPartUUIDs = false
	// The retry is a fresh conversation; the cancel that tore the old one
	// down must not outlive it.
	e.wasCancelled.Store(false)
	// The consecutive read will implicitly re-send the query.
	if e.readCtx == nil {
		return e.Read(ctx)
	}
	return e.ReadAsync(ctx)
}

// processPacket classifies one inbound packet and advances the state
// machine. Only the owning thread calls it.
func (e *RemoteQueryExecutor) processPacket(ctx context.Context, p Packet) (ReadResult, error) {
	switch p.Type {
	case PacketMergeTreeReadTaskRequest:
		if err := e.processParallelReadRequest(ctx, p.Request); err != nil {
			return ReadResult{}, err
		}
		return tokenResult(), nil

	case PacketMergeTreeAllRangesAnnouncement:
		if err := e.processInitialAllRangesAnnouncement(p.Announcement); err != nil {
			return ReadResult{}, err
		}
		return tokenResult(), nil

	case PacketReadTaskRequest:
		if err := e.processReadTaskRequest(ctx); err != nil {
			return ReadResult{}, err
		}

	case PacketPartUUIDs:
		if !e.setPartUUIDs(p.PartUUIDs) {
			e.gotDuplicatedPartUUIDs = true
		}

	case PacketData:
		// Blocks with no rows carry only a schema; other packets follow
		// before EndOfStream, so they are suppressed.
		if p.Block != nil && p.Block.Rows() > 0 {
			b, err := adaptBlockStructure(p.Block, e.cfg.Header)
			if err != nil {
				return ReadResult{}, err
			}
			return dataResult(b), nil
		}

	case PacketException:
		e.gotException.Store(true)
		return ReadResult{}, p.Exception

	case PacketEndOfStream:
		if !e.connections.HasActiveConnections() {
			e.finished.Store(true)
			return finishedResult(), nil
		}

	case PacketProgress:
		if e.cfg.ProgressCallback != nil {
			e.cfg.ProgressCallback(p.Progress)
		}

	case PacketProfileInfo:
		if e.cfg.ProfileInfoCallback != nil {
			e.cfg.ProfileInfoCallback(p.ProfileInfo)
		}

	case PacketTotals:
		if p.Block != nil {
			b, err := adaptBlockStructure(p.Block, e.cfg.Header)
			if err != nil {
				return ReadResult{}, err
			}
			e.totals = b
		}

	case PacketExtremes:
		if p.Block != nil {
			b, err := adaptBlockStructure(p.Block, e.cfg.Header)
			if err != nil {
				return ReadResult{}, err
			}
			e.extremes = b
		}

	case PacketLog:
		// Server logs are forwarded best-effort.
		if e.cfg.LogQueue != nil {
			_ = e.cfg.LogQueue.Push(p.Block)
		}

	case PacketProfileEvents:
		if e.cfg.ProfileEventsQueue != nil {
			if !e.cfg.ProfileEventsQueue.Push(p.Block) {
				return ReadResult{}, errProfileQueuePush
			}
		}

	default:
		e.gotUnknownPacket.Store(true)
		return ReadResult{}, newUnknownPacketError(p.Type, e.connections.DumpAddresses())
	}

	return nothingResult(), nil
}

// setPartUUIDs registers uuids with the query-wide registry, reporting
// false on a collision. The colliding uuids are remembered for the retry.
func (e *RemoteQueryExecutor) setPartUUIDs(uuids []uuid.UUID) bool {
	duplicates := e.registry.Add(uuids)
	if len(duplicates) == 0 {
		return true
	}
	e.duplicatedPartUUIDsMu.Lock()
	defer e.duplicatedPartUUIDsMu.Unlock()
	e.duplicatedPartUUIDs = append(e.duplicatedPartUUIDs, duplicates...)
	return false
}

func (e *RemoteQueryExecutor) processReadTaskRequest(ctx context.Context) error {
	if e.taskIterator == nil {
		return errors.AssertionFailedf("distributed task iterator is not initialized")
	}
	e.metrics.ReadTaskRequestsReceived.Inc()
	response, err := e.taskIterator()
	if err != nil {
		return err
	}
	return e.connections.SendReadTaskResponse(ctx, response)
}

func (e *RemoteQueryExecutor) processParallelReadRequest(
	ctx context.Context, req *ParallelReadRequest,
) error {
	if e.coordinator == nil {
		return errors.AssertionFailedf("coordinator for parallel reading from replicas is not initialized")
	}
	e.metrics.MergeTreeReadTaskRequestsReceived.Inc()
	response, err := e.coordinator.HandleRequest(*req)
	if err != nil {
		return err
	}
	return e.connections.SendMergeTreeReadTaskResponse(ctx, response)
}

func (e *RemoteQueryExecutor) processInitialAllRangesAnnouncement(
	ann *InitialAllRangesAnnouncement,
) error {
	if e.coordinator == nil {
		return errors.AssertionFailedf("coordinator for parallel reading from replicas is not initialized")
	}
	return e.coordinator.HandleInitialAllRangesAnnouncement(*ann)
}

// Finish drains the conversation gracefully: the query is cancelled if data
// remains, and the connections are read until end-of-stream so no replica
// is left out of sync.
func (e *RemoteQueryExecutor) Finish(ctx context.Context) error {
	ctx = e.annotate(ctx)

	// Nothing to do when nothing was started, everything was read, or a
	// replica already faulted.
	if !e.IsQueryPending() || e.HasThrownException() {
		return nil
	}

	// Not all data may have been read yet, but it is no longer needed, for
	// example because of a LIMIT.
	if err := e.tryCancel(ctx, "cancelling query because enough data has been read"); err != nil {
		return err
	}

	if e.currentConnections() == nil || !e.sentQuery.Load() {
		return nil
	}

	p, err := e.connections.Drain(ctx)
	if err != nil {
		return err
	}
	switch p.Type {
	case PacketEndOfStream:
		e.finished.Store(true)

	case PacketLog:
		if e.cfg.LogQueue != nil {
			_ = e.cfg.LogQueue.Push(p.Block)
		}

	case PacketProfileEvents:
		if e.cfg.ProfileEventsQueue != nil {
			if !e.cfg.ProfileEventsQueue.Push(p.Block) {
				return errProfileQueuePush
			}
		}

	case PacketException:
		e.gotException.Store(true)
		return p.Exception

	default:
		e.gotUnknownPacket.Store(true)
		return newUnknownPacketError(p.Type, e.connections.DumpAddresses())
	}
	return nil
}

// Cancel aborts the query. It is idempotent and may be called from a
// thread other than the owning one. A cancelled executor still needs
// Finish or Close to drain or disconnect the wire.
func (e *RemoteQueryExecutor) Cancel(ctx context.Context) error {
	ctx = e.annotate(ctx)

	e.externalTablesMu.Lock()
	// Stop sending external data.
	for _, tables := range e.externalTablesData {
		for _, t := range tables {
			t.MarkCancelled()
		}
	}
	e.externalTablesMu.Unlock()

	if !e.IsQueryPending() || e.HasThrownException() {
		return nil
	}
	return e.tryCancel(ctx, "cancelling query")
}

func (e *RemoteQueryExecutor) tryCancel(ctx context.Context, reason string) error {
	// wasCancelled is also checked without the mutex in the read paths, in
	// case the packet had been read by the receive goroutine.
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()

	if e.wasCancelled.Load() {
		return nil
	}
	e.wasCancelled.Store(true)

	if e.readCtx != nil {
		e.readCtx.cancel()
	}

	// The query could be cancelled during connection creation; there may be
	// no connections yet.
	if e.connections != nil && e.sentQuery.Load() {
		if err := e.connections.SendCancel(ctx); err != nil {
			return err
		}
		log.VEventf(ctx, 1, "(%s) %s", e.connections.DumpAddresses(), reason)
	}
	return nil
}

// Close is the destructor analog. If the executor is interrupted in the
// middle of the conversation with the replicas, the connections are
// interrupted hard, so that they are not left hanging out of sync. Close
// never fails.
func (e *RemoteQueryExecutor) Close() {
	if e.established.Load() || (e.IsQueryPending() && e.currentConnections() != nil) {
		if conns := e.currentConnections(); conns != nil {
			_ = conns.Disconnect()
		}
	}
	if e.readCtx != nil {
		e.readCtx.close()
	}
}

func (e *RemoteQueryExecutor) sendScalars(ctx context.Context) error {
	return e.connections.SendScalarsData(ctx, e.cfg.Scalars)
}

func (e *RemoteQueryExecutor) sendExternalTables(ctx context.Context) error {
	count := e.connections.Size()

	e.externalTablesMu.Lock()
	e.externalTablesData = e.externalTablesData[:0]

	names := make([]string, 0, len(e.cfg.ExternalTables))
	for name := range e.cfg.ExternalTables {
		names = append(names, name)
	}
	sort.Strings(names)

	maxExecutionTime := e.settings.MaxExecutionTime.Duration()
	overflowMode := e.settings.TimeoutOverflowMode
	for i := 0; i < count; i++ {
		var res ExternalTablesData
		for _, name := range names {
			blocks := e.cfg.ExternalTables[name]
			res = append(res, &ExternalTableData{
				Name: name,
				NewSource: func() BlockSource {
					var src BlockSource = newBlocksSource(blocks)
					if maxExecutionTime > 0 {
						src = newLimitingSource(src, maxExecutionTime, overflowMode)
					}
					return src
				},
			})
		}
		e.externalTablesData = append(e.externalTablesData, res)
	}
	data := e.externalTablesData
	e.externalTablesMu.Unlock()

	return e.connections.SendExternalTablesData(ctx, data)
}

// SetProgressCallback installs the progress callback. Must be called
// before the first read.
func (e *RemoteQueryExecutor) SetProgressCallback(f func(Progress)) {
	e.cfg.ProgressCallback = f
}

// SetProfileInfoCallback installs the profile-info callback. Must be
// called before the first read.
func (e *RemoteQueryExecutor) SetProfileInfoCallback(f func(ProfileInfo)) {
	e.cfg.ProfileInfoCallback = f
}

// Totals returns the totals block delivered at stream completion, if any.
func (e *RemoteQueryExecutor) Totals() *col.Block {
	return e.totals
}

// Extremes returns the extremes block delivered at stream completion, if
// any.
func (e *RemoteQueryExecutor) Extremes() *col.Block {
	return e.extremes
}

// IsQueryPending is true while the conversation is open: the query was sent
// and end-of-stream has not been received from every replica.
func (e *RemoteQueryExecutor) IsQueryPending() bool {
	return e.sentQuery.Load() && !e.finished.Load()
}

// HasThrownException is true once a replica faulted the query.
func (e *RemoteQueryExecutor) HasThrownException() bool {
	return e.gotException.Load() || e.gotUnknownPacket.Load()
}

// IsFinished is true once every replica emitted end-of-stream.
func (e *RemoteQueryExecutor) IsFinished() bool {
	return e.finished.Load()
}

// WasCancelled is true once the query was cancelled locally.
func (e *RemoteQueryExecutor) WasCancelled() bool {
	return e.wasCancelled.Load()
}
