// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/keeldb/keel/pkg/base"
	"github.com/keeldb/keel/pkg/col"
	"github.com/keeldb/keel/pkg/remote"
	"github.com/keeldb/keel/pkg/remote/remotetest"
	"github.com/keeldb/keel/pkg/util/leaktest"
)

var errTest = errors.New("boom")

func TestMultiplexedTwoReplicas(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	conn1 := remotetest.NewConn("replica-1", []remote.Packet{
		dataPacket(testDataBlock(1)),
		eosPacket(),
	})
	conn2 := remotetest.NewConn("replica-2", []remote.Packet{
		dataPacket(testDataBlock(2)),
		eosPacket(),
	})
	e := remote.NewForConnections([]remote.Connection{conn1, conn2}, remote.ExecutorConfig{
		Query:  "SELECT a, b FROM t",
		Header: testHeader(),
	})
	defer e.Close()

	// The stream finishes only after end-of-stream from both replicas.
	rows := 0
	dataResults := 0
	for {
		res, err := e.Read(ctx)
		require.NoError(t, err)
		if res.Type() == remote.ReadFinished {
			break
		}
		require.Equal(t, remote.ReadData, res.Type())
		dataResults++
		rows += res.Block().Rows()
	}
	require.Equal(t, 2, dataResults)
	require.Equal(t, 3, rows)
	require.True(t, e.IsFinished())

	// Both replicas got the query and the pending-data terminator.
	require.Equal(t, 1, conn1.CountSent(remotetest.FrameQuery))
	require.Equal(t, 1, conn2.CountSent(remotetest.FrameQuery))
	require.Equal(t, 1, conn1.CountSent(remotetest.FrameData))
	require.Equal(t, 1, conn2.CountSent(remotetest.FrameData))
}

func TestMultiplexedDrain(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	conn := remotetest.NewConn("replica-1", nil)
	settings := base.DefaultSettings()
	m := remote.NewMultiplexedConnections(
		[]remote.Connection{conn}, base.DefaultSettings(), nil)
	require.NoError(t, m.SendQuery(
		ctx, settings.Timeouts(), "SELECT 1", "q1",
		remote.StageComplete, &remote.ClientInfo{}, true))

	conn.Push(dataPacket(testDataBlock(1)))
	conn.Push(remote.Packet{Type: remote.PacketProgress})
	conn.Push(eosPacket())

	p, err := m.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, remote.PacketEndOfStream, p.Type)
	require.False(t, m.HasActiveConnections())
	require.NoError(t, m.Disconnect())
}

func TestMultiplexedDrainKeepsException(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	conn1 := remotetest.NewConn("replica-1", nil)
	conn2 := remotetest.NewConn("replica-2", nil)
	settings := base.DefaultSettings()
	m := remote.NewMultiplexedConnections(
		[]remote.Connection{conn1, conn2}, base.DefaultSettings(), nil)
	require.NoError(t, m.SendQuery(
		ctx, settings.Timeouts(), "SELECT 1", "q1",
		remote.StageComplete, &remote.ClientInfo{}, true))

	conn1.Push(remote.Packet{Type: remote.PacketException, Exception: errTest})
	conn1.Push(eosPacket())
	conn2.Push(eosPacket())

	p, err := m.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, remote.PacketException, p.Type)
	require.NoError(t, m.Disconnect())
}

func TestHedgedPromotesBackupReplica(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	// The primary replica never answers; the backup serves the query.
	slow := remotetest.NewConn("replica-slow", nil)
	fast := remotetest.NewConn("replica-fast", []remote.Packet{
		dataPacket(testDataBlock(2)),
		eosPacket(),
	})
	pool := remotetest.NewPool(slow, fast)

	settings := base.DefaultSettings()
	settings.UseHedgedRequests = true
	settings.HedgedConnectionTimeout = base.Duration(5 * time.Millisecond)

	e := remote.NewForPool(pool, 1, remote.ExecutorConfig{
		Query:    "SELECT a, b FROM t",
		Header:   testHeader(),
		Settings: settings,
	})
	defer e.Close()

	res, err := e.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, remote.ReadData, res.Type())
	require.Equal(t, 2, res.Block().Rows())

	res, err = e.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, remote.ReadFinished, res.Type())

	// The conversation was replayed to the backup before it answered.
	require.Equal(t, 1, fast.CountSent(remotetest.FrameQuery))
	// The loser is torn down once the winner delivers.
	require.True(t, slow.IsClosed())
}

func TestHedgedFirstPacketWins(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	fast := remotetest.NewConn("replica-fast", []remote.Packet{
		dataPacket(testDataBlock(1)),
		eosPacket(),
	})
	pool := remotetest.NewPool(fast)

	settings := base.DefaultSettings()
	settings.UseHedgedRequests = true
	settings.HedgedConnectionTimeout = base.Duration(time.Hour)

	e := remote.NewForPool(pool, 1, remote.ExecutorConfig{
		Query:    "SELECT a, b FROM t",
		Header:   testHeader(),
		Settings: settings,
	})
	defer e.Close()

	res, err := e.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, remote.ReadData, res.Type())

	res, err = e.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, remote.ReadFinished, res.Type())
	require.True(t, e.IsFinished())
}

func TestThrottlerBoundsSends(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	conn := remotetest.NewConn("replica-1", []remote.Packet{eosPacket()})
	// ~800 bytes of external data against a 100 KB/s budget: just checks
	// the throttled path is exercised without stalling the test.
	table := col.NewBlock(col.NewColumn("id", col.MakeInt64s(make([]int64, 100)...)))
	e := remote.NewForConnection(conn, remote.ExecutorConfig{
		Query:          "SELECT a, b FROM t",
		Header:         testHeader(),
		Throttler:      remote.NewThrottler(100 << 10),
		ExternalTables: remote.Tables{"tmp": {table}},
	})
	defer e.Close()

	res, err := e.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, remote.ReadFinished, res.Type())
	require.Equal(t, 2, conn.CountSent(remotetest.FrameData))
}
