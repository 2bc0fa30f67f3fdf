// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/keeldb/keel/pkg/base"
	"github.com/keeldb/keel/pkg/col"
	"github.com/keeldb/keel/pkg/remote"
	"github.com/keeldb/keel/pkg/remote/remotetest"
	"github.com/keeldb/keel/pkg/util/leaktest"
)

// waitReadable blocks until the descriptor becomes readable, failing the
// test on timeout so a broken readiness path cannot hang the suite.
func waitReadable(t *testing.T, fd int) {
	t.Helper()
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 5000)
		if err == unix.EINTR {
			continue
		}
		require.NoError(t, err)
		require.NotZero(t, n, "timed out waiting for read context descriptor")
		return
	}
}

// readAsyncAll drives ReadAsync with descriptor polling until the stream
// finishes, returning the data blocks it produced.
func readAsyncAll(t *testing.T, ctx context.Context, e *remote.RemoteQueryExecutor) []*col.Block {
	t.Helper()
	var blocks []*col.Block
	for i := 0; i < 1000; i++ {
		res, err := e.ReadAsync(ctx)
		require.NoError(t, err)
		switch res.Type() {
		case remote.ReadFileDescriptor:
			waitReadable(t, res.FileDescriptor())
		case remote.ReadData:
			blocks = append(blocks, res.Block())
		case remote.ReadFinished:
			return blocks
		}
	}
	t.Fatal("async read did not finish")
	return nil
}

func TestSendQueryAsync(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	conn := remotetest.NewConn("replica-1", []remote.Packet{
		{Type: remote.PacketProgress},
		dataPacket(testDataBlock(2)),
		eosPacket(),
	})

	// Gate the factory so the send reliably suspends mid-way.
	gate := make(chan struct{})
	e := remote.New(remote.ExecutorConfig{
		Query:  "SELECT a, b FROM t",
		Header: testHeader(),
	}, func(context.Context, remote.AsyncCallback) (remote.Connections, error) {
		<-gate
		return remote.NewMultiplexedConnections(
			[]remote.Connection{conn}, base.DefaultSettings(), nil), nil
	})
	defer e.Close()

	fd, err := e.SendQueryAsync()
	require.NoError(t, err)
	require.GreaterOrEqual(t, fd, 0, "suspended send must expose a descriptor")

	close(gate)
	waitReadable(t, fd)

	fd, err = e.SendQueryAsync()
	require.NoError(t, err)
	require.Equal(t, -1, fd, "completed send returns -1")

	blocks := readAsyncAll(t, ctx, e)
	require.Len(t, blocks, 1)
	require.Equal(t, 2, blocks[0].Rows())
	require.True(t, e.IsFinished())
}

func TestReadAsync(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	conn := remotetest.NewConn("replica-1", []remote.Packet{
		dataPacket(testDataBlock(1)),
		{Type: remote.PacketProgress},
		dataPacket(testDataBlock(4)),
		eosPacket(),
	})
	e := remote.NewForConnection(conn, remote.ExecutorConfig{
		Query:  "SELECT a, b FROM t",
		Header: testHeader(),
	})
	defer e.Close()

	blocks := readAsyncAll(t, ctx, e)
	require.Len(t, blocks, 2)
	require.Equal(t, 1, blocks[0].Rows())
	require.Equal(t, 4, blocks[1].Rows())
	require.True(t, e.IsFinished())
}

func TestReadAsyncCancel(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	conn := remotetest.NewConn("replica-1", []remote.Packet{
		dataPacket(testDataBlock(1)),
	})
	e := remote.NewForConnection(conn, remote.ExecutorConfig{
		Query:  "SELECT a, b FROM t",
		Header: testHeader(),
	})
	defer e.Close()

	// Drive until the first data block arrives.
	var got bool
	for !got {
		res, err := e.ReadAsync(ctx)
		require.NoError(t, err)
		switch res.Type() {
		case remote.ReadFileDescriptor:
			waitReadable(t, res.FileDescriptor())
		case remote.ReadData:
			got = true
		}
	}

	require.NoError(t, e.Cancel(ctx))

	res, err := e.ReadAsync(ctx)
	require.NoError(t, err)
	require.Equal(t, remote.ReadFinished, res.Type())
	require.Equal(t, 1, conn.CountSent(remotetest.FrameCancel))
}

func TestReadAsyncDuplicateUUIDRetry(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()

	u1 := uuid.New()
	registry := remote.NewQueryPartUUIDs()
	require.Empty(t, registry.Add([]uuid.UUID{u1}))

	conn := remotetest.NewConn("replica-1",
		[]remote.Packet{
			{Type: remote.PacketPartUUIDs, PartUUIDs: []uuid.UUID{u1}},
		},
		[]remote.Packet{
			dataPacket(testDataBlock(3)),
			eosPacket(),
		},
	)
	e := remote.NewForConnection(conn, remote.ExecutorConfig{
		Query:            "SELECT a, b FROM t",
		Header:           testHeader(),
		PartUUIDRegistry: registry,
	})
	defer e.Close()

	blocks := readAsyncAll(t, ctx, e)
	require.Len(t, blocks, 1)
	require.Equal(t, 3, blocks[0].Rows())

	require.Equal(t, 2, conn.CountSent(remotetest.FrameQuery))
	require.Equal(t, 1, conn.CountSent(remotetest.FrameIgnoredPartUUIDs))
}
