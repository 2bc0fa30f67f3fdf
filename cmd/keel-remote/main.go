// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

// keel-remote drives the remote query executor against a scripted
// in-process replica set. It exists to exercise the driver end to end
// without a server: the replica answers with canned packets, the executor
// runs the real state machine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/keeldb/keel/pkg/base"
	"github.com/keeldb/keel/pkg/col"
	"github.com/keeldb/keel/pkg/remote"
	"github.com/keeldb/keel/pkg/remote/remotetest"
	"github.com/keeldb/keel/pkg/util/log"
)

var demoFlags = struct {
	rows         int
	batch        int
	settingsPath string
	verbosity    int
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:          "keel-remote",
		Short:        "keel remote query executor driver",
		SilenceUsage: true,
	}
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "run a canned query through the executor against a scripted replica",
		RunE:  runDemo,
	}
	registerDemoFlags(demoCmd.Flags())
	rootCmd.AddCommand(demoCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func registerDemoFlags(f *pflag.FlagSet) {
	f.IntVar(&demoFlags.rows, "rows", 12, "total rows the scripted replica returns")
	f.IntVar(&demoFlags.batch, "batch", 5, "rows per data block")
	f.StringVar(&demoFlags.settingsPath, "settings", "", "yaml settings file")
	f.IntVar(&demoFlags.verbosity, "verbosity", 0, "log verbosity")
}

func demoHeader() *col.Block {
	return col.NewBlock(
		col.NewDescriptor("id", col.Int64),
		col.NewDescriptor("name", col.String),
		col.NewConstColumn("shard", col.UInt32, uint32(0), 0),
	)
}

// demoScript builds the packet stream a healthy replica would produce.
func demoScript(rows, batch int) []remote.Packet {
	var script []remote.Packet
	read := uint64(0)
	for off := 0; off < rows; off += batch {
		n := batch
		if off+n > rows {
			n = rows - off
		}
		ids := make([]int64, n)
		names := make([]string, n)
		shards := make([]uint32, n)
		for i := range ids {
			ids[i] = int64(off + i)
			names[i] = fmt.Sprintf("name-%d", off+i)
			shards[i] = 1
		}
		read += uint64(n)
		script = append(script,
			remote.Packet{Type: remote.PacketProgress, Progress: remote.Progress{
				ReadRows:        read,
				ReadBytes:       read * 16,
				TotalRowsToRead: uint64(rows),
			}},
			remote.Packet{Type: remote.PacketData, Block: col.NewBlock(
				col.NewColumn("id", col.MakeInt64s(ids...)),
				col.NewColumn("name", col.MakeStrings(names...)),
				col.NewColumn("shard", col.MakeUInt32s(shards...)),
			)},
		)
	}
	script = append(script,
		remote.Packet{Type: remote.PacketProfileInfo, ProfileInfo: remote.ProfileInfo{
			Rows: uint64(rows), Blocks: uint64((rows + batch - 1) / batch),
		}},
		remote.Packet{Type: remote.PacketEndOfStream},
	)
	return script
}

func runDemo(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	log.SetVModule(demoFlags.verbosity)

	settings := base.DefaultSettings()
	if demoFlags.settingsPath != "" {
		var err error
		if settings, err = base.LoadSettings(demoFlags.settingsPath); err != nil {
			return err
		}
	}

	conn := remotetest.NewConn("demo-replica", demoScript(demoFlags.rows, demoFlags.batch))

	var lastProgress remote.Progress
	e := remote.NewForConnection(conn, remote.ExecutorConfig{
		Query:            "SELECT id, name, shard FROM demo",
		Header:           demoHeader(),
		Settings:         settings,
		ClientInfo:       remote.ClientInfo{ClientName: "keel-remote"},
		ProgressCallback: func(p remote.Progress) { lastProgress = p },
	})
	defer e.Close()

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"id", "name", "shard"})
	totalRows := 0
	for {
		res, err := e.Read(ctx)
		if err != nil {
			return err
		}
		if res.Type() == remote.ReadFinished {
			break
		}
		if res.Type() != remote.ReadData {
			continue
		}
		b := res.Block()
		totalRows += b.Rows()
		for i := 0; i < b.Rows(); i++ {
			table.Append([]string{
				fmt.Sprint(b.Col(0).Datum(i)),
				fmt.Sprint(b.Col(1).Datum(i)),
				fmt.Sprint(b.Col(2).Datum(i)),
			})
		}
	}
	if err := e.Finish(ctx); err != nil {
		return err
	}

	table.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "%d rows, %s read on %s\n",
		totalRows,
		humanize.IBytes(lastProgress.ReadBytes),
		conn.Addr())
	return nil
}
