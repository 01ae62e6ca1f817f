package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"objloader/pkg/core"
	"objloader/pkg/exporter"
	"objloader/pkg/loader"
	"objloader/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pullQuiet bool

var pullCmd = &cobra.Command{
	Use:   "pull [hash]",
	Short: "Stream an object graph from the remote into the local cache",
	Long: `Resolve the root hash (a unique prefix is enough), then load the root and every
descendant. Nodes already in the local cache are served from it; the rest are
batched over the network and written back to the cache.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Ctrl-C 取消会话，已缓冲的写入被丢弃
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		root, err := OL.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(cmd.ErrOrStderr(), "⬇️  Pulling %s from %s...\n", root.Short(), viper.GetString("remote.addr"))

		start := time.Now()
		var emit func(int, *core.Node)
		if !pullQuiet {
			emit = func(seq int, n *core.Node) { exporter.PrintLine(out, seq, n) }
		}
		n, err := pull(ctx, root, emit)
		if err != nil {
			return fmt.Errorf("pull failed after %d nodes: %w", n.Delivered, err)
		}

		fmt.Fprintf(out, "✅ %d nodes (%d cached, %d fetched, %d skipped, %d written) in %s\n",
			n.Delivered, n.FromCache, n.Fetched, n.Skipped, n.Persisted,
			time.Since(start).Round(time.Millisecond))
		return nil
	},
}

// pull 跑一次完整的加载会话，等缓存写完再返回
func pull(ctx context.Context, root types.Hash, emit func(seq int, n *core.Node)) (loader.Stats, error) {
	stream, err := OL.Loader.Start(ctx, root)
	if err != nil {
		return loader.Stats{}, err
	}

	seq := 0
	for n := range stream.Seq(ctx) {
		seq++
		if emit != nil {
			emit(seq, n)
		}
	}

	// 会话结束后才能确认缓存已经落盘
	err = stream.Wait(context.WithoutCancel(ctx))
	return stream.Stats(), err
}

func init() {
	pullCmd.Flags().BoolVarP(&pullQuiet, "quiet", "q", false, "only print the summary")
	pullCmd.Flags().Int("concurrency", 0, "concurrent fetch requests")
	bindFlag("loader.concurrency", pullCmd.Flags().Lookup("concurrency"))
	rootCmd.AddCommand(pullCmd)
}
