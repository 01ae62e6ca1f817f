package commands

import (
	"errors"
	"fmt"

	"objloader/pkg/cache"
	"objloader/pkg/exporter"

	"github.com/spf13/cobra"
)

var catRaw bool

var catCmd = &cobra.Command{
	Use:   "cat [hash]",
	Short: "Show a node by hash",
	Long: `Print a node from the local cache, pulling it first when it is missing.
With --raw, a chunk or file is written to stdout as its original bytes, so
binary content can be redirected: objl cat --raw <hash> > file.bin`,
	Args: cobra.ExactArgs(1), // 必须提供 Hash
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := OL.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		exp := exporter.NewExporter(OL.Backend)

		// 1. raw 需要所有后代都在缓存里，直接跑一次 pull (已缓存的节点不走网络)
		if catRaw {
			if _, err := pull(ctx, id, nil); err != nil {
				return fmt.Errorf("cat failed: %w", err)
			}
		}

		// 2. 读缓存，没有就先拉
		n, err := exp.Node(ctx, id)
		if errors.Is(err, cache.ErrNotCached) {
			if _, err := pull(ctx, id, nil); err != nil {
				return fmt.Errorf("cat failed: %w", err)
			}
			n, err = exp.Node(ctx, id)
		}
		if err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}

		// 3. 输出
		if catRaw {
			return exp.WriteRaw(ctx, n, cmd.OutOrStdout())
		}
		return exporter.PrintNode(cmd.OutOrStdout(), n)
	},
}

func init() {
	catCmd.Flags().BoolVar(&catRaw, "raw", false, "write the original bytes of a chunk or file")
	rootCmd.AddCommand(catCmd)
}
