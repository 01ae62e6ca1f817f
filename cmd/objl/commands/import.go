package commands

import (
	"errors"
	"fmt"
	"time"

	"objloader/pkg/core"
	"objloader/pkg/ingester"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var importIgnore []string

var importCmd = &cobra.Command{
	Use:   "import [path]",
	Short: "Chunk a file or directory into objects and upload them",
	Long: `Split files with content-defined chunking, build file and tree nodes on top,
and upload everything to the remote object service. Prints the root hash,
which can then be pulled from any client.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start := time.Now()
		stderr := cmd.ErrOrStderr()

		up := ingester.NewUploader(OL.Client.Objects, ingester.UploaderConfig{
			BatchSize: viper.GetInt("remote.batch_size"),
			Logger:    OL.Logger,
		})

		var files int
		var total int64
		ing := ingester.NewIngester(up,
			ingester.WithIgnoreRules(importIgnore...),
			ingester.WithLogger(OL.Logger),
			ingester.WithProgress(func(path string, file *core.Node, size int64) {
				files++
				total += size
				fmt.Fprintf(stderr, "  + %s (%s)\n", path, file.ID().Short())
			}),
		)

		root, err := ing.IngestPath(ctx, args[0])
		// 无论成败都要把缓冲的节点发完
		if cerr := up.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Fprintf(stderr, "📦 Imported %d files (%d bytes, %d objects) in %s\n",
			files, total, up.Stored(), time.Since(start).Round(time.Millisecond))
		fmt.Fprintln(cmd.OutOrStdout(), root.ID())
		return nil
	},
}

func init() {
	importCmd.Flags().StringSliceVar(&importIgnore, "ignore", nil, "extra gitignore-style patterns to skip")
	rootCmd.AddCommand(importCmd)
}
