package commands

import (
	"context"
	"fmt"
	"os"

	"objloader/pkg/app"
	"objloader/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	OL *app.App
	// dialOpts 追加到远端连接上，测试里用来注入 bufconn
	dialOpts []grpc.DialOption
)

var rootCmd = &cobra.Command{
	Use:           "objl",
	Short:         "objl: stream content-addressed object graphs into a local cache",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		OL, err = app.NewApp(cmd.Context(), dialOpts...)
		if err != nil {
			return fmt.Errorf("failed to initialize objl: %w", err)
		}
		return nil
	},
}

// Execute 是入口
func Execute() error {
	err := execute(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
	}
	return err
}

// execute 跑一次命令，无论成败都释放 App
// PersistentPostRun 在 RunE 出错时不会执行，所以放在这里
func execute(ctx context.Context) error {
	defer func() {
		if OL != nil {
			if err := OL.Close(); err != nil {
				fmt.Fprintln(os.Stderr, "⚠️  close:", err)
			}
			OL = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.objl/config.yaml)")
	flags.String("remote", "", "address of the object service")
	flags.String("cache-type", "", "local cache backend: memory, badger or sql")
	flags.String("cache-path", "", "directory of the badger cache")
	flags.String("log-level", "", "debug, info, warn or error")

	// 用户既可以在 yaml 里写，也可以用 flag 覆盖
	bindFlag("remote.addr", flags.Lookup("remote"))
	bindFlag("cache.type", flags.Lookup("cache-type"))
	bindFlag("cache.path", flags.Lookup("cache-path"))
	bindFlag("log.level", flags.Lookup("log-level"))
}

func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}
