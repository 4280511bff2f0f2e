// Package cmd
package cmd

import (
	"context"
	"fmt"

	"combo/pkg/config"
	"combo/pkg/logger"
	"combo/pkg/supervisor"
	"combo/pkg/utils"
	"combo/pkg/utils/constants"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	showVersion    bool
	foregroundFlag bool

	// 命令行显式指定了 --loglevel，在 PersistentPreRun 中记录
	loglevelChanged bool
)

// flag 名到配置项的映射，命令行的值覆盖配置文件和环境变量
var flagKeys = map[string]string{
	"workers":         "workers",
	"port":            "port",
	"pids":            "pids",
	"basePath":        "basePath",
	"maxAge":          "maxAge",
	"rootsFile":       "rootsFile",
	"server":          "server",
	"daemon":          "daemon",
	"launchTimeout":   "launchTimeout",
	"shutdownTimeout": "shutdownTimeout",
	"watch":           "watch",
	"metricsAddr":     "metricsAddr",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           utils.RuntimeModuleName,
	Short:         utils.RuntimeModuleName + " runs a pool of combo file server workers",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			execVersionCmd(cmd, args)
			return nil
		}

		return runMaster(cmd.Context())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&showVersion, "version", "v", false, "Print version and exit")
	pf.StringVarP(&config.LogLevelFlag, "loglevel", "l", constants.DefaultLogLevel, "Set log level")
	pf.StringVarP(&config.ConfigFileFlag, "config", "c", "", "The path to the config file")
	pf.IntP("workers", "n", 0, "Number of workers (default: number of CPUs)")
	pf.IntP("port", "p", constants.DefaultPort, "Port the workers listen on")
	pf.String("pids", constants.DefaultRunDir, "Directory for pidfiles")
	pf.String("basePath", "", "Base path used to rewrite CSS url() references (default: current directory)")
	pf.Int("maxAge", constants.DefaultMaxAge, "Cache max-age in seconds, negative to disable cache headers")
	pf.String("rootsFile", "", "YAML or JSON file mapping URL paths to root directories")
	pf.String("server", constants.DefaultServer, "Name of the handler factory the workers serve")

	addMasterFlags(rootCmd.Flags())

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return execRootPersistentPreRun(cmd)
	}
}

func addMasterFlags(f *pflag.FlagSet) {
	f.BoolVarP(&foregroundFlag, "foreground", "f", true, "Run the master in the foreground")
	f.BoolP("daemon", "d", false, "Detach the master from the terminal")
	f.Duration("launchTimeout", supervisor.DefaultLaunchTimeout, "Warn about workers not listening after this long")
	f.Duration("shutdownTimeout", 0, "Kill workers still running this long after a shutdown request, 0 waits forever")
	f.Bool("watch", false, "Restart workers when the roots file changes")
	f.String("metricsAddr", "", "Serve Prometheus metrics on this address")
}

func execRootPersistentPreRun(cmd *cobra.Command) error {
	loglevelChanged = false
	if f := cmd.Flags().Lookup("loglevel"); f != nil {
		loglevelChanged = f.Changed
	}

	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return err
		}
	}

	if err := config.SetConfig(config.ConfigFileFlag); err != nil {
		return err
	}

	return initLogger(config.GetConfig(), false)
}

func initLogger(cfg *config.Config, forceFile bool) error {
	level := cfg.Log.Level
	if loglevelChanged || level == "" {
		level = config.LogLevelFlag
	}

	return logger.Init(logger.Options{
		Level:       level,
		FileEnabled: cfg.Log.FileEnabled || forceFile,
		FilePath:    cfg.Log.FilePath,
		FileSize:    cfg.Log.FileSize,
		MaxAge:      cfg.Log.MaxAge,
		MaxBackups:  cfg.Log.MaxBackups,
		Compress:    cfg.Log.FileCompress,
	})
}

// runMaster 按进程角色运行：带 worker 标记的进程运行 worker，否则运行 master
func runMaster(ctx context.Context) error {
	defer logger.Sync()

	cfg := config.GetConfig()

	if id, ok := utils.WorkerID(); ok {
		return supervisor.RunWorker(ctx, cfg, id)
	}

	if cfg.Daemonize || !foregroundFlag {
		parent, err := supervisor.Daemonize(cfg)
		if err != nil {
			return err
		}

		if parent {
			fmt.Printf("\033[1;33;40m%s master started in background\033[0m\n", utils.RuntimeModuleName)
			return nil
		}

		if err := initLogger(cfg, true); err != nil {
			return err
		}
	}

	if cfg.Roots.Len() == 0 {
		logger.Logging("master").Warn("No roots configured, workers will answer 404 to every request")
	}

	return supervisor.NewController(cfg).Listen(ctx)
}
