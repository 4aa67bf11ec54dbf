package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/trickle/internal/config"
	"github.com/surge-downloader/trickle/internal/download"
	"github.com/surge-downloader/trickle/internal/engine/state"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	debugFlag bool

	// settings is loaded once per invocation by initializeGlobalState
	settings *config.Settings
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "trickle [url]...",
	Short:        "A terminal downloader with live progress",
	Long:         `trickle streams files over HTTP(S) to disk and shows each transfer's progress in a terminal UI.`,
	Version:      Version,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeGlobalState()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		state.CloseDB()
		utils.DisableDebug()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := getOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		return runGet(cmd, args, opts)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Write debug logs to the logs directory")
	addDownloadFlags(rootCmd)
	rootCmd.SetVersionTemplate("trickle version {{.Version}}\n")
}

// initializeGlobalState loads settings, prepares directories and configures
// the history database, logging and colour output.
func initializeGlobalState() error {
	s, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load settings (%v), using defaults\n", err)
		s = config.DefaultSettings()
	}
	settings = s

	if err := config.EnsureDirs(); err != nil {
		return err
	}

	state.Configure(filepath.Join(config.GetStateDir(), "trickle.db"))

	if debugFlag || s.General.Debug {
		if err := utils.ConfigureDebug(config.GetLogsDir(), s.General.LogMaxSizeMB, s.General.LogRetentionCount); err != nil {
			return err
		}
		utils.Debug("trickle %s (built %s) starting", Version, BuildTime)
	}

	if termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	return nil
}

// newManager builds a download manager from the loaded settings.
func newManager(outputDir string) *download.Manager {
	runtime := types.ConvertRuntimeConfig(settings.ToRuntimeConfig())
	if outputDir != "" {
		runtime.OutputDir = outputDir
	}
	n := settings.Connections.MaxConcurrentDownloads
	return download.NewManager(runtime,
		download.WithHistory(settings.General.KeepHistory),
		download.WithMaxConcurrent(n),
		download.WithEventBuffer(max(n, 1)*types.ProgressChannelBuffer),
	)
}

// shutdown cancels whatever is still running and discards the remaining events.
func shutdown(mgr *download.Manager) {
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-mgr.Events():
			case <-stop:
				return
			}
		}
	}()
	mgr.Shutdown()
	close(stop)
}
