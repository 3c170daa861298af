package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetvault/sheetvault/internal/config"
	"github.com/sheetvault/sheetvault/internal/logging"
	syncengine "github.com/sheetvault/sheetvault/internal/sync"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync continuously on an interval",
	Long: `Run in the foreground and sync on a fixed interval until interrupted.

The configuration file is watched too: edits take effect on the next
scheduled run without a restart.

Examples:
  sheetvault watch
  sheetvault watch --interval 1m`,
	RunE: runWatch,
}

var watchFlags struct {
	Interval time.Duration
}

func init() {
	watchCmd.Flags().DurationVar(&watchFlags.Interval, "interval", 0, "Sync interval (defaults to sync.watch_interval from the config)")
	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := watchFlags.Interval
	if interval <= 0 {
		interval = a.cfg.Sync.WatchInterval
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := syncengine.NewWatcher(a.engine, interval, a.logger)
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	// Hot-reload the log level on config edits; interval changes take
	// effect on restart.
	loader := config.NewLoader(globalFlags.Config, a.logger)
	if _, err := loader.Load(); err == nil {
		loader.SetOnChange(func(cfg *config.Config) {
			a.logger.SetLevel(logging.ParseLevel(cfg.Log.Level))
		})
		if err := loader.StartWatcher(); err != nil {
			a.logger.Warn("config watcher unavailable", "error", err.Error())
		} else {
			defer loader.StopWatcher()
		}
	}

	cmd.Printf("Watching source every %s (Ctrl-C to stop)\n", interval)
	<-ctx.Done()
	cmd.Println("Stopping")
	return nil
}
