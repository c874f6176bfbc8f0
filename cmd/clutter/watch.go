package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clutter-sh/clutter/internal/daemon"
	"github.com/clutter-sh/clutter/internal/dashboard"
	"github.com/clutter-sh/clutter/internal/ghost"
	"github.com/clutter-sh/clutter/internal/logging"
	"github.com/clutter-sh/clutter/internal/ui"
)

var watchForeground bool

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "daemon",
	Short:   "Run the filesystem watcher",
	Long: `Watch runs the daemon that notices when tracked originals are deleted
or moved and walks through recovery. Only one watcher can run per base
directory; a pid file enforces that. With --foreground the daemon logs
to stderr and prompts on the terminal, otherwise it logs to the
rotating log file and resolutions wait for an interactive session.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		release, err := daemon.AcquirePidFile(a.cfg.PidFile())
		if err != nil {
			fail(err)
		}
		defer func() {
			if err := release(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}()

		config := daemon.DefaultConfig()
		config.Debounce = a.cfg.Debounce
		config.MoveWindow = a.cfg.MoveWindow
		if !watchForeground {
			logger, closer := logging.NewDaemonLogger("[clutterd] ", a.cfg.LogFile)
			defer closer.Close()
			config.Logger = logger
		}

		resolver := ghost.NewResolver(a.store, a.sandbox, a.refs, a.prompter)

		var notify daemon.Notifier
		var dash *dashboard.Server
		if a.cfg.DashboardAddr != "" {
			dash = dashboard.NewServer(&dashboard.Config{
				Addr:   a.cfg.DashboardAddr,
				Logger: config.Logger,
			})
			if err := dash.Start(); err != nil {
				fail(err)
			}
			defer dash.Stop()
			notify = dash
			config.Logger.Printf("Dashboard listening on %s", dash.Addr())
		}

		d, err := daemon.New(a.store, resolver, config, notify)
		if err != nil {
			fail(err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println(ui.RenderMuted("Watching tracked originals. Ctrl-C to stop."))
		if err := d.Start(ctx); err != nil && ctx.Err() == nil {
			fail(err)
		}
	},
}

var resolveCmd = &cobra.Command{
	Use:     "resolve ALIAS CHOICE [NEW_PATH]",
	GroupID: "daemon",
	Short:   "Resolve a pending ghost without prompts",
	Long: `Resolve applies a recovery decision recorded by the watcher. For a
deleted original the choice is one of restore, keep-ghost,
delete-for-real, or untrack. For a moved original the choice is follow
(NEW_PATH names where the directory went) or ghost.`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.Close()

		resolver := ghost.NewResolver(a.store, a.sandbox, a.refs, a.prompter)
		alias := args[0]
		choice := ghost.Choice(args[1])

		var ctx = cmd.Context()
		switch choice {
		case ghost.ChoiceFollow:
			if len(args) != 3 {
				fail(fmt.Errorf("choice %q needs the new path", choice))
			}
			err = resolver.ResolveMove(ctx, alias, args[2], choice)
		case ghost.ChoiceGhost:
			err = resolver.ResolveMove(ctx, alias, "", choice)
		case ghost.ChoiceRestore, ghost.ChoiceKeepGhost, ghost.ChoiceDeleteForReal, ghost.ChoiceUntrack:
			err = resolver.ResolveDelete(ctx, alias, choice)
		default:
			fail(fmt.Errorf("unknown choice %q", choice))
		}
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Applied %s to %s\n", ui.RenderSuccess("✓"), choice, ui.RenderAccent(alias))
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchForeground, "foreground", true, "log to stderr and prompt on this terminal")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(resolveCmd)
}
