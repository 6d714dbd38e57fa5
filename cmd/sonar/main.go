package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/velemoonkon/sonar/pkg/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Logging flags
var (
	quiet   bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sonar",
	Short: "Host alive detection",
	Long: `Sonar - find out which hosts are up before scanning them

Every target is sent an ICMP echo request; hosts that stay silent get TCP
SYNs over a ladder of 28 common ports. Replies are captured with libpcap
and every host that answers is published once to a queue, followed by a
"finish" entry when detection is over.

Settings can also be given as SONAR_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("sonar %s (commit: %s, built: %s)\n", version, commit, date))

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(detectCmd, consumeCmd)
}

func initLogger() {
	var level slog.Level
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// signalContext is cancelled on the first SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			slog.Info("stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func main() {
	config.Init()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
