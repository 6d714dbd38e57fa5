package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/velemoonkon/sonar/pkg/config"
	"github.com/velemoonkon/sonar/pkg/queue"
	"github.com/velemoonkon/sonar/pkg/scanner"
)

var popTimeout time.Duration

var consumeCmd = &cobra.Command{
	Use:   "consume [flags]",
	Short: "Read alive hosts from a Redis session queue",
	Long: `Read alive hosts published by "sonar detect --redis" and write them out,
stopping when the detector publishes its finish entry.`,

	Example: `  # Follow session 5 while detection runs elsewhere
  sonar consume --redis localhost:6379 --session 5

  # Keep the hosts as Parquet
  sonar consume --redis localhost:6379 --session 5 --format parquet -o alive.parquet`,

	Args: cobra.NoArgs,
	RunE: runConsume,
}

func init() {
	f := consumeCmd.Flags()

	addQueueFlags(consumeCmd)
	f.DurationVar(&popTimeout, "pop-timeout", config.Queue.PopTimeout, "Wait per queue read before logging that detection is still running")

	f.StringVarP(&outputFile, "output", "o", "-", "Output file, - for stdout")
	f.StringVar(&outputFormat, "format", "jsonl", "Output format: jsonl, parquet")
}

func runConsume(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	redisCfg, ok, err := ResolveQueueConfig(queueFlags)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("requires --redis or SONAR_REDIS_ADDR")
	}

	q, err := queue.NewRedis(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer q.Close()

	w, err := createOutputWriter(outputFile, outputFormat)
	if err != nil {
		return err
	}

	start := time.Now()
	slog.Info("consuming alive hosts", "addr", redisCfg.Addr, "session", redisCfg.DB, "key", redisCfg.Key)

	count, runErr := drainAlive(ctx, scanner.NewConsumer(q, nil), w, redisCfg.DB, popTimeout)
	if closeErr := w.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("consume failed: %w", runErr)
	}

	slog.Info("consume completed", "alive", count, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
