package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/cartsync/internal/app"
	"github.com/vladislavdragonenkov/cartsync/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cartsync/internal/version"
)

func init() {
	rootCmd.AddCommand(watchCmd, versionCmd)

	watchCmd.Flags().String("group", "", "consumer group id (default: random per run)")
	watchCmd.Flags().Bool("from-beginning", false, "replay the topic from the oldest offset")
	watchCmd.Flags().Bool("json", false, "print raw snapshot messages as JSON")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow cart snapshots published to Kafka",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if len(cfg.KafkaBrokers) == 0 {
			return fmt.Errorf("%sKAFKA_BROKERS is required for watch", app.EnvPrefix)
		}

		group, _ := cmd.Flags().GetString("group")
		if group == "" {
			group = "cartctl-watch-" + uuid.NewString()
		}
		fromOldest, _ := cmd.Flags().GetBool("from-beginning")
		asJSON, _ := cmd.Flags().GetBool("json")

		printer := &snapshotPrinter{out: cmd.OutOrStdout(), json: asJSON}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, group, cfg.KafkaTopic, fromOldest, printer.handle)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return consumer.Stop()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Name(), version.String())
	},
}

// snapshotPrinter печатает снимки из ленты; handler вызывается из разных партиций.
type snapshotPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	json bool
}

func (p *snapshotPrinter) handle(_ context.Context, msg *kafka.SnapshotMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		return json.NewEncoder(p.out).Encode(msg)
	}
	_, err := fmt.Fprintf(p.out, "%s session=%s key=%s revision=%d items=%d total=%d\n",
		msg.SavedAt.Format(time.RFC3339),
		msg.SessionID,
		msg.Key,
		msg.Revision,
		len(msg.Items),
		msg.TotalQuantity,
	)
	return err
}
