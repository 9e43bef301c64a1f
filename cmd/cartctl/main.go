// Command cartctl работает с корзиной напрямую через хранилище:
// каждая команда открывает сессию, выполняет операцию и дожидается записи снимка.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/cartsync/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "cartctl",
	Short:         "Inspect and modify the persisted shopping cart",
	Version:       version.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		setupLogger(verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("driver", "", "storage driver: memory|sqlite|postgres|redis (default from CART_STORAGE_DRIVER or sqlite)")
	rootCmd.PersistentFlags().String("sqlite-path", "", "sqlite database path (default from CART_SQLITE_PATH)")
	rootCmd.PersistentFlags().String("namespace", "", "cart namespace (default from CART_NAMESPACE)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

func setupLogger(verbose bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
