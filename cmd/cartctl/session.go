package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/cartsync/internal/app"
	"github.com/vladislavdragonenkov/cartsync/internal/cart"
	"github.com/vladislavdragonenkov/cartsync/internal/messaging/kafka"
)

// loadConfig читает CART_* окружение и применяет флаги командной строки.
// Без явного выбора cartctl работает с sqlite: память не переживает запуск.
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, err
	}

	if _, ok := os.LookupEnv(app.EnvPrefix + "STORAGE_DRIVER"); !ok {
		cfg.StorageDriver = app.StorageDriverSQLite
	}
	if driver, _ := cmd.Flags().GetString("driver"); strings.TrimSpace(driver) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(driver)))
	}
	if path, _ := cmd.Flags().GetString("sqlite-path"); strings.TrimSpace(path) != "" {
		cfg.SQLitePath = strings.TrimSpace(path)
	}
	if ns, _ := cmd.Flags().GetString("namespace"); ns != "" {
		cfg.Namespace = ns
	}

	if err := cfg.Validate(); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// withCart открывает сессию корзины, выполняет fn и закрывает сессию,
// дожидаясь записи последнего снимка.
func withCart(cmd *cobra.Command, fn func(ctx context.Context, store *cart.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := log.WithField("component", "cartctl")

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	options := append(cfg.CartOptions(), cart.WithLogger(logger))
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("kafka producer unavailable, snapshots will not be published")
		} else {
			defer producer.Close()
			options = append(options, cart.WithSnapshotPublisher(kafka.NewSnapshotPublisher(producer, cfg.KafkaTopic)))
		}
	}

	store := cart.New(backend, options...)
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init cart: %w", err)
	}
	if err := store.WaitReady(ctx); err != nil {
		_ = store.Close(context.WithoutCancel(ctx))
		return fmt.Errorf("hydrate cart: %w", err)
	}

	runErr := fn(ctx, store)
	// Снимок дописываем даже после Ctrl+C.
	closeErr := store.Close(context.WithoutCancel(ctx))
	return errors.Join(runErr, closeErr)
}
