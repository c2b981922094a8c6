package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/5amCurfew/xtkt-target/lib"
	"github.com/5amCurfew/xtkt-target/models"
	"github.com/5amCurfew/xtkt-target/storage"
	"github.com/5amCurfew/xtkt-target/warehouse"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Persist wires the target from the config at configPath and runs it over stdin, emitting the final state on stdout
func Persist(ctx context.Context, configPath string, version string) error {
	config, err := models.ReadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log_level %q: %w", config.LogLevel, err)
	}
	log.SetLevel(level)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !config.DisableCollection {
		sendUsageStats(version)
	}

	store := storage.NewLazy(config)
	defer store.Close()

	var wh warehouse.Warehouse
	if config.UsesWarehouse() {
		wh, err = warehouse.New(ctx, config, store)
		if err != nil {
			return fmt.Errorf("error creating %s warehouse: %w", config.WarehouseType, err)
		}
		defer func() {
			if err := wh.Close(); err != nil {
				log.WithFields(log.Fields{"Error": err}).Error("warehouse closed with failed load jobs")
			}
		}()
	}

	var opts []lib.Option
	if config.MetricsAddr != "" {
		metrics, err := lib.NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		opts = append(opts, lib.WithMetrics(metrics))

		shutdown := serveMetrics(config.MetricsAddr)
		defer shutdown()
	}

	target, err := lib.NewTarget(config, store, wh, opts...)
	if err != nil {
		return fmt.Errorf("error creating target: %w", err)
	}

	state, err := target.Persist(ctx, os.Stdin)
	if err != nil {
		return err
	}

	if err := lib.EmitState(os.Stdout, state); err != nil {
		return err
	}

	summary := target.Summary()
	log.WithFields(log.Fields{"metrics": summary}).Info("execution metrics")

	if config.HistoryPath != "" {
		if err := lib.AppendToHistory(config.HistoryPath, summary); err != nil {
			log.WithFields(log.Fields{"Error": err}).Warn("could not append execution history")
		}
	}
	return nil
}
