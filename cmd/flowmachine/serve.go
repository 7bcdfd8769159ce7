package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	flowmachine "github.com/avdept/flowmachine"
	"github.com/avdept/flowmachine/internal/adapters/encrypted"
	httpadapter "github.com/avdept/flowmachine/internal/adapters/http"
	"github.com/avdept/flowmachine/internal/adapters/memory"
	redisadapter "github.com/avdept/flowmachine/internal/adapters/redis"
	sqliteadapter "github.com/avdept/flowmachine/internal/adapters/sqlite"
	"github.com/avdept/flowmachine/internal/config"
	"github.com/avdept/flowmachine/internal/logging"
	"github.com/avdept/flowmachine/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the message-ingest HTTP server",
	Long:  `Starts the flow engine with the configured session store and exposes the inbound message webhook over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		flowDir, _ := cmd.Flags().GetString("flows")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logger := logging.New(logging.ParseLevel(cfg.Log.Level))

		flows := memory.NewFlowProvider()
		if flowDir != "" {
			n, err := flows.LoadDirectory(flowDir)
			if err != nil {
				return err
			}
			logger.Info("flows loaded", "count", n, "dir", flowDir)
		}

		store, locker, closeStore, err := buildStore(cfg.Storage)
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer closeStore()
		}

		promReg := prometheus.NewRegistry()

		engineOpts := []flowmachine.Option{
			flowmachine.WithStore(store),
			flowmachine.WithLogger(logger),
			flowmachine.WithMetricsRegistry(promReg),
			flowmachine.WithMaxDepth(cfg.Engine.MaxDepth),
			flowmachine.WithDefaultTTL(cfg.Engine.DefaultTTL.Std()),
			flowmachine.WithSweepInterval(cfg.Engine.SweepInterval.Std()),
		}
		if locker != nil {
			engineOpts = append(engineOpts, flowmachine.WithLocker(locker))
		}

		engine, err := flowmachine.New(flows, engineOpts...)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if store != nil {
			restored, err := engine.Hydrate(ctx)
			if err != nil {
				logger.Warn("session hydration incomplete", "err", err)
			} else {
				logger.Info("sessions hydrated", "count", restored)
			}
		}
		engine.StartSweeper(ctx)

		srv := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: httpadapter.NewHandler(engine, promReg, logger),
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", srv.Addr, "backend", cfg.Storage.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutdown started", "signal", sig.String())
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("force close: %w", err)
				}
			}
			logger.Info("server stopped")
		}
		return nil
	},
}

// buildStore constructs the configured session store, wrapping it with
// at-rest variable encryption when a key is configured. The redis backend
// additionally yields a conversation locker sharing the store's connection
// pool. The returned close function is nil for the memory backend.
func buildStore(cfg config.StorageConfig) (ports.SessionStore, ports.ConversationLocker, func() error, error) {
	store, locker, closeStore, err := buildBackend(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.EncryptionKey == "" {
		return store, locker, closeStore, nil
	}

	key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode encryption key: %w", err)
	}
	wrapped, err := encrypted.New(store, encrypted.Config{ActiveKey: key})
	if err != nil {
		return nil, nil, nil, err
	}
	return wrapped, locker, closeStore, nil
}

func buildBackend(cfg config.StorageConfig) (ports.SessionStore, ports.ConversationLocker, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return memory.NewStore(), nil, nil, nil
	case "redis":
		store := redisadapter.New(cfg.RedisAddr, "", 0)
		locker := redisadapter.NewLocker(store.Client(), "")
		return store, locker, store.Close, nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		store, err := sqliteadapter.New(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return store, nil, db.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("flows", "", "Directory of flow definition JSON files to load at startup")
}
