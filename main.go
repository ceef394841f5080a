package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danthegoodman1/tablesweep/crdb"
	"github.com/danthegoodman1/tablesweep/gologger"
	"github.com/danthegoodman1/tablesweep/http_server"
	"github.com/danthegoodman1/tablesweep/migrations"
	"github.com/danthegoodman1/tablesweep/pgworkspace"
	"github.com/danthegoodman1/tablesweep/redisbridge"
	"github.com/danthegoodman1/tablesweep/snapshot"
	"github.com/danthegoodman1/tablesweep/store"
	"github.com/danthegoodman1/tablesweep/sweeper"
	"github.com/danthegoodman1/tablesweep/utils"
	"github.com/danthegoodman1/tablesweep/workspace"
)

var logger = gologger.NewLogger()

func main() {
	logger.Debug().Msg("starting tablesweep")
	ctx := logger.WithContext(context.Background())

	gw, err := openWorkspace(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("error opening workspace")
		os.Exit(1)
	}

	var bridge *redisbridge.RedisBridge
	if utils.REDIS_ADDR != "" {
		bridge, err = redisbridge.NewRedisBridge(ctx, redisbridge.Options{
			Addr:     utils.REDIS_ADDR,
			Password: utils.REDIS_PASSWORD,
		})
		if err != nil {
			logger.Error().Err(err).Msg("error connecting to redis")
			os.Exit(1)
		}
		gw = workspace.WithBridge(gw, bridge)
	}

	local, err := openLocalCache(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("error opening local snapshot cache")
		os.Exit(1)
	}

	syncTimeout := time.Second * time.Duration(utils.GetEnvOrDefaultInt("SNAPSHOT_SYNC_TIMEOUT_SEC", 5))
	st := store.New(local, gw, store.WithSyncTimeout(syncTimeout))
	st.OnChange(func(snap *snapshot.Snapshot) {
		if snap == nil {
			logger.Info().Msg("snapshot cleared by another process")
			return
		}
		logger.Info().Str("label", snap.Label).Str("timestamp", snap.Timestamp).Msg("received snapshot from another process")
	})
	if snap, err := st.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not load last snapshot")
	} else if snap != nil {
		logger.Info().Str("label", snap.Label).Int("tables", len(snap.Tables)).Msg("loaded last snapshot")
	}
	stopWatch, err := st.Watch(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("error watching snapshot key")
		os.Exit(1)
	}

	httpServer := http_server.StartHTTPServer(sweeper.New(gw, st))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn().Msg("received shutdown signal!")

	// For AWS ALB needing some time to de-register pod
	// Convert the time to seconds
	sleepTime := utils.GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
	logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

	time.Sleep(time.Second * time.Duration(sleepTime))
	logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server")
	} else {
		logger.Info().Msg("successfully shutdown HTTP server")
	}

	stopWatch()
	if err := st.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown snapshot store")
	}
	if bridge != nil {
		if err := bridge.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown redis bridge")
		}
	}
	crdb.Close()
}

func openWorkspace(ctx context.Context) (workspace.Gateway, error) {
	switch utils.WORKSPACE_BACKEND {
	case "memory":
		logger.Warn().Msg("using in-memory workspace, nothing survives a restart")
		return workspace.NewMemory(), nil
	case "postgres":
		if utils.AUTO_MIGRATE == "1" {
			if _, err := migrations.RunMigrations(utils.CRDB_DSN); err != nil {
				return nil, fmt.Errorf("error running migrations: %w", err)
			}
		} else if err := migrations.CheckMigrations(utils.CRDB_DSN); err != nil {
			return nil, fmt.Errorf("error checking migrations: %w", err)
		}
		if err := crdb.ConnectToDB(ctx, utils.CRDB_DSN); err != nil {
			return nil, fmt.Errorf("error connecting to CRDB: %w", err)
		}
		return pgworkspace.New(crdb.PGPool), nil
	default:
		return nil, fmt.Errorf("unknown WORKSPACE_BACKEND %q", utils.WORKSPACE_BACKEND)
	}
}

func openLocalCache(ctx context.Context) (store.LocalCache, error) {
	switch utils.LOCAL_CACHE {
	case "disk":
		return store.NewDiskCache(utils.SNAPSHOT_CACHE_DIR)
	case "sqlite":
		if err := os.MkdirAll(utils.SNAPSHOT_CACHE_DIR, 0o755); err != nil {
			return nil, fmt.Errorf("error in os.MkdirAll: %w", err)
		}
		return store.NewSQLiteCache(ctx, filepath.Join(utils.SNAPSHOT_CACHE_DIR, "snapshots.db"))
	default:
		return nil, fmt.Errorf("unknown LOCAL_CACHE %q", utils.LOCAL_CACHE)
	}
}
