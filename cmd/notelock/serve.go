package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notelock/core/internal/api"
	"github.com/notelock/core/internal/config"
	"github.com/notelock/core/internal/core"
	"github.com/notelock/core/internal/dispatch"
	"github.com/notelock/core/internal/gateway"
	"github.com/notelock/core/internal/logging"
	"github.com/notelock/core/internal/messaging"
	"github.com/notelock/core/internal/store"
	bgsync "github.com/notelock/core/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the core",
	Long: `Run the notelock core until interrupted or told to shut down over
the command channel (app:shutdown).

The core opens its local database, restores any persisted session, starts
the background sync workers (disarmed until app:start-sync), and serves
commands over the in-process message channel plus the websocket gateway.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config) error {
	log, err := logging.New(cfg.GetString(config.KeyLogLevel), cfg.GetString(config.KeyLogFile))
	if err != nil {
		return err
	}
	defer log.Sync()

	messaging.SetEventChannel(cfg.GetString(config.KeyMessagingEvents))

	db, err := store.Open(cfg.GetString(config.KeyDBPath))
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	remote := api.NewClient(cfg.GetString(config.KeyAPIEndpoint))

	c := core.New(cfg, db, remote, log)
	c.SetNotify(func(name string, data any) {
		if err := messaging.Event(name, data); err != nil {
			log.Warn("failed to raise event", zap.String("event", name), zap.Error(err))
		}
	})
	if err := c.RestoreSession(ctx); err != nil {
		log.Warn("session restore failed", zap.Error(err))
	}

	exec := core.NewExecutor(64)
	defer exec.Stop()

	disp := dispatch.New(c, log)
	loop := messaging.NewLoop(messaging.New(cfg), disp, exec, log)
	c.SetOnShutdown(func() {
		if err := loop.Stop(); err != nil {
			log.Error("failed to stop messaging loop", zap.Error(err))
		}
	})

	notify := func(name string, data any) {
		if err := messaging.Event(name, data); err != nil {
			log.Warn("failed to raise event", zap.String("event", name), zap.Error(err))
		}
	}
	outgoingDelay := time.Duration(cfg.GetInt(config.KeyOutgoingDelayMS)) * time.Millisecond
	incomingDelay := time.Duration(cfg.GetInt(config.KeyIncomingDelayMS)) * time.Millisecond
	syncers := []bgsync.Syncer{
		bgsync.NewOutgoing(c.SyncConfig(), db, remote, c.Token, notify, outgoingDelay, log),
		bgsync.NewIncoming(c.SyncConfig(), db, remote, c.Token, notify, incomingDelay, log),
	}
	for _, s := range syncers {
		if err := c.Runner().Spawn(s); err != nil {
			return err
		}
	}

	watcher, err := config.Watch(cfg, func(cfg *config.Config) {
		remote.SetEndpoint(cfg.GetString(config.KeyAPIEndpoint))
	}, log)
	if err != nil {
		log.Warn("config watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	gw := gateway.New(
		fmt.Sprintf("localhost:%d", cfg.GetInt(config.KeyGatewayPort)),
		cfg.GetString(config.KeyMessagingChannel), log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gw.Start(gctx)
	})
	g.Go(func() error {
		// Preempt the blocking receive when a signal (or the gateway
		// failing) cancels the context.
		<-gctx.Done()
		return loop.Stop()
	})

	// The loop runs outside the group so its clean exit (app:shutdown) tears
	// everything else down instead of being waited on.
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run() }()

	log.Info("core running")
	loopErr := <-loopDone
	stop()

	if err := g.Wait(); err != nil {
		log.Warn("shutdown finished with error", zap.Error(err))
	}

	c.ShutdownSync(true)
	exec.Stop()

	log.Info("core stopped")
	return loopErr
}
