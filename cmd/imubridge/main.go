// cmd/imubridge/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/imu-bridge/internal/app"
	"github.com/tamzrod/imu-bridge/internal/config"
	"github.com/tamzrod/imu-bridge/internal/logger"
	"github.com/tamzrod/imu-bridge/internal/publish"
	"github.com/tamzrod/imu-bridge/internal/server"
	"github.com/tamzrod/imu-bridge/internal/status"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: imubridge <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	config.Normalize(cfg)

	zl, err := logger.New(cfg.Bridge.Log.File, cfg.Bridge.Log.Level)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	os.Exit(run(cfg.Bridge, zl))
}

func run(b config.BridgeConfig, log *zap.Logger) int {
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Transport
	// --------------------

	driver, err := app.BuildDriver(b, log)
	if err != nil {
		log.Error("driver build failed", zap.String("driver", b.Driver), zap.Error(err))
		return exitCode(err)
	}

	// --------------------
	// Publishers
	// --------------------

	var hub *publish.Hub
	if b.Publish.HTTP.Listen != "" {
		hub = publish.NewHub(log)
	}

	fanout, err := publish.Build(b.Publish, hub, os.Stdout)
	if err != nil {
		log.Error("publisher build failed", zap.Error(err))
		return exitCode(err)
	}
	defer func() {
		if err := fanout.Close(); err != nil {
			log.Warn("publisher close failed", zap.Error(err))
		}
	}()

	// --------------------
	// App + HTTP surface
	// --------------------

	a, err := app.New(driver, app.BuildOptions(b, fanout), log)
	if err != nil {
		log.Error("app build failed", zap.Error(err))
		return exitCode(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })

	if hub != nil {
		srv := server.New(a, hub, log)
		g.Go(func() error { return srv.Serve(gctx, b.Publish.HTTP.Listen) })
	}

	a.StartScan(gctx)

	log.Info("imubridge started",
		zap.String("driver", b.Driver),
		zap.Bool("auto_open", b.AutoOpen),
		zap.Int("publishers", fanout.Len()),
	)

	if err := g.Wait(); err != nil {
		log.Error("stopped with error", zap.Error(err))
		return exitCode(err)
	}

	log.Info("imubridge stopped")
	return 0
}

// exitCode maps err to a process exit status.
func exitCode(err error) int {
	code := status.Code(err)
	if code > 255 {
		return 1
	}
	return int(code)
}
