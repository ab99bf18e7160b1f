package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/healthtrack/internal/app"
	"github.com/claude/healthtrack/internal/config"
	"github.com/claude/healthtrack/internal/coordinator"
	"github.com/claude/healthtrack/internal/mcp"
	"github.com/claude/healthtrack/internal/scheduler"
	"github.com/claude/healthtrack/internal/server"
	"github.com/claude/healthtrack/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("healthtrack", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := cfg.Log.NewLogger(os.Stdout)
	log.Info("healthtrack starting", "version", Version)

	ctx := context.Background()
	metrics := telemetry.New(prometheus.DefaultRegisterer)

	c, err := app.Build(ctx, cfg, log, metrics)
	if err != nil {
		log.Error("failed to build sync pipeline", "error", err)
		os.Exit(1)
	}
	defer c.Close()
	log.Info("state store opened", "driver", cfg.State.Driver)

	sched := scheduler.NewTimerScheduler(log,
		scheduler.WithBudget(cfg.Sync.Budget),
		scheduler.WithExpiryLead(cfg.Sync.ExpiryLead),
	)
	coord := coordinator.New(c.Reader, c.Uploader, c.Store, c.Store, sched, log,
		coordinator.WithMetrics(metrics),
		coordinator.WithExpiryGrace(cfg.Sync.ExpiryGrace),
		coordinator.WithMetricCache(c.Store),
	)
	sched.SetHandler(func(t scheduler.Task) {
		_ = coord.HandleTask(t)
	})

	if err := coord.Reschedule(ctx); err != nil {
		log.Error("initial schedule failed", "error", err)
		os.Exit(1)
	}
	if next, ok := coord.NextRun(); ok {
		log.Info("next sync scheduled", "at", next)
	}

	srv := server.New(coord, cfg.Auth.APIKey, log)
	srv.SetMetrics(prometheus.DefaultGatherer)
	srv.SetMCP(mcpserver.NewStreamableHTTPServer(mcp.New(coord, Version, log)))

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "plain (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Sync.Budget+cfg.Sync.ExpiryGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn("background sync still running at exit", "error", err)
	}
	log.Info("server stopped")
}
