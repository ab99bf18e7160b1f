package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/claude/healthtrack/internal/app"
	"github.com/claude/healthtrack/internal/config"
	"github.com/claude/healthtrack/internal/mcp"
	"github.com/claude/healthtrack/internal/models"
	"github.com/claude/healthtrack/internal/storage"
	"github.com/claude/healthtrack/internal/telemetry"
	"github.com/claude/healthtrack/internal/upload"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "read metrics and print the payload without uploading")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve MCP over stdio against a remote daemon (requires -server)")
	serverURL := flag.String("server", "", "healthtrack daemon URL for -mcp-stdio (e.g. http://healthtrack.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("HEALTHTRACK_AUTH_API_KEY"), "daemon API key for -mcp-stdio")
	version := flag.Bool("version", false, "print version and exit")
	flag.Usage = func() { usage(flag.CommandLine.Output()) }
	flag.Parse()

	if *version {
		fmt.Println("healthtrack-sync", Version)
		return
	}

	if *mcpStdio {
		if *serverURL == "" {
			fmt.Fprintf(os.Stderr, "Error: -server is required with -mcp-stdio\n")
			os.Exit(1)
		}
		// stdout carries the protocol.
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
		s := mcp.New(mcp.NewHTTPClient(*serverURL, *apiKey), Version, log)
		if err := mcpserver.ServeStdio(s); err != nil {
			log.Error("mcp stdio server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := cfg.Log.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, log, telemetry.Noop{})
	if err != nil {
		log.Error("failed to build sync pipeline", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	if !*dryRun {
		cfgErr := func() error {
			sc, err := c.Store.GetSyncConfig(ctx)
			if err != nil {
				return err
			}
			return sc.Validate()
		}()
		if cfgErr != nil {
			log.Error("sync not configured", "error", cfgErr)
			os.Exit(1)
		}
	}

	snap := c.Reader.ReadSnapshot(ctx)
	if *dryRun {
		log.Info("DRY RUN mode: payload read but not uploaded")
		fmt.Println(string(snap.Payload()))
		return
	}

	if err := c.Store.SaveMetrics(ctx, models.CachedFromSnapshot(snap, snap.Time())); err != nil {
		log.Warn("caching metrics", "error", err)
	}

	uploadErr := c.Uploader.Upload(ctx, snap)
	printStatus(ctx, c.Store, uploadErr)
	if uploadErr != nil {
		switch {
		case errors.Is(uploadErr, upload.ErrConfig):
			log.Error("sync not configured", "error", uploadErr)
		default:
			log.Error("upload failed", "error", uploadErr)
		}
		os.Exit(1)
	}
	log.Info("upload complete")
}

const daemonNote = "Does not take the healthtrack daemon's sync lock: do not run it on a host where the daemon is syncing."

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: healthtrack-sync [-config file] [-dry-run]\n")
	fmt.Fprintf(w, "       healthtrack-sync -mcp-stdio -server <URL> [-api-key key]\n\n")
	fmt.Fprintf(w, "Reads today's metrics once and uploads them.\n%s\n\n", daemonNote)
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}

func printStatus(ctx context.Context, store storage.StatusStore, uploadErr error) {
	st, err := store.GetStatus(context.WithoutCancel(ctx))
	if err != nil || st == nil {
		return
	}
	fmt.Println()
	fmt.Println("=== Upload Status ===")
	fmt.Printf("  State:      %s\n", st.State)
	fmt.Printf("  Timestamp:  %s\n", st.Timestamp.Format("2006-01-02 15:04:05"))
	if st.Detail != nil {
		fmt.Printf("  Detail:     %s\n", *st.Detail)
	}
	fmt.Printf("  Payload:    %s\n", st.LastPayload)
	if errors.Is(uploadErr, upload.ErrConfig) {
		fmt.Println("  (status unchanged: sync is not configured)")
	}
	fmt.Println()
}
