package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/horizon/internal/alert"
	"github.com/lazypower/horizon/internal/horizon"
	"github.com/lazypower/horizon/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scanner and the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc, err := newScanner(ctx, cfg, db)
	if err != nil {
		return err
	}
	base := sc.EstablishBaseline()
	fmt.Fprintf(os.Stderr, "  baseline: %d patterns, %d resonance samples\n", base.PatternCount, base.Samples)

	srv := server.New(sc, db, VersionString())
	srv.SetIngestLimit(cfg.Server.IngestRate, cfg.Server.IngestBurst)

	var sinks alert.Multi
	if cfg.Alerts.Log {
		sinks = append(sinks, alert.LogSink{})
	}
	if cfg.Alerts.WebSocket {
		hub := alert.NewHub()
		go hub.Run(ctx)
		srv.SetHub(hub)
		sinks = append(sinks, hub)
	}
	if len(sinks) > 0 {
		sc.SetAlertSink(sinks)
	}

	if keep := cfg.Retention(); keep > 0 {
		db.StartRetention(ctx, keep, time.Hour)
	}

	sched := horizon.NewScheduler(sc, cfg.Engine.ScanInterval())
	if err := sched.Start(ctx); err != nil {
		return err
	}

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "horizon serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", db.Path)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	var serveErr error
	select {
	case <-done:
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	case serveErr = <-errc:
		fmt.Fprintf(os.Stderr, "server error: %v\n", serveErr)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	sched.Stop(shutdownCtx)
	if err := sc.SaveState(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	cancel()
	return serveErr
}
