package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/engine"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, st, idx, eng, err := setup()
	if err != nil {
		return err
	}
	defer idx.Close()

	// Scheduled maintenance. The cron job and the HTTP endpoint share
	// one engine, so its cycle lock keeps runs from overlapping.
	if cfg.Maintenance.Schedule != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.Maintenance.Schedule, func() {
			report, err := eng.RunGC(context.Background(), cfg.Maintenance.Execute)
			if errors.Is(err, engine.ErrCycleRunning) {
				log.Printf("gc: scheduled run skipped, cycle in progress")
				return
			}
			if err != nil {
				log.Printf("gc: scheduled run: %v", err)
				return
			}
			log.Printf("gc: scheduled run done (dry=%v): scanned=%d demoted=%d dust=%d trashed=%d cleaned=%d",
				report.DryRun, report.Scanned, report.Demoted, report.MarkedDust, report.Trashed, report.CleanedTrash)
		})
		if err != nil {
			return fmt.Errorf("schedule gc: %w", err)
		}
		c.Start()
		defer c.Stop()
		fmt.Fprintf(os.Stderr, "  gc schedule: %s (execute: %v)\n", cfg.Maintenance.Schedule, cfg.Maintenance.Execute)
	}

	srv := server.New(st, idx, eng, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "essence serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  store: %s\n", st.Root())
		fmt.Fprintf(os.Stderr, "  index: %s\n", idx.Path())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
