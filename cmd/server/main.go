/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payout reconciliation engine, either as an
  HTTP server or as a one-shot run for a single calendar day.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load YAML configuration (credentials, paths, policy)
  3. Open the ledger store
  4. Wire timesheet provider and payment gateway clients
  5. Serve the API, or perform the one-shot run and exit

COMMAND-LINE FLAGS:
  -config  Configuration file path (default: config.yaml)
  -port    HTTP server port (default: 8080)
  -once    Run one reconciliation and exit instead of serving
  -date    Day to reconcile in -once mode, YYYY-MM-DD (default: today)

ONE-SHOT MODE:
  ./server -config=config.yaml -once -date=2026-08-30
  Exit code 1 on fatal errors (bad config, malformed rate source) or when
  the run reports reconciliation gaps; per-entry failures are listed on
  stdout but do not change the exit code - the run completed.

GRACEFUL SHUTDOWN (server mode):
  On SIGINT/SIGTERM: stop accepting connections, wait for active requests
  (30s timeout), close the store, exit.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration schema
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/payout-engine/api"
	"github.com/warp/payout-engine/config"
	"github.com/warp/payout-engine/engine"
	"github.com/warp/payout-engine/payment"
	"github.com/warp/payout-engine/rates"
	"github.com/warp/payout-engine/store/csvledger"
	"github.com/warp/payout-engine/store/sqlite"
	"github.com/warp/payout-engine/timesheet"
)

func main() {
	configPath := flag.String("config", "config.yaml", "configuration file")
	port := flag.Int("port", 8080, "HTTP server port")
	once := flag.Bool("once", false, "run one reconciliation and exit")
	date := flag.String("date", "", "day to reconcile in -once mode (YYYY-MM-DD, default today)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	ts, err := cfg.Provider.Credentials().TokenSource(ctx)
	if err != nil {
		log.Fatalf("Failed to authorize with time-tracking provider: %v", err)
	}
	timesheets := timesheet.NewProviderClient(ctx, cfg.Provider.APIBaseURL, ts)

	executor := payment.NewGateway(payment.GatewayConfig{
		BaseURL: cfg.Payment.GatewayURL,
		APIKey:  cfg.Payment.APIKey,
		Timeout: time.Duration(cfg.Payment.TimeoutSeconds) * time.Second,
	})

	if *once {
		os.Exit(runOnce(ctx, cfg, timesheets, executor, *date))
	}

	// Server mode keeps run history, which only the sqlite backend stores.
	if cfg.Ledger.Backend != "sqlite" {
		log.Fatalf("Server mode requires ledger backend %q, got %q", "sqlite", cfg.Ledger.Backend)
	}
	store, err := sqlite.New(cfg.Ledger.Path)
	if err != nil {
		log.Fatalf("Failed to initialize ledger store: %v", err)
	}
	defer store.Close()

	handler := api.NewHandler(store, timesheets, executor, cfg.Rates.Path, cfg.Eligibility())
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // a run pays a whole day's batch
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Payout engine listening on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// runOnce reconciles a single day and prints the report.
func runOnce(ctx context.Context, cfg *config.Config, timesheets timesheet.Client, executor engine.Executor, date string) int {
	day := time.Now()
	if date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			log.Printf("Invalid -date %q: %v", date, err)
			return 1
		}
		day = parsed
	}

	directory, err := rates.LoadFile(cfg.Rates.Path)
	if err != nil {
		// Without trusted rates nothing may be paid.
		log.Printf("Aborting run: %v", err)
		return 1
	}

	ledger, closeLedger, err := openLedger(cfg)
	if err != nil {
		log.Printf("Failed to open ledger: %v", err)
		return 1
	}
	defer closeLedger()

	start, end := timesheet.DayWindow(day, time.Local)
	entries, err := timesheets.ListTimesheets(ctx, start, end)
	if err != nil {
		log.Printf("Timesheet fetch failed: %v", err)
		return 1
	}

	reconciler := engine.NewReconciler(executor, ledger, cfg.Eligibility())
	report, err := reconciler.Run(ctx, directory, entries)
	if err != nil {
		log.Printf("Run failed: %v", err)
		return 1
	}

	printReport(day, report)
	if len(report.Gaps) > 0 {
		return 1
	}
	return 0
}

func openLedger(cfg *config.Config) (engine.Ledger, func(), error) {
	switch cfg.Ledger.Backend {
	case "sqlite":
		store, err := sqlite.New(cfg.Ledger.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		ledger, err := csvledger.Open(cfg.Ledger.Path)
		if err != nil {
			return nil, nil, err
		}
		return ledger, func() { ledger.Close() }, nil
	}
}

func printReport(day time.Time, report *engine.Report) {
	fmt.Printf("Reconciliation for %s: paid=%d skipped=%d failed=%d\n",
		day.Format("2006-01-02"), report.Paid, report.Skipped, report.Failed)
	for _, f := range report.Failures {
		fmt.Printf("  FAILED  worker=%s receiver=%s reason=%s %s\n",
			f.WorkerID, f.ReceiverID, f.Reason, f.Detail)
	}
	for _, g := range report.Gaps {
		fmt.Printf("  GAP     worker=%s receiver=%s amount=%s UNRECORDED PAYMENT - follow up manually\n",
			g.WorkerID, g.ReceiverID, g.Amount)
	}
}
