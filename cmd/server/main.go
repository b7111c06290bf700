/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open the store (SQLite by default, PostgreSQL with -pg)
  3. Wire handler, engine, and workflow adapters
  4. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: stock.db, ":memory:" works)
  -pg       PostgreSQL DSN; when set, -db is ignored
  -oversell allow balances to go negative (default: reject)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  in-flight requests, close the store, exit.
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

	"github.com/warp/stock-engine/api"
	"github.com/warp/stock-engine/ledger"
	"github.com/warp/stock-engine/store/postgres"
	"github.com/warp/stock-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "stock.db", "SQLite database path")
	pgDSN := flag.String("pg", "", "PostgreSQL DSN (overrides -db)")
	oversell := flag.Bool("oversell", false, "allow balances to go negative")
	flag.Parse()

	var (
		store   ledger.Store
		closeFn func()
	)
	if *pgDSN != "" {
		pg, err := postgres.New(context.Background(), *pgDSN)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		store, closeFn = pg, pg.Close
	} else {
		sq, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open SQLite database: %v", err)
		}
		store, closeFn = sq, func() { sq.Close() }
	}
	defer closeFn()

	var opts []ledger.RecorderOption
	if *oversell {
		opts = append(opts, ledger.AllowNegativeBalance())
	}

	handler := api.NewHandler(store, opts...)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Stock engine listening on http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
