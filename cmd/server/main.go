/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the booking engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire ledger, event publisher, and engine
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port              HTTP server port (default: 8080)
  -db                SQLite database path (default: booking.db)
                     Use ":memory:" for an in-memory database
  -claim-window      Validity of a waitlist offer (default: 24h)
  -lock-wait         Cap on per-session/per-package lock waits (default: 5s)
  -min-notice        Cancellation notice window in hours (default: 24)
  -refund            Refund credits on cancellation (default: true)
  -max-reschedules   Reschedules per booking, -1 unlimited (default: 3)
  -pretty            Human-readable log output (default: false)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the event bus and database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/booking.db"

  # Lenient cancellation policy
  ./server -min-notice=2 -max-reschedules=-1

SEE ALSO:
  - api/server.go: Router configuration
  - engine/engine.go: Booking lifecycle
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/warp/booking-engine/api"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/engine"
	"github.com/warp/booking-engine/events"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "booking.db", "SQLite database path")
	claimWindow := flag.Duration("claim-window", 24*time.Hour, "waitlist offer validity")
	lockWait := flag.Duration("lock-wait", 5*time.Second, "cap on lock acquisition waits")
	minNotice := flag.Int("min-notice", 24, "cancellation notice window in hours")
	refund := flag.Bool("refund", true, "refund credits on cancellation")
	maxReschedules := flag.Int("max-reschedules", 3, "reschedules per booking, -1 for unlimited")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *pretty {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Event bus: in-process pub/sub; consumers (notifications, calendar
	// sync) subscribe to the same GoChannel instance.
	pubSub := events.NewGoChannelPubSub(watermill.NopLogger{})
	defer pubSub.Close()
	publisher := events.NewWatermillPublisher(pubSub)

	led := ledger.New(store, *lockWait, log)
	eng := engine.New(store, led, publisher, engine.Config{
		Policy: booking.CancellationPolicy{
			Enabled:        true,
			MinNoticeHours: *minNotice,
			RefundOnCancel: *refund,
			MaxReschedules: *maxReschedules,
		},
		ClaimWindow: *claimWindow,
		LockWait:    *lockWait,
		Logger:      log,
	})

	// Create router
	handler := api.NewHandler(eng, led, store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
