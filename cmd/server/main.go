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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/FaithfulHarvest/planning-center-viz/internal/api"
	"github.com/FaithfulHarvest/planning-center-viz/internal/crypto"
	"github.com/FaithfulHarvest/planning-center-viz/internal/monitoring"
	"github.com/FaithfulHarvest/planning-center-viz/internal/store"
	syncsvc "github.com/FaithfulHarvest/planning-center-viz/internal/sync"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		port      = flag.Int("port", 8080, "HTTP server port")
		dbHost    = flag.String("db-host", "localhost", "Database host")
		dbPort    = flag.Int("db-port", 5432, "Database port")
		dbUser    = flag.String("db-user", "admin", "Database user")
		dbPass    = flag.String("db-pass", "securepassword", "Database password")
		dbName    = flag.String("db-name", "planning_center_viz", "Database name")
		redisAddr = flag.String("redis-addr", "localhost:6379", "Redis address")
		encKey    = flag.String("encryption-key", os.Getenv("PCV_ENCRYPTION_KEY"), "Credential encryption key")
	)
	flag.Parse()

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		*dbHost, *dbPort, *dbUser, *dbPass, *dbName)

	st, err := store.Open(dsn, *redisAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer st.Close()

	vault, err := crypto.NewVault(*encKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential vault")
	}

	engine := syncsvc.NewService(st.Tenants(), st.Jobs(), st.Records(), vault)

	monitoring.InitMetrics()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: api.Router(engine),
	}

	go func() {
		log.Info().Msgf("Starting data sync engine on port %d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}
	log.Info().Msg("Server exiting")
}
