package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chatconnect/chatconnect/internal/api"
	"github.com/chatconnect/chatconnect/internal/config"
	"github.com/chatconnect/chatconnect/internal/messages"
	"github.com/chatconnect/chatconnect/internal/pairing"
	"github.com/chatconnect/chatconnect/internal/profile"
	"github.com/chatconnect/chatconnect/internal/stats"
	"github.com/chatconnect/chatconnect/internal/store"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr           string
	dsn            string
	redisAddr      string
	appId          string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	// .env is optional; flags and environment take precedence
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	flag.StringVar(&addr, "addr", envOr("CHATCONNECT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("CHATCONNECT_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&redisAddr, "redis-addr", envOr("CHATCONNECT_REDIS_ADDR", ""), "redis address for cross-instance change notifications (optional)")
	flag.StringVar(&appId, "app-id", envOr("CHATCONNECT_APP_ID", "chatconnect-app"), "application namespace for store paths")
	flag.StringVar(&signingKey, "signing-key", envOr("CHATCONNECT_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatconnect] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, redisAddr, appId, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	docStore, err := store.NewPGStore(logger, cfg.DatabaseDSN, rdb)
	if err != nil {
		logger.Fatal("store:", err)
	}
	defer func() {
		if err := docStore.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	for _, metric := range []string{
		stats.RoomsCreated,
		stats.RoomsJoined,
		stats.RoomsDeleted,
		stats.JoinFailures,
		stats.MessagesSent,
		stats.ActiveSubscriptions,
		stats.ActiveConnections,
	} {
		statsUpdater.RegisterMetric(metric)
	}

	paths := store.NewPaths(cfg.AppId)

	profileService := profile.NewService(logger, docStore, paths)
	pairingService := pairing.NewService(logger, docStore, paths, profileService, statsUpdater)
	messageService, err := messages.NewService(logger, docStore, paths, statsUpdater)
	if err != nil {
		logger.Fatal("messages:", err)
	}

	srv := api.NewServer(mux, logger, profileService, pairingService, messageService, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
