// Command fmlsandbox serves a local emulation of the FMyLife API backed by
// SQLite. Point a client at it with --base-url or FML_BASE_URL.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alphabot-ai/fmylife/internal/auth"
	"github.com/alphabot-ai/fmylife/internal/config"
	"github.com/alphabot-ai/fmylife/internal/rate"
	"github.com/alphabot-ai/fmylife/internal/sandbox"
	"github.com/alphabot-ai/fmylife/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "TOML config file with a [sandbox] table")
	verbose := flag.Bool("verbose", false, "Log every request")
	flag.Parse()

	file, err := config.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("failed to read config: %v", err)
	}
	cfg, err := config.LoadSandbox(file)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer store.Close()

	limiter := rate.NewMemory()
	authSvc := auth.NewService(store, cfg.TokenTTL,
		auth.WithAutoRegister(cfg.AutoRegister),
		auth.WithStaff(cfg.Staff...),
	)
	server := sandbox.NewServer(store, authSvc, limiter, cfg, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pruneLimiter(ctx, limiter)

	go func() {
		log.Printf("fmlsandbox listening on %s (db %s, quorum %d)", cfg.Addr, cfg.DBPath, cfg.Quorum)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

// pruneLimiter drops expired rate windows once a minute.
func pruneLimiter(ctx context.Context, limiter *rate.MemoryLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}
