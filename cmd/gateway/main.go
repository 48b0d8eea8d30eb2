package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forgegate.dev/internal/artifact"
	"forgegate.dev/internal/audit"
	"forgegate.dev/internal/config"
	"forgegate.dev/internal/gateway"
	"forgegate.dev/internal/httpapi"
	"forgegate.dev/internal/market"
	"forgegate.dev/internal/obs"
	"forgegate.dev/internal/protect"
	"forgegate.dev/internal/ratelimit"
	"forgegate.dev/internal/rbac"
	"forgegate.dev/internal/sandbox"
	"forgegate.dev/internal/scanner"
	"forgegate.dev/internal/storage"
	"forgegate.dev/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Durable store when a DSN is configured, memory otherwise
	var (
		rbacStore rbac.Store = rbac.NewMemoryStore()
		pgStore   *pg.Store
	)
	if cfg.PGDSN != "" {
		pgStore, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		rbacStore = pgStore
	}

	hub := audit.NewHub()
	var sink audit.Sink = audit.NewLogSink(hub)
	if pgStore != nil {
		sink = pg.NewAuditSink(pgStore.DB(), sink)
	}

	authority, err := rbac.NewAuthority(rbacStore, cfg.TokenSecret,
		rbac.WithTokenTTL(cfg.TokenTTL),
		rbac.WithAuditSink(sink),
	)
	if err != nil {
		log.Fatalf("authority: %v", err)
	}

	signer, err := artifact.NewSigner(cfg.SigningSecret)
	if err != nil {
		log.Fatalf("signer: %v", err)
	}

	codeScanner := scanner.New(scanner.Config{ComplexityThreshold: cfg.ComplexityThreshold})
	validator := artifact.NewValidator(artifact.ValidatorConfig{
		RequireSignature: cfg.RequireSignature,
		Signer:           signer,
		Scanner:          codeScanner,
	})

	runner := sandbox.NewProcessRunner(sandbox.WithLimits(sandbox.Limits{
		MemoryBytes:  cfg.SandboxMemoryBytes,
		CPUSeconds:   cfg.SandboxCPUSeconds,
		MaxProcesses: cfg.SandboxMaxProcesses,
	}))

	protector, err := protect.NewService(protect.EnvKeys{Prefix: "FORGEGATE_KEY_"})
	if err != nil {
		log.Fatalf("protect: %v", err)
	}

	var marketClient market.Client
	if cfg.MarketplaceURL != "" {
		marketClient, err = market.NewHTTPClient(cfg.MarketplaceURL, nil)
		if err != nil {
			log.Fatalf("marketplace: %v", err)
		}
	}

	gw, err := gateway.New(gateway.Config{
		Authority:     authority,
		Validator:     validator,
		Scanner:       codeScanner,
		Runner:        runner,
		Limiter:       ratelimit.New(ratelimit.WithLimits(cfg.RatePerMinute, cfg.RateBurst)),
		Signer:        signer,
		Sink:          sink,
		Storage:       storage.NewMemory(),
		Market:        marketClient,
		EnableSandbox: cfg.EnableSandbox,
		EnableScan:    cfg.EnableScan,
	})
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	var probe httpapi.ReadyProbe
	if pgStore != nil {
		probe.DB = pgStore.DB()
	}
	api := httpapi.New(httpapi.Options{
		Gateway:       gw,
		Authority:     authority,
		Protector:     protector,
		Hub:           hub,
		Probe:         probe,
		Version:       version,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		RatePerSecond: cfg.HTTPRatePerSecond,
		RateBurst:     cfg.HTTPRateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting forgegate %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
