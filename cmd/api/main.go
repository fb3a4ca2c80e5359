package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"futeurvault.org/internal/directory"
	"futeurvault.org/internal/httpapi"
	"futeurvault.org/internal/notify"
	"futeurvault.org/internal/obs"
	"futeurvault.org/internal/store/pg"
	"futeurvault.org/internal/vault"
)

var (
	version = "1.2.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	master := os.Getenv("FUTEURVAULT_MASTER_KEY")
	if master == "" {
		log.Fatal("FUTEURVAULT_MASTER_KEY is required")
	}
	keys, err := vault.NewKeyring([]byte(master))
	if err != nil {
		log.Fatalf("keyring: %v", err)
	}

	// With a DSN we run on PostgreSQL; without one the in-memory store keeps
	// local development self-contained.
	var (
		store vault.Store
		dir   directory.Directory
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("FUTEURVAULT_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		dir = pg.NewDirectory(pgStore.DB())
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Print("FUTEURVAULT_PG_DSN not set, using in-memory store")
		store = vault.NewMemory()
		dir = directory.NewMemory()
	}

	opts := []vault.ServiceOption{}
	if relay := emailRelayFromEnv(); relay != nil {
		opts = append(opts, vault.WithRelay(relay))
	}
	svc := vault.NewService(store, keys, dir, opts...)

	addr := os.Getenv("FUTEURVAULT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	api := httpapi.New(probe, version, svc)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting futeurvault-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

// emailRelayFromEnv builds the share-notification relay when the EmailJS
// credentials are configured; otherwise grants stay silent.
func emailRelayFromEnv() notify.Relay {
	cfg := notify.EmailConfig{
		Endpoint:   os.Getenv("FUTEURVAULT_EMAIL_ENDPOINT"),
		ServiceID:  os.Getenv("FUTEURVAULT_EMAIL_SERVICE_ID"),
		TemplateID: os.Getenv("FUTEURVAULT_EMAIL_TEMPLATE_ID"),
		PublicKey:  os.Getenv("FUTEURVAULT_EMAIL_PUBLIC_KEY"),
	}
	if cfg.ServiceID == "" && cfg.TemplateID == "" && cfg.PublicKey == "" {
		return nil
	}
	relay, err := notify.NewEmailRelay(cfg)
	if err != nil {
		log.Fatalf("email relay: %v", err)
	}
	return relay
}
