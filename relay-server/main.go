package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rook-studio/rook-sync/internal/auth"
	"github.com/rook-studio/rook-sync/internal/config"
	"github.com/rook-studio/rook-sync/internal/relay"
	"golang.org/x/crypto/acme/autocert"
)

func main() {
	// --- 1. Configuration Loading ---
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("FATAL: Error loading configuration: %v", err)
	}

	log.Printf("INFO: Configuration loaded successfully from %s", *configPath)
	log.Printf("INFO: Relay Address: %s", cfg.ListenAddress)

	// --- 2. TLS Setup ---
	var tlsConfig *tls.Config

	switch {
	case cfg.AutomaticTLS():
		log.Println("INFO: Relay TLS mode: Automatic (Let's Encrypt)")

		cacheDir := cfg.AcmeCacheDir
		if cacheDir == "" {
			cacheDir = "acme_certs"
		}
		if err := os.MkdirAll(cacheDir, 0700); err != nil {
			log.Fatalf("FATAL: Could not create ACME cache directory %s: %v", cacheDir, err)
		}
		log.Printf("INFO: ACME certificate cache directory: %s", cacheDir)

		certManager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.PublicHostname),
			Cache:      autocert.DirCache(cacheDir),
		}
		tlsConfig = certManager.TLSConfig()

	case cfg.ManualTLS():
		log.Println("INFO: Relay TLS mode: Manual (from file)")
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			log.Fatalf("FATAL: Failed to load manual TLS certificates: %v", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}

	default:
		log.Println("WARN: Relay TLS disabled; use only behind a terminating proxy or for local development")
	}

	// --- 3. Admission Gate ---
	var validator auth.Validator
	if cfg.AdmissionJWTSecret != "" {
		validator, err = auth.NewValidator(cfg.AdmissionJWTSecret)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize admission validator: %v", err)
		}
		log.Println("INFO: Admission gate enabled (JWT)")
	} else {
		log.Println("INFO: Admission gate disabled; relay is open")
	}

	// --- 4. Cross-node Bridge ---
	var bridge *relay.Bridge
	if cfg.RedisAddress != "" {
		nodeID := uuid.New().String()
		bridge, err = relay.NewBridge(context.Background(), cfg.RedisAddress, nodeID)
		if err != nil {
			log.Fatalf("FATAL: Failed to connect session bridge to %s: %v", cfg.RedisAddress, err)
		}
		log.Printf("INFO: Session bridge enabled via %s (node %s)", cfg.RedisAddress, nodeID)
	}

	// --- 5. Run ---
	r := relay.New(cfg, validator, bridge, tlsConfig)
	r.Run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("INFO: Received signal %s, shutting down...", sig)

	r.Stop()
	if bridge != nil {
		bridge.Close()
	}
	log.Println("INFO: Shutdown complete.")
}
