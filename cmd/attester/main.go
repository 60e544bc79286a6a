package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"

	"github.com/stablebridge/gateway-minter/internal/config"
	"github.com/stablebridge/gateway-minter/internal/kms"
	"github.com/stablebridge/gateway-minter/internal/signer"
)

func main() {
	defer memguard.Purge()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Attester signer starting (env=%s, socket=%s)\n", cfg.Env, cfg.Signer.SocketPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kmsClient, err := kms.New(ctx, cfg.Signer.AWSRegion, cfg.LocalStackEndpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create kms client: %v\n", err)
		os.Exit(1)
	}

	ttl := time.Duration(cfg.Signer.SessionTTLSec) * time.Second
	session := signer.NewSessionManager(ttl)

	srv, err := signer.New(cfg.Signer.SocketPath, signer.NewHandler(session, kmsClient))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create signer server: %v\n", err)
		os.Exit(1)
	}

	// Run the server in a goroutine so we can wait for shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	fmt.Println("Attester signer ready — listening on UDS")

	select {
	case <-ctx.Done():
		fmt.Println("Attester signer shutting down gracefully...")
		session.Destroy()
		srv.GracefulStop()
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "signer server error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("Attester signer stopped")
}
