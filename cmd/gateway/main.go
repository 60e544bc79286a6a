package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"

	"github.com/stablebridge/gateway-minter/internal/config"
	"github.com/stablebridge/gateway-minter/internal/events"
	"github.com/stablebridge/gateway-minter/internal/minter"
	"github.com/stablebridge/gateway-minter/internal/node"
	"github.com/stablebridge/gateway-minter/internal/runtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Gateway Minter node starting (env=%s, domain=%d)\n", cfg.Env, cfg.Node.LocalDomain)

	programID, err := solana.PublicKeyFromBase58(cfg.Node.ProgramID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid program id %q: %v\n", cfg.Node.ProgramID, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := events.NewBroadcaster()

	led := runtime.NewLedger()
	clock := &runtime.Clock{}
	program, err := minter.New(programID, led, clock, runtime.DefaultRent(), hub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create program: %v\n", err)
		os.Exit(1)
	}

	// Event fan-out: Redis persistence plus the WebSocket feed.
	rdb := events.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := rdb.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "redis unreachable at %s: %v\n", cfg.Redis.Addr, err)
		os.Exit(1)
	}
	writer := events.NewRedisWriter(rdb, hub.SubscribeAll())
	go writer.Run(ctx)

	feed := events.NewFeed(events.DefaultFeedConfig())
	go feed.Run(ctx, hub.SubscribeAll())

	api := node.NewAPI(program, feed)
	srv := &http.Server{Addr: cfg.Node.ListenAddr, Handler: api.Mux()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("Gateway Minter listening on %s\n", cfg.Node.ListenAddr)

	select {
	case <-ctx.Done():
		fmt.Println("Gateway Minter shutting down gracefully...")
		srv.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("Gateway Minter stopped")
}
