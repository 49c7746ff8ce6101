package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/amalg/tttserver/internal/network"
	"github.com/amalg/tttserver/internal/player"
)

func main() {
	port := flag.Int("p", 0, "port to listen on (required)")
	flag.Parse()

	if *port <= 0 {
		fmt.Fprintln(os.Stderr, "usage: server -p <port>")
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	addr := fmt.Sprintf("0.0.0.0:%d", *port)
	players := player.NewRegistry()
	srv := network.NewServer(addr, players)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-sigCh:
			slog.Info("received SIGHUP, shutting down gracefully")
			cancel()
			srv.Clients().ShutdownAll()
			srv.Clients().WaitForEmpty()
			slog.Info("all sessions drained, exiting")
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
