package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/lazypower/affinity/internal/config"
	"github.com/lazypower/affinity/internal/engine"
	"github.com/lazypower/affinity/internal/rpc"
	"github.com/lazypower/affinity/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()

	be, desc, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	eng := engine.New(be, engine.Options{
		Archetype: cfg.Engine.Archetype,
		Seed:      cfg.Engine.Seed,
		Log:       be,
	})
	eng.StartFlushTimer(cfg.Engine.FlushInterval)

	srv := server.New(eng, be, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	var grpcServer *grpc.Server
	if cfg.RPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.RPC.Addr)
		if err != nil {
			return fmt.Errorf("listen grpc %s: %w", cfg.RPC.Addr, err)
		}
		grpcServer = grpc.NewServer()
		rpc.Register(grpcServer, eng)
		go func() {
			fmt.Fprintf(os.Stderr, "  grpc: %s\n", cfg.RPC.Addr)
			if err := grpcServer.Serve(lis); err != nil {
				fmt.Fprintf(os.Stderr, "grpc server error: %v\n", err)
			}
		}()
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "affinity serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  store: %s\n", desc)
		fmt.Fprintf(os.Stderr, "  flush: every %s\n", cfg.Engine.FlushInterval)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	shutdownErr := httpServer.Shutdown(ctx)

	// Final write-behind pass once no request can touch the engine.
	eng.Stop()
	if n, err := eng.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "final flush: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "  flushed %d relationships\n", n)
	}
	return shutdownErr
}
