package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SrJCBM/BDD-Avanzada/internal/api"
	"github.com/SrJCBM/BDD-Avanzada/internal/feed"
	"github.com/SrJCBM/BDD-Avanzada/internal/store"
	"github.com/SrJCBM/BDD-Avanzada/internal/tables"
	"github.com/SrJCBM/BDD-Avanzada/pkg/config"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "tablesd",
	Short: "Serve the tables API",
	Long: `tablesd serves generic tables over a key-value store.

Records are created with POST /:table, read with GET /:table/:id, listed
with GET /:table, and bulk loaded from the seed file with POST /seed.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

func init() {
	rootCmd.Flags().StringP("config", "c", os.Getenv("CONFIG_FILE"), "YAML config file (environment only if empty)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	instrumented := store.NewInstrumentedStore(backend)

	hub := feed.NewHub()
	svc := tables.NewService(instrumented,
		tables.WithSeedFile(cfg.SeedFile),
		tables.WithNotifier(hub),
	)

	srv := api.NewServer(svc)
	srv.Metrics = instrumented
	srv.Feed = hub
	grpcSrv := api.NewGRPCServer(svc)
	if leader, ok := backend.(api.Leadership); ok {
		srv.Leader = leader
		grpcSrv.Leader = leader
	}

	errc := make(chan error, 2)

	var gs *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			backend.Close()
			return err
		}
		gs = grpc.NewServer()
		api.RegisterTableServiceServer(gs, grpcSrv)
		go func() {
			log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
			errc <- gs.Serve(lis)
		}()
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s (backend: %s, seed file: %s)", cfg.HTTPAddr, cfg.Backend, cfg.SeedFile)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case err = <-errc:
		log.Printf("Server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hub.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if gs != nil {
		gs.GracefulStop()
	}
	if err := backend.Close(); err != nil {
		log.Printf("Closing store: %v", err)
	}
	log.Println("Connections closed")
	return err
}
