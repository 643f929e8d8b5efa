package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/SrJCBM/BDD-Avanzada/internal/api"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	addr    string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "tables-cli",
	Short: "Talk to a tablesd server over gRPC",
	Long: `tables-cli sends seed, put, get and list requests to tablesd.

Environment variables:
  TABLES_GRPC_ADDR - server address (default: 127.0.0.1:9090)`,
	SilenceUsage: true,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reload every table from the server's seed file",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *api.GRPCClient, _ []string) (*structpb.Struct, error) {
		return c.Seed(ctx)
	}),
}

var putCmd = &cobra.Command{
	Use:   "put <table> <json>",
	Short: "Create or replace a record",
	Args:  cobra.ExactArgs(2),
	RunE: withClient(func(ctx context.Context, c *api.GRPCClient, args []string) (*structpb.Struct, error) {
		return c.Put(ctx, args[0], []byte(args[1]))
	}),
}

var getCmd = &cobra.Command{
	Use:   "get <table> <id>",
	Short: "Fetch one record",
	Args:  cobra.ExactArgs(2),
	RunE: withClient(func(ctx context.Context, c *api.GRPCClient, args []string) (*structpb.Struct, error) {
		return c.Get(ctx, args[0], args[1])
	}),
}

var listCmd = &cobra.Command{
	Use:   "list <table>",
	Short: "List every record of a table",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *api.GRPCClient, args []string) (*structpb.Struct, error) {
		return c.List(ctx, args[0])
	}),
}

type clientCall func(ctx context.Context, c *api.GRPCClient, args []string) (*structpb.Struct, error)

// withClient dials the server, runs call and prints the reply as JSON.
func withClient(call clientCall) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		// Use passthrough resolver for direct address connection
		conn, err := grpc.NewClient("passthrough:///"+addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		out, err := call(ctx, api.NewGRPCClient(conn), args)
		if err != nil {
			return err
		}
		b, err := protojson.MarshalOptions{Multiline: true}.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	}
}

func init() {
	defAddr := os.Getenv("TABLES_GRPC_ADDR")
	if defAddr == "" {
		defAddr = "127.0.0.1:9090"
	}
	rootCmd.PersistentFlags().StringVarP(&addr, "addr", "a", defAddr, "tablesd gRPC address")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(seedCmd, putCmd, getCmd, listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
