package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/internal/dispatch"
	"github.com/ajitpratap0/polystore/pkg/adapter/registry"
	"github.com/ajitpratap0/polystore/pkg/config"
	"github.com/ajitpratap0/polystore/pkg/logger"

	// Import all storage engines to register them
	_ "github.com/ajitpratap0/polystore/pkg/adapter/engines/mongodb"
	_ "github.com/ajitpratap0/polystore/pkg/adapter/engines/postgres"
	_ "github.com/ajitpratap0/polystore/pkg/adapter/engines/redis"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "polystore",
		Short: "Polystore - multi-tenant data access gateway",
		Long: `Polystore exposes one generic CRUD surface over heterogeneous storage
engines. Requests to /api/{tenant}/{entity}/{id} are routed to the tenant's
backing store and translated into native operations by the engine adapter.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Polystore v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "engines",
		Short: "List available storage engines",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available engines:")
			for _, engine := range registry.List() {
				fmt.Printf("  - %s\n", engine)
			}
		},
	})

	var configFile string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Long: `Run the gateway. Tenant routing, server address and connection registry
behavior come from the config file; engine connection strings come from the
environment (MONGO_URI, POSTGRES_URI, REDIS_URI or their component
variables).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configFile)
		},
	}
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file (YAML)")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Logging.Development,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("starting polystore",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("routing_policy", cfg.Routing.Policy),
	)

	service, err := dispatch.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return service.Run(ctx)
}
