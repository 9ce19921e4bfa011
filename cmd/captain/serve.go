package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarterdeck/captain/pkg/api"
	"github.com/quarterdeck/captain/pkg/captain"
	"github.com/quarterdeck/captain/pkg/config"
	"github.com/quarterdeck/captain/pkg/discovery"
	"github.com/quarterdeck/captain/pkg/log"
	"github.com/quarterdeck/captain/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the captain",
	Long: `Run the captain: the HTTP API, the control loop, and the document
store, all in one process. State lives under the data directory; a
serve.json discovery file is written there so local CLIs find the
server without flags.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "YAML config file")
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	metrics.SetVersion(Version)

	c, err := captain.New(&cfg)
	if err != nil {
		return fmt.Errorf("failed to start captain: %w", err)
	}
	c.Start()

	apiServer := api.NewServer(c)
	if err := apiServer.Start(cfg.Listen); err != nil {
		c.Stop()
		return err
	}

	flagPath := discovery.Path(cfg.DataDir)
	if _, err := discovery.Write(flagPath, apiServer.Addr()); err != nil {
		log.Warn("discovery file not written, CLIs will need --server")
	} else {
		fmt.Printf("✓ Discovery file at %s\n", flagPath)
	}

	fmt.Printf("✓ Captain listening on %s (pid %d)\n", apiServer.Addr(), os.Getpid())
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")

	c.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		log.Errorf("api shutdown failed", err)
	}
	if err := discovery.Remove(flagPath); err != nil {
		log.Errorf("discovery cleanup failed", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
