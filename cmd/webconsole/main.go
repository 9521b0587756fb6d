package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/common/cnst"
	"github.com/amoylab/webconsole/internal/common/config"
	"github.com/amoylab/webconsole/internal/console"
	"github.com/amoylab/webconsole/internal/console/kvstore"
	"github.com/amoylab/webconsole/internal/console/resource"
	"github.com/amoylab/webconsole/internal/console/server"
	"github.com/amoylab/webconsole/internal/console/widget"
	"github.com/amoylab/webconsole/internal/widgets/hello"
	"github.com/amoylab/webconsole/pkg/helper"
	"github.com/amoylab/webconsole/pkg/logger"
	"github.com/amoylab/webconsole/pkg/metrics"
	"github.com/amoylab/webconsole/pkg/trace"
	"github.com/amoylab/webconsole/pkg/utils"
	"github.com/amoylab/webconsole/pkg/version"
)

const shutdownTimeout = 15 * time.Second

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of webconsole",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", cnst.CommandName, version.Get())
		},
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, path, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Printf("configuration %s is valid\n", path)
			return nil
		},
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop a running webconsole",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return utils.NewPIDFile(helper.GetPIDPath(cfg.PID)).Signal(syscall.SIGTERM)
		},
	}

	rootCmd = &cobra.Command{
		Use:   cnst.CommandName,
		Short: "Web console server",
		Long:  `webconsole serves a browser console of widgets whose state and layout survive reconnects`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.ConsoleYaml, "path to configuration file")
	rootCmd.AddCommand(versionCmd, checkCmd, stopCmd)
}

func run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	lg, _, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("Starting webconsole",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
	if err != nil {
		lg.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	pid := utils.NewPIDFile(helper.GetPIDPath(cfg.PID))
	if err := pid.Write(); err != nil {
		lg.Fatal("Failed to write PID file", zap.String("path", pid.Path()), zap.Error(err))
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			lg.Warn("Failed to remove PID file", zap.Error(err))
		}
	}()

	store, err := kvstore.NewStore(ctx, lg, &cfg.Storage)
	if err != nil {
		lg.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer store.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
	}
	c, err := console.New(lg, cfg, store, m)
	if err != nil {
		lg.Fatal("Failed to create console", zap.Error(err))
	}
	w, err := hello.New()
	if err != nil {
		lg.Fatal("Failed to create widget", zap.Error(err))
	}
	if _, err := c.AddWidget(w); err != nil {
		lg.Fatal("Failed to register widget", zap.Error(err))
	}
	c.AddPageProvider(resource.WidgetControls(c.Prefix(), widget.DefaultMaxAge))

	gin.SetMode(gin.ReleaseMode)
	srv, err := server.NewServer(lg, cfg, c, m)
	if err != nil {
		lg.Fatal("Failed to create server", zap.Error(err))
	}
	c.Start(ctx)
	srv.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	lg.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("Failed to shutdown server", zap.Error(err))
	}
	if err := c.Shutdown(shutdownCtx); err != nil {
		lg.Error("Failed to shutdown console", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Error("Failed to shutdown tracing", zap.Error(err))
	}
	lg.Info("Server shutdown completed")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
