package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"esm_pdw/internal/config"
	"esm_pdw/internal/logger"
	"esm_pdw/internal/metrics"
	natspub "esm_pdw/internal/nats"
	"esm_pdw/internal/pdw"
	"esm_pdw/internal/server"
	"esm_pdw/internal/snapshot"
	"esm_pdw/internal/stream"
	"esm_pdw/internal/websocket"

	"github.com/spf13/cobra"
)

const (
	appName    = "PDW Stream Simulator"
	appVersion = "1.0.0"
)

func main() {
	var configFile string

	root := &cobra.Command{
		Use:   "pdwsim",
		Short: "Synthetic ESM pulse descriptor word stream",
		Long: `pdwsim simulates a fixed passive ESM sensor observing several rotating radar
emitters. It generates Pulse Descriptor Words in real time, streams them to
browser consumers over a websocket (and optionally NATS), serves the
visualization assets and archives operator snapshots as JSON.

Examples:
  pdwsim --addr :8000 --web-dir ./web
  pdwsim --config /etc/pdwsim/pdwsim.toml --nats-url nats://localhost:4222`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	root.Flags().StringVarP(&configFile, "config", "c", "", "config file (default: pdwsim.{toml,yaml,json} in /etc/pdwsim or .)")
	root.Flags().String("addr", ":8000", "HTTP listen address")
	root.Flags().String("web-dir", "web", "directory with the visualization assets")
	root.Flags().Int64("seed", 0, "random seed (0 = time based)")
	root.Flags().Duration("tick", pdw.DefaultTickInterval, "pause between generated batches")
	root.Flags().String("snapshot-dir", ".", "directory for snapshot archives")
	root.Flags().String("nats-url", "", "NATS server URL (empty disables NATS)")
	root.Flags().String("redis-addr", "", "Redis address for the snapshot index (empty disables)")
	root.Flags().String("log-dir", "logs", "base directory for log files")
	root.Flags().Bool("debug", false, "enable debug log file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) (err error) {
	startTime := time.Now()

	logCfg := logger.DefaultConfig()
	logCfg.BasePath = cfg.Log.BasePath
	logCfg.EnableDebug = cfg.Log.Debug
	logCfg.ConsoleOutput = cfg.Log.Console
	logCfg.RetentionDays = cfg.Log.RetentionDays

	sysLog, err := logger.NewSystemLoggerWithConfig(logCfg)
	if err != nil {
		return err
	}
	defer sysLog.Close()

	defer func() {
		if r := recover(); r != nil {
			sysLog.LogCriticalError("main", "panic", fmt.Errorf("%v\n%s", r, debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	reg, err := cfg.Registry()
	if err != nil {
		return err
	}

	printSystemHeader(cfg)
	sysLog.LogSystemStarted(appVersion, reg.Len())
	if cfg.ConfigFile != "" {
		sysLog.LogConfigurationChange("config", "loaded "+cfg.ConfigFile)
	}

	collector := metrics.New()

	opts := []pdw.Option{
		pdw.WithTickInterval(cfg.Engine.TickInterval),
		pdw.WithLossProbability(cfg.Engine.LossProbability),
		pdw.WithDetectionThreshold(cfg.Engine.DetectionThresholdDB),
		pdw.WithObserver(collector),
	}
	if cfg.Engine.Seed != 0 {
		opts = append(opts, pdw.WithSeed(cfg.Engine.Seed))
	}
	engine := pdw.New(reg, opts...)
	sysLog.LogEngineStarted(reg.Len(), cfg.Engine.TickInterval, cfg.Engine.LossProbability, cfg.Engine.DetectionThresholdDB)

	hub := websocket.NewWebSocketManager(sysLog)
	hub.OnClientCount(collector.SetClients)

	publisher := natspub.NewPublisher(cfg.NATS.Subject, cfg.NATS.SnapshotSubject, sysLog)
	if cfg.NATS.URL != "" {
		if err := publisher.Connect(cfg.NATS.URL); err != nil {
			// NATS é opcional: o stream websocket segue sem ele
			sysLog.LogCriticalError("nats", "connect", err)
		}
	}
	defer publisher.Disconnect()

	writerOpts := []snapshot.Option{}
	if cfg.Redis.Addr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		idx, err := snapshot.NewRedisIndex(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Key)
		cancel()
		if err != nil {
			sysLog.LogCriticalError("redis", "connect", err)
		} else {
			defer idx.Close()
			writerOpts = append(writerOpts, snapshot.WithIndex(idx))
		}
	}
	writer := snapshot.NewWriter(cfg.Snapshot.Dir, cfg.Snapshot.Version, cfg.Snapshot.SensorID, writerOpts...)

	srv := server.New(server.Deps{
		WebDir:    cfg.Server.WebDir,
		Stream:    hub,
		Snapshots: writer,
		Notifier:  publisher,
		Observer:  collector,
		Registry:  collector.Registry(),
		Info: server.Info{
			Name:     appName,
			Version:  appVersion,
			SensorID: cfg.Snapshot.SensorID,
			Emitters: reg.All(),
		},
		Log: sysLog,
	})

	pump := stream.NewPump(engine, stream.Config{
		SuppressEmpty:  cfg.Stream.SuppressEmpty,
		StatusInterval: cfg.Stream.StatusInterval,
	}, sysLog, hub, publisher)
	pump.SetObserver(collector)
	pump.SetClientCounter(hub.GetConnectedCount)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// SIGHUP força a rotação dos arquivos de log
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := sysLog.ForceRotation(); err != nil {
					sysLog.LogCriticalError("logger", "rotate", err)
				}
			}
		}
	}()
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := pump.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			sysLog.LogCriticalError("stream", "run", err)
		}
	}()

	fmt.Printf("🌐 Servidor HTTP em %s (stream: /ws/pdw)\n", cfg.Server.Addr)
	serveErr := srv.Run(ctx, cfg.Server.Addr)
	cancel()
	wg.Wait()

	batches, pulses := pump.Totals()
	sysLog.LogStreamStatus(batches, pulses, 0)
	sysLog.LogSystemShutdown(time.Since(startTime).Round(time.Second))

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

func printSystemHeader(cfg *config.Config) {
	fmt.Println("==================================================")
	fmt.Printf("  %s v%s\n", appName, appVersion)
	fmt.Printf("  Sensor: %s | Emissores: %d\n", cfg.Snapshot.SensorID, len(cfg.Emitters))
	fmt.Printf("  Tick: %v | Perda: %.1f%% | Limiar: %.0f dB\n",
		cfg.Engine.TickInterval, cfg.Engine.LossProbability*100, cfg.Engine.DetectionThresholdDB)
	if cfg.NATS.URL != "" {
		fmt.Printf("  NATS: %s (%s)\n", cfg.NATS.URL, cfg.NATS.Subject)
	}
	if cfg.Redis.Addr != "" {
		fmt.Printf("  Redis: %s (%s)\n", cfg.Redis.Addr, cfg.Redis.Key)
	}
	fmt.Println("==================================================")
}
