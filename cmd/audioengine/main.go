/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Command audioengine is the CORE engine process: it wires the plugin
// runtime, capability registry, control router, session manager, and
// device sink together and exposes them over the §6.2 control API (gRPC)
// and a metrics/health HTTP surface.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/friendsincode/audioengine/internal/cache"
	"github.com/friendsincode/audioengine/internal/config"
	"github.com/friendsincode/audioengine/internal/control"
	"github.com/friendsincode/audioengine/internal/controlapi"
	"github.com/friendsincode/audioengine/internal/eventbus"
	"github.com/friendsincode/audioengine/internal/eventhub"
	"github.com/friendsincode/audioengine/internal/logging"
	"github.com/friendsincode/audioengine/internal/model"
	"github.com/friendsincode/audioengine/internal/plugin"
	"github.com/friendsincode/audioengine/internal/registry"
	"github.com/friendsincode/audioengine/internal/session"
	"github.com/friendsincode/audioengine/internal/sink"
	"github.com/friendsincode/audioengine/internal/telemetry"
	"github.com/friendsincode/audioengine/internal/version"
)

var controlAPISecret string

var rootCmd = &cobra.Command{
	Use:   "audioengine",
	Short: "Real-time audio playback engine with a hot-swappable native plugin runtime",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine's control API and decode worker",
	RunE:  runServe,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Dial a running engine's control API and report its status",
	RunE:  runHealth,
}

func init() {
	serveCmd.Flags().StringVar(&controlAPISecret, "control-api-secret", "", "JWT secret for the control API (empty disables auth, development only)")
	rootCmd.AddCommand(serveCmd, healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	addr := fmt.Sprintf("localhost:%d", cfg.HTTPPort)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("cannot connect to %s: %w", addr, err)
	}
	defer conn.Close()

	fmt.Println("health check passed")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	engineCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.Setup(engineCfg.Environment)
	for _, w := range engineCfg.LegacyEnvWarnings {
		logger.Warn().Msg(w)
	}
	logger.Info().Str("version", version.Version).Msg("audioengine starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "audioengine",
		ServiceVersion: version.Version,
		OTLPEndpoint:   engineCfg.OTLPEndpoint,
		Enabled:        engineCfg.TracingEnabled,
		SampleRate:     engineCfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown error")
		}
	}()

	hub := eventhub.New()

	var bus *eventbus.Bridge
	if engineCfg.EventBusEnabled {
		busCfg := eventbus.DefaultConfig()
		busCfg.URL = engineCfg.NATSURL
		busCfg.Token = engineCfg.NATSToken
		busCfg.StreamName = engineCfg.NATSStreamName
		bus = eventbus.NewBridge(busCfg, engineCfg.InstanceID, logger)
		defer bus.Close()
	}

	var preload *cache.Cache
	if engineCfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = engineCfg.RedisAddr
		cacheCfg.RedisPassword = engineCfg.RedisPassword
		cacheCfg.RedisDB = engineCfg.RedisDB
		preload, err = cache.New(cacheCfg, logger)
		if err != nil {
			return fmt.Errorf("initializing preload cache: %w", err)
		}
		defer preload.Close()
	}

	reg := registry.New()
	plugins := plugin.New(logger, reg)
	loadPlugins(logger, plugins, engineCfg.PluginsDir)

	device, format := buildDevice(engineCfg)
	sess := session.New(logger, session.Config{DeviceFormat: format, RingMillis: engineCfg.RingMillis}, reg, plugins, hub, preload, device)
	sess.Start()
	defer sess.Shutdown()

	router := control.New(logger, newPlayerDispatcher(sess), func(cf control.ControlFinished) {
		hub.Emit(eventhub.Event{Kind: eventhub.Log, Payload: fmt.Sprintf("control finished: plugin=%s request=%s ok=%v", cf.PluginID, cf.RequestID, cf.OK)})
	})
	router.Start()
	defer router.Shutdown()
	bridgeStateEvents(hub, router, bus)

	apiSvc := controlapi.New(logger, router, hub)
	var secret []byte
	if controlAPISecret != "" {
		secret = []byte(controlAPISecret)
	}
	serverOpts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxRecvMsgSize(10*1024*1024),
		grpc.MaxSendMsgSize(10*1024*1024),
		grpc.ConnectionTimeout(30*time.Second),
	}, controlapi.AuthServerOptions(secret)...)
	grpcServer := grpc.NewServer(serverOpts...)
	controlapi.Register(grpcServer, apiSvc)
	if len(secret) > 0 {
		logger.Info().Msg("control API authentication enabled")
	}
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", engineCfg.HTTPBind, engineCfg.HTTPPort))
	if err != nil {
		return fmt.Errorf("listening on control API port: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("bind", engineCfg.HTTPBind).Int("port", engineCfg.HTTPPort).Msg("control API listening")
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- err
		}
	}()

	metricsServer := &http.Server{Addr: engineCfg.MetricsBind, Handler: metricsRouter()}
	go func() {
		logger.Info().Str("addr", engineCfg.MetricsBind).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("control API server error")
	}

	logger.Info().Msg("shutting down gracefully")
	grpcServer.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}

	logger.Info().Msg("audioengine stopped")
	return nil
}

// loadPlugins discovers and activates every manifest under pluginsDir. A
// missing plugins directory is not fatal: the engine still runs, simply
// with no decoder/source/dsp/lyrics/sink capabilities registered (§1:
// concrete codec implementations are an external, plugin-side concern).
func loadPlugins(logger zerolog.Logger, plugins *plugin.Service, pluginsDir string) {
	if _, err := os.Stat(pluginsDir); err != nil {
		logger.Warn().Str("plugins_dir", pluginsDir).Msg("plugins directory not found, starting with no capabilities registered")
		return
	}
	factory := plugin.NewNativeFactory(pluginsDir)
	report, err := plugins.ReloadDirFromState(pluginsDir, factory)
	if err != nil {
		logger.Error().Err(err).Msg("plugin discovery failed")
		return
	}
	logger.Info().
		Strs("loaded", report.Loaded).
		Strs("deactivated", report.Deactivated).
		Int("unloaded_generations", report.UnloadedGenerations).
		Msg("plugin reload complete")
	for _, e := range report.Errors {
		logger.Warn().Err(e).Msg("plugin load error")
	}
}

// buildDevice resolves the configured device backend into a concrete
// sink.DeviceStream and the sample format its callback should convert
// into. Real OS device backends are an external collaborator per §1; null
// and file are the two CORE-testable stand-ins.
func buildDevice(cfg *config.Config) (sink.DeviceStream, sink.SampleFormat) {
	switch cfg.DeviceBackend {
	case config.DeviceBackendFile:
		return sink.NewFileDevice(cfg.DeviceFilePath), sink.FormatF32
	default:
		return sink.NullDevice{}, sink.FormatF32
	}
}

// bridgeStateEvents wires the event hub's StateChanged stream into the
// control router's UntilPlayerState matcher and, when enabled, forwards
// every event onto the NATS event bus bridge.
func bridgeStateEvents(hub *eventhub.Hub, router *control.Router, bus *eventbus.Bridge) {
	_, ch := hub.Subscribe(64)
	go func() {
		for ev := range ch {
			if ev.Kind == eventhub.StateChanged {
				if state, ok := ev.Payload.(model.PlayerState); ok {
					router.NotifyPlayerStateChanged(state)
				}
			}
			if bus != nil {
				bus.Forward(ev)
			}
		}
	}()
}

func metricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.MetricsMiddleware)
	r.Handle("/metrics", telemetry.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/version", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"version":%q}`, version.Version)
	})
	return r
}
