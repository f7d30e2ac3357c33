package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"canvasbridge/engine/internal/appdirs"
	"canvasbridge/engine/internal/bridge"
	"canvasbridge/engine/internal/config"
	"canvasbridge/engine/internal/engine"
	"canvasbridge/engine/internal/envfile"
	"canvasbridge/engine/internal/envutil"
	"canvasbridge/engine/internal/logging"
	"canvasbridge/engine/internal/progress"
	"canvasbridge/engine/internal/rpc"
)

func main() {
	envResult := envfile.Load()
	dataDir, err := appdirs.DataDir()
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}
	cfg, cfgErr := config.Load(appdirs.ConfigPath(dataDir))
	if cfgErr != nil {
		log.Fatalf("engine config invalid: %v", cfgErr)
	}
	debug := cfg.Debug || envutil.Debug()
	logSetup, logErr := logging.NewFileLogger(appdirs.LogsDir(dataDir), debug, logging.ParseLevel(cfg.LogLevel))
	logger := logSetup.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "engine")
	if logSetup.Enabled {
		logger.Info("engine.logging_enabled", "path", logSetup.Path)
	}
	if envResult.Loaded {
		logger.Debug("engine.env_loaded", "path", envResult.Path, "keys", envResult.Keys)
	}
	if envResult.Err != nil {
		logger.Warn("engine.env_load_failed", "path", envResult.Path, "error", envResult.Err.Error())
	}
	if logErr != nil {
		logger.Warn("engine.log_setup_failed", "error", logErr.Error())
	}
	if logSetup.Close != nil {
		defer logSetup.Close()
	}

	eng, err := engine.New(engine.WithLogger(logger), engine.WithConfig(cfg))
	if err != nil {
		logger.Error("engine.init_failed", "error", err.Error())
		log.Fatalf("engine init failed: %v", err)
	}
	defer eng.Close()

	handler := func(ctx context.Context, req rpc.Request) (any, *rpc.Error) {
		result, errInfo := eng.Execute(ctx, req.Command, req.MessageID(), req.Params)
		if errInfo != nil {
			return nil, &rpc.Error{Message: errInfo.Message(), Data: errInfo}
		}
		return result, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, eng, handler, logger); err != nil {
		logger.Error("engine.transport_error", "transport", cfg.Transport, "error", err.Error())
		log.Printf("transport error: %v", err)
	}
}

func serve(ctx context.Context, cfg config.Config, eng *engine.Engine, handler rpc.Handler, logger *slog.Logger) error {
	switch cfg.Transport {
	case config.TransportWebsocket:
		if err := bridge.CheckURL(cfg.BridgeURL, cfg.BridgeHosts); err != nil {
			return err
		}
		client := bridge.New(cfg.BridgeURL, cfg.Channel, handler, logger)
		eng.SetNotifier(func(update progress.Update) { client.Notify(update) })
		return client.Serve(ctx)
	default:
		server := rpc.NewServer(os.Stdin, os.Stdout, handler, logger)
		eng.SetNotifier(func(update progress.Update) { server.Notify(update) })
		return server.Serve(ctx)
	}
}
