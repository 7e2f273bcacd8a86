package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/douginoz/iceicedata/internal/config"
	"github.com/douginoz/iceicedata/internal/db"
	"github.com/douginoz/iceicedata/internal/extractor"
	"github.com/douginoz/iceicedata/internal/httpapi"
	"github.com/douginoz/iceicedata/internal/modules/weather/record"
	"github.com/douginoz/iceicedata/internal/mqtt"
	"github.com/douginoz/iceicedata/internal/scheduler"
	"github.com/douginoz/iceicedata/internal/sink"
)

type Options struct {
	Version string
	Logger  *slog.Logger
	// Stdout receives JSON written to "-" and the progress lines.
	Stdout io.Writer
	// Extractor overrides the HTTP extraction client.
	Extractor extractor.Extractor
}

// Run validates the outputs, then captures until the cycle finishes or ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"configFile", cfg.ConfigFile,
		"stations", cfg.Stations,
		"repeat", cfg.Repeat,
		"jsonFile", cfg.JSONFile,
		"outputFile", cfg.OutputFile,
		"publishMQTT", cfg.PublishMQTT,
		"windrose", cfg.Windrose,
		"database", cfg.Database,
		"httpAddr", cfg.HTTPAddr,
	)

	console := stdout
	sinks, relational, err := buildSinks(ctx, cfg, stdout, logger)
	if err != nil {
		return err
	}
	if cfg.JSONFile == sink.StdoutPath {
		console = os.Stderr
	}

	ex := opts.Extractor
	if ex == nil {
		ex = extractor.NewHTTP(cfg.File.ExtractorURLOrDefault(), cfg.File.ExtractTimeoutOrDefault(), logger)
	}

	dispatcher := sink.NewDispatcher(logger, sinks...)
	if len(dispatcher.Sinks()) == 0 {
		logger.Warn("no sinks configured; records will only be logged")
	}

	tracker := httpapi.NewTracker()
	sched := scheduler.New(ex, record.NewBuilder(logger), dispatcher, scheduler.Options{
		Stations:       cfg.Stations,
		Interval:       cfg.Repeat,
		ExtractTimeout: cfg.File.ExtractTimeoutOrDefault(),
		Console:        console,
		OnCycle:        tracker.Observe,
	}, logger)

	var srv *http.Server
	errCh := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		deps := httpapi.Deps{
			Version:   opts.Version,
			Scheduler: sched,
			Tracker:   tracker,
			Sinks:     dispatcher.Sinks(),
		}
		if relational != nil {
			deps.HealthCheck = relational.Prepare
		}
		srv = httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(deps))
		go func() {
			logger.Info("http listening", "addr", cfg.HTTPAddr)
			errCh <- srv.ListenAndServe()
		}()
	}

	runErr := sched.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) && runErr == nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	return runErr
}

// buildSinks constructs the enabled sinks and runs their start-up checks.
func buildSinks(ctx context.Context, cfg config.Config, stdout io.Writer, logger *slog.Logger) ([]sink.Sink, *sink.RelationalSink, error) {
	var sinks []sink.Sink

	if fs := sink.NewFileSink(cfg.JSONFile, cfg.OutputFile, stdout); fs != nil {
		jsonPath, textPath := fs.Paths()
		for _, p := range []string{jsonPath, textPath} {
			if err := sink.CheckWritable(p); err != nil {
				return nil, nil, err
			}
		}
		sinks = append(sinks, fs)
	}

	if cfg.PublishMQTT || cfg.Windrose {
		sinks = append(sinks, sink.NewMQTTSink(sink.MQTTOptions{
			Client: mqtt.Options{
				Server:         cfg.File.MQTTServer,
				Port:           cfg.File.MQTTPort,
				Username:       cfg.File.MQTTUser,
				Password:       cfg.File.MQTTPassword,
				ConnectTimeout: cfg.File.ConnectTimeout(),
				PublishTimeout: cfg.File.PublishTimeout(),
			},
			Root:          cfg.File.MQTTRoot,
			Retain:        cfg.File.MQTTRetain,
			PublishRecord: cfg.PublishMQTT,
			Windrose:      cfg.Windrose,
			WindroseTopic: cfg.WindroseTopic,
			WindroseRoot:  cfg.File.MQTTWindroseRoot,
		}, logger))
	}

	var relational *sink.RelationalSink
	if cfg.Database {
		relational = sink.NewRelationalSink(db.Options{
			Path:   cfg.File.DatabaseFile,
			URL:    cfg.File.DatabaseURL,
			LogSQL: cfg.LogSQL,
			Logger: logger,
		}, logger)
		if err := relational.Prepare(ctx); err != nil {
			return nil, nil, fmt.Errorf("database not usable: %w", err)
		}
		sinks = append(sinks, relational)
	}

	return sinks, relational, nil
}
