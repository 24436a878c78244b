package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/c360/vitalstream/component"
	"github.com/c360/vitalstream/config"
	"github.com/c360/vitalstream/health"
	"github.com/c360/vitalstream/input/sensor"
	"github.com/c360/vitalstream/metric"
	"github.com/c360/vitalstream/output/fileupload"
	"github.com/c360/vitalstream/output/governor"
	"github.com/c360/vitalstream/output/httpupload"
	"github.com/c360/vitalstream/output/natsupload"
	"github.com/c360/vitalstream/processor/batch"
)

const natsConnectTimeout = 10 * time.Second

// pipeline is the reader -> compiler -> governor chain and its outputs
type pipeline struct {
	group    *component.Group
	reader   *sensor.Reader
	source   *sensor.Supervisor
	compiler *batch.Compiler
	governor *governor.Governor
	closers  []io.Closer
}

func (p *pipeline) components() []component.Discoverable {
	return []component.Discoverable{p.source, p.compiler, p.governor}
}

// Close releases the transport adapters
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			slog.Warn("Close transport", "error", err)
		}
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{group: component.NewGroup(logger)}

	uploader, err := p.buildUploader(ctx, cfg, logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	var deadLetter governor.Uploader
	if cfg.DeadLetter.Enabled() {
		spool, err := fileupload.New(cfg.DeadLetterSpoolConfig(), logger.With("component", "dead-letter"))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("create dead-letter spool: %w", err)
		}
		deadLetter = spool
		logger.Info("Dead-letter spool enabled", "directory", cfg.DeadLetter.Directory)
	}

	p.governor, err = governor.New(governor.Deps{
		Config:          cfg.GovernorConfig(),
		Uploader:        uploader,
		DeadLetter:      deadLetter,
		MetricsRegistry: registry,
		Logger:          logger.With("component", "upload-governor"),
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create governor: %w", err)
	}

	events := make(chan sensor.Event, cfg.Reader.EventBuffer)

	p.compiler, err = batch.NewCompiler(batch.Deps{
		Config:          cfg.BatchConfig(),
		Submitter:       p.governor,
		Events:          events,
		MetricsRegistry: registry,
		Logger:          logger.With("component", "batch-compiler"),
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create compiler: %w", err)
	}

	p.reader, err = sensor.NewReader(sensor.Deps{
		Config:          cfg.SensorConfig(),
		Events:          events,
		MetricsRegistry: registry,
		Logger:          logger.With("component", "sensor-reader"),
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create reader: %w", err)
	}
	p.source = sensor.NewSupervisor(p.reader)

	// Downstream first: stopping runs in reverse, so the reader stops before
	// the compiler flushes and the governor drains last. A missing producer
	// does not fail Start; the supervisor keeps retrying the handshake.
	p.group.Add(p.governor)
	p.group.Add(p.compiler)
	p.group.Add(p.source)

	return p, nil
}

func (p *pipeline) buildUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (governor.Uploader, error) {
	switch cfg.Transport.Type {
	case config.TransportHTTP:
		u, err := httpupload.New(cfg.HTTPConfig(), logger.With("component", "http-uploader"))
		if err != nil {
			return nil, fmt.Errorf("create http uploader: %w", err)
		}
		p.closers = append(p.closers, u)
		logger.Info("Uploading over HTTPS", "url", cfg.Transport.HTTP.URL, "signed", cfg.Transport.HTTP.SigningKey != "")
		return u, nil

	case config.TransportFile:
		u, err := fileupload.New(cfg.FileConfig(), logger.With("component", "file-uploader"))
		if err != nil {
			return nil, fmt.Errorf("create file uploader: %w", err)
		}
		logger.Info("Writing batches to directory", "directory", cfg.Transport.File.Directory)
		return u, nil

	case config.TransportNATS:
		u, err := natsupload.New(cfg.NATSConfig(), logger.With("component", "nats-uploader"))
		if err != nil {
			return nil, fmt.Errorf("create nats uploader: %w", err)
		}
		connectCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
		defer cancel()
		if err := u.Connect(connectCtx); err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		p.closers = append(p.closers, u)
		return u, nil

	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Transport.Type)
	}
}

// startMetrics serves /metrics and /health until Stop is called
func startMetrics(cfg *config.Config, registry *metric.MetricsRegistry, monitor *health.Monitor) *metric.Server {
	server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, cfg.Security,
		metric.WithHealthHandler(health.Handler(monitor, appName)))

	go func() {
		if err := server.Start(); err != nil {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Metrics server started", "address", server.Address())
	return server
}
