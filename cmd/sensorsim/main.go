// Package main implements sensorsim, a stand-in for a bedside monitor. It
// allocates a shared-memory ring, publishes it on the control socket and
// writes synthetic vitals and waveform frames until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/vitalstream/controlchannel"
	"github.com/c360/vitalstream/frame"
	"github.com/c360/vitalstream/pkg/timestamp"
	"github.com/c360/vitalstream/shm"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "sensorsim"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Simulator failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	logger, logCloser := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat, cliCfg.LogFile)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if cliCfg.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, cliCfg.Duration)
		defer stop()
	}

	return simulate(ctx, cliCfg, logger)
}

func simulate(ctx context.Context, cliCfg *CLIConfig, logger *slog.Logger) error {
	slots, frameSize := uint32(cliCfg.SlotCount), uint32(cliCfg.FrameSize)

	seg, err := shm.Create(frame.SegmentSize(slots, frameSize))
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	defer seg.Close()

	writer, err := shm.NewWriter(seg.Data, slots, frameSize)
	if err != nil {
		return fmt.Errorf("format ring: %w", err)
	}

	server, err := controlchannel.NewServer(cliCfg.SocketPath, seg.Fd(), uint64(seg.Size()),
		logger.With("component", "controlchannel"))
	if err != nil {
		return fmt.Errorf("control channel: %w", err)
	}
	defer server.Close()

	logger.Info("Simulator ready",
		"socket", cliCfg.SocketPath,
		"slots", slots,
		"frame_size", frameSize,
		"segment_bytes", seg.Size(),
		"rate_hz", cliCfg.Rate,
		"waveform", cliCfg.Waveform)

	gen := newGenerator(cliCfg.DeviceSeed, time.Now())
	var genMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx)
	})
	g.Go(func() error {
		writer.RunHeartbeat(gctx, cliCfg.HeartbeatInterval)
		return nil
	})
	g.Go(func() error {
		interval := time.Duration(float64(time.Second) / cliCfg.Rate)
		return tick(gctx, interval, func(now time.Time) error {
			genMu.Lock()
			p := gen.Vitals(now)
			genMu.Unlock()
			_, err := writer.WriteVitals(uint64(timestamp.ToUnixMs(now)), p)
			return err
		})
	})
	if cliCfg.Waveform {
		g.Go(func() error {
			return tick(gctx, 100*time.Millisecond, func(now time.Time) error {
				return writeWaveforms(writer, gen, &genMu, now)
			})
		})
	}

	<-gctx.Done()
	_ = server.Close()
	err = g.Wait()

	logger.Info("Simulator stopped",
		"frames_written", writer.WriteIndex(),
		"consumers_served", server.Served())
	return err
}

// writeWaveforms flushes every accrued block for each channel
func writeWaveforms(w *shm.Writer, gen *generator, mu *sync.Mutex, now time.Time) error {
	ts := uint64(timestamp.ToUnixMs(now))
	for _, ch := range []frame.Channel{frame.ChannelECG, frame.ChannelPleth, frame.ChannelResp} {
		for {
			mu.Lock()
			p := gen.Block(ch, now)
			mu.Unlock()
			if p == nil {
				break
			}
			if _, err := w.WriteWaveform(ts, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// tick calls fn every interval until ctx is done or fn fails
func tick(ctx context.Context, interval time.Duration, fn func(time.Time) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := fn(now); err != nil {
				return err
			}
		}
	}
}
