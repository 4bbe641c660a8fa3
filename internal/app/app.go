// Package app wires the collaborators together and runs one benchmark
// invocation from feature selection to the written report.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/skobkin/hwbench/internal/accel"
	"github.com/skobkin/hwbench/internal/config"
	"github.com/skobkin/hwbench/internal/gpu"
	"github.com/skobkin/hwbench/internal/netprobe"
	"github.com/skobkin/hwbench/internal/power"
	"github.com/skobkin/hwbench/internal/report"
	"github.com/skobkin/hwbench/internal/sysinfo"
)

// ErrOutputWrite reports that the rendered report could not be written.
var ErrOutputWrite = errors.New("write report output")

// Options describes one invocation.
type Options struct {
	Config     config.Config
	Features   []string
	Format     report.Format
	OutputFile string
	Stdout     io.Writer
}

// NewOrchestrator builds an Orchestrator backed by the host collaborators.
// The returned cleanup releases the accelerator driver.
func NewOrchestrator(cfg config.Config, baseLogger *slog.Logger) (*Orchestrator, func()) {
	driver := accel.NewDiscreteDriver(baseLogger.With("component", "accel"))
	orch := &Orchestrator{
		System:   sysinfo.NewProvider(baseLogger.With("component", "sysinfo")),
		Battery:  power.NewReader(baseLogger.With("component", "power")),
		Network:  netprobe.NewProber(cfg.Network.Probe(), baseLogger.With("component", "netprobe")),
		Driver:   driver,
		Unified:  accel.OpenUnified,
		Adapters: gpu.NewInventory(cfg.SysfsRoot, baseLogger.With("component", "gpu_inventory")),
		Bench:    cfg.Bench,
		Logger:   baseLogger.With("component", "orchestrator"),
	}
	cleanup := func() {
		if err := driver.Close(); err != nil {
			baseLogger.Debug("accelerator driver close", "err", err)
		}
	}
	return orch, cleanup
}

// Run performs one benchmark invocation. Only configuration and output
// errors are returned; feature failures shrink the report instead.
func Run(ctx context.Context, baseLogger *slog.Logger, opts Options) error {
	orch, cleanup := NewOrchestrator(opts.Config, baseLogger)
	defer cleanup()
	return execute(ctx, baseLogger.With("component", "app"), orch, opts)
}

func execute(ctx context.Context, logger *slog.Logger, orch *Orchestrator, opts Options) error {
	selected := opts.Features
	if len(selected) == 0 {
		selected = opts.Config.Features
	}
	features, err := ParseFeatures(selected)
	if err != nil {
		return fmt.Errorf("parse features: %w", err)
	}

	format := opts.Format
	if format == "" {
		format = report.FormatPlain
	}

	logger.Info("starting run", "features", features, "format", string(format))
	result := orch.Collect(ctx, features)

	var buf bytes.Buffer
	if err := report.Render(&buf, result, format); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if err := writeOutput(opts.OutputFile, opts.Stdout, buf.Bytes()); err != nil {
		return err
	}
	logger.Info("run complete", "output", outputName(opts.OutputFile))
	return nil
}

func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "" {
		if stdout == nil {
			stdout = os.Stdout
		}
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("%w: stdout: %w", ErrOutputWrite, err)
		}
		return nil
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create directory: %w", ErrOutputWrite, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrOutputWrite, path, err)
	}
	return nil
}

func outputName(path string) string {
	if path == "" {
		return "stdout"
	}
	return path
}
