package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/skobkin/hwbench/internal/app"
	"github.com/skobkin/hwbench/internal/config"
	"github.com/skobkin/hwbench/internal/report"
	"github.com/skobkin/hwbench/internal/version"
)

var (
	buildVersion = "dev"
	buildCommit  = ""
	buildTime    = ""
)

type cliOptions struct {
	format      report.Format
	outputFile  string
	features    []string
	configPath  string
	showVersion bool
}

func main() {
	version.Set(version.Info{
		Version:   buildVersion,
		Commit:    buildCommit,
		BuildTime: buildTime,
	})
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	if opts.showVersion {
		fmt.Fprintln(stdout, version.Current().String())
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		handler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelError})
		slog.New(handler).Error("failed to load configuration", "err", err)
		return 1
	}

	handler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	logger := slog.New(handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, logger, app.Options{
		Config:     cfg,
		Features:   opts.features,
		Format:     opts.format,
		OutputFile: opts.outputFile,
		Stdout:     stdout,
	})
	if err != nil {
		logger.Error("application error", "err", err)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var (
		opts       cliOptions
		format     string
		legacyFile string
	)

	flagSet := pflag.NewFlagSet("hwbench", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&format, "format", "f", string(report.FormatPlain), "output format: plain, json or prometheus")
	flagSet.StringVarP(&opts.outputFile, "output-file", "o", "", "write the report to this file instead of stdout")
	flagSet.StringVar(&legacyFile, "outputFile", "", "alias of --output-file")
	flagSet.StringSliceVarP(&opts.features, "features", "e", nil,
		"features to run: "+strings.Join(config.DefaultFeatures, ",")+" (default all, or APP_FEATURES)")
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file (default APP_CONFIG_FILE)")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	_ = flagSet.MarkHidden("outputFile")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: hwbench [flags]\n\nBenchmarks CPU and GPU throughput and reports memory, battery and network state.\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return cliOptions{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	parsed, err := report.ParseFormat(format)
	if err != nil {
		return cliOptions{}, err
	}
	opts.format = parsed

	if opts.outputFile == "" {
		opts.outputFile = legacyFile
	}
	if flagSet.Changed("features") {
		if _, err := app.ParseFeatures(opts.features); err != nil {
			return cliOptions{}, err
		}
	} else {
		opts.features = nil
	}

	return opts, nil
}
