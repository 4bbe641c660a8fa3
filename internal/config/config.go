package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skobkin/hwbench/internal/bench"
	"github.com/skobkin/hwbench/internal/netprobe"
)

// Config represents runtime configuration. Values come from defaults, an
// optional YAML file and APP_* environment variables, in that order.
type Config struct {
	LogLevel  slog.Level
	SysfsRoot string
	Features  []string
	Bench     BenchConfig
	Network   NetworkConfig
}

// BenchConfig holds the benchmark iteration counts.
type BenchConfig struct {
	CPUIterations int
	GPUIterations int
	GPUWarmup     int
}

// NetworkConfig holds probe targets and deadlines.
type NetworkConfig struct {
	PingHost      string
	IPURL         string
	DownloadURL   string
	UploadURL     string
	DownloadBytes int64
	UploadBytes   int64
	Timeout       time.Duration
	SpeedTimeout  time.Duration
}

// Probe converts the section into netprobe settings.
func (n NetworkConfig) Probe() netprobe.Config {
	return netprobe.Config{
		PingHost:      n.PingHost,
		IPURL:         n.IPURL,
		DownloadURL:   n.DownloadURL,
		UploadURL:     n.UploadURL,
		DownloadBytes: n.DownloadBytes,
		UploadBytes:   n.UploadBytes,
		Timeout:       n.Timeout,
		SpeedTimeout:  n.SpeedTimeout,
	}
}

// DefaultFeatures lists every feature in run order.
var DefaultFeatures = []string{"cpu", "gpu", "battery", "network"}

type fileConfig struct {
	LogLevel  *string  `yaml:"log_level"`
	SysfsRoot *string  `yaml:"sysfs_root"`
	Features  []string `yaml:"features"`
	Bench     struct {
		CPUIterations *int `yaml:"cpu_iterations"`
		GPUIterations *int `yaml:"gpu_iterations"`
		GPUWarmup     *int `yaml:"gpu_warmup"`
	} `yaml:"bench"`
	Network struct {
		PingHost      *string        `yaml:"ping_host"`
		IPURL         *string        `yaml:"ip_url"`
		DownloadURL   *string        `yaml:"download_url"`
		UploadURL     *string        `yaml:"upload_url"`
		DownloadBytes *int64         `yaml:"download_bytes"`
		UploadBytes   *int64         `yaml:"upload_bytes"`
		Timeout       *time.Duration `yaml:"timeout"`
		SpeedTimeout  *time.Duration `yaml:"speed_timeout"`
	} `yaml:"network"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:  slog.LevelInfo,
		SysfsRoot: "/sys",
		Features:  append([]string(nil), DefaultFeatures...),
		Bench: BenchConfig{
			CPUIterations: bench.DefaultCPUIterations,
			GPUIterations: bench.DefaultGPUIterations,
			GPUWarmup:     bench.DefaultGPUWarmup,
		},
		Network: NetworkConfig{
			PingHost:      netprobe.DefaultPingHost,
			IPURL:         netprobe.DefaultIPURL,
			DownloadURL:   netprobe.DefaultDownloadURL,
			UploadURL:     netprobe.DefaultUploadURL,
			DownloadBytes: netprobe.DefaultDownloadBytes,
			UploadBytes:   netprobe.DefaultUploadBytes,
			Timeout:       netprobe.DefaultTimeout,
			SpeedTimeout:  netprobe.DefaultSpeedTimeout,
		},
	}
}

// Load builds the configuration. path names an optional YAML file; when it
// is empty APP_CONFIG_FILE is consulted.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("APP_CONFIG_FILE"))
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if file.LogLevel != nil {
		level, err := parseLogLevel(*file.LogLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = level
	}
	if file.SysfsRoot != nil {
		cfg.SysfsRoot = *file.SysfsRoot
	}
	if file.Features != nil {
		cfg.Features = file.Features
	}

	setIfPresent(&cfg.Bench.CPUIterations, file.Bench.CPUIterations)
	setIfPresent(&cfg.Bench.GPUIterations, file.Bench.GPUIterations)
	setIfPresent(&cfg.Bench.GPUWarmup, file.Bench.GPUWarmup)

	setIfPresent(&cfg.Network.PingHost, file.Network.PingHost)
	setIfPresent(&cfg.Network.IPURL, file.Network.IPURL)
	setIfPresent(&cfg.Network.DownloadURL, file.Network.DownloadURL)
	setIfPresent(&cfg.Network.UploadURL, file.Network.UploadURL)
	setIfPresent(&cfg.Network.DownloadBytes, file.Network.DownloadBytes)
	setIfPresent(&cfg.Network.UploadBytes, file.Network.UploadBytes)
	setIfPresent(&cfg.Network.Timeout, file.Network.Timeout)
	setIfPresent(&cfg.Network.SpeedTimeout, file.Network.SpeedTimeout)

	return nil
}

func applyEnv(cfg *Config) error {
	if value := strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := strings.TrimSpace(os.Getenv("APP_SYSFS_ROOT")); value != "" {
		cfg.SysfsRoot = value
	}

	if value := strings.TrimSpace(os.Getenv("APP_FEATURES")); value != "" {
		features := splitAndTrim(value, ",")
		if len(features) == 0 {
			return fmt.Errorf("APP_FEATURES must not be empty")
		}
		cfg.Features = features
	}

	for _, item := range []struct {
		key    string
		target *int
	}{
		{"APP_CPU_ITERATIONS", &cfg.Bench.CPUIterations},
		{"APP_GPU_ITERATIONS", &cfg.Bench.GPUIterations},
		{"APP_GPU_WARMUP", &cfg.Bench.GPUWarmup},
	} {
		value := strings.TrimSpace(os.Getenv(item.key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse %s: %w", item.key, err)
		}
		*item.target = parsed
	}

	for _, item := range []struct {
		key    string
		target *string
	}{
		{"APP_NET_PING_HOST", &cfg.Network.PingHost},
		{"APP_NET_IP_URL", &cfg.Network.IPURL},
		{"APP_NET_DOWNLOAD_URL", &cfg.Network.DownloadURL},
		{"APP_NET_UPLOAD_URL", &cfg.Network.UploadURL},
	} {
		if value := strings.TrimSpace(os.Getenv(item.key)); value != "" {
			*item.target = value
		}
	}

	for _, item := range []struct {
		key    string
		target *int64
	}{
		{"APP_NET_DOWNLOAD_BYTES", &cfg.Network.DownloadBytes},
		{"APP_NET_UPLOAD_BYTES", &cfg.Network.UploadBytes},
	} {
		value := strings.TrimSpace(os.Getenv(item.key))
		if value == "" {
			continue
		}
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", item.key, err)
		}
		*item.target = parsed
	}

	for _, item := range []struct {
		key    string
		target *time.Duration
	}{
		{"APP_NET_TIMEOUT", &cfg.Network.Timeout},
		{"APP_NET_SPEED_TIMEOUT", &cfg.Network.SpeedTimeout},
	} {
		value := strings.TrimSpace(os.Getenv(item.key))
		if value == "" {
			continue
		}
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parse %s: %w", item.key, err)
		}
		*item.target = duration
	}

	return nil
}

func (c Config) validate() error {
	switch {
	case c.Bench.CPUIterations <= 0:
		return fmt.Errorf("cpu iterations must be > 0")
	case c.Bench.GPUIterations <= 0:
		return fmt.Errorf("gpu iterations must be > 0")
	case c.Bench.GPUWarmup < 0:
		return fmt.Errorf("gpu warmup must be >= 0")
	case c.Network.DownloadBytes <= 0:
		return fmt.Errorf("network download bytes must be > 0")
	case c.Network.UploadBytes <= 0:
		return fmt.Errorf("network upload bytes must be > 0")
	case c.Network.Timeout <= 0:
		return fmt.Errorf("network timeout must be > 0")
	case c.Network.SpeedTimeout <= 0:
		return fmt.Errorf("network speed timeout must be > 0")
	case c.SysfsRoot == "":
		return fmt.Errorf("sysfs root must not be empty")
	case len(c.Features) == 0:
		return fmt.Errorf("features must not be empty")
	}
	return nil
}

func setIfPresent[T any](target *T, value *T) {
	if value != nil {
		*target = *value
	}
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
