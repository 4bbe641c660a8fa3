package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel %v", cfg.LogLevel)
	}
	if cfg.SysfsRoot != "/sys" {
		t.Fatalf("unexpected SysfsRoot %q", cfg.SysfsRoot)
	}
	if !reflect.DeepEqual(cfg.Features, []string{"cpu", "gpu", "battery", "network"}) {
		t.Fatalf("unexpected default features %v", cfg.Features)
	}
	if cfg.Bench.CPUIterations != 5 || cfg.Bench.GPUIterations != 1000 || cfg.Bench.GPUWarmup != 10 {
		t.Fatalf("unexpected bench defaults %+v", cfg.Bench)
	}
	if cfg.Network.PingHost != "8.8.8.8" {
		t.Fatalf("unexpected ping host %q", cfg.Network.PingHost)
	}
	if cfg.Network.Timeout != 10*time.Second {
		t.Fatalf("unexpected network timeout %s", cfg.Network.Timeout)
	}
	if cfg.Network.DownloadBytes != 100_000_000 || cfg.Network.UploadBytes != 10_000_000 {
		t.Fatalf("unexpected transfer sizes %+v", cfg.Network)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("APP_SYSFS_ROOT", "/tmp/sys")
	t.Setenv("APP_FEATURES", "cpu, network")
	t.Setenv("APP_CPU_ITERATIONS", "3")
	t.Setenv("APP_GPU_ITERATIONS", "50")
	t.Setenv("APP_GPU_WARMUP", "0")
	t.Setenv("APP_NET_TIMEOUT", "2s")
	t.Setenv("APP_NET_SPEED_TIMEOUT", "30s")
	t.Setenv("APP_NET_PING_HOST", "1.1.1.1")
	t.Setenv("APP_NET_IP_URL", "https://ip.example.test")
	t.Setenv("APP_NET_DOWNLOAD_URL", "https://speed.example.test/down")
	t.Setenv("APP_NET_UPLOAD_URL", "https://speed.example.test/up")
	t.Setenv("APP_NET_DOWNLOAD_BYTES", "1000")
	t.Setenv("APP_NET_UPLOAD_BYTES", "500")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel override failed, got %v", cfg.LogLevel)
	}
	if cfg.SysfsRoot != "/tmp/sys" {
		t.Fatalf("SysfsRoot override failed, got %q", cfg.SysfsRoot)
	}
	if !reflect.DeepEqual(cfg.Features, []string{"cpu", "network"}) {
		t.Fatalf("Features override failed, got %v", cfg.Features)
	}
	if cfg.Bench != (BenchConfig{CPUIterations: 3, GPUIterations: 50, GPUWarmup: 0}) {
		t.Fatalf("Bench override failed, got %+v", cfg.Bench)
	}
	want := NetworkConfig{
		PingHost:      "1.1.1.1",
		IPURL:         "https://ip.example.test",
		DownloadURL:   "https://speed.example.test/down",
		UploadURL:     "https://speed.example.test/up",
		DownloadBytes: 1000,
		UploadBytes:   500,
		Timeout:       2 * time.Second,
		SpeedTimeout:  30 * time.Second,
	}
	if cfg.Network != want {
		t.Fatalf("Network override failed, got %+v", cfg.Network)
	}

	probe := cfg.Network.Probe()
	if probe.PingHost != "1.1.1.1" || probe.Timeout != 2*time.Second || probe.UploadBytes != 500 {
		t.Fatalf("Probe conversion mismatch: %+v", probe)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwbench.yaml")
	contents := strings.Join([]string{
		"log_level: warning",
		"features: [cpu, gpu]",
		"bench:",
		"  cpu_iterations: 7",
		"  gpu_warmup: 2",
		"network:",
		"  ping_host: 9.9.9.9",
		"  timeout: 3s",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("APP_CPU_ITERATIONS", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LogLevel != slog.LevelWarn {
		t.Fatalf("expected warn level from file, got %v", cfg.LogLevel)
	}
	if !reflect.DeepEqual(cfg.Features, []string{"cpu", "gpu"}) {
		t.Fatalf("expected features from file, got %v", cfg.Features)
	}
	if cfg.Bench.CPUIterations != 9 {
		t.Fatalf("expected env to override file, got %d", cfg.Bench.CPUIterations)
	}
	if cfg.Bench.GPUWarmup != 2 || cfg.Bench.GPUIterations != 1000 {
		t.Fatalf("unexpected bench config %+v", cfg.Bench)
	}
	if cfg.Network.PingHost != "9.9.9.9" || cfg.Network.Timeout != 3*time.Second {
		t.Fatalf("unexpected network config %+v", cfg.Network)
	}
	if cfg.Network.IPURL != "https://api.ipify.org" {
		t.Fatalf("expected default ip url to survive, got %q", cfg.Network.IPURL)
	}
}

func TestLoadFileFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwbench.yaml")
	if err := os.WriteFile(path, []byte("sysfs_root: /srv/sys\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("APP_CONFIG_FILE", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SysfsRoot != "/srv/sys" {
		t.Fatalf("expected sysfs root from APP_CONFIG_FILE, got %q", cfg.SysfsRoot)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("APP_CONFIG_FILE", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Bench.CPUIterations != 5 {
		t.Fatalf("expected defaults, got %+v", cfg.Bench)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	testCases := []struct {
		name     string
		contents string
	}{
		{"UnknownKey", "listen_addr: :8080\n"},
		{"BadLogLevel", "log_level: loud\n"},
		{"BadDuration", "network:\n  timeout: soon\n"},
		{"ZeroIterations", "bench:\n  gpu_iterations: 0\n"},
		{"Malformed", "bench: [\n"},
	}

	t.Setenv("APP_CONFIG_FILE", "")
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".yaml")
			if err := os.WriteFile(path, []byte(tc.contents), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %q", tc.contents)
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"InvalidLogLevel", "APP_LOG_LEVEL", "loud"},
		{"EmptyFeatures", "APP_FEATURES", ","},
		{"InvalidCPUIterations", "APP_CPU_ITERATIONS", "many"},
		{"NonPositiveCPUIterations", "APP_CPU_ITERATIONS", "0"},
		{"NonPositiveGPUIterations", "APP_GPU_ITERATIONS", "-5"},
		{"NegativeWarmup", "APP_GPU_WARMUP", "-1"},
		{"InvalidTimeout", "APP_NET_TIMEOUT", "nope"},
		{"NonPositiveTimeout", "APP_NET_TIMEOUT", "0s"},
		{"NegativeSpeedTimeout", "APP_NET_SPEED_TIMEOUT", "-1s"},
		{"InvalidDownloadBytes", "APP_NET_DOWNLOAD_BYTES", "lots"},
		{"NonPositiveUploadBytes", "APP_NET_UPLOAD_BYTES", "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("APP_CONFIG_FILE", "")
			t.Setenv(tc.key, tc.val)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}
