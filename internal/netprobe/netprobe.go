// Package netprobe measures reachability, public address and throughput of
// the host's network connection.
package netprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnreachable reports that a probe target could not be reached.
	ErrUnreachable = errors.New("network unreachable")
	// ErrTimeout reports that a probe did not finish within its deadline.
	ErrTimeout = errors.New("network probe timed out")
)

// Default probe targets.
const (
	DefaultPingHost      = "8.8.8.8"
	DefaultIPURL         = "https://api.ipify.org"
	DefaultDownloadURL   = "https://speed.cloudflare.com/__down"
	DefaultUploadURL     = "https://speed.cloudflare.com/__up"
	DefaultDownloadBytes = 100_000_000
	DefaultUploadBytes   = 10_000_000
	DefaultTimeout       = 10 * time.Second
	DefaultSpeedTimeout  = 60 * time.Second
)

// Metrics holds the outcome of each probe. A nil field means that probe
// failed.
type Metrics struct {
	PingMS       *float64
	PublicIP     *string
	DownloadMbps *float64
	UploadMbps   *float64
}

// Empty reports whether every probe failed.
func (m Metrics) Empty() bool {
	return m.PingMS == nil && m.PublicIP == nil && m.DownloadMbps == nil && m.UploadMbps == nil
}

// Config selects probe targets and deadlines. Zero values fall back to the
// package defaults.
type Config struct {
	PingHost      string
	IPURL         string
	DownloadURL   string
	UploadURL     string
	DownloadBytes int64
	UploadBytes   int64
	Timeout       time.Duration
	SpeedTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingHost == "" {
		c.PingHost = DefaultPingHost
	}
	if c.IPURL == "" {
		c.IPURL = DefaultIPURL
	}
	if c.DownloadURL == "" {
		c.DownloadURL = DefaultDownloadURL
	}
	if c.UploadURL == "" {
		c.UploadURL = DefaultUploadURL
	}
	if c.DownloadBytes <= 0 {
		c.DownloadBytes = DefaultDownloadBytes
	}
	if c.UploadBytes <= 0 {
		c.UploadBytes = DefaultUploadBytes
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SpeedTimeout <= 0 {
		c.SpeedTimeout = DefaultSpeedTimeout
	}
	return c
}

// Pinger measures the round trip to host.
type Pinger func(ctx context.Context, host string, timeout time.Duration) (time.Duration, error)

// Option customises a Prober.
type Option func(*Prober)

// WithHTTPClient replaces the HTTP client used for address and speed probes.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Prober) {
		if client != nil {
			p.client = client
		}
	}
}

// WithPinger replaces the ICMP echo probe.
func WithPinger(pinger Pinger) Option {
	return func(p *Prober) {
		if pinger != nil {
			p.ping = pinger
		}
	}
}

// Prober runs the network probes.
type Prober struct {
	cfg    Config
	client *http.Client
	ping   Pinger
	logger *slog.Logger
}

// NewProber constructs a Prober.
func NewProber(cfg Config, logger *slog.Logger, opts ...Option) *Prober {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Prober{
		cfg:    cfg.withDefaults(),
		client: &http.Client{},
		logger: logger,
	}
	p.ping = withFallback(EchoPing, SystemPing, logger)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe runs ping and public address lookup concurrently, then the download
// and upload speed tests one after another. Individual probe failures leave
// the matching field nil. An error is returned only when every probe failed.
func (p *Prober) Probe(ctx context.Context) (Metrics, error) {
	var (
		metrics        Metrics
		pingErr, ipErr error
		downErr, upErr error
	)

	metaCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		rtt, err := p.ping(metaCtx, p.cfg.PingHost, p.cfg.Timeout)
		if err != nil {
			pingErr = classify(err)
			return nil
		}
		metrics.PingMS = float64Ptr(float64(rtt) / float64(time.Millisecond))
		return nil
	})
	g.Go(func() error {
		ip, err := p.publicIP(metaCtx)
		if err != nil {
			ipErr = classify(err)
			return nil
		}
		metrics.PublicIP = &ip
		return nil
	})
	_ = g.Wait()

	if mbps, err := p.download(ctx); err != nil {
		downErr = classify(err)
	} else {
		metrics.DownloadMbps = float64Ptr(mbps)
	}
	if mbps, err := p.upload(ctx); err != nil {
		upErr = classify(err)
	} else {
		metrics.UploadMbps = float64Ptr(mbps)
	}

	for probe, err := range map[string]error{"ping": pingErr, "public_ip": ipErr, "download": downErr, "upload": upErr} {
		if err != nil {
			p.logger.Warn("network probe failed", "probe", probe, "err", err)
		}
	}

	if metrics.Empty() {
		return Metrics{}, fmt.Errorf("all network probes failed: %w", errors.Join(pingErr, ipErr, downErr, upErr))
	}
	return metrics, nil
}

func (p *Prober) publicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.IPURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("public ip lookup: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("read public ip: %w", err)
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("public ip lookup: invalid address %q", ip)
	}
	return ip, nil
}

func classify(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreachable) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}

func float64Ptr(value float64) *float64 {
	v := value
	return &v
}
