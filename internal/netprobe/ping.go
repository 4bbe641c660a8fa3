package netprobe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// errNoSocket reports that the echo socket could not be opened.
var errNoSocket = errors.New("echo socket unavailable")

// EchoPing sends one ICMP echo request and returns its round trip time.
// Outside Windows it uses an unprivileged datagram socket.
func EchoPing(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve %s: %w", ErrUnreachable, host, err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	if err := pinger.RunWithContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("ping %s: %w", host, ctxErr)
		}
		return 0, fmt.Errorf("%w: ping %s: %w", errNoSocket, host, err)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("ping %s: %w", host, ctxErr)
		}
		return 0, fmt.Errorf("%w: ping %s: no reply within %s", ErrTimeout, host, timeout)
	}
	return stats.AvgRtt, nil
}

// SystemPing sends a single echo request through the system ping binary and
// returns the wall time of the invocation, process start included.
func SystemPing(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
	name, args := pingCommand(runtime.GOOS, host, timeout)

	start := time.Now()
	if err := exec.CommandContext(ctx, name, args...).Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("ping %s: %w", host, ctxErr)
		}
		return 0, fmt.Errorf("%w: ping %s: %w", ErrUnreachable, host, err)
	}
	return time.Since(start), nil
}

// withFallback runs primary and retries with fallback only when primary
// could not open its socket.
func withFallback(primary, fallback Pinger, logger *slog.Logger) Pinger {
	return func(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
		rtt, err := primary(ctx, host, timeout)
		if err == nil || !errors.Is(err, errNoSocket) {
			return rtt, err
		}
		logger.Debug("echo socket unavailable, using system ping", "err", err)
		return fallback(ctx, host, timeout)
	}
}

func pingCommand(goos, host string, timeout time.Duration) (string, []string) {
	seconds := int(timeout.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	switch goos {
	case "windows":
		return "ping", []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), host}
	case "darwin", "freebsd", "openbsd", "netbsd":
		return "ping", []string{"-c", "1", "-t", strconv.Itoa(seconds), host}
	default:
		return "ping", []string{"-c", "1", "-W", strconv.Itoa(seconds), host}
	}
}
