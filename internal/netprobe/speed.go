package netprobe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Mbps converts a transfer of n bytes over elapsed into megabits per second.
func Mbps(n int64, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(n) * 8 / (seconds * 1e6)
}

func (p *Prober) download(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SpeedTimeout)
	defer cancel()

	target, err := url.Parse(p.cfg.DownloadURL)
	if err != nil {
		return 0, fmt.Errorf("parse download url: %w", err)
	}
	query := target.Query()
	query.Set("bytes", strconv.FormatInt(p.cfg.DownloadBytes, 10))
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build download request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("download body: %w", err)
	}
	elapsed := time.Since(start)
	if n == 0 {
		return 0, fmt.Errorf("download: empty body")
	}

	p.logger.Debug("download finished", "bytes", n, "elapsed", elapsed)
	return Mbps(n, elapsed), nil
}

func (p *Prober) upload(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SpeedTimeout)
	defer cancel()

	payload := randomPayload(p.cfg.UploadBytes)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.UploadURL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return 0, fmt.Errorf("upload response: %w", err)
	}
	elapsed := time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("upload: unexpected status %d", resp.StatusCode)
	}

	p.logger.Debug("upload finished", "bytes", len(payload), "elapsed", elapsed)
	return Mbps(int64(len(payload)), elapsed), nil
}

func randomPayload(n int64) []byte {
	var seed [32]byte
	for i := range seed {
		seed[i] = byte(rand.Uint32())
	}
	payload := make([]byte, n)
	_, _ = rand.NewChaCha8(seed).Read(payload)
	return payload
}
