package netmon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nutriai/mealsync/internal/ports"
)

// ProberConfig configures a Prober.
type ProberConfig struct {
	// URL is requested with GET; any response below 500 counts as online.
	URL string

	// Interval between probes. Default: 15 seconds.
	Interval time.Duration

	// Timeout of a single probe. Default: 5 seconds.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failed probes before
	// going offline. Default: 2.
	FailureThreshold int
}

// Prober decides connectivity by polling a health URL.
type Prober struct {
	notifier
	cfg    ProberConfig
	client ports.HTTPClient

	probeMu  sync.Mutex
	failures int
}

func NewProber(cfg ProberConfig, client ports.HTTPClient, logger ports.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 2
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Prober{
		notifier: newNotifier(false, "probe", logger),
		cfg:      cfg,
		client:   client,
	}
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		p.ProbeOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProbeOnce performs one probe and updates the state.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	p.probeMu.Lock()
	defer p.probeMu.Unlock()

	err := p.probe(ctx)
	if err == nil {
		p.failures = 0
		p.set(true)
		return true
	}
	if ctx.Err() != nil {
		return p.Online()
	}

	p.failures++
	p.logger.Debug("connectivity probe failed",
		ports.Err(err),
		ports.Int("consecutive_failures", p.failures),
	)
	if p.failures >= p.cfg.FailureThreshold {
		p.set(false)
	}
	return p.Online()
}

func (p *Prober) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe returned %d", resp.StatusCode)
	}
	return nil
}
