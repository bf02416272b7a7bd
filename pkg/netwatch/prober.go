package netwatch

import (
	"context"
	"log/slog"
	"time"
)

// Pinger answers whether the remote responds at all.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober polls a Pinger and feeds the result to a Monitor.
type Prober struct {
	pinger   Pinger
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

func NewProber(pinger Pinger, monitor *Monitor, interval, timeout time.Duration, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Prober{
		pinger:   pinger,
		monitor:  monitor,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Probe pings once and records the outcome.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	if err != nil {
		p.log.Debug("probe failed", "error", err)
	}
	p.monitor.Set(err == nil)
	return err == nil
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-t.C:
			p.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}
