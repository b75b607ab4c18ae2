package upstream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Prober periodically probes every target of one upstream. A single failed
// probe marks a target Unhealthy; a target becomes Healthy again only after
// the configured number of consecutive successes.
type Prober struct {
	upstream *Upstream
	client   *http.Client
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func newProber(u *Upstream, logger *slog.Logger) *Prober {
	return &Prober{
		upstream: u,
		client: &http.Client{
			Timeout: u.healthCheck.Timeout(),
			// Probes must observe the target itself, not a redirect.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// start launches the probe loop. The first round runs after one interval;
// until then targets stay Unknown and selection fails open to them.
func (p *Prober) start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
}

func (p *Prober) run(ctx context.Context) {
	defer close(p.done)

	interval := p.upstream.healthCheck.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("health prober started",
		slog.String("upstream", p.upstream.Name),
		slog.Duration("interval", interval),
		slog.String("path", p.upstream.healthCheck.Path))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

// probeAll runs one probe round over the upstream's active targets.
func (p *Prober) probeAll(ctx context.Context) {
	for _, t := range p.upstream.Targets() {
		p.probeOne(ctx, t)
	}
}

// probeOne issues a single GET probe against one target and applies the
// health transition rules to the result.
func (p *Prober) probeOne(ctx context.Context, t *Target) {
	url := "http://" + t.Address + p.upstream.healthCheck.Path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.fail(t, err)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.fail(t, err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.fail(t, &probeStatusError{status: resp.StatusCode})
		return
	}
	p.succeed(t)
}

func (p *Prober) fail(t *Target, err error) {
	t.RecordFailure()
	if t.Health() == Unhealthy {
		t.successes.Store(0)
		return
	}
	t.SetHealth(Unhealthy)
	p.logger.Warn("target unhealthy",
		slog.String("upstream", p.upstream.Name),
		slog.String("address", t.Address),
		slog.String("error", err.Error()))
}

func (p *Prober) succeed(t *Target) {
	if t.Health() == Healthy {
		return
	}
	needed := p.upstream.healthCheck.HealthyThreshold
	if needed < 1 {
		needed = 1
	}
	if int(t.successes.Add(1)) < needed {
		return
	}
	t.SetHealth(Healthy)
	p.logger.Info("target healthy",
		slog.String("upstream", p.upstream.Name),
		slog.String("address", t.Address))
}

// stop cancels the probe loop and waits for it to exit.
func (p *Prober) stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

type probeStatusError struct {
	status int
}

func (e *probeStatusError) Error() string {
	return "probe returned status " + strconv.Itoa(e.status)
}
