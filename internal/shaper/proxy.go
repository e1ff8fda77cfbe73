// File: internal/shaper/proxy.go
package shaper

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	proxyHealthStart          = 100
	proxyHealthMax            = 100
	proxyHealthMin            = 0
	proxyHealthSuccessReward  = 5
	proxyHealthFailurePenalty = 10
	proxyHealthProbePenalty   = 20
	// Proxies at or below this health are excluded from selection until
	// successes bring them back up.
	proxyHealthFloor = 50
)

// ProxyRecord tracks one outbound proxy and its observed reliability.
type ProxyRecord struct {
	Address      string
	Health       int
	LastUsedAt   time.Time
	SuccessCount int
	FailureCount int
}

// ProxyPool owns the proxy records. All mutation goes through the pool; the
// rest of the pipeline reports outcomes by address.
type ProxyPool struct {
	mu      sync.Mutex
	records []*ProxyRecord
	logger  *zap.Logger
}

// NewProxyPool seeds a pool from configured proxy addresses. An empty address
// list is valid: Select then always returns nil and requests go direct.
func NewProxyPool(addresses []string, logger *zap.Logger) *ProxyPool {
	records := make([]*ProxyRecord, 0, len(addresses))
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		records = append(records, &ProxyRecord{Address: addr, Health: proxyHealthStart})
	}
	return &ProxyPool{records: records, logger: logger.Named("proxy_pool")}
}

// Select returns the healthiest eligible proxy, breaking ties on least
// recent use, or nil when no proxy is configured or eligible. Selection
// never fails; a direct connection is the fallback.
func (p *ProxyPool) Select() *ProxyRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *ProxyRecord
	for _, r := range p.records {
		if r.Health <= proxyHealthFloor {
			continue
		}
		if best == nil || r.Health > best.Health ||
			(r.Health == best.Health && r.LastUsedAt.Before(best.LastUsedAt)) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	best.LastUsedAt = time.Now()
	// Hand back a copy so callers cannot mutate pool state.
	selected := *best
	return &selected
}

// MarkResult applies the health adjustment for one request outcome.
func (p *ProxyPool) MarkResult(address string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.find(address)
	if r == nil {
		return
	}
	if ok {
		r.SuccessCount++
		r.Health = min(proxyHealthMax, r.Health+proxyHealthSuccessReward)
	} else {
		r.FailureCount++
		r.Health = max(proxyHealthMin, r.Health-proxyHealthFailurePenalty)
	}
}

// HealthCheck probes every proxy with a HEAD request against probeURL and
// applies the steeper probe penalty to proxies that fail. Successes earn the
// normal reward so a recovered proxy climbs back above the selection floor.
func (p *ProxyPool) HealthCheck(ctx context.Context, probeURL string, timeout time.Duration) {
	p.mu.Lock()
	addresses := make([]string, 0, len(p.records))
	for _, r := range p.records {
		addresses = append(addresses, r.Address)
	}
	p.mu.Unlock()

	for _, addr := range addresses {
		ok := probeProxy(ctx, addr, probeURL, timeout)

		p.mu.Lock()
		if r := p.find(addr); r != nil {
			if ok {
				r.Health = min(proxyHealthMax, r.Health+proxyHealthSuccessReward)
			} else {
				r.Health = max(proxyHealthMin, r.Health-proxyHealthProbePenalty)
				p.logger.Warn("Proxy failed health check", zap.String("proxy", addr), zap.Int("health", r.Health))
			}
		}
		p.mu.Unlock()
	}
}

// Snapshot returns copies of all proxy records, for telemetry.
func (p *ProxyPool) Snapshot() []ProxyRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProxyRecord, len(p.records))
	for i, r := range p.records {
		out[i] = *r
	}
	return out
}

// find assumes p.mu is held.
func (p *ProxyPool) find(address string) *ProxyRecord {
	for _, r := range p.records {
		if r.Address == address {
			return r
		}
	}
	return nil
}

func probeProxy(ctx context.Context, proxyAddr, probeURL string, timeout time.Duration) bool {
	proxyURL, err := parseProxyURL(proxyAddr)
	if err != nil {
		return false
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
