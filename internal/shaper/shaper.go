// File: internal/shaper/shaper.go
//
// The shaper owns every piece of long-lived mutable state the fetch path
// shares: the proxy pool, the per-domain session map and the per-domain
// throttle timestamps. Nothing outside this package mutates them.
package shaper

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/karstyne/leadscout/internal/config"
)

const (
	// rateLimitPenalty is applied to a domain's next-allowed time after the
	// upstream answers HTTP 429.
	rateLimitPenalty = 30 * time.Second
	// recentHitWindow widens the domain delay when the same domain was hit
	// again this quickly.
	recentHitWindow = 5 * time.Second
)

// Session is one simulated browsing session against a single domain. It is
// retired after its request cap or age limit, whichever comes first.
type Session struct {
	ID           string
	Domain       string
	StartedAt    time.Time
	RequestCount int
	UserAgent    string
	LastReferer  string
}

// RequestPlan is everything a fetch needs to look like organic traffic:
// shaped headers, an optional proxy, the session it rides on, and an optional
// interaction pause to burn before the request goes out.
type RequestPlan struct {
	Headers  http.Header
	ProxyURL *url.URL
	Proxy    *ProxyRecord
	Session  Session
	Pause    time.Duration
}

// Stats is a point-in-time snapshot of shaper telemetry.
type Stats struct {
	Requests    int64
	Successes   int64
	Failures    int64
	BlockEvents int64
	Domains     int
	Proxies     []ProxyRecord
}

type domainState struct {
	lastRequest time.Time
	nextAllowed time.Time
}

// Shaper produces randomized, session-aware request parameters and enforces
// per-domain throttling. Safe for concurrent use; the domain map is guarded
// by a single mutex and last-request times are reserved under that lock so
// two workers never compute the same stale delay.
type Shaper struct {
	cfg     config.ShaperConfig
	logger  *zap.Logger
	proxies *ProxyPool
	global  *rate.Limiter

	mu       sync.Mutex
	rng      *rand.Rand
	domains  map[string]*domainState
	sessions map[string]*Session

	statsMu     sync.Mutex
	requests    int64
	successes   int64
	failures    int64
	blockEvents int64

	// now and sleep are injection points for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Shaper.
type Option func(*Shaper)

// WithRand injects a seeded random source for reproducible behavior in tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Shaper) { s.rng = rng }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Shaper) { s.now = now }
}

// WithSleeper injects the sleep implementation.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Shaper) { s.sleep = sleep }
}

// New creates a Shaper from configuration.
func New(cfg config.ShaperConfig, logger *zap.Logger, opts ...Option) *Shaper {
	interval := time.Minute / time.Duration(max(1, cfg.RequestsPerMinute))
	s := &Shaper{
		cfg:      cfg,
		logger:   logger.Named("shaper"),
		proxies:  NewProxyPool(cfg.Proxies, logger),
		global:   rate.NewLimiter(rate.Every(interval), 1),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		domains:  make(map[string]*domainState),
		sessions: make(map[string]*Session),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Proxies exposes the pool for outcome reporting and health checks.
func (s *Shaper) Proxies() *ProxyPool { return s.proxies }

// PrepareRequest selects a persona, session and proxy for the target URL and
// derives a consistent header set. It never fails; only the network fetch
// itself can.
func (s *Shaper) PrepareRequest(targetURL string) RequestPlan {
	domain := domainOf(targetURL)

	s.mu.Lock()
	sess := s.sessionLocked(domain)
	sess.RequestCount++
	persona := s.personaForLocked(sess)
	lang := acceptLanguages[s.rng.Intn(len(acceptLanguages))]
	pause := s.pauseLocked()
	referer := sess.LastReferer
	sess.LastReferer = targetURL
	sessCopy := *sess
	s.mu.Unlock()

	headers := buildHeaders(persona, lang, referer)

	plan := RequestPlan{
		Headers: headers,
		Session: sessCopy,
		Pause:   pause,
	}

	if p := s.proxies.Select(); p != nil {
		if u, err := parseProxyURL(p.Address); err == nil {
			plan.Proxy = p
			plan.ProxyURL = u
		} else {
			s.logger.Warn("Skipping unparseable proxy address", zap.String("proxy", p.Address), zap.Error(err))
		}
	}

	return plan
}

// Throttle blocks until a request to the target URL is allowed. The required
// delay is the larger of the global budget delay and the domain-specific
// delay; a domain that has never been seen contributes nothing, and the
// sleep is never longer than needed.
func (s *Shaper) Throttle(ctx context.Context, targetURL string) error {
	domain := domainOf(targetURL)

	// Reserve a slot in the global budget. Reservations are atomic, so
	// concurrent workers space themselves out instead of piling onto the
	// same window.
	reservation := s.global.Reserve()
	globalDelay := reservation.Delay()

	s.mu.Lock()
	now := s.now()
	st, seen := s.domains[domain]
	if !seen {
		st = &domainState{}
		s.domains[domain] = st
	}

	var domainDelay time.Duration
	if !st.lastRequest.IsZero() {
		base := time.Minute / time.Duration(max(1, s.cfg.RequestsPerMinute))
		elapsed := now.Sub(st.lastRequest)

		var factor float64
		if elapsed < recentHitWindow {
			// Same domain hit again quickly: back off harder.
			factor = 2.0 + s.rng.Float64()
		} else {
			factor = 0.5 + s.rng.Float64()
		}
		required := time.Duration(float64(base) * factor)
		if required > elapsed {
			domainDelay = required - elapsed
		}
	}
	if penalty := st.nextAllowed.Sub(now); penalty > domainDelay {
		domainDelay = penalty
	}

	wait := max(globalDelay, domainDelay)
	// Reserve the slot before releasing the lock so the next worker for this
	// domain computes its delay against our reservation, not a stale time.
	st.lastRequest = now.Add(wait)
	s.mu.Unlock()

	s.statsMu.Lock()
	s.requests++
	s.statsMu.Unlock()

	if wait <= 0 {
		return nil
	}
	s.logger.Debug("Throttling request",
		zap.String("domain", domain),
		zap.Duration("wait", wait),
	)
	if err := s.sleep(ctx, wait); err != nil {
		reservation.Cancel()
		return err
	}
	return nil
}

// RecordResponse feeds response telemetry back into throttle and proxy state.
// HTTP 429 pushes the domain's next-allowed time out by a fixed penalty;
// HTTP 403 is recorded as a block event only.
func (s *Shaper) RecordResponse(targetURL string, statusCode int, proxyAddr string, ok bool) {
	domain := domainOf(targetURL)

	switch statusCode {
	case http.StatusTooManyRequests:
		s.mu.Lock()
		st, seen := s.domains[domain]
		if !seen {
			st = &domainState{}
			s.domains[domain] = st
		}
		st.nextAllowed = s.now().Add(rateLimitPenalty)
		s.mu.Unlock()
		s.logger.Warn("Rate limited by domain, applying penalty",
			zap.String("domain", domain),
			zap.Duration("penalty", rateLimitPenalty),
		)
	case http.StatusForbidden:
		s.statsMu.Lock()
		s.blockEvents++
		s.statsMu.Unlock()
		s.logger.Warn("Request blocked by domain", zap.String("domain", domain))
	}

	s.statsMu.Lock()
	if ok {
		s.successes++
	} else {
		s.failures++
	}
	s.statsMu.Unlock()

	if proxyAddr != "" {
		s.proxies.MarkResult(proxyAddr, ok)
	}
}

// Stats returns a snapshot of shaper telemetry.
func (s *Shaper) Stats() Stats {
	s.statsMu.Lock()
	st := Stats{
		Requests:    s.requests,
		Successes:   s.successes,
		Failures:    s.failures,
		BlockEvents: s.blockEvents,
	}
	s.statsMu.Unlock()

	s.mu.Lock()
	st.Domains = len(s.domains)
	s.mu.Unlock()

	st.Proxies = s.proxies.Snapshot()
	return st
}

// sessionLocked returns the live session for a domain, retiring any session
// past its request cap or age limit. Callers hold s.mu.
func (s *Shaper) sessionLocked(domain string) *Session {
	now := s.now()
	if sess, ok := s.sessions[domain]; ok {
		expired := sess.RequestCount >= s.cfg.SessionMaxRequests ||
			now.Sub(sess.StartedAt) >= s.cfg.SessionMaxAge
		if !expired {
			return sess
		}
		s.logger.Debug("Retiring session",
			zap.String("domain", domain),
			zap.Int("requests", sess.RequestCount),
		)
	}

	persona := personaPool[s.rng.Intn(len(personaPool))]
	sess := &Session{
		ID:        fmt.Sprintf("%s-%s", domain, uuid.New().String()),
		Domain:    domain,
		StartedAt: now,
		UserAgent: persona.UserAgent,
	}
	s.sessions[domain] = sess
	return sess
}

// personaForLocked resolves the persona backing a session's user agent.
func (s *Shaper) personaForLocked(sess *Session) Persona {
	for _, p := range personaPool {
		if p.UserAgent == sess.UserAgent {
			return p
		}
	}
	return personaPool[0]
}

// pauseLocked rolls the dice on simulating a short scroll/read pause.
func (s *Shaper) pauseLocked() time.Duration {
	if s.rng.Float64() >= s.cfg.InteractionChance {
		return 0
	}
	return time.Second + time.Duration(s.rng.Float64()*float64(time.Second))
}

func buildHeaders(p Persona, lang, referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", p.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", lang)
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Connection", "keep-alive")

	// Client hints are only sent by Chromium-family browsers, and must agree
	// with the User-Agent string.
	if p.Family == "chrome" || p.Family == "edge" {
		h.Set("Sec-CH-UA-Platform", fmt.Sprintf("%q", p.Platform))
		if p.Device == DeviceMobile {
			h.Set("Sec-CH-UA-Mobile", "?1")
		} else {
			h.Set("Sec-CH-UA-Mobile", "?0")
		}
	}
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}

func parseProxyURL(addr string) (*url.URL, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", addr, err)
	}
	return u, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
