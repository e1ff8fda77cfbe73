package shaper

import (
	"context"
	"math/rand"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karstyne/leadscout/internal/config"
)

func testShaperConfig() config.ShaperConfig {
	return config.ShaperConfig{
		// High budget so the global limiter stays out of the way in
		// domain-delay tests.
		RequestsPerMinute:  6000,
		SessionMaxRequests: 10,
		SessionMaxAge:      30 * time.Minute,
		InteractionChance:  0.3,
	}
}

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// sleepRecorder captures requested sleep durations instead of sleeping.
type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestShaper(t *testing.T, cfg config.ShaperConfig, seed int64) (*Shaper, *fakeClock, *sleepRecorder) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rec := &sleepRecorder{}
	s := New(cfg, zap.NewNop(),
		WithRand(rand.New(rand.NewSource(seed))),
		WithClock(clock.now),
		WithSleeper(rec.sleep),
	)
	return s, clock, rec
}

func TestPrepareRequestHeaders(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestShaper(t, testShaperConfig(), 42)

	plan := s.PrepareRequest("https://example.com/story")

	ua := plan.Headers.Get("User-Agent")
	require.NotEmpty(t, ua)
	assert.Equal(t, ua, plan.Session.UserAgent, "headers must match the session persona")
	assert.NotEmpty(t, plan.Headers.Get("Accept-Language"))
	assert.Empty(t, plan.Headers.Get("Referer"), "first request of a session has no referer")

	// Client hints, when present, must agree with the user agent.
	if mobile := plan.Headers.Get("Sec-CH-UA-Mobile"); mobile == "?1" {
		assert.Contains(t, ua, "Mobile")
	}

	second := s.PrepareRequest("https://example.com/other")
	assert.Equal(t, "https://example.com/story", second.Headers.Get("Referer"))
	assert.Equal(t, plan.Session.ID, second.Session.ID, "same domain reuses the session")
}

func TestSessionRetirement(t *testing.T) {
	t.Parallel()
	cfg := testShaperConfig()
	cfg.SessionMaxRequests = 3
	s, clock, _ := newTestShaper(t, cfg, 1)

	first := s.PrepareRequest("https://example.com/a")
	for i := 0; i < 2; i++ {
		s.PrepareRequest("https://example.com/a")
	}
	rotated := s.PrepareRequest("https://example.com/a")
	assert.NotEqual(t, first.Session.ID, rotated.Session.ID, "session must retire after its request cap")

	// Age-based retirement.
	fresh := s.PrepareRequest("https://aged.example/a")
	clock.advance(31 * time.Minute)
	aged := s.PrepareRequest("https://aged.example/a")
	assert.NotEqual(t, fresh.Session.ID, aged.Session.ID, "session must retire after its age limit")
}

func TestInteractionPauseIsReproducible(t *testing.T) {
	t.Parallel()
	collect := func() []time.Duration {
		s, _, _ := newTestShaper(t, testShaperConfig(), 7)
		out := make([]time.Duration, 0, 20)
		for i := 0; i < 20; i++ {
			out = append(out, s.PrepareRequest("https://example.com/a").Pause)
		}
		return out
	}

	first := collect()
	second := collect()
	assert.Equal(t, first, second, "seeded runs must produce identical pauses")

	var paused int
	for _, p := range first {
		if p > 0 {
			paused++
			assert.GreaterOrEqual(t, p, time.Second)
			assert.LessOrEqual(t, p, 2*time.Second)
		}
	}
	assert.Greater(t, paused, 0, "some requests should pause")
	assert.Less(t, paused, 20, "not every request should pause")
}

func TestThrottleUnseenDomainDoesNotWait(t *testing.T) {
	t.Parallel()
	s, _, rec := newTestShaper(t, testShaperConfig(), 3)

	require.NoError(t, s.Throttle(context.Background(), "https://never-seen.example/a"))
	assert.Empty(t, rec.waits, "a domain that has not been seen must not be throttled")
}

func TestThrottleRecentHitInflatesDelay(t *testing.T) {
	t.Parallel()
	cfg := testShaperConfig()
	cfg.RequestsPerMinute = 60 // 1s base interval
	s, clock, rec := newTestShaper(t, cfg, 3)

	require.NoError(t, s.Throttle(context.Background(), "https://example.com/a"))
	clock.advance(100 * time.Millisecond)
	require.NoError(t, s.Throttle(context.Background(), "https://example.com/b"))

	require.NotEmpty(t, rec.waits)
	wait := rec.waits[len(rec.waits)-1]
	// Base 1s at factor 2x-3x minus 100ms elapsed: between 1.9s and 2.9s.
	assert.GreaterOrEqual(t, wait, 1900*time.Millisecond)
	assert.LessOrEqual(t, wait, 2900*time.Millisecond)
}

func TestRateLimitPenaltyDelaysNextRequest(t *testing.T) {
	t.Parallel()
	s, clock, rec := newTestShaper(t, testShaperConfig(), 5)

	require.NoError(t, s.Throttle(context.Background(), "https://example.com/a"))
	s.RecordResponse("https://example.com/a", http.StatusTooManyRequests, "", false)

	clock.advance(5 * time.Second)
	require.NoError(t, s.Throttle(context.Background(), "https://example.com/b"))

	require.NotEmpty(t, rec.waits)
	wait := rec.waits[len(rec.waits)-1]
	assert.GreaterOrEqual(t, wait, 25*time.Second, "30s penalty minus 5s elapsed")
}

func TestThrottleCancelledContext(t *testing.T) {
	t.Parallel()
	cfg := testShaperConfig()
	cfg.RequestsPerMinute = 60
	clock := &fakeClock{t: time.Now()}
	s := New(cfg, zap.NewNop(),
		WithRand(rand.New(rand.NewSource(9))),
		WithClock(clock.now),
	)

	require.NoError(t, s.Throttle(context.Background(), "https://example.com/a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Throttle(ctx, "https://example.com/b")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecordResponseBlockTelemetry(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestShaper(t, testShaperConfig(), 11)

	s.RecordResponse("https://example.com/a", http.StatusForbidden, "", false)
	s.RecordResponse("https://example.com/b", http.StatusOK, "", true)

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.BlockEvents)
	assert.EqualValues(t, 1, stats.Successes)
	assert.EqualValues(t, 1, stats.Failures)
}

func TestProxyPoolHealthArithmetic(t *testing.T) {
	t.Parallel()
	pool := NewProxyPool([]string{"10.0.0.1:8080"}, zap.NewNop())

	// Health never exceeds 100 regardless of success streaks.
	for i := 0; i < 50; i++ {
		pool.MarkResult("10.0.0.1:8080", true)
	}
	assert.Equal(t, 100, pool.Snapshot()[0].Health)

	// Health never drops below 0 regardless of failure streaks.
	for i := 0; i < 50; i++ {
		pool.MarkResult("10.0.0.1:8080", false)
	}
	assert.Equal(t, 0, pool.Snapshot()[0].Health)

	// Recovery climbs back up from the floor.
	for i := 0; i < 3; i++ {
		pool.MarkResult("10.0.0.1:8080", true)
	}
	assert.Equal(t, 15, pool.Snapshot()[0].Health)
}

func TestProxySelectionPrefersHealthy(t *testing.T) {
	t.Parallel()
	pool := NewProxyPool([]string{"10.0.0.1:8080", "10.0.0.2:8080"}, zap.NewNop())

	// Drive the first proxy down to health 45.
	for i := 0; i < 6; i++ {
		pool.MarkResult("10.0.0.1:8080", false)
	}
	pool.MarkResult("10.0.0.1:8080", true)
	require.Equal(t, 45, pool.Snapshot()[0].Health)

	// While a proxy above the floor exists, the unhealthy one is never picked.
	for i := 0; i < 20; i++ {
		selected := pool.Select()
		require.NotNil(t, selected)
		assert.Equal(t, "10.0.0.2:8080", selected.Address)
	}
}

func TestProxySelectionEmptyPool(t *testing.T) {
	t.Parallel()
	pool := NewProxyPool(nil, zap.NewNop())
	assert.Nil(t, pool.Select(), "no proxies configured means direct connection, not an error")
}

func TestPrepareRequestWithProxies(t *testing.T) {
	t.Parallel()
	cfg := testShaperConfig()
	cfg.Proxies = []string{"10.0.0.1:8080"}
	s, _, _ := newTestShaper(t, cfg, 13)

	plan := s.PrepareRequest("https://example.com/a")
	require.NotNil(t, plan.Proxy)
	require.NotNil(t, plan.ProxyURL)
	assert.Equal(t, "10.0.0.1:8080", plan.ProxyURL.Host)
}
