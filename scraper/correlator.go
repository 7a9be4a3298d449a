package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/fonfetch/models"
)

// RawResponse is a captured network response. Body was read once, at
// capture time, and is never re-read from the browser.
type RawResponse struct {
	URL    string
	Status int
	Body   string
}

// Envelope is a RawResponse stamped with its arrival.
type Envelope struct {
	RawResponse
	CapturedAt time.Time
	Seq        int64
}

// Correlator turns the browser's push-based response events for one
// endpoint into a pull-based queue. Capture is called from the driver's
// event goroutine; the Consume methods are called by the orchestrator.
type Correlator struct {
	pattern string
	ch      chan Envelope
	seq     atomic.Int64
	dropped atomic.Int64

	mu     sync.Mutex
	markup string // last markup body seen in place of data

	stopOnce sync.Once
	stop     func()
}

// NewCorrelator returns a correlator for URLs containing pattern.
func NewCorrelator(pattern string, buffer int) *Correlator {
	if buffer < 1 {
		buffer = 1
	}
	return &Correlator{
		pattern: pattern,
		ch:      make(chan Envelope, buffer),
		stop:    func() {},
	}
}

// Matches reports whether url belongs to the correlated endpoint.
func (c *Correlator) Matches(url string) bool {
	return strings.Contains(url, c.pattern)
}

// Capture enqueues r if it qualifies: 2xx status and a body that is neither
// empty, "[]" nor markup. A markup body is remembered so a later timeout can
// be reported as a WAF block. Capture never blocks; it reports whether r was
// enqueued.
func (c *Correlator) Capture(r RawResponse) bool {
	if r.Status < 200 || r.Status >= 300 {
		slog.Debug("correlator: ignoring non-2xx response", "endpoint", c.pattern, "status", r.Status)
		return false
	}
	if !HasContent(r.Body) {
		return false
	}
	if models.IsMarkup(r.Body) {
		c.mu.Lock()
		c.markup = r.Body
		c.mu.Unlock()
		slog.Warn("correlator: markup instead of data", "endpoint", c.pattern, "url", r.URL)
		return false
	}

	env := Envelope{RawResponse: r, CapturedAt: time.Now(), Seq: c.seq.Add(1)}
	select {
	case c.ch <- env:
		return true
	default:
		c.dropped.Add(1)
		slog.Warn("correlator: queue full, dropping response", "endpoint", c.pattern, "seq", env.Seq)
		return false
	}
}

// HasContent reports whether body could carry data: it is neither blank nor
// an empty array.
func HasContent(body string) bool {
	trimmed := strings.TrimSpace(body)
	return trimmed != "" && trimmed != "[]"
}

// ConsumeOne returns the first qualifying envelope to arrive within timeout.
func (c *Correlator) ConsumeOne(ctx context.Context, timeout time.Duration) (Envelope, error) {
	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-c.ch:
		return env, nil
	case <-timer.C:
		return Envelope{}, c.timeoutError("consume first", timeout, start)
	case <-ctx.Done():
		return Envelope{}, c.timeoutError("consume first", timeout, start)
	}
}

// ConsumeLast debounces by silence: it keeps the most recent qualifying
// envelope and returns it once at least minCount have arrived and none
// arrived for quietPeriod. If maxWait runs out after at least one arrival
// the latest one is returned anyway.
func (c *Correlator) ConsumeLast(ctx context.Context, minCount int, quietPeriod, maxWait time.Duration) (Envelope, error) {
	start := time.Now()
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	quiet := time.NewTimer(quietPeriod)
	quiet.Stop()
	defer quiet.Stop()
	var quietC <-chan time.Time

	var (
		last  Envelope
		count int
	)
	for {
		select {
		case env := <-c.ch:
			last = env
			count++
			if count >= minCount {
				if !quiet.Stop() {
					select {
					case <-quiet.C:
					default:
					}
				}
				quiet.Reset(quietPeriod)
				quietC = quiet.C
			}

		case <-quietC:
			slog.Debug("correlator: quiet period elapsed",
				"endpoint", c.pattern,
				"responses", count,
				"elapsed", time.Since(start),
			)
			return last, nil

		case <-deadline.C:
			if count > 0 {
				slog.Warn("correlator: max wait reached, using latest response",
					"endpoint", c.pattern,
					"responses", count,
					"minCount", minCount,
				)
				return last, nil
			}
			return Envelope{}, c.timeoutError("consume last", maxWait, start)

		case <-ctx.Done():
			if count > 0 {
				return last, nil
			}
			return Envelope{}, c.timeoutError("consume last", maxWait, start)
		}
	}
}

// Dropped returns how many qualifying responses were lost to a full queue.
func (c *Correlator) Dropped() int64 { return c.dropped.Load() }

// SawMarkup reports whether a markup body arrived in place of data.
func (c *Correlator) SawMarkup() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markup != ""
}

// Close stops listening for browser events. It is safe to call repeatedly.
func (c *Correlator) Close() {
	c.stopOnce.Do(c.stop)
}

func (c *Correlator) timeoutError(op string, budget time.Duration, start time.Time) error {
	op = op + " " + c.pattern
	c.mu.Lock()
	markup := c.markup
	c.mu.Unlock()
	if markup != "" {
		return models.NewWafBlockedError(op, markup)
	}
	return models.NewTimeoutError(op, budget,
		fmt.Sprintf("no qualifying response from %s after %s", c.pattern, time.Since(start).Round(time.Millisecond)))
}
