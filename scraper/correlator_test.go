package scraper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/use-agent/fonfetch/models"
)

const testEndpoint = "/api/DB/BindHistoryInfo"

func ok(body string) RawResponse {
	return RawResponse{URL: "https://portal.test" + testEndpoint, Status: 200, Body: body}
}

func TestCaptureQualifies(t *testing.T) {
	tests := []struct {
		name string
		resp RawResponse
		want bool
	}{
		{"data", ok(`{"data":[{"FONKODU":"AAK"}]}`), true},
		{"empty data is still an answer", ok(`{"data":[]}`), true},
		{"empty body", ok(""), false},
		{"whitespace body", ok("  \n"), false},
		{"empty array", ok("[]"), false},
		{"padded empty array", ok(" [] "), false},
		{"markup", ok("<html><body>Request Rejected</body></html>"), false},
		{"server error", RawResponse{Status: 500, Body: `{"Message":"An error has occurred."}`}, false},
		{"redirect", RawResponse{Status: 302, Body: `{"data":[]}`}, false},
		{"no content", RawResponse{Status: 204, Body: ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCorrelator(testEndpoint, 4)
			if got := c.Capture(tt.resp); got != tt.want {
				t.Errorf("Capture() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConsumeOneReturnsFirst(t *testing.T) {
	c := NewCorrelator(testEndpoint, 4)
	c.Capture(ok(`[{"n":1}]`))
	c.Capture(ok(`[{"n":2}]`))

	env, err := c.ConsumeOne(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if env.Body != `[{"n":1}]` || env.Seq != 1 {
		t.Errorf("ConsumeOne() = seq %d body %q, want the first response", env.Seq, env.Body)
	}
}

func TestConsumeOneTimeout(t *testing.T) {
	c := NewCorrelator(testEndpoint, 4)
	c.Capture(ok("[]"))
	c.Capture(RawResponse{Status: 500, Body: `{"data":[]}`})

	start := time.Now()
	_, err := c.ConsumeOne(context.Background(), 50*time.Millisecond)
	if !models.IsKind(err, models.KindTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("returned before the timeout elapsed")
	}
	ae, _ := models.AsAcquisitionError(err)
	if ae.Timeout != 50*time.Millisecond {
		t.Errorf("Timeout = %v", ae.Timeout)
	}
}

func TestConsumeTimeoutAfterMarkupIsWafBlock(t *testing.T) {
	c := NewCorrelator(testEndpoint, 4)
	c.Capture(ok("<html><title>Request Rejected</title></html>"))

	_, err := c.ConsumeLast(context.Background(), 1, 20*time.Millisecond, 50*time.Millisecond)
	if !models.IsKind(err, models.KindWafBlocked) {
		t.Fatalf("err = %v, want WAF block", err)
	}
	if !c.SawMarkup() {
		t.Error("SawMarkup() = false")
	}
}

// feed delivers bodies with the given delays before each, from another
// goroutine, as the browser's event pump would.
func feed(c *Correlator, delays []time.Duration, bodies []string) {
	go func() {
		for i, body := range bodies {
			time.Sleep(delays[i])
			c.Capture(ok(body))
		}
	}()
}

func TestConsumeLastReturnsFinalBurstMember(t *testing.T) {
	const quiet = 200 * time.Millisecond
	c := NewCorrelator(testEndpoint, 16)

	n := 5
	delays := make([]time.Duration, n)
	bodies := make([]string, n)
	for i := range bodies {
		delays[i] = 20 * time.Millisecond
		bodies[i] = fmt.Sprintf(`[{"n":%d}]`, i+1)
	}
	feed(c, delays, bodies)

	for _, minCount := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("minCount=%d", minCount), func(t *testing.T) {
			if minCount > 1 {
				// Replay the burst for each subtest.
				feed(c, delays, bodies)
			}
			env, err := c.ConsumeLast(context.Background(), minCount, quiet, 5*time.Second)
			if err != nil {
				t.Fatal(err)
			}
			if env.Body != bodies[n-1] {
				t.Errorf("ConsumeLast() = %q, want %q", env.Body, bodies[n-1])
			}
		})
	}
}

func TestConsumeLastPrefersFilteredResponse(t *testing.T) {
	c := NewCorrelator(testEndpoint, 4)
	feed(c,
		[]time.Duration{10 * time.Millisecond, 60 * time.Millisecond},
		[]string{
			`{"data":[{"FONKODU":"AAK"},{"FONKODU":"TTE"},{"FONKODU":"IPB"}]}`,
			`{"data":[{"FONKODU":"TTE"}]}`,
		},
	)

	env, err := c.ConsumeLast(context.Background(), 1, 300*time.Millisecond, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if env.Body != `{"data":[{"FONKODU":"TTE"}]}` {
		t.Errorf("ConsumeLast() = %q, want the filtered second response", env.Body)
	}
	if env.Seq != 2 {
		t.Errorf("Seq = %d, want 2", env.Seq)
	}
}

func TestConsumeLastMaxWaitReturnsLatest(t *testing.T) {
	c := NewCorrelator(testEndpoint, 4)
	c.Capture(ok(`[{"n":1}]`))

	// minCount is never reached; the one response seen is returned at maxWait.
	start := time.Now()
	env, err := c.ConsumeLast(context.Background(), 3, 10*time.Millisecond, 80*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if env.Body != `[{"n":1}]` {
		t.Errorf("Body = %q", env.Body)
	}
	if time.Since(start) < 80*time.Millisecond {
		t.Error("returned before max wait although minCount was not reached")
	}
}

func TestConsumeLastTimeoutNamesEndpoint(t *testing.T) {
	c := NewCorrelator(testEndpoint, 4)
	_, err := c.ConsumeLast(context.Background(), 1, 10*time.Millisecond, 30*time.Millisecond)
	ae, isAcq := models.AsAcquisitionError(err)
	if !isAcq || ae.Kind != models.KindTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if ae.Operation != "consume last "+testEndpoint {
		t.Errorf("Operation = %q", ae.Operation)
	}
}

func TestConsumeHonoursContext(t *testing.T) {
	c := NewCorrelator(testEndpoint, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.ConsumeLast(ctx, 1, time.Second, 10*time.Second)
	if !models.IsKind(err, models.KindTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("ConsumeLast ignored context cancellation")
	}
}

func TestCaptureNeverBlocks(t *testing.T) {
	c := NewCorrelator(testEndpoint, 2)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			c.Capture(ok(fmt.Sprintf(`[{"n":%d}]`, i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Capture blocked on a full queue")
	}
	if c.Dropped() != 8 {
		t.Errorf("Dropped() = %d, want 8", c.Dropped())
	}
}

func TestCorrelatorCloseIsIdempotent(t *testing.T) {
	calls := 0
	c := NewCorrelator(testEndpoint, 1)
	c.stop = func() { calls++ }
	c.Close()
	c.Close()
	if calls != 1 {
		t.Errorf("stop called %d times, want 1", calls)
	}
}
