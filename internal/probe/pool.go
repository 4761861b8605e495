package probe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Salamek/netkeeper/internal/logging"
)

// Result is one target's outcome within a tick.
type Result struct {
	Target   string        `json:"target"`
	OK       bool          `json:"ok"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency"`
	Err      string        `json:"err,omitempty"`
}

// Pool fans probes out across targets and collects results in configuration
// order.
type Pool struct {
	prober   Prober
	attempts int
	logger   *slog.Logger
}

// NewPool wires a prober with a retry budget. attempts below 1 is treated
// as 1.
func NewPool(prober Prober, attempts int, logger *slog.Logger) *Pool {
	if attempts < 1 {
		attempts = 1
	}
	return &Pool{
		prober:   prober,
		attempts: attempts,
		logger:   logging.NewComponentLogger(logger, "probe"),
	}
}

// Run probes every target concurrently and returns one result per target,
// index-aligned with the input. Duplicate targets are probed and counted
// independently.
func (p *Pool) Run(ctx context.Context, targets []string) []Result {
	results := make([]Result, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(idx int, target string) {
			defer wg.Done()
			results[idx] = p.probeWithRetries(ctx, target)
		}(i, target)
	}
	wg.Wait()

	return results
}

func (p *Pool) probeWithRetries(ctx context.Context, target string) Result {
	result := Result{Target: target}

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		result.Attempts = attempt

		start := time.Now()
		err := p.prober.Probe(ctx, target)
		if err == nil {
			result.OK = true
			result.Latency = time.Since(start)
			return result
		}
		lastErr = err
		p.logger.Debug("probe attempt failed",
			logging.String(logging.FieldTarget, target),
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
	}

	if lastErr != nil {
		result.Err = lastErr.Error()
	} else {
		result.Err = "not attempted"
	}
	return result
}

// FailedCount returns how many results are failures.
func FailedCount(results []Result) int {
	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	return failed
}

// FailPercent converts a result set to the integer failure percentage,
// rounding up so a single failure always registers against thresholds below
// one hundred. An empty result set counts as fully failed: a tick that probed
// nothing proved nothing.
func FailPercent(results []Result) int {
	total := len(results)
	if total == 0 {
		return 100
	}
	failed := FailedCount(results)
	return (failed*100 + total - 1) / total
}
