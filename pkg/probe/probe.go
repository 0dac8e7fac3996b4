// Package probe runs startup health checks before the server accepts
// traffic: a failed critical probe blocks startup, a failed optional
// probe is only logged.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// checkTimeout bounds a single probe; a hung dependency must not stall
// the whole startup.
const checkTimeout = 5 * time.Second

// CheckFunc performs one health check. nil means the check passed.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // failure prevents startup
}

// Result is the outcome of one probe.
type Result struct {
	Name     string
	Critical bool
	Err      error
	Duration time.Duration
}

// OK reports whether the check passed.
func (r Result) OK() bool { return r.Err == nil }

// Run executes the probes in order, each under its own timeout.
func Run(ctx context.Context, probes ...Probe) []Result {
	results := make([]Result, 0, len(probes))
	for _, p := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := time.Now()
		err := p.Check(probeCtx)
		cancel()

		results = append(results, Result{
			Name:     p.Name,
			Critical: p.Critical,
			Err:      err,
			Duration: time.Since(start),
		})
	}
	return results
}

// AnalyzeResults logs one line per result and returns the joined errors
// of failed critical probes, or nil when startup may proceed.
func AnalyzeResults(results []Result) error {
	var critical []error
	for _, r := range results {
		took := r.Duration.Round(time.Millisecond)
		if r.OK() {
			slog.Info("startup check passed", "check", r.Name, "took", took)
			continue
		}
		slog.Error("startup check failed", "check", r.Name, "took", took, "error", r.Err)
		if r.Critical {
			critical = append(critical, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
	}
	return errors.Join(critical...)
}
