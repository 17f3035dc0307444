// Package pacing provides the clock abstraction every waiting loop in the
// pipeline goes through, plus the randomized human-pacing delays used between
// outbound sends. Routing all sleeps through a Clock lets tests step time
// without real delays.
package pacing

import (
	"context"
	"math"
	"math/rand"
	"time"
)

type Clock interface {
	Now() time.Time
	// After behaves like time.After but is owned by the clock implementation.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func RealClock() Clock { return realClock{} }

// Sleep waits for d on the clock, returning early with ctx.Err() on
// cancellation. Cancellation always wins over an elapsed timer: a fake clock
// fires After immediately, and without the explicit checks the select would
// pick between the two ready channels at random.
func Sleep(ctx context.Context, clk Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(d):
		return ctx.Err()
	}
}

// SleepRandom waits a uniformly random duration between min and max
// milliseconds.
func SleepRandom(ctx context.Context, clk Clock, minMs, maxMs int) error {
	if maxMs < minMs {
		maxMs = minMs
	}
	d := time.Duration(minMs+rand.Intn(maxMs-minMs+1)) * time.Millisecond
	return Sleep(ctx, clk, d)
}

// SleepGaussian waits a Gaussian-distributed duration. Most delays cluster
// around the mean, clamped to mean +/- 3 stddev.
func SleepGaussian(ctx context.Context, clk Clock, meanMs, stdDevMs int) error {
	u1 := rand.Float64()
	u2 := rand.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	delay := int(float64(meanMs) + z*float64(stdDevMs))

	if min := meanMs - 3*stdDevMs; delay < min {
		delay = min
	} else if max := meanMs + 3*stdDevMs; delay > max {
		delay = max
	}
	if delay <= 0 {
		return ctx.Err()
	}
	return Sleep(ctx, clk, time.Duration(delay)*time.Millisecond)
}
