package location

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoFix is returned when no sample succeeded before the loop gave up.
var ErrNoFix = errors.New("location: no fix acquired")

// Fix is one position sample. AccuracyM is the radius of uncertainty in metres.
type Fix struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	AccuracyM float64 `json:"accuracy"`
}

// Within reports whether the fix is at least as precise as accuracy.
func (f Fix) Within(accuracy float64) bool {
	return f.AccuracyM <= accuracy
}

// Coordinates formats the fix the way post forms submit it.
func (f Fix) Coordinates() (lat, lng string) {
	return fmt.Sprintf("%.6f", f.Lat), fmt.Sprintf("%.6f", f.Lng)
}

type Sampler interface {
	Sample(ctx context.Context) (Fix, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (Fix, error)

func (f SamplerFunc) Sample(ctx context.Context) (Fix, error) { return f(ctx) }

type Options struct {
	Accuracy    float64
	MaxAttempts int
	Timeout     time.Duration
	Interval    time.Duration
}

func DefaultOptions() Options {
	return Options{
		Accuracy:    50,
		MaxAttempts: 5,
		Timeout:     15 * time.Second,
		Interval:    time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Accuracy <= 0 {
		o.Accuracy = d.Accuracy
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Interval < 0 {
		o.Interval = 0
	}
	return o
}

// Acquire samples until a fix meets opts.Accuracy, the attempt cap is hit or
// the timeout fires, whichever comes first. It returns the most precise fix
// seen, or ErrNoFix. If ctx is cancelled, ctx.Err() is returned and any fix
// gathered so far is dropped.
func Acquire(ctx context.Context, sampler Sampler, opts Options) (Fix, error) {
	opts = opts.withDefaults()

	loopCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var (
		best    Fix
		haveFix bool
		lastErr error
	)
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		fix, err := sampler.Sample(loopCtx)
		if ctx.Err() != nil {
			return Fix{}, ctx.Err()
		}
		// A fix that arrives as the timeout fires still counts.
		if err != nil {
			lastErr = err
		} else if !haveFix || fix.AccuracyM < best.AccuracyM {
			best, haveFix = fix, true
		}
		if haveFix && best.Within(opts.Accuracy) {
			return best, nil
		}
		if loopCtx.Err() != nil || attempt == opts.MaxAttempts {
			break
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-loopCtx.Done():
			timer.Stop()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return Fix{}, ctx.Err()
		}
		if loopCtx.Err() != nil {
			break
		}
	}

	if haveFix {
		return best, nil
	}
	if lastErr != nil {
		return Fix{}, fmt.Errorf("%w: %v", ErrNoFix, lastErr)
	}
	return Fix{}, ErrNoFix
}
