package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sequence returns the given accuracies in order, repeating the last one.
func sequence(calls *int32, accuracies ...float64) Sampler {
	return SamplerFunc(func(ctx context.Context) (Fix, error) {
		n := int(atomic.AddInt32(calls, 1)) - 1
		if n >= len(accuracies) {
			n = len(accuracies) - 1
		}
		return Fix{Lat: 41.0, Lng: 29.0, AccuracyM: accuracies[n]}, nil
	})
}

func TestAcquire_StopsAtAccuracy(t *testing.T) {
	var calls int32
	fix, err := Acquire(context.Background(), sequence(&calls, 300, 120, 20, 5), Options{
		Accuracy: 50, MaxAttempts: 10, Timeout: time.Second, Interval: time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 20.0, fix.AccuracyM)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAcquire_AttemptCapReturnsBest(t *testing.T) {
	var calls int32
	fix, err := Acquire(context.Background(), sequence(&calls, 300, 90, 200), Options{
		Accuracy: 10, MaxAttempts: 3, Timeout: time.Second, Interval: time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 90.0, fix.AccuracyM)
	assert.False(t, fix.Within(10))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAcquire_TimeoutReturnsBestOrNoFix(t *testing.T) {
	var calls int32
	fix, err := Acquire(context.Background(), sequence(&calls, 500), Options{
		Accuracy: 10, MaxAttempts: 1000, Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 500.0, fix.AccuracyM)

	failing := SamplerFunc(func(ctx context.Context) (Fix, error) {
		return Fix{}, errors.New("permission denied")
	})
	_, err = Acquire(context.Background(), failing, Options{
		Accuracy: 10, MaxAttempts: 1000, Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrNoFix)
}

func TestAcquire_FixArrivingAtTimeoutCounts(t *testing.T) {
	slow := SamplerFunc(func(ctx context.Context) (Fix, error) {
		<-ctx.Done()
		return Fix{Lat: 41.0, Lng: 29.0, AccuracyM: 80}, nil
	})

	fix, err := Acquire(context.Background(), slow, Options{
		Accuracy: 10, MaxAttempts: 5, Timeout: 20 * time.Millisecond, Interval: time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 80.0, fix.AccuracyM)
}

func TestAcquire_CancelledNeverReportsFix(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls int32
	sampler := SamplerFunc(func(context.Context) (Fix, error) {
		if atomic.AddInt32(&calls, 1) == 2 {
			cancel()
		}
		return Fix{AccuracyM: 100}, nil
	})

	_, err := Acquire(ctx, sampler, Options{Accuracy: 10, MaxAttempts: 5, Timeout: time.Second, Interval: time.Millisecond})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFix_Coordinates(t *testing.T) {
	lat, lng := Fix{Lat: 41.0082376, Lng: 28.9783589}.Coordinates()
	assert.Equal(t, "41.008238", lat)
	assert.Equal(t, "28.978359", lng)
}

func TestHTTPSampler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"lat": 41.01, "lng": 28.97, "accuracy": 35}`))
	}))
	defer srv.Close()

	fix, err := Acquire(context.Background(), HTTPSampler{URL: srv.URL, Client: srv.Client()}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, Fix{Lat: 41.01, Lng: 28.97, AccuracyM: 35}, fix)
}
