package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRun_BoundsConcurrencyAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	d := New(Config{BatchSize: 2, Pace: time.Millisecond}, nil)
	var current, peak atomic.Int32
	var mu sync.Mutex
	processed := map[int]bool{}

	units := []int{0, 1, 2, 3, 4}
	report := Run(context.Background(), d, units, func(_ context.Context, unit int) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer current.Add(-1)
		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		processed[unit] = true
		mu.Unlock()

		switch unit {
		case 1:
			return errors.New("enrichment exploded")
		case 2:
			panic("nil map write")
		}
		return nil
	})

	require.LessOrEqual(t, peak.Load(), int32(2))
	require.Equal(t, 2, report.MaxInFlight)
	require.Equal(t, 3, report.Completed)
	require.Equal(t, 2, report.Failed)
	require.Len(t, processed, 5)
	require.EqualError(t, report.Outcomes[1].Err, "enrichment exploded")
	require.ErrorContains(t, report.Outcomes[2].Err, "unit panicked: nil map write")
	for _, idx := range []int{0, 3, 4} {
		require.NoError(t, report.Outcomes[idx].Err)
		require.Equal(t, idx, report.Outcomes[idx].Index)
	}
	inFlight, completed := d.Progress()
	require.Zero(t, inFlight)
	require.Equal(t, 5, completed)
}

func TestRun_BatchesRunSequentiallyWithPacing(t *testing.T) {
	t.Parallel()

	d := New(Config{BatchSize: 2, Pace: 50 * time.Millisecond}, nil)
	var paces atomic.Int32
	realSleep := d.sleep
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		paces.Add(1)
		return realSleep(ctx, dur)
	}

	var mu sync.Mutex
	starts := make([]time.Time, 4)
	ends := make([]time.Time, 4)
	Run(context.Background(), d, []int{0, 1, 2, 3}, func(_ context.Context, unit int) error {
		mu.Lock()
		starts[unit] = time.Now()
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		ends[unit] = time.Now()
		mu.Unlock()
		return nil
	})

	require.EqualValues(t, 1, paces.Load())
	firstBatchEnd := ends[0]
	if ends[1].After(firstBatchEnd) {
		firstBatchEnd = ends[1]
	}
	for _, unit := range []int{2, 3} {
		require.GreaterOrEqual(t, starts[unit].Sub(firstBatchEnd), 50*time.Millisecond)
	}
}

func TestRun_CancellationMarksUnscheduledUnits(t *testing.T) {
	t.Parallel()

	d := New(Config{BatchSize: 2, Pace: time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	report := Run(ctx, d, []string{"a", "b", "c", "d", "e"}, func(_ context.Context, unit string) error {
		calls.Add(1)
		if unit == "a" {
			cancel()
		}
		return nil
	})

	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, 2, report.Completed)
	require.Equal(t, 3, report.Failed)
	for _, idx := range []int{2, 3, 4} {
		require.ErrorIs(t, report.Outcomes[idx].Err, context.Canceled)
	}
}

func TestRun_Empty(t *testing.T) {
	t.Parallel()

	report := Run(context.Background(), New(Config{}, nil), []int(nil), func(context.Context, int) error {
		t.Fatal("work must not be called")
		return nil
	})
	require.Zero(t, report.Completed)
	require.Zero(t, report.Failed)
	require.Empty(t, report.Outcomes)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	d := New(Config{BatchSize: -1, Pace: -time.Second}, nil)
	require.Equal(t, DefaultBatchSize, d.cfg.BatchSize)
	require.Zero(t, d.cfg.Pace)
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, sleepContext(context.Background(), 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
