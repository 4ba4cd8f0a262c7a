package allocator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DiamondLightSource/numtracker/internal/numerrors"
	"github.com/DiamondLightSource/numtracker/internal/store"
	"github.com/DiamondLightSource/numtracker/internal/tracker"
)

// fakeStore is an in-memory stand-in for *store.Store, used so the
// allocator's reconciliation logic can be exercised without a real
// SQLite file.
type fakeStore struct {
	mu       sync.Mutex
	counters map[string]int64
	configs  map[string]store.InstrumentConfig
}

func newFakeStore() *fakeStore {
	return &fakeStore{counters: map[string]int64{}, configs: map[string]store.InstrumentConfig{}}
}

func (f *fakeStore) add(cfg store.InstrumentConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[cfg.Name] = cfg
	f.counters[cfg.Name] = cfg.DBScanNumber
}

func (f *fakeStore) Get(ctx context.Context, name string) (store.InstrumentConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[name]
	if !ok {
		return store.InstrumentConfig{}, numerrors.UnknownInstrumentErr(name)
	}
	cfg.DBScanNumber = f.counters[name]
	return cfg, nil
}

func (f *fakeStore) BumpToAtLeast(ctx context.Context, name string, floor int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[name]; !ok {
		return 0, numerrors.UnknownInstrumentErr(name)
	}
	cur := f.counters[name]
	next := cur
	if floor > next {
		next = floor
	}
	next++
	f.counters[name] = next
	return next, nil
}

// fakeTracker is an in-memory tracker-probe stand-in. pendingRace, if
// set, simulates an external writer claiming that number the instant
// the allocator tries to claim it itself: the first Claim(pendingRace)
// fails, and the number becomes visible to subsequent Highest calls,
// reproducing the external-writer race scenario.
type fakeTracker struct {
	mu           sync.Mutex
	claimed      map[int64]bool
	pendingRace  int64
	raceRevealed bool
}

func (f *fakeTracker) Highest() (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		max   int64
		found bool
	)
	for n := range f.claimed {
		if !found || n > max {
			max, found = n, true
		}
	}
	return max, found, nil
}

func (f *fakeTracker) Claim(n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n == f.pendingRace && !f.raceRevealed {
		f.raceRevealed = true
		f.claimed[n] = true
		return tracker.ErrAlreadyClaimed
	}
	if f.claimed[n] {
		return tracker.ErrAlreadyClaimed
	}
	f.claimed[n] = true
	return nil
}

func newAllocatorForTest(st Store, ft *fakeTracker) *Allocator {
	a := New(st, "")
	a.newTracker = func(directory, extension string) trackerProbe { return ft }
	return a
}

func TestAllocateFreshInstrumentNoTracker(t *testing.T) {
	st := newFakeStore()
	st.add(store.InstrumentConfig{Name: "i22"})
	a := New(st, "")

	alloc, err := a.Allocate(context.Background(), "i22", "cm12345-6")
	require.NoError(t, err)
	assert.EqualValues(t, 1, alloc.Number)
}

func TestAllocateMalformedSessionLeavesCounterUnchanged(t *testing.T) {
	st := newFakeStore()
	st.add(store.InstrumentConfig{Name: "i22", DBScanNumber: 5})
	a := New(st, "")

	_, err := a.Allocate(context.Background(), "i22", "not-a-visit")
	require.Error(t, err)
	var nerr *numerrors.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, numerrors.InvalidSession, nerr.Kind)

	cfg, err := st.Get(context.Background(), "i22")
	require.NoError(t, err)
	assert.EqualValues(t, 5, cfg.DBScanNumber)
}

func TestAllocateUnknownInstrument(t *testing.T) {
	st := newFakeStore()
	a := New(st, "")
	_, err := a.Allocate(context.Background(), "missing", "cm12345-6")
	require.Error(t, err)
	var nerr *numerrors.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, numerrors.UnknownInstrument, nerr.Kind)
}

func TestAllocateReconcilesWithHigherTrackerNumber(t *testing.T) {
	st := newFakeStore()
	dir := "/fallback/i22"
	st.add(store.InstrumentConfig{Name: "i22", DBScanNumber: 10, FallbackDirectory: &dir})
	ft := &fakeTracker{claimed: map[int64]bool{20: true}}
	a := newAllocatorForTest(st, ft)

	alloc, err := a.Allocate(context.Background(), "i22", "cm12345-6")
	require.NoError(t, err)
	assert.EqualValues(t, 21, alloc.Number)

	cfg, err := st.Get(context.Background(), "i22")
	require.NoError(t, err)
	assert.EqualValues(t, 21, cfg.DBScanNumber)
	assert.True(t, ft.claimed[21])
}

func TestAllocateRetriesOnTrackerRace(t *testing.T) {
	st := newFakeStore()
	dir := "/fallback/i22"
	st.add(store.InstrumentConfig{Name: "i22", DBScanNumber: 30, FallbackDirectory: &dir})
	// An external writer claims 31 at the exact moment this allocation
	// tries to claim it too: the first attempt loses the race and the
	// second attempt, now seeing 31 as taken, succeeds with 32.
	ft := &fakeTracker{claimed: map[int64]bool{30: true}, pendingRace: 31}
	a := newAllocatorForTest(st, ft)

	alloc, err := a.Allocate(context.Background(), "i22", "cm12345-6")
	require.NoError(t, err)
	assert.EqualValues(t, 32, alloc.Number)
	assert.True(t, ft.claimed[32])
}

func TestAllocateExhaustsRetriesAsTrackerRace(t *testing.T) {
	st := newFakeStore()
	dir := "/fallback/i22"
	st.add(store.InstrumentConfig{Name: "i22", DBScanNumber: 0, FallbackDirectory: &dir})
	ft := &racingTracker{}
	a := New(st, "")
	a.newTracker = func(directory, extension string) trackerProbe { return ft }

	_, err := a.Allocate(context.Background(), "i22", "cm12345-6")
	require.Error(t, err)
	var nerr *numerrors.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, numerrors.TrackerRace, nerr.Kind)
}

// racingTracker always reports the candidate number as already claimed,
// forcing the allocator to exhaust every retry attempt.
type racingTracker struct{ mu sync.Mutex }

func (r *racingTracker) Highest() (int64, bool, error) { return 0, false, nil }
func (r *racingTracker) Claim(n int64) error            { return tracker.ErrAlreadyClaimed }

func TestConcurrentAllocationsAreDistinctAndIncreasing(t *testing.T) {
	st := newFakeStore()
	st.add(store.InstrumentConfig{Name: "i22"})
	a := New(st, "")

	const n = 50
	numbers := make([]int64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			alloc, err := a.Allocate(context.Background(), "i22", "cm12345-6")
			require.NoError(t, err)
			numbers[i] = alloc.Number
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, num := range numbers {
		assert.False(t, seen[num], "duplicate scan number %d", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
	// Each serialised allocation returns one more than the previous, so
	// the numbers handed out are exactly 1..n with no gaps.
	for want := int64(1); want <= n; want++ {
		assert.True(t, seen[want], "scan number %d was never allocated", want)
	}
}
