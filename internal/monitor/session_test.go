package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardIfiii/shelfsense/internal/shelf"
	"github.com/LeonardIfiii/shelfsense/internal/store"
	"github.com/LeonardIfiii/shelfsense/internal/track"
)

// Two shelves side by side: cups belong in shelf 0, bottles in shelf 1.
// The removal line sits at y=80 in both.
func testLayout() *shelf.Layout {
	return shelf.NewLayout(
		map[int]shelf.Zone{
			0: {X: 0, Y: 0, Width: 100, Height: 100},
			1: {X: 200, Y: 0, Width: 100, Height: 100},
		},
		map[int]int{0: 80, 1: 80},
		map[string]int{"cup": 0, "bottle": 1},
		map[string]int{"cup": 3, "bottle": 3},
	)
}

func newTestSession(t *testing.T) (*Session, *store.Store, time.Time) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "monitor.db"), map[string]int{"cup": 3, "bottle": 3})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := NewSession(testLayout(), shelf.DefaultTunables(), st, "")
	start := time.Unix(1_700_000_000, 0)
	// Keep the reconciler quiet during scripted frames; tests that need it
	// call reconcile directly.
	s.lastReconcile = start
	return s, st, start
}

// testSig returns a non-degenerate appearance signature so association and
// re-identification behave as they do with real crops.
func testSig() *track.Signature {
	hist := make([]float64, 8)
	for i := range hist {
		hist[i] = float64(i + 1)
	}
	return &track.Signature{Hist: hist, Width: 20, Height: 20}
}

func obsAt(cx, cy int, product string) Observation {
	return Observation{
		Box:        track.Rect{X1: float64(cx - 10), Y1: float64(cy - 10), X2: float64(cx + 10), Y2: float64(cy + 10)},
		Product:    product,
		Confidence: 0.9,
		Signature:  testSig(),
	}
}

const frameInterval = 33 * time.Millisecond

func frame(t *testing.T, s *Session, now *time.Time, obs ...Observation) {
	t.Helper()
	*now = now.Add(frameInterval)
	require.NoError(t, s.ProcessFrame(obs, *now))
}

// walk drives one object from (x0, y0) to (x1, y1) in small steps so the
// tracker keeps the identity across frames.
func walk(t *testing.T, s *Session, now *time.Time, x0, y0, x1, y1 int, product string) {
	t.Helper()
	const step = 6
	x, y := x0, y0
	for x != x1 || y != y1 {
		x = approach(x, x1, step)
		y = approach(y, y1, step)
		frame(t, s, now, obsAt(x, y, product))
	}
	// Settle a few frames at the destination for the debounce counters.
	for i := 0; i < 4; i++ {
		frame(t, s, now, obsAt(x1, y1, product))
	}
}

func approach(v, target, step int) int {
	switch {
	case v < target:
		v += step
		if v > target {
			v = target
		}
	case v > target:
		v -= step
		if v < target {
			v = target
		}
	}
	return v
}

func singleObject(t *testing.T, s *Session) *TrackedObject {
	t.Helper()
	require.Len(t, s.Objects(), 1)
	for _, obj := range s.Objects() {
		return obj
	}
	return nil
}

func TestRemovalFiresExactlyOneEvent(t *testing.T) {
	s, st, now := newTestSession(t)
	_, err := st.SetInitialInventory(0, "cup", 1, now)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		frame(t, s, &now, obsAt(50, 50, "cup"))
	}
	obj := singleObject(t, s)
	assert.Equal(t, StateIdle, obj.State)
	assert.Equal(t, 0, obj.Shelf)
	assert.True(t, obj.Counted)

	// Pull the cup down past the removal line and keep it there.
	walk(t, s, &now, 50, 50, 50, 95, "cup")

	obj = singleObject(t, s)
	assert.Equal(t, StateRemoved, obj.State)
	assert.True(t, obj.EventActive)

	events, err := st.Events(0)
	require.NoError(t, err)
	require.Len(t, events, 1, "exactly one removal event")
	assert.Equal(t, store.EventRemoval, events[0].Type)
	assert.Equal(t, store.StatusNotPaid, events[0].Status)
	assert.Equal(t, 0, events[0].Shelf)
	assert.Equal(t, obj.ID, events[0].ObjectID)
	assert.False(t, events[0].Resolved)

	n, err := st.InventoryCount(0, "cup")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "removal decrements inventory")
	assert.Equal(t, 0, s.ledger.Total("cup"))

	// Lingering below the line must not produce further events.
	for i := 0; i < 10; i++ {
		frame(t, s, &now, obsAt(50, 95, "cup"))
	}
	events, err = st.Events(0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestReturnResolvesRemoval(t *testing.T) {
	s, st, now := newTestSession(t)
	_, err := st.SetInitialInventory(0, "cup", 1, now)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		frame(t, s, &now, obsAt(50, 50, "cup"))
	}
	walk(t, s, &now, 50, 50, 50, 95, "cup")
	require.Equal(t, StateRemoved, singleObject(t, s).State)

	// Put it back on the shelf.
	walk(t, s, &now, 50, 95, 50, 50, "cup")

	obj := singleObject(t, s)
	assert.Equal(t, StateIdle, obj.State)
	assert.False(t, obj.EventActive)

	events, err := st.Events(0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	var removal, ret *store.Event
	for i := range events {
		switch events[i].Type {
		case store.EventRemoval:
			removal = &events[i]
		case store.EventReturn:
			ret = &events[i]
		}
	}
	require.NotNil(t, removal)
	require.NotNil(t, ret)
	assert.True(t, removal.Resolved)
	assert.Equal(t, store.StatusReturned, removal.Status)
	assert.Equal(t, 1, ret.Quantity, "return event carries the removal quantity")
	assert.Equal(t, store.StatusReturned, ret.Status)

	n, err := st.InventoryCount(0, "cup")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "return restores inventory")
}

func TestMisplacedReturnKeepsRemovalOpen(t *testing.T) {
	s, st, now := newTestSession(t)
	_, err := st.SetInitialInventory(0, "cup", 1, now)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		frame(t, s, &now, obsAt(50, 50, "cup"))
	}
	// Carry the cup over to the bottle shelf.
	walk(t, s, &now, 50, 50, 250, 50, "cup")

	obj := singleObject(t, s)
	assert.True(t, obj.EventActive, "removal stays open while misplaced")
	assert.Equal(t, 1, obj.CurrentShelf)
	assert.Equal(t, 0, obj.Shelf, "home shelf is unchanged")

	misplacedRemovals := 0
	misplacedReturns := 0
	events, err := st.Events(0)
	require.NoError(t, err)
	for _, e := range events {
		switch {
		case e.Type == store.EventRemoval && e.Status == store.StatusMisplaced:
			misplacedRemovals++
			assert.Equal(t, 0, e.Shelf, "misplacement is charged to the designated shelf")
		case e.Type == store.EventMisplacedReturn:
			misplacedReturns++
			assert.Equal(t, 1, e.Shelf)
		}
	}
	assert.Equal(t, 1, misplacedRemovals)
	assert.Equal(t, 1, misplacedReturns)

	// Bring it home: every open debt for the product resolves.
	walk(t, s, &now, 250, 50, 50, 50, "cup")
	open, err := st.OpenEvents("cup", store.EventRemoval)
	require.NoError(t, err)
	assert.Empty(t, open, "all removal debt resolved after correct return")
	assert.False(t, singleObject(t, s).EventActive)
}

func TestMisplacedObjectTakenAgainReopensRemoval(t *testing.T) {
	s, st, now := newTestSession(t)
	_, err := st.SetInitialInventory(0, "cup", 1, now)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		frame(t, s, &now, obsAt(50, 50, "cup"))
	}
	walk(t, s, &now, 50, 50, 250, 50, "cup")
	require.True(t, singleObject(t, s).EventActive)

	// Grab the misplaced cup off the bottle shelf and carry it into the
	// aisle between the shelves.
	walk(t, s, &now, 250, 50, 150, 50, "cup")

	obj := singleObject(t, s)
	assert.Equal(t, StateRemoved, obj.State)
	assert.True(t, obj.EventActive)

	events, err := st.Events(0)
	require.NoError(t, err)
	resolvedMisplaced := 0
	openRemovals := 0
	for _, e := range events {
		if e.Type != store.EventRemoval {
			continue
		}
		if e.Status == store.StatusMisplaced {
			assert.True(t, e.Resolved, "misplaced debt closes when the object leaves again")
			resolvedMisplaced++
		}
		if e.Status == store.StatusNotPaid && !e.Resolved {
			openRemovals++
		}
	}
	assert.Equal(t, 1, resolvedMisplaced)
	assert.NotZero(t, openRemovals, "an unpaid removal is open again")
	assert.Equal(t, 0, s.ledger.Total("cup"))
}

func TestReIdentificationSuppressesDuplicateRemoval(t *testing.T) {
	s, st, now := newTestSession(t)
	_, err := st.SetInitialInventory(0, "cup", 1, now)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		frame(t, s, &now, obsAt(50, 50, "cup"))
	}
	walk(t, s, &now, 50, 50, 50, 95, "cup")
	firstID := singleObject(t, s).ID

	// The shopper walks away with the cup; the track goes stale and the
	// tracker eventually drops it.
	now = now.Add(6 * time.Second)
	for i := 0; i < 35; i++ {
		frame(t, s, &now)
	}
	assert.Empty(t, s.Objects())
	assert.Equal(t, 0, s.tracker.Len())
	assert.Equal(t, 1, s.memory.Len())

	// The same cup reappears below the shelf under a fresh track id. The
	// tracker reports the new track once its hit streak is established.
	frame(t, s, &now, obsAt(50, 95, "cup"))
	frame(t, s, &now, obsAt(50, 95, "cup"))
	obj := singleObject(t, s)
	assert.NotEqual(t, firstID, obj.ID)
	assert.True(t, obj.EventActive, "re-identified object inherits its open event")
	assert.Equal(t, StateRemoved, obj.State)
	assert.Equal(t, 0, obj.Shelf)

	// Putting it back resolves the original event without a second removal.
	walk(t, s, &now, 50, 95, 50, 50, "cup")
	removals := 0
	events, err := st.Events(0)
	require.NoError(t, err)
	for _, e := range events {
		if e.Type == store.EventRemoval {
			removals++
			assert.True(t, e.Resolved)
		}
	}
	assert.Equal(t, 1, removals, "one physical pick-up, one removal event")
}

func TestLedgerCapRejectsExtraObjects(t *testing.T) {
	s, _, now := newTestSession(t)

	// Four cups appear at once; the cap admits three.
	cups := []Observation{
		obsAt(20, 50, "cup"),
		obsAt(45, 50, "cup"),
		obsAt(70, 50, "cup"),
		obsAt(20, 20, "cup"),
	}
	for i := 0; i < 5; i++ {
		frame(t, s, &now, cups...)
	}
	require.Len(t, s.Objects(), 4)
	assert.Equal(t, 3, s.ledger.Total("cup"))

	counted := 0
	for _, obj := range s.Objects() {
		if obj.Counted {
			counted++
		}
	}
	assert.Equal(t, 3, counted)
}

func TestBaselineEstablishesInitialInventory(t *testing.T) {
	s, st, now := newTestSession(t)
	s.StartBaseline(now)
	require.True(t, s.Baselining())

	cups := []Observation{obsAt(30, 50, "cup"), obsAt(70, 50, "cup")}
	deadline := now.Add(shelf.DefaultTunables().BaselineDelay)
	for !now.After(deadline) {
		frame(t, s, &now, cups...)
	}
	require.False(t, s.Baselining())

	n, err := st.InventoryCount(0, "cup")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = st.InventoryCount(1, "bottle")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "empty designated shelf baselines to zero")

	events, err := st.Events(0)
	require.NoError(t, err)
	assert.Empty(t, events, "no events during the baseline window")
}

func TestRefreshSignalRestartsBaseline(t *testing.T) {
	s, _, now := newTestSession(t)
	marker := filepath.Join(t.TempDir(), "refresh.signal")
	s.refreshFile = marker

	for i := 0; i < 5; i++ {
		frame(t, s, &now, obsAt(50, 50, "cup"))
	}
	require.Len(t, s.Objects(), 1)

	require.NoError(t, os.WriteFile(marker, nil, 0o644))
	frame(t, s, &now, obsAt(50, 50, "cup"))

	assert.True(t, s.Baselining(), "refresh signal re-opens the baseline window")
	assert.Empty(t, s.Objects())
	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "signal file is consumed")
}
