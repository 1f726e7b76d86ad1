package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampSig() *Signature {
	hist := make([]float64, 8)
	for i := range hist {
		hist[i] = float64(i + 1)
	}
	return &Signature{Hist: hist, Width: 20, Height: 20}
}

func det(x, y float64) Detection {
	return Detection{
		Box:        Rect{X1: x, Y1: y, X2: x + 20, Y2: y + 20},
		Confidence: 0.9,
		Signature:  rampSig(),
	}
}

func TestTracker(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tick := func() time.Time {
		now = now.Add(33 * time.Millisecond)
		return now
	}

	t.Run("keeps identity across frames", func(t *testing.T) {
		tr := NewTracker(DefaultConfig())
		boxes := tr.Update([]Detection{det(100, 100)}, tick())
		require.Len(t, boxes, 1)
		id := boxes[0].ID

		for i := 0; i < 10; i++ {
			boxes = tr.Update([]Detection{det(100+float64(i)*4, 100)}, tick())
			require.Len(t, boxes, 1)
			assert.Equal(t, id, boxes[0].ID)
		}
	})

	t.Run("separate objects get separate ids", func(t *testing.T) {
		tr := NewTracker(DefaultConfig())
		boxes := tr.Update([]Detection{det(0, 0), det(200, 0)}, tick())
		require.Len(t, boxes, 2)
		assert.NotEqual(t, boxes[0].ID, boxes[1].ID)

		// Both persist under their original ids.
		boxes2 := tr.Update([]Detection{det(0, 0), det(200, 0)}, tick())
		require.Len(t, boxes2, 2)
		ids := map[int64]bool{boxes[0].ID: true, boxes[1].ID: true}
		for _, b := range boxes2 {
			assert.True(t, ids[b.ID])
		}
	})

	t.Run("keeps identity through a direction reversal", func(t *testing.T) {
		tr := NewTracker(DefaultConfig())
		boxes := tr.Update([]Detection{det(50, 40)}, tick())
		require.Len(t, boxes, 1)
		id := boxes[0].ID

		y := 40.0
		for i := 0; i < 8; i++ {
			y += 6
			boxes = tr.Update([]Detection{det(50, y)}, tick())
			require.Len(t, boxes, 1)
		}
		// The filter has learned a downward velocity; reversing must not
		// split the object into a second track.
		for i := 0; i < 8; i++ {
			y -= 6
			boxes = tr.Update([]Detection{det(50, y)}, tick())
			require.Len(t, boxes, 1)
			assert.Equal(t, id, boxes[0].ID)
		}
		assert.Equal(t, 1, tr.Len())
	})

	t.Run("drops a track after max age", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxAge = 3
		tr := NewTracker(cfg)
		tr.Update([]Detection{det(50, 50)}, tick())
		require.Equal(t, 1, tr.Len())

		for i := 0; i < 3; i++ {
			tr.Update(nil, tick())
		}
		assert.Equal(t, 1, tr.Len(), "still within tolerance")
		tr.Update(nil, tick())
		assert.Equal(t, 0, tr.Len())
	})

	t.Run("revives on a match right after the tolerance window", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxAge = 3
		tr := NewTracker(cfg)
		boxes := tr.Update([]Detection{det(50, 50)}, tick())
		require.Len(t, boxes, 1)
		id := boxes[0].ID

		for i := 0; i < 3; i++ {
			tr.Update(nil, tick())
		}
		require.Equal(t, 1, tr.Len())

		// The occluded track matches again on the frame after the last
		// tolerated miss but is only reported once its streak rebuilds.
		boxes = tr.Update([]Detection{det(50, 50)}, tick())
		require.Equal(t, 1, tr.Len())
		assert.Empty(t, boxes)

		boxes = tr.Update([]Detection{det(50, 50)}, tick())
		require.Len(t, boxes, 1)
		assert.Equal(t, id, boxes[0].ID)
	})

	t.Run("unmatched detection spawns a new track", func(t *testing.T) {
		tr := NewTracker(DefaultConfig())
		boxes := tr.Update([]Detection{det(0, 0)}, tick())
		first := boxes[0].ID

		boxes = tr.Update([]Detection{det(0, 0), det(300, 300)}, tick())
		require.Len(t, boxes, 2)
		var fresh int64
		for _, b := range boxes {
			if b.ID != first {
				fresh = b.ID
			}
		}
		assert.NotZero(t, fresh)
	})

	t.Run("exposes the blended signature", func(t *testing.T) {
		tr := NewTracker(DefaultConfig())
		boxes := tr.Update([]Detection{det(10, 10)}, tick())
		sig := tr.Signature(boxes[0].ID)
		require.NotNil(t, sig)
		assert.InDelta(t, 1.0, Similarity(sig, rampSig()), 1e-9)
		assert.Nil(t, tr.Signature(9999))
	})

	t.Run("reset does not recycle ids", func(t *testing.T) {
		tr := NewTracker(DefaultConfig())
		boxes := tr.Update([]Detection{det(0, 0)}, tick())
		before := boxes[0].ID
		tr.Reset()
		assert.Equal(t, 0, tr.Len())
		boxes = tr.Update([]Detection{det(0, 0)}, tick())
		assert.Greater(t, boxes[0].ID, before)
	})

	t.Run("degenerate detections are ignored", func(t *testing.T) {
		tr := NewTracker(DefaultConfig())
		bad := Detection{Box: Rect{X1: 10, Y1: 10, X2: 10, Y2: 10}}
		boxes := tr.Update([]Detection{bad}, tick())
		assert.Empty(t, boxes)
	})
}
