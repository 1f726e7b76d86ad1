package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	t.Run("recalls a matching signature and consumes it", func(t *testing.T) {
		m := NewMemory(30*time.Second, 0.3)
		m.Remember(rampSig(), Identity{ObjectID: 7, Product: "cup", OriginalShelf: 2, EventActive: true}, now)

		id, ok := m.Recall(rampSig(), now.Add(time.Second))
		require.True(t, ok)
		assert.Equal(t, int64(7), id.ObjectID)
		assert.Equal(t, "cup", id.Product)
		assert.Equal(t, 2, id.OriginalShelf)
		assert.True(t, id.EventActive)
		assert.Equal(t, 0, m.Len(), "matched entry is consumed")

		_, ok = m.Recall(rampSig(), now.Add(2*time.Second))
		assert.False(t, ok)
	})

	t.Run("rejects matches below the threshold", func(t *testing.T) {
		m := NewMemory(30*time.Second, 0.9)
		m.Remember(&Signature{Hist: []float64{1, 0, 0, 0}, Width: 20, Height: 20}, Identity{ObjectID: 1}, now)

		probe := &Signature{Hist: []float64{0, 1, 0, 0}, Width: 20, Height: 20}
		_, ok := m.Recall(probe, now)
		assert.False(t, ok)
		assert.Equal(t, 1, m.Len(), "rejected entry stays remembered")
	})

	t.Run("prefers the best match", func(t *testing.T) {
		m := NewMemory(30*time.Second, 0.1)
		m.Remember(&Signature{Hist: []float64{1, 0, 0, 0}, Width: 20, Height: 20}, Identity{ObjectID: 1}, now)
		m.Remember(rampSig(), Identity{ObjectID: 2}, now)

		id, ok := m.Recall(rampSig(), now)
		require.True(t, ok)
		assert.Equal(t, int64(2), id.ObjectID)
	})

	t.Run("tie goes to the earliest entry", func(t *testing.T) {
		m := NewMemory(30*time.Second, 0.1)
		m.Remember(rampSig(), Identity{ObjectID: 1}, now)
		m.Remember(rampSig(), Identity{ObjectID: 2}, now.Add(time.Second))

		id, ok := m.Recall(rampSig(), now.Add(2*time.Second))
		require.True(t, ok)
		assert.Equal(t, int64(1), id.ObjectID)
	})

	t.Run("entries expire after the window", func(t *testing.T) {
		m := NewMemory(10*time.Second, 0.1)
		m.Remember(rampSig(), Identity{ObjectID: 1}, now)

		_, ok := m.Recall(rampSig(), now.Add(11*time.Second))
		assert.False(t, ok)
		assert.Equal(t, 0, m.Len())
	})

	t.Run("nil probe never matches", func(t *testing.T) {
		m := NewMemory(30*time.Second, 0.1)
		m.Remember(rampSig(), Identity{ObjectID: 1}, now)
		_, ok := m.Recall(nil, now)
		assert.False(t, ok)
	})

	t.Run("reset forgets everything", func(t *testing.T) {
		m := NewMemory(30*time.Second, 0.1)
		m.Remember(rampSig(), Identity{ObjectID: 1}, now)
		m.Reset()
		assert.Equal(t, 0, m.Len())
	})
}
