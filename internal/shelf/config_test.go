package shelf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shelves.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("full configuration", func(t *testing.T) {
		path := writeConfig(t, `{
			"zones": {
				"0": {"x": 0, "y": 0, "w": 100, "h": 100},
				"1": {"x": 200, "y": 0, "w": 100, "h": 100}
			},
			"lines": {"0": 75},
			"products": {"cup": 0, "bottle": 1},
			"capacities": {"cup": 4},
			"tracking": {
				"confidence_threshold": 0.5,
				"reid_similarity": 0.4,
				"memory_window": "45s",
				"removal_debounce": 5
			},
			"refresh_signal_file": "refresh.signal"
		}`)

		layout, tun, refresh, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "refresh.signal", refresh)

		assert.Equal(t, 75, layout.LineY(0))
		assert.Equal(t, 80, layout.LineY(1), "unconfigured line falls back to 8/10 height")
		assert.Equal(t, 4, layout.Capacity("cup"))
		assert.Equal(t, DefaultCapacity, layout.Capacity("bottle"), "designated product defaults its cap")

		want := DefaultTunables()
		want.ConfidenceThreshold = 0.5
		want.ReIDSimilarity = 0.4
		want.MemoryWindow = 45 * time.Second
		want.RemovalDebounce = 5
		if diff := cmp.Diff(want, tun); diff != "" {
			t.Errorf("tunables mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("minimal configuration uses defaults", func(t *testing.T) {
		path := writeConfig(t, `{"zones": {"0": {"x": 0, "y": 0, "w": 10, "h": 10}}}`)
		_, tun, refresh, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Empty(t, refresh)
		if diff := cmp.Diff(DefaultTunables(), tun); diff != "" {
			t.Errorf("tunables mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "shelves.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
		_, _, _, err := LoadConfig(path)
		assert.ErrorContains(t, err, ".json")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("rejects empty zones", func(t *testing.T) {
		path := writeConfig(t, `{"zones": {}}`)
		_, _, _, err := LoadConfig(path)
		assert.ErrorContains(t, err, "no shelf zones")
	})

	t.Run("rejects degenerate zone", func(t *testing.T) {
		path := writeConfig(t, `{"zones": {"0": {"x": 0, "y": 0, "w": 0, "h": 10}}}`)
		_, _, _, err := LoadConfig(path)
		assert.ErrorContains(t, err, "degenerate")
	})

	t.Run("rejects product on unknown shelf", func(t *testing.T) {
		path := writeConfig(t, `{
			"zones": {"0": {"x": 0, "y": 0, "w": 10, "h": 10}},
			"products": {"cup": 5}
		}`)
		_, _, _, err := LoadConfig(path)
		assert.ErrorContains(t, err, "unknown shelf")
	})

	t.Run("rejects negative capacity", func(t *testing.T) {
		path := writeConfig(t, `{
			"zones": {"0": {"x": 0, "y": 0, "w": 10, "h": 10}},
			"capacities": {"cup": -1}
		}`)
		_, _, _, err := LoadConfig(path)
		assert.ErrorContains(t, err, "negative capacity")
	})

	t.Run("rejects malformed duration", func(t *testing.T) {
		path := writeConfig(t, `{
			"zones": {"0": {"x": 0, "y": 0, "w": 10, "h": 10}},
			"tracking": {"event_cooldown": "soon"}
		}`)
		_, _, _, err := LoadConfig(path)
		assert.ErrorContains(t, err, "event_cooldown")
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		path := writeConfig(t, `{"zones":`)
		_, _, _, err := LoadConfig(path)
		assert.ErrorContains(t, err, "parse")
	})
}
