package shelf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultCapacity is the per-product object cap used when the calibration
// artifact does not name one.
const DefaultCapacity = 3

// Tracking holds the tunable constants of the tracking and event pipeline.
// Fields are pointers so a partial JSON config only overrides what it
// names; Resolve applies defaults for the rest.
type Tracking struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	MaxAge              *int     `json:"max_age,omitempty"`
	MinHits             *int     `json:"min_hits,omitempty"`
	MotionWeight        *float64 `json:"motion_weight,omitempty"`
	AppearanceWeight    *float64 `json:"appearance_weight,omitempty"`
	AssignmentThreshold *float64 `json:"assignment_threshold,omitempty"`
	ReIDSimilarity      *float64 `json:"reid_similarity,omitempty"`
	MemoryWindow        *string  `json:"memory_window,omitempty"`    // duration string like "30s"
	EventCooldown       *string  `json:"event_cooldown,omitempty"`   // duration string like "2s"
	ReconcileEvery      *string  `json:"reconcile_every,omitempty"`  // duration string like "10s"
	BaselineDelay       *string  `json:"baseline_delay,omitempty"`   // duration string like "5s"
	ObjectTimeout       *string  `json:"object_timeout,omitempty"`   // duration string like "5s"
	RemovalDebounce     *int     `json:"removal_debounce,omitempty"` // frames outside before Removed
	ReturnDebounce      *int     `json:"return_debounce,omitempty"`  // frames inside before Idle
}

// Tunables is the resolved form of Tracking with every field populated.
type Tunables struct {
	ConfidenceThreshold float64
	MaxAge              int
	MinHits             int
	MotionWeight        float64
	AppearanceWeight    float64
	AssignmentThreshold float64
	ReIDSimilarity      float64
	MemoryWindow        time.Duration
	EventCooldown       time.Duration
	ReconcileEvery      time.Duration
	BaselineDelay       time.Duration
	ObjectTimeout       time.Duration
	RemovalDebounce     int
	ReturnDebounce      int
}

// DefaultTunables returns the values the pipeline ships with. The re-ID
// similarity and assignment thresholds are empirically chosen per
// deployment; these are only starting points.
func DefaultTunables() Tunables {
	return Tunables{
		ConfidenceThreshold: 0.35,
		MaxAge:              30,
		MinHits:             2,
		MotionWeight:        0.6,
		AppearanceWeight:    0.4,
		AssignmentThreshold: 0.5,
		ReIDSimilarity:      0.3,
		MemoryWindow:        30 * time.Second,
		EventCooldown:       2 * time.Second,
		ReconcileEvery:      10 * time.Second,
		BaselineDelay:       5 * time.Second,
		ObjectTimeout:       5 * time.Second,
		RemovalDebounce:     2,
		ReturnDebounce:      3,
	}
}

// Config is the on-disk calibration artifact: zones and threshold lines
// from the setup tool, the product assignment, capacities, and optional
// tracking overrides.
type Config struct {
	Zones             map[string]Zone `json:"zones"`
	Lines             map[string]int  `json:"lines"`
	Products          map[string]int  `json:"products"`   // product type -> designated shelf
	Capacities        map[string]int  `json:"capacities"` // product type -> global cap
	Tracking          Tracking        `json:"tracking"`
	RefreshSignalFile string          `json:"refresh_signal_file,omitempty"`
}

const maxConfigSize = 1 * 1024 * 1024

// LoadConfig reads and validates the calibration artifact. A configuration
// without at least one zone is a hard error; the monitor cannot run blind.
func LoadConfig(path string) (*Layout, Tunables, string, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, Tunables{}, "", fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, Tunables{}, "", fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, Tunables{}, "", fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, Tunables{}, "", fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, Tunables{}, "", fmt.Errorf("failed to parse config file: %w", err)
	}

	layout, err := cfg.Layout()
	if err != nil {
		return nil, Tunables{}, "", err
	}
	tun, err := cfg.Tracking.Resolve()
	if err != nil {
		return nil, Tunables{}, "", err
	}
	return layout, tun, cfg.RefreshSignalFile, nil
}

// Layout builds the immutable shelf layout from the parsed config.
func (c *Config) Layout() (*Layout, error) {
	if len(c.Zones) == 0 {
		return nil, fmt.Errorf("no shelf zones defined; run the calibration tool first")
	}

	zones := make(map[int]Zone, len(c.Zones))
	for key, z := range c.Zones {
		id, err := parseShelfID(key)
		if err != nil {
			return nil, err
		}
		if z.Width <= 0 || z.Height <= 0 {
			return nil, fmt.Errorf("zone %d has degenerate size %dx%d", id, z.Width, z.Height)
		}
		zones[id] = z
	}

	lines := make(map[int]int, len(c.Lines))
	for key, off := range c.Lines {
		id, err := parseShelfID(key)
		if err != nil {
			return nil, err
		}
		if _, ok := zones[id]; ok {
			lines[id] = off
		}
	}

	designated := make(map[string]int, len(c.Products))
	for product, s := range c.Products {
		if _, ok := zones[s]; !ok {
			return nil, fmt.Errorf("product %q assigned to unknown shelf %d", product, s)
		}
		designated[product] = s
	}

	caps := make(map[string]int, len(c.Capacities))
	for product, n := range c.Capacities {
		if n < 0 {
			return nil, fmt.Errorf("product %q has negative capacity %d", product, n)
		}
		caps[product] = n
	}
	// Every assigned product needs a cap for the global invariants to hold.
	for product := range designated {
		if _, ok := caps[product]; !ok {
			caps[product] = DefaultCapacity
		}
	}

	return &Layout{
		zones:      zones,
		lineOffset: lines,
		designated: designated,
		capacities: caps,
	}, nil
}

// Resolve fills a Tunables from the overrides, applying defaults for
// anything the config omits.
func (t Tracking) Resolve() (Tunables, error) {
	out := DefaultTunables()
	if t.ConfidenceThreshold != nil {
		out.ConfidenceThreshold = *t.ConfidenceThreshold
	}
	if t.MaxAge != nil {
		out.MaxAge = *t.MaxAge
	}
	if t.MinHits != nil {
		out.MinHits = *t.MinHits
	}
	if t.MotionWeight != nil {
		out.MotionWeight = *t.MotionWeight
	}
	if t.AppearanceWeight != nil {
		out.AppearanceWeight = *t.AppearanceWeight
	}
	if t.AssignmentThreshold != nil {
		out.AssignmentThreshold = *t.AssignmentThreshold
	}
	if t.ReIDSimilarity != nil {
		out.ReIDSimilarity = *t.ReIDSimilarity
	}
	if t.RemovalDebounce != nil {
		out.RemovalDebounce = *t.RemovalDebounce
	}
	if t.ReturnDebounce != nil {
		out.ReturnDebounce = *t.ReturnDebounce
	}
	for _, d := range []struct {
		raw *string
		dst *time.Duration
		key string
	}{
		{t.MemoryWindow, &out.MemoryWindow, "memory_window"},
		{t.EventCooldown, &out.EventCooldown, "event_cooldown"},
		{t.ReconcileEvery, &out.ReconcileEvery, "reconcile_every"},
		{t.BaselineDelay, &out.BaselineDelay, "baseline_delay"},
		{t.ObjectTimeout, &out.ObjectTimeout, "object_timeout"},
	} {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return Tunables{}, fmt.Errorf("invalid %s %q: %w", d.key, *d.raw, err)
		}
		*d.dst = v
	}
	return out, nil
}

func parseShelfID(key string) (int, error) {
	var id int
	if _, err := fmt.Sscanf(key, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid shelf id %q: %w", key, err)
	}
	return id, nil
}

// NewLayout builds a layout directly from in-memory tables. Tests and the
// calibration tool use this; production goes through LoadConfig.
func NewLayout(zones map[int]Zone, lines map[int]int, designated map[string]int, caps map[string]int) *Layout {
	l := &Layout{
		zones:      make(map[int]Zone, len(zones)),
		lineOffset: make(map[int]int, len(lines)),
		designated: make(map[string]int, len(designated)),
		capacities: make(map[string]int, len(caps)),
	}
	for k, v := range zones {
		l.zones[k] = v
	}
	for k, v := range lines {
		l.lineOffset[k] = v
	}
	for k, v := range designated {
		l.designated[k] = v
	}
	for k, v := range caps {
		l.capacities[k] = v
	}
	return l
}
