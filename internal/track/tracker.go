package track

import "time"

// Detection is one frame observation handed to the tracker: a bounding box
// with its detector confidence and, when the crop was usable, an
// appearance signature. Class labels stay at the domain layer; the tracker
// associates purely on motion and appearance.
type Detection struct {
	Box        Rect
	Confidence float64
	Signature  *Signature
}

// TrackedBox is the tracker's per-frame output: the current box estimate
// for a live track.
type TrackedBox struct {
	Box Rect
	ID  int64
}

// Config holds the association tunables.
type Config struct {
	MaxAge              int     // unmatched frames tolerated before a track is dropped
	MinHits             int     // consecutive matches before a track is reported
	MotionWeight        float64 // weight of the (1 - IoU) term
	AppearanceWeight    float64 // weight of the (1 - correlation) term
	AssignmentThreshold float64 // maximum accepted assignment cost
}

// DefaultConfig returns the association parameters the monitor ships with.
func DefaultConfig() Config {
	return Config{
		MaxAge:              30,
		MinHits:             2,
		MotionWeight:        0.6,
		AppearanceWeight:    0.4,
		AssignmentThreshold: 0.5,
	}
}

type boxTrack struct {
	id     int64
	filter *boxFilter
	sig    *Signature

	timeSinceUpdate int
	hits            int
	hitStreak       int
	predicted       Rect
}

func (bt *boxTrack) update(det Detection, now time.Time) {
	bt.timeSinceUpdate = 0
	bt.hits++
	bt.hitStreak++
	bt.filter.Update(det.Box)
	if det.Signature != nil {
		if bt.sig == nil {
			bt.sig = det.Signature.Clone()
		} else {
			// Equal blend keeps the track's appearance responsive to
			// lighting drift without letting one noisy crop own it.
			bt.sig.Blend(det.Signature, 0.5, now)
		}
	}
}

// Tracker maintains the set of live tracks and performs per-frame
// association of detections to tracks via minimum-cost bipartite matching
// over a combined motion and appearance cost.
type Tracker struct {
	cfg        Config
	tracks     []*boxTrack
	nextID     int64
	frameCount int
}

// NewTracker creates a tracker with the given association parameters.
func NewTracker(cfg Config) *Tracker {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	return &Tracker{cfg: cfg, nextID: 1}
}

// Update runs one association step and returns the confirmed tracks with
// their current box estimates. A track whose prediction has gone
// degenerate is dropped, an unmatched detection spawns a fresh track, and
// ordinary detector noise never surfaces as an error.
func (t *Tracker) Update(dets []Detection, now time.Time) []TrackedBox {
	t.frameCount++

	// Predict every track one frame forward and age it; the ones whose
	// filter has gone degenerate are discarded.
	live := t.tracks[:0]
	for _, trk := range t.tracks {
		trk.predicted = trk.filter.Predict()
		if !trk.predicted.Valid() {
			continue
		}
		if trk.timeSinceUpdate > 0 {
			trk.hitStreak = 0
		}
		trk.timeSinceUpdate++
		live = append(live, trk)
	}
	t.tracks = live

	matchedDet := make([]bool, len(dets))
	if len(t.tracks) > 0 && len(dets) > 0 {
		cost := make([][]float64, len(t.tracks))
		for i, trk := range t.tracks {
			cost[i] = make([]float64, len(dets))
			for j, det := range dets {
				iou := IoU(trk.predicted, det.Box)
				corr := Correlation(trk.sig, det.Signature)
				cost[i][j] = t.cfg.MotionWeight*(1-iou) + t.cfg.AppearanceWeight*(1-corr)
			}
		}

		assign, err := solveAssignment(cost, len(t.tracks), len(dets))
		if err != nil {
			// Fall back to leaving everything unmatched this frame; the
			// max-age tolerance absorbs a single skipped association.
			assign = make([]int, len(t.tracks))
			for i := range assign {
				assign[i] = -1
			}
		}
		for i, j := range assign {
			if j >= 0 && cost[i][j] < t.cfg.AssignmentThreshold {
				t.tracks[i].update(dets[j], now)
				matchedDet[j] = true
			}
		}
	}

	for j, det := range dets {
		if matchedDet[j] || !det.Box.Valid() {
			continue
		}
		trk := &boxTrack{
			id:        t.nextID,
			filter:    newBoxFilter(det.Box),
			sig:       det.Signature.Clone(),
			hits:      1,
			hitStreak: 1,
		}
		trk.predicted = det.Box
		t.nextID++
		t.tracks = append(t.tracks, trk)
	}

	// Drop tracks unmatched for more than MaxAge frames. Only tracks
	// matched this frame with a long enough hit streak are reported; the
	// streak requirement is waived during the first frames after start.
	kept := t.tracks[:0]
	out := make([]TrackedBox, 0, len(t.tracks))
	for _, trk := range t.tracks {
		if trk.timeSinceUpdate > t.cfg.MaxAge {
			continue
		}
		kept = append(kept, trk)
		if trk.timeSinceUpdate == 0 && (trk.hitStreak >= t.cfg.MinHits || t.frameCount <= t.cfg.MinHits) {
			out = append(out, TrackedBox{Box: trk.currentBox(), ID: trk.id})
		}
	}
	t.tracks = kept
	return out
}

func (bt *boxTrack) currentBox() Rect {
	box := bt.filter.Box()
	if !box.Valid() {
		return bt.predicted
	}
	return box
}

// Signature returns the blended appearance for a track, or nil for an
// unknown id.
func (t *Tracker) Signature(id int64) *Signature {
	for _, trk := range t.tracks {
		if trk.id == id {
			return trk.sig
		}
	}
	return nil
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int { return len(t.tracks) }

// Reset drops all tracks; identifiers keep counting up so recycled ids
// never collide with remembered ones.
func (t *Tracker) Reset() {
	t.tracks = nil
	t.frameCount = 0
}
