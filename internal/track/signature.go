package track

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Signature is an object's visual fingerprint: a normalised colour
// histogram over the detection crop plus the raw box dimensions. It is the
// currency of both frame-to-frame association and long-horizon
// re-identification.
type Signature struct {
	Hist     []float64
	Width    float64
	Height   float64
	LastSeen time.Time
}

// Clone returns a deep copy.
func (s *Signature) Clone() *Signature {
	if s == nil {
		return nil
	}
	out := &Signature{
		Width:    s.Width,
		Height:   s.Height,
		LastSeen: s.LastSeen,
	}
	out.Hist = append([]float64(nil), s.Hist...)
	return out
}

// Blend folds a fresh observation into the signature with an exponential
// moving update: keep*old + (1-keep)*new. The histogram lengths must match;
// mismatched observations replace the histogram outright.
func (s *Signature) Blend(obs *Signature, keep float64, now time.Time) {
	if obs == nil {
		return
	}
	if len(obs.Hist) > 0 {
		if len(s.Hist) == len(obs.Hist) {
			floats.Scale(keep, s.Hist)
			floats.AddScaled(s.Hist, 1-keep, obs.Hist)
		} else {
			s.Hist = append([]float64(nil), obs.Hist...)
		}
	}
	if obs.Width > 0 && obs.Height > 0 {
		if s.Width > 0 && s.Height > 0 {
			s.Width = keep*s.Width + (1-keep)*obs.Width
			s.Height = keep*s.Height + (1-keep)*obs.Height
		} else {
			s.Width, s.Height = obs.Width, obs.Height
		}
	}
	s.LastSeen = now
}

// Similarity scores two signatures in [0, 1]: cosine similarity of the
// histograms weighted at 0.7 plus a symmetric dimension-ratio term at 0.3.
// Colour dominates because shelf items of the same product differ mostly
// in size and print, not silhouette.
func Similarity(a, b *Signature) float64 {
	if a == nil || b == nil {
		return 0
	}
	var sim float64
	if len(a.Hist) > 0 && len(a.Hist) == len(b.Hist) {
		sim += 0.7 * cosine(a.Hist, b.Hist)
	}
	if a.Width > 0 && a.Height > 0 && b.Width > 0 && b.Height > 0 {
		wr := math.Min(a.Width, b.Width) / math.Max(a.Width, b.Width)
		hr := math.Min(a.Height, b.Height) / math.Max(a.Height, b.Height)
		sim += 0.3 * (wr + hr) / 2
	}
	return clamp01(sim)
}

// Correlation is the Pearson correlation of the two histograms, clamped to
// [0, 1]. The tracker's assignment cost uses it as the appearance term;
// zero when either side has no histogram.
func Correlation(a, b *Signature) float64 {
	if a == nil || b == nil || len(a.Hist) == 0 || len(a.Hist) != len(b.Hist) {
		return 0
	}
	c := stat.Correlation(a.Hist, b.Hist, nil)
	if math.IsNaN(c) {
		return 0
	}
	return clamp01(c)
}

func cosine(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp01(floats.Dot(a, b) / (na * nb))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
