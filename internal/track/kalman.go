package track

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// boxFilter is a constant-velocity Kalman filter over a bounding box in
// centre form. State vector: [cx, cy, s, r, vcx, vcy, vs] where s is the
// box area and r the aspect ratio; the ratio carries no velocity.
type boxFilter struct {
	x *mat.VecDense // 7x1 state
	p *mat.Dense    // 7x7 covariance

	f *mat.Dense // state transition
	h *mat.Dense // measurement extraction
	q *mat.Dense // process noise
	r *mat.Dense // measurement noise
}

const filterDim = 7

func newBoxFilter(box Rect) *boxFilter {
	f := mat.NewDense(filterDim, filterDim, nil)
	for i := 0; i < filterDim; i++ {
		f.Set(i, i, 1)
	}
	// Position and scale advance by their velocity each frame.
	f.Set(0, 4, 1)
	f.Set(1, 5, 1)
	f.Set(2, 6, 1)

	h := mat.NewDense(4, filterDim, nil)
	for i := 0; i < 4; i++ {
		h.Set(i, i, 1)
	}

	r := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		r.Set(i, i, 10)
	}

	// The prior starts loose so the first measurements dominate it.
	p := mat.NewDense(filterDim, filterDim, nil)
	for i := 0; i < filterDim; i++ {
		p.Set(i, i, 1000)
	}

	q := mat.NewDense(filterDim, filterDim, nil)
	for i := 0; i < filterDim; i++ {
		q.Set(i, i, 1)
	}
	for i := 4; i < filterDim; i++ {
		q.Set(i, i, 0.01)
	}
	q.Set(6, 6, 0.0001)

	kf := &boxFilter{
		x: mat.NewVecDense(filterDim, nil),
		p: p,
		f: f,
		h: h,
		q: q,
		r: r,
	}
	cx, cy := box.Center()
	kf.x.SetVec(0, cx)
	kf.x.SetVec(1, cy)
	kf.x.SetVec(2, box.Area())
	kf.x.SetVec(3, ratio(box))
	return kf
}

// Predict advances the state one frame and returns the predicted box.
// A prediction that would drive the area non-positive zeroes the scale
// velocity first, matching the usual SORT guard.
func (kf *boxFilter) Predict() Rect {
	if kf.x.AtVec(2)+kf.x.AtVec(6) <= 0 {
		kf.x.SetVec(6, 0)
	}

	var nx mat.VecDense
	nx.MulVec(kf.f, kf.x)
	kf.x.CopyVec(&nx)

	var fp, fpft mat.Dense
	fp.Mul(kf.f, kf.p)
	fpft.Mul(&fp, kf.f.T())
	fpft.Add(&fpft, kf.q)
	kf.p.Copy(&fpft)

	return kf.Box()
}

// Update folds a matched measurement into the state. A singular innovation
// covariance skips the update rather than corrupting the state.
func (kf *boxFilter) Update(box Rect) {
	z := mat.NewVecDense(4, []float64{0, 0, 0, 0})
	cx, cy := box.Center()
	z.SetVec(0, cx)
	z.SetVec(1, cy)
	z.SetVec(2, box.Area())
	z.SetVec(3, ratio(box))

	// Innovation y = z - Hx.
	var hx, y mat.VecDense
	hx.MulVec(kf.h, kf.x)
	y.SubVec(z, &hx)

	// S = H P Hᵀ + R.
	var hp, s mat.Dense
	hp.Mul(kf.h, kf.p)
	s.Mul(&hp, kf.h.T())
	s.Add(&s, kf.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return
	}

	// K = P Hᵀ S⁻¹.
	var pht, k mat.Dense
	pht.Mul(kf.p, kf.h.T())
	k.Mul(&pht, &sInv)

	var ky mat.VecDense
	ky.MulVec(&k, &y)
	kf.x.AddVec(kf.x, &ky)

	// P = (I - K H) P.
	var kh mat.Dense
	kh.Mul(&k, kf.h)
	ikh := mat.NewDense(filterDim, filterDim, nil)
	for i := 0; i < filterDim; i++ {
		ikh.Set(i, i, 1)
	}
	ikh.Sub(ikh, &kh)
	var np mat.Dense
	np.Mul(ikh, kf.p)
	kf.p.Copy(&np)
}

// Box converts the current state back to corner form.
func (kf *boxFilter) Box() Rect {
	cx := kf.x.AtVec(0)
	cy := kf.x.AtVec(1)
	s := kf.x.AtVec(2)
	r := kf.x.AtVec(3)
	if s <= 0 || r <= 0 {
		return Rect{X1: math.NaN(), Y1: math.NaN(), X2: math.NaN(), Y2: math.NaN()}
	}
	w := math.Sqrt(s * r)
	h := s / w
	return Rect{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

func ratio(box Rect) float64 {
	if box.Height() == 0 {
		return 0
	}
	return box.Width() / box.Height()
}
