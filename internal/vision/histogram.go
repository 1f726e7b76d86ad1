package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/LeonardIfiii/shelfsense/internal/track"
)

// histBins is the bin count per HSV channel. The three per-channel
// histograms are concatenated into one vector.
const histBins = 16

// ExtractSignature computes the appearance signature for one detection:
// per-channel HSV histograms over the crop, min-max normalised, plus the
// crop dimensions. Returns nil for crops too small to say anything about.
func ExtractSignature(frame gocv.Mat, box track.Rect) *track.Signature {
	r := clampToFrame(image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)), frame.Cols(), frame.Rows())
	if r.Dx() < 4 || r.Dy() < 4 {
		return nil
	}

	crop := frame.Region(r)
	defer crop.Close()
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(crop, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()

	ranges := [][]float64{{0, 180}, {0, 256}, {0, 256}}
	full := make([]float64, 0, 3*histBins)
	for ch := 0; ch < 3; ch++ {
		hist := gocv.NewMat()
		gocv.CalcHist([]gocv.Mat{hsv}, []int{ch}, mask, &hist, []int{histBins}, ranges[ch], false)
		gocv.Normalize(hist, &hist, 0, 1, gocv.NormMinMax)
		vals, err := hist.DataPtrFloat32()
		if err != nil {
			hist.Close()
			return nil
		}
		for _, v := range vals {
			full = append(full, float64(v))
		}
		hist.Close()
	}

	return &track.Signature{
		Hist:   full,
		Width:  float64(r.Dx()),
		Height: float64(r.Dy()),
	}
}

func clampToFrame(r image.Rectangle, cols, rows int) image.Rectangle {
	if r.Min.X < 0 {
		r.Min.X = 0
	}
	if r.Min.Y < 0 {
		r.Min.Y = 0
	}
	if r.Max.X > cols {
		r.Max.X = cols
	}
	if r.Max.Y > rows {
		r.Max.Y = rows
	}
	return r
}
