package vision

import (
	"encoding/json"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"github.com/LeonardIfiii/shelfsense/internal/track"
)

// Detection is one classified box in frame coordinates.
type Detection struct {
	Box        track.Rect
	Label      string
	Confidence float64
}

// Detector finds product instances in a frame. Implementations own any
// OpenCV state and must be closed.
type Detector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
	Close() error
}

// ColorRange describes one product's HSV segmentation band. Hue is in
// OpenCV's 0..180 range, saturation and value in 0..255.
type ColorRange struct {
	Product string  `json:"product"`
	HueMin  float64 `json:"h_min"`
	HueMax  float64 `json:"h_max"`
	SatMin  float64 `json:"s_min"`
	SatMax  float64 `json:"s_max"`
	ValMin  float64 `json:"v_min"`
	ValMax  float64 `json:"v_max"`
	MinArea float64 `json:"min_area"`
}

// ColorDetector segments products by their HSV colour bands: threshold,
// open to kill speckle, then bound the surviving contours. It trades the
// generality of a neural detector for zero model weights and millisecond
// latency, which is enough when each shelf carries visually distinct
// products.
type ColorDetector struct {
	ranges []ColorRange
	kernel gocv.Mat
}

// NewColorDetector builds a detector from per-product colour bands.
func NewColorDetector(ranges []ColorRange) (*ColorDetector, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("no colour ranges configured")
	}
	for _, r := range ranges {
		if r.Product == "" {
			return nil, fmt.Errorf("colour range without a product label")
		}
		if r.MinArea <= 0 {
			return nil, fmt.Errorf("product %q needs a positive min_area", r.Product)
		}
	}
	return &ColorDetector{
		ranges: ranges,
		kernel: gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(5, 5)),
	}, nil
}

// LoadColorRanges reads the detector calibration from a JSON file.
func LoadColorRanges(path string) ([]ColorRange, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detector config: %w", err)
	}
	var cfg struct {
		Products []ColorRange `json:"products"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse detector config: %w", err)
	}
	return cfg.Products, nil
}

// Detect segments every configured product band in the frame.
func (d *ColorDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()

	var out []Detection
	for _, r := range d.ranges {
		lo := gocv.NewScalar(r.HueMin, r.SatMin, r.ValMin, 0)
		hi := gocv.NewScalar(r.HueMax, r.SatMax, r.ValMax, 0)
		gocv.InRangeWithScalar(hsv, lo, hi, &mask)
		gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, d.kernel)

		contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
		for i := 0; i < contours.Size(); i++ {
			area := gocv.ContourArea(contours.At(i))
			if area < r.MinArea {
				continue
			}
			b := gocv.BoundingRect(contours.At(i))
			conf := area / (2 * r.MinArea)
			if conf > 1 {
				conf = 1
			}
			out = append(out, Detection{
				Box: track.Rect{
					X1: float64(b.Min.X), Y1: float64(b.Min.Y),
					X2: float64(b.Max.X), Y2: float64(b.Max.Y),
				},
				Label:      r.Product,
				Confidence: conf,
			})
		}
		contours.Close()
	}
	return out, nil
}

// Close releases the morphology kernel.
func (d *ColorDetector) Close() error {
	return d.kernel.Close()
}
