package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/LeonardIfiii/shelfsense/internal/monitor"
	"github.com/LeonardIfiii/shelfsense/internal/shelf"
)

var (
	zoneColor    = color.RGBA{0, 200, 0, 0}
	lineColor    = color.RGBA{0, 120, 255, 0}
	idleColor    = color.RGBA{0, 255, 0, 0}
	pendingColor = color.RGBA{0, 255, 255, 0}
	removedColor = color.RGBA{0, 0, 255, 0}
)

// DrawZones paints the calibrated shelf zones and their removal lines onto
// the frame.
func DrawZones(frame *gocv.Mat, layout *shelf.Layout) {
	for _, id := range layout.Zones() {
		z, _ := layout.Zone(id)
		rect := image.Rect(z.X, z.Y, z.X+z.Width, z.Y+z.Height)
		gocv.Rectangle(frame, rect, zoneColor, 2)
		lineY := layout.LineY(id)
		gocv.Line(frame, image.Pt(z.X, lineY), image.Pt(z.X+z.Width, lineY), lineColor, 1)
		label := fmt.Sprintf("shelf %d", id)
		if p, ok := layout.ProductFor(id); ok {
			label += ": " + p
		}
		gocv.PutText(frame, label, image.Pt(z.X+4, z.Y+16), gocv.FontHersheySimplex, 0.5, zoneColor, 1)
	}
}

// DrawObjects paints each live object's box, identity and lifecycle state.
func DrawObjects(frame *gocv.Mat, objects map[int64]*monitor.TrackedObject) {
	for _, obj := range objects {
		c := idleColor
		switch obj.State {
		case monitor.StatePotentialRemoval, monitor.StatePotentialReturn:
			c = pendingColor
		case monitor.StateRemoved:
			c = removedColor
		}
		rect := image.Rect(int(obj.Box.X1), int(obj.Box.Y1), int(obj.Box.X2), int(obj.Box.Y2))
		gocv.Rectangle(frame, rect, c, 2)
		label := fmt.Sprintf("#%d %s %s", obj.ID, obj.Product, obj.State)
		gocv.PutText(frame, label, image.Pt(rect.Min.X, rect.Min.Y-6), gocv.FontHersheySimplex, 0.45, c, 1)
	}
}
