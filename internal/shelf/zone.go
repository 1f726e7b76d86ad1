package shelf

// Zone is a calibrated rectangular region of the camera frame covering one
// physical shelf, in frame pixel coordinates.
type Zone struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Contains reports whether the point (px, py) lies inside the zone,
// boundaries included.
func (z Zone) Contains(px, py int) bool {
	return px >= z.X && px <= z.X+z.Width && py >= z.Y && py <= z.Y+z.Height
}

// Position describes where an object centre sits relative to one zone and
// its removal threshold line.
type Position struct {
	Shelf     int
	InsideAny bool // centre is inside at least one zone

	// Edge tests against the assigned zone. BelowLine is the primary
	// removal signal; the others catch side and top exits.
	BelowLine   bool
	BeyondLeft  bool
	BeyondRight bool
	BeyondTop   bool
	FullyInside bool // above the line and within all edges
}

// Outside reports whether the centre has crossed any zone boundary.
func (p Position) Outside() bool {
	return p.BelowLine || p.BeyondLeft || p.BeyondRight || p.BeyondTop
}

// Layout holds the calibrated shelf geometry and the static product
// assignment. It is immutable after LoadConfig.
type Layout struct {
	zones      map[int]Zone
	lineOffset map[int]int // vertical offset of the threshold line within the zone
	designated map[string]int
	capacities map[string]int
}

// Zones returns the shelf identifiers in no particular order.
func (l *Layout) Zones() []int {
	ids := make([]int, 0, len(l.zones))
	for id := range l.zones {
		ids = append(ids, id)
	}
	return ids
}

// Zone returns the calibrated region for a shelf.
func (l *Layout) Zone(shelf int) (Zone, bool) {
	z, ok := l.zones[shelf]
	return z, ok
}

// LineY returns the absolute frame y coordinate of a shelf's removal
// threshold line.
func (l *Layout) LineY(shelf int) int {
	z := l.zones[shelf]
	off, ok := l.lineOffset[shelf]
	if !ok {
		// Fallback matches the calibration tool's default placement.
		off = z.Height * 8 / 10
	}
	return z.Y + off
}

// Locate maps an object centre to a shelf. When the centre is inside no
// zone, ok is false and the caller keeps the object's last known shelf.
func (l *Layout) Locate(cx, cy int) (shelf int, ok bool) {
	for id, z := range l.zones {
		if z.Contains(cx, cy) {
			return id, true
		}
	}
	return 0, false
}

// Relative evaluates an object centre against a specific shelf's zone and
// threshold line.
func (l *Layout) Relative(shelf, cx, cy int, insideAny bool) Position {
	z := l.zones[shelf]
	lineY := l.LineY(shelf)
	p := Position{
		Shelf:       shelf,
		InsideAny:   insideAny,
		BelowLine:   cy > lineY,
		BeyondLeft:  cx < z.X,
		BeyondRight: cx > z.X+z.Width,
		BeyondTop:   cy < z.Y,
	}
	p.FullyInside = cy < lineY && cx > z.X && cx < z.X+z.Width && cy > z.Y
	return p
}

// DesignatedShelf returns the single shelf configured as correct for a
// product type. ok is false for products with no assignment; such products
// are allowed anywhere.
func (l *Layout) DesignatedShelf(product string) (int, bool) {
	s, ok := l.designated[product]
	return s, ok
}

// InCorrectShelf reports whether a product belongs on the given shelf.
// Products without a designated shelf are correct anywhere.
func (l *Layout) InCorrectShelf(product string, shelf int) bool {
	s, ok := l.designated[product]
	if !ok {
		return true
	}
	return shelf == s
}

// ProductFor returns the product designated for a shelf, if any.
func (l *Layout) ProductFor(shelf int) (string, bool) {
	for p, s := range l.designated {
		if s == shelf {
			return p, true
		}
	}
	return "", false
}

// Capacity returns the global per-product object cap.
func (l *Layout) Capacity(product string) int {
	if c, ok := l.capacities[product]; ok {
		return c
	}
	return DefaultCapacity
}

// Capacities returns a copy of the per-product capacity table.
func (l *Layout) Capacities() map[string]int {
	out := make(map[string]int, len(l.capacities))
	for p, c := range l.capacities {
		out[p] = c
	}
	return out
}

// Products returns every product type with a configured capacity.
func (l *Layout) Products() []string {
	out := make([]string, 0, len(l.capacities))
	for p := range l.capacities {
		out = append(out, p)
	}
	return out
}
