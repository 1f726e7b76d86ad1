// Package vision is the gocv boundary of the monitor: camera capture,
// detection, appearance extraction, and the debug overlay. Everything that
// touches OpenCV lives here so the tracking and domain packages stay free
// of cgo.
package vision

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Camera wraps a capture device and hands out frames.
type Camera struct {
	cap *gocv.VideoCapture
}

// OpenCamera opens the capture device. source is a device index ("0") or
// anything else gocv understands, like a file path or stream URL.
func OpenCamera(source string) (*Camera, error) {
	cap, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture source %q: %w", source, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("capture source %q did not open", source)
	}
	return &Camera{cap: cap}, nil
}

// Read fetches the next frame into dst. Returns false on end of stream or
// an empty grab; transient dropped frames show up the same way and the
// caller decides whether to retry.
func (c *Camera) Read(dst *gocv.Mat) bool {
	if !c.cap.Read(dst) {
		return false
	}
	return !dst.Empty()
}

// Close releases the capture device.
func (c *Camera) Close() error {
	return c.cap.Close()
}
