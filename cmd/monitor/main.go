// Command monitor runs the camera-based shelf monitoring pipeline: capture
// frames, detect and track products, drive the per-object lifecycle, and
// keep the event log and inventory in sqlite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/LeonardIfiii/shelfsense/internal/monitor"
	"github.com/LeonardIfiii/shelfsense/internal/monitoring"
	"github.com/LeonardIfiii/shelfsense/internal/shelf"
	"github.com/LeonardIfiii/shelfsense/internal/store"
	"github.com/LeonardIfiii/shelfsense/internal/version"
	"github.com/LeonardIfiii/shelfsense/internal/vision"
)

var (
	configPath   = flag.String("config", "shelves.json", "Shelf calibration file")
	detectorPath = flag.String("detector", "colors.json", "Detector colour calibration file")
	dbPath       = flag.String("db", "shelf_monitor.db", "Sqlite database path")
	source       = flag.String("source", "0", "Capture source: device index, file, or stream URL")
	display      = flag.Bool("display", false, "Show the debug overlay window")
	resetDB      = flag.Bool("reset", false, "Drop all persisted events and inventory before starting")
	verbose      = flag.Bool("verbose", false, "Log pipeline diagnostics")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("shelfsense %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if !*verbose {
		monitoring.SetLogger(nil)
	}

	layout, tun, refreshFile, err := shelf.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ranges, err := vision.LoadColorRanges(*detectorPath)
	if err != nil {
		log.Fatalf("detector config: %v", err)
	}
	detector, err := vision.NewColorDetector(ranges)
	if err != nil {
		log.Fatalf("detector: %v", err)
	}
	defer detector.Close()

	st, err := store.Open(*dbPath, layout.Capacities())
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()
	if *resetDB {
		if err := st.ResetAll(); err != nil {
			log.Fatalf("reset: %v", err)
		}
		log.Printf("database reset")
	}

	runID := uuid.NewString()
	if err := st.RecordRun(runID, version.Version, time.Now()); err != nil {
		log.Fatalf("record run: %v", err)
	}
	log.Printf("shelfsense %s starting, run %s", version.Version, runID)

	camera, err := vision.OpenCamera(*source)
	if err != nil {
		log.Fatalf("camera: %v", err)
	}
	defer camera.Close()

	session := monitor.NewSession(layout, tun, st, refreshFile)
	session.StartBaseline(time.Now())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, session, camera, detector, layout, tun); err != nil {
		log.Fatalf("monitor: %v", err)
	}
	log.Printf("shutting down")
}

func run(ctx context.Context, session *monitor.Session, camera *vision.Camera, detector vision.Detector, layout *shelf.Layout, tun shelf.Tunables) error {
	frame := gocv.NewMat()
	defer frame.Close()

	var window *gocv.Window
	if *display {
		window = gocv.NewWindow("shelf monitor")
		defer window.Close()
	}

	for ctx.Err() == nil {
		if !camera.Read(&frame) {
			// A single dropped frame is normal on USB cameras; back off
			// briefly and try again.
			time.Sleep(50 * time.Millisecond)
			continue
		}

		dets, err := detector.Detect(frame)
		if err != nil {
			monitoring.Logf("detect: %v", err)
			continue
		}

		obs := make([]monitor.Observation, 0, len(dets))
		for _, d := range dets {
			if d.Confidence < tun.ConfidenceThreshold {
				continue
			}
			obs = append(obs, monitor.Observation{
				Box:        d.Box,
				Product:    d.Label,
				Confidence: d.Confidence,
				Signature:  vision.ExtractSignature(frame, d.Box),
			})
		}

		if err := session.ProcessFrame(obs, time.Now()); err != nil {
			return err
		}

		if window != nil {
			vision.DrawZones(&frame, layout)
			vision.DrawObjects(&frame, session.Objects())
			window.IMShow(frame)
			if window.WaitKey(1) == 'q' {
				return nil
			}
		}
	}
	return nil
}
