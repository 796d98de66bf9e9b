package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hoangtvse170014/checkout/internal/camera"
	"github.com/hoangtvse170014/checkout/internal/detector"
	"github.com/hoangtvse170014/checkout/internal/gate"
	"github.com/hoangtvse170014/checkout/internal/logger"
	"github.com/hoangtvse170014/checkout/internal/service"
	"github.com/hoangtvse170014/checkout/internal/store"
)

// Config configures a Worker.
type Config struct {
	CameraID        string
	InferTimeout    time.Duration // bound on a single detector call
	StoreTimeout    time.Duration // bound on a single synchronous Store write
	PendingWrites   int           // capacity of the retry queue
}

// Worker consumes frames from a single camera, calls the detector/tracker
// contract, feeds GateCounter, and durably writes the resulting Events. A
// crossing whose immediate Store write blocks past StoreTimeout is queued for
// background retry; if that queue is saturated the write falls back to a
// second blocking attempt inline rather than being dropped silently.
type Worker struct {
	*service.ServiceBase
	cfg      Config
	detector detector.Client
	counter  *gate.Counter
	store    *store.Store

	pending chan pendingWrite
	done    chan struct{}

	trackMu      sync.Mutex
	liveTrackIDs map[string]struct{} // track ids the detector reported on the previous frame
}

type pendingWrite struct {
	eventTime time.Time
	direction store.Direction
	cameraID  string
}

// NewWorker constructs a pipeline Worker.
func NewWorker(cfg Config, det detector.Client, counter *gate.Counter, st *store.Store, log *logger.Logger) *Worker {
	if cfg.InferTimeout == 0 {
		cfg.InferTimeout = 3 * time.Second
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 500 * time.Millisecond
	}
	if cfg.PendingWrites == 0 {
		cfg.PendingWrites = 64
	}

	return &Worker{
		ServiceBase:  service.NewServiceBase("pipeline-worker", log),
		cfg:          cfg,
		detector:     det,
		counter:      counter,
		store:        st,
		pending:      make(chan pendingWrite, cfg.PendingWrites),
		done:         make(chan struct{}),
		liveTrackIDs: make(map[string]struct{}),
	}
}

// Name returns the service name.
func (w *Worker) Name() string {
	return fmt.Sprintf("pipeline-worker-%s", w.cfg.CameraID)
}

// Start launches the background retry drainer. Frame processing itself
// happens synchronously inside OnFrame, called directly from the camera
// source's poll loop.
func (w *Worker) Start(ctx context.Context) error {
	w.GetStatus().SetStatus(service.StatusStarting)
	go w.drainPending()
	w.GetStatus().SetStatus(service.StatusRunning)
	return nil
}

// Stop drains any outstanding writes synchronously before returning, so no
// event is lost on shutdown.
func (w *Worker) Stop(ctx context.Context) error {
	w.GetStatus().SetStatus(service.StatusStopping)
	close(w.pending)
	<-w.done
	w.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

// OnFrame is the camera.Source frame callback: run detection, feed the gate
// state machine, and persist any resolved crossings.
func (w *Worker) OnFrame(frame camera.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.InferTimeout)
	defer cancel()

	boxes, err := w.detector.Infer(ctx, frame.Data)
	if err != nil {
		w.LogError("detector inference failed, frame skipped", err, "camera_id", w.cfg.CameraID)
		return
	}

	for _, box := range boxes {
		crossing, ok := w.counter.Process(box.TrackID, box, frame.Timestamp)
		if !ok {
			continue
		}
		w.writeCrossing(*crossing)
	}

	w.pruneVanishedTracks(boxes)
}

// pruneVanishedTracks drops GateCounter state for any track id that was live
// on the previous frame but is absent from this one, so a lost track's
// position/dwell bookkeeping never outlives the track itself.
func (w *Worker) pruneVanishedTracks(boxes []detector.TrackedBox) {
	current := make(map[string]struct{}, len(boxes))
	for _, box := range boxes {
		current[box.TrackID] = struct{}{}
	}

	w.trackMu.Lock()
	defer w.trackMu.Unlock()

	for id := range w.liveTrackIDs {
		if _, stillLive := current[id]; !stillLive {
			w.counter.DropTrack(id)
		}
	}
	w.liveTrackIDs = current
}

func (w *Worker) writeCrossing(c gate.Crossing) {
	direction := store.Direction(c.Direction)

	writeCtx, cancel := context.WithTimeout(context.Background(), w.cfg.StoreTimeout)
	defer cancel()

	if _, err := w.store.AppendEvent(writeCtx, c.Time, direction, w.cfg.CameraID); err == nil {
		if w.GetEventBus() != nil {
			w.PublishEvent(service.EventTypeCrossingCounted, map[string]interface{}{
				"track_id":  c.TrackID,
				"direction": c.Direction,
				"camera_id": w.cfg.CameraID,
			})
		}
		return
	}

	select {
	case w.pending <- pendingWrite{eventTime: c.Time, direction: direction, cameraID: w.cfg.CameraID}:
		w.LogDebug("store write queued for retry", "track_id", c.TrackID, "direction", c.Direction)
	default:
		// retry queue saturated: fall back to a direct blocking write so the
		// event is never silently dropped.
		w.directWrite(pendingWrite{eventTime: c.Time, direction: direction, cameraID: w.cfg.CameraID})
	}
}

func (w *Worker) directWrite(p pendingWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := w.store.AppendEvent(ctx, p.eventTime, p.direction, p.cameraID); err != nil {
		w.LogError("direct fallback write failed, event lost", err, "camera_id", p.cameraID, "direction", string(p.direction))
	}
}

func (w *Worker) drainPending() {
	defer close(w.done)
	for p := range w.pending {
		w.directWrite(p)
	}
}
