package detector

// TrackedBox is one bounding box with a stable identity assigned by the
// external detector/tracker, in pixel coordinates relative to the source
// frame.
type TrackedBox struct {
	TrackID    string  `json:"track_id"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassName  string  `json:"class_name"`
}

// CenterX returns the horizontal midpoint of the box, used by GateCounter to
// classify which side of the gate band a track currently sits on.
func (b TrackedBox) CenterX() float64 {
	return (b.X1 + b.X2) / 2
}

// CenterY returns the vertical midpoint of the box.
func (b TrackedBox) CenterY() float64 {
	return (b.Y1 + b.Y2) / 2
}

// BottomCenter returns the point GateCounter tracks: the horizontal midpoint
// at the bottom edge of the box, which follows ground contact more faithfully
// than the box centroid as a subject walks through a gate.
func (b TrackedBox) BottomCenter() (x, y float64) {
	return b.CenterX(), b.Y2
}

// InferenceRequest carries a single encoded frame to the external
// detector/tracker service.
type InferenceRequest struct {
	Image               string   `json:"image"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	EnabledClasses      []string `json:"enabled_classes,omitempty"`
}

// InferenceResponse is the detector/tracker's reply: the tracked boxes found
// in the submitted frame.
type InferenceResponse struct {
	Boxes           []TrackedBox `json:"boxes"`
	InferenceTimeMs float64      `json:"inference_time_ms"`
}
