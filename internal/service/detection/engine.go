package detection

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"camwatch/internal/logger"
	"camwatch/internal/model"
)

// ErrEngineUnavailable is returned when no model could be loaded.
var ErrEngineUnavailable = errors.New("detection: engine unavailable")

// Engine finds objects of the given classes in a BGR image.
type Engine interface {
	Detect(ctx context.Context, img gocv.Mat, classes []model.Label, threshold float32) ([]model.Detection, error)
}

// DNNEngine runs an SSD MobileNet COCO graph through OpenCV's dnn module.
type DNNEngine struct {
	mu  sync.Mutex
	net gocv.Net
	log *logger.Logger
}

// NewDNNEngine loads the frozen graph and its text config.
func NewDNNEngine(modelPath, configPath string, log *logger.Logger) (*DNNEngine, error) {
	for _, p := range []string{modelPath, configPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, errors.Wrapf(ErrEngineUnavailable, "model file %s: %v", p, err)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, errors.Wrap(ErrEngineUnavailable, "failed to load network")
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set preferable backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set preferable target")
	}

	log.Info("Detection network initialized from %s", modelPath)
	return &DNNEngine{net: net, log: log}, nil
}

// Detect runs one forward pass. Box coordinates are in img's pixel space.
func (e *DNNEngine) Detect(ctx context.Context, img gocv.Mat, classes []model.Label, threshold float32) ([]model.Detection, error) {
	if img.Empty() {
		return nil, errors.New("detect: empty image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// SSD COCO input: 300x300, scaled to [-1,1], RGB
	blob := gocv.BlobFromImage(img, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	output := e.net.Forward("")
	defer output.Close()
	if output.Empty() {
		return nil, errors.New("detect: empty network output")
	}

	// rows of [batch_id, class_id, confidence, x1, y1, x2, y2]
	reshaped := output.Reshape(1, output.Total()/7)
	defer reshaped.Close()

	rows := make([][7]float32, reshaped.Rows())
	for i := range rows {
		for j := 0; j < 7; j++ {
			rows[i][j] = reshaped.GetFloatAt(i, j)
		}
	}
	return ParseSSDRows(rows, img.Cols(), img.Rows(), classes, threshold), nil
}

// Close releases the network.
func (e *DNNEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}

// ParseSSDRows converts SSD output rows with normalized coordinates into
// detections for an image of width x height, keeping only wanted classes at or
// above threshold.
func ParseSSDRows(rows [][7]float32, width, height int, classes []model.Label, threshold float32) []model.Detection {
	wanted := model.NewLabelSet(classes...)
	w, h := float32(width), float32(height)

	var out []model.Detection
	for _, r := range rows {
		conf := r[2]
		if conf < threshold {
			continue
		}
		label, ok := model.LabelFromCOCO(int(r[1]))
		if !ok || !wanted.Has(label) {
			continue
		}
		box := model.Box{
			X1: clamp01(r[3]) * w,
			Y1: clamp01(r[4]) * h,
			X2: clamp01(r[5]) * w,
			Y2: clamp01(r[6]) * h,
		}
		if box.Area() <= 0 {
			continue
		}
		out = append(out, model.Detection{Label: label, Confidence: conf, Box: box})
	}
	return out
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
