// Package imaging applies the viewer's image adjustments and vision modes.
package imaging

import (
	"math"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Mode is a display rendering mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeNightGreen
	ModeThermalColor
	ModeThermalBW
	modeCount
)

var modeNames = [...]string{
	ModeNormal:       "Normal",
	ModeNightGreen:   "Night Vision",
	ModeThermalColor: "Thermal",
	ModeThermalBW:    "Thermal B/W",
}

// Next cycles to the following mode, wrapping around.
func (m Mode) Next() Mode {
	return (m + 1) % modeCount
}

func (m Mode) String() string {
	if m < 0 || m >= modeCount {
		return "Unknown"
	}
	return modeNames[m]
}

// Adjustments are the per-frame image parameters.
type Adjustments struct {
	Mode       Mode
	Brightness float64
	Contrast   float64
	Gamma      float64
}

// GammaTable builds the 8-bit lookup table for gamma correction.
func GammaTable(gamma float64) [256]uint8 {
	var t [256]uint8
	if gamma <= 0 {
		gamma = 1
	}
	inv := 1.0 / gamma
	for i := range t {
		v := math.Pow(float64(i)/255.0, inv) * 255.0
		t[i] = uint8(math.Min(255, math.Max(0, math.Round(v))))
	}
	return t
}

// Transformer renders a frame with the current adjustments. It caches the
// gamma lookup table and is owned by the display goroutine.
type Transformer struct {
	lut      gocv.Mat
	lutGamma float64
	hasLUT   bool
}

// NewTransformer creates a transformer with no cached table.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Apply writes the adjusted version of src (BGR) into a new Mat owned by the caller.
func (t *Transformer) Apply(src gocv.Mat, adj Adjustments) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), errors.New("transform: empty frame")
	}

	out := gocv.NewMat()
	alpha := adj.Contrast
	if alpha <= 0 {
		alpha = 1
	}
	beta := (adj.Brightness - 1) * 255
	gocv.ConvertScaleAbs(src, &out, alpha, beta)

	if adj.Gamma > 0 && math.Abs(adj.Gamma-1) > 1e-6 {
		t.ensureLUT(adj.Gamma)
		corrected := gocv.NewMat()
		gocv.LUT(out, t.lut, &corrected)
		out.Close()
		out = corrected
	}

	switch adj.Mode {
	case ModeNightGreen:
		return t.swap(out, nightGreen)
	case ModeThermalColor:
		return t.swap(out, func(in gocv.Mat) (gocv.Mat, error) { return falseColor(in, gocv.ColormapJet) })
	case ModeThermalBW:
		return t.swap(out, func(in gocv.Mat) (gocv.Mat, error) { return falseColor(in, gocv.ColormapBone) })
	}
	return out, nil
}

func (t *Transformer) swap(in gocv.Mat, fn func(gocv.Mat) (gocv.Mat, error)) (gocv.Mat, error) {
	defer in.Close()
	return fn(in)
}

func (t *Transformer) ensureLUT(gamma float64) {
	if t.hasLUT && t.lutGamma == gamma {
		return
	}
	if t.hasLUT {
		t.lut.Close()
	}
	table := GammaTable(gamma)
	t.lut = gocv.NewMatWithSize(1, 256, gocv.MatTypeCV8UC1)
	for i, v := range table {
		t.lut.SetUCharAt(0, i, v)
	}
	t.lutGamma = gamma
	t.hasLUT = true
}

// Close releases the cached table.
func (t *Transformer) Close() error {
	if !t.hasLUT {
		return nil
	}
	t.hasLUT = false
	return t.lut.Close()
}

// nightGreen equalizes luminance and tints it green.
func nightGreen(src gocv.Mat) (gocv.Mat, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(src, &gray, gocv.ColorBGRToGray); err != nil {
		return gocv.NewMat(), errors.Wrap(err, "night vision: grayscale")
	}
	eq := gocv.NewMat()
	defer eq.Close()
	gocv.EqualizeHist(gray, &eq)

	dim := gocv.NewMat()
	defer dim.Close()
	gocv.ConvertScaleAbs(eq, &dim, 0.5, 0)

	out := gocv.NewMat()
	gocv.Merge([]gocv.Mat{dim, eq, dim}, &out)
	return out, nil
}

// falseColor maps normalized luminance through a colormap.
func falseColor(src gocv.Mat, cmap gocv.ColormapTypes) (gocv.Mat, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(src, &gray, gocv.ColorBGRToGray); err != nil {
		return gocv.NewMat(), errors.Wrap(err, "thermal: grayscale")
	}
	norm := gocv.NewMat()
	defer norm.Close()
	gocv.Normalize(gray, &norm, 0, 255, gocv.NormMinMax)

	out := gocv.NewMat()
	gocv.ApplyColorMap(norm, &out, cmap)
	return out, nil
}
