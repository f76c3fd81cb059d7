package detection

import (
	"image"

	"gocv.io/x/gocv"

	"camwatch/internal/model"
)

// Downscale resizes src by scale into a new Mat owned by the caller. A scale
// of 1 or more (or not positive) returns a clone.
func Downscale(src gocv.Mat, scale float64) gocv.Mat {
	if scale <= 0 || scale >= 1 {
		return src.Clone()
	}
	w := int(float64(src.Cols())*scale + 0.5)
	h := int(float64(src.Rows())*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	return dst
}

// RescaleDetections maps boxes found on a downscaled image back to full
// resolution, in place.
func RescaleDetections(dets []model.Detection, scale float64) {
	if scale <= 0 || scale >= 1 {
		return
	}
	inv := float32(1 / scale)
	for i := range dets {
		dets[i].Box = dets[i].Box.Scale(inv)
	}
}
