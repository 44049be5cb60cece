// Package shadow implements the depth-shadow geometric pre-filter of
// spec.md §4.2: it zeroes depth pixels that are occluded from the color
// camera's viewpoint, using a per-pixel unit-depth ray table precomputed
// once from calibration.
//
// Grounded on
// _examples/original_source/cpp/app/helper/shadow_remover.h, which
// precomputes a PointCloud of unit-depth rays at construction time and
// sweeps each scanline right-to-left at remove() time; this package keeps
// that same two-phase shape (NewRemover validates and captures the
// caller's precomputed ray table once, Apply does the per-frame sweep).
package shadow

import "fmt"

// AzureKinectMaxDistance is the operating range (mm) of the NFOV unbinned
// mode of the Azure Kinect depth camera, used as the initial "nothing
// covers this column yet" horizon for the occlusion sweep.
const AzureKinectMaxDistance = 3860.0

// Calibration carries what Remover needs to build its unit-depth ray
// table: the depth image resolution and, for each pixel, the x-coordinate
// (in the color camera's frame) of the ray passing through that pixel at
// unit depth. Computing unitX[i,j] from full camera intrinsics/extrinsics
// is the sensor device's job (spec.md §6 "Sensor device (external)"); this
// package only consumes the already-projected per-pixel ray table.
type Calibration struct {
	Width, Height int
	// UnitX is row-major, length Width*Height: the x-coordinate of the
	// unit-depth ray for pixel (i, j) in the color camera's frame.
	UnitX []float32
	// ColorCameraX is the x-translation (mm) from the depth camera's
	// origin to the color camera's origin.
	ColorCameraX float32
}

// Remover holds the precomputed ray table for one depth stream's
// resolution and extrinsics. It is stateless across frames and safe to
// reuse (but not to share across goroutines concurrently, matching
// spec.md §5's single-owner-task model).
type Remover struct {
	width, height int
	unitX         []float32
	colorCameraX  float32
	zmax          []float32 // scratch buffer, reused per scanline
}

// NewRemover precomputes nothing beyond validating and capturing calib;
// calib.UnitX is itself the one-time-computed ray table described in
// spec.md §4.2.
func NewRemover(calib Calibration) (*Remover, error) {
	n := calib.Width * calib.Height
	if len(calib.UnitX) != n {
		return nil, fmt.Errorf("shadow: unit-depth ray table has %d entries, want %d", len(calib.UnitX), n)
	}
	return &Remover{
		width:        calib.Width,
		height:       calib.Height,
		unitX:        calib.UnitX,
		colorCameraX: calib.ColorCameraX,
		zmax:         make([]float32, calib.Width),
	}, nil
}

// Apply zeroes depth pixels (units: mm, row-major, length Width*Height)
// occluded from the color camera's viewpoint, in place. It is
// allocation-free on the hot path (r.zmax is reused across calls).
func (r *Remover) Apply(depth []int16) error {
	if len(depth) != r.width*r.height {
		return fmt.Errorf("shadow: expected %d pixels, got %d", r.width*r.height, len(depth))
	}

	width := r.width
	for j := 0; j < r.height; j++ {
		row := j * width
		for i := 0; i < width; i++ {
			r.zmax[i] = AzureKinectMaxDistance
		}

		for i := width - 1; i >= 0; i-- {
			idx := row + i
			z := depth[idx]
			if z == 0 {
				continue
			}

			if float32(z) > r.zmax[i] {
				depth[idx] = 0
				continue
			}

			x := r.unitX[idx]
			for ii := i; ii >= 0; ii-- {
				xx := r.unitX[row+ii]
				zz := (r.colorCameraX * float32(z)) / ((xx-x)*float32(z) + r.colorCameraX)

				if zz >= r.zmax[ii] {
					break
				}
				r.zmax[ii] = zz
			}
		}
	}

	return nil
}
