package shadow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyZeroesForegroundShadow(t *testing.T) {
	// Two columns: i=0 is a distant background point, i=1 is a closer
	// foreground point whose shadow cone (given the color/depth camera
	// baseline) covers column 0, so the background pixel is occluded from
	// the color camera's viewpoint and must be zeroed.
	calib := Calibration{
		Width:        2,
		Height:       1,
		UnitX:        []float32{0, 0.001},
		ColorCameraX: 50,
	}
	r, err := NewRemover(calib)
	require.NoError(t, err)

	depth := []int16{1000, 500}
	require.NoError(t, r.Apply(depth))

	assert.Equal(t, int16(0), depth[0], "background pixel must be shadowed by the closer foreground pixel")
	assert.Equal(t, int16(500), depth[1], "foreground pixel itself is untouched")
}

func TestApplyIdempotentOnCleanDepth(t *testing.T) {
	// Property 7: a monotonically receding surface (depth increases as i
	// increases) has no foreground occluding structure, so remove(D) == D.
	calib := Calibration{
		Width:        2,
		Height:       1,
		UnitX:        []float32{0, 0.001},
		ColorCameraX: 50,
	}
	r, err := NewRemover(calib)
	require.NoError(t, err)

	depth := []int16{500, 1000}
	want := append([]int16(nil), depth...)
	require.NoError(t, r.Apply(depth))

	assert.Equal(t, want, depth)
}

func TestApplySkipsInvalidPixels(t *testing.T) {
	calib := Calibration{
		Width:        3,
		Height:       1,
		UnitX:        []float32{0, 0.001, 0.002},
		ColorCameraX: 50,
	}
	r, err := NewRemover(calib)
	require.NoError(t, err)

	depth := []int16{0, 0, 0}
	require.NoError(t, r.Apply(depth))
	assert.Equal(t, []int16{0, 0, 0}, depth)
}

func TestApplySingleColumnIsIdempotent(t *testing.T) {
	// With no neighboring column to project a shadow cone onto, a single
	// pixel wide image can never occlude itself.
	calib := Calibration{
		Width:        1,
		Height:       4,
		UnitX:        []float32{0, 0, 0, 0},
		ColorCameraX: 50,
	}
	r, err := NewRemover(calib)
	require.NoError(t, err)

	depth := []int16{100, 200, 300, 400}
	want := append([]int16(nil), depth...)
	require.NoError(t, r.Apply(depth))
	assert.Equal(t, want, depth)
}

func TestApplyRejectsMismatchedBuffer(t *testing.T) {
	calib := Calibration{Width: 2, Height: 2, UnitX: make([]float32, 4), ColorCameraX: 50}
	r, err := NewRemover(calib)
	require.NoError(t, err)

	err = r.Apply(make([]int16, 3))
	assert.Error(t, err)
}

func TestNewRemoverValidatesTable(t *testing.T) {
	_, err := NewRemover(Calibration{Width: 2, Height: 2, UnitX: make([]float32, 3), ColorCameraX: 50})
	assert.Error(t, err)
}
