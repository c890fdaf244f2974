package overlay

import (
	"bytes"
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

// newFrame returns a BGR frame filled with b, g, r.
func newFrame(t *testing.T, rows, cols int, b, g, r uint8) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(float64(b), float64(g), float64(r), 0))
	return m
}

// newAsset returns a BGRA overlay filled with b, g, r, a.
func newAsset(t *testing.T, rows, cols int, b, g, r, a uint8) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC4)
	m.SetTo(gocv.NewScalar(float64(b), float64(g), float64(r), float64(a)))
	return m
}

func pixel(t *testing.T, m gocv.Mat, row, col int) [3]uint8 {
	t.Helper()
	data, err := m.DataPtrUint8()
	if err != nil {
		t.Fatalf("DataPtrUint8() error = %v", err)
	}
	i := (row*m.Cols() + col) * 3
	return [3]uint8{data[i], data[i+1], data[i+2]}
}

func snapshot(t *testing.T, m gocv.Mat) []byte {
	t.Helper()
	data, err := m.DataPtrUint8()
	if err != nil {
		t.Fatalf("DataPtrUint8() error = %v", err)
	}
	return append([]byte(nil), data...)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestComposite_Alpha(t *testing.T) {
	tests := []struct {
		name  string
		alpha uint8
		want  [3]uint8
		tol   int
	}{
		{name: "opaque replaces", alpha: 255, want: [3]uint8{200, 40, 10}, tol: 0},
		{name: "transparent keeps", alpha: 0, want: [3]uint8{100, 120, 30}, tol: 0},
		{name: "half blends", alpha: 128, want: [3]uint8{150, 80, 20}, tol: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := newFrame(t, 4, 4, 100, 120, 30)
			defer frame.Close()
			asset := newAsset(t, 2, 2, 200, 40, 10, tt.alpha)
			defer asset.Close()

			if err := Composite(&frame, asset, 0, 0, 2, 2); err != nil {
				t.Fatalf("Composite() error = %v", err)
			}

			for row := 0; row < 2; row++ {
				for col := 0; col < 2; col++ {
					got := pixel(t, frame, row, col)
					for c := 0; c < 3; c++ {
						if absDiff(got[c], tt.want[c]) > tt.tol {
							t.Errorf("pixel (%d,%d) = %v, want %v", row, col, got, tt.want)
						}
					}
				}
			}

			// Pixels outside the region are never touched.
			if got := pixel(t, frame, 3, 3); got != [3]uint8{100, 120, 30} {
				t.Errorf("pixel (3,3) outside region = %v, want unchanged", got)
			}
		})
	}
}

func TestComposite_TransparentIsBitIdentical(t *testing.T) {
	frame := newFrame(t, 10, 10, 7, 77, 177)
	defer frame.Close()
	asset := newAsset(t, 5, 5, 255, 255, 255, 0)
	defer asset.Close()

	before := snapshot(t, frame)
	if err := Composite(&frame, asset, 2, 3, 5, 5); err != nil {
		t.Fatalf("Composite() error = %v", err)
	}

	if !bytes.Equal(before, snapshot(t, frame)) {
		t.Error("alpha 0 overlay modified the frame")
	}
}

func TestComposite_Reapply(t *testing.T) {
	t.Run("opaque is idempotent", func(t *testing.T) {
		frame := newFrame(t, 2, 2, 0, 0, 0)
		defer frame.Close()
		asset := newAsset(t, 2, 2, 10, 20, 30, 255)
		defer asset.Close()

		if err := Composite(&frame, asset, 0, 0, 2, 2); err != nil {
			t.Fatalf("first Composite() error = %v", err)
		}
		first := snapshot(t, frame)
		if err := Composite(&frame, asset, 0, 0, 2, 2); err != nil {
			t.Fatalf("second Composite() error = %v", err)
		}

		if !bytes.Equal(first, snapshot(t, frame)) {
			t.Error("reapplying an opaque overlay changed the frame")
		}
	})

	t.Run("partial alpha keeps blending", func(t *testing.T) {
		frame := newFrame(t, 2, 2, 0, 0, 0)
		defer frame.Close()
		asset := newAsset(t, 2, 2, 255, 255, 255, 128)
		defer asset.Close()

		if err := Composite(&frame, asset, 0, 0, 2, 2); err != nil {
			t.Fatalf("first Composite() error = %v", err)
		}
		first := pixel(t, frame, 0, 0)
		if err := Composite(&frame, asset, 0, 0, 2, 2); err != nil {
			t.Fatalf("second Composite() error = %v", err)
		}
		second := pixel(t, frame, 0, 0)

		if first == second {
			t.Fatalf("reapplying alpha 128 left pixel at %v, want further blending", first)
		}
		if second[0] <= first[0] {
			t.Errorf("second pass %v should move closer to overlay colour than %v", second, first)
		}
		if first != [3]uint8{128, 128, 128} || second != [3]uint8{192, 192, 192} {
			t.Errorf("blend passes = %v then %v, want 128 then 192", first, second)
		}
	})
}

func TestComposite_Bounds(t *testing.T) {
	frame := newFrame(t, 480, 640, 0, 0, 0)
	defer frame.Close()
	asset := newAsset(t, 200, 200, 1, 2, 3, 255)
	defer asset.Close()

	tests := []struct {
		name    string
		row     int
		col     int
		wantErr bool
	}{
		{name: "finger overlay slot", row: 40, col: 0},
		{name: "digit overlay slot", row: 260, col: 0},
		{name: "bottom edge", row: 280, col: 0},
		{name: "right edge", row: 0, col: 440},
		{name: "past bottom", row: 300, col: 0, wantErr: true},
		{name: "past right", row: 0, col: 441, wantErr: true},
		{name: "negative row", row: -1, col: 0, wantErr: true},
		{name: "negative col", row: 0, col: -5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Composite(&frame, asset, tt.row, tt.col, 200, 200)
			if tt.wantErr {
				if !errors.Is(err, ErrDimensionMismatch) {
					t.Errorf("Composite() error = %v, want %v", err, ErrDimensionMismatch)
				}
				return
			}
			if err != nil {
				t.Errorf("Composite() unexpected error: %v", err)
			}
		})
	}
}

func TestComposite_RejectsMalformedInputs(t *testing.T) {
	frame := newFrame(t, 480, 640, 0, 0, 0)
	defer frame.Close()

	t.Run("overlay size differs from region", func(t *testing.T) {
		asset := newAsset(t, 100, 200, 0, 0, 0, 255)
		defer asset.Close()

		err := Composite(&frame, asset, 0, 0, 200, 200)
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("error = %v, want %v", err, ErrDimensionMismatch)
		}
	})

	t.Run("overlay without alpha", func(t *testing.T) {
		asset := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
		defer asset.Close()

		err := Composite(&frame, asset, 0, 0, 200, 200)
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("error = %v, want %v", err, ErrDimensionMismatch)
		}
	})

	t.Run("frame with alpha", func(t *testing.T) {
		bgra := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC4)
		defer bgra.Close()
		asset := newAsset(t, 200, 200, 0, 0, 0, 255)
		defer asset.Close()

		err := Composite(&bgra, asset, 0, 0, 200, 200)
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("error = %v, want %v", err, ErrDimensionMismatch)
		}
	})

	t.Run("empty frame", func(t *testing.T) {
		empty := gocv.NewMat()
		defer empty.Close()
		asset := newAsset(t, 2, 2, 0, 0, 0, 255)
		defer asset.Close()

		if err := Composite(&empty, asset, 0, 0, 2, 2); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("error = %v, want %v", err, ErrDimensionMismatch)
		}
		if err := Composite(nil, asset, 0, 0, 2, 2); !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("nil frame error = %v, want %v", err, ErrDimensionMismatch)
		}
	})

	t.Run("rejected call leaves frame untouched", func(t *testing.T) {
		asset := newAsset(t, 200, 200, 255, 255, 255, 255)
		defer asset.Close()

		before := snapshot(t, frame)
		_ = Composite(&frame, asset, 300, 0, 200, 200)
		if !bytes.Equal(before, snapshot(t, frame)) {
			t.Error("out of bounds call modified the frame")
		}
	})
}

func TestCompositeAt(t *testing.T) {
	frame := newFrame(t, 6, 6, 0, 0, 0)
	defer frame.Close()
	asset := newAsset(t, 2, 3, 9, 8, 7, 255)
	defer asset.Close()

	if err := CompositeAt(&frame, asset, Placement{Row: 4, Col: 3}); err != nil {
		t.Fatalf("CompositeAt() error = %v", err)
	}

	if got := pixel(t, frame, 5, 5); got != [3]uint8{9, 8, 7} {
		t.Errorf("pixel (5,5) = %v, want overlay colour", got)
	}
	if got := pixel(t, frame, 3, 3); got != [3]uint8{0, 0, 0} {
		t.Errorf("pixel (3,3) = %v, want untouched", got)
	}
}

func TestBlend_RawBuffers(t *testing.T) {
	// 1x3 frame, 1x1 overlay at column 1.
	dst := []uint8{1, 1, 1, 50, 60, 70, 2, 2, 2}
	src := []uint8{250, 160, 70, 51}

	blend(dst, 3, src, 0, 1, 1, 1)

	want := []uint8{1, 1, 1, 90, 80, 70, 2, 2, 2}
	if !bytes.Equal(dst, want) {
		t.Errorf("blend() = %v, want %v", dst, want)
	}
}
