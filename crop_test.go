package codec

import (
	"testing"
)

func cropDecoder(t *testing.T, apply, unaligned bool) *Decoder {
	t.Helper()
	cfg := DefaultDecoderConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.PixelFormat = PixelFormatI420
	cfg.ApplyCropping = apply
	cfg.UnalignedOutput = unaligned
	d, err := NewDecoder(&Codec{
		Name: "croptest",
		Type: MediaTypeVideo,
		Decode: func(*Decoder, *Frame, *Packet) (int, bool, error) {
			return 0, false, nil
		},
	}, cfg)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func pooledFrame(t *testing.T, d *Decoder, format PixelFormat, w, h int) *Frame {
	t.Helper()
	f := videoFrame(format, w, h)
	if err := d.pool.acquire(f); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	return f
}

func TestApplyCropping_InvalidMarginsZeroed(t *testing.T) {
	tests := []struct {
		name                     string
		left, right, top, bottom int
	}{
		{"sum exceeds width", 10, 10, 0, 0},
		{"sum exceeds height", 0, 0, 8, 8},
		{"negative", -1, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := cropDecoder(t, true, false)
			f := pooledFrame(t, d, PixelFormatI420, 16, 16)
			defer f.Unref()
			f.CropLeft = tt.left
			f.CropRight = tt.right
			f.CropTop = tt.top
			f.CropBottom = tt.bottom

			if err := d.applyCropping(f); err != nil {
				t.Fatalf("applyCropping: %v", err)
			}
			if f.CropLeft != 0 || f.CropRight != 0 || f.CropTop != 0 || f.CropBottom != 0 {
				t.Error("invalid margins must be zeroed")
			}
			if f.Width != 16 || f.Height != 16 {
				t.Errorf("invalid margins must not change geometry: %dx%d", f.Width, f.Height)
			}
		})
	}
}

func TestApplyCropping_ShrinksGeometry(t *testing.T) {
	d := cropDecoder(t, true, true)
	f := pooledFrame(t, d, PixelFormatI420, 320, 240)
	defer f.Unref()
	luma := f.Data[0]

	f.CropLeft = 2
	f.CropRight = 6
	f.CropTop = 4
	f.CropBottom = 4

	if err := d.applyCropping(f); err != nil {
		t.Fatalf("applyCropping: %v", err)
	}
	if f.Width != 312 || f.Height != 232 {
		t.Errorf("cropped geometry = %dx%d, want 312x232", f.Width, f.Height)
	}
	if f.CropLeft != 0 || f.CropRight != 0 || f.CropTop != 0 || f.CropBottom != 0 {
		t.Error("margins must be zeroed after applying")
	}
	wantOff := 4*f.Linesize[0] + 2
	if &f.Data[0][0] != &luma[wantOff] {
		t.Errorf("luma plane not offset by %d bytes", wantOff)
	}
}

func TestApplyCropping_AlignmentReducesLeftMargin(t *testing.T) {
	// An odd left margin would misalign every plane pointer; without
	// UnalignedOutput the left margin is rounded down, here to zero, and
	// only the right margin is taken from the width.
	d := cropDecoder(t, true, false)
	f := pooledFrame(t, d, PixelFormatI420, 320, 240)
	defer f.Unref()
	luma := f.Data[0]

	f.CropLeft = 1
	f.CropRight = 3

	if err := d.applyCropping(f); err != nil {
		t.Fatalf("applyCropping: %v", err)
	}
	if f.Width != 317 {
		t.Errorf("cropped width = %d, want 317", f.Width)
	}
	if &f.Data[0][0] != &luma[0] {
		t.Error("aligned cropping must not move the plane pointer for a rounded-down margin")
	}
}

func TestApplyCropping_DisabledKeepsMargins(t *testing.T) {
	d := cropDecoder(t, false, false)
	f := pooledFrame(t, d, PixelFormatI420, 320, 240)
	defer f.Unref()

	f.CropLeft = 2
	f.CropRight = 2

	if err := d.applyCropping(f); err != nil {
		t.Fatalf("applyCropping: %v", err)
	}
	if f.Width != 320 {
		t.Errorf("width = %d, want untouched 320", f.Width)
	}
	if f.CropLeft != 2 || f.CropRight != 2 {
		t.Error("disabled cropping must leave the margins for the caller")
	}
}

func TestApplyCropping_OpaqueSurface(t *testing.T) {
	d := cropDecoder(t, true, false)
	f := NewFrame()
	f.PixelFormat = PixelFormatVAAPI
	f.Width = 1920
	f.Height = 1088
	f.Buf = []*BufferRef{NewBufferRef(1)}
	f.Data = [][]byte{f.Buf[0].Data}
	defer f.Unref()

	f.CropLeft = 2
	f.CropTop = 2
	f.CropRight = 4
	f.CropBottom = 8

	if err := d.applyCropping(f); err != nil {
		t.Fatalf("applyCropping: %v", err)
	}
	// Opaque surfaces cannot be offset into: only right/bottom apply.
	if f.Width != 1916 || f.Height != 1080 {
		t.Errorf("opaque crop geometry = %dx%d, want 1916x1080", f.Width, f.Height)
	}
	if f.CropLeft != 2 || f.CropTop != 2 {
		t.Error("left/top margins on opaque surfaces must remain for the consumer")
	}
	if f.CropRight != 0 || f.CropBottom != 0 {
		t.Error("right/bottom margins must be consumed")
	}
}
