package frame

import (
	"errors"
	"testing"
	"time"
)

func TestBuildMono(t *testing.T) {
	b := NewBuilder()
	raw := Mono(make([]byte, 4*3*2), 4, 3, Uint16)

	rec, err := b.Build(7, raw, nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if rec.UniqueID != 7 {
		t.Errorf("UniqueID = %d, want 7", rec.UniqueID)
	}
	if rec.Width() != 4 || rec.Height() != 3 {
		t.Errorf("dims = %dx%d, want 4x3", rec.Width(), rec.Height())
	}
	if rec.ColorMode != ColorModeMono {
		t.Errorf("ColorMode = %v, want MONO", rec.ColorMode)
	}
	if rec.UncompressedSize != 24 || rec.CompressedSize != 24 {
		t.Errorf("sizes = %d/%d, want 24/24", rec.CompressedSize, rec.UncompressedSize)
	}
	if !rec.CaptureTime.Equal(rec.PublishTime) {
		t.Errorf("timestamps differ: %v vs %v", rec.CaptureTime, rec.PublishTime)
	}
}

func TestBuildCopiesPayload(t *testing.T) {
	b := NewBuilder()
	data := []byte{1, 2, 3, 4}
	rec, err := b.Build(0, Mono(data, 2, 2, Uint8), nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	data[0] = 99
	if rec.Data[0] != 1 {
		t.Errorf("record payload aliased source buffer")
	}
}

func TestBuildColorModes(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		mode  ColorMode
		w, h  int
	}{
		{"rgb1", []int{3, 5, 4}, ColorModeRGB1, 4, 5},
		{"rgb2", []int{5, 3, 4}, ColorModeRGB2, 4, 5},
		{"rgb3", []int{5, 4, 3}, ColorModeRGB3, 4, 5},
	}

	b := NewBuilder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &RawFrame{Data: make([]byte, 60), Shape: tt.shape, Element: Uint8}
			rec, err := b.Build(1, raw, nil)
			if err != nil {
				t.Fatalf("Build() failed: %v", err)
			}
			if rec.ColorMode != tt.mode {
				t.Errorf("ColorMode = %v, want %v", rec.ColorMode, tt.mode)
			}
			if rec.Width() != tt.w || rec.Height() != tt.h {
				t.Errorf("dims = %dx%d, want %dx%d", rec.Width(), rec.Height(), tt.w, tt.h)
			}
		})
	}
}

func TestBuildInvalidShape(t *testing.T) {
	tests := []struct {
		name string
		raw  *RawFrame
	}{
		{"nil", nil},
		{"rank1", &RawFrame{Data: make([]byte, 4), Shape: []int{4}, Element: Uint8}},
		{"rank3 no color axis", &RawFrame{Data: make([]byte, 8), Shape: []int{2, 2, 2}, Element: Uint8}},
		{"rank4", &RawFrame{Data: make([]byte, 16), Shape: []int{2, 2, 2, 2}, Element: Uint8}},
		{"size mismatch", &RawFrame{Data: make([]byte, 3), Shape: []int{2, 2}, Element: Uint8}},
		{"unknown element", &RawFrame{Data: make([]byte, 4), Shape: []int{2, 2}}},
	}

	b := NewBuilder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(0, tt.raw, nil)
			if !errors.Is(err, ErrInvalidFrameShape) {
				t.Errorf("Build() error = %v, want ErrInvalidFrameShape", err)
			}
		})
	}
}

func TestBuildCompressedSkipsSizeCheck(t *testing.T) {
	b := NewBuilder()
	raw := &RawFrame{Data: make([]byte, 10), Shape: []int{16, 16}, Element: Uint16, Codec: "blosc"}
	rec, err := b.Build(0, raw, nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if rec.CompressedSize != 10 || rec.UncompressedSize != 512 {
		t.Errorf("sizes = %d/%d, want 10/512", rec.CompressedSize, rec.UncompressedSize)
	}
}

func TestBuildReusesTemplate(t *testing.T) {
	b := NewBuilder()
	first, err := b.Build(0, Mono(make([]byte, 16), 4, 4, Uint8), nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	second, err := b.Build(1, Mono(make([]byte, 16), 4, 4, Uint8), first)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if &second.Dimensions[0] != &first.Dimensions[0] {
		t.Errorf("template dimensions were not reused")
	}
	if second.UniqueID != 1 {
		t.Errorf("UniqueID = %d, want 1", second.UniqueID)
	}

	// A shape change must not inherit the template's dimensions.
	third, err := b.Build(2, Mono(make([]byte, 32), 8, 4, Uint8), second)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if third.Width() != 8 {
		t.Errorf("Width() = %d, want 8", third.Width())
	}
}

func TestStampedLeavesSourceRecord(t *testing.T) {
	b := NewBuilder()
	rec, err := b.Build(0, Mono(make([]byte, 4), 2, 2, Uint8), nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	ts := time.Unix(1700000000, 0)

	out := rec.Stamped(42, ts)
	if out.UniqueID != 42 || !out.CaptureTime.Equal(ts) || !out.PublishTime.Equal(ts) {
		t.Errorf("Stamped() = %d @ %v/%v", out.UniqueID, out.CaptureTime, out.PublishTime)
	}
	if rec.UniqueID != 0 {
		t.Errorf("source record mutated: UniqueID = %d", rec.UniqueID)
	}
	if &out.Data[0] != &rec.Data[0] {
		t.Errorf("Stamped() copied the payload")
	}
}

func TestParseElementType(t *testing.T) {
	for _, name := range []string{"int8", "uint8", "int16", "uint16", "int32", "uint32", "int64", "uint64", "float32", "float64"} {
		et, err := ParseElementType(name)
		if err != nil {
			t.Fatalf("ParseElementType(%q) failed: %v", name, err)
		}
		if et.String() != name {
			t.Errorf("String() = %q, want %q", et.String(), name)
		}
		if et.FieldKey() == "" {
			t.Errorf("%s has no field key", name)
		}
	}
	if _, err := ParseElementType("complex64"); err == nil {
		t.Errorf("ParseElementType(complex64) succeeded")
	}
}
