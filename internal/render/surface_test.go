package render

import (
	"bytes"
	"testing"

	"github.com/AlessioGiambrone/stackistry/internal/pix"
)

func TestConvertImgToSurfaceCanonicalSource(t *testing.T) {
	img, err := pix.NewImage(10, 5, pix.PixBGRA8)
	if err != nil {
		t.Fatalf("new image: %v", err)
	}
	for i := range img.Pix() {
		img.Pix()[i] = byte(i)
	}

	surface := ConvertImgToSurface(img)
	if surface == nil {
		t.Fatal("expected a surface, got nil")
	}
	if surface.Width() != 10 || surface.Height() != 5 {
		t.Fatalf("surface is %dx%d, want 10x5", surface.Width(), surface.Height())
	}
	if surface.Stride() < surface.Width()*4 {
		t.Fatalf("stride %d is smaller than packed row %d", surface.Stride(), surface.Width()*4)
	}

	for row := 0; row < 5; row++ {
		if !bytes.Equal(surface.Line(row), img.Line(row)) {
			t.Fatalf("row %d differs from source", row)
		}
	}
}

func TestConvertImgToSurfaceConvertsNonCanonical(t *testing.T) {
	img, err := pix.NewImage(7, 3, pix.PixMono8)
	if err != nil {
		t.Fatalf("new image: %v", err)
	}
	for i := range img.Pix() {
		img.Pix()[i] = byte(i * 11)
	}

	surface := ConvertImgToSurface(img)
	if surface == nil {
		t.Fatal("expected a surface, got nil")
	}
	if surface.Width() != 7 || surface.Height() != 3 {
		t.Fatalf("surface is %dx%d, want 7x3", surface.Width(), surface.Height())
	}

	converted, err := pix.ConvertPixelFormat(img, CanonicalFormat)
	if err != nil {
		t.Fatalf("reference conversion: %v", err)
	}
	for row := 0; row < 3; row++ {
		if !bytes.Equal(surface.Line(row), converted.Line(row)) {
			t.Fatalf("row %d differs from reference conversion", row)
		}
	}
}

func TestConvertImgToSurfaceFailureReturnsNil(t *testing.T) {
	img, err := pix.NewImage(4, 4, pix.PixPal8)
	if err != nil {
		t.Fatalf("new image: %v", err)
	}
	if surface := ConvertImgToSurface(img); surface != nil {
		t.Fatal("expected nil surface for palette source")
	}
	if surface := ConvertImgToSurface(nil); surface != nil {
		t.Fatal("expected nil surface for nil image")
	}
}

func TestSurfaceStridePadding(t *testing.T) {
	// 10 pixels is 40 packed bytes; the aligned stride must pad past it
	// and row starts must honor it.
	s := NewSurface(10, 2)
	if s.Stride() <= 10*4 {
		t.Fatalf("expected padded stride, got %d", s.Stride())
	}
	if s.Stride()%strideAlign != 0 {
		t.Fatalf("stride %d is not %d-byte aligned", s.Stride(), strideAlign)
	}
	if len(s.Data()) != s.Stride()*2 {
		t.Fatalf("buffer is %d bytes, want %d", len(s.Data()), s.Stride()*2)
	}

	s.Line(1)[0] = 0x55
	if s.Data()[s.Stride()] != 0x55 {
		t.Fatal("Line(1) does not start at offset stride")
	}
}

func TestSurfaceToImageSwizzles(t *testing.T) {
	img, err := pix.NewImage(1, 1, pix.PixBGRA8)
	if err != nil {
		t.Fatalf("new image: %v", err)
	}
	copy(img.Line(0), []byte{0x01, 0x02, 0x03, 0x04}) // B G R A

	surface := ConvertImgToSurface(img)
	if surface == nil {
		t.Fatal("expected a surface, got nil")
	}

	out := surface.ToImage()
	want := []byte{0x03, 0x02, 0x01, 0x04} // R G B A
	if !bytes.Equal(out.Pix[:4], want) {
		t.Fatalf("pixel = %v, want %v", out.Pix[:4], want)
	}
}
