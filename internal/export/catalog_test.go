package export

import (
	"reflect"
	"testing"

	"github.com/AlessioGiambrone/stackistry/internal/pix"
)

func TestEnumerateBuildsDescriptorsInLibraryOrder(t *testing.T) {
	catalog := NewCatalog()

	descriptors := catalog.Enumerate()
	supported := pix.SupportedOutputFormats()
	if len(descriptors) != len(supported) {
		t.Fatalf("expected %d descriptors, got %d", len(supported), len(descriptors))
	}

	seen := make(map[pix.OutputFormat]bool)
	for i, descr := range descriptors {
		if descr.Format != supported[i] {
			t.Fatalf("descriptor %d is %s, want %s", i, descr.Format, supported[i])
		}
		if seen[descr.Format] {
			t.Fatalf("duplicate descriptor for %s", descr.Format)
		}
		seen[descr.Format] = true

		if descr.Name == "" {
			t.Fatalf("descriptor %s has empty name", descr.Format)
		}
		if len(descr.Patterns) == 0 {
			t.Fatalf("descriptor %s has no glob patterns", descr.Format)
		}
		if descr.DefaultExtension == "" {
			t.Fatalf("descriptor %s has no default extension", descr.Format)
		}
	}
}

func TestEnumerateIsIdempotent(t *testing.T) {
	catalog := NewCatalog()

	first := catalog.Enumerate()
	second := catalog.Enumerate()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated enumeration returned different lists")
	}
}

func TestGetReturnsMatchingDescriptor(t *testing.T) {
	catalog := NewCatalog()

	descr := catalog.Get(pix.OutTIFF16)
	if descr.Format != pix.OutTIFF16 {
		t.Fatalf("got descriptor for %s, want tiff16", descr.Format)
	}
	if descr.DefaultExtension != ".tif" {
		t.Fatalf("tiff default extension = %q, want .tif", descr.DefaultExtension)
	}
}

func TestGetPanicsOnUnenumeratedFormat(t *testing.T) {
	catalog := newCatalogWith(func() []pix.OutputFormat {
		return []pix.OutputFormat{pix.OutPNG8}
	})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for format that was never enumerated")
		}
	}()
	catalog.Get(pix.OutBMP8)
}

func TestBuildPanicsOnMissingTableEntry(t *testing.T) {
	catalog := newCatalogWith(func() []pix.OutputFormat {
		return []pix.OutputFormat{pix.OutputFormat(99)}
	})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for format missing from the descriptor table")
		}
	}()
	catalog.Enumerate()
}
