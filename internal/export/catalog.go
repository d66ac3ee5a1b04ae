package export

import (
	"fmt"
	"sync"

	"github.com/AlessioGiambrone/stackistry/internal/pix"
)

// Descriptor is the static metadata shown for one exportable output
// format: display name, file-dialog glob patterns, default extension.
// Immutable once the catalog is built.
type Descriptor struct {
	Format           pix.OutputFormat `json:"format"`
	Name             string           `json:"name"`
	Patterns         []string         `json:"patterns"`
	DefaultExtension string           `json:"default_extension"`
}

// descriptorTable is the closed mapping from output format id to its
// metadata. Every id the library can report must appear here; the catalog
// build panics otherwise so a desync cannot surface as wrong dialog
// entries.
var descriptorTable = map[pix.OutputFormat]Descriptor{
	pix.OutBMP8: {
		Format:           pix.OutBMP8,
		Name:             "BMP 8-bit",
		Patterns:         []string{"*.bmp"},
		DefaultExtension: ".bmp",
	},
	pix.OutTIFF16: {
		Format:           pix.OutTIFF16,
		Name:             "TIFF 16-bit (uncompressed)",
		Patterns:         []string{"*.tif", "*.tiff"},
		DefaultExtension: ".tif",
	},
	pix.OutPNG8: {
		Format:           pix.OutPNG8,
		Name:             "PNG 8-bit",
		Patterns:         []string{"*.png"},
		DefaultExtension: ".png",
	},
}

// Catalog holds the descriptor list for every output format the image
// library supports. The list is built lazily exactly once and never
// mutated afterwards; Enumerate and Get are safe for concurrent use.
type Catalog struct {
	once        sync.Once
	supported   func() []pix.OutputFormat
	descriptors []Descriptor
}

// NewCatalog builds a catalog backed by the library's capability query.
func NewCatalog() *Catalog {
	return &Catalog{supported: pix.SupportedOutputFormats}
}

func newCatalogWith(supported func() []pix.OutputFormat) *Catalog {
	return &Catalog{supported: supported}
}

// Enumerate returns the descriptors for all supported output formats, in
// the order the library reports them. The first call builds the list; it
// is returned as-is afterwards and must not be modified by callers.
func (c *Catalog) Enumerate() []Descriptor {
	c.once.Do(c.build)
	return c.descriptors
}

func (c *Catalog) build() {
	supported := c.supported()
	c.descriptors = make([]Descriptor, 0, len(supported))
	for _, format := range supported {
		descr, ok := descriptorTable[format]
		if !ok {
			panic(fmt.Sprintf("export: no descriptor for output format %d (%s)", format, format))
		}
		c.descriptors = append(c.descriptors, descr)
	}
}

// Get returns the descriptor for an enumerated output format. Asking for a
// format that was never enumerated means the caller and the catalog have
// desynced; that is a programming error and panics rather than returning
// degraded metadata.
func (c *Catalog) Get(format pix.OutputFormat) Descriptor {
	for _, descr := range c.Enumerate() {
		if descr.Format == format {
			return descr
		}
	}
	panic(fmt.Sprintf("export: output format %d (%s) was not enumerated", format, format))
}
