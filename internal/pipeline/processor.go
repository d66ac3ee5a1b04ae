package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlessioGiambrone/stackistry/internal/domain"
	"github.com/AlessioGiambrone/stackistry/internal/export"
	"github.com/AlessioGiambrone/stackistry/internal/pix"
	"github.com/AlessioGiambrone/stackistry/internal/render"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	ErrInvalidStepAction     = errors.New("invalid output action")
	ErrNoMatchingFormat      = errors.New("no pixel format satisfies the requested export")
	ErrSurfaceConversion     = errors.New("image could not be converted to a display surface")
)

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	Outputs    []domain.ExportStep
}

type Output struct {
	StepID  string
	Action  string
	Format  string
	Path    string
	Bytes   int
	Width   int
	Height  int
	Success bool
}

type Result struct {
	SourceBytes int
	Outputs     []Output
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, step domain.ExportStep, data []byte, ext, contentType string, width, height int) (Output, error)
}

type Processor struct {
	fetcher Fetcher
	decoder Decoder
	catalog *export.Catalog
	emitter Emitter
}

func NewLocalProcessor(outputDir string) (*Processor, error) {
	decoder, err := newDecoder()
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	return &Processor{
		fetcher: LocalFileFetcher{},
		decoder: decoder,
		catalog: export.NewCatalog(),
		emitter: LocalFileEmitter{OutputDir: outputDir},
	}, nil
}

func NewObjectStoreProcessor(fetcher Fetcher, emitter Emitter) (*Processor, error) {
	decoder, err := newDecoder()
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	return &Processor{
		fetcher: fetcher,
		decoder: decoder,
		catalog: export.NewCatalog(),
		emitter: emitter,
	}, nil
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if len(req.Outputs) == 0 {
		return Result{}, errors.New("outputs must contain at least one step")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	frame, err := p.decoder.Decode(ctx, sourceBytes)
	if err != nil {
		return Result{}, fmt.Errorf("decode stage: %w", err)
	}

	out := Result{
		SourceBytes: len(sourceBytes),
		Outputs:     make([]Output, 0, len(req.Outputs)),
	}
	for _, step := range req.Outputs {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		data, ext, contentType, width, height, err := p.renderStep(frame, step)
		if err != nil {
			return Result{}, fmt.Errorf("render stage step=%s action=%s: %w", step.ID, step.Action, err)
		}

		written, err := p.emitter.Emit(ctx, req, step, data, ext, contentType, width, height)
		if err != nil {
			return Result{}, fmt.Errorf("emit stage step=%s action=%s: %w", step.ID, step.Action, err)
		}
		out.Outputs = append(out.Outputs, written)
	}

	return out, nil
}

// renderStep produces the bytes for one output step: a file in the step's
// output format, or a PNG of the display surface for preview steps.
func (p *Processor) renderStep(frame *pix.Image, step domain.ExportStep) (data []byte, ext, contentType string, width, height int, err error) {
	switch strings.ToLower(strings.TrimSpace(step.Action)) {
	case domain.StepActionExport:
		return p.renderExport(frame, step)
	case domain.StepActionPreview:
		return p.renderPreview(frame)
	default:
		return nil, "", "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidStepAction, step.Action)
	}
}

func (p *Processor) renderExport(frame *pix.Image, step domain.ExportStep) ([]byte, string, string, int, int, error) {
	outputFmt, ok := pix.ParseOutputFormat(strings.ToLower(strings.TrimSpace(step.Format)))
	if !ok {
		return nil, "", "", 0, 0, fmt.Errorf("unsupported output format: %q", step.Format)
	}

	channels := step.Channels
	if channels == 0 {
		channels = pix.NumChannels[frame.Format()]
	}

	target := pix.FindMatchingFormat(outputFmt, channels)
	if target == pix.PixInvalid {
		return nil, "", "", 0, 0, fmt.Errorf("%w: format=%s channels=%d", ErrNoMatchingFormat, outputFmt, channels)
	}

	converted, err := pix.ConvertPixelFormat(frame, target)
	if err != nil {
		return nil, "", "", 0, 0, fmt.Errorf("convert to %s: %w", target, err)
	}

	var buf bytes.Buffer
	if err := export.Encode(&buf, converted, outputFmt); err != nil {
		return nil, "", "", 0, 0, err
	}

	descr := p.catalog.Get(outputFmt)
	return buf.Bytes(), descr.DefaultExtension, export.ContentType(outputFmt), converted.Width(), converted.Height(), nil
}

func (p *Processor) renderPreview(frame *pix.Image) ([]byte, string, string, int, int, error) {
	surface := render.ConvertImgToSurface(frame)
	if surface == nil {
		return nil, "", "", 0, 0, ErrSurfaceConversion
	}

	var buf bytes.Buffer
	if err := encodePNG(&buf, surface.ToImage()); err != nil {
		return nil, "", "", 0, 0, err
	}
	return buf.Bytes(), ".png", "image/png", surface.Width(), surface.Height(), nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, step domain.ExportStep, data []byte, ext, _ string, width, height int) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("output step id is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	filename := sanitizePathToken(step.ID) + ext
	fullPath := filepath.Join(jobDir, filename)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return Output{
		StepID:  step.ID,
		Action:  step.Action,
		Format:  formatLabel(step),
		Path:    fullPath,
		Bytes:   len(data),
		Width:   width,
		Height:  height,
		Success: true,
	}, nil
}

func formatLabel(step domain.ExportStep) string {
	if strings.EqualFold(strings.TrimSpace(step.Action), domain.StepActionPreview) {
		return "preview"
	}
	return strings.ToLower(strings.TrimSpace(step.Format))
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
