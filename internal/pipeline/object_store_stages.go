package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AlessioGiambrone/stackistry/internal/domain"
	"github.com/AlessioGiambrone/stackistry/internal/storage"
)

const SourceTypeS3Presigned = domain.SourceTypeS3Presigned

// ObjectStoreFetcher reads the job's uploaded source frame from the
// bucket.
type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadFrame(ctx, req.ObjectKey)
}

// ObjectStoreEmitter writes each rendered output under the job's output
// prefix; the returned Output's Path is the object key.
type ObjectStoreEmitter struct {
	Storage *storage.Client
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, step domain.ExportStep, data []byte, ext, contentType string, width, height int) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("output step id is required")
	}

	name := sanitizePathToken(step.ID) + ext
	objectKey, err := e.Storage.WriteOutput(ctx, sanitizePathToken(req.JobID), name, contentType, data)
	if err != nil {
		return Output{}, err
	}

	return Output{
		StepID:  step.ID,
		Action:  step.Action,
		Format:  formatLabel(step),
		Path:    objectKey,
		Bytes:   len(data),
		Width:   width,
		Height:  height,
		Success: true,
	}, nil
}
