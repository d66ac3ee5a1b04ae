package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AlessioGiambrone/stackistry/internal/pix"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"

	StepActionExport  = "export"
	StepActionPreview = "preview"
)

type CreateExportRequest struct {
	SourceType string       `json:"source_type"`
	UserID     string       `json:"user_id,omitempty"`
	WebhookURL string       `json:"webhook_url,omitempty"`
	ObjectKey  string       `json:"object_key,omitempty"`
	Outputs    []ExportStep `json:"outputs"`
}

// ExportStep is one requested output of an export job. Action "export"
// writes the frame in the named output format; action "preview" renders a
// display surface and writes it as a PNG. Channels selects the exported
// channel count (1, 3 or 4); zero keeps the source's.
type ExportStep struct {
	ID       string `json:"id"`
	Action   string `json:"action"`
	Format   string `json:"format,omitempty"`
	Channels int    `json:"channels,omitempty"`
}

type ExportJob struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	Outputs    []ExportStep
	ObjectKey  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateExportRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if len(r.Outputs) == 0 {
		return errors.New("outputs must contain at least one step")
	}
	for i, step := range r.Outputs {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("outputs[%d].id is required", i)
		}
		switch strings.ToLower(strings.TrimSpace(step.Action)) {
		case StepActionExport:
			if _, ok := pix.ParseOutputFormat(strings.ToLower(strings.TrimSpace(step.Format))); !ok {
				return fmt.Errorf("outputs[%d].format %q is not a supported output format", i, step.Format)
			}
		case StepActionPreview:
			if strings.TrimSpace(step.Format) != "" {
				return fmt.Errorf("outputs[%d]: preview steps take no format", i)
			}
		case "":
			return fmt.Errorf("outputs[%d].action is required", i)
		default:
			return fmt.Errorf("outputs[%d].action %q is not supported", i, step.Action)
		}
		switch step.Channels {
		case 0, 1, 3, 4:
		default:
			return fmt.Errorf("outputs[%d].channels must be 1, 3 or 4", i)
		}
	}
	return nil
}
