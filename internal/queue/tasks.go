package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AlessioGiambrone/stackistry/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeExportFrame = "frame:export"

type ExportFramePayload struct {
	JobID       string              `json:"job_id"`
	UserID      string              `json:"user_id,omitempty"`
	SourceType  string              `json:"source_type"`
	WebhookURL  string              `json:"webhook_url,omitempty"`
	ObjectKey   string              `json:"object_key"`
	Outputs     []domain.ExportStep `json:"outputs"`
	RequestedAt time.Time           `json:"requested_at"`
}

func NewExportFrameTask(payload ExportFramePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal export payload: %w", err)
	}
	return asynq.NewTask(TypeExportFrame, body), nil
}

func ParseExportFramePayload(task *asynq.Task) (ExportFramePayload, error) {
	var payload ExportFramePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ExportFramePayload{}, fmt.Errorf("unmarshal export payload: %w", err)
	}
	return payload, nil
}
