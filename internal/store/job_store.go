package store

import (
	"context"
	"errors"

	"github.com/AlessioGiambrone/stackistry/internal/domain"
)

var ErrJobNotFound = errors.New("export job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.ExportJob) error
	Get(ctx context.Context, id string) (domain.ExportJob, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.ExportJob, error)
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}
