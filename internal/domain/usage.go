package domain

import "time"

type UsageLog struct {
	UserID          string
	JobID           string
	PixelsConverted int64
	BytesWritten    int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
