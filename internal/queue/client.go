package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// ErrJobAlreadyQueued means an export task for this job id is already
// pending or running; starting a job twice never enqueues twice.
var ErrJobAlreadyQueued = errors.New("export job is already queued")

const (
	exportMaxRetry = 5
	// Per-output render budget; a job's task timeout scales with how many
	// outputs it asks for.
	perOutputTimeout = time.Minute
	minTaskTimeout   = 3 * time.Minute
	taskRetention    = 24 * time.Hour
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueExportFrame submits the job's export task. The task id is derived
// from the job id, so concurrent or repeated starts of the same job
// collapse into one task and report ErrJobAlreadyQueued.
func (c *Client) EnqueueExportFrame(ctx context.Context, payload ExportFramePayload) (*asynq.TaskInfo, error) {
	task, err := NewExportFrameTask(payload)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(len(payload.Outputs)) * perOutputTimeout
	if timeout < minTaskTimeout {
		timeout = minTaskTimeout
	}

	info, err := c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID("export:"+payload.JobID),
		asynq.MaxRetry(exportMaxRetry),
		asynq.Timeout(timeout),
		asynq.Retention(taskRetention),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil, fmt.Errorf("%w: %s", ErrJobAlreadyQueued, payload.JobID)
		}
		return nil, err
	}
	return info, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
