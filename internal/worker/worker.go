package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/aura-classroom/livepoll/internal/exports"
	"github.com/aura-classroom/livepoll/pkg/queue"
)

// JobSource is the consuming side of the job queue.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Uploader writes finished export documents.
type Uploader interface {
	UploadExport(ctx context.Context, key string, body io.Reader, size int64) error
}

// JobTimeout bounds one job, including the time it may run past shutdown.
const JobTimeout = 2 * time.Minute

// ExportProcessor processes poll export jobs: build the report from the store, upload it as JSON.
type ExportProcessor struct {
	source   exports.ReportSource
	uploader Uploader
	queue    JobSource
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewExportProcessor creates an export processor.
func NewExportProcessor(source exports.ReportSource, uploader Uploader, q JobSource, clock clockwork.Clock, logger *zap.Logger) *ExportProcessor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{source: source, uploader: uploader, queue: q, clock: clock, logger: logger}
}

// Process executes one export job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeExportPoll {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ExportPollPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	report, err := exports.BuildReport(ctx, p.source, payload.PollID, p.clock.Now())
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := p.uploader.UploadExport(ctx, payload.Key, bytes.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	p.logger.Info("export completed",
		zap.String("export_id", payload.ExportID.String()),
		zap.String("poll_id", payload.PollID.String()),
		zap.String("s3_key", payload.Key),
		zap.Int("questions", len(report.Questions)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns
// once ctx is cancelled and the job in hand, if any, has finished.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx, queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		p.runJob(ctx, job)
	}
}

func (p *ExportProcessor) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-p.clock.After(d):
	}
}

// runJob processes job on a context that survives ctx's cancellation, so a
// shutdown lets the upload finish.
func (p *ExportProcessor) runJob(ctx context.Context, job *queue.Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), JobTimeout)
	defer cancel()
	if err := p.Process(jobCtx, job); err != nil {
		p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		if reErr := p.queue.Retry(jobCtx, job); reErr != nil {
			p.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
		p.sleep(ctx, queue.RetryBackoff)
	}
}
