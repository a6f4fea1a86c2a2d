package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/models"
	"github.com/otpeak/otp-service/internal/observability"
	"go.uber.org/zap"
)

// NotificationSender is the delivery capability behind the dispatcher
type NotificationSender interface {
	SendEmail(ctx context.Context, target, subject, body string) error
	SendWhatsApp(ctx context.Context, target, message string) error
}

// Dispatcher is the asynchronous hand-off between issuance and delivery
type Dispatcher interface {
	Enqueue(job DeliveryJob) error
}

// DeliveryJob carries everything a worker needs to render and send one code
type DeliveryJob struct {
	ProjectID         string                  `json:"project_id"`
	Target            string                  `json:"target"`
	Code              string                  `json:"code"`
	Channel           string                  `json:"channel"`
	CorrelationID     string                  `json:"correlation_id"`
	EmailTemplate     models.EmailTemplate    `json:"email_template"`
	WhatsAppTemplate  models.WhatsAppTemplate `json:"whatsapp_template"`
	ExpirationMinutes int                     `json:"expiration_minutes"`
	CreatedAt         time.Time               `json:"created_at"`
}

// DeliveryResult represents the outcome of a delivery job
type DeliveryResult struct {
	JobID       string    `json:"job_id"`
	Target      string    `json:"target"`
	Channel     string    `json:"channel"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// DispatchStats tracks queue performance metrics
type DispatchStats struct {
	JobsEnqueued  int64 `json:"jobs_enqueued"`
	JobsProcessed int64 `json:"jobs_processed"`
	JobsFailed    int64 `json:"jobs_failed"`
	QueueSize     int   `json:"queue_size"`
	ActiveWorkers int   `json:"active_workers"`
}

// DispatchQueue manages asynchronous OTP delivery with a worker pool.
// Enqueue never blocks; delivery is at-most-once from the engine's view and
// send failures are observed here, not retried.
type DispatchQueue struct {
	queue   chan DeliveryJob
	results chan DeliveryResult
	workers int
	sender  NotificationSender
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stats   *DispatchStats
	mu      sync.RWMutex
}

// NewDispatchQueue creates a dispatch queue and starts its workers
func NewDispatchQueue(sender NotificationSender, workers, queueSize int) *DispatchQueue {
	ctx, cancel := context.WithCancel(context.Background())

	dq := &DispatchQueue{
		queue:   make(chan DeliveryJob, queueSize),
		results: make(chan DeliveryResult, queueSize),
		workers: workers,
		sender:  sender,
		ctx:     ctx,
		cancel:  cancel,
		stats:   &DispatchStats{},
	}

	dq.startWorkers()
	go dq.processResults()

	return dq
}

func (dq *DispatchQueue) startWorkers() {
	for i := 0; i < dq.workers; i++ {
		dq.wg.Add(1)
		go dq.worker(i)
	}
}

// worker processes delivery jobs from the queue
func (dq *DispatchQueue) worker(id int) {
	defer dq.wg.Done()

	for {
		select {
		case job, ok := <-dq.queue:
			if !ok {
				return
			}
			dq.processJob(job, id)
		case <-dq.ctx.Done():
			return
		}
	}
}

// processJob renders the channel template and hands the message to the sender
func (dq *DispatchQueue) processJob(job DeliveryJob, workerID int) {
	dq.mu.Lock()
	dq.stats.JobsProcessed++
	dq.mu.Unlock()
	observability.DispatchQueueDepth.Set(float64(len(dq.queue)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result := DeliveryResult{
		JobID:       fmt.Sprintf("%d-%s-%s", workerID, job.ProjectID, job.CorrelationID),
		Target:      job.Target,
		Channel:     job.Channel,
		ProcessedAt: time.Now(),
	}

	err := dq.deliver(ctx, job)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		observability.DispatchJobs.WithLabelValues(job.Channel, "failed").Inc()
		logging.Logger.Error("OTP delivery failed",
			zap.Int("worker_id", workerID),
			zap.String("project_id", job.ProjectID),
			zap.String("channel", job.Channel),
			zap.String("target", observability.MaskTarget(job.Target)),
			zap.Error(err))
	} else {
		result.Success = true
		observability.DispatchJobs.WithLabelValues(job.Channel, "sent").Inc()
		logging.Logger.Info("OTP delivered",
			zap.Int("worker_id", workerID),
			zap.String("project_id", job.ProjectID),
			zap.String("channel", job.Channel),
			zap.String("target", observability.MaskTarget(job.Target)))
	}

	select {
	case dq.results <- result:
	default:
		logging.Logger.Warn("results channel full, dropping result")
	}
}

// deliver sends the rendered message over the job's channel
func (dq *DispatchQueue) deliver(ctx context.Context, job DeliveryJob) error {
	switch job.Channel {
	case models.ChannelEmail:
		subject, body := job.EmailTemplate.Render(job.Code, job.ExpirationMinutes)
		return dq.sender.SendEmail(ctx, job.Target, subject, body)
	case models.ChannelWhatsApp:
		message := job.WhatsAppTemplate.Render(job.Code, job.ExpirationMinutes)
		return dq.sender.SendWhatsApp(ctx, job.Target, message)
	default:
		return fmt.Errorf("unknown delivery channel: %s", job.Channel)
	}
}

// processResults drains delivery results
func (dq *DispatchQueue) processResults() {
	for {
		select {
		case result, ok := <-dq.results:
			if !ok {
				return
			}
			dq.handleResult(result)
		case <-dq.ctx.Done():
			return
		}
	}
}

func (dq *DispatchQueue) handleResult(result DeliveryResult) {
	if !result.Success {
		dq.mu.Lock()
		dq.stats.JobsFailed++
		dq.mu.Unlock()
	}
}

// Enqueue adds a delivery job to the queue. A full queue is an error the
// caller must surface, never a silent drop.
func (dq *DispatchQueue) Enqueue(job DeliveryJob) error {
	select {
	case dq.queue <- job:
		dq.mu.Lock()
		dq.stats.JobsEnqueued++
		dq.mu.Unlock()
		observability.DispatchQueueDepth.Set(float64(len(dq.queue)))
		return nil
	default:
		return fmt.Errorf("dispatch queue is full")
	}
}

// GetStats returns the current processing statistics
func (dq *DispatchQueue) GetStats() DispatchStats {
	dq.mu.RLock()
	defer dq.mu.RUnlock()

	stats := *dq.stats
	stats.QueueSize = len(dq.queue)
	stats.ActiveWorkers = dq.workers

	return stats
}

// Stop gracefully stops the queue, letting workers finish in-flight jobs
func (dq *DispatchQueue) Stop() {
	close(dq.queue)
	dq.wg.Wait()
	dq.cancel()
}

// IsHealthy checks if the queue is keeping up
func (dq *DispatchQueue) IsHealthy() bool {
	stats := dq.GetStats()

	if stats.QueueSize >= cap(dq.queue) {
		return false
	}
	if stats.JobsProcessed == 0 && stats.JobsEnqueued > int64(cap(dq.queue)) {
		return false
	}
	return true
}
