package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/database"
	"venuebook/internal/domain"
	"venuebook/internal/metrics"
	"venuebook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Deliverer sends a stored notification to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

// taskPayload is persisted in SyncTask.Payload as JSON.
type taskPayload struct {
	BookingID    string               `json:"booking_id"`
	Booking      *models.Booking      `json:"booking,omitempty"`
	Status       string               `json:"status,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

// TaskWorker consumes sync_queue tasks: sheet mirror updates and
// notification deliveries.
type TaskWorker struct {
	db            *database.DB
	sheets        domain.SheetsWriter
	notifier      Deliverer
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewTaskWorker builds a worker with sane defaults. sheets, notifier and
// redisClient may be nil; tasks for a missing handler are not enqueued.
func NewTaskWorker(db *database.DB, sheets domain.SheetsWriter, notifier Deliverer, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *TaskWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	scoped := logger.With().Str("component", "task_worker").Logger()

	return &TaskWorker{
		db:            db,
		sheets:        sheets,
		notifier:      notifier,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "venuebook:tasks:queue",
		deadLetterKey: "venuebook:tasks:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        &scoped,
	}
}

// SetPollInterval overrides how often the database is polled for due tasks.
func (w *TaskWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

func (w *TaskWorker) handles(taskType string) bool {
	switch taskType {
	case models.TaskSheetsUpsert, models.TaskSheetsStatus:
		return w.sheets != nil
	case models.TaskNotify:
		return w.notifier != nil
	default:
		return false
	}
}

// EnqueueTask persists a task for b and schedules it via redis or the
// in-memory queue. payload is the notification for notify tasks.
func (w *TaskWorker) EnqueueTask(ctx context.Context, taskType string, b *models.Booking, payload any) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if b == nil || b.ID == "" {
		return errors.New("booking id is required")
	}
	if !w.handles(taskType) {
		w.logger.Debug().Str("task", taskType).Msg("no handler configured, task skipped")
		return nil
	}

	p := taskPayload{BookingID: b.ID}
	switch taskType {
	case models.TaskSheetsUpsert:
		p.Booking = b
	case models.TaskSheetsStatus:
		p.Status = b.Status
	case models.TaskNotify:
		n, ok := payload.(*models.Notification)
		if !ok || n == nil {
			return errors.New("notification payload is required")
		}
		p.Notification = n
	}

	payloadBytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	syncTask := models.SyncTask{
		TaskType:  taskType,
		BookingID: b.ID,
		Payload:   string(payloadBytes),
		Status:    models.SyncStatusPending,
	}

	if err := w.db.CreateSyncTask(ctx, &syncTask); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}
	metrics.IncTask(taskType, "enqueued")

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, syncTask); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	// Fallback to in-memory queue if redis missing or failed.
	select {
	case w.queue <- syncTask:
	default:
		w.logger.Warn().Int64("task_id", syncTask.ID).Msg("in-memory queue full, task left to polling")
	}

	return nil
}

// Start launches the main loop and returns when ctx is done.
func (w *TaskWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("started")
	defer w.logger.Info().Msg("stopped")

	if n, err := w.db.RequeueProcessingSyncTasks(ctx); err != nil {
		w.logger.Error().Err(err).Msg("requeue interrupted tasks")
	} else if n > 0 {
		w.logger.Info().Int64("count", n).Msg("requeued interrupted tasks")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *TaskWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *TaskWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *TaskWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

// processTask claims task and runs it. A task another consumer already
// claimed is skipped.
func (w *TaskWorker) processTask(ctx context.Context, task *models.SyncTask) {
	claimed, err := w.db.ClaimSyncTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("claim task")
		return
	}
	if !claimed {
		return
	}

	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Str("task", task.TaskType).Msg("task failed")
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncTask(task.TaskType, models.SyncStatusCompleted)
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *TaskWorker) handleTask(ctx context.Context, taskType string, payload taskPayload) error {
	switch taskType {
	case models.TaskSheetsUpsert:
		if w.sheets == nil {
			return errors.New("sheets mirror is not configured")
		}
		if payload.Booking == nil {
			return errors.New("booking payload missing")
		}
		return w.sheets.UpsertBooking(ctx, payload.Booking)
	case models.TaskSheetsStatus:
		if w.sheets == nil {
			return errors.New("sheets mirror is not configured")
		}
		if payload.BookingID == "" || payload.Status == "" {
			return errors.New("booking id or status missing")
		}
		return w.sheets.UpdateBookingStatus(ctx, payload.BookingID, payload.Status)
	case models.TaskNotify:
		if w.notifier == nil {
			return errors.New("notifications are not configured")
		}
		if payload.Notification == nil {
			return errors.New("notification payload missing")
		}
		return w.notifier.Deliver(ctx, payload.Notification)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *TaskWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncTask(task.TaskType, models.SyncStatusRetry)
	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
}

func (w *TaskWorker) failTask(ctx context.Context, task *models.SyncTask, err error) {
	metrics.IncTask(task.TaskType, models.SyncStatusFailed)
	if uerr := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, err.Error(), nil); uerr != nil {
		w.logger.Error().Err(uerr).Int64("task_id", task.ID).Msg("mark failed")
	}
	if w.redis != nil {
		if perr := w.pushRedis(ctx, w.deadLetterKey, *task); perr != nil {
			w.logger.Error().Err(perr).Int64("task_id", task.ID).Msg("deadletter push")
		}
	}
}

func (w *TaskWorker) decodePayload(raw string) (taskPayload, error) {
	var payload taskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *TaskWorker) pushRedis(ctx context.Context, key string, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
