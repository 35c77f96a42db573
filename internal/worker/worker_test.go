package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"venuebook/internal/database"
	"venuebook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBooking(id string) *models.Booking {
	start, _ := models.ParseWallClock("2030-06-10", "10:00")
	end, _ := models.ParseWallClock("2030-06-10", "11:00")
	return &models.Booking{
		ID:             id,
		RequesterID:    "u1",
		RequesterEmail: "ana@example.com",
		RequesterName:  "Ana",
		Venue:          models.VenueBoardRoom,
		FacilityName:   "Board Room",
		Date:           "2030-06-10",
		StartTime:      start,
		EndTime:        end,
		Purpose:        "Planning",
		Participants:   4,
		Status:         models.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewTaskWorker(db, sheets, nil, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, models.TaskSheetsUpsert, testBooking("b1"), nil))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, status)
	assert.Equal(t, 0, retryCount)
	assert.False(t, nextRetry.Valid, "expected next_retry_at NULL on success")
	assert.Equal(t, 1, sheets.upsertCalls)
	assert.Equal(t, "b1", sheets.lastID)
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewTaskWorker(db, sheets, nil, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, models.TaskSheetsUpsert, testBooking("b2"), nil))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok)
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusRetry, status)
	assert.Equal(t, 1, retryCount)
	require.True(t, nextRetry.Valid)
	assert.True(t, nextRetry.Time.After(time.Now().Add(-time.Second)))
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewTaskWorker(db, sheets, nil, nil, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, models.TaskSheetsStatus, testBooking("b3"), nil))
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)
}

func TestProcessTaskSkipsClaimedTask(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewTaskWorker(db, sheets, nil, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, models.TaskSheetsUpsert, testBooking("b4"), nil))
	task, _ := worker.tryLocalQueue()

	claimed, err := db.ClaimSyncTask(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	worker.processTask(ctx, &task)
	assert.Equal(t, 0, sheets.upsertCalls)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusProcessing, status)
}

func TestNotifyTask(t *testing.T) {
	db := newTestDB(t)
	deliverer := &fakeDeliverer{}
	worker := NewTaskWorker(db, nil, deliverer, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	b := testBooking("b5")
	n := &models.Notification{ID: "n1", UserID: "u1", Type: "approved", BookingID: "b5", Message: "Your booking for Board Room has been approved"}

	t.Run("MissingPayload", func(t *testing.T) {
		assert.Error(t, worker.EnqueueTask(ctx, models.TaskNotify, b, nil))
	})

	t.Run("Delivered", func(t *testing.T) {
		require.NoError(t, worker.EnqueueTask(ctx, models.TaskNotify, b, n))
		task, ok := worker.tryLocalQueue()
		require.True(t, ok)
		worker.processTask(ctx, &task)

		require.Len(t, deliverer.delivered, 1)
		assert.Equal(t, "n1", deliverer.delivered[0].ID)
		assert.Equal(t, n.Message, deliverer.delivered[0].Message)
	})

	t.Run("SheetsTaskSkippedWithoutMirror", func(t *testing.T) {
		require.NoError(t, worker.EnqueueTask(ctx, models.TaskSheetsUpsert, b, nil))
		_, ok := worker.tryLocalQueue()
		assert.False(t, ok)
		tasks, err := db.GetPendingSyncTasks(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}

func TestHandleTask(t *testing.T) {
	sheets := &fakeSheets{}
	worker := NewTaskWorker(nil, sheets, &fakeDeliverer{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		err := worker.handleTask(ctx, models.TaskSheetsUpsert, taskPayload{Booking: testBooking("b1")})
		require.NoError(t, err)
		assert.Equal(t, 1, sheets.upsertCalls)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		err := worker.handleTask(ctx, models.TaskSheetsStatus, taskPayload{BookingID: "b1", Status: models.StatusApproved})
		require.NoError(t, err)
		assert.Equal(t, 1, sheets.statusCalls)
		assert.Equal(t, models.StatusApproved, sheets.lastStatus)
	})

	t.Run("UpdateStatusMissingStatus", func(t *testing.T) {
		err := worker.handleTask(ctx, models.TaskSheetsStatus, taskPayload{BookingID: "b1"})
		assert.Error(t, err)
	})

	t.Run("Unknown", func(t *testing.T) {
		err := worker.handleTask(ctx, "bogus", taskPayload{})
		assert.Error(t, err)
	})
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, policy.NextDelay(0))

	assert.Equal(t, 2*time.Second, RetryPolicy{}.NextDelay(1))
	assert.Equal(t, time.Minute, RetryPolicy{}.NextDelay(40))
	assert.False(t, RetryPolicy{MaxRetries: 3}.Exhausted(2))
	assert.True(t, RetryPolicy{MaxRetries: 3}.Exhausted(3))
	assert.True(t, RetryPolicy{}.Exhausted(DefaultRetryPolicy.MaxRetries))
}

func TestEnqueueTaskValidation(t *testing.T) {
	db := newTestDB(t)
	worker := NewTaskWorker(db, &fakeSheets{}, nil, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	t.Run("InvalidTaskType", func(t *testing.T) {
		assert.Error(t, worker.EnqueueTask(ctx, "", testBooking("b1"), nil))
	})

	t.Run("MissingBooking", func(t *testing.T) {
		assert.Error(t, worker.EnqueueTask(ctx, models.TaskSheetsUpsert, nil, nil))
	})

	t.Run("MissingBookingID", func(t *testing.T) {
		assert.Error(t, worker.EnqueueTask(ctx, models.TaskSheetsUpsert, testBooking(""), nil))
	})
}

func TestDecodePayload(t *testing.T) {
	worker := NewTaskWorker(nil, nil, nil, nil, RetryPolicy{}, nil)

	t.Run("ValidPayload", func(t *testing.T) {
		decoded, err := worker.decodePayload(`{"booking_id":"b9","status":"approved"}`)
		require.NoError(t, err)
		assert.Equal(t, "b9", decoded.BookingID)
		assert.Equal(t, "approved", decoded.Status)
	})

	t.Run("InvalidPayload", func(t *testing.T) {
		_, err := worker.decodePayload(`invalid json`)
		assert.Error(t, err)
	})
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("down")}
	worker := NewTaskWorker(db, sheets, nil, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueTask(ctx, models.TaskSheetsUpsert, testBooking("b7"), nil))
	_, ok := worker.tryLocalQueue()
	assert.False(t, ok, "redis should take the task")

	task, ok := worker.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, "b7", task.BookingID)

	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)

	dead, err := mr.List("venuebook:tasks:deadletter")
	require.NoError(t, err)
	require.Len(t, dead, 1)
	var deadTask models.SyncTask
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &deadTask))
	assert.Equal(t, task.ID, deadTask.ID)
}

func TestStartDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewTaskWorker(db, sheets, nil, nil, RetryPolicy{}, nil)
	worker.SetPollInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, worker.EnqueueTask(ctx, models.TaskSheetsUpsert, testBooking("b8"), nil))

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		status, _, _ := loadTaskStatus(t, db, 1)
		return status == models.SyncStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

// Helpers

type fakeSheets struct {
	mu          sync.Mutex
	err         error
	upsertCalls int
	statusCalls int
	lastID      string
	lastStatus  string
}

func (f *fakeSheets) UpsertBooking(ctx context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	f.lastID = b.ID
	return f.err
}

func (f *fakeSheets) UpdateBookingStatus(ctx context.Context, id string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	f.lastID = id
	f.lastStatus = status
	return f.err
}

type fakeDeliverer struct {
	err       error
	delivered []*models.Notification
}

func (f *fakeDeliverer) Deliver(ctx context.Context, n *models.Notification) error {
	f.delivered = append(f.delivered, n)
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}
