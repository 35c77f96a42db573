package database

import (
	"context"
	"testing"
	"time"

	"venuebook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	task := &models.SyncTask{
		TaskType:  models.TaskSheetsUpsert,
		BookingID: "b100",
		Payload:   `{"test": true}`,
	}

	// Create
	err := db.CreateSyncTask(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusPending, task.Status)

	// Get Pending
	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "b100", tasks[0].BookingID)
	assert.Nil(t, tasks[0].LastError)

	// Update Status
	err = db.UpdateSyncTaskStatus(ctx, tasks[0].ID, models.SyncStatusCompleted, "", nil)
	require.NoError(t, err)

	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	assert.Len(t, tasks, 0)

	// Failed tasks
	errMsg := "some error"
	err1 := db.CreateSyncTask(ctx, &models.SyncTask{TaskType: models.TaskNotify, BookingID: "b101", Status: models.SyncStatusFailed, LastError: &errMsg})
	require.NoError(t, err1)
	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "some error", *failed[0].LastError)

	// Retry logic
	task2 := &models.SyncTask{TaskType: models.TaskSheetsStatus, BookingID: "b102"}
	err2 := db.CreateSyncTask(ctx, task2)
	require.NoError(t, err2)

	nextRetry := time.Now().Add(time.Hour)
	err = db.UpdateSyncTaskStatus(ctx, task2.ID, models.SyncStatusRetry, "temporary error", &nextRetry)
	require.NoError(t, err)

	// Should not be returned by GetPendingSyncTasks because nextRetry is in the future
	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	for _, task := range tasks {
		if task.ID == task2.ID {
			assert.Fail(t, "task with future retry should not be pending")
		}
	}

	// Update to past retry
	pastRetry := time.Now().Add(-time.Hour)
	err = db.UpdateSyncTaskStatus(ctx, task2.ID, models.SyncStatusRetry, "temporary error", &pastRetry)
	require.NoError(t, err)
	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	found := false
	for _, task := range tasks {
		if task.ID == task2.ID {
			found = true
			assert.Equal(t, 2, task.RetryCount)
		}
	}
	assert.True(t, found)

	// Requeue failed
	n, err := db.RetryFailedSyncTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	failed, err = db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestClaimSyncTask(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	task := &models.SyncTask{TaskType: models.TaskNotify, BookingID: "b1"}
	require.NoError(t, db.CreateSyncTask(ctx, task))

	ok, err := db.ClaimSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.ClaimSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, ok, "a task can be claimed once")

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err := db.RequeueProcessingSyncTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
